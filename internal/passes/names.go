package passes

import (
	"context"
	"fmt"
	"strings"

	"github.com/fablecast/dramatis/internal/budget"
)

// Names extracts character names from one batch of text. The result is
// deduplicated case-insensitively, keeping first-seen spellings in order.
func (r *Runner) Names(ctx context.Context, text string) ([]string, error) {
	raw, err := r.run(ctx, Definition{
		Name:        "names",
		System:      namesSystem,
		Budget:      budget.Names,
		Temperature: 0.1,
		Build: func(allowanceChars int) string {
			return namesUser(budget.Truncate(text, allowanceChars))
		},
	})
	if err != nil {
		return nil, err
	}

	names, ok := decodeNames(raw)
	if !ok {
		return nil, fmt.Errorf("names pass: %w", ErrBadResponse)
	}
	return names, nil
}

func decodeNames(raw string) ([]string, bool) {
	candidate, ok := ExtractJSON(raw)
	if !ok {
		return nil, false
	}
	v, ok := unmarshalAny(candidate)
	if !ok {
		return nil, false
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		inner, ok := field(t, "characters", "names")
		if !ok {
			return nil, false
		}
		items, ok = inner.([]any)
		if !ok {
			return nil, false
		}
	default:
		return nil, false
	}

	seen := make(map[string]bool, len(items))
	names := make([]string, 0, len(items))
	for _, item := range items {
		name := asString(item)
		if name == "" {
			if m, ok := item.(map[string]any); ok {
				if v, ok := field(m, "name", "character"); ok {
					name = asString(v)
				}
			}
		}
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names, true
}
