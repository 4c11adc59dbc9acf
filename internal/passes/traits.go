package passes

import (
	"context"
	"fmt"

	"github.com/fablecast/dramatis/internal/budget"
)

// Traits extracts explicitly stated traits for one character from the given
// evidence text. An empty result is a valid answer.
func (r *Runner) Traits(ctx context.Context, name, text string) ([]string, error) {
	raw, err := r.run(ctx, Definition{
		Name:        "traits",
		System:      traitsSystem(name),
		Budget:      budget.Traits,
		Temperature: 0.15,
		Build: func(allowanceChars int) string {
			return traitsUser(name, budget.Truncate(text, allowanceChars))
		},
	})
	if err != nil {
		return nil, err
	}

	traits, ok := decodeTraits(raw)
	if !ok {
		return nil, fmt.Errorf("traits pass: %w", ErrBadResponse)
	}
	return traits, nil
}

func decodeTraits(raw string) ([]string, bool) {
	candidate, ok := ExtractJSON(raw)
	if !ok {
		return nil, false
	}
	v, ok := unmarshalAny(candidate)
	if !ok {
		return nil, false
	}

	switch t := v.(type) {
	case []any:
		return asStringSlice(t), true
	case map[string]any:
		if inner, ok := field(t, "traits"); ok {
			return asStringSlice(inner), true
		}
	}
	return nil, false
}
