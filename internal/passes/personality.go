package passes

import (
	"context"
	"fmt"

	"github.com/fablecast/dramatis/internal/budget"
)

// Personality infers personality points for one character from its collected
// traits. No document text is sent; the traits are the whole evidence.
func (r *Runner) Personality(ctx context.Context, name string, traits []string) ([]string, error) {
	raw, err := r.run(ctx, Definition{
		Name:        "personality",
		System:      personalitySystem(name),
		Budget:      budget.Personality,
		Temperature: 0.2,
		Build: func(allowanceChars int) string {
			return personalityUser(name, traits)
		},
	})
	if err != nil {
		return nil, err
	}

	points, ok := decodePersonality(raw)
	if !ok {
		return nil, fmt.Errorf("personality pass: %w", ErrBadResponse)
	}
	return points, nil
}

func decodePersonality(raw string) ([]string, bool) {
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
		if inner, ok := field(t, "personality", "points"); ok {
			return asStringSlice(inner), true
		}
	}
	return nil, false
}
