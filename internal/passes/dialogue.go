package passes

import (
	"context"
	"fmt"

	"github.com/fablecast/dramatis/internal/budget"
	"github.com/fablecast/dramatis/internal/character"
)

// Dialogue extracts attributed speech and narration from one batch of text.
// The names slice scopes attribution to characters known to appear there.
// Lines come back in document order with normalized emotion and intensity.
func (r *Runner) Dialogue(ctx context.Context, names []string, text string) ([]character.DialogueLine, error) {
	raw, err := r.run(ctx, Definition{
		Name:        "dialogue",
		System:      dialogueSystem,
		Budget:      budget.Dialogue,
		Temperature: 0.15,
		Build: func(allowanceChars int) string {
			return dialogueUser(names, budget.Truncate(text, allowanceChars))
		},
	})
	if err != nil {
		return nil, err
	}

	lines, ok := decodeDialogue(raw)
	if !ok {
		return nil, fmt.Errorf("dialogue pass: %w", ErrBadResponse)
	}
	return lines, nil
}

func decodeDialogue(raw string) ([]character.DialogueLine, bool) {
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
		if inner, ok := field(t, "dialogs", "dialogues", "dialogue", "lines", "segments"); ok {
			if arr, ok := inner.([]any); ok {
				items = arr
				break
			}
		}
		// A single line emitted without its array wrapper.
		items = []any{t}
	default:
		return nil, false
	}

	lines := make([]character.DialogueLine, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if line, ok := decodeLine(m); ok {
			lines = append(lines, line)
		}
	}
	return lines, true
}

func decodeLine(m map[string]any) (character.DialogueLine, bool) {
	var line character.DialogueLine

	if v, ok := field(m, "speaker", "character", "name"); ok {
		line.Speaker = asString(v)
	}
	if v, ok := field(m, "text", "dialog", "dialogue", "line", "quote"); ok {
		line.Text = asString(v)
	}

	// Some models answer with one {"Name": "line"} pair per entry.
	if line.Text == "" && len(m) == 1 {
		for k, v := range m {
			line.Speaker = k
			line.Text = asString(v)
		}
	}
	if line.Text == "" {
		return line, false
	}

	if v, ok := field(m, "emotion", "mood"); ok {
		line.Emotion = asString(v)
	}
	line.Emotion = character.NormalizeEmotion(line.Emotion)

	if v, ok := field(m, "intensity"); ok {
		if f, ok := asFloat(v); ok {
			line.Intensity = f
		}
	}
	line.Intensity = character.ClampIntensity(line.Intensity)

	return line, true
}
