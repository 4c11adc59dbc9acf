package passes

import (
	"context"
	"fmt"
	"strings"

	"github.com/fablecast/dramatis/internal/budget"
	"github.com/fablecast/dramatis/internal/character"
)

// VoiceSubject is one character queued for voice analysis, with an
// aggregated dialogue sample as evidence.
type VoiceSubject struct {
	Name    string
	Context string
}

// VoiceResult is the combined trait and profile answer for one character.
type VoiceResult struct {
	Name    string
	Traits  []string
	Profile character.VoiceProfile
}

// Voice runs the combined trait and voice-profile pass for a group of
// characters in a single call, splitting the input allowance evenly across
// their dialogue samples. Results are matched back to subjects by name, or
// by position when the model mangles the names.
func (r *Runner) Voice(ctx context.Context, subjects []VoiceSubject) ([]VoiceResult, error) {
	if len(subjects) == 0 {
		return nil, nil
	}

	raw, err := r.run(ctx, Definition{
		Name:        "voice",
		System:      voiceSystem,
		Budget:      budget.Voice,
		Temperature: 0.1,
		Build: func(allowanceChars int) string {
			return voiceUser(fitEach(subjects, allowanceChars))
		},
	})
	if err != nil {
		return nil, err
	}

	results, ok := decodeVoice(raw)
	if !ok {
		return nil, fmt.Errorf("voice pass: %w", ErrBadResponse)
	}
	return alignResults(subjects, results), nil
}

// Profile suggests a voice profile from personality points alone, the final
// step of the detailed per-character chain.
func (r *Runner) Profile(ctx context.Context, name string, personality []string) (character.VoiceProfile, error) {
	raw, err := r.run(ctx, Definition{
		Name:        "profile",
		System:      profileSystem(name),
		Budget:      budget.Personality,
		Temperature: 0.1,
		Build: func(allowanceChars int) string {
			return profileUser(name, personality)
		},
	})
	if err != nil {
		return character.VoiceProfile{}, err
	}

	results, ok := decodeVoice(raw)
	if !ok || len(results) == 0 {
		return character.VoiceProfile{}, fmt.Errorf("profile pass: %w", ErrBadResponse)
	}
	return results[0].Profile, nil
}

func decodeVoice(raw string) ([]VoiceResult, bool) {
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
		if inner, ok := field(t, "results", "characters", "profiles"); ok {
			if arr, ok := inner.([]any); ok {
				items = arr
				break
			}
		}
		items = []any{t}
	default:
		return nil, false
	}

	results := make([]VoiceResult, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var res VoiceResult
		if v, ok := field(m, "character", "name", "speaker"); ok {
			res.Name = asString(v)
		}
		if v, ok := field(m, "traits"); ok {
			res.Traits = asStringSlice(v)
		}
		if v, ok := field(m, "voice_profile", "profile", "voice"); ok {
			if pm, ok := v.(map[string]any); ok {
				res.Profile = decodeProfile(pm)
			}
		} else {
			// Profile fields emitted flat on the entry itself.
			res.Profile = decodeProfile(m)
		}
		res.Profile.Normalize()
		results = append(results, res)
	}
	if len(results) == 0 {
		return nil, false
	}
	return results, true
}

func decodeProfile(m map[string]any) character.VoiceProfile {
	var p character.VoiceProfile
	if v, ok := field(m, "pitch"); ok {
		p.Pitch, _ = asFloat(v)
	}
	if v, ok := field(m, "speed", "rate"); ok {
		p.Speed, _ = asFloat(v)
	}
	if v, ok := field(m, "energy"); ok {
		p.Energy, _ = asFloat(v)
	}
	if v, ok := field(m, "gender"); ok {
		p.Gender = asString(v)
	}
	if v, ok := field(m, "age"); ok {
		p.Age = asString(v)
	}
	if v, ok := field(m, "tone"); ok {
		p.Tone = asString(v)
	}
	if v, ok := field(m, "accent"); ok {
		p.Accent = asString(v)
	}
	if v, ok := field(m, "speaker_id", "speaker"); ok {
		p.SpeakerID, _ = asInt(v)
	}
	if v, ok := field(m, "emotion_bias"); ok {
		if bm, ok := v.(map[string]any); ok {
			bias := make(map[string]float64, len(bm))
			for k, bv := range bm {
				if f, ok := asFloat(bv); ok {
					bias[character.NormalizeEmotion(k)] = f
				}
			}
			if len(bias) > 0 {
				p.EmotionBias = bias
			}
		}
	}
	return p
}

// alignResults maps decoded entries onto the requested subjects: first by
// name for every subject, then remaining entries fill unmatched subjects in
// order. Entry names are rewritten to the subject's canonical spelling.
func alignResults(subjects []VoiceSubject, results []VoiceResult) []VoiceResult {
	assigned := make([]int, len(subjects))
	used := make([]bool, len(results))
	for i := range assigned {
		assigned[i] = -1
	}

	for si, s := range subjects {
		for ri, res := range results {
			if used[ri] {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(res.Name), s.Name) {
				assigned[si] = ri
				used[ri] = true
				break
			}
		}
	}
	for si := range subjects {
		if assigned[si] >= 0 {
			continue
		}
		for ri := range results {
			if !used[ri] {
				assigned[si] = ri
				used[ri] = true
				break
			}
		}
	}

	aligned := make([]VoiceResult, 0, len(subjects))
	for si, s := range subjects {
		if assigned[si] < 0 {
			continue
		}
		res := results[assigned[si]]
		res.Name = s.Name
		aligned = append(aligned, res)
	}
	return aligned
}
