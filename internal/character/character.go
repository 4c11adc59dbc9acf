package character

import "strings"

const (
	// DefaultEmotion is assigned when a dialogue line carries no usable emotion.
	DefaultEmotion = "neutral"
	// DefaultIntensity is assigned when a dialogue line carries no usable intensity.
	DefaultIntensity = 0.5
	// MaxTraits caps the trait list on any single character.
	MaxTraits = 5
)

// Emotions is the closed vocabulary dialogue extraction may emit.
var Emotions = []string{
	"neutral", "happy", "sad", "angry", "surprised",
	"fearful", "excited", "worried", "curious", "defiant",
}

// DefaultTraits is the fallback trait list for characters the model could not
// describe (too few appearances, parse failure).
func DefaultTraits() []string {
	return []string{"minor character", "limited information"}
}

// NormalizeEmotion maps a raw emotion label onto the known vocabulary,
// falling back to neutral.
func NormalizeEmotion(emotion string) string {
	e := strings.ToLower(strings.TrimSpace(emotion))
	for _, known := range Emotions {
		if e == known {
			return known
		}
	}
	return DefaultEmotion
}

// ClampIntensity bounds an intensity value to [0,1]. Values that were never
// set (zero) become the default rather than "very mild".
func ClampIntensity(v float64) float64 {
	if v == 0 {
		return DefaultIntensity
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DialogueLine is one attributed utterance or narration segment.
type DialogueLine struct {
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	Emotion   string  `json:"emotion"`
	Intensity float64 `json:"intensity"`
	Page      int     `json:"page"`
}

// VoiceProfile holds the synthesis parameters suggested for a character.
// Numeric fields default to 1.0 and are clamped to the TTS-safe 0.5-1.5 band.
type VoiceProfile struct {
	Pitch       float64            `json:"pitch"`
	Speed       float64            `json:"speed"`
	Energy      float64            `json:"energy"`
	Gender      string             `json:"gender"`
	Age         string             `json:"age"`
	Tone        string             `json:"tone"`
	Accent      string             `json:"accent"`
	EmotionBias map[string]float64 `json:"emotion_bias,omitempty"`
	SpeakerID   int                `json:"speaker_id"`
}

// Normalize fills absent numeric fields with 1.0, clamps them to 0.5-1.5,
// and clamps emotion bias weights to [0,1].
func (p *VoiceProfile) Normalize() {
	p.Pitch = clampParam(p.Pitch)
	p.Speed = clampParam(p.Speed)
	p.Energy = clampParam(p.Energy)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	p.Age = strings.ToLower(strings.TrimSpace(p.Age))
	for k, v := range p.EmotionBias {
		if v < 0 {
			p.EmotionBias[k] = 0
		} else if v > 1 {
			p.EmotionBias[k] = 1
		}
	}
}

// Completeness counts how many fields carry real (non-default) information.
// Merging prefers the profile with the higher count.
func (p VoiceProfile) Completeness() int {
	n := 0
	if p.Pitch != 0 && p.Pitch != 1.0 {
		n++
	}
	if p.Speed != 0 && p.Speed != 1.0 {
		n++
	}
	if p.Energy != 0 && p.Energy != 1.0 {
		n++
	}
	if p.Gender != "" {
		n++
	}
	if p.Age != "" {
		n++
	}
	if p.Tone != "" {
		n++
	}
	if p.Accent != "" && p.Accent != "neutral" {
		n++
	}
	if len(p.EmotionBias) > 0 {
		n++
	}
	if p.SpeakerID > 0 {
		n++
	}
	return n
}

func clampParam(v float64) float64 {
	if v == 0 {
		return 1.0
	}
	if v < 0.5 {
		return 0.5
	}
	if v > 1.5 {
		return 1.5
	}
	return v
}

// Character is the running, merged record for one story character. Profile
// stays nil until a voice pass produces one, so merging can tell "no profile
// yet" from "all defaults".
type Character struct {
	Name        string         `json:"name"`
	Variants    []string       `json:"variants,omitempty"`
	Pages       []int          `json:"pages"`
	Dialogue    []DialogueLine `json:"dialogue"`
	Traits      []string       `json:"traits,omitempty"`
	Personality string         `json:"personality,omitempty"`
	Profile     *VoiceProfile  `json:"voice_profile,omitempty"`
	SpeakerID   int            `json:"speaker_id"`
}

// FirstPage returns the earliest page the character appears on, or 0 when
// the character has no recorded pages.
func (c *Character) FirstPage() int {
	if len(c.Pages) == 0 {
		return 0
	}
	first := c.Pages[0]
	for _, p := range c.Pages[1:] {
		if p < first {
			first = p
		}
	}
	return first
}

// OnPage reports whether the character is known to appear on the given page.
func (c *Character) OnPage(page int) bool {
	for _, p := range c.Pages {
		if p == page {
			return true
		}
	}
	return false
}
