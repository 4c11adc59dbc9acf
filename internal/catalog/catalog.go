package catalog

import (
	"fmt"
	"hash/fnv"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fablecast/dramatis/internal/character"
)

// Additive match weights, highest first. Gender outweighs every other
// attribute combined so a female character never lands on a male voice just
// because the accent and pitch lined up. Keyword points cap at two so long
// trait lists cannot tip that balance either.
const (
	genderWeight  = 12
	ageWeight     = 4
	accentWeight  = 2
	pitchWeight   = 2
	keywordWeight = 1
	maxKeywordPts = 2
)

var validate = validator.New()

// Speaker is one catalog entry a character can be cast to.
type Speaker struct {
	ID       int      `yaml:"id" json:"id" validate:"gte=0"`
	Name     string   `yaml:"name,omitempty" json:"name,omitempty"`
	Gender   string   `yaml:"gender,omitempty" json:"gender,omitempty" validate:"omitempty,oneof=male female neutral"`
	Age      string   `yaml:"age,omitempty" json:"age,omitempty" validate:"omitempty,oneof=child young adult middle-aged elderly"`
	Accent   string   `yaml:"accent,omitempty" json:"accent,omitempty"`
	Pitch    string   `yaml:"pitch,omitempty" json:"pitch,omitempty" validate:"omitempty,oneof=low medium high"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Catalog is an ordered set of speakers. Order matters: it defines the tied
// candidate sequence the name hash indexes into.
type Catalog struct {
	speakers []Speaker
	byID     map[int]int
}

// New validates the entries and builds a catalog. Duplicate ids are
// rejected.
func New(speakers []Speaker) (*Catalog, error) {
	if len(speakers) == 0 {
		return nil, fmt.Errorf("catalog has no speakers")
	}
	byID := make(map[int]int, len(speakers))
	for i, sp := range speakers {
		if err := validate.Struct(sp); err != nil {
			return nil, fmt.Errorf("speaker %d invalid: %w", i, err)
		}
		if _, dup := byID[sp.ID]; dup {
			return nil, fmt.Errorf("duplicate speaker id %d", sp.ID)
		}
		byID[sp.ID] = i
	}
	return &Catalog{speakers: speakers, byID: byID}, nil
}

type catalogFile struct {
	Speakers []Speaker `yaml:"speakers"`
}

// LoadFile reads a YAML catalog, either a top-level speakers list or a bare
// sequence of entries.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil || len(file.Speakers) == 0 {
		var bare []Speaker
		if bareErr := yaml.Unmarshal(data, &bare); bareErr != nil {
			if err == nil {
				err = bareErr
			}
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
		file.Speakers = bare
	}
	return New(file.Speakers)
}

// Default returns the built-in catalog spanning the VCTK speaker id ranges.
func Default() *Catalog {
	var speakers []Speaker
	add := func(lo, hi int, gender, age, pitch string) {
		for id := lo; id <= hi; id++ {
			speakers = append(speakers, Speaker{
				ID:     id,
				Gender: gender,
				Age:    age,
				Accent: "neutral",
				Pitch:  pitch,
			})
		}
	}
	add(10, 30, "female", "young", "high")
	add(31, 50, "female", "adult", "medium")
	add(51, 70, "male", "young", "medium")
	add(71, 90, "male", "adult", "low")
	add(91, 108, "neutral", "elderly", "medium")

	c, err := New(speakers)
	if err != nil {
		panic(err)
	}
	return c
}

// Speakers returns all entries in catalog order.
func (c *Catalog) Speakers() []Speaker {
	return c.speakers
}

// Get returns the entry with the given id.
func (c *Catalog) Get(id int) (Speaker, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Speaker{}, false
	}
	return c.speakers[i], true
}

// Len reports the number of entries.
func (c *Catalog) Len() int {
	return len(c.speakers)
}

// Match picks the best speaker for a character. Scoring is additive per
// matching attribute; when several entries tie on the top score, the
// character's name hash selects one of them, so the same character always
// gets the same voice without every character getting the first entry.
func (c *Catalog) Match(name string, profile character.VoiceProfile, traits []string) (Speaker, bool) {
	if len(c.speakers) == 0 {
		return Speaker{}, false
	}

	gender := normalizeGender(profile.Gender)
	age := normalizeAge(profile.Age)
	accent := strings.ToLower(strings.TrimSpace(profile.Accent))
	pitch := pitchCategory(profile.Pitch)
	lowerTraits := lowerAll(traits)

	best := -1
	var tied []int
	for i, sp := range c.speakers {
		score := 0
		if gender != "" && gender == normalizeGender(sp.Gender) {
			score += genderWeight
		}
		if age != "" && age == normalizeAge(sp.Age) {
			score += ageWeight
		}
		if accent != "" && accent == strings.ToLower(sp.Accent) {
			score += accentWeight
		}
		if pitch != "" && pitch == sp.Pitch {
			score += pitchWeight
		}
		kwPts := 0
		for _, kw := range sp.Keywords {
			if containsKeyword(lowerTraits, kw) && kwPts < maxKeywordPts {
				kwPts += keywordWeight
			}
		}
		score += kwPts

		if score > best {
			best = score
			tied = tied[:0]
			tied = append(tied, i)
		} else if score == best {
			tied = append(tied, i)
		}
	}

	idx := tied[0]
	if len(tied) > 1 {
		idx = tied[int(nameHash(name))%len(tied)]
	}
	return c.speakers[idx], true
}

func nameHash(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	return h.Sum32()
}

func normalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "male", "man", "m":
		return "male"
	case "female", "woman", "f":
		return "female"
	case "neutral":
		return "neutral"
	default:
		return ""
	}
}

func normalizeAge(a string) string {
	switch strings.ToLower(strings.TrimSpace(a)) {
	case "child", "teen", "young", "boy", "girl":
		return "young"
	case "adult", "middle-aged", "middle aged":
		return "adult"
	case "elderly", "old", "aged", "senior":
		return "elderly"
	default:
		return ""
	}
}

// pitchCategory buckets a numeric pitch into the catalog's categories.
func pitchCategory(pitch float64) string {
	switch {
	case pitch == 0:
		return ""
	case pitch < 0.95:
		return "low"
	case pitch > 1.05:
		return "high"
	default:
		return "medium"
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func containsKeyword(traits []string, keyword string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return false
	}
	for _, t := range traits {
		if strings.Contains(t, keyword) {
			return true
		}
	}
	return false
}
