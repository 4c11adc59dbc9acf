package merge

import (
	"sort"
	"strings"
	"unicode"

	"github.com/fablecast/dramatis/internal/character"
)

// maxNameLen caps accepted character names. Longer strings are model output
// that leaked prose into a name field.
const maxNameLen = 64

// Options controls how aggressively name variants are folded together.
type Options struct {
	// MaxNameDistance is the largest edit distance treated as the same name.
	MaxNameDistance int
	// MinFuzzyLen is the shortest name eligible for edit-distance matching.
	// Short names stay exact so Ana and Asa remain distinct.
	MinFuzzyLen int
}

// DefaultOptions returns the matching thresholds used by the pipeline.
func DefaultOptions() Options {
	return Options{MaxNameDistance: 2, MinFuzzyLen: 4}
}

// Accumulator folds per-batch extraction results into a single cast.
// The first-seen spelling of a name is canonical; later spellings become
// variants that resolve to the same character. Not safe for concurrent use.
type Accumulator struct {
	opts  Options
	chars []*character.Character
	index map[string]int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator(opts Options) *Accumulator {
	return &Accumulator{opts: opts, index: make(map[string]int)}
}

// Restore rebuilds an accumulator from previously merged characters, so a
// resumed run keeps resolving variants the same way the original run did.
func Restore(chars []character.Character, opts Options) *Accumulator {
	a := NewAccumulator(opts)
	for _, c := range chars {
		cc := c
		idx := len(a.chars)
		a.chars = append(a.chars, &cc)
		a.index[normalizeName(cc.Name)] = idx
		for _, v := range cc.Variants {
			if _, ok := a.index[normalizeName(v)]; !ok {
				a.index[normalizeName(v)] = idx
			}
		}
	}
	return a
}

// AddNames merges a batch of extracted names seen on the given page.
// New names create characters; known names gain the page and, when spelled
// differently, a variant.
func (a *Accumulator) AddNames(names []string, page int) {
	for _, raw := range names {
		name := cleanName(raw)
		if !validName(name) {
			continue
		}
		if idx, ok := a.resolve(name); ok {
			a.adopt(idx, name)
			addPage(a.chars[idx], page)
			continue
		}
		idx := len(a.chars)
		a.chars = append(a.chars, &character.Character{
			Name:  name,
			Pages: []int{page},
		})
		a.index[normalizeName(name)] = idx
	}
}

// AddDialogue appends a line to its speaker's dialogue. Lines are never
// deduplicated. Returns false when the speaker matches no known character.
func (a *Accumulator) AddDialogue(line character.DialogueLine) bool {
	name := cleanName(line.Speaker)
	if !validName(name) {
		return false
	}
	idx, ok := a.resolve(name)
	if !ok {
		return false
	}
	c := a.chars[idx]
	line.Speaker = c.Name
	c.Dialogue = append(c.Dialogue, line)
	if line.Page > 0 {
		addPage(c, line.Page)
	}
	return true
}

// AddTraits unions traits into the named character, case-insensitively,
// keeping the first-seen casing and at most character.MaxTraits entries.
func (a *Accumulator) AddTraits(name string, traits []string) {
	idx, ok := a.resolve(cleanName(name))
	if !ok {
		return
	}
	c := a.chars[idx]
	seen := make(map[string]bool, len(c.Traits))
	for _, t := range c.Traits {
		seen[strings.ToLower(t)] = true
	}
	for _, t := range traits {
		t = strings.TrimSpace(t)
		if t == "" || len(c.Traits) >= character.MaxTraits {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		c.Traits = append(c.Traits, t)
	}
}

// AddPersonality sets the named character's personality summary, replacing
// an existing one only when the new text says more.
func (a *Accumulator) AddPersonality(name, personality string) {
	idx, ok := a.resolve(cleanName(name))
	if !ok {
		return
	}
	personality = strings.TrimSpace(personality)
	if personality == "" {
		return
	}
	c := a.chars[idx]
	if len(personality) > len(c.Personality) {
		c.Personality = personality
	}
}

// SetProfile installs a voice profile, replacing an existing one only when
// the new profile is more complete.
func (a *Accumulator) SetProfile(name string, p character.VoiceProfile) {
	idx, ok := a.resolve(cleanName(name))
	if !ok {
		return
	}
	p.Normalize()
	c := a.chars[idx]
	if c.Profile == nil || p.Completeness() > c.Profile.Completeness() {
		c.Profile = &p
	}
}

// Resolve looks up a character by any known spelling of its name.
func (a *Accumulator) Resolve(name string) (*character.Character, bool) {
	idx, ok := a.resolve(cleanName(name))
	if !ok {
		return nil, false
	}
	return a.chars[idx], true
}

// Len reports how many distinct characters have been merged.
func (a *Accumulator) Len() int {
	return len(a.chars)
}

// Names returns canonical names in first-seen order.
func (a *Accumulator) Names() []string {
	names := make([]string, len(a.chars))
	for i, c := range a.chars {
		names[i] = c.Name
	}
	return names
}

// NamesOnPage returns canonical names of characters seen on the given page,
// in first-seen order.
func (a *Accumulator) NamesOnPage(page int) []string {
	var names []string
	for _, c := range a.chars {
		if c.OnPage(page) {
			names = append(names, c.Name)
		}
	}
	return names
}

// Characters returns merged characters ordered by first appearance, then
// name. The returned slice is a copy.
func (a *Accumulator) Characters() []character.Character {
	out := make([]character.Character, len(a.chars))
	for i, c := range a.chars {
		out[i] = *c
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].FirstPage(), out[j].FirstPage()
		if pi != pj {
			return pi < pj
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// resolve finds the character index for a cleaned name, trying exact match,
// known variants, whole-word containment, then bounded edit distance.
func (a *Accumulator) resolve(name string) (int, bool) {
	norm := normalizeName(name)
	if norm == "" {
		return 0, false
	}
	if idx, ok := a.index[norm]; ok {
		return idx, true
	}
	for idx, c := range a.chars {
		if containsWord(normalizeName(c.Name), norm) || containsWord(norm, normalizeName(c.Name)) {
			return idx, true
		}
	}
	if len([]rune(norm)) < a.opts.MinFuzzyLen {
		return 0, false
	}
	for idx, c := range a.chars {
		other := normalizeName(c.Name)
		if len([]rune(other)) < a.opts.MinFuzzyLen {
			continue
		}
		if editDistance(norm, other) <= a.opts.MaxNameDistance {
			return idx, true
		}
	}
	return 0, false
}

// adopt records a new spelling of an existing character's name.
func (a *Accumulator) adopt(idx int, name string) {
	norm := normalizeName(name)
	if _, ok := a.index[norm]; ok {
		return
	}
	a.index[norm] = idx
	a.chars[idx].Variants = append(a.chars[idx].Variants, name)
}

func addPage(c *character.Character, page int) {
	i := sort.SearchInts(c.Pages, page)
	if i < len(c.Pages) && c.Pages[i] == page {
		return
	}
	c.Pages = append(c.Pages, 0)
	copy(c.Pages[i+1:], c.Pages[i:])
	c.Pages[i] = page
}

// cleanName strips wrapping quotes and brackets and collapses whitespace,
// keeping the original casing for display.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	for len(name) >= 2 {
		first, last := name[0], name[len(name)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') ||
			(first == '[' && last == ']') || (first == '(' && last == ')') {
			name = strings.TrimSpace(name[1 : len(name)-1])
			continue
		}
		break
	}
	return strings.Join(strings.Fields(name), " ")
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validName(name string) bool {
	if name == "" || len(name) > maxNameLen {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// containsWord reports whether the shorter name appears as a whole-word
// subsequence of the longer, so Jax matches Jax Torran but not Jaxon.
func containsWord(longer, shorter string) bool {
	if shorter == "" || longer == shorter {
		return false
	}
	words := strings.Fields(longer)
	parts := strings.Fields(shorter)
	if len(parts) == 0 || len(parts) > len(words) {
		return false
	}
	for i := 0; i+len(parts) <= len(words); i++ {
		match := true
		for j := range parts {
			if words[i+j] != parts[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// editDistance is the Levenshtein distance over runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
