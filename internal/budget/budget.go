package budget

import "strings"

const (
	// ContextCeiling is the model context window every pass must fit inside.
	ContextCeiling = 4096
	// CharsPerToken is the empirical characters-per-token ratio for English prose.
	CharsPerToken = 4
)

// Budget allocates the context window for one pass: fixed prompt scaffolding,
// variable input text, and reserved generation headroom, all in tokens.
type Budget struct {
	Prompt int
	Input  int
	Output int
}

// Per-pass allocations. Input sizes mirror the page (10000 chars) and
// aggregated-context (6000 chars) limits the prompts were tuned for.
var (
	Names       = Budget{Prompt: 340, Input: 2500, Output: 256}
	Dialogue    = Budget{Prompt: 460, Input: 2500, Output: 1024}
	Traits      = Budget{Prompt: 420, Input: 2500, Output: 256}
	Personality = Budget{Prompt: 300, Input: 1500, Output: 256}
	Voice       = Budget{Prompt: 560, Input: 1500, Output: 384}
)

// Total returns the summed token allocation.
func (b Budget) Total() int {
	return b.Prompt + b.Input + b.Output
}

// Valid reports whether the allocation fits the context ceiling.
func (b Budget) Valid() bool {
	return b.Total() <= ContextCeiling
}

// InputChars converts the input-token allocation to a character ceiling.
func (b Budget) InputChars() int {
	return b.Input * CharsPerToken
}

// EstimateTokens approximates the token count of a text.
func EstimateTokens(text string) int {
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// Fit truncates text to the budget's input-character ceiling. It prefers a
// paragraph boundary; if that would discard more than 10% of the available
// budget it falls back to the last sentence end, then the last word break,
// and finally a hard character cut when the text has neither. Always returns
// valid text, possibly empty for empty input.
func Fit(text string, b Budget) string {
	return Truncate(text, b.InputChars())
}

// Truncate applies the Fit policy against an explicit character limit.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}

	window := text[:limit]

	// Paragraph boundary, unless it costs more than 10% of the budget.
	if cut := strings.LastIndex(window, "\n\n"); cut >= limit-limit/10 {
		return strings.TrimRight(window[:cut], "\n")
	}

	if cut := lastSentenceEnd(window); cut > 0 {
		return strings.TrimSpace(window[:cut])
	}

	if cut := strings.LastIndexByte(window, ' '); cut > 0 {
		return strings.TrimSpace(window[:cut])
	}

	return window
}

// lastSentenceEnd finds the index just past the last sentence-ending
// punctuation mark that is followed by whitespace, a quote, or the window end.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			if i+1 >= len(s) || isSentenceBreak(s[i+1]) {
				return i + 1
			}
		}
	}
	return -1
}

func isSentenceBreak(c byte) bool {
	switch c {
	case ' ', '\n', '\t', '"', '\'', ')':
		return true
	}
	return false
}
