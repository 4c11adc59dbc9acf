package batch

import (
	"sort"
	"strings"

	"github.com/fablecast/dramatis/internal/budget"
)

// separator joins a batch's paragraphs back into prompt text.
const separator = "\n\n"

// Paragraph is the smallest unit the batcher may split a document at: one
// whitespace-normalized run of text with no embedded blank lines, tagged with
// its 1-based source page.
type Paragraph struct {
	Text string
	Page int
}

// Batch is a contiguous run of paragraphs sized for one pass invocation.
// Start and End are global paragraph indices, half-open, so a batch's End
// equals the next batch's Start.
type Batch struct {
	Start  int
	End    int
	Text   string
	Tokens int
	Pages  []int
}

// Clean converts raw page texts into paragraphs. Blank lines delimit
// paragraphs, page-number artifacts are dropped, and runs of whitespace
// collapse to single spaces.
func Clean(pages []string) []Paragraph {
	var paras []Paragraph
	for i, page := range pages {
		pageNum := i + 1
		var current []string

		flush := func() {
			if len(current) == 0 {
				return
			}
			text := strings.Join(current, " ")
			current = nil
			if text != "" {
				paras = append(paras, Paragraph{Text: text, Page: pageNum})
			}
		}

		for _, line := range strings.Split(strings.ReplaceAll(page, "\r\n", "\n"), "\n") {
			line = strings.Join(strings.Fields(line), " ")
			if line == "" {
				flush()
				continue
			}
			if isPageArtifact(line) {
				continue
			}
			current = append(current, line)
		}
		flush()
	}
	return paras
}

// isPageArtifact reports whether a line is page furniture rather than prose:
// a bare page number or a "Page N" footer.
func isPageArtifact(line string) bool {
	if len(line) <= 4 && isDigits(line) {
		return true
	}
	lower := strings.ToLower(line)
	if rest, ok := strings.CutPrefix(lower, "page "); ok && isDigits(strings.TrimSpace(rest)) {
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Build groups paragraphs into ordered, contiguous batches whose joined text
// stays within ceiling characters. A single paragraph larger than the ceiling
// becomes its own over-budget batch rather than being truncated.
func Build(paras []Paragraph, ceiling int) []Batch {
	return BuildFrom(paras, ceiling, 0)
}

// BuildFrom builds batches starting at the given global paragraph index,
// keeping Start/End in original coordinates. Used when resuming a pass
// partway through a document.
func BuildFrom(paras []Paragraph, ceiling int, start int) []Batch {
	if start < 0 {
		start = 0
	}
	if start >= len(paras) {
		return nil
	}

	var batches []Batch
	runStart := start
	length := 0

	for i := start; i < len(paras); i++ {
		pLen := len(paras[i].Text)

		if i > runStart {
			joined := length + len(separator) + pLen
			if joined > ceiling {
				batches = append(batches, buildBatch(paras, runStart, i))
				runStart = i
				length = pLen
				continue
			}
			length = joined
			continue
		}
		length = pLen
	}

	batches = append(batches, buildBatch(paras, runStart, len(paras)))
	return batches
}

func buildBatch(paras []Paragraph, start, end int) Batch {
	texts := make([]string, 0, end-start)
	pageSet := make(map[int]bool)
	for _, p := range paras[start:end] {
		texts = append(texts, p.Text)
		pageSet[p.Page] = true
	}

	pages := make([]int, 0, len(pageSet))
	for p := range pageSet {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	text := strings.Join(texts, separator)
	return Batch{
		Start:  start,
		End:    end,
		Text:   text,
		Tokens: budget.EstimateTokens(text),
		Pages:  pages,
	}
}
