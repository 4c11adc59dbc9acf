package batch

import (
	"fmt"
	"strings"
	"testing"
)

func TestClean_CollapsesWhitespace(t *testing.T) {
	pages := []string{"Line one\n   continued  here\n\n\nNext\tpara"}

	paras := Clean(pages)

	if len(paras) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(paras))
	}
	if paras[0].Text != "Line one continued here" {
		t.Errorf("unexpected first paragraph: %q", paras[0].Text)
	}
	if paras[1].Text != "Next para" {
		t.Errorf("unexpected second paragraph: %q", paras[1].Text)
	}
}

func TestClean_StripsPageArtifacts(t *testing.T) {
	pages := []string{"The story begins.\n\n42\n\nPage 42\n\nIt continues."}

	paras := Clean(pages)

	if len(paras) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d: %v", len(paras), paras)
	}
	if paras[0].Text != "The story begins." {
		t.Errorf("unexpected first paragraph: %q", paras[0].Text)
	}
	if paras[1].Text != "It continues." {
		t.Errorf("unexpected second paragraph: %q", paras[1].Text)
	}
}

func TestClean_TracksSourcePages(t *testing.T) {
	pages := []string{"First page text.", "Second page text.\n\nMore on page two."}

	paras := Clean(pages)

	if len(paras) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", len(paras))
	}
	wantPages := []int{1, 2, 2}
	for i, want := range wantPages {
		if paras[i].Page != want {
			t.Errorf("paragraph %d: expected page %d, got %d", i, want, paras[i].Page)
		}
	}
}

func TestClean_CarriageReturns(t *testing.T) {
	pages := []string{"One.\r\n\r\nTwo."}

	paras := Clean(pages)

	if len(paras) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(paras))
	}
}

func TestBuild_PreservesContent(t *testing.T) {
	paras := makeParas(9, 40)
	batches := Build(paras, 120)

	if len(batches) == 0 {
		t.Fatal("expected at least one batch")
	}

	// Contiguity: batches tile the paragraph range with no gaps or overlap.
	next := 0
	for i, b := range batches {
		if b.Start != next {
			t.Errorf("batch %d: expected start %d, got %d", i, next, b.Start)
		}
		if b.End <= b.Start {
			t.Errorf("batch %d: empty range [%d,%d)", i, b.Start, b.End)
		}
		next = b.End
	}
	if next != len(paras) {
		t.Errorf("batches cover [0,%d), expected [0,%d)", next, len(paras))
	}

	// Every paragraph's text appears in its assigned batch.
	for _, b := range batches {
		for i := b.Start; i < b.End; i++ {
			if !strings.Contains(b.Text, paras[i].Text) {
				t.Errorf("paragraph %d missing from batch [%d,%d)", i, b.Start, b.End)
			}
		}
	}
}

func TestBuild_RespectsCeiling(t *testing.T) {
	paras := makeParas(20, 35)
	ceiling := 150

	for _, b := range Build(paras, ceiling) {
		if b.End-b.Start > 1 && len(b.Text) > ceiling {
			t.Errorf("multi-paragraph batch [%d,%d) has %d chars, ceiling %d", b.Start, b.End, len(b.Text), ceiling)
		}
	}
}

func TestBuild_OversizedParagraphAlone(t *testing.T) {
	paras := []Paragraph{
		{Text: "short one", Page: 1},
		{Text: strings.Repeat("x", 500), Page: 1},
		{Text: "short two", Page: 2},
	}

	batches := Build(paras, 100)

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if batches[1].Start != 1 || batches[1].End != 2 {
		t.Errorf("oversized paragraph in batch [%d,%d), expected [1,2)", batches[1].Start, batches[1].End)
	}
	if len(batches[1].Text) != 500 {
		t.Errorf("oversized batch has %d chars, expected 500 untruncated", len(batches[1].Text))
	}
}

func TestBuildFrom_KeepsGlobalIndices(t *testing.T) {
	paras := makeParas(10, 40)

	full := Build(paras, 120)
	resumed := BuildFrom(paras, 120, 3)

	if len(resumed) == 0 {
		t.Fatal("expected batches from resume point")
	}
	if resumed[0].Start != 3 {
		t.Errorf("expected resumed start 3, got %d", resumed[0].Start)
	}
	last := resumed[len(resumed)-1]
	if last.End != len(paras) {
		t.Errorf("expected resumed batches to end at %d, got %d", len(paras), last.End)
	}
	if full[len(full)-1].End != len(paras) {
		t.Errorf("full build ends at %d, expected %d", full[len(full)-1].End, len(paras))
	}
}

func TestBuildFrom_StartPastEnd(t *testing.T) {
	paras := makeParas(3, 20)

	if got := BuildFrom(paras, 100, 3); got != nil {
		t.Errorf("expected nil for exhausted start, got %d batches", len(got))
	}
	if got := BuildFrom(nil, 100, 0); got != nil {
		t.Errorf("expected nil for no paragraphs, got %d batches", len(got))
	}
}

func TestBuild_PagesSortedDistinct(t *testing.T) {
	paras := []Paragraph{
		{Text: "a", Page: 2},
		{Text: "b", Page: 1},
		{Text: "c", Page: 2},
	}

	batches := Build(paras, 1000)

	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	pages := batches[0].Pages
	if len(pages) != 2 || pages[0] != 1 || pages[1] != 2 {
		t.Errorf("expected pages [1 2], got %v", pages)
	}
}

func makeParas(n, size int) []Paragraph {
	paras := make([]Paragraph, n)
	for i := range paras {
		word := fmt.Sprintf("p%d ", i)
		paras[i] = Paragraph{
			Text: strings.TrimSpace(strings.Repeat(word, size/len(word)+1))[:size],
			Page: i/3 + 1,
		}
	}
	return paras
}
