package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// DefaultPageSize is the character ceiling for one synthesized page.
const DefaultPageSize = 10000

// Document is an imported text ready for extraction: ordered pages plus a
// content hash that ties checkpoints to this exact text.
type Document struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Pages []string `json:"pages"`
	Hash  string   `json:"hash"`
}

// NewDocument splits raw text into pages and stamps a fresh id.
func NewDocument(title, text string, pageSize int) Document {
	pages := SplitPages(normalizeText(text), pageSize)
	return Document{
		ID:    uuid.NewString(),
		Title: title,
		Pages: pages,
		Hash:  ContentHash(pages),
	}
}

// PageCount reports the number of pages.
func (d Document) PageCount() int {
	return len(d.Pages)
}

// Load reads a document file, dispatching on its extension. PDF pages map
// to document pages directly; other formats are split at pageSize.
func Load(path string, pageSize int) (Document, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		pages, err := loadPDF(path, pageSize)
		if err != nil {
			return Document{}, err
		}
		return Document{
			ID:    uuid.NewString(),
			Title: title,
			Pages: pages,
			Hash:  ContentHash(pages),
		}, nil
	case ".docx":
		text, err := loadDOCX(path)
		if err != nil {
			return Document{}, err
		}
		return NewDocument(title, text, pageSize), nil
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("read %s: %w", path, err)
		}
		return NewDocument(title, string(data), pageSize), nil
	default:
		return Document{}, fmt.Errorf("unsupported document format: %s", ext)
	}
}

// SplitPages cuts text into pages of at most pageSize characters, breaking
// at a word boundary within the last tenth of each page when one exists.
func SplitPages(text string, pageSize int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if len(text) <= pageSize {
		return []string{text}
	}

	var pages []string
	start := 0
	for start < len(text) {
		end := min(start+pageSize, len(text))
		if end < len(text) {
			lookBack := pageSize / 10
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if text[i] == ' ' || text[i] == '\n' || text[i] == '\t' {
					end = i + 1
					break
				}
			}
		}
		page := strings.TrimSpace(text[start:end])
		if page != "" {
			pages = append(pages, page)
		}
		start = end
	}
	return pages
}

// ContentHash returns the hex SHA-256 of the pages joined with a form feed,
// so any edit to any page invalidates saved checkpoints.
func ContentHash(pages []string) string {
	sum := sha256.Sum256([]byte(strings.Join(pages, "\f")))
	return hex.EncodeToString(sum[:])
}

func loadPDF(path string, pageSize int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(normalizeText(text))
		if text == "" {
			continue
		}
		// Re-split the occasional oversized page so downstream budgets hold.
		pages = append(pages, SplitPages(text, pageSize)...)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	return pages, nil
}

func loadDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("read docx %s: %w", path, err)
	}
	defer r.Close()

	return scrubDocXML(r.Editable().GetContent()), nil
}

// scrubDocXML turns word-processing XML into plain text: paragraph closes
// become blank lines, tags drop, common entities unescape.
func scrubDocXML(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n\n")

	var b strings.Builder
	b.Grow(len(content))
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	out := b.String()
	out = strings.ReplaceAll(out, "&lt;", "<")
	out = strings.ReplaceAll(out, "&gt;", ">")
	out = strings.ReplaceAll(out, "&quot;", `"`)
	out = strings.ReplaceAll(out, "&apos;", "'")
	out = strings.ReplaceAll(out, "&amp;", "&")
	return out
}

// normalizeText unifies line endings and drops control characters that PDF
// extraction tends to leave behind.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, text)
}
