package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a PDF has no extractable text layer.
var ErrNoText = errors.New("fundgraph: no text in PDF")

// Section is a headed block of text on one PDF page.
type Section struct {
	Heading    string `json:"heading,omitempty"`
	Content    string `json:"content"`
	PageNumber int    `json:"page_number"`
}

// Document is the text of a PDF, page by page.
type Document struct {
	Path     string
	Pages    int
	Sections []Section
}

// Text joins all sections with blank lines, headings included.
func (d *Document) Text() string {
	var b strings.Builder
	for i, s := range d.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if s.Heading != "" {
			b.WriteString(s.Heading)
			b.WriteByte('\n')
		}
		b.WriteString(s.Content)
	}
	return b.String()
}

// ReadPDF extracts the text of every page. Pages that fail to extract are
// skipped.
func ReadPDF(ctx context.Context, path string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	doc := &Document{Path: path, Pages: reader.NumPage()}
	for i := 1; i <= doc.Pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		doc.Sections = append(doc.Sections, splitPage(text, i)...)
	}
	if len(doc.Sections) == 0 {
		return doc, fmt.Errorf("%w: %s", ErrNoText, path)
	}
	doc.Sections = fixRunningHeaders(doc.Sections, doc.Pages)
	return doc, nil
}

// ExtractPDFText returns the plain text of the PDF at path.
func ExtractPDFText(ctx context.Context, path string) (string, error) {
	doc, err := ReadPDF(ctx, path)
	if err != nil {
		return "", err
	}
	return doc.Text(), nil
}

// splitPage breaks page text into sections at heading-like lines.
func splitPage(text string, pageNum int) []Section {
	var (
		sections []Section
		content  strings.Builder
		heading  string
	)
	flush := func() {
		if content.Len() == 0 {
			return
		}
		sections = append(sections, Section{
			Heading:    heading,
			Content:    strings.TrimSpace(content.String()),
			PageNumber: pageNum,
		})
		content.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isLikelyHeading(trimmed) {
			flush()
			heading = trimmed
			continue
		}
		if content.Len() > 0 {
			content.WriteByte('\n')
		}
		content.WriteString(trimmed)
	}
	flush()

	if len(sections) == 0 {
		sections = append(sections, Section{Heading: heading, Content: text, PageNumber: pageNum})
	}
	return sections
}

// isLikelyHeading reports short all-caps lines and numbered headings such as
// "1." or "2.3 Organe". Commercial register extracts also head sections with
// a trailing colon.
func isLikelyHeading(line string) bool {
	if len(line) > 2 && len(line) < 100 && line == strings.ToUpper(line) && strings.ToLower(line) != line {
		return true
	}
	if len(line) >= 120 {
		return false
	}
	if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") {
		return len(strings.Fields(line)) <= 8
	}
	return len(line) < 40 && strings.HasSuffix(line, ":")
}

// fixRunningHeaders replaces headings printed on many pages, such as the
// register office atop every page of an extract, with the last real heading
// before them. A heading is running when it appears on at least
// max(3, pages/4) distinct pages; until a real heading has been seen the
// running one is kept.
func fixRunningHeaders(sections []Section, pages int) []Section {
	if len(sections) == 0 {
		return sections
	}

	onPages := make(map[string]map[int]bool)
	for _, s := range sections {
		h := normalizeHeading(s.Heading)
		if h == "" {
			continue
		}
		if onPages[h] == nil {
			onPages[h] = make(map[int]bool)
		}
		onPages[h][s.PageNumber] = true
	}

	threshold := max(3, pages/4)
	last := ""
	for i := range sections {
		h := normalizeHeading(sections[i].Heading)
		if h == "" {
			continue
		}
		if len(onPages[h]) >= threshold {
			if last != "" {
				sections[i].Heading = last
			}
			continue
		}
		last = sections[i].Heading
	}
	return sections
}

// normalizeHeading trims spaces and the private-use or replacement glyphs
// that text extraction leaves at the end of headings.
func normalizeHeading(h string) string {
	return strings.TrimRightFunc(h, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.Is(unicode.Co, r) || r == unicode.ReplacementChar
	})
}
