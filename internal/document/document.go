package document

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"
)

// Document is the plain text of an uploaded script.
type Document struct {
	Title     string // From metadata or filename
	Text      string // Paragraphs separated by blank lines
	PageCount int    // Source page count, 0 when the format has no pages
}

// Builder accumulates paragraphs into a Document.
type Builder struct {
	title      string
	paragraphs []string
	current    []string
	pageCount  int
}

func NewBuilder(title string) *Builder {
	return &Builder{title: title}
}

// SetTitle replaces the title, ignoring blank values.
func (b *Builder) SetTitle(title string) {
	if t := strings.TrimSpace(title); t != "" {
		b.title = t
	}
}

// SetPageCount records the source page count.
func (b *Builder) SetPageCount(n int) {
	b.pageCount = n
}

// Line appends one line to the open paragraph. A blank line closes it.
func (b *Builder) Line(s string) {
	s = strings.TrimRight(s, " \t\r")
	if strings.TrimSpace(s) == "" {
		b.EndParagraph()
		return
	}
	b.current = append(b.current, s)
}

// EndParagraph closes the open paragraph, if any.
func (b *Builder) EndParagraph() {
	if len(b.current) == 0 {
		return
	}
	b.paragraphs = append(b.paragraphs, strings.Join(b.current, "\n"))
	b.current = nil
}

// Paragraph adds text as its own paragraph. Blank lines inside it split it.
func (b *Builder) Paragraph(text string) {
	b.EndParagraph()
	for _, line := range strings.Split(text, "\n") {
		b.Line(line)
	}
	b.EndParagraph()
}

// Document returns the accumulated document.
func (b *Builder) Document() *Document {
	b.EndParagraph()
	return &Document{
		Title:     b.title,
		Text:      strings.Join(b.paragraphs, "\n\n"),
		PageCount: b.pageCount,
	}
}

// TitleFromFilename strips directories and the extension.
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// IDFromText derives a stable document id from the text.
func IDFromText(text string) string {
	return "doc-" + ContentHashHex([]byte(text))[:16]
}
