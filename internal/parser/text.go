package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/djsydney04/wrapshot/internal/document"
)

// TextParser handles plain text files. Form feeds count as page breaks.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	b := document.NewBuilder(document.TitleFromFilename(filename))
	pages := pageCounter{}
	for scanner.Scan() {
		segments := strings.Split(scanner.Text(), "\f")
		for i, seg := range segments {
			if i > 0 {
				b.EndParagraph()
				pages.breakPage()
			}
			if strings.TrimSpace(seg) != "" {
				pages.content()
			}
			b.Line(seg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pages.n > 1 {
		b.SetPageCount(pages.n)
	}
	return b.Document(), nil
}

// pageCounter counts pages that carry text, so a trailing break adds nothing.
type pageCounter struct {
	n       int
	pending bool
}

func (c *pageCounter) breakPage() { c.pending = true }

func (c *pageCounter) content() {
	if c.n == 0 || c.pending {
		c.n++
		c.pending = false
	}
}
