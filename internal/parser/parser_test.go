package parser

import (
	"fmt"
	"strings"
	"testing"
)

func TestForFile(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"a.txt", "*parser.TextParser"},
		{"a.fountain", "*parser.FountainParser"},
		{"A.MD", "*parser.MarkdownParser"},
		{"a.markdown", "*parser.MarkdownParser"},
		{"a.html", "*parser.HTMLParser"},
		{"a.htm", "*parser.HTMLParser"},
		{"a.pdf", "*parser.PDFParser"},
		{"a.docx", "*parser.DOCXParser"},
	}
	for _, tt := range tests {
		p, err := ForFile(tt.filename, Options{})
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.filename, err)
			continue
		}
		if got := fmt.Sprintf("%T", p); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.filename, tt.want, got)
		}
		if !IsSupportedExtension(tt.filename) {
			t.Errorf("%s: expected supported", tt.filename)
		}
	}

	for _, name := range []string{"a.csv", "a.doc", "noext"} {
		if _, err := ForFile(name, Options{}); err == nil {
			t.Errorf("%s: expected unsupported extension error", name)
		}
		if IsSupportedExtension(name) {
			t.Errorf("%s: expected unsupported", name)
		}
	}
}

func TestForFile_PDFFallbackOption(t *testing.T) {
	p, err := ForFile("script.pdf", Options{PDFFallbackPdftotext: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pdf, ok := p.(*PDFParser); !ok || !pdf.FallbackPdftotext {
		t.Fatalf("expected PDF parser with fallback enabled, got %#v", p)
	}
}

func TestPDFParser_RejectsGarbage(t *testing.T) {
	p := &PDFParser{}
	if _, err := p.Parse(strings.NewReader("not a pdf"), "x.pdf"); err == nil {
		t.Fatal("expected error for invalid pdf")
	}
}
