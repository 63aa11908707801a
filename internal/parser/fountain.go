package parser

import (
	"io"
	"regexp"
	"strings"

	"github.com/djsydney04/wrapshot/internal/document"
)

var (
	boneyardRe    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	noteRe        = regexp.MustCompile(`(?s)\[\[.*?\]\]`)
	titleKeyRe    = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*):\s*(.*)$`)
	sceneNumberRe = regexp.MustCompile(`\s*#([0-9A-Za-z.\-]+)#\s*$`)
	pageBreakRe   = regexp.MustCompile(`^\s*={3,}\s*$`)
)

// FountainParser handles Fountain screenplay markup. Markup is stripped down
// to the plain screenplay text; "===" page breaks give the page count.
type FountainParser struct{}

func (p *FountainParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(src), "\r\n", "\n")
	text = boneyardRe.ReplaceAllString(text, "")
	text = noteRe.ReplaceAllString(text, "")

	b := document.NewBuilder(document.TitleFromFilename(filename))
	lines := strings.Split(text, "\n")
	title, body := splitTitlePage(lines)
	b.SetTitle(title)

	pages := pageCounter{}
	breaks := 0
	for _, line := range body {
		trimmed := strings.TrimSpace(line)
		switch {
		case pageBreakRe.MatchString(line):
			b.EndParagraph()
			pages.breakPage()
			breaks++
			continue
		case strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, "="):
			// Sections and synopses are outline metadata.
			continue
		}
		if trimmed != "" {
			pages.content()
		}
		b.Line(fountainLine(line))
	}
	if breaks > 0 {
		b.SetPageCount(pages.n)
	}
	return b.Document(), nil
}

// splitTitlePage separates a leading "Key: value" block from the script body
// and returns the Title value.
func splitTitlePage(lines []string) (string, []string) {
	first := 0
	for first < len(lines) && strings.TrimSpace(lines[first]) == "" {
		first++
	}
	if first == len(lines) || !titleKeyRe.MatchString(lines[first]) {
		return "", lines
	}

	var title []string
	inTitle := false
	i := first
	for ; i < len(lines) && strings.TrimSpace(lines[i]) != ""; i++ {
		line := lines[i]
		if m := titleKeyRe.FindStringSubmatch(line); m != nil && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			inTitle = strings.EqualFold(strings.TrimSpace(m[1]), "title")
			if inTitle && strings.TrimSpace(m[2]) != "" {
				title = append(title, strings.TrimSpace(m[2]))
			}
			continue
		}
		if inTitle {
			title = append(title, strings.TrimSpace(line))
		}
	}
	return strings.Join(title, " "), lines[i:]
}

// fountainLine removes forcing characters and moves a trailing scene number
// to the front of its heading.
func fountainLine(line string) string {
	s := strings.TrimSpace(line)
	switch {
	case len(s) > 1 && s[0] == '.' && s[1] != '.':
		s = s[1:]
	case strings.HasPrefix(s, ">") && strings.HasSuffix(s, "<"):
		s = strings.TrimSpace(s[1 : len(s)-1])
	case strings.HasPrefix(s, ">"), strings.HasPrefix(s, "!"), strings.HasPrefix(s, "@"), strings.HasPrefix(s, "~"):
		s = strings.TrimSpace(s[1:])
	}
	if m := sceneNumberRe.FindStringSubmatchIndex(s); m != nil {
		number := s[m[2]:m[3]]
		s = number + " " + strings.TrimSpace(s[:m[0]])
	}
	return s
}
