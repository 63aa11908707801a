package chunker

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrNoContent is returned when the input has no non-whitespace text.
var ErrNoContent = errors.New("no content")

// Config controls chunking behavior. All sizes are in characters (runes).
type Config struct {
	MinChars     int // Smallest chunk worth emitting on its own.
	MaxChars     int // Upper bound a chunk may reach unless a single unit is larger.
	CharsPerPage int // Page estimation heuristic.
}

// DefaultConfig returns sensible defaults for feature-length scripts.
func DefaultConfig() Config {
	return Config{
		MinChars:     4000,
		MaxChars:     12000,
		CharsPerPage: 1800,
	}
}

// Chunk is a bounded slice of script text with its estimated page range.
type Chunk struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Offset    int    `json:"offset"` // Rune offset of Text within the normalized document.
	FirstPage int    `json:"first_page"`
	LastPage  int    `json:"last_page"`
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// unit is an indivisible run of text: a paragraph or a scene heading block.
type unit struct {
	text   string
	offset int
	size   int
}

const separator = "\n\n"

// sceneHeadingRe matches slug lines such as "INT. KITCHEN - NIGHT" or "12A EXT. ROOF".
var sceneHeadingRe = regexp.MustCompile(`^(?:[0-9]+[A-Z]?\.?\s+)?(?:INT\.?\s*/\s*EXT|EXT\.?\s*/\s*INT|I/E|INT|EXT|EST)[.\s]`)

// IsSceneHeading reports whether a line looks like a screenplay scene heading.
func IsSceneHeading(line string) bool {
	return sceneHeadingRe.MatchString(strings.TrimSpace(line) + " ")
}

// Normalize canonicalizes line endings and strips trailing whitespace so
// offsets are stable.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// EstimatePages returns the page count implied by charsPerPage, at least 1.
func EstimatePages(text string, charsPerPage int) int {
	if charsPerPage <= 0 {
		charsPerPage = DefaultConfig().CharsPerPage
	}
	n := utf8.RuneCountInString(Normalize(text))
	pages := (n + charsPerPage - 1) / charsPerPage
	if pages < 1 {
		pages = 1
	}
	return pages
}

// CharsPerPageFor derives the heuristic from a known page count, falling back
// when the count is unknown.
func CharsPerPageFor(text string, pageCount, fallback int) int {
	if pageCount <= 0 {
		return fallback
	}
	n := utf8.RuneCountInString(Normalize(text))
	cpp := (n + pageCount - 1) / pageCount
	if cpp < 1 {
		return fallback
	}
	return cpp
}

// Split splits text into ordered chunks on paragraph and scene-heading
// boundaries. Identical input and configuration always yield identical chunks.
func Split(text string, cfg Config) ([]Chunk, error) {
	def := DefaultConfig()
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.MinChars <= 0 || cfg.MinChars > cfg.MaxChars {
		cfg.MinChars = min(def.MinChars, cfg.MaxChars)
	}
	if cfg.CharsPerPage <= 0 {
		cfg.CharsPerPage = def.CharsPerPage
	}

	text = Normalize(text)
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoContent
	}

	units := splitUnits(text)
	groups := pack(units, cfg)

	chunks := make([]Chunk, 0, len(groups))
	for i, g := range groups {
		first := g[0]
		last := g[len(g)-1]
		end := last.offset + last.size

		parts := make([]string, len(g))
		for j, u := range g {
			parts[j] = u.text
		}

		chunks = append(chunks, Chunk{
			Index:     i,
			Text:      strings.Join(parts, separator),
			Offset:    first.offset,
			FirstPage: pageAt(first.offset, cfg.CharsPerPage),
			LastPage:  pageAt(max(end-1, first.offset), cfg.CharsPerPage),
		})
	}
	return chunks, nil
}

// pack greedily fills chunks up to MaxChars. A unit that alone exceeds the
// maximum becomes its own chunk. A trailing chunk shorter than MinChars
// borrows units from the end of its predecessor while both stay in bounds.
func pack(units []unit, cfg Config) [][]unit {
	var groups [][]unit
	var current []unit
	size := 0

	for _, u := range units {
		if len(current) > 0 && size+len(separator)+u.size > cfg.MaxChars {
			groups = append(groups, current)
			current = nil
			size = 0
		}
		if len(current) > 0 {
			size += len(separator)
		}
		current = append(current, u)
		size += u.size
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	if n := len(groups); n > 1 {
		prev, tail := groups[n-2], groups[n-1]
		for groupSize(tail) < cfg.MinChars && len(prev) > 1 {
			moved := prev[len(prev)-1]
			if groupSize(prev[:len(prev)-1]) < cfg.MinChars ||
				moved.size+len(separator)+groupSize(tail) > cfg.MaxChars {
				break
			}
			prev = prev[:len(prev)-1]
			tail = append([]unit{moved}, tail...)
		}
		groups[n-2], groups[n-1] = prev, tail
	}
	return groups
}

func groupSize(g []unit) int {
	size := 0
	for i, u := range g {
		if i > 0 {
			size += len(separator)
		}
		size += u.size
	}
	return size
}

// splitUnits breaks normalized text into paragraphs. Blank lines end a unit,
// and a scene heading always starts a new one.
func splitUnits(text string) []unit {
	var units []unit
	var lines []string
	start := -1
	offset := 0

	flush := func() {
		if len(lines) == 0 {
			return
		}
		t := strings.Join(lines, "\n")
		units = append(units, unit{text: t, offset: start, size: utf8.RuneCountInString(t)})
		lines = nil
		start = -1
	}

	for _, line := range strings.Split(text, "\n") {
		lineLen := utf8.RuneCountInString(line)
		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			if IsSceneHeading(line) {
				flush()
			}
			if start < 0 {
				start = offset
			}
			lines = append(lines, line)
		}
		offset += lineLen + 1
	}
	flush()
	return units
}

func pageAt(offset, charsPerPage int) int {
	return offset/charsPerPage + 1
}
