package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/djsydney04/wrapshot/internal/scenes"
)

var (
	// ErrNoObject means the response contained no decodable JSON object.
	ErrNoObject = errors.New("no JSON object in response")
	// ErrNoScenes means a JSON object was found but it had no scenes array.
	ErrNoScenes = errors.New("no scenes array in response")
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// rawScene is the wire shape of one scene. Field types are lenient because
// models mix numbers and strings freely.
type rawScene struct {
	SceneNumber flexString  `json:"scene_number"`
	IntExt      flexString  `json:"int_ext"`
	SetName     flexString  `json:"set_name"`
	TimeOfDay   flexString  `json:"time_of_day"`
	PageEighths flexEighths `json:"page_eighths"`
	Synopsis    flexString  `json:"synopsis"`
	Characters  flexList    `json:"characters"`
	StartPage   flexNumber  `json:"start_page"`
	EndPage     flexNumber  `json:"end_page"`
}

// ParseResponse locates the first JSON object carrying a "scenes" array in raw
// model output and decodes it. Surrounding prose and Markdown fences are ignored.
// Elements that fail to decode are skipped.
func ParseResponse(raw string) ([]scenes.Candidate, error) {
	candidates, _, err := parseResponse(raw)
	return candidates, err
}

// parseResponse is ParseResponse that also reports why each skipped element
// was rejected. It fails only when every element was rejected.
func parseResponse(raw string) ([]scenes.Candidate, []error, error) {
	text := strings.TrimSpace(raw)
	if m := codeBlockRe.FindStringSubmatch(text); len(m) > 1 && strings.Contains(m[1], "{") {
		text = m[1] + "\n" + text
	}

	found := false
	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := matchBrace(text, start)
		if end < 0 {
			start = nextBrace(text, start+1)
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
			start = nextBrace(text, start+1)
			continue
		}
		found = true

		if rawList, ok := findScenes(obj, 2); ok {
			return decodeScenes(rawList)
		}
		start = nextBrace(text, end+1)
	}

	if found {
		return nil, nil, ErrNoScenes
	}
	return nil, nil, ErrNoObject
}

// decodeScenes decodes each array element on its own so one badly typed scene
// does not discard its neighbours.
func decodeScenes(rawList json.RawMessage) ([]scenes.Candidate, []error, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(rawList, &items); err != nil {
		return nil, nil, fmt.Errorf("decode scenes: %w", err)
	}
	out := make([]scenes.Candidate, 0, len(items))
	var rejected []error
	for i, item := range items {
		var rs rawScene
		if err := json.Unmarshal(item, &rs); err != nil {
			rejected = append(rejected, fmt.Errorf("scene %d: %w", i, err))
			continue
		}
		out = append(out, rs.candidate())
	}
	if len(out) == 0 && len(rejected) > 0 {
		return nil, rejected, fmt.Errorf("decode scenes: all %d rejected: %w", len(rejected), rejected[0])
	}
	return out, rejected, nil
}

// findScenes looks for a non-null "scenes" array at the top level or inside
// nested objects, up to depth levels.
func findScenes(obj map[string]json.RawMessage, depth int) (json.RawMessage, bool) {
	if v, ok := obj["scenes"]; ok {
		v = bytes.TrimSpace(v)
		if len(v) > 0 && v[0] == '[' {
			return v, true
		}
	}
	if depth <= 1 {
		return nil, false
	}
	for _, v := range obj {
		var nested map[string]json.RawMessage
		if json.Unmarshal(v, &nested) != nil {
			continue
		}
		if list, ok := findScenes(nested, depth-1); ok {
			return list, true
		}
	}
	return nil, false
}

func nextBrace(s string, from int) int {
	if from >= len(s) {
		return -1
	}
	i := strings.IndexByte(s[from:], '{')
	if i < 0 {
		return -1
	}
	return from + i
}

// matchBrace returns the index of the brace closing the one at start, skipping
// braces inside JSON strings, or -1 if it is never closed.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (rs rawScene) candidate() scenes.Candidate {
	chars := make([]string, 0, len(rs.Characters))
	for _, c := range rs.Characters {
		chars = append(chars, string(c))
	}
	return scenes.Candidate{
		SceneNumber: string(rs.SceneNumber),
		IntExt:      string(rs.IntExt),
		SetName:     string(rs.SetName),
		TimeOfDay:   string(rs.TimeOfDay),
		Eighths:     float64(rs.PageEighths),
		Synopsis:    string(rs.Synopsis),
		Characters:  chars,
		StartPage:   rs.StartPage.page(),
		EndPage:     rs.EndPage.page(),
	}
}

// flexString accepts a string, a number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", truncate(string(b), 40))
		}
		*f = flexString(n.String())
	}
	return nil
}

// flexList accepts a list of strings, a single comma-separated string, or null.
type flexList []flexString

func (f *flexList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var items []flexString
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*f = items
		return nil
	}
	var s flexString
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = nil
	for _, part := range strings.Split(string(s), ",") {
		if part = strings.TrimSpace(part); part != "" {
			*f = append(*f, flexString(part))
		}
	}
	return nil
}

// flexNumber accepts a number, a numeric string or null. Unparseable strings
// decode as missing.
type flexNumber struct {
	v  float64
	ok bool
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*f = flexNumber{}
		return nil
	}
	*f = flexNumber{v: v, ok: true}
	return nil
}

func (f flexNumber) page() *int {
	if !f.ok {
		return nil
	}
	p := int(math.Round(f.v))
	return &p
}

// flexEighths is a page length in eighths. Besides numbers it accepts the
// screenplay notation "1 3/8" (pages and eighths) or "3/8".
type flexEighths float64

func (f *flexEighths) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = flexEighths(parseEighths(string(s)))
	return nil
}

func parseEighths(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	whole := 0.0
	frac := s
	if i := strings.IndexByte(s, ' '); i > 0 {
		w, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return 0
		}
		whole = w
		frac = strings.TrimSpace(s[i+1:])
	}
	num, den, ok := strings.Cut(frac, "/")
	if !ok {
		return 0
	}
	n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
	d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return whole*8 + n*8/d
}
