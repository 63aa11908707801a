package scenes

import (
	"math"
	"strconv"
	"strings"
)

const (
	minEighths = 1
	maxEighths = 64
)

// timeOfDayWords is checked in order; the first word found in the raw value wins.
var timeOfDayWords = []struct {
	word  string
	value TimeOfDay
}{
	{"CONTINUOUS", Continuous},
	{"LATER", Later},
	{"DAWN", Dawn},
	{"SUNRISE", Dawn},
	{"DUSK", Dusk},
	{"SUNSET", Dusk},
	{"MORNING", Morning},
	{"AFTERNOON", Afternoon},
	{"EVENING", Evening},
	{"NIGHT", Night},
	{"DAY", Day},
}

// NormalizeSceneNumber trims raw. When nothing is left it returns fallback as
// a string and reports the number as synthetic.
func NormalizeSceneNumber(raw string, fallback int) (string, bool) {
	if n := strings.TrimSpace(raw); n != "" {
		return n, false
	}
	return strconv.Itoa(fallback), true
}

// ClassifyIntExt maps a free-text marker to INT, EXT or BOTH.
func ClassifyIntExt(raw string) IntExt {
	v := strings.ToUpper(strings.TrimSpace(raw))
	v = strings.TrimSuffix(v, ".")
	switch {
	case v == "EXT":
		return Exterior
	case strings.Contains(v, "/"), v == "BOTH", v == "I/E", v == "INT/EXT":
		return Both
	default:
		return Interior
	}
}

// MatchTimeOfDay returns the highest-priority vocabulary word in raw, or DAY.
func MatchTimeOfDay(raw string) TimeOfDay {
	v := strings.ToUpper(raw)
	for _, w := range timeOfDayWords {
		if strings.Contains(v, w.word) {
			return w.value
		}
	}
	return Day
}

// NormalizeEighths rounds a length in eighths to a whole number in [1,64].
func NormalizeEighths(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return minEighths
	}
	r := math.Round(v)
	if r < minEighths {
		return minEighths
	}
	if r > maxEighths {
		return maxEighths
	}
	return int(r)
}

// TranslatePage converts a chunk-local page to a global one. A missing or
// non-positive local page yields nil.
func TranslatePage(local *int, firstPage int) *int {
	if local == nil || *local < 1 {
		return nil
	}
	g := *local + max(firstPage, 1) - 1
	return &g
}

// NormalizeCandidate validates one candidate against its chunk's first page.
// fallback is the 1-based position the scene would take among accepted
// candidates. It reports false when the candidate has no set name.
func NormalizeCandidate(c Candidate, firstPage, fallback int) (Scene, bool) {
	set := strings.TrimSpace(c.SetName)
	if set == "" {
		return Scene{}, false
	}

	number, synthetic := NormalizeSceneNumber(c.SceneNumber, fallback)

	start := 0
	if p := TranslatePage(c.StartPage, firstPage); p != nil {
		start = *p
	} else if firstPage >= 1 {
		start = firstPage
	}
	end := start
	if p := TranslatePage(c.EndPage, firstPage); p != nil {
		end = *p
	}
	if end < start {
		end = start
	}

	chars := make([]string, 0, len(c.Characters))
	for _, name := range c.Characters {
		if n := strings.ToUpper(strings.TrimSpace(name)); n != "" {
			chars = append(chars, n)
		}
	}

	return Scene{
		Number:     number,
		IntExt:     ClassifyIntExt(c.IntExt),
		SetName:    set,
		TimeOfDay:  MatchTimeOfDay(c.TimeOfDay),
		Eighths:    NormalizeEighths(c.Eighths),
		Synopsis:   strings.TrimSpace(c.Synopsis),
		Characters: chars,
		StartPage:  start,
		EndPage:    end,
		Synthetic:  synthetic,
	}, true
}
