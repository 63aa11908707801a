// Package scenes turns untrusted per-chunk scene candidates into one ordered,
// deduplicated breakdown.
package scenes

import (
	"errors"
	"time"
)

// ErrEmptyResult means no candidate survived normalization. A real script
// always has scenes, so callers treat this as a pipeline failure.
var ErrEmptyResult = errors.New("empty result")

// IntExt classifies a scene location.
type IntExt string

const (
	Interior IntExt = "INT"
	Exterior IntExt = "EXT"
	Both     IntExt = "BOTH"
)

// TimeOfDay is the closed vocabulary for scene timing.
type TimeOfDay string

const (
	Continuous TimeOfDay = "CONTINUOUS"
	Later      TimeOfDay = "LATER"
	Dawn       TimeOfDay = "DAWN"
	Dusk       TimeOfDay = "DUSK"
	Morning    TimeOfDay = "MORNING"
	Afternoon  TimeOfDay = "AFTERNOON"
	Evening    TimeOfDay = "EVENING"
	Night      TimeOfDay = "NIGHT"
	Day        TimeOfDay = "DAY"
)

// Candidate is a raw scene as reported for one chunk. Page values are local to
// the chunk and nil when the extraction omitted them.
type Candidate struct {
	SceneNumber string
	IntExt      string
	SetName     string
	TimeOfDay   string
	Eighths     float64
	Synopsis    string
	Characters  []string
	StartPage   *int
	EndPage     *int
}

// Batch carries the candidates extracted from a single chunk.
type Batch struct {
	ChunkIndex int
	FirstPage  int
	Candidates []Candidate
}

// Scene is a normalized breakdown entry. StartPage is 0 only when neither the
// candidate nor its chunk supplied a page.
type Scene struct {
	Number     string    `json:"scene_number"`
	IntExt     IntExt    `json:"int_ext"`
	SetName    string    `json:"set_name"`
	TimeOfDay  TimeOfDay `json:"time_of_day"`
	Eighths    int       `json:"page_eighths"`
	Synopsis   string    `json:"synopsis"`
	Characters []string  `json:"characters"`
	StartPage  int       `json:"start_page"`
	EndPage    int       `json:"end_page"`
	Synthetic  bool      `json:"synthetic_number,omitempty"`
}

// Result is the persisted breakdown for a document.
type Result struct {
	Scenes      []Scene   `json:"scenes"`
	TotalPages  int       `json:"total_pages"`
	TotalScenes int       `json:"total_scenes"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewResult wraps an ordered scene list with its totals.
func NewResult(list []Scene, totalPages int, at time.Time) Result {
	return Result{
		Scenes:      list,
		TotalPages:  totalPages,
		TotalScenes: len(list),
		GeneratedAt: at.UTC(),
	}
}
