package scenes

import (
	"sort"
	"strings"
)

// Merge normalizes, deduplicates and orders the candidates of every batch.
// Batches are consumed in chunk order regardless of the order given.
func Merge(batches []Batch) ([]Scene, error) {
	ordered := make([]Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ChunkIndex < ordered[j].ChunkIndex
	})

	var normalized []Scene
	for _, b := range ordered {
		for _, c := range b.Candidates {
			s, ok := NormalizeCandidate(c, b.FirstPage, len(normalized)+1)
			if !ok {
				continue
			}
			normalized = append(normalized, s)
		}
	}

	out := Order(Dedupe(normalized))
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

// Dedupe keeps the first scene for each (number, set name) pair. Set names
// compare case-insensitively. Scenes with synthetic numbers are never keyed.
func Dedupe(list []Scene) []Scene {
	seen := make(map[string]struct{}, len(list))
	out := make([]Scene, 0, len(list))
	for _, s := range list {
		if !s.Synthetic {
			key := s.Number + "\x00" + strings.ToUpper(s.SetName)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, s)
	}
	return out
}

// Order stable-sorts by start page. Scenes without a start page go last.
func Order(list []Scene) []Scene {
	out := make([]Scene, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].StartPage, out[j].StartPage
		if a == 0 {
			return false
		}
		return b == 0 || a < b
	})
	return out
}
