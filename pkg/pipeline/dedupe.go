package pipeline

import (
	"maps"
	"slices"

	"github.com/matzehuels/stackmap/pkg/stack"
)

// WorkingSet is the deduplicated input of a run.
type WorkingSet struct {
	// Keys are the distinct trace strings in first-appearance order.
	Keys []string

	// Frames holds the filtered, normalized frames of each key.
	Frames map[string][]stack.Frame

	// URLs are the distinct frame files in first-appearance order.
	URLs []string

	// Dropped counts frames removed by the filter across unique traces.
	Dropped int
}

// Dedupe parses every distinct trace in traces exactly once. Observations are
// walked in ascending id order and each list in order, so Keys and URLs are
// deterministic for a given input.
func Dedupe(traces GrowthStackTraces, parse ParseFunc, filter *stack.Filter) *WorkingSet {
	if parse == nil {
		parse = stack.Parse
	}
	ws := &WorkingSet{Frames: make(map[string][]stack.Frame)}
	seenURL := make(map[string]bool)

	for _, id := range slices.Sorted(maps.Keys(traces)) {
		for _, trace := range traces[id] {
			if _, ok := ws.Frames[trace]; ok {
				continue
			}
			frames, dropped := filter.Apply(parse(trace))
			ws.Keys = append(ws.Keys, trace)
			ws.Frames[trace] = frames
			ws.Dropped += dropped

			for _, f := range frames {
				if f.HasFile() && !seenURL[f.File] {
					seenURL[f.File] = true
					ws.URLs = append(ws.URLs, f.File)
				}
			}
		}
	}
	return ws
}
