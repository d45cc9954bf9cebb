// Package results defines where resolved frames and original source files
// go, and provides the in-memory aggregate used by default.
//
// A [Sink] hands out a [FrameID] for every registered frame. Stacks are then
// stored as short lists of ids instead of repeating frame data, since the
// same call site recurs across many observations.
package results

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"

	"github.com/matzehuels/stackmap/pkg/stack"
)

// FrameID is a handle for a registered frame, stable within one run.
type FrameID int

// Stack is a resolved stack trace, innermost frame first.
type Stack []FrameID

// GrowthStacks maps an observation id to its resolved stacks.
type GrowthStacks map[int][]Stack

// SourceFile is original source text recorded for display.
type SourceFile struct {
	// URL is the generated resource the text belongs to.
	URL string `json:"url"`

	// Source is the original file name declared by the source map. Empty
	// when Text is the resource itself.
	Source   string `json:"source,omitempty"`
	MIMEType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Sink receives resolution output. Implementations must be safe for
// concurrent AddSourceFile calls.
type Sink interface {
	AddSourceFile(ctx context.Context, f SourceFile) error
	AddFrame(ctx context.Context, f stack.ResolvedFrame) (FrameID, error)
}

type sourceKey struct{ url, source string }

// Results is the in-memory [Sink]. Identical frames share one id; ids are
// assigned sequentially from 0 in registration order.
type Results struct {
	mu      sync.Mutex
	frames  []stack.ResolvedFrame
	index   map[string]FrameID
	sources map[sourceKey]SourceFile
}

// New creates an empty Results.
func New() *Results {
	return &Results{
		index:   make(map[string]FrameID),
		sources: make(map[sourceKey]SourceFile),
	}
}

// AddSourceFile records f, replacing an earlier file with the same URL and
// source name.
func (r *Results) AddSourceFile(ctx context.Context, f SourceFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[sourceKey{f.URL, f.Source}] = f
	return nil
}

// AddFrame returns the id of f, registering it on first sight.
func (r *Results) AddFrame(ctx context.Context, f stack.ResolvedFrame) (FrameID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := f.Key()
	if id, ok := r.index[key]; ok {
		return id, nil
	}
	id := FrameID(len(r.frames))
	r.frames = append(r.frames, f)
	r.index[key] = id
	return id, nil
}

// Frame returns the frame registered as id.
func (r *Results) Frame(id FrameID) (stack.ResolvedFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || int(id) >= len(r.frames) {
		return stack.ResolvedFrame{}, false
	}
	return r.frames[id], true
}

// Frames returns all registered frames indexed by id.
func (r *Results) Frames() []stack.ResolvedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stack.ResolvedFrame{}, r.frames...)
}

// SourceFiles returns recorded files sorted by URL, then source.
func (r *Results) SourceFiles() []SourceFile {
	r.mu.Lock()
	files := make([]SourceFile, 0, len(r.sources))
	for _, f := range r.sources {
		files = append(files, f)
	}
	r.mu.Unlock()

	sort.Slice(files, func(i, j int) bool {
		if files[i].URL != files[j].URL {
			return files[i].URL < files[j].URL
		}
		return files[i].Source < files[j].Source
	})
	return files
}

// SourceFile returns the text recorded for url and source.
func (r *Results) SourceFile(url, source string) (SourceFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.sources[sourceKey{url, source}]
	return f, ok
}

// Expand maps ids back to frames. Unknown ids are skipped.
func (r *Results) Expand(s Stack) []stack.ResolvedFrame {
	out := make([]stack.ResolvedFrame, 0, len(s))
	for _, id := range s {
		if f, ok := r.Frame(id); ok {
			out = append(out, f)
		}
	}
	return out
}

// Export is the JSON document written by [Results.WriteJSON].
type Export struct {
	Stacks      GrowthStacks          `json:"stacks"`
	Frames      []stack.ResolvedFrame `json:"frames"`
	SourceFiles []SourceFile          `json:"sourceFiles"`
}

// WriteJSON writes the registered frames, source files and stacks to w.
func (r *Results) WriteJSON(w io.Writer, stacks GrowthStacks) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Export{
		Stacks:      stacks,
		Frames:      r.Frames(),
		SourceFiles: r.SourceFiles(),
	})
}

var _ Sink = (*Results)(nil)
