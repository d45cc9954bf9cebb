package pipeline

import (
	"context"

	"github.com/matzehuels/stackmap/pkg/errors"
	"github.com/matzehuels/stackmap/pkg/results"
	"github.com/matzehuels/stackmap/pkg/sourcemap"
	"github.com/matzehuels/stackmap/pkg/stack"
)

// MapLookup returns the source map resolved for a URL, or nil when the URL
// has none. [sourcemap.Cache] implements it.
type MapLookup interface {
	Map(url string) *sourcemap.Map
}

// Converter translates frames to original positions and registers them with
// a sink. It performs no I/O of its own; maps must already be resolved.
type Converter struct {
	maps MapLookup
	sink results.Sink
}

// NewConverter creates a converter reading maps from maps.
func NewConverter(maps MapLookup, sink results.Sink) *Converter {
	return &Converter{maps: maps, sink: sink}
}

// Frame returns the resolved form of f. Frames without a file, without a
// map, or whose position the map does not cover keep their raw position.
func (c *Converter) Frame(f stack.Frame) stack.ResolvedFrame {
	if !f.HasFile() {
		return f.Unresolved()
	}
	m := c.maps.Map(f.File)
	if m == nil {
		return f.Unresolved()
	}
	pos, ok := m.Lookup(f.Line, f.Column)
	if !ok {
		return f.Unresolved()
	}
	return f.Resolve(pos)
}

// Convert resolves frames in order and returns their ids. The only errors
// are sink failures.
func (c *Converter) Convert(ctx context.Context, frames []stack.Frame) (results.Stack, error) {
	out := make(results.Stack, 0, len(frames))
	for _, f := range frames {
		id, err := c.sink.AddFrame(ctx, c.Frame(f))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSink, err, "register frame %s", f)
		}
		out = append(out, id)
	}
	return out, nil
}
