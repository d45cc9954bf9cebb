package stack

import (
	"fmt"
	"net/url"
	"strings"
)

// evalMarker appears in the function name of frames produced by eval.
const evalMarker = "eval"

// Filter decides which frames belong to user code and normalizes their file
// references. A Filter is immutable and safe for concurrent use.
type Filter struct {
	agentMarker string
	base        *url.URL
}

// NewFilter creates a filter that resolves relative files against baseURL and
// drops frames mentioning agentMarker.
//
// An empty agentMarker disables marker matching; eval frames are still
// dropped. An empty baseURL leaves relative files untouched.
func NewFilter(baseURL, agentMarker string) (*Filter, error) {
	f := &Filter{agentMarker: agentMarker}
	if baseURL == "" {
		return f, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("base url %q is not absolute", baseURL)
	}
	f.base = u
	return f, nil
}

// Accept reports whether f is a user-code frame.
func (flt *Filter) Accept(f Frame) bool {
	if flt.hasMarker(f.File) || flt.hasMarker(f.Function) {
		return false
	}
	return !strings.Contains(f.Function, evalMarker)
}

func (flt *Filter) hasMarker(s string) bool {
	return flt.agentMarker != "" && s != "" && strings.Contains(s, flt.agentMarker)
}

// Normalize returns f with a relative file reference resolved against the
// base URL. Files that already start with an http(s) scheme, or that carry
// any other scheme, are returned unchanged.
func (flt *Filter) Normalize(f Frame) Frame {
	if f.File == "" || flt.base == nil {
		return f
	}
	if strings.HasPrefix(strings.ToLower(f.File), "http") {
		return f
	}
	ref, err := url.Parse(f.File)
	if err != nil || ref.IsAbs() {
		return f
	}
	return f.WithFile(flt.base.ResolveReference(ref).String())
}

// Apply filters and normalizes frames, preserving order. The second result
// is the number of frames dropped.
func (flt *Filter) Apply(frames []Frame) ([]Frame, int) {
	out := make([]Frame, 0, len(frames))
	for _, f := range frames {
		if !flt.Accept(f) {
			continue
		}
		out = append(out, flt.Normalize(f))
	}
	return out, len(frames) - len(out)
}
