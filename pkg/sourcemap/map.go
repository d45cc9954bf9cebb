// Package sourcemap extracts inline source maps from served scripts and HTML
// documents and answers position lookups against them.
//
// Only inline maps are supported: a data URL comment of the form
//
//	//# sourceMappingURL=data:application/json;base64,<payload>
//
// The last such comment in a resource wins. External map files referenced
// by URL are ignored.
//
// All positions exchanged with this package are 1-based in both line and
// column, matching stack traces. The decoder works with 0-based generated
// columns internally; [Map.Lookup] converts.
package sourcemap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-sourcemap/sourcemap"

	"github.com/matzehuels/stackmap/pkg/stack"
)

// Marker precedes the base64 payload of an inline source map.
const Marker = "//# sourceMappingURL=data:application/json;base64,"

// Map is a decoded source map for one generated resource.
type Map struct {
	// URL is the generated resource the map was embedded in.
	URL string

	// Sources are the original file names as declared.
	Sources []string

	// SourcesContent holds embedded original text, aligned with Sources.
	// Nil elements mean the text was not embedded.
	SourcesContent []*string

	consumer *sourcemap.Consumer
}

// Lookup maps a generated position to its original position. It reports
// false when the map has no segment covering the position.
func (m *Map) Lookup(line, column int) (stack.Position, bool) {
	if m == nil || m.consumer == nil || line < 1 {
		return stack.Position{}, false
	}
	col := column - 1
	if col < 0 {
		col = 0
	}
	source, _, srcLine, srcCol, ok := m.consumer.Source(line, col)
	if !ok || (source == "" && srcLine == 0) {
		return stack.Position{}, false
	}
	return stack.Position{Source: source, Line: srcLine, Column: srcCol + 1}, true
}

// Extract locates the last inline map comment in data and decodes its
// base64 payload. found is false when data carries no marker; err is set
// when a marker exists but its payload is not valid base64.
func Extract(data []byte) (payload []byte, found bool, err error) {
	idx := bytes.LastIndex(data, []byte(Marker))
	if idx < 0 {
		return nil, false, nil
	}
	encoded := data[idx+len(Marker):]
	encoded = encoded[:base64Len(encoded)]
	if len(encoded) == 0 {
		return nil, true, fmt.Errorf("empty source map payload")
	}

	payload, err = base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		var rawErr error
		payload, rawErr = base64.RawStdEncoding.DecodeString(string(bytes.TrimRight(encoded, "=")))
		if rawErr != nil {
			return nil, true, fmt.Errorf("decode base64 payload: %w", err)
		}
	}
	return payload, true, nil
}

// base64Len returns the length of the leading run of base64 alphabet bytes.
// The payload ends at the first byte outside it, such as the newline or
// closing script tag that follows the comment.
func base64Len(b []byte) int {
	for i, c := range b {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '+', c == '/', c == '=':
		default:
			return i
		}
	}
	return len(b)
}

// rawMap is the subset of the version 3 format validated before decoding.
type rawMap struct {
	Version        int               `json:"version"`
	Sources        *[]string         `json:"sources"`
	SourcesContent []*string         `json:"sourcesContent"`
	Mappings       *string           `json:"mappings"`
	Sections       []json.RawMessage `json:"sections"`
}

func (r *rawMap) validate() error {
	if r.Version != 3 {
		return fmt.Errorf("unsupported source map version %d", r.Version)
	}
	if len(r.Sections) > 0 {
		return nil
	}
	if r.Sources == nil {
		return fmt.Errorf("source map has no sources")
	}
	if r.Mappings == nil {
		return fmt.Errorf("source map has no mappings")
	}
	if len(r.SourcesContent) > len(*r.Sources) {
		return fmt.Errorf("source map has %d sourcesContent entries for %d sources",
			len(r.SourcesContent), len(*r.Sources))
	}
	return nil
}

// Parse decodes a JSON source map payload embedded in the resource at url.
func Parse(url string, payload []byte) (*Map, error) {
	var raw rawMap
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode source map json: %w", err)
	}
	if err := raw.validate(); err != nil {
		return nil, err
	}

	// Sources are kept as declared, so no map URL is passed for resolution.
	consumer, err := sourcemap.Parse("", payload)
	if err != nil {
		return nil, fmt.Errorf("build source map: %w", err)
	}

	m := &Map{URL: url, SourcesContent: raw.SourcesContent, consumer: consumer}
	if raw.Sources != nil {
		m.Sources = *raw.Sources
	}
	return m, nil
}
