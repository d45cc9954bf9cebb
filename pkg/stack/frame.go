package stack

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame is one call site parsed from a raw stack trace.
type Frame struct {
	Function string `json:"functionName,omitempty"`
	File     string `json:"fileName,omitempty"`
	Line     int    `json:"lineNumber,omitempty"`
	Column   int    `json:"columnNumber,omitempty"`

	// Raw is the trace line the frame was parsed from.
	Raw string `json:"source,omitempty"`
}

// HasFile reports whether the frame references a resource.
func (f Frame) HasFile() bool { return f.File != "" }

// HasPosition reports whether the frame carries a line number.
func (f Frame) HasPosition() bool { return f.Line > 0 }

// WithFile returns a copy of f referencing file.
func (f Frame) WithFile(file string) Frame {
	f.File = file
	return f
}

// String formats the frame the way V8 prints it.
func (f Frame) String() string {
	loc := f.location()
	if f.Function == "" {
		return loc
	}
	if loc == "" {
		return f.Function
	}
	return fmt.Sprintf("%s (%s)", f.Function, loc)
}

func (f Frame) location() string {
	if f.File == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(f.File)
	if f.Line > 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
		if f.Column > 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.Column))
		}
	}
	return b.String()
}

// Position is a location in an original source file as reported by a
// source map.
type Position struct {
	Source string
	Line   int
	Column int
}

// ResolvedFrame is a frame whose position has been translated to original
// source coordinates where a source map allowed it.
type ResolvedFrame struct {
	Function string `json:"functionName,omitempty"`

	// File is the absolute URL of the generated resource.
	File   string `json:"fileName,omitempty"`
	Line   int    `json:"lineNumber,omitempty"`
	Column int    `json:"columnNumber,omitempty"`

	// Source is the original source file declared by the map. Empty when the
	// frame was not mapped.
	Source string `json:"originalSource,omitempty"`
	Mapped bool   `json:"mapped,omitempty"`
}

// Unresolved returns f as a resolved frame that keeps its raw position.
func (f Frame) Unresolved() ResolvedFrame {
	return ResolvedFrame{
		Function: f.Function,
		File:     f.File,
		Line:     f.Line,
		Column:   f.Column,
	}
}

// Resolve returns f rewritten to the original position pos.
func (f Frame) Resolve(pos Position) ResolvedFrame {
	return ResolvedFrame{
		Function: f.Function,
		File:     f.File,
		Line:     pos.Line,
		Column:   pos.Column,
		Source:   pos.Source,
		Mapped:   true,
	}
}

// Key returns a string identifying the frame's call site. Two frames with
// equal keys are the same logical frame.
func (f ResolvedFrame) Key() string {
	return strings.Join([]string{
		f.Function,
		f.File,
		strconv.Itoa(f.Line),
		strconv.Itoa(f.Column),
		f.Source,
	}, "\x00")
}
