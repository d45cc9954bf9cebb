package stack

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// v8FrameRe matches one V8 frame line: "    at <body>".
	v8FrameRe = regexp.MustCompile(`^\s*at\s+(.*)$`)

	// locationRe splits "<file>:<line>[:<column>]".
	locationRe = regexp.MustCompile(`^(.*?):(\d+)(?::(\d+))?$`)

	// geckoEvalRe collapses SpiderMonkey's eval chains to the outer line.
	geckoEvalRe = regexp.MustCompile(` line (\d+)(?: > eval line \d+)* > eval:\d+:\d+`)

	// headerRe matches the "TypeError: message" line that precedes frames.
	headerRe = regexp.MustCompile(`^\s*[\w$.]*(Error|Exception)\b`)
)

// Parse splits a raw stack trace into frames, outermost call last.
// It never fails: unrecognized frame lines become frames without a file.
func Parse(trace string) []Frame {
	lines := strings.Split(strings.ReplaceAll(trace, "\r\n", "\n"), "\n")
	if isV8(lines) {
		return parseV8(lines)
	}
	return parseGecko(lines)
}

func isV8(lines []string) bool {
	for _, l := range lines {
		if v8FrameRe.MatchString(l) {
			return true
		}
	}
	return false
}

func parseV8(lines []string) []Frame {
	var frames []Frame
	for _, l := range lines {
		m := v8FrameRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		body := strings.TrimSpace(m[1])
		fn, loc := splitV8(body)

		// "eval at outer (url:1:2), <anonymous>:3:4": keep the innermost part.
		if strings.HasPrefix(loc, "eval at ") {
			if i := strings.LastIndex(loc, ", "); i >= 0 {
				loc = loc[i+2:]
			} else {
				loc = ""
			}
		}

		f := Frame{Function: fn, Raw: strings.TrimSpace(l)}
		if file, line, col, ok := parseLocation(loc); ok {
			f.File, f.Line, f.Column = file, line, col
		} else if fn == "" {
			f.Function = body
		}
		frames = append(frames, f)
	}
	return frames
}

// splitV8 separates "fn (location)" into its parts. A body without a
// parenthesized suffix is a bare location.
func splitV8(body string) (fn, loc string) {
	if strings.HasSuffix(body, ")") {
		if i := strings.Index(body, " ("); i >= 0 {
			return body[:i], body[i+2 : len(body)-1]
		}
	}
	return "", body
}

func parseGecko(lines []string) []Frame {
	var frames []Frame
	for i, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || l == "[native code]" || l == "eval@" {
			continue
		}
		if i == 0 && !strings.Contains(l, "@") && headerRe.MatchString(l) {
			continue
		}
		if strings.Contains(l, " > eval") {
			l = geckoEvalRe.ReplaceAllString(l, ":$1")
		}

		f := Frame{Raw: l}
		loc := l
		if at := strings.Index(l, "@"); at >= 0 {
			f.Function = l[:at]
			loc = l[at+1:]
		} else if !strings.Contains(l, ":") {
			f.Function = l
			frames = append(frames, f)
			continue
		}
		if file, line, col, ok := parseLocation(loc); ok {
			f.File, f.Line, f.Column = file, line, col
		} else if f.Function == "" {
			f.Function = l
		}
		frames = append(frames, f)
	}
	return frames
}

func parseLocation(loc string) (file string, line, col int, ok bool) {
	m := locationRe.FindStringSubmatch(strings.TrimSpace(loc))
	if m == nil {
		return "", 0, 0, false
	}
	line, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		col, _ = strconv.Atoi(m[3])
	}
	file = m[1]
	if isAnonymous(file) {
		file = ""
	}
	return file, line, col, true
}

func isAnonymous(file string) bool {
	switch file {
	case "", "<anonymous>", "native", "eval", "[native code]":
		return true
	}
	return false
}
