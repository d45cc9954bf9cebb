package stack

import "testing"

func TestFilterAccept(t *testing.T) {
	flt, err := NewFilter("http://x/index.html", "bleak_agent")
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	tests := []struct {
		name  string
		frame Frame
		want  bool
	}{
		{"user frame", Frame{Function: "foo", File: "http://x/app.js", Line: 1}, true},
		{"agent file", Frame{Function: "foo", File: "http://x/bleak_agent.js", Line: 1}, false},
		{"agent function", Frame{Function: "bleak_agent$$wrap", File: "http://x/app.js"}, false},
		{"eval function", Frame{Function: "eval", Line: 1}, false},
		{"eval substring", Frame{Function: "doEvaluate"}, true},
		{"evaluate lower", Frame{Function: "reevaluate"}, false},
		{"no file", Frame{Function: "Array.forEach"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flt.Accept(tt.frame); got != tt.want {
				t.Errorf("Accept(%+v) = %v, want %v", tt.frame, got, tt.want)
			}
		})
	}
}

func TestFilterEmptyMarker(t *testing.T) {
	flt, err := NewFilter("", "")
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	if !flt.Accept(Frame{Function: "foo", File: "http://x/app.js"}) {
		t.Error("empty marker should not reject every frame")
	}
	if flt.Accept(Frame{Function: "eval"}) {
		t.Error("eval frames are rejected regardless of marker")
	}
}

func TestFilterNormalize(t *testing.T) {
	flt, err := NewFilter("http://x/pages/index.html", "agent")
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	tests := []struct {
		file string
		want string
	}{
		{"app.js", "http://x/pages/app.js"},
		{"/static/app.js", "http://x/static/app.js"},
		{"../lib.js", "http://x/lib.js"},
		{"http://cdn/app.js", "http://cdn/app.js"},
		{"HTTPS://cdn/app.js", "HTTPS://cdn/app.js"},
		{"node:internal/timers", "node:internal/timers"},
		{"", ""},
	}
	for _, tt := range tests {
		got := flt.Normalize(Frame{File: tt.file}).File
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestFilterNormalizeWithoutBase(t *testing.T) {
	flt, _ := NewFilter("", "agent")
	if got := flt.Normalize(Frame{File: "app.js"}).File; got != "app.js" {
		t.Errorf("Normalize without base = %q, want unchanged", got)
	}
}

func TestFilterApply(t *testing.T) {
	flt, _ := NewFilter("http://x/", "agent")
	frames := []Frame{
		{Function: "a", File: "a.js", Line: 1},
		{Function: "eval", Line: 1},
		{Function: "b", File: "http://x/agent.js", Line: 2},
		{Function: "c"},
	}
	got, dropped := flt.Apply(frames)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if len(got) != 2 || got[0].File != "http://x/a.js" || got[1].Function != "c" {
		t.Errorf("Apply() = %+v", got)
	}
	if frames[0].File != "a.js" {
		t.Error("Apply modified its input")
	}
}

func TestNewFilterRejectsRelativeBase(t *testing.T) {
	if _, err := NewFilter("index.html", "agent"); err == nil {
		t.Error("expected error for relative base url")
	}
}
