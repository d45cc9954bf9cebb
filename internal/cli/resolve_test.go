package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackmap/pkg/results"
	"github.com/matzehuels/stackmap/pkg/results/sqlite"
	"github.com/matzehuels/stackmap/pkg/sourcemap"
)

const testMap = `{"version":3,"sources":["app.ts"],"sourcesContent":["let a;\nlet b;\nthrow new Error();\n"],"names":[],"mappings":";;;;;;;;;IAEA"}`

const testTraces = `{
  "1": ["Error\n    at foo (http://localhost/app.js:10:5)"],
  "2": ["Error\n    at foo (http://localhost/app.js:10:5)", "Error\n    at bar (lib.js:2:3)"]
}`

// newSite writes a served root with a mapped app.js and an unmapped lib.js,
// plus a traces file, and returns the directory.
func newSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	app := "throw new Error();\n" + sourcemap.Marker + base64.StdEncoding.EncodeToString([]byte(testMap)) + "\n"
	files := map[string]string{
		"site/app.js":     app,
		"site/lib.js":     "function bar() {}",
		"site/index.html": "<html></html>",
		"traces.json":     testTraces,
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	statusOut = io.Discard
	var out bytes.Buffer
	root := New(io.Discard, log.InfoLevel).RootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeExport(t *testing.T, data []byte) results.Export {
	t.Helper()
	var exp results.Export
	if err := json.Unmarshal(data, &exp); err != nil {
		t.Fatalf("decode output: %v\n%s", err, data)
	}
	return exp
}

func TestResolveToFile(t *testing.T) {
	dir := newSite(t)
	outPath := filepath.Join(dir, "out.json")

	_, err := execute(t, nil, "resolve",
		"--base", "http://localhost/",
		"--content", "dir", "--dir", filepath.Join(dir, "site"),
		"-o", outPath,
		filepath.Join(dir, "traces.json"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	exp := decodeExport(t, data)

	if len(exp.Stacks[1]) != 1 || len(exp.Stacks[2]) != 2 {
		t.Fatalf("stacks = %v", exp.Stacks)
	}
	foo := exp.Frames[exp.Stacks[1][0][0]]
	if foo.Line != 3 || foo.Column != 1 || !foo.Mapped {
		t.Errorf("foo = %+v, want mapped to 3:1", foo)
	}
	bar := exp.Frames[exp.Stacks[2][1][0]]
	if bar.File != "http://localhost/lib.js" || bar.Line != 2 || bar.Column != 3 || bar.Mapped {
		t.Errorf("bar = %+v, want raw position", bar)
	}
	if len(exp.SourceFiles) != 2 {
		t.Errorf("source files = %+v", exp.SourceFiles)
	}
}

func TestResolveStdinToStdout(t *testing.T) {
	dir := newSite(t)

	out, err := execute(t, strings.NewReader(testTraces), "resolve",
		"--base", "http://localhost/",
		"--content", "dir", "--dir", filepath.Join(dir, "site"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	exp := decodeExport(t, []byte(out))
	if len(exp.Frames) != 2 {
		t.Errorf("frames = %+v", exp.Frames)
	}
}

func TestResolveWithConfigAndSQLite(t *testing.T) {
	dir := newSite(t)
	cfgPath := filepath.Join(dir, "stackmap.toml")
	cfg := "base_url = \"http://localhost/\"\n[content]\nkind = \"dir\"\ndir = " +
		`"` + filepath.ToSlash(filepath.Join(dir, "site")) + `"` + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "results.db")

	if _, err := execute(t, nil, "resolve", "-c", cfgPath, "--sqlite", dbPath, filepath.Join(dir, "traces.json")); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	runs, err := db.Runs(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v, %v", runs, err)
	}
	stacks, err := db.Stacks(ctx, runs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stacks[1]) != 1 || len(stacks[2]) != 2 {
		t.Fatalf("stacks = %v", stacks)
	}
	f, err := db.Frame(ctx, stacks[1][0][0])
	if err != nil {
		t.Fatal(err)
	}
	if f.Line != 3 || !f.Mapped {
		t.Errorf("frame = %+v", f)
	}
}

func TestResolveErrors(t *testing.T) {
	dir := newSite(t)
	traces := filepath.Join(dir, "traces.json")
	site := filepath.Join(dir, "site")

	tests := []struct {
		name string
		args []string
	}{
		{"missing base", []string{"resolve", "--content", "dir", "--dir", site, traces}},
		{"bad content kind", []string{"resolve", "--base", "http://localhost/", "--content", "ftp", traces}},
		{"missing traces", []string{"resolve", "--base", "http://localhost/", "--content", "dir", "--dir", site, filepath.Join(dir, "nope.json")}},
		{"missing config", []string{"resolve", "-c", filepath.Join(dir, "nope.toml"), traces}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, nil, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}
