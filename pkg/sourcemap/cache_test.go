package sourcemap

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/stackmap/pkg/content"
	"github.com/matzehuels/stackmap/pkg/errors"
	"github.com/matzehuels/stackmap/pkg/results"
	"github.com/matzehuels/stackmap/pkg/stack"
)

// countingStore counts Get calls and optionally blocks them until gate is
// closed.
type countingStore struct {
	content.Store
	calls atomic.Int32
	gate  chan struct{}
}

func (s *countingStore) Get(ctx context.Context, url string) (*content.Resource, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Store.Get(ctx, url)
}

type failingSink struct{}

func (failingSink) AddSourceFile(context.Context, results.SourceFile) error {
	return fmt.Errorf("disk full")
}

func (failingSink) AddFrame(context.Context, stack.ResolvedFrame) (results.FrameID, error) {
	return 0, fmt.Errorf("disk full")
}

func newStore() *content.Memory {
	m := content.NewMemory()
	m.Put("http://x/app.js", content.MIMEJavaScript, []byte(inline("throw new Error();", appMap)))
	m.Put("http://x/plain.js", content.MIMEJavaScript, []byte("var plain = 1;"))
	m.Put("http://x/index.html", content.MIMEHTML, []byte("<script>\n"+inline("x();", appMap)+"</script>"))
	m.Put("http://x/badbase64.js", content.MIMEJavaScript, []byte("x;\n"+Marker+"@@@"))
	m.Put("http://x/badjson.js", content.MIMEJavaScript, []byte(inline("x;", `{"version":3,`)))
	m.Put("http://x/v2.js", content.MIMEJavaScript, []byte(inline("x;", `{"version":2,"sources":[],"mappings":""}`)))
	return m
}

func TestResolveMapped(t *testing.T) {
	sink := results.New()
	c := NewCache(newStore(), sink)

	e, err := c.Resolve(context.Background(), "http://x/app.js")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.State != Mapped || e.Map == nil || e.Err != nil {
		t.Fatalf("entry = %+v, want mapped", e)
	}
	if pos, ok := e.Map.Lookup(10, 5); !ok || pos.Line != 3 || pos.Column != 1 {
		t.Errorf("Lookup = %+v, %v", pos, ok)
	}

	f, ok := sink.SourceFile("http://x/app.js", "app.ts")
	if !ok {
		t.Fatal("original source not registered")
	}
	if f.MIMEType != content.MIMEJavaScript || f.Text == "" {
		t.Errorf("source file = %+v", f)
	}
	if len(sink.SourceFiles()) != 1 {
		t.Errorf("SourceFiles = %d, want 1", len(sink.SourceFiles()))
	}
}

func TestResolveHTMLKind(t *testing.T) {
	sink := results.New()
	c := NewCache(newStore(), sink)

	e, err := c.Resolve(context.Background(), "http://x/index.html")
	if err != nil || e.State != Mapped {
		t.Fatalf("Resolve = %+v, %v", e, err)
	}
	f, ok := sink.SourceFile("http://x/index.html", "app.ts")
	if !ok || f.MIMEType != content.MIMEHTML {
		t.Errorf("source file = %+v, %v", f, ok)
	}
}

func TestResolveNullSourcesContent(t *testing.T) {
	store := content.NewMemory()
	store.Put("http://x/two.js", content.MIMEJavaScript, []byte(inline("x;",
		`{"version":3,"sources":["a.ts","b.ts"],"sourcesContent":[null,"B"],"names":[],"mappings":"AAAA"}`)))
	sink := results.New()

	if _, err := NewCache(store, sink).Resolve(context.Background(), "http://x/two.js"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	files := sink.SourceFiles()
	if len(files) != 1 || files[0].Source != "b.ts" || files[0].Text != "B" {
		t.Errorf("SourceFiles = %+v", files)
	}
}

func TestResolveNoMarker(t *testing.T) {
	sink := results.New()
	c := NewCache(newStore(), sink)

	e, err := c.Resolve(context.Background(), "http://x/plain.js")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.State != Unmapped || e.Err != nil {
		t.Errorf("entry = %+v, want unmapped without error", e)
	}
	f, ok := sink.SourceFile("http://x/plain.js", "")
	if !ok || f.Text != "var plain = 1;" || f.MIMEType != content.MIMEJavaScript {
		t.Errorf("raw source = %+v, %v", f, ok)
	}
	if len(c.Failures()) != 0 {
		t.Errorf("Failures = %v", c.Failures())
	}
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		url     string
		code    errors.Code
		wantRaw bool
	}{
		{url: "http://x/missing.js", code: errors.ErrCodeMapFetch},
		{url: "relative.js", code: errors.ErrCodeMapFetch},
		{url: "http://x/badbase64.js", code: errors.ErrCodeMapParse, wantRaw: true},
		{url: "http://x/badjson.js", code: errors.ErrCodeMapParse, wantRaw: true},
		{url: "http://x/v2.js", code: errors.ErrCodeMapParse, wantRaw: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			sink := results.New()
			c := NewCache(newStore(), sink)

			e, err := c.Resolve(context.Background(), tt.url)
			if err != nil {
				t.Fatalf("Resolve returned error %v, want recorded failure", err)
			}
			if e.State != Unmapped || e.Map != nil {
				t.Errorf("entry = %+v, want unmapped", e)
			}
			if !errors.Is(e.Err, tt.code) {
				t.Errorf("Err = %v, want code %s", e.Err, tt.code)
			}
			if got := c.Failures()[tt.url]; got == nil {
				t.Error("failure not recorded")
			}
			if _, ok := sink.SourceFile(tt.url, ""); ok != tt.wantRaw {
				t.Errorf("raw source registered = %v, want %v", ok, tt.wantRaw)
			}
		})
	}
}

func TestResolveIdempotent(t *testing.T) {
	store := &countingStore{Store: newStore()}
	c := NewCache(store, results.New())
	ctx := context.Background()

	for _, url := range []string{"http://x/app.js", "http://x/app.js", "http://x/missing.js", "http://x/missing.js"} {
		if _, err := c.Resolve(ctx, url); err != nil {
			t.Fatalf("Resolve(%s): %v", url, err)
		}
	}
	if n := store.calls.Load(); n != 2 {
		t.Errorf("store calls = %d, want 2", n)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	st := c.Stats()
	if st.Fetches != 2 || st.Hits != 2 || st.Mapped != 1 || st.Unmapped != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestResolveCoalescesConcurrentCallers(t *testing.T) {
	store := &countingStore{Store: newStore(), gate: make(chan struct{})}
	c := NewCache(store, results.New())

	var wg sync.WaitGroup
	entries := make([]Entry, 16)
	for i := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := c.Resolve(context.Background(), "http://x/app.js")
			if err != nil {
				t.Errorf("Resolve: %v", err)
			}
			entries[i] = e
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	if n := store.calls.Load(); n != 1 {
		t.Errorf("store calls = %d, want 1", n)
	}
	for i, e := range entries {
		if e.Map != entries[0].Map || e.State != Mapped {
			t.Errorf("entries[%d] = %+v, want shared mapped entry", i, e)
		}
	}
}

func TestResolveFetchTimeout(t *testing.T) {
	store := &countingStore{Store: newStore(), gate: make(chan struct{})}
	defer close(store.gate)
	c := NewCache(store, results.New(), WithFetchTimeout(10*time.Millisecond))

	e, err := c.Resolve(context.Background(), "http://x/app.js")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.State != Unmapped || !errors.Is(e.Err, errors.ErrCodeMapFetch) {
		t.Errorf("entry = %+v, want fetch failure", e)
	}
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &countingStore{Store: newStore(), gate: make(chan struct{})}
	defer close(store.gate)
	c := NewCache(store, results.New())

	if _, err := c.Resolve(ctx, "http://x/app.js"); err == nil {
		t.Fatal("Resolve should fail on canceled context")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, canceled resolution must not be cached", c.Len())
	}
}

func TestResolveSinkFailure(t *testing.T) {
	c := NewCache(newStore(), failingSink{})

	_, err := c.Resolve(context.Background(), "http://x/app.js")
	if !errors.Is(err, errors.ErrCodeSink) {
		t.Fatalf("Resolve err = %v, want sink error", err)
	}
	if c.Lookup("http://x/app.js").State != Unchecked {
		t.Error("entry cached after sink failure")
	}
}

func TestLookupUnchecked(t *testing.T) {
	c := NewCache(newStore(), results.New())
	if e := c.Lookup("http://x/app.js"); e.State != Unchecked || e.Map != nil {
		t.Errorf("Lookup = %+v", e)
	}
	if c.Map("http://x/app.js") != nil {
		t.Error("Map should be nil before Resolve")
	}
	if Unchecked.String() != "unchecked" || Mapped.String() != "mapped" || Unmapped.String() != "unmapped" {
		t.Error("State.String mismatch")
	}
}
