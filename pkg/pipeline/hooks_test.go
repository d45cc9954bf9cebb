package pipeline

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/stackmap/pkg/content"
	"github.com/matzehuels/stackmap/pkg/observability"
	"github.com/matzehuels/stackmap/pkg/results"
)

type recordingHooks struct {
	observability.NoopPipelineHooks
	observability.NoopSourceMapHooks

	mu     sync.Mutex
	phases []string
	loaded map[string]string
}

func (h *recordingHooks) OnPhaseComplete(_ context.Context, phase string, _ time.Duration, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phases = append(h.phases, phase)
}

func (h *recordingHooks) OnLoaded(_ context.Context, url, state string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded[url] = state
}

func TestHooksObserveRun(t *testing.T) {
	hooks := &recordingHooks{loaded: map[string]string{}}
	observability.SetPipelineHooks(hooks)
	observability.SetSourceMapHooks(hooks)
	t.Cleanup(observability.Reset)

	store := mappedStore()
	store.Put("http://x/lib.js", content.MIMEJavaScript, []byte("function bar() {}"))
	traces := GrowthStackTraces{
		1: {traceA, "Error\n    at bar (http://x/lib.js:1:1)"},
	}
	if _, err := ConvertGrowthStacks(context.Background(), baseURL, results.New(), store, traces); err != nil {
		t.Fatal(err)
	}

	want := []string{observability.PhaseDedupe, observability.PhaseResolve, observability.PhaseConvert}
	if !reflect.DeepEqual(hooks.phases, want) {
		t.Errorf("phases = %v, want %v", hooks.phases, want)
	}
	if hooks.loaded["http://x/app.js"] != "mapped" || hooks.loaded["http://x/lib.js"] != "unmapped" {
		t.Errorf("loaded = %v", hooks.loaded)
	}
}
