// Package observability provides hooks for metrics and tracing.
//
// Libraries emit events through the registered hooks; main registers real
// implementations at startup. The defaults do nothing, so the core packages
// carry no dependency on any metrics or tracing backend.
//
// # Usage
//
//	func main() {
//	    observability.SetPipelineHooks(&promPipelineHooks{})
//	    observability.SetSourceMapHooks(&promSourceMapHooks{})
//	    // ... run application
//	}
//
// Emitting side:
//
//	observability.Pipeline().OnPhaseStart(ctx, observability.PhaseResolve, len(urls))
//	// ... resolve ...
//	observability.Pipeline().OnPhaseComplete(ctx, observability.PhaseResolve, time.Since(start), err)
package observability

import (
	"context"
	"sync"
	"time"
)

// Pipeline phase names passed to PipelineHooks.
const (
	PhaseDedupe  = "dedupe"
	PhaseResolve = "resolve"
	PhaseConvert = "convert"
)

// =============================================================================
// Pipeline Hooks
// =============================================================================

// PipelineHooks receives events from resolution runs.
type PipelineHooks interface {
	// OnPhaseStart is called before a phase processes items inputs.
	OnPhaseStart(ctx context.Context, phase string, items int)
	OnPhaseComplete(ctx context.Context, phase string, duration time.Duration, err error)
}

// =============================================================================
// Source Map Hooks
// =============================================================================

// SourceMapHooks receives events from the source map cache.
type SourceMapHooks interface {
	// OnFetch records one content store fetch for url.
	OnFetch(ctx context.Context, url string, duration time.Duration, err error)

	// OnLoaded records the outcome for url: "mapped" or "unmapped". err is
	// set when a map existed but could not be used.
	OnLoaded(ctx context.Context, url, state string, err error)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the HTTP content store.
type HTTPHooks interface {
	OnResponse(ctx context.Context, host, path string, statusCode int, duration time.Duration)
	// OnError records a request that produced no response.
	OnError(ctx context.Context, host, path string, err error)
	// OnCacheHit records a resource served from the response cache.
	OnCacheHit(ctx context.Context, host, path string)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPipelineHooks is a no-op implementation of PipelineHooks.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnPhaseStart(context.Context, string, int)                     {}
func (NoopPipelineHooks) OnPhaseComplete(context.Context, string, time.Duration, error) {}

// NoopSourceMapHooks is a no-op implementation of SourceMapHooks.
type NoopSourceMapHooks struct{}

func (NoopSourceMapHooks) OnFetch(context.Context, string, time.Duration, error) {}
func (NoopSourceMapHooks) OnLoaded(context.Context, string, string, error)       {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, error)                 {}
func (NoopHTTPHooks) OnCacheHit(context.Context, string, string)                     {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	pipelineHooks  PipelineHooks  = NoopPipelineHooks{}
	sourceMapHooks SourceMapHooks = NoopSourceMapHooks{}
	httpHooks      HTTPHooks      = NoopHTTPHooks{}
	hooksMu        sync.RWMutex
)

// SetPipelineHooks registers pipeline hooks. Nil is ignored.
func SetPipelineHooks(h PipelineHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		pipelineHooks = h
	}
}

// SetSourceMapHooks registers source map hooks. Nil is ignored.
func SetSourceMapHooks(h SourceMapHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		sourceMapHooks = h
	}
}

// SetHTTPHooks registers HTTP hooks. Nil is ignored.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Pipeline returns the registered pipeline hooks.
func Pipeline() PipelineHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return pipelineHooks
}

// SourceMap returns the registered source map hooks.
func SourceMap() SourceMapHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return sourceMapHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	pipelineHooks = NoopPipelineHooks{}
	sourceMapHooks = NoopSourceMapHooks{}
	httpHooks = NoopHTTPHooks{}
}
