package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackmap/pkg/content"
	"github.com/matzehuels/stackmap/pkg/errors"
	"github.com/matzehuels/stackmap/pkg/observability"
	"github.com/matzehuels/stackmap/pkg/results"
	"github.com/matzehuels/stackmap/pkg/sourcemap"
	"github.com/matzehuels/stackmap/pkg/stack"
)

// Runner executes resolution runs against a content store and results sink.
//
// The Runner holds no per-run state: every Run creates its own source map
// cache, so runs never share maps. Multiple goroutines can use the same
// Runner when the sink tolerates interleaved writers.
type Runner struct {
	Store  content.Store
	Sink   results.Sink
	Logger *log.Logger
}

// NewRunner creates a runner. If logger is nil, log.Default() is used.
func NewRunner(store content.Store, sink results.Sink, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Store: store, Sink: sink, Logger: logger}
}

// ConvertGrowthStacks resolves traces with the default options and returns
// the stacks registered with sink.
func ConvertGrowthStacks(ctx context.Context, pageBaseURL string, sink results.Sink, store content.Store, traces GrowthStackTraces) (GrowthStacks, error) {
	runner := &Runner{Store: store, Sink: sink}
	return runner.ConvertGrowthStacks(ctx, pageBaseURL, traces)
}

// ConvertGrowthStacks is a convenience wrapper around Run that keeps only the
// stacks.
func (r *Runner) ConvertGrowthStacks(ctx context.Context, pageBaseURL string, traces GrowthStackTraces) (GrowthStacks, error) {
	res, err := r.Run(ctx, traces, Options{BaseURL: pageBaseURL, AgentMarker: DefaultAgentMarker})
	if err != nil {
		return nil, err
	}
	return res.Stacks, nil
}

// Run executes the dedupe → resolve → convert → remap phases.
func (r *Runner) Run(ctx context.Context, traces GrowthStackTraces, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if r.Store == nil || r.Sink == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "runner needs a content store and a results sink")
	}
	logger := opts.Logger

	filter, err := stack.NewFilter(opts.BaseURL, opts.AgentMarker)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "frame filter")
	}

	result := &Result{}
	result.Stats.Observations = len(traces)
	for _, list := range traces {
		result.Stats.Traces += len(list)
	}

	hooks := observability.Pipeline()

	// Phase 1: Dedupe
	start := time.Now()
	hooks.OnPhaseStart(ctx, observability.PhaseDedupe, result.Stats.Traces)
	ws := Dedupe(traces, opts.Parse, filter)
	result.Stats.DedupeTime = time.Since(start)
	hooks.OnPhaseComplete(ctx, observability.PhaseDedupe, result.Stats.DedupeTime, nil)
	result.Stats.UniqueTraces = len(ws.Keys)
	result.Stats.URLs = len(ws.URLs)
	result.Stats.Dropped = ws.Dropped

	logger.Info("deduplicated traces",
		"traces", result.Stats.Traces,
		"unique", result.Stats.UniqueTraces,
		"urls", result.Stats.URLs,
		"dropped_frames", ws.Dropped,
		"duration", result.Stats.DedupeTime)

	// Phase 2: Resolve
	start = time.Now()
	cache := sourcemap.NewCache(r.Store, r.Sink,
		sourcemap.WithLogger(logger),
		sourcemap.WithFetchTimeout(opts.FetchTimeout))
	hooks.OnPhaseStart(ctx, observability.PhaseResolve, len(ws.URLs))
	err = r.resolve(ctx, cache, ws.URLs, opts.Concurrency)
	result.Stats.ResolveTime = time.Since(start)
	hooks.OnPhaseComplete(ctx, observability.PhaseResolve, result.Stats.ResolveTime, err)
	if err != nil {
		return nil, err
	}
	result.Stats.MappedURLs = int(cache.Stats().Mapped)
	result.Failures = cache.Failures()

	logger.Info("resolved source maps",
		"urls", cache.Len(),
		"mapped", result.Stats.MappedURLs,
		"failed", len(result.Failures),
		"duration", result.Stats.ResolveTime)

	// Phase 3: Convert
	start = time.Now()
	hooks.OnPhaseStart(ctx, observability.PhaseConvert, len(ws.Keys))
	converted, err := r.convert(ctx, NewConverter(cache, r.Sink), ws)
	result.Stats.ConvertTime = time.Since(start)
	hooks.OnPhaseComplete(ctx, observability.PhaseConvert, result.Stats.ConvertTime, err)
	if err != nil {
		return nil, err
	}
	for _, s := range converted {
		result.Stats.Frames += len(s)
	}

	logger.Info("converted stacks",
		"stacks", len(converted),
		"frames", result.Stats.Frames,
		"duration", result.Stats.ConvertTime)

	// Phase 4: Remap
	result.Stacks = remap(traces, converted)
	return result, nil
}

func (r *Runner) resolve(ctx context.Context, cache *sourcemap.Cache, urls []string, limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, url := range urls {
		g.Go(func() error {
			_, err := cache.Resolve(gctx, url)
			return err
		})
	}
	return g.Wait()
}

func (r *Runner) convert(ctx context.Context, conv *Converter, ws *WorkingSet) (map[string]results.Stack, error) {
	converted := make(map[string]results.Stack, len(ws.Keys))
	for _, key := range ws.Keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := conv.Convert(ctx, ws.Frames[key])
		if err != nil {
			return nil, err
		}
		converted[key] = s
	}
	return converted, nil
}

// remap expands converted stacks to the input shape. Observations sharing a
// trace share its Stack slice.
func remap(traces GrowthStackTraces, converted map[string]results.Stack) GrowthStacks {
	out := make(GrowthStacks, len(traces))
	for id, list := range traces {
		stacks := make([]results.Stack, len(list))
		for i, trace := range list {
			stacks[i] = converted[trace]
		}
		out[id] = stacks
	}
	return out
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
