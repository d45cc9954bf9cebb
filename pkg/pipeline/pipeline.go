// Package pipeline resolves the stack traces recorded for growing heap
// objects to positions in the application's original source.
//
// # Architecture
//
// A run has four strictly ordered phases:
//
//  1. Dedupe: parse each distinct trace string once, filter out frames from
//     the instrumentation agent and from eval, and collect the referenced URLs
//  2. Resolve: fetch every distinct URL once and decode its inline source map
//  3. Convert: map each unique trace's frames to original positions and
//     register them with the results sink
//  4. Remap: expand the unique traces back to the input shape, preserving
//     every observation's cardinality and order
//
// Only phase 2 performs I/O; it runs with bounded concurrency. Map problems
// are logged and recorded, never fatal. Frames that cannot be mapped keep
// their raw position.
//
// # Usage
//
//	sink := results.New()
//	stacks, err := pipeline.ConvertGrowthStacks(ctx, "http://localhost:8080/", sink, store, traces)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sink.WriteJSON(os.Stdout, stacks)
//
// Use a [Runner] to control concurrency, filtering and logging, and to get
// run statistics:
//
//	runner := pipeline.NewRunner(store, sink, logger)
//	result, err := runner.Run(ctx, traces, pipeline.Options{
//	    BaseURL:     "http://localhost:8080/",
//	    AgentMarker: pipeline.DefaultAgentMarker,
//	})
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackmap/pkg/errors"
	"github.com/matzehuels/stackmap/pkg/results"
	"github.com/matzehuels/stackmap/pkg/sourcemap"
	"github.com/matzehuels/stackmap/pkg/stack"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultConcurrency is the number of URLs resolved in parallel.
	DefaultConcurrency = 8

	// DefaultFetchTimeout bounds each resource fetch.
	DefaultFetchTimeout = sourcemap.DefaultFetchTimeout

	// DefaultAgentMarker is the substring identifying the instrumentation
	// agent's injected script and helper functions.
	DefaultAgentMarker = "bleak_agent"
)

// =============================================================================
// Types
// =============================================================================

// GrowthStackTraces maps an observation id to the raw stack trace strings
// recorded for it.
type GrowthStackTraces map[int][]string

// GrowthStacks maps an observation id to its resolved stacks, in input order.
type GrowthStacks = results.GrowthStacks

// ParseFunc turns a raw trace string into frames.
type ParseFunc func(trace string) []stack.Frame

// Options configures a run.
type Options struct {
	// BaseURL is the page URL relative frame files are resolved against.
	BaseURL string `json:"base_url"`

	// AgentMarker filters frames whose file or function contains it. Empty
	// disables marker filtering; eval frames are always dropped.
	AgentMarker string `json:"agent_marker,omitempty"`

	// Concurrency bounds parallel URL resolution.
	Concurrency int `json:"concurrency,omitempty"`

	// FetchTimeout bounds each resource fetch.
	FetchTimeout time.Duration `json:"fetch_timeout,omitempty"`

	// Runtime options (not serialized)
	Parse  ParseFunc   `json:"-"`
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// Result contains the outputs of a run.
type Result struct {
	// Stacks are the resolved stacks keyed like the input.
	Stacks GrowthStacks

	// Failures records why each failed URL could not be mapped.
	Failures map[string]error

	// Stats contains counts and timing information.
	Stats Stats
}

// Stats contains run statistics.
type Stats struct {
	Observations int
	Traces       int
	UniqueTraces int
	Frames       int
	Dropped      int
	URLs         int
	MappedURLs   int
	DedupeTime   time.Duration
	ResolveTime  time.Duration
	ConvertTime  time.Duration
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks the base URL and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := errors.ValidateBaseURL(o.BaseURL); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "page base url")
	}
	if o.Concurrency < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "concurrency must not be negative: %d", o.Concurrency)
	}
	if o.FetchTimeout < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "fetch timeout must not be negative: %s", o.FetchTimeout)
	}

	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.FetchTimeout == 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.Parse == nil {
		o.Parse = stack.Parse
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}
