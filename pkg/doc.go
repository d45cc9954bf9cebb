// Package pkg provides the core libraries for Stackmap.
//
// # Overview
//
// Stackmap takes the stack traces a leak detector records whenever a heap
// object grows, and maps every frame through the inline source map of the
// script it points at. The result is a compact, deduplicated set of frames
// and stacks that refer to the code developers wrote rather than the
// bundle the browser ran.
//
// The pkg directory is organized as:
//
//  1. [stack] - Parsing raw trace strings into frames and filtering them
//  2. [sourcemap] - Inline map extraction, parsing, and a per-run cache
//  3. [content] - Where page resources come from (HTTP, disk, memory, Redis)
//  4. [results] - Frame and source file registration, JSON and SQLite
//  5. [pipeline] - Orchestration (dedupe → resolve → convert → remap)
//
// Supporting packages: [errors] for coded errors and input validation,
// [httputil] for retry and the response cache, [observability] for
// instrumentation hooks, and [buildinfo] for version stamping.
//
// # Data Flow
//
//	map[observation][]trace
//	         ↓
//	    [stack] parse + filter, once per unique trace
//	         ↓
//	    [content] fetch each referenced script
//	         ↓
//	    [sourcemap] extract + parse inline maps
//	         ↓
//	    [results] register frames and original sources
//	         ↓
//	map[observation][]Stack
//
// # Quick Start
//
//	sink := results.New()
//	stacks, err := pipeline.ConvertGrowthStacks(ctx, "http://localhost:8080/",
//	    sink, content.NewHTTP(), traces)
//	if err != nil {
//	    return err
//	}
//	sink.WriteJSON(os.Stdout, stacks)
//
// [stack]: github.com/matzehuels/stackmap/pkg/stack
// [sourcemap]: github.com/matzehuels/stackmap/pkg/sourcemap
// [content]: github.com/matzehuels/stackmap/pkg/content
// [results]: github.com/matzehuels/stackmap/pkg/results
// [pipeline]: github.com/matzehuels/stackmap/pkg/pipeline
// [errors]: github.com/matzehuels/stackmap/pkg/errors
// [httputil]: github.com/matzehuels/stackmap/pkg/httputil
// [observability]: github.com/matzehuels/stackmap/pkg/observability
// [buildinfo]: github.com/matzehuels/stackmap/pkg/buildinfo
package pkg
