// Package stack models JavaScript stack frames and the rules for turning raw
// stack trace text into frames that belong to user code.
//
// # Frames
//
// [Frame] is one parsed call site from a raw trace string. [ResolvedFrame] is
// the same call site after source-map resolution. Both are plain values:
// methods that change a field return a modified copy.
//
// Line and column numbers are 1-based, which is what V8 and SpiderMonkey
// report in Error.stack. A zero line means "no position".
//
// # Parsing
//
// [Parse] understands the two stack dialects browsers and Node.js emit:
//
//	Error: boom
//	    at render (http://localhost:8080/app.js:10:5)
//	    at http://localhost:8080/app.js:20:1
//
//	render@http://localhost:8080/app.js:10:5
//	@http://localhost:8080/app.js:20:1
//
// Lines that look like frames but carry no recognizable location are kept as
// best-effort frames without a file, so the depth of a stack never shrinks
// because of a parse problem.
//
// # Filtering
//
// [Filter] removes frames injected by instrumentation (matched by an agent
// marker substring) and frames produced by eval, and resolves relative file
// references against the page URL so that every resource has exactly one
// spelling.
package stack
