// Package trace records spans around index operations.
//
// Tracing is off unless a tracer is configured. The CLI enables it with
//
//	pdom ingest --trace=- --trace-level=file occurrences.ndjson
//
// # Architecture
//
//   - Nop: zero-overhead tracer used when tracing is disabled
//   - StreamTracer: writes each event immediately (file or stderr)
//   - RingTracer: keeps the last N events in memory for dumps
//   - MultiTracer: fans out to several tracers
//
// # Levels and scopes
//
// Events carry a scope, from coarse to fine: ScopeCommand (one CLI command),
// ScopeTx (one read or write transaction), ScopeFile (work on one indexed
// file) and ScopeRecord (single record edits). The level decides which scopes
// are emitted.
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeTx, "write", parentID)
//	defer span.End("")
package trace
