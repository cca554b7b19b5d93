// Package trace records what the type graph does while it is explored: which
// assemblies load, which types populate lazily, which generic instances get
// built.
//
// # Usage
//
//	cilgraph inspect --trace=- --trace-level=detail corlib.toml
//
// # Tracers
//
//   - Nop: zero-overhead tracer used when tracing is off
//   - StreamTracer: writes each event immediately (text or NDJSON)
//   - RingTracer: keeps the last N events in memory; the CLI dumps it when
//     a command fails
//   - MultiTracer: fans out to several tracers
//
// # Levels and scopes
//
// Events carry a scope. The level decides which scopes are emitted:
//
//   - LevelError: failed spans only, whatever their scope
//   - LevelPhase: ScopeCommand and ScopeAssembly
//   - LevelDetail: adds ScopeType (population, instantiation)
//   - LevelDebug: adds ScopeMember
//
// A failed span is recorded at every level above LevelOff. Spans end with
// the error of the work they wrap, so a trace at LevelError lists exactly
// what went wrong.
//
// Tracers travel in context.Context (WithTracer / FromContext). The meta
// package has no context on its lazy accessors and takes a process-wide tracer
// through meta.SetTracer instead.
package trace
