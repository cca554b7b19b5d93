package meta

import (
	"sync/atomic"

	"cilgraph/internal/trace"
)

var tracer atomic.Pointer[trace.Tracer]

// SetTracer installs the tracer that receives population events. Lazy
// accessors have no context, so this is process-wide. A nil tracer disables
// tracing.
func SetTracer(t trace.Tracer) {
	if t == nil {
		tracer.Store(nil)
		return
	}
	tracer.Store(&t)
}

func currentTracer() trace.Tracer {
	if p := tracer.Load(); p != nil {
		return *p
	}
	return trace.Nop
}
