package trace

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns the next global sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

// GoroutineID returns the ID of the calling goroutine, or 0 if the runtime
// stack header cannot be parsed.
func GoroutineID() uint64 {
	var buf [64]byte
	fields := bytes.Fields(buf[:runtime.Stack(buf[:], false)])
	// goroutine <id> [running]:
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Span is an open unit of work. A nil *Span is valid and records nothing,
// which is what Begin returns for a disabled tracer.
//
// A span whose scope the level does not cover stays quiet: it emits nothing
// on success, but a failed End is still recorded.
type Span struct {
	tracer Tracer
	id     uint64
	parent uint64
	gid    uint64
	scope  Scope
	name   string
	start  time.Time
	attrs  []Attr
	quiet  bool
}

// Begin opens a span under parent (0 for a root span).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() {
		return nil
	}
	s := &Span{
		tracer: t,
		id:     spanCounter.Add(1),
		parent: parent,
		gid:    GoroutineID(),
		scope:  scope,
		name:   name,
		start:  time.Now(),
		quiet:  !t.Level().Covers(scope),
	}
	if !s.quiet {
		t.Emit(s.event(KindBegin, s.start))
	}
	return s
}

// Attr annotates the span. Attributes travel on the end event.
func (s *Span) Attr(key, value string) *Span {
	if s != nil {
		s.attrs = append(s.attrs, Attr{Key: key, Value: value})
	}
	return s
}

// End closes the span, marking it failed when err is non-nil, and returns
// its duration.
func (s *Span) End(err error) time.Duration {
	if s == nil {
		return 0
	}
	now := time.Now()
	elapsed := now.Sub(s.start)
	if s.quiet && err == nil {
		return elapsed
	}
	ev := s.event(KindEnd, now)
	ev.Attrs = s.attrs
	ev.Elapsed = elapsed
	if err != nil {
		ev.Err = err.Error()
	}
	s.tracer.Emit(ev)
	return elapsed
}

// ID returns the span ID, 0 for a nil span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

func (s *Span) event(kind Kind, at time.Time) *Event {
	return &Event{
		Time:   at,
		Kind:   kind,
		Scope:  s.scope,
		Span:   s.id,
		Parent: s.parent,
		GID:    s.gid,
		Name:   s.name,
	}
}

// Point records an instant event.
func Point(t Tracer, scope Scope, name string, parent uint64, attrs ...Attr) {
	if t == nil || !t.Level().Covers(scope) {
		return
	}
	t.Emit(&Event{
		Time:   time.Now(),
		Kind:   KindPoint,
		Scope:  scope,
		Span:   spanCounter.Add(1),
		Parent: parent,
		GID:    GoroutineID(),
		Name:   name,
		Attrs:  attrs,
	})
}
