package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the most recent admitted events in memory.
type RingTracer struct {
	mu     sync.Mutex
	buf    []Event
	total  uint64 // events ever stored
	failed uint64 // failures ever stored
	level  Level
}

// NewRingTracer keeps up to size events (DefaultRingSize when size <= 0).
func NewRingTracer(size int, level Level) *RingTracer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingTracer{buf: make([]Event, size), level: level}
}

func (t *RingTracer) Emit(ev *Event) {
	if !t.level.Admits(ev) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	stored := *ev
	stored.Seq = NextSeq()
	t.buf[t.total%uint64(len(t.buf))] = stored
	t.total++
	if stored.Failed() {
		t.failed++
	}
}

// Snapshot returns the retained events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := uint64(len(t.buf))
	n := min(t.total, size)
	out := make([]Event, 0, n)
	for i := t.total - n; i < t.total; i++ {
		out = append(out, t.buf[i%size])
	}
	return out
}

// Failures reports how many failed events were stored, including ones
// since overwritten.
func (t *RingTracer) Failures() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Dump writes the retained events to w.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	for _, ev := range t.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error  { return nil }
func (t *RingTracer) Close() error  { return nil }
func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }

// Rings returns the ring tracers reachable from t.
func Rings(t Tracer) []*RingTracer {
	switch t := t.(type) {
	case *RingTracer:
		return []*RingTracer{t}
	case *MultiTracer:
		var out []*RingTracer
		for _, child := range t.tracers {
			out = append(out, Rings(child)...)
		}
		return out
	}
	return nil
}
