package meta

import (
	"sync"
	"sync/atomic"

	"cilgraph/internal/trace"
)

// reentrantMutex may be locked again by the goroutine that holds it.
type reentrantMutex struct {
	mu    sync.Mutex
	owner atomic.Uint64
	depth int // guarded by mu
}

func (m *reentrantMutex) Lock() {
	gid := trace.GoroutineID()
	if m.owner.Load() == gid {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(gid)
	m.depth = 1
}

func (m *reentrantMutex) Unlock() {
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

// heldByCurrent reports whether the calling goroutine holds the lock.
func (m *reentrantMutex) heldByCurrent() bool {
	return m.owner.Load() == trace.GoroutineID()
}

// populationLock serializes every provider call in the process.
var populationLock reentrantMutex
