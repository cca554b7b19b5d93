package meta

import (
	"sync/atomic"

	"cilgraph/internal/trace"
)

// CellState is the population state of one lazy property.
type CellState uint8

const (
	Unpopulated CellState = iota
	Populating
	Populated
)

func (s CellState) String() string {
	switch s {
	case Populating:
		return "populating"
	case Populated:
		return "populated"
	default:
		return "unpopulated"
	}
}

// cell is a lazily computed value. A non-nil value pointer means Populated and
// is readable without the population lock. Everything else is guarded by
// populationLock.
type cell[T any] struct {
	value   atomic.Pointer[T]
	provide func() (T, error)
	busy    bool
	partial T // returned to re-entrant readers while busy
	err     error
}

// ready marks the cell populated with v and drops any provider.
func (c *cell[T]) ready(v T) {
	c.provide = nil
	c.err = nil
	c.value.Store(&v)
}

func (c *cell[T]) state() CellState {
	if c.value.Load() != nil {
		return Populated
	}
	populationLock.Lock()
	defer populationLock.Unlock()
	if c.busy {
		return Populating
	}
	if c.provide == nil {
		return Populated
	}
	return Unpopulated
}

// install replaces the provider and resets the cell. Must hold populationLock.
func (c *cell[T]) install(fn func() (T, error)) {
	var zero T
	c.value.Store(nil)
	c.provide = fn
	c.partial = zero
	c.err = nil
}

// set stores v. Called from inside the cell's own provider it only changes
// what re-entrant readers see; the provider's result still wins.
func (c *cell[T]) set(v T) {
	populationLock.Lock()
	defer populationLock.Unlock()
	if c.busy {
		c.partial = v
		return
	}
	c.ready(v)
}

// get returns the populated value, running the provider if needed.
func (c *cell[T]) get(owner *Type, prop LazyProperty) (T, error) {
	if p := c.value.Load(); p != nil {
		return *p, nil
	}

	populationLock.Lock()
	defer populationLock.Unlock()

	if p := c.value.Load(); p != nil {
		return *p, nil
	}
	if c.busy {
		return c.partial, nil
	}
	if c.provide == nil {
		var zero T
		c.ready(zero)
		return zero, nil
	}

	c.busy = true
	tr := currentTracer()
	span := trace.Begin(tr, trace.ScopeType, "populate:"+prop.String(), 0)
	if span != nil {
		span.Attr("type", owner.FullName())
	}
	v, err := c.run()
	span.End(err)
	if err != nil {
		c.err = &PopulationError{Type: owner.FullName(), Property: prop, Err: err}
		var zero T
		return zero, c.err
	}
	c.ready(v)
	return v, nil
}

// run calls the provider, clearing busy on every exit path including a panic.
func (c *cell[T]) run() (T, error) {
	defer func() {
		var zero T
		c.busy = false
		c.partial = zero
	}()
	return c.provide()
}

// lastError returns the error of the most recent failed population.
func (c *cell[T]) lastError() error {
	if c.value.Load() != nil {
		return nil
	}
	populationLock.Lock()
	defer populationLock.Unlock()
	return c.err
}
