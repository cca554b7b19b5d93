package meta

import (
	"slices"
	"strconv"
	"strings"
	"sync"

	"cilgraph/internal/trace"
)

// ReserveStatus is the outcome of reserving a generic instance.
type ReserveStatus uint8

const (
	// ReserveFound means an existing instance was returned.
	ReserveFound ReserveStatus = iota
	// ReserveOwned means the caller must build the instance and then call
	// Publish or Abandon on the reservation.
	ReserveOwned
	// ReserveCycle means the calling goroutine is already building this
	// instance further up the stack.
	ReserveCycle
)

func (s ReserveStatus) String() string {
	switch s {
	case ReserveFound:
		return "found"
	case ReserveOwned:
		return "owned"
	default:
		return "cycle"
	}
}

type instanceEntry[T any] struct {
	key  []int32
	args []*Type
	inst *T
	gen  uint64 // table generation that inserted the entry
}

type pendingInstance struct {
	owner uint64
	done  chan struct{}
}

// instanceTable is the per-template instance cache: entries sorted by the
// unique keys of their arguments, plus the reservations being built. It is
// guarded by the mutex of its owning node.
type instanceTable[T any] struct {
	entries []instanceEntry[T]
	pending map[string]*pendingInstance
	gen     uint64
}

func instanceKey(args []*Type) []int32 {
	key := make([]int32, len(args))
	for i, a := range args {
		key[i] = a.uniqueKey
	}
	return key
}

func keyString(key []int32) string {
	var sb strings.Builder
	for i, k := range key {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(k)))
	}
	return sb.String()
}

func (c *instanceTable[T]) search(key []int32) (int, bool) {
	return slices.BinarySearchFunc(c.entries, key, func(e instanceEntry[T], k []int32) int {
		return slices.Compare(e.key, k)
	})
}

func (c *instanceTable[T]) find(key []int32) *T {
	if i, ok := c.search(key); ok {
		return c.entries[i].inst
	}
	return nil
}

func (c *instanceTable[T]) insert(e instanceEntry[T]) *T {
	i, ok := c.search(e.key)
	if ok {
		return c.entries[i].inst
	}
	c.gen++
	e.gen = c.gen
	c.entries = slices.Insert(c.entries, i, e)
	return e.inst
}

// Reservation is the right to build one instance. Exactly one of Publish or
// Abandon must be called.
type Reservation[T any] struct {
	mu      *sync.Mutex
	table   *instanceTable[T]
	key     []int32
	keyStr  string
	args    []*Type
	pending *pendingInstance
	gen     uint64 // entries up to this generation were compared at reserve time
}

// Publish inserts inst into the cache and wakes goroutines waiting for it. It
// returns the cached instance, which is inst unless an instance for the same
// or an equivalent argument list was published meanwhile.
func (r *Reservation[T]) Publish(inst *T) *T {
	for {
		r.mu.Lock()
		if r.table.gen == r.gen {
			out := r.table.insert(instanceEntry[T]{key: r.key, args: r.args, inst: inst})
			r.release()
			r.mu.Unlock()
			return out
		}
		var fresh []instanceEntry[T]
		for _, e := range r.table.entries {
			if e.gen > r.gen && len(e.key) == len(r.key) {
				fresh = append(fresh, e)
			}
		}
		gen := r.table.gen
		r.mu.Unlock()

		for _, e := range fresh {
			if slices.Equal(e.key, r.key) || EquivalentLists(e.args, r.args, nil) {
				r.mu.Lock()
				r.release()
				r.mu.Unlock()
				return e.inst
			}
		}
		r.gen = gen
	}
}

// Abandon drops the reservation without caching anything.
func (r *Reservation[T]) Abandon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.release()
}

func (r *Reservation[T]) release() {
	if r.table.pending[r.keyStr] == r.pending {
		delete(r.table.pending, r.keyStr)
	}
	close(r.pending.done)
}

// reserve looks args up in the table. A miss on the exact unique keys falls
// back to an equivalence scan over same-arity entries, done without the lock
// because equivalence may populate lazy properties.
func (c *instanceTable[T]) reserve(mu *sync.Mutex, args []*Type) (*T, *Reservation[T], ReserveStatus) {
	key := instanceKey(args)
	ks := keyString(key)
	var self uint64
	for {
		mu.Lock()
		if inst := c.find(key); inst != nil {
			mu.Unlock()
			return inst, nil, ReserveFound
		}
		if p := c.pending[ks]; p != nil {
			if self == 0 {
				self = trace.GoroutineID()
			}
			if p.owner == self {
				mu.Unlock()
				return nil, nil, ReserveCycle
			}
			done := p.done
			mu.Unlock()
			<-done
			continue
		}
		var candidates []instanceEntry[T]
		for _, e := range c.entries {
			if len(e.key) == len(key) {
				candidates = append(candidates, e)
			}
		}
		gen := c.gen
		mu.Unlock()

		for _, e := range candidates {
			if EquivalentLists(e.args, args, nil) {
				return e.inst, nil, ReserveFound
			}
		}

		mu.Lock()
		if c.gen != gen || c.pending[ks] != nil {
			mu.Unlock()
			continue
		}
		if self == 0 {
			self = trace.GoroutineID()
		}
		p := &pendingInstance{owner: self, done: make(chan struct{})}
		if c.pending == nil {
			c.pending = make(map[string]*pendingInstance)
		}
		c.pending[ks] = p
		mu.Unlock()
		return nil, &Reservation[T]{
			mu:      mu,
			table:   c,
			key:     key,
			keyStr:  ks,
			args:    slices.Clone(args),
			pending: p,
			gen:     gen,
		}, ReserveOwned
	}
}

func (c *instanceTable[T]) snapshot(mu *sync.Mutex) []*T {
	mu.Lock()
	defer mu.Unlock()
	out := make([]*T, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.inst
	}
	return out
}

// ReserveInstance looks up the instance of t for the consolidated argument
// list args.
func (t *Type) ReserveInstance(args []*Type) (*Type, *Reservation[Type], ReserveStatus) {
	return t.instances.reserve(&t.mu, args)
}

// CachedInstance returns the instance for args if one was already published
// under exactly those argument nodes.
func (t *Type) CachedInstance(args []*Type) *Type {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.instances.find(instanceKey(args))
}

// Instances returns the published instances of t in key order.
func (t *Type) Instances() []*Type { return t.instances.snapshot(&t.mu) }

// ReserveInstance looks up the instance of generic method m for args.
func (m *Method) ReserveInstance(args []*Type) (*Method, *Reservation[Method], ReserveStatus) {
	return m.instances.reserve(&m.mu, args)
}

// Instances returns the published instances of m in key order.
func (m *Method) Instances() []*Method { return m.instances.snapshot(&m.mu) }

// CachedInstance returns the published instance of m for exactly args.
func (m *Method) CachedInstance(args []*Type) *Method {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances.find(instanceKey(args))
}
