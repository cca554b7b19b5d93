package probe

import "weak"

type weakEntry[T any] struct {
	key int32
	ref weak.Pointer[T]
}

// WeakMap holds weak references. Entries whose referent has been collected read
// as absent. Dropping them eagerly is a space heuristic: a miss on a collected
// slot tombstones it, and once fewer than a quarter of the slots are live the
// table is rebuilt smaller, never below minCapacity.
type WeakMap[T any] struct {
	entries []weakEntry[T]
	count   int // slots holding a reference, collected or not
	deleted int
}

// NewWeakMap creates a weak map sized for capacity entries.
func NewWeakMap[T any](capacity int) *WeakMap[T] {
	return &WeakMap[T]{entries: make([]weakEntry[T], sizeFor(capacity))}
}

// Len returns the number of occupied slots. Entries collected since the last
// touch are still counted until a Get or rebuild notices them.
func (m *WeakMap[T]) Len() int { return m.count }

// Cap returns the number of slots.
func (m *WeakMap[T]) Cap() int { return len(m.entries) }

// Get returns the live referent stored under key, or nil.
func (m *WeakMap[T]) Get(key int32) *T {
	checkKey(key)
	if len(m.entries) == 0 {
		return nil
	}
	mask := maskFor(len(m.entries))
	for i := key & mask; ; i = (i + 1) & mask {
		e := &m.entries[i]
		switch e.key {
		case emptyKey:
			return nil
		case key:
			if v := e.ref.Value(); v != nil {
				return v
			}
			e.key = deletedKey
			e.ref = weak.Pointer[T]{}
			m.count--
			m.deleted++
			m.maybeShrink()
			return nil
		}
	}
}

// Set stores a weak reference to value under key. A nil value deletes key.
func (m *WeakMap[T]) Set(key int32, value *T) {
	checkKey(key)
	if value == nil {
		m.Delete(key)
		return
	}
	if len(m.entries) == 0 {
		m.entries = make([]weakEntry[T], minCapacity)
	}
	ref := weak.Make(value)
	mask := maskFor(len(m.entries))
	free := int32(-1)
	for i := key & mask; ; i = (i + 1) & mask {
		e := &m.entries[i]
		switch e.key {
		case key:
			e.ref = ref
			m.maybeShrink()
			return
		case deletedKey:
			if free < 0 {
				free = i
			}
			continue
		case emptyKey:
			if free >= 0 {
				m.deleted--
			} else {
				free = i
			}
			m.entries[free] = weakEntry[T]{key: key, ref: ref}
			m.count++
			if m.count*2 > len(m.entries) || (m.count+m.deleted)*4 > len(m.entries)*3 {
				m.rebuild()
			} else {
				m.maybeShrink()
			}
			return
		}
	}
}

// Delete removes key and reports whether a slot was occupied.
func (m *WeakMap[T]) Delete(key int32) bool {
	checkKey(key)
	if len(m.entries) == 0 {
		return false
	}
	mask := maskFor(len(m.entries))
	for i := key & mask; ; i = (i + 1) & mask {
		e := &m.entries[i]
		switch e.key {
		case emptyKey:
			return false
		case key:
			e.key = deletedKey
			e.ref = weak.Pointer[T]{}
			m.count--
			m.deleted++
			return true
		}
	}
}

// Range calls fn for every entry whose referent is still alive.
func (m *WeakMap[T]) Range(fn func(key int32, value *T) bool) {
	for _, e := range m.entries {
		if e.key <= 0 {
			continue
		}
		if v := e.ref.Value(); v != nil && !fn(e.key, v) {
			return
		}
	}
}

// Clone returns a shallow copy of the slot array.
func (m *WeakMap[T]) Clone() *WeakMap[T] {
	out := &WeakMap[T]{count: m.count, deleted: m.deleted}
	if len(m.entries) > 0 {
		out.entries = make([]weakEntry[T], len(m.entries))
		copy(out.entries, m.entries)
	}
	return out
}

// Compact drops every collected entry and resizes to fit the survivors.
func (m *WeakMap[T]) Compact() {
	m.rebuild()
}

// maybeShrink only fires after something was removed, so a presized table is
// left alone until entries start dying.
func (m *WeakMap[T]) maybeShrink() {
	if m.deleted > 0 && len(m.entries) > minCapacity && m.count*4 < len(m.entries) {
		m.rebuild()
	}
}

// rebuild drops collected entries and rehashes the survivors into the smallest
// table that keeps them at or under half occupancy.
func (m *WeakMap[T]) rebuild() {
	old := m.entries
	live := 0
	for i := range old {
		if old[i].key > 0 {
			if old[i].ref.Value() == nil {
				old[i].key = deletedKey
				continue
			}
			live++
		}
	}
	size := sizeFor(live)
	m.entries = make([]weakEntry[T], size)
	m.count = live
	m.deleted = 0
	mask := maskFor(size)
	for _, e := range old {
		if e.key <= 0 {
			continue
		}
		i := e.key & mask
		for m.entries[i].key != emptyKey {
			i = (i + 1) & mask
		}
		m.entries[i] = e
	}
}
