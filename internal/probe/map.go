// Package probe implements small open-addressing maps keyed by positive int32
// keys (interned identifier keys, type unique keys).
//
// A slot key of 0 marks an empty slot and -1 marks a tombstone. Tombstones keep
// probe chains intact after deletion and are reused by later inserts. They never
// count toward occupancy, so insert/delete cycles do not force growth; once live
// entries plus tombstones fill three quarters of the table it is rebuilt at a
// size chosen from the live count alone.
//
// Maps carry no lock. The owner of a map serializes access to it.
package probe

import (
	"fmt"

	"fortio.org/safecast"
)

const (
	emptyKey   int32 = 0
	deletedKey int32 = -1

	minCapacity = 16
)

type entry[V any] struct {
	key   int32
	value V
}

// Map is a strong associative cache. The zero value is ready to use.
type Map[V any] struct {
	entries []entry[V]
	count   int
	deleted int
}

// NewMap creates a map able to hold capacity entries without growing.
func NewMap[V any](capacity int) *Map[V] {
	m := &Map[V]{}
	m.entries = make([]entry[V], sizeFor(capacity))
	return m
}

// Len returns the number of live keys.
func (m *Map[V]) Len() int { return m.count }

// Cap returns the number of slots.
func (m *Map[V]) Cap() int { return len(m.entries) }

// Get returns the value stored under key.
func (m *Map[V]) Get(key int32) (V, bool) {
	checkKey(key)
	var zero V
	if len(m.entries) == 0 {
		return zero, false
	}
	mask := maskFor(len(m.entries))
	for i := key & mask; ; i = (i + 1) & mask {
		e := &m.entries[i]
		switch e.key {
		case emptyKey:
			return zero, false
		case key:
			return e.value, true
		}
	}
}

// Set stores value under key.
func (m *Map[V]) Set(key int32, value V) {
	checkKey(key)
	if len(m.entries) == 0 {
		m.entries = make([]entry[V], minCapacity)
	}
	mask := maskFor(len(m.entries))
	free := int32(-1)
	for i := key & mask; ; i = (i + 1) & mask {
		e := &m.entries[i]
		switch e.key {
		case key:
			e.value = value
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
			m.entries[free] = entry[V]{key: key, value: value}
			m.count++
			m.afterInsert()
			return
		}
	}
}

// Delete removes key and reports whether it was present.
func (m *Map[V]) Delete(key int32) bool {
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
			var zero V
			e.key = deletedKey
			e.value = zero
			m.count--
			m.deleted++
			return true
		}
	}
}

// Range calls fn for every live entry until fn returns false. Order is
// unspecified.
func (m *Map[V]) Range(fn func(key int32, value V) bool) {
	for _, e := range m.entries {
		if e.key > 0 && !fn(e.key, e.value) {
			return
		}
	}
}

// Clone returns a shallow copy: the slot array is duplicated, values are not.
func (m *Map[V]) Clone() *Map[V] {
	out := &Map[V]{count: m.count, deleted: m.deleted}
	if len(m.entries) > 0 {
		out.entries = make([]entry[V], len(m.entries))
		copy(out.entries, m.entries)
	}
	return out
}

func (m *Map[V]) afterInsert() {
	switch {
	case m.count*2 > len(m.entries):
		m.rehash(len(m.entries) * 2)
	case (m.count+m.deleted)*4 > len(m.entries)*3:
		m.rehash(sizeFor(m.count))
	}
}

func (m *Map[V]) rehash(size int) {
	old := m.entries
	m.entries = make([]entry[V], size)
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

// maskFor returns the probe mask of a table with size slots.
func maskFor(size int) int32 {
	mask, err := safecast.Conv[int32](size - 1)
	if err != nil {
		panic(fmt.Errorf("probe: table of %d slots: %w", size, err))
	}
	return mask
}

// sizeFor returns the smallest power of two, at least minCapacity, that keeps
// n entries at or under half occupancy.
func sizeFor(n int) int {
	size := minCapacity
	for size < n*2 {
		size <<= 1
	}
	return size
}

func checkKey(key int32) {
	if key <= 0 {
		panic(fmt.Sprintf("probe: key must be positive, got %d", key))
	}
}
