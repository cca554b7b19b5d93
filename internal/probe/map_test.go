package probe

import (
	"math/rand/v2"
	"runtime"
	"testing"
)

func TestMapBasic(t *testing.T) {
	m := NewMap[string](0)
	m.Set(7, "seven")
	m.Set(23, "twenty-three") // 23 & 15 == 7, collides with 7
	if v, ok := m.Get(7); !ok || v != "seven" {
		t.Fatalf("Get(7) = %q, %v", v, ok)
	}
	if v, ok := m.Get(23); !ok || v != "twenty-three" {
		t.Fatalf("Get(23) = %q, %v", v, ok)
	}
	if !m.Delete(7) {
		t.Fatalf("Delete(7) should report presence")
	}
	// 23 sits behind the tombstone left by 7
	if v, ok := m.Get(23); !ok || v != "twenty-three" {
		t.Fatalf("probe chain broken by tombstone: %q, %v", v, ok)
	}
	if _, ok := m.Get(7); ok {
		t.Fatalf("deleted key still present")
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 live key, got %d", m.Len())
	}
}

func TestMapZeroValue(t *testing.T) {
	var m Map[int]
	if _, ok := m.Get(1); ok {
		t.Fatalf("zero map must be empty")
	}
	if m.Delete(1) {
		t.Fatalf("zero map delete must miss")
	}
	m.Set(1, 10)
	if v, _ := m.Get(1); v != 10 {
		t.Fatalf("zero map must accept Set")
	}
}

func TestMapRejectsNonPositiveKeys(t *testing.T) {
	for _, key := range []int32{0, -1, -42} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("key %d should panic", key)
				}
			}()
			m := NewMap[int](0)
			m.Set(key, 1)
		}()
	}
}

func TestMapGrowthKeepsPowerOfTwo(t *testing.T) {
	m := NewMap[int32](0)
	for k := int32(1); k <= 1000; k++ {
		m.Set(k, k*2)
		c := m.Cap()
		if c&(c-1) != 0 {
			t.Fatalf("capacity %d is not a power of two", c)
		}
		if m.Len()*2 > c {
			t.Fatalf("occupancy above one half: %d/%d", m.Len(), c)
		}
	}
	for k := int32(1); k <= 1000; k++ {
		if v, ok := m.Get(k); !ok || v != k*2 {
			t.Fatalf("Get(%d) = %d, %v after growth", k, v, ok)
		}
	}
}

func TestMapTombstonesDoNotForceGrowth(t *testing.T) {
	m := NewMap[int](0)
	start := m.Cap()
	for k := int32(1); k <= 10000; k++ {
		m.Set(k, int(k))
		m.Delete(k)
	}
	if m.Cap() != start {
		t.Fatalf("insert/delete cycles grew the table: %d -> %d", start, m.Cap())
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty map, got %d", m.Len())
	}
}

func TestMapRoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	m := NewMap[int](0)
	ref := make(map[int32]int)
	for i := range 20000 {
		key := rng.Int32N(512) + 1
		switch rng.IntN(3) {
		case 0, 1:
			m.Set(key, i)
			ref[key] = i
		case 2:
			_, want := ref[key]
			if got := m.Delete(key); got != want {
				t.Fatalf("Delete(%d) = %v, want %v", key, got, want)
			}
			delete(ref, key)
		}
	}
	if m.Len() != len(ref) {
		t.Fatalf("Len = %d, want %d", m.Len(), len(ref))
	}
	for key := int32(1); key <= 512; key++ {
		want, wantOK := ref[key]
		got, ok := m.Get(key)
		if ok != wantOK || got != want {
			t.Fatalf("Get(%d) = %d, %v; want %d, %v", key, got, ok, want, wantOK)
		}
	}
	seen := 0
	m.Range(func(key int32, v int) bool {
		if ref[key] != v {
			t.Fatalf("Range yielded stale %d=%d", key, v)
		}
		seen++
		return true
	})
	if seen != len(ref) {
		t.Fatalf("Range visited %d entries, want %d", seen, len(ref))
	}
}

func TestMapCloneIsIndependent(t *testing.T) {
	m := NewMap[string](0)
	m.Set(1, "a")
	c := m.Clone()
	c.Set(2, "b")
	m.Delete(1)
	if _, ok := m.Get(2); ok {
		t.Fatalf("clone writes leaked into the original")
	}
	if v, ok := c.Get(1); !ok || v != "a" {
		t.Fatalf("original deletes leaked into the clone")
	}
}

type payload struct {
	name string
	data [16]int64
}

func TestWeakMapHoldsLiveValues(t *testing.T) {
	m := NewWeakMap[payload](0)
	keep := make([]*payload, 0, 40)
	for k := int32(1); k <= 40; k++ {
		p := &payload{name: "p"}
		keep = append(keep, p)
		m.Set(k, p)
	}
	runtime.GC()
	for k := int32(1); k <= 40; k++ {
		if m.Get(k) != keep[k-1] {
			t.Fatalf("live referent %d lost", k)
		}
	}
	runtime.KeepAlive(keep)
}

func TestWeakMapDropsCollected(t *testing.T) {
	m := NewWeakMap[payload](0)
	survivor := &payload{name: "survivor"}
	m.Set(1, survivor)
	fill := func() {
		for k := int32(2); k <= 200; k++ {
			m.Set(k, &payload{name: "garbage"})
		}
	}
	fill()
	grown := m.Cap()

	collected := false
	for range 10 {
		runtime.GC()
		if m.Get(2) == nil {
			collected = true
			break
		}
	}
	if !collected {
		t.Skip("collector did not reclaim the test values")
	}
	for k := int32(3); k <= 200; k++ {
		m.Get(k)
	}
	if m.Get(1) != survivor {
		t.Fatalf("survivor dropped")
	}
	if m.Cap() >= grown {
		t.Fatalf("table should shrink once most referents died: %d -> %d", grown, m.Cap())
	}
	if m.Cap() < minCapacity {
		t.Fatalf("table shrank below the floor: %d", m.Cap())
	}
	runtime.KeepAlive(survivor)
}

func TestWeakMapSetNilDeletes(t *testing.T) {
	m := NewWeakMap[payload](0)
	p := &payload{}
	m.Set(5, p)
	m.Set(5, nil)
	if m.Get(5) != nil || m.Len() != 0 {
		t.Fatalf("nil Set must delete")
	}
	runtime.KeepAlive(p)
}

func BenchmarkMapGet(b *testing.B) {
	m := NewMap[int](1024)
	for k := int32(1); k <= 1024; k++ {
		m.Set(k, int(k))
	}
	k := int32(1)
	for b.Loop() {
		m.Get(k)
		k = k%1024 + 1
	}
}
