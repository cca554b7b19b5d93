package names

import (
	"fmt"
	"sync"
	"testing"
)

func TestInternerBasic(t *testing.T) {
	in := NewInterner()

	a := in.Intern("hello")
	b := in.Intern("hello")
	if a != b {
		t.Fatalf("same text must intern to the same identifier")
	}
	if a.Key() <= NoKey {
		t.Fatalf("keys must be positive, got %d", a.Key())
	}
	c := in.Intern("world")
	if c.Key() == a.Key() {
		t.Fatalf("distinct text must not share a key")
	}
	if got, ok := in.Lookup(a.Key()); !ok || got != a {
		t.Fatalf("Lookup(%d) = %v, %v", a.Key(), got, ok)
	}
	if in.Len() != 3 { // "", "hello", "world"
		t.Fatalf("expected 3 identifiers, got %d", in.Len())
	}
}

func TestFindDoesNotInsert(t *testing.T) {
	in := NewInterner()
	hello := in.Intern("hello")
	before := in.Len()

	cases := []struct {
		text string
		want *Identifier
	}{
		{"hello", hello},
		{"", in.Empty()},
		{"missing", nil},
		{"hello ", nil},
	}
	for _, tc := range cases {
		got, ok := in.Find(tc.text)
		if got != tc.want || ok != (tc.want != nil) {
			t.Fatalf("Find(%q) = %v, %v", tc.text, got, ok)
		}
	}
	if in.Len() != before {
		t.Fatalf("Find grew the interner from %d to %d", before, in.Len())
	}
}

func TestInternerEmpty(t *testing.T) {
	in := NewInterner()
	if in.Intern("") != in.Empty() {
		t.Fatalf("empty text must map to the empty identifier")
	}
	if in.InternBytes(nil) != in.Empty() {
		t.Fatalf("nil bytes must map to the empty identifier")
	}
	if !in.Empty().IsEmpty() {
		t.Fatalf("empty identifier must report IsEmpty")
	}
	var nilID *Identifier
	if nilID.Text() != "" || nilID.Key() != NoKey {
		t.Fatalf("nil identifier accessors must be safe")
	}
}

func TestInternBytesMatchesString(t *testing.T) {
	in := NewInterner()
	byStr := in.Intern("System.Int32")
	byBytes := in.InternBytes([]byte("System.Int32"))
	if byStr != byBytes {
		t.Fatalf("ASCII bytes and string must intern to the same identifier")
	}
	if byStr.Hash() != hashBytes([]byte("System.Int32")) {
		t.Fatalf("string and byte hashes must agree")
	}
}

func TestInternBytesCopiesBuffer(t *testing.T) {
	in := NewInterner()
	buf := []byte("original")
	id := in.InternBytes(buf)
	buf[0] = 'X'
	if id.Text() != "original" {
		t.Fatalf("interner must keep its own copy, got %q", id.Text())
	}
}

func TestInternBytesUTF8Fallback(t *testing.T) {
	in := NewInterner()
	id := in.InternBytes([]byte("Größe"))
	if id != in.Intern("Größe") {
		t.Fatalf("valid UTF-8 bytes must match the decoded string")
	}
	bad := in.InternBytes([]byte{'a', 0xff, 'b'})
	if bad.Text() != "a\uFFFDb" {
		t.Fatalf("invalid UTF-8 must decode with replacement, got %q", bad.Text())
	}
}

func TestInternerGrowthKeepsKeys(t *testing.T) {
	in := NewInterner()
	start := in.Capacity()
	keys := make(map[string]Key)
	for i := range 5000 {
		s := fmt.Sprintf("name_%d", i)
		keys[s] = in.Intern(s).Key()
	}
	if in.Capacity() <= start {
		t.Fatalf("table should have grown past %d", start)
	}
	if in.Len()*2 > in.Capacity() {
		t.Fatalf("occupancy above one half: %d/%d", in.Len(), in.Capacity())
	}
	for s, k := range keys {
		if got := in.Intern(s).Key(); got != k {
			t.Fatalf("key of %q changed after growth: %d -> %d", s, k, got)
		}
	}
}

func TestInternerConcurrent(t *testing.T) {
	in := NewInterner()
	const workers = 32
	const count = 500

	results := make([][]*Identifier, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := range workers {
		go func() {
			defer wg.Done()
			out := make([]*Identifier, count)
			for i := range count {
				if i%2 == 0 {
					out[i] = in.Intern(fmt.Sprintf("s_%d", i))
				} else {
					out[i] = in.InternBytes(fmt.Appendf(nil, "s_%d", i))
				}
			}
			results[w] = out
		}()
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		for i := range count {
			if results[w][i] != results[0][i] {
				t.Fatalf("worker %d got a different identifier for s_%d", w, i)
			}
		}
	}
	if in.Len() != count+1 {
		t.Fatalf("expected %d identifiers, got %d", count+1, in.Len())
	}
}

func TestGlobalReset(t *testing.T) {
	before := Intern("global_reset_marker")
	if Intern("global_reset_marker") != before {
		t.Fatalf("global interner must be idempotent")
	}
	ResetForTesting()
	after := Intern("global_reset_marker")
	if after == before {
		t.Fatalf("reset must install a fresh interner")
	}
	if Empty() != Intern("") {
		t.Fatalf("empty identifier must survive the reset")
	}
}

func BenchmarkInternHit(b *testing.B) {
	in := NewInterner()
	in.Intern("benchmark")
	for b.Loop() {
		in.Intern("benchmark")
	}
}

func BenchmarkInternBytesHit(b *testing.B) {
	in := NewInterner()
	raw := []byte("benchmark")
	in.InternBytes(raw)
	for b.Loop() {
		in.InternBytes(raw)
	}
}
