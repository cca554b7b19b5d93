package names

import (
	"fmt"
	"slices"
	"sync"

	"fortio.org/safecast"
	"golang.org/x/text/encoding/unicode"
)

const initialSlots = 64

// Interner canonicalizes names into Identifiers. It is safe for concurrent use.
type Interner struct {
	mu    sync.RWMutex
	slots []*Identifier // open addressing, len is a power of two
	count int
	byKey []*Identifier // byKey[0] is the NoKey sentinel
	empty *Identifier
}

// NewInterner creates an interner holding only the empty identifier.
func NewInterner() *Interner {
	in := &Interner{
		slots: make([]*Identifier, initialSlots),
		byKey: []*Identifier{nil},
	}
	in.empty = in.insert("", hashString(""))
	return in
}

// Empty returns the identifier of the empty string.
func (in *Interner) Empty() *Identifier { return in.empty }

// Intern returns the identifier for s, creating it on first use.
func (in *Interner) Intern(s string) *Identifier {
	h := hashString(s)

	in.mu.RLock()
	id := in.findString(s, h)
	in.mu.RUnlock()
	if id != nil {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id := in.findString(s, h); id != nil {
		return id
	}
	// own copy so the caller's backing buffer can be reused
	return in.insert(string([]byte(s)), h)
}

// InternBytes interns a raw byte span. ASCII input is hashed and compared in
// place; any byte with the high bit set sends the span through UTF-8 decoding,
// which replaces invalid sequences with U+FFFD.
func (in *Interner) InternBytes(b []byte) *Identifier {
	for _, c := range b {
		if c >= 0x80 {
			return in.internUTF8(b)
		}
	}
	h := hashBytes(b)

	in.mu.RLock()
	id := in.findBytes(b, h)
	in.mu.RUnlock()
	if id != nil {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id := in.findBytes(b, h); id != nil {
		return id
	}
	return in.insert(string(b), h)
}

func (in *Interner) internUTF8(b []byte) *Identifier {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		// the UTF-8 decoder replaces bad input rather than failing
		decoded = b
	}
	return in.Intern(string(decoded))
}

// Find returns the identifier for s if it has been interned. Unlike Intern it
// never inserts.
func (in *Interner) Find(s string) (*Identifier, bool) {
	h := hashString(s)
	in.mu.RLock()
	defer in.mu.RUnlock()
	id := in.findString(s, h)
	return id, id != nil
}

// Lookup returns the identifier filed under key.
func (in *Interner) Lookup(key Key) (*Identifier, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if key <= NoKey || int(key) >= len(in.byKey) {
		return nil, false
	}
	return in.byKey[key], true
}

// Len returns the number of interned identifiers, the empty one included.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.count
}

// Capacity reports the number of hash slots.
func (in *Interner) Capacity() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.slots)
}

// Snapshot returns interned texts in key order.
func (in *Interner) Snapshot() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]string, 0, len(in.byKey)-1)
	for _, id := range in.byKey[1:] {
		out = append(out, id.text)
	}
	return slices.Clip(out)
}

func (in *Interner) findString(s string, h uint32) *Identifier {
	mask := uint32(len(in.slots) - 1)
	for i := h & mask; ; i = (i + 1) & mask {
		id := in.slots[i]
		if id == nil {
			return nil
		}
		if id.hash == h && id.text == s {
			return id
		}
	}
}

func (in *Interner) findBytes(b []byte, h uint32) *Identifier {
	mask := uint32(len(in.slots) - 1)
	for i := h & mask; ; i = (i + 1) & mask {
		id := in.slots[i]
		if id == nil {
			return nil
		}
		if id.hash == h && id.text == string(b) {
			return id
		}
	}
}

// insert requires the write lock.
func (in *Interner) insert(text string, h uint32) *Identifier {
	next, err := safecast.Conv[int32](len(in.byKey))
	if err != nil {
		panic(fmt.Errorf("names: interner overflow: %w", err))
	}
	id := &Identifier{text: text, hash: h, key: Key(next)}
	in.byKey = append(in.byKey, id)
	in.place(in.slots, id)
	in.count++
	if in.count*2 > len(in.slots) {
		in.grow()
	}
	return id
}

func (in *Interner) grow() {
	slots := make([]*Identifier, len(in.slots)*2)
	for _, id := range in.slots {
		if id != nil {
			in.place(slots, id)
		}
	}
	in.slots = slots
}

func (in *Interner) place(slots []*Identifier, id *Identifier) {
	mask := uint32(len(slots) - 1)
	i := id.hash & mask
	for slots[i] != nil {
		i = (i + 1) & mask
	}
	slots[i] = id
}
