package names

import "sync/atomic"

var global atomic.Pointer[Interner]

func init() {
	global.Store(NewInterner())
}

// Default returns the process-wide interner.
func Default() *Interner { return global.Load() }

// Intern canonicalizes s in the process-wide interner.
func Intern(s string) *Identifier { return global.Load().Intern(s) }

// InternBytes canonicalizes a raw byte span in the process-wide interner.
func InternBytes(b []byte) *Identifier { return global.Load().InternBytes(b) }

// Find reports the identifier for s in the process-wide interner without
// creating one.
func Find(s string) (*Identifier, bool) { return global.Load().Find(s) }

// Lookup resolves a key in the process-wide interner.
func Lookup(key Key) (*Identifier, bool) { return global.Load().Lookup(key) }

// Empty returns the process-wide empty identifier.
func Empty() *Identifier { return global.Load().Empty() }

// ResetForTesting replaces the process-wide interner with a fresh one.
// Identifiers handed out before the reset keep their old keys and must not be
// mixed with identifiers created after it.
func ResetForTesting() {
	global.Store(NewInterner())
}
