package names

// Key is the stable integer identity of an interned name. Keys are strictly
// positive, so they can be used directly as probe.Map keys.
type Key int32

// NoKey marks the absence of an identifier.
const NoKey Key = 0

// Identifier is an interned name. Two identifiers with equal text are the same
// pointer for the lifetime of the process, so identity comparison replaces
// string comparison.
type Identifier struct {
	text string
	hash uint32
	key  Key
}

// Text returns the interned text.
func (id *Identifier) Text() string {
	if id == nil {
		return ""
	}
	return id.text
}

// Hash returns the hash the interner filed the identifier under.
func (id *Identifier) Hash() uint32 {
	if id == nil {
		return 0
	}
	return id.hash
}

// Key returns the stable key, or NoKey for a nil identifier.
func (id *Identifier) Key() Key {
	if id == nil {
		return NoKey
	}
	return id.key
}

// IsEmpty reports whether the identifier has no text.
func (id *Identifier) IsEmpty() bool {
	return id == nil || id.text == ""
}

func (id *Identifier) String() string { return id.Text() }

const (
	fnvOffset = 2166136261
	fnvPrime  = 16777619
)

// hashString and hashBytes must agree for identical byte content.
func hashString(s string) uint32 {
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h & 0x7fffffff
}

func hashBytes(b []byte) uint32 {
	h := uint32(fnvOffset)
	for _, c := range b {
		h ^= uint32(c)
		h *= fnvPrime
	}
	return h & 0x7fffffff
}
