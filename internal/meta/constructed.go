package meta

import (
	"strconv"
	"strings"
	"sync"

	"cilgraph/internal/names"
	"cilgraph/internal/probe"
)

// Structural types are cached per module of their element, weakly: while
// anything references Int32[] every request returns the same node.

var detached = struct {
	sync.Mutex
	cache *probe.WeakMap[Type]
}{cache: probe.NewWeakMap[Type](0)}

func cacheConstructed(owner *Module, key string, mk func() *Type) *Type {
	if owner != nil {
		return owner.constructedType(key, mk)
	}
	k := int32(internKey(key))
	detached.Lock()
	defer detached.Unlock()
	if t := detached.cache.Get(k); t != nil {
		return t
	}
	t := mk()
	detached.cache.Set(k, t)
	return t
}

func internKey(s string) names.Key { return names.Intern(s).Key() }

func uidKey(sb *strings.Builder, t *Type) {
	sb.WriteByte('#')
	sb.WriteString(strconv.Itoa(int(t.uniqueKey)))
}

// SZArrayOf returns the single-dimensional zero-based array of elem.
func SZArrayOf(elem *Type) *Type {
	var sb strings.Builder
	uidKey(&sb, elem)
	sb.WriteString("[]")
	return cacheConstructed(elem.module, sb.String(), func() *Type {
		return &Type{
			kind:      KindArray,
			uniqueKey: nextUniqueKey(),
			module:    elem.module,
			elem:      elem,
			rank:      1,
			sz:        true,
			flags:     TypePublic,
			fullName:  elem.FullName() + "[]",
		}
	})
}

// ArrayOf returns the multi-dimensional array of elem. sizes and lowerBounds
// may be shorter than rank.
func ArrayOf(elem *Type, rank int, sizes, lowerBounds []int) *Type {
	if rank < 1 {
		rank = 1
	}
	suffix := arraySuffix(rank, sizes, lowerBounds)
	var sb strings.Builder
	uidKey(&sb, elem)
	sb.WriteString(suffix)
	return cacheConstructed(elem.module, sb.String(), func() *Type {
		return &Type{
			kind:        KindArray,
			uniqueKey:   nextUniqueKey(),
			module:      elem.module,
			elem:        elem,
			rank:        rank,
			sizes:       append([]int(nil), sizes...),
			lowerBounds: append([]int(nil), lowerBounds...),
			flags:       TypePublic,
			fullName:    elem.FullName() + suffix,
		}
	})
}

// arraySuffix renders dimensions the way ilasm writes them: "[,]", "[0...3]",
// "[*]" for a rank-1 array that is not zero-based single-dimensional.
func arraySuffix(rank int, sizes, lowerBounds []int) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := range rank {
		if i > 0 {
			sb.WriteByte(',')
		}
		hasLo, hasSize := i < len(lowerBounds), i < len(sizes)
		switch {
		case hasLo && hasSize:
			lo := lowerBounds[i]
			sb.WriteString(strconv.Itoa(lo))
			sb.WriteString("...")
			sb.WriteString(strconv.Itoa(lo + sizes[i] - 1))
		case hasSize:
			sb.WriteString(strconv.Itoa(sizes[i]))
		case hasLo:
			sb.WriteString(strconv.Itoa(lowerBounds[i]))
			sb.WriteString("...")
		case rank == 1:
			sb.WriteByte('*')
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

func wrapper(kind Kind, elem *Type, suffix string) *Type {
	var sb strings.Builder
	uidKey(&sb, elem)
	sb.WriteString(suffix)
	return cacheConstructed(elem.module, sb.String(), func() *Type {
		return &Type{
			kind:      kind,
			uniqueKey: nextUniqueKey(),
			module:    elem.module,
			elem:      elem,
			flags:     TypePublic,
			fullName:  elem.FullName() + suffix,
		}
	})
}

// PointerTo returns the unmanaged pointer to elem.
func PointerTo(elem *Type) *Type { return wrapper(KindPointer, elem, "*") }

// ReferenceTo returns the managed reference to elem.
func ReferenceTo(elem *Type) *Type { return wrapper(KindReference, elem, "&") }

func modified(kind Kind, modifier, elem *Type) *Type {
	word := " modopt("
	if kind == KindRequiredModifier {
		word = " modreq("
	}
	var sb strings.Builder
	uidKey(&sb, elem)
	sb.WriteString(word)
	uidKey(&sb, modifier)
	return cacheConstructed(elem.module, sb.String(), func() *Type {
		return &Type{
			kind:      kind,
			uniqueKey: nextUniqueKey(),
			module:    elem.module,
			elem:      elem,
			modifier:  modifier,
			flags:     TypePublic,
			fullName:  elem.FullName() + word + modifier.FullName() + ")",
		}
	})
}

// OptionalModifierOf returns elem annotated with modopt(modifier).
func OptionalModifierOf(modifier, elem *Type) *Type {
	return modified(KindOptionalModifier, modifier, elem)
}

// RequiredModifierOf returns elem annotated with modreq(modifier).
func RequiredModifierOf(modifier, elem *Type) *Type {
	return modified(KindRequiredModifier, modifier, elem)
}

// FunctionPointerOf returns the function pointer type with the given
// signature. varArgStart is the index of the vararg sentinel or -1.
func FunctionPointerOf(cc CallingConvention, ret *Type, params []*Type, varArgStart int) *Type {
	if varArgStart < 0 || varArgStart > len(params) {
		varArgStart = -1
	}
	var key, name strings.Builder
	key.WriteString("fnptr:")
	key.WriteString(strconv.Itoa(int(cc)))
	key.WriteByte(':')
	uidKey(&key, ret)
	name.WriteString("method ")
	if cc != CallDefault {
		name.WriteString(cc.String())
		name.WriteByte(' ')
	}
	name.WriteString(ret.FullName())
	name.WriteString(" *(")
	for i, p := range params {
		if i == varArgStart {
			key.WriteString(";...")
			if i > 0 {
				name.WriteByte(',')
			}
			name.WriteString("...")
		}
		key.WriteByte(',')
		uidKey(&key, p)
		if i > 0 || i == varArgStart {
			name.WriteByte(',')
		}
		name.WriteString(p.FullName())
	}
	if varArgStart == len(params) {
		key.WriteString(";...")
		if len(params) > 0 {
			name.WriteByte(',')
		}
		name.WriteString("...")
	}
	name.WriteByte(')')
	return cacheConstructed(ret.module, key.String(), func() *Type {
		return &Type{
			kind:      KindFunctionPointer,
			uniqueKey: nextUniqueKey(),
			module:    ret.module,
			flags:     TypePublic,
			fullName:  name.String(),
			fn: &fnSig{
				ret:         ret,
				params:      append([]*Type(nil), params...),
				cc:          cc,
				varArgStart: varArgStart,
			},
		}
	})
}
