package meta

import "slices"

// Substitution maps a node to the node it stands for, or returns nil to leave
// it alone. It is applied to both sides at every level of the comparison.
type Substitution func(*Type) *Type

// Equivalent reports whether a and b denote the same type. Identity is the
// fast path; otherwise structural types compare component-wise, instances
// compare their root template and consolidated arguments, and template
// parameters compare by position and constraints.
func Equivalent(a, b *Type, subst Substitution) bool {
	var e equivalence
	e.subst = subst
	return e.types(a, b)
}

// EquivalentLists compares two type lists pairwise.
func EquivalentLists(a, b []*Type, subst Substitution) bool {
	var e equivalence
	e.subst = subst
	return e.lists(a, b)
}

// Identical is the strict relation used for cache hits: the same node, or
// instances of the same template node over identical arguments.
func Identical(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.template == nil || a.template != b.template {
		return false
	}
	return slices.EqualFunc(a.consolidated, b.consolidated, Identical)
}

type typePair struct{ a, b *Type }

type equivalence struct {
	subst Substitution
	// assumed holds the parameter pairs still under comparison; meeting one
	// again is taken as success so self-referential constraints terminate.
	assumed map[typePair]struct{}
}

func (e *equivalence) apply(t *Type) *Type {
	if e.subst == nil || t == nil {
		return t
	}
	if r := e.subst(t); r != nil {
		return r
	}
	return t
}

func (e *equivalence) lists(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !e.types(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (e *equivalence) types(a, b *Type) bool {
	a, b = e.apply(a), e.apply(b)
	if a == b {
		return true
	}
	if a == nil || b == nil || a.kind != b.kind {
		return false
	}

	switch a.kind {
	case KindArray:
		return a.rank == b.rank && a.sz == b.sz &&
			slices.Equal(a.sizes, b.sizes) &&
			slices.Equal(a.lowerBounds, b.lowerBounds) &&
			e.types(a.elem, b.elem)

	case KindPointer, KindReference:
		return e.types(a.elem, b.elem)

	case KindOptionalModifier, KindRequiredModifier:
		return e.types(a.modifier, b.modifier) && e.types(a.elem, b.elem)

	case KindFunctionPointer:
		fa, fb := a.fn, b.fn
		return fa.cc == fb.cc && fa.varArgStart == fb.varArgStart &&
			e.types(fa.ret, fb.ret) && e.lists(fa.params, fb.params)

	case KindTypeParameter:
		return e.params(a, b)
	}

	if a.template != nil || b.template != nil {
		if a.template == nil || b.template == nil {
			return false
		}
		return a.template.Root() == b.template.Root() && e.lists(a.consolidated, b.consolidated)
	}
	// Two declarations: copies of the same original inside equivalent
	// declaring instances.
	if a.Root() != b.Root() || a.declaring == nil || b.declaring == nil {
		return false
	}
	return e.types(a.declaring, b.declaring)
}

func (e *equivalence) params(a, b *Type) bool {
	pa, pb := a.param, b.param
	if pa.index != pb.index || pa.methodScoped != pb.methodScoped {
		return false
	}
	if pa.methodScoped {
		return true
	}
	if !sameOwner(pa.owner, pb.owner) {
		return false
	}
	if pa.constraints != pb.constraints || pa.variance != pb.variance {
		return false
	}
	pair := typePair{a, b}
	if _, ok := e.assumed[pair]; ok {
		return true
	}
	if e.assumed == nil {
		e.assumed = make(map[typePair]struct{})
	}
	e.assumed[pair] = struct{}{}

	sa, sb := a.Signature(), b.Signature()
	ok := e.types(sa.BaseType, sb.BaseType) &&
		e.covers(sa.Interfaces, sb.Interfaces) && e.covers(sb.Interfaces, sa.Interfaces)
	delete(e.assumed, pair)
	return ok
}

// covers reports whether every type of want has an equivalent in have.
func (e *equivalence) covers(want, have []*Type) bool {
	for _, w := range want {
		if !slices.ContainsFunc(have, func(h *Type) bool { return e.types(w, h) }) {
			return false
		}
	}
	return true
}

func sameOwner(a, b Member) bool {
	if a == b {
		return true
	}
	switch ta := a.(type) {
	case *Type:
		tb, ok := b.(*Type)
		return ok && ta.Root() == tb.Root() && ta.declaring == tb.declaring
	case *Method:
		mb, ok := b.(*Method)
		return ok && ta.Root() == mb.Root()
	}
	return false
}
