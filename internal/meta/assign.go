package meta

// maxHierarchyDepth bounds base-type walks over malformed metadata whose base
// chain loops.
const maxHierarchyDepth = 256

// DerivesFrom reports whether an equivalent of base occurs in t's base chain.
func (t *Type) DerivesFrom(base *Type) bool {
	b := t.BaseType()
	for range maxHierarchyDepth {
		if b == nil {
			return false
		}
		if Equivalent(b, base, nil) {
			return true
		}
		b = b.BaseType()
	}
	return false
}

// Supertypes returns the base chain followed by every interface t implements,
// directly or inherited, without duplicates.
func (t *Type) Supertypes() []*Type {
	var out []*Type
	seen := make(map[int32]bool)
	var visit func(x *Type, depth int)
	visit = func(x *Type, depth int) {
		if x == nil || depth > maxHierarchyDepth || seen[x.uniqueKey] {
			return
		}
		seen[x.uniqueKey] = true
		if x != t {
			out = append(out, x)
		}
		visit(x.BaseType(), depth+1)
		for _, i := range x.Interfaces() {
			visit(i, depth+1)
		}
	}
	visit(t, 0)
	return out
}

// Implements reports whether t implements iface, counting variance.
func (t *Type) Implements(iface *Type) bool {
	for _, s := range t.Supertypes() {
		if s.kind == KindInterface && (Equivalent(s, iface, nil) || variantConvertible(s, iface)) {
			return true
		}
	}
	return false
}

// IsAssignableTo reports whether a value of type src can be stored in a
// location of type dst without a representation change.
func IsAssignableTo(src, dst *Type) bool {
	if src == nil || dst == nil {
		return false
	}
	if Equivalent(src, dst, nil) {
		return true
	}
	if src.kind.IsModifier() {
		return IsAssignableTo(src.elem, dst)
	}
	if dst.kind.IsModifier() {
		return IsAssignableTo(src, dst.elem)
	}
	if src.kind == KindArray && dst.kind == KindArray {
		if src.rank == dst.rank && src.sz == dst.sz && src.elem.IsReferenceType() {
			return IsAssignableTo(src.elem, dst.elem)
		}
		return false
	}
	if variantConvertible(src, dst) {
		return true
	}
	for _, s := range src.Supertypes() {
		if Equivalent(s, dst, nil) || variantConvertible(s, dst) {
			return true
		}
	}
	return false
}

// variantConvertible checks generic variance between two instances of the
// same interface or delegate template.
func variantConvertible(src, dst *Type) bool {
	if src.template == nil || dst.template == nil || src.template.Root() != dst.template.Root() {
		return false
	}
	if src.kind != KindInterface && src.kind != KindDelegate {
		return false
	}
	params := src.template.TemplateParameters()
	sa, da := src.templateArgs, dst.templateArgs
	if len(params) != len(sa) || len(sa) != len(da) {
		return false
	}
	if !EquivalentLists(src.consolidated[:len(src.consolidated)-len(sa)],
		dst.consolidated[:len(dst.consolidated)-len(da)], nil) {
		return false
	}
	for i, p := range params {
		if Equivalent(sa[i], da[i], nil) {
			continue
		}
		switch p.Variance() {
		case Covariant:
			if !sa[i].IsReferenceType() || !IsAssignableTo(sa[i], da[i]) {
				return false
			}
		case Contravariant:
			if !da[i].IsReferenceType() || !IsAssignableTo(da[i], sa[i]) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
