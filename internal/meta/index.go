package meta

import (
	"cilgraph/internal/names"
	"cilgraph/internal/probe"
)

// derivedIndex caches lookups computed from the member and nested type lists.
// It is rebuilt whenever either list is replaced.
type derivedIndex struct {
	members  *[]Member
	nested   *[]*Type
	byName   probe.Map[[]Member]
	ctors    []*Method
	implicit []*Method
	explicit []*Method
}

func (t *Type) invalidate() {
	t.mu.Lock()
	t.derived = nil
	t.mu.Unlock()
}

func (t *Type) index() *derivedIndex {
	members := t.Members()
	nested := t.NestedTypes()
	mp, np := t.members.value.Load(), t.nested.value.Load()

	t.mu.Lock()
	defer t.mu.Unlock()
	if d := t.derived; d != nil && d.members == mp && d.nested == np {
		return d
	}
	d := &derivedIndex{members: mp, nested: np}
	add := func(m Member) {
		key := int32(m.MemberName().Key())
		cur, _ := d.byName.Get(key)
		d.byName.Set(key, append(cur, m))
	}
	for _, m := range members {
		add(m)
		mt, ok := m.(*Method)
		if !ok {
			continue
		}
		if mt.IsConstructor() && !mt.IsStatic() {
			d.ctors = append(d.ctors, mt)
		}
		if conv, implicit := mt.IsConversion(); conv {
			if implicit {
				d.implicit = append(d.implicit, mt)
			} else {
				d.explicit = append(d.explicit, mt)
			}
		}
	}
	for _, n := range nested {
		add(n)
	}
	t.derived = d
	return d
}

// MembersNamed returns the members and nested types called name.
func (t *Type) MembersNamed(name string) []Member {
	id, ok := names.Find(name)
	if !ok {
		return nil
	}
	v, _ := t.index().byName.Get(int32(id.Key()))
	return v
}

// Field returns the field called name.
func (t *Type) Field(name string) *Field {
	for _, m := range t.MembersNamed(name) {
		if f, ok := m.(*Field); ok {
			return f
		}
	}
	return nil
}

// MethodsNamed returns every overload called name.
func (t *Type) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, m := range t.MembersNamed(name) {
		if mt, ok := m.(*Method); ok {
			out = append(out, mt)
		}
	}
	return out
}

// Method returns the overload called name whose parameter types are
// equivalent to params.
func (t *Type) Method(name string, params ...*Type) *Method {
	for _, m := range t.MethodsNamed(name) {
		if len(m.Parameters) != len(params) {
			continue
		}
		match := true
		for i, p := range m.Parameters {
			if !Equivalent(p.Type, params[i], nil) {
				match = false
				break
			}
		}
		if match {
			return m
		}
	}
	return nil
}

// Property returns the property called name.
func (t *Type) Property(name string) *Property {
	for _, m := range t.MembersNamed(name) {
		if p, ok := m.(*Property); ok {
			return p
		}
	}
	return nil
}

// Event returns the event called name.
func (t *Type) Event(name string) *Event {
	for _, m := range t.MembersNamed(name) {
		if e, ok := m.(*Event); ok {
			return e
		}
	}
	return nil
}

// NestedType returns the nested type called name. Only the nested type list
// is populated, not the members.
func (t *Type) NestedType(name string) *Type {
	id, ok := names.Find(name)
	if !ok {
		return nil
	}
	key := id.Key()
	for _, n := range t.NestedTypes() {
		if n.name.Key() == key {
			return n
		}
	}
	return nil
}

// Fields returns the fields in declaration order.
func (t *Type) Fields() []*Field {
	var out []*Field
	for _, m := range t.Members() {
		if f, ok := m.(*Field); ok {
			out = append(out, f)
		}
	}
	return out
}

// Methods returns the methods in declaration order.
func (t *Type) Methods() []*Method {
	var out []*Method
	for _, m := range t.Members() {
		if mt, ok := m.(*Method); ok {
			out = append(out, mt)
		}
	}
	return out
}

// Constructors returns the instance constructors.
func (t *Type) Constructors() []*Method { return t.index().ctors }

// ImplicitConversions returns the op_Implicit operators.
func (t *Type) ImplicitConversions() []*Method { return t.index().implicit }

// ExplicitConversions returns the op_Explicit operators.
func (t *Type) ExplicitConversions() []*Method { return t.index().explicit }

// UnderlyingType is the storage type of an enum, read from its value__ field.
func (t *Type) UnderlyingType() *Type {
	if t.kind != KindEnum {
		return nil
	}
	if f := t.Field("value__"); f != nil && !f.IsStatic() {
		return f.Type
	}
	return nil
}

// Invoke is the Invoke method of a delegate.
func (t *Type) Invoke() *Method {
	if t.kind != KindDelegate {
		return nil
	}
	ms := t.MethodsNamed("Invoke")
	if len(ms) == 0 {
		return nil
	}
	return ms[0]
}
