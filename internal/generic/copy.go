package generic

import (
	"errors"

	"cilgraph/internal/meta"
)

// errDefinitionBusy defers copying from a definition whose property is still
// being populated further up the stack. The copy stays unpopulated and is
// filled on a later access.
var errDefinitionBusy = errors.New("generic: definition is being populated")

func settled(from *meta.Type, p meta.LazyProperty) error {
	if from.PopulationState(p) == meta.Populating {
		return errDefinitionBusy
	}
	return nil
}

// duplicator records, for one instance, the copy made of every definition
// nested in the template and of every method.
type duplicator struct {
	types   map[*meta.Type]*meta.Type
	methods map[*meta.Method]*meta.Method
}

func newDuplicator() *duplicator {
	return &duplicator{
		types:   make(map[*meta.Type]*meta.Type),
		methods: make(map[*meta.Method]*meta.Method),
	}
}

// copyState is the provider handle of an instance or of a nested copy.
type copyState struct {
	from *meta.Type
	s    *specializer
	// forked is set once s binds from's own template parameters.
	forked bool
	params []*meta.Type
}

func instanceSignature(t *meta.Type, handle any) (meta.Signature, error) {
	st := handle.(*copyState)
	if err := settled(st.from, meta.PropSignature); err != nil {
		return meta.Signature{}, err
	}
	sig, err := st.from.LoadSignature()
	if err != nil {
		return meta.Signature{}, err
	}
	out := meta.Signature{
		BaseType:   st.s.typ(sig.BaseType),
		Interfaces: st.s.types(sig.Interfaces),
	}
	return out, st.s.takeErr()
}

// copySignature populates a nested copy. A generic nested definition gets
// fresh template parameters owned by the copy, published before the base type
// and interfaces are rewritten so they can refer to them.
func copySignature(t *meta.Type, handle any) (meta.Signature, error) {
	st := handle.(*copyState)
	if err := settled(st.from, meta.PropSignature); err != nil {
		return meta.Signature{}, err
	}
	sig, err := st.from.LoadSignature()
	if err != nil {
		return meta.Signature{}, err
	}
	if !st.forked {
		if len(sig.TemplateParameters) > 0 {
			st.s = st.s.fork()
			st.params = copyParameters(st.s, sig.TemplateParameters, t)
		}
		st.forked = true
	}
	if len(st.params) > 0 {
		t.SetTemplateParameters(st.params)
	}
	out := meta.Signature{
		BaseType:           st.s.typ(sig.BaseType),
		Interfaces:         st.s.types(sig.Interfaces),
		TemplateParameters: st.params,
	}
	return out, st.s.takeErr()
}

// copyParameters duplicates template parameters for owner, binds each
// original to its copy in s and specializes their constraints lazily.
func copyParameters(s *specializer, params []*meta.Type, owner meta.Member) []*meta.Type {
	out := make([]*meta.Type, len(params))
	for i, p := range params {
		out[i] = meta.CopyTypeParameter(p, owner)
		s.bind.Set(p.UniqueKey(), out[i])
	}
	for i, p := range params {
		// The provider cannot fail with a non-nil function.
		_ = out[i].ProvideSignature(constraintSignature, &constraintState{from: p, s: s})
	}
	return out
}

type constraintState struct {
	from *meta.Type
	s    *specializer
}

func constraintSignature(_ *meta.Type, handle any) (meta.Signature, error) {
	st := handle.(*constraintState)
	if err := settled(st.from, meta.PropSignature); err != nil {
		return meta.Signature{}, err
	}
	sig, err := st.from.LoadSignature()
	if err != nil {
		return meta.Signature{}, err
	}
	out := meta.Signature{
		BaseType:   st.s.typ(sig.BaseType),
		Interfaces: st.s.types(sig.Interfaces),
	}
	return out, st.s.takeErr()
}

// copyNestedTypes creates a copy of every nested definition of from, declared
// in t.
func copyNestedTypes(t *meta.Type, handle any) ([]*meta.Type, error) {
	st := handle.(*copyState)
	if _, err := t.LoadSignature(); err != nil {
		return nil, err
	}
	if err := settled(st.from, meta.PropNestedTypes); err != nil {
		return nil, err
	}
	src, err := st.from.LoadNestedTypes()
	if err != nil {
		return nil, err
	}
	out := make([]*meta.Type, len(src))
	for i, n := range src {
		c := meta.NewCopy(n, t)
		st.s.dup.types[n] = c
		cs := &copyState{from: n, s: st.s}
		// Providers are non-nil; install cannot fail.
		_ = c.ProvideSignature(copySignature, cs)
		_ = c.ProvideNestedTypes(copyNestedTypes, cs)
		_ = c.ProvideMembers(copyMembers, cs)
		_ = c.ProvideAttributes(copyAttributes, cs)
		out[i] = c
	}
	return out, nil
}

// copyMembers copies the members of from into t. Methods are copied first so
// that overrides and property and event accessors map to the copies.
func copyMembers(t *meta.Type, handle any) ([]meta.Member, error) {
	st := handle.(*copyState)
	if _, err := t.LoadSignature(); err != nil {
		return nil, err
	}
	if _, err := t.LoadNestedTypes(); err != nil {
		return nil, err
	}
	if err := settled(st.from, meta.PropMembers); err != nil {
		return nil, err
	}
	src, err := st.from.LoadMembers()
	if err != nil {
		return nil, err
	}
	s := st.s

	for _, m := range src {
		if m, ok := m.(*meta.Method); ok {
			copyMethod(s, m, t)
		}
	}
	out := make([]meta.Member, 0, len(src))
	for _, m := range src {
		switch m := m.(type) {
		case *meta.Method:
			c := s.dup.methods[m]
			c.Overrides = s.methods(m.Overrides)
			out = append(out, c)
		case *meta.Field:
			out = append(out, &meta.Field{
				Name:      m.Name,
				Declaring: t,
				Flags:     m.Flags,
				Type:      s.typ(m.Type),
				Constant:  m.Constant,
				Attrs:     s.attributes(m.Attrs),
				Origin:    m,
			})
		case *meta.Property:
			out = append(out, &meta.Property{
				Name:       m.Name,
				Declaring:  t,
				Type:       s.typ(m.Type),
				Parameters: s.params(m.Parameters),
				Getter:     s.method(m.Getter),
				Setter:     s.method(m.Setter),
				Attrs:      s.attributes(m.Attrs),
				Origin:     m,
			})
		case *meta.Event:
			out = append(out, &meta.Event{
				Name:        m.Name,
				Declaring:   t,
				HandlerType: s.typ(m.HandlerType),
				Adder:       s.method(m.Adder),
				Remover:     s.method(m.Remover),
				Raiser:      s.method(m.Raiser),
				Attrs:       s.attributes(m.Attrs),
				Origin:      m,
			})
		}
	}
	return out, s.takeErr()
}

// copyMethod copies m into declaring. A generic method gets its own
// template parameters and a forked specializer binding them.
func copyMethod(s *specializer, m *meta.Method, declaring *meta.Type) *meta.Method {
	c := &meta.Method{
		Name:              m.Name,
		Declaring:         declaring,
		Flags:             m.Flags,
		CallingConvention: m.CallingConvention,
		Body:              m.Body,
		Origin:            m,
	}
	s.dup.methods[m] = c
	ms := s
	if m.IsGeneric() {
		ms = s.fork()
		c.TemplateParameters = copyParameters(ms, m.TemplateParameters, c)
	}
	c.ReturnType = ms.typ(m.ReturnType)
	c.Parameters = ms.params(m.Parameters)
	c.Attrs = ms.attributes(m.Attrs)
	if ms != s {
		if err := ms.takeErr(); err != nil {
			s.fail(err)
		}
	}
	return c
}

func copyAttributes(t *meta.Type, handle any) ([]*meta.Attribute, error) {
	st := handle.(*copyState)
	if err := settled(st.from, meta.PropAttributes); err != nil {
		return nil, err
	}
	src, err := st.from.LoadAttributes()
	if err != nil {
		return nil, err
	}
	if _, err := t.LoadSignature(); err != nil {
		return nil, err
	}
	out := st.s.attributes(src)
	return out, st.s.takeErr()
}
