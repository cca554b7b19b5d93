package generic

import (
	"slices"

	"cilgraph/internal/meta"
	"cilgraph/internal/probe"
	"cilgraph/internal/trace"
)

// specializer rewrites types and members of a generic definition for one set
// of template arguments. bind maps template parameters by unique key to their
// replacements; memo remembers every rewritten type. A specializer is only
// used under the population lock or by a single goroutine.
type specializer struct {
	e      *Engine
	tr     trace.Tracer
	module *meta.Module
	dup    *duplicator

	bind *probe.Map[*meta.Type]
	memo *probe.Map[*meta.Type]
	err  error
}

func newSpecializer(e *Engine, tr trace.Tracer, module *meta.Module, dup *duplicator) *specializer {
	return &specializer{
		e:      e,
		tr:     tr,
		module: module,
		dup:    dup,
		bind:   probe.NewMap[*meta.Type](0),
		memo:   probe.NewMap[*meta.Type](0),
	}
}

// fork returns a specializer that starts with s's bindings and memo and can
// bind more parameters without affecting s.
func (s *specializer) fork() *specializer {
	return &specializer{
		e:      s.e,
		tr:     s.tr,
		module: s.module,
		dup:    s.dup,
		bind:   s.bind.Clone(),
		memo:   s.memo.Clone(),
	}
}

// takeErr returns and clears the first error met while rewriting.
func (s *specializer) takeErr() error {
	err := s.err
	s.err = nil
	return err
}

func (s *specializer) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *specializer) typ(t *meta.Type) *meta.Type {
	if t == nil {
		return nil
	}
	if v, ok := s.memo.Get(t.UniqueKey()); ok {
		return v
	}
	out := s.rewrite(t)
	s.memo.Set(t.UniqueKey(), out)
	return out
}

func (s *specializer) types(ts []*meta.Type) []*meta.Type {
	out, _ := s.list(ts)
	return out
}

// list rewrites ts and reports whether any element changed. An unchanged
// list is returned as is.
func (s *specializer) list(ts []*meta.Type) ([]*meta.Type, bool) {
	var out []*meta.Type
	for i, t := range ts {
		r := s.typ(t)
		if r != t && out == nil {
			out = slices.Clone(ts)
		}
		if out != nil {
			out[i] = r
		}
	}
	if out == nil {
		return ts, false
	}
	return out, true
}

func (s *specializer) rewrite(t *meta.Type) *meta.Type {
	switch t.Kind() {
	case meta.KindTypeParameter:
		if r, ok := s.bind.Get(t.UniqueKey()); ok {
			return r
		}
		return t

	case meta.KindArray:
		elem := s.typ(t.ElementType())
		if elem == t.ElementType() {
			return t
		}
		if t.IsSZArray() {
			return meta.SZArrayOf(elem)
		}
		return meta.ArrayOf(elem, t.Rank(), t.Sizes(), t.LowerBounds())

	case meta.KindPointer:
		if elem := s.typ(t.ElementType()); elem != t.ElementType() {
			return meta.PointerTo(elem)
		}
		return t

	case meta.KindReference:
		if elem := s.typ(t.ElementType()); elem != t.ElementType() {
			return meta.ReferenceTo(elem)
		}
		return t

	case meta.KindOptionalModifier, meta.KindRequiredModifier:
		mod, elem := s.typ(t.Modifier()), s.typ(t.ElementType())
		if mod == t.Modifier() && elem == t.ElementType() {
			return t
		}
		if t.Kind() == meta.KindOptionalModifier {
			return meta.OptionalModifierOf(mod, elem)
		}
		return meta.RequiredModifierOf(mod, elem)

	case meta.KindFunctionPointer:
		ret := s.typ(t.ReturnType())
		params, changed := s.list(t.ParameterTypes())
		if !changed && ret == t.ReturnType() {
			return t
		}
		return meta.FunctionPointerOf(t.CallingConvention(), ret, params, t.VarArgStart())
	}

	if s.dup != nil {
		if c, ok := s.dup.types[t]; ok {
			return c
		}
	}
	if t.IsInstance() {
		cons, changed := s.list(t.ConsolidatedTemplateArguments())
		if !changed {
			return t
		}
		return s.instance(t.Template(), cons, t)
	}
	// A definition nested in a generic type stands for its copy inside the
	// specialized declaring instance.
	if t.GenericContextSize() == 0 {
		return t
	}
	cons, changed := s.list(t.DeclaringType().ConsolidatedTemplateArguments())
	if !changed {
		return t
	}
	outer := s.instance(t.DeclaringType(), cons, t.DeclaringType())
	if c := correspondingType(outer, t); c != nil {
		return c
	}
	return t
}

func (s *specializer) instance(decl *meta.Type, cons []*meta.Type, fallback *meta.Type) *meta.Type {
	r, err := s.e.consolidated(s.tr, decl, cons, s.module)
	if err != nil {
		s.fail(err)
		return fallback
	}
	return r
}

// correspondingType finds the copy of decl among the nested types of outer.
func correspondingType(outer, decl *meta.Type) *meta.Type {
	if outer == nil {
		return nil
	}
	root := decl.Root()
	for _, n := range outer.NestedTypes() {
		if n.Root() == root {
			return n
		}
	}
	return nil
}

// correspondingMethod finds the copy of m among the methods of t.
func correspondingMethod(t *meta.Type, m *meta.Method) *meta.Method {
	root := m.Root()
	for _, c := range t.Methods() {
		if c.Root() == root {
			return c
		}
	}
	return nil
}

func (s *specializer) method(m *meta.Method) *meta.Method {
	if m == nil {
		return nil
	}
	if s.dup != nil {
		if c, ok := s.dup.methods[m]; ok {
			return c
		}
	}
	if m.IsInstance() {
		tmpl := s.method(m.Template)
		args, changed := s.list(m.TemplateArguments)
		if !changed && tmpl == m.Template {
			return m
		}
		r, err := s.e.instantiateMethod(s.tr, tmpl, args)
		if err != nil {
			s.fail(err)
			return m
		}
		return r
	}
	decl := s.typ(m.Declaring)
	if decl == m.Declaring {
		return m
	}
	if c := correspondingMethod(decl, m); c != nil {
		return c
	}
	return m
}

func (s *specializer) methods(ms []*meta.Method) []*meta.Method {
	if len(ms) == 0 {
		return nil
	}
	out := make([]*meta.Method, len(ms))
	for i, m := range ms {
		out[i] = s.method(m)
	}
	return out
}

func (s *specializer) params(ps []*meta.Parameter) []*meta.Parameter {
	if len(ps) == 0 {
		return nil
	}
	out := make([]*meta.Parameter, len(ps))
	for i, p := range ps {
		out[i] = &meta.Parameter{
			Name:     p.Name,
			Type:     s.typ(p.Type),
			Position: p.Position,
			Flags:    p.Flags,
			Default:  p.Default,
			Attrs:    s.attributes(p.Attrs),
		}
	}
	return out
}

func (s *specializer) attributes(attrs []*meta.Attribute) []*meta.Attribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]*meta.Attribute, len(attrs))
	for i, a := range attrs {
		c := &meta.Attribute{
			Type:        s.typ(a.Type),
			Constructor: s.method(a.Constructor),
			Positional:  make([]meta.AttributeArgument, len(a.Positional)),
			Named:       make([]meta.NamedArgument, len(a.Named)),
		}
		for j, arg := range a.Positional {
			c.Positional[j] = s.argument(arg)
		}
		for j, n := range a.Named {
			c.Named[j] = meta.NamedArgument{Name: n.Name, IsField: n.IsField, AttributeArgument: s.argument(n.AttributeArgument)}
		}
		out[i] = c
	}
	return out
}

// argument rewrites the type of an attribute argument and any type it
// carries as its value.
func (s *specializer) argument(a meta.AttributeArgument) meta.AttributeArgument {
	out := meta.AttributeArgument{Type: s.typ(a.Type), Value: a.Value}
	switch v := a.Value.(type) {
	case *meta.Type:
		out.Value = s.typ(v)
	case []meta.AttributeArgument:
		elems := make([]meta.AttributeArgument, len(v))
		for i, e := range v {
			elems[i] = s.argument(e)
		}
		out.Value = elems
	}
	return out
}
