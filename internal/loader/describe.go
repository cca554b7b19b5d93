package loader

import (
	"cilgraph/internal/meta"
	"cilgraph/internal/sig"
)

// Describe converts a module back into a description. Every type is
// populated in the process; the first population error is returned.
func Describe(mod *meta.Module) (*AssemblyDecl, error) {
	d := &AssemblyDecl{Name: mod.Name().Text()}
	if v := mod.Version(); v != nil {
		d.Version = v.Original()
	}
	if mod.Kind() == meta.ModuleNetModule {
		d.Kind = "netmodule"
	}
	for _, r := range mod.References() {
		d.References = append(d.References, ReferenceDecl{Name: r.Name.Text(), Version: r.Raw})
	}
	for _, t := range mod.Types() {
		td, err := DescribeType(t, mod)
		if err != nil {
			return nil, err
		}
		d.Types = append(d.Types, *td)
	}
	return d, nil
}

// DescribeType converts one definition and its nested types.
func DescribeType(t *meta.Type, from *meta.Module) (*TypeDecl, error) {
	d := &TypeDecl{TypeHeader: DescribeHeader(t)}
	var err error
	if d.SignatureDecl, err = DescribeSignature(t, from); err != nil {
		return nil, err
	}
	if d.MembersDecl, err = DescribeMembers(t, from); err != nil {
		return nil, err
	}
	if d.Attributes, err = DescribeAttributes(t, from); err != nil {
		return nil, err
	}
	nested, err := t.LoadNestedTypes()
	if err != nil {
		return nil, err
	}
	for _, n := range nested {
		nd, err := DescribeType(n, from)
		if err != nil {
			return nil, err
		}
		d.Nested = append(d.Nested, *nd)
	}
	return d, nil
}

// DescribeHeader returns what is needed to recreate the shell of t.
func DescribeHeader(t *meta.Type) TypeHeader {
	h := TypeHeader{
		Name:  t.Name().Text(),
		Kind:  t.Kind().String(),
		Flags: flagWords(typeFlagNames, t.Flags()),
	}
	if t.DeclaringType() == nil {
		h.Namespace = t.Namespace().Text()
	}
	nested := t.DeclaringType() != nil
	if v := t.Visibility(); (nested && v != meta.VisPrivate) || (!nested && v != meta.VisPublic) {
		h.Visibility = v.String()
	}
	return h
}

func DescribeSignature(t *meta.Type, from *meta.Module) (SignatureDecl, error) {
	s, err := t.LoadSignature()
	if err != nil {
		return SignatureDecl{}, err
	}
	var d SignatureDecl
	if s.BaseType != nil {
		d.Base = sig.Format(s.BaseType, from)
	}
	for _, i := range s.Interfaces {
		d.Interfaces = append(d.Interfaces, sig.Format(i, from))
	}
	if d.Params, err = describeParams(s.TemplateParameters, from); err != nil {
		return SignatureDecl{}, err
	}
	return d, nil
}

func describeParams(params []*meta.Type, from *meta.Module) ([]ParamDecl, error) {
	var out []ParamDecl
	for _, p := range params {
		s, err := p.LoadSignature()
		if err != nil {
			return nil, err
		}
		pd := ParamDecl{
			Name:     p.Name().Text(),
			Variance: varianceWord(p.Variance()),
			Special:  specialWords(p.Constraints()),
		}
		if s.BaseType != nil {
			pd.Constraints = append(pd.Constraints, sig.Format(s.BaseType, from))
		}
		for _, c := range s.Interfaces {
			pd.Constraints = append(pd.Constraints, sig.Format(c, from))
		}
		out = append(out, pd)
	}
	return out, nil
}

func DescribeMembers(t *meta.Type, from *meta.Module) (MembersDecl, error) {
	members, err := t.LoadMembers()
	if err != nil {
		return MembersDecl{}, err
	}
	var d MembersDecl
	for _, m := range members {
		switch m := m.(type) {
		case *meta.Method:
			md, err := describeMethod(m, from)
			if err != nil {
				return MembersDecl{}, err
			}
			d.Methods = append(d.Methods, md)
		case *meta.Field:
			d.Fields = append(d.Fields, FieldDecl{
				Name:       m.Name.Text(),
				Type:       sig.Format(m.Type, from),
				Access:     accessWord(meta.MemberAccess(m.Flags)),
				Flags:      flagWords(fieldFlagNames, m.Flags),
				Attributes: describeAttributes(m.Attrs, from),
			})
		case *meta.Property:
			d.Properties = append(d.Properties, PropertyDecl{
				Name:       m.Name.Text(),
				Type:       sig.Format(m.Type, from),
				Getter:     methodName(m.Getter),
				Setter:     methodName(m.Setter),
				Attributes: describeAttributes(m.Attrs, from),
			})
		case *meta.Event:
			d.Events = append(d.Events, EventDecl{
				Name:       m.Name.Text(),
				Type:       sig.Format(m.HandlerType, from),
				Add:        methodName(m.Adder),
				Remove:     methodName(m.Remover),
				Raise:      methodName(m.Raiser),
				Attributes: describeAttributes(m.Attrs, from),
			})
		}
	}
	return d, nil
}

func describeMethod(m *meta.Method, from *meta.Module) (MethodDecl, error) {
	d := MethodDecl{
		Name:       m.Name.Text(),
		Access:     accessWord(meta.MemberAccess(m.Flags)),
		Flags:      flagWords(methodFlagNames, m.Flags),
		Attributes: describeAttributes(m.Attrs, from),
	}
	if m.ReturnType != nil {
		d.Returns = sig.Format(m.ReturnType, from)
	}
	for _, p := range m.Parameters {
		d.Params = append(d.Params, ParameterDecl{
			Name:  p.Name.Text(),
			Type:  sig.Format(p.Type, from),
			Flags: flagWords(paramFlagNames, p.Flags),
		})
	}
	var err error
	if d.Generic, err = describeParams(m.TemplateParameters, from); err != nil {
		return MethodDecl{}, err
	}
	for _, o := range m.Overrides {
		d.Overrides = append(d.Overrides, sig.Format(o.Declaring, from)+"::"+o.Name.Text())
	}
	return d, nil
}

func DescribeAttributes(t *meta.Type, from *meta.Module) ([]AttributeDecl, error) {
	attrs, err := t.LoadAttributes()
	if err != nil {
		return nil, err
	}
	return describeAttributes(attrs, from), nil
}

func describeAttributes(attrs []*meta.Attribute, from *meta.Module) []AttributeDecl {
	var out []AttributeDecl
	for _, a := range attrs {
		d := AttributeDecl{Type: sig.Format(a.Type, from)}
		for _, p := range a.Positional {
			d.Args = append(d.Args, ArgumentDecl{Type: sig.Format(p.Type, from), Value: valueText(p.Value, from)})
		}
		for _, n := range a.Named {
			d.Named = append(d.Named, NamedDecl{
				Name:  n.Name.Text(),
				Field: n.IsField,
				Type:  sig.Format(n.Type, from),
				Value: valueText(n.Value, from),
			})
		}
		out = append(out, d)
	}
	return out
}

func accessWord(a meta.MemberAccess) string {
	if a&meta.AccessMask == meta.AccessPublic {
		return ""
	}
	return meta.AccessVisibility(a).String()
}

func methodName(m *meta.Method) string {
	if m == nil {
		return ""
	}
	return m.Name.Text()
}
