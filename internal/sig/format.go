package sig

import (
	"slices"

	"cilgraph/internal/meta"
)

// Format renders t as a reference that resolves back to t from module from.
// Types defined in another module carry an assembly qualifier.
func Format(t *meta.Type, from *meta.Module) string {
	if t == nil {
		return "void"
	}
	return ToRef(t, from).String()
}

// ToRef converts a type node into a reference. Instances and copies nested in
// instances are named by their original definition and consolidated
// arguments.
func ToRef(t *meta.Type, from *meta.Module) *Ref {
	if t == nil {
		return &Ref{Kind: RefVoid}
	}
	switch t.Kind() {
	case meta.KindTypeParameter:
		if t.IsMethodTemplateParameter() {
			return &Ref{Kind: RefMethodParam, Index: t.TemplateParameterIndex()}
		}
		return &Ref{Kind: RefTypeParam, Index: consolidatedIndex(t)}
	case meta.KindArray:
		r := &Ref{Kind: RefArray, Elem: ToRef(t.ElementType(), from)}
		if !t.IsSZArray() {
			r.Rank = t.Rank()
			r.Sizes = slices.Clone(t.Sizes())
			r.LowerBounds = slices.Clone(t.LowerBounds())
		}
		return r
	case meta.KindPointer:
		return &Ref{Kind: RefPointer, Elem: ToRef(t.ElementType(), from)}
	case meta.KindReference:
		return &Ref{Kind: RefReference, Elem: ToRef(t.ElementType(), from)}
	case meta.KindOptionalModifier, meta.KindRequiredModifier:
		kind := RefModOpt
		if t.Kind() == meta.KindRequiredModifier {
			kind = RefModReq
		}
		return &Ref{Kind: kind, Elem: ToRef(t.ElementType(), from), Modifier: ToRef(t.Modifier(), from)}
	case meta.KindFunctionPointer:
		r := &Ref{
			Kind:        RefFunctionPointer,
			CallConv:    t.CallingConvention(),
			Return:      ToRef(t.ReturnType(), from),
			VarArgStart: t.VarArgStart(),
		}
		for _, p := range t.ParameterTypes() {
			r.Params = append(r.Params, ToRef(p, from))
		}
		return r
	}

	def := t.Root()
	var args []*meta.Type
	switch {
	case t.IsInstance():
		def = t.Template().Root()
		args = t.ConsolidatedTemplateArguments()
	case t.Origin() != nil && t.DeclaringType() != nil:
		args = t.DeclaringType().ConsolidatedTemplateArguments()
	}

	r := &Ref{Kind: RefNamed}
	top := def
	for top.DeclaringType() != nil {
		top = top.DeclaringType()
	}
	for d := def; d != nil; d = d.DeclaringType() {
		r.Names = append(r.Names, d.Name().Text())
	}
	slices.Reverse(r.Names)
	r.Namespace = top.Namespace().Text()
	if m := top.DeclaringModule(); m != nil && m != from {
		r.Assembly = m.Name().Text()
	}
	for _, a := range args {
		r.Args = append(r.Args, ToRef(a, from))
	}
	return r
}

// consolidatedIndex is the position of a type-scoped parameter in the
// consolidated list of its owner, which is what "!n" indexes.
func consolidatedIndex(p *meta.Type) int {
	owner, ok := p.TemplateParameterOwner().(*meta.Type)
	if !ok || owner.DeclaringType() == nil {
		return p.TemplateParameterIndex()
	}
	return owner.GenericContextSize() + p.TemplateParameterIndex()
}
