package generic

import "cilgraph/internal/meta"

// BindingSubstitution maps each of params to the argument at the same
// position.
func BindingSubstitution(params, args []*meta.Type) meta.Substitution {
	bound := make(map[*meta.Type]*meta.Type, len(params))
	for i, p := range params {
		if i < len(args) {
			bound[p] = args[i]
		}
	}
	return func(t *meta.Type) *meta.Type { return bound[t] }
}

// SignaturesMatch reports whether a and b have the same shape: generic arity,
// instance-or-static calling convention, and equivalent return and parameter
// types under subst. Method template parameters match by position.
func SignaturesMatch(a, b *meta.Method, subst meta.Substitution) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.TemplateParameters) != len(b.TemplateParameters) || len(a.Parameters) != len(b.Parameters) {
		return false
	}
	if a.CallingConvention&meta.CallHasThis != b.CallingConvention&meta.CallHasThis {
		return false
	}
	if !meta.Equivalent(a.ReturnType, b.ReturnType, subst) {
		return false
	}
	for i := range a.Parameters {
		if !meta.Equivalent(a.Parameters[i].Type, b.Parameters[i].Type, subst) {
			return false
		}
	}
	return true
}

// FindImplementation returns the method of t matching m by name and
// signature, or one that lists m among its explicit overrides.
func FindImplementation(t *meta.Type, m *meta.Method) *meta.Method {
	for _, c := range t.Methods() {
		for _, o := range c.Overrides {
			if o == m || (o != nil && o.Root() == m.Root() && o.Declaring == m.Declaring) {
				return c
			}
		}
	}
	for _, c := range t.MethodsNamed(m.Name.Text()) {
		if SignaturesMatch(c, m, nil) {
			return c
		}
	}
	return nil
}
