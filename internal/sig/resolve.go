package sig

import (
	"context"
	"fmt"

	"cilgraph/internal/generic"
	"cilgraph/internal/meta"
)

// Resolver turns references into type nodes.
type Resolver struct {
	// Module is where unqualified names are looked up first and the
	// referring context of new instances.
	Module *meta.Module
	// Assembly finds a module by assembly name. When nil, the resolved
	// references of Module are used.
	Assembly func(name string) *meta.Module
	// Engine instantiates generic references. Nil uses a default engine.
	Engine *generic.Engine
	// TypeContext owns the parameters "!n" refers to, by consolidated
	// position.
	TypeContext *meta.Type
	// MethodContext owns the parameters "!!n" refers to.
	MethodContext *meta.Method
}

// WithTypeContext returns a copy of r resolving "!n" against t.
func (r Resolver) WithTypeContext(t *meta.Type) *Resolver {
	r.TypeContext = t
	r.MethodContext = nil
	return &r
}

// WithMethodContext returns a copy of r resolving "!!n" against m.
func (r Resolver) WithMethodContext(m *meta.Method) *Resolver {
	r.MethodContext = m
	return &r
}

// ResolveString parses and resolves s. "void" resolves to nil.
func (r *Resolver) ResolveString(ctx context.Context, s string) (*meta.Type, error) {
	ref, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, ref)
}

// Resolve returns the node ref denotes.
func (r *Resolver) Resolve(ctx context.Context, ref *Ref) (*meta.Type, error) {
	switch ref.Kind {
	case RefVoid:
		return nil, nil

	case RefTypeParam:
		if r.TypeContext == nil {
			return nil, fmt.Errorf("%w: !%d outside a generic type", ErrUnresolved, ref.Index)
		}
		params := r.TypeContext.ConsolidatedTemplateArguments()
		if ref.Index >= len(params) {
			return nil, fmt.Errorf("%w: !%d, %s has %d parameters", ErrUnresolved, ref.Index, r.TypeContext.FullName(), len(params))
		}
		return params[ref.Index], nil

	case RefMethodParam:
		if r.MethodContext == nil || ref.Index >= len(r.MethodContext.TemplateParameters) {
			return nil, fmt.Errorf("%w: !!%d outside a generic method", ErrUnresolved, ref.Index)
		}
		return r.MethodContext.TemplateParameters[ref.Index], nil

	case RefArray:
		elem, err := r.nonVoid(ctx, ref.Elem)
		if err != nil {
			return nil, err
		}
		if ref.Rank == 0 {
			return meta.SZArrayOf(elem), nil
		}
		return meta.ArrayOf(elem, ref.Rank, ref.Sizes, ref.LowerBounds), nil

	case RefPointer, RefReference:
		elem, err := r.nonVoid(ctx, ref.Elem)
		if err != nil {
			return nil, err
		}
		if ref.Kind == RefPointer {
			return meta.PointerTo(elem), nil
		}
		return meta.ReferenceTo(elem), nil

	case RefModOpt, RefModReq:
		elem, err := r.nonVoid(ctx, ref.Elem)
		if err != nil {
			return nil, err
		}
		mod, err := r.nonVoid(ctx, ref.Modifier)
		if err != nil {
			return nil, err
		}
		if ref.Kind == RefModOpt {
			return meta.OptionalModifierOf(mod, elem), nil
		}
		return meta.RequiredModifierOf(mod, elem), nil

	case RefFunctionPointer:
		ret, err := r.Resolve(ctx, ref.Return)
		if err != nil {
			return nil, err
		}
		if ret == nil {
			if ret = r.find("", "System", []string{"Void"}); ret == nil {
				return nil, fmt.Errorf("%w: function pointer returning void needs System.Void", ErrUnresolved)
			}
		}
		params := make([]*meta.Type, len(ref.Params))
		for i, p := range ref.Params {
			if params[i], err = r.nonVoid(ctx, p); err != nil {
				return nil, err
			}
		}
		return meta.FunctionPointerOf(ref.CallConv, ret, params, ref.VarArgStart), nil

	case RefNamed:
		return r.named(ctx, ref)
	}
	return nil, fmt.Errorf("%w: reference kind %d", ErrSyntax, ref.Kind)
}

func (r *Resolver) nonVoid(ctx context.Context, ref *Ref) (*meta.Type, error) {
	t, err := r.Resolve(ctx, ref)
	if err == nil && t == nil {
		err = fmt.Errorf("%w: void used as a type", ErrUnresolved)
	}
	return t, err
}

func (r *Resolver) named(ctx context.Context, ref *Ref) (*meta.Type, error) {
	def := r.find(ref.Assembly, ref.Namespace, ref.Names)
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, ref)
	}
	if len(ref.Args) == 0 {
		return def, nil
	}
	args := make([]*meta.Type, len(ref.Args))
	for i, a := range ref.Args {
		var err error
		if args[i], err = r.nonVoid(ctx, a); err != nil {
			return nil, err
		}
	}
	engine := r.Engine
	if engine == nil {
		engine = defaultEngine
	}
	var referring meta.Referrer
	if r.Module != nil {
		referring = r.Module
	}
	return engine.InstantiateConsolidated(ctx, def, args, referring)
}

var defaultEngine = generic.New(generic.Options{})

// find looks a definition up by path in the named assembly, or in Module and
// then its references when assembly is empty.
func (r *Resolver) find(assembly, namespace string, path []string) *meta.Type {
	for _, m := range r.modules(assembly) {
		t := m.Type(namespace, path[0])
		for _, n := range path[1:] {
			if t == nil {
				break
			}
			t = t.NestedType(n)
		}
		if t != nil {
			return t
		}
	}
	return nil
}

func (r *Resolver) modules(assembly string) []*meta.Module {
	if assembly != "" {
		if r.Module != nil && r.Module.Name().Text() == assembly {
			return []*meta.Module{r.Module}
		}
		if r.Assembly != nil {
			if m := r.Assembly(assembly); m != nil {
				return []*meta.Module{m}
			}
			return nil
		}
		if r.Module != nil {
			for _, ref := range r.Module.References() {
				if ref.Resolved != nil && ref.Name.Text() == assembly {
					return []*meta.Module{ref.Resolved}
				}
			}
		}
		return nil
	}
	if r.Module == nil {
		return nil
	}
	out := []*meta.Module{r.Module}
	for _, ref := range r.Module.References() {
		if ref.Resolved != nil {
			out = append(out, ref.Resolved)
		}
	}
	return out
}
