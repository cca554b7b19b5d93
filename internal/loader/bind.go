package loader

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"cilgraph/internal/diag"
	"cilgraph/internal/generic"
	"cilgraph/internal/meta"
	"cilgraph/internal/names"
	"cilgraph/internal/sig"
	"cilgraph/internal/trace"
)

// Source yields the parts of one definition. Header is needed up front; the
// other parts are asked for once, by the provider of the matching property.
type Source interface {
	Header() TypeHeader
	Signature() (SignatureDecl, error)
	Members() (MembersDecl, error)
	Nested() ([]Source, error)
	Attributes() ([]AttributeDecl, error)
}

// DeclSource serves a definition that is already decoded.
type DeclSource struct{ Decl *TypeDecl }

func (s DeclSource) Header() TypeHeader                   { return s.Decl.TypeHeader }
func (s DeclSource) Signature() (SignatureDecl, error)    { return s.Decl.SignatureDecl, nil }
func (s DeclSource) Members() (MembersDecl, error)        { return s.Decl.MembersDecl, nil }
func (s DeclSource) Attributes() ([]AttributeDecl, error) { return s.Decl.Attributes, nil }

func (s DeclSource) Nested() ([]Source, error) {
	out := make([]Source, len(s.Decl.Nested))
	for i := range s.Decl.Nested {
		out[i] = DeclSource{Decl: &s.Decl.Nested[i]}
	}
	return out, nil
}

// Options configure binding.
type Options struct {
	// Engine instantiates generic references. Nil uses a default engine.
	Engine *generic.Engine
	// Reporter receives load diagnostics. Nil discards them.
	Reporter diag.Reporter
	// Tracer observes provider work. Nil disables tracing.
	Tracer trace.Tracer
}

// Binder installs providers that resolve sources against one module.
type Binder struct {
	module   *meta.Module
	resolver *sig.Resolver
	reporter diag.Reporter
	tracer   trace.Tracer

	mu     sync.Mutex
	params map[*meta.Type][]*meta.Type // kept until the signature loads
}

// NewBinder returns a binder for types of module.
func NewBinder(module *meta.Module, opts Options) *Binder {
	b := &Binder{
		module:   module,
		resolver: &sig.Resolver{Module: module, Engine: opts.Engine},
		reporter: opts.Reporter,
		tracer:   opts.Tracer,
		params:   make(map[*meta.Type][]*meta.Type),
	}
	if b.reporter == nil {
		b.reporter = diag.NopReporter{}
	}
	if b.tracer == nil {
		b.tracer = trace.Nop
	}
	return b
}

// Module returns the module the binder resolves against.
func (b *Binder) Module() *meta.Module { return b.module }

// NewModule creates an empty module with the identity and references an
// assembly declares. References are left unresolved.
func NewModule(d *AssemblyDecl) (*meta.Module, error) {
	kind := meta.ModuleAssembly
	switch d.Kind {
	case "", "assembly":
	case "netmodule":
		kind = meta.ModuleNetModule
	default:
		return nil, fmt.Errorf("%w: unknown module kind %q", ErrMalformed, d.Kind)
	}
	var version *semver.Version
	if d.Version != "" {
		v, err := meta.ParseVersion(d.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		version = v
	}
	mod := meta.NewModule(d.Name, kind, version)
	for _, r := range d.References {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("%w: reference without a name", ErrMalformed)
		}
		ref := &meta.AssemblyReference{Name: names.Intern(r.Name), Raw: r.Version}
		if r.Version != "" {
			c, err := semver.NewConstraint(r.Version)
			if err != nil {
				return nil, fmt.Errorf("%w: reference %s: %v", ErrMalformed, r.Name, err)
			}
			ref.Constraint = c
		}
		mod.AddReference(ref)
	}
	return mod, nil
}

// Load creates a module from d with a shell for every top-level type. No
// provider runs until a property of a type is first read.
func Load(ctx context.Context, d *AssemblyDecl, opts Options) (*meta.Module, error) {
	if opts.Tracer == nil {
		opts.Tracer = trace.FromContext(ctx)
	}
	mod, err := NewModule(d)
	if err != nil {
		return nil, err
	}
	b := NewBinder(mod, opts)
	for i := range d.Types {
		if _, err := b.AddType(DeclSource{Decl: &d.Types[i]}); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

// AddType creates the shell of a top-level definition, registers it and
// binds its providers.
func (b *Binder) AddType(src Source) (*meta.Type, error) {
	h := src.Header()
	kind, flags, err := headerBits(&h, false)
	if err != nil {
		return nil, err
	}
	if prev := b.module.Type(h.Namespace, h.Name); prev != nil {
		diag.ReportWarning(b.reporter, diag.LoadDuplicateType, prev.FullName(),
			"duplicate definition shadows an earlier one").Emit()
	}
	t := meta.NewType(kind, b.module, h.Namespace, h.Name, flags)
	if err := b.Bind(t, src); err != nil {
		return nil, err
	}
	b.module.AddType(t)
	return t, nil
}

func headerBits(h *TypeHeader, nested bool) (meta.Kind, meta.TypeFlags, error) {
	if strings.TrimSpace(h.Name) == "" {
		return 0, 0, fmt.Errorf("%w: type without a name", ErrMalformed)
	}
	kind, err := parseKind(h.Kind)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", h.Name, err)
	}
	flags, err := typeFlags(h, nested)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", h.Name, err)
	}
	return kind, flags, nil
}

// Bind installs the four providers of t with src as their handle.
func (b *Binder) Bind(t *meta.Type, src Source) error {
	return errors.Join(
		t.ProvideSignature(b.signature, src),
		t.ProvideNestedTypes(b.nested, src),
		t.ProvideMembers(b.members, src),
		t.ProvideAttributes(b.attributes, src),
	)
}

func (b *Binder) context() context.Context {
	return trace.WithTracer(context.Background(), b.tracer)
}

func (b *Binder) fail(t *meta.Type, what string, err error) error {
	diag.ReportError(b.reporter, diag.LoadUnresolvedType, t.FullName(), what+": "+err.Error()).Emit()
	return fmt.Errorf("%s: %s: %w", t.FullName(), what, err)
}

func (b *Binder) signature(t *meta.Type, handle any) (meta.Signature, error) {
	span := trace.Begin(b.tracer, trace.ScopeType, "load_signature", 0).Attr("type", t.FullName())
	s, err := b.loadSignature(t, handle)
	span.End(err)
	return s, err
}

func (b *Binder) loadSignature(t *meta.Type, handle any) (meta.Signature, error) {
	d, err := handle.(Source).Signature()
	if err != nil {
		return meta.Signature{}, b.fail(t, "signature", err)
	}

	r := b.resolver.WithTypeContext(t)
	params, err := b.typeParameters(t, d.Params, r)
	if err != nil {
		return meta.Signature{}, b.fail(t, "template parameters", err)
	}
	t.SetTemplateParameters(params)
	out := meta.Signature{TemplateParameters: params}

	ctx := b.context()
	if d.Base != "" {
		if out.BaseType, err = b.resolve(ctx, r, d.Base); err != nil {
			return meta.Signature{}, b.fail(t, "base type", err)
		}
	}
	for _, s := range d.Interfaces {
		iface, err := b.resolve(ctx, r, s)
		if err != nil {
			return meta.Signature{}, b.fail(t, "interface", err)
		}
		out.Interfaces = append(out.Interfaces, iface)
	}
	b.mu.Lock()
	delete(b.params, t)
	b.mu.Unlock()
	return out, nil
}

// resolve resolves a reference that must not be void.
func (b *Binder) resolve(ctx context.Context, r *sig.Resolver, s string) (*meta.Type, error) {
	t, err := r.ResolveString(ctx, s)
	if err == nil && t == nil {
		err = fmt.Errorf("%w: void where a type is required", ErrUnresolved)
	}
	return t, err
}

// typeParameters returns the template parameters of t, creating them on the
// first attempt only. A signature load that failed after publishing them may
// already have instances built over them.
func (b *Binder) typeParameters(t *meta.Type, decls []ParamDecl, r *sig.Resolver) ([]*meta.Type, error) {
	b.mu.Lock()
	params, ok := b.params[t]
	b.mu.Unlock()
	if ok {
		return params, nil
	}
	params, err := b.parameters(t, decls, r)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.params[t]; ok {
		return prev, nil
	}
	b.params[t] = params
	return params, nil
}

// constraintHandle is what a template parameter's signature provider
// resolves its constraints from.
type constraintHandle struct {
	decl     ParamDecl
	resolver *sig.Resolver
}

// parameters creates template parameters owned by owner. Their constraints
// are resolved lazily, since they may refer to the owner itself.
func (b *Binder) parameters(owner meta.Member, decls []ParamDecl, r *sig.Resolver) ([]*meta.Type, error) {
	var out []*meta.Type
	for i, d := range decls {
		variance, err := parseVariance(d.Variance)
		if err != nil {
			return nil, err
		}
		special, err := parseSpecial(d.Special)
		if err != nil {
			return nil, err
		}
		p := meta.NewTypeParameter(owner, d.Name, i, variance, special)
		if err := p.ProvideSignature(b.constraints, &constraintHandle{decl: d, resolver: r}); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (b *Binder) constraints(p *meta.Type, handle any) (meta.Signature, error) {
	h := handle.(*constraintHandle)
	ctx := b.context()
	var out meta.Signature
	for _, s := range h.decl.Constraints {
		c, err := b.resolve(ctx, h.resolver, s)
		if err != nil {
			return meta.Signature{}, b.fail(p, "constraint", err)
		}
		if c.IsInterface() || c.Kind() == meta.KindTypeParameter || out.BaseType != nil {
			out.Interfaces = append(out.Interfaces, c)
		} else {
			out.BaseType = c
		}
	}
	return out, nil
}

func (b *Binder) nested(t *meta.Type, handle any) ([]*meta.Type, error) {
	srcs, err := handle.(Source).Nested()
	if err != nil {
		return nil, b.fail(t, "nested types", err)
	}
	out := make([]*meta.Type, 0, len(srcs))
	for _, src := range srcs {
		h := src.Header()
		kind, flags, err := headerBits(&h, true)
		if err != nil {
			return nil, b.fail(t, "nested types", err)
		}
		n := meta.NewNestedType(kind, t, h.Name, flags)
		if err := b.Bind(n, src); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (b *Binder) members(t *meta.Type, handle any) ([]meta.Member, error) {
	span := trace.Begin(b.tracer, trace.ScopeType, "load_members", 0).Attr("type", t.FullName())
	out, err := b.loadMembers(t, handle)
	span.End(err)
	return out, err
}

func (b *Binder) loadMembers(t *meta.Type, handle any) ([]meta.Member, error) {
	d, err := handle.(Source).Members()
	if err != nil {
		return nil, b.fail(t, "members", err)
	}

	ctx := b.context()
	r := b.resolver.WithTypeContext(t)
	var out []meta.Member
	byName := map[string]*meta.Method{}

	for _, md := range d.Methods {
		m, err := b.method(ctx, t, r, &md)
		if err != nil {
			return nil, b.fail(t, "method "+md.Name, err)
		}
		if _, dup := byName[md.Name]; !dup {
			byName[md.Name] = m
		}
		out = append(out, m)
	}
	for _, fd := range d.Fields {
		f, err := b.field(ctx, t, r, &fd)
		if err != nil {
			return nil, b.fail(t, "field "+fd.Name, err)
		}
		out = append(out, f)
	}
	accessor := func(owner, name string) (*meta.Method, error) {
		if name == "" {
			return nil, nil
		}
		m := byName[name]
		if m == nil {
			return nil, fmt.Errorf("%w: accessor %s of %s", ErrUnresolved, name, owner)
		}
		return m, nil
	}
	for _, pd := range d.Properties {
		typ, err := b.resolve(ctx, r, pd.Type)
		if err != nil {
			return nil, b.fail(t, "property "+pd.Name, err)
		}
		p := &meta.Property{Name: names.Intern(pd.Name), Declaring: t, Type: typ}
		if p.Getter, err = accessor(pd.Name, pd.Getter); err == nil {
			p.Setter, err = accessor(pd.Name, pd.Setter)
		}
		if err == nil {
			p.Attrs, err = b.attributeList(ctx, r, pd.Attributes)
		}
		if err != nil {
			return nil, b.fail(t, "property "+pd.Name, err)
		}
		if p.Getter != nil {
			p.Parameters = p.Getter.Parameters
		}
		out = append(out, p)
	}
	for _, ed := range d.Events {
		typ, err := b.resolve(ctx, r, ed.Type)
		if err != nil {
			return nil, b.fail(t, "event "+ed.Name, err)
		}
		e := &meta.Event{Name: names.Intern(ed.Name), Declaring: t, HandlerType: typ}
		if e.Adder, err = accessor(ed.Name, ed.Add); err == nil {
			if e.Remover, err = accessor(ed.Name, ed.Remove); err == nil {
				e.Raiser, err = accessor(ed.Name, ed.Raise)
			}
		}
		if err == nil {
			e.Attrs, err = b.attributeList(ctx, r, ed.Attributes)
		}
		if err != nil {
			return nil, b.fail(t, "event "+ed.Name, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *Binder) method(ctx context.Context, t *meta.Type, r *sig.Resolver, d *MethodDecl) (*meta.Method, error) {
	acc, err := access(d.Access)
	if err != nil {
		return nil, err
	}
	flags, err := parseFlags(methodFlagNames, d.Flags)
	if err != nil {
		return nil, err
	}
	m := meta.NewMethod(t, d.Name, flags|meta.MethodFlags(acc), nil)
	mr := r.WithMethodContext(m)
	if m.TemplateParameters, err = b.parameters(m, d.Generic, mr); err != nil {
		return nil, err
	}
	if d.Returns != "" {
		if m.ReturnType, err = mr.ResolveString(ctx, d.Returns); err != nil {
			return nil, err
		}
	}
	for i, pd := range d.Params {
		typ, err := b.resolve(ctx, mr, pd.Type)
		if err != nil {
			return nil, err
		}
		pf, err := parseFlags(paramFlagNames, pd.Flags)
		if err != nil {
			return nil, err
		}
		name := pd.Name
		if name == "" {
			name = "p" + strconv.Itoa(i)
		}
		m.Parameters = append(m.Parameters, &meta.Parameter{Name: names.Intern(name), Type: typ, Position: i, Flags: pf})
	}
	for _, o := range d.Overrides {
		target, err := b.override(ctx, mr, o)
		if err != nil {
			return nil, err
		}
		m.Overrides = append(m.Overrides, target)
	}
	if m.Attrs, err = b.attributeList(ctx, mr, d.Attributes); err != nil {
		return nil, err
	}
	return m, nil
}

// override resolves "TypeRef::Name" to the first method of that name.
func (b *Binder) override(ctx context.Context, r *sig.Resolver, s string) (*meta.Method, error) {
	i := strings.LastIndex(s, "::")
	if i < 0 {
		return nil, fmt.Errorf("%w: override %q is not TypeRef::Name", ErrMalformed, s)
	}
	owner, err := b.resolve(ctx, r, s[:i])
	if err != nil {
		return nil, err
	}
	ms := owner.MethodsNamed(s[i+2:])
	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: %s has no method %s", ErrUnresolved, owner, s[i+2:])
	}
	return ms[0], nil
}

func (b *Binder) field(ctx context.Context, t *meta.Type, r *sig.Resolver, d *FieldDecl) (*meta.Field, error) {
	acc, err := access(d.Access)
	if err != nil {
		return nil, err
	}
	flags, err := parseFlags(fieldFlagNames, d.Flags)
	if err != nil {
		return nil, err
	}
	typ, err := b.resolve(ctx, r, d.Type)
	if err != nil {
		return nil, err
	}
	f := &meta.Field{Name: names.Intern(d.Name), Declaring: t, Flags: flags | meta.FieldFlags(acc), Type: typ}
	if f.Attrs, err = b.attributeList(ctx, r, d.Attributes); err != nil {
		return nil, err
	}
	return f, nil
}

func (b *Binder) attributes(t *meta.Type, handle any) ([]*meta.Attribute, error) {
	ds, err := handle.(Source).Attributes()
	if err != nil {
		return nil, b.fail(t, "attributes", err)
	}
	attrs, err := b.attributeList(b.context(), b.resolver.WithTypeContext(t), ds)
	if err != nil {
		return nil, b.fail(t, "attributes", err)
	}
	return attrs, nil
}

func (b *Binder) attributeList(ctx context.Context, r *sig.Resolver, ds []AttributeDecl) ([]*meta.Attribute, error) {
	var out []*meta.Attribute
	for _, d := range ds {
		typ, err := b.resolve(ctx, r, d.Type)
		if err != nil {
			return nil, err
		}
		a := &meta.Attribute{Type: typ}
		argTypes := make([]*meta.Type, len(d.Args))
		for i, ad := range d.Args {
			arg, err := b.argument(ctx, r, ad.Type, ad.Value)
			if err != nil {
				return nil, err
			}
			argTypes[i] = arg.Type
			a.Positional = append(a.Positional, arg)
		}
		for _, nd := range d.Named {
			arg, err := b.argument(ctx, r, nd.Type, nd.Value)
			if err != nil {
				return nil, err
			}
			a.Named = append(a.Named, meta.NamedArgument{Name: names.Intern(nd.Name), IsField: nd.Field, AttributeArgument: arg})
		}
		// The attribute type may be the one being populated; its
		// constructor is only looked up once its members are settled.
		if typ.PopulationState(meta.PropMembers) != meta.Populating {
			a.Constructor = typ.Method(".ctor", argTypes...)
			if a.Constructor == nil {
				diag.ReportWarning(b.reporter, diag.LoadUnresolvedType, typ.FullName(),
					"no constructor matches the attribute arguments").Emit()
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (b *Binder) argument(ctx context.Context, r *sig.Resolver, typeRef, value string) (meta.AttributeArgument, error) {
	typ, err := b.resolve(ctx, r, typeRef)
	if err != nil {
		return meta.AttributeArgument{}, err
	}
	v, err := parseValue(ctx, r, typ, value)
	if err != nil {
		return meta.AttributeArgument{}, fmt.Errorf("%w: argument %q of type %s: %v", ErrMalformed, value, typ, err)
	}
	return meta.AttributeArgument{Type: typ, Value: v}, nil
}

func parseValue(ctx context.Context, r *sig.Resolver, typ *meta.Type, s string) (any, error) {
	switch typ.FullName() {
	case "System.String":
		return s, nil
	case "System.Boolean":
		return strconv.ParseBool(s)
	case "System.Char":
		if rs := []rune(s); len(rs) == 1 {
			return rs[0], nil
		}
		return nil, errors.New("want one character")
	case "System.SByte", "System.Int16", "System.Int32", "System.Int64":
		return strconv.ParseInt(s, 0, 64)
	case "System.Byte", "System.UInt16", "System.UInt32", "System.UInt64":
		return strconv.ParseUint(s, 0, 64)
	case "System.Single", "System.Double":
		return strconv.ParseFloat(s, 64)
	case "System.Type":
		t, err := r.ResolveString(ctx, s)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return s, nil
}

// valueText renders an attribute value the way parseValue reads it.
func valueText(v any, from *meta.Module) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case rune:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case *meta.Type:
		return sig.Format(x, from)
	}
	return fmt.Sprint(v)
}
