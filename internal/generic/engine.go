// Package generic builds generic instances of types and methods: it reserves
// the instance in the template's cache, creates a named shell and fills its
// lazy properties with specialized copies of the template's definitions.
package generic

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"cilgraph/internal/diag"
	"cilgraph/internal/meta"
	"cilgraph/internal/trace"
)

var (
	ErrNotGeneric         = errors.New("generic: not a generic definition")
	ErrArity              = errors.New("generic: wrong number of template arguments")
	ErrNoReferringContext = errors.New("generic: instantiation needs a referring context")
	ErrNilArgument        = errors.New("generic: nil template argument")
)

// DefaultMaxDepth bounds the nesting of instances inside template arguments.
const DefaultMaxDepth = 64

// Options configure an Engine.
type Options struct {
	// MaxDepth is the deepest argument nesting accepted before an
	// instantiation is treated as divergent. Zero means DefaultMaxDepth.
	MaxDepth int
	// Reporter receives cycle warnings. Nil discards them.
	Reporter diag.Reporter
}

// Engine instantiates generic definitions. It is safe for concurrent use.
type Engine struct {
	maxDepth int
	reporter diag.Reporter
}

// New creates an engine.
func New(opts Options) *Engine {
	e := &Engine{maxDepth: opts.MaxDepth, reporter: opts.Reporter}
	if e.maxDepth <= 0 {
		e.maxDepth = DefaultMaxDepth
	}
	if e.reporter == nil {
		e.reporter = diag.NopReporter{}
	}
	return e
}

var defaultEngine = New(Options{})

// Instantiate instantiates template over args with the default engine.
func Instantiate(ctx context.Context, template *meta.Type, args []*meta.Type, referring meta.Referrer) (*meta.Type, error) {
	return defaultEngine.Instantiate(ctx, template, args, referring)
}

// MaxDepth reports the configured nesting limit.
func (e *Engine) MaxDepth() int { return e.maxDepth }

// Instantiate returns the instance of template over args. args are the
// template's own arguments; arguments of generic declaring types come from
// referring when template is nested in an instance, or are taken from the
// template's declaring definition otherwise. Equal requests return the same
// node. An instantiation found to be cyclic returns template itself and
// reports a warning.
//
// The instance is populated before Instantiate returns. A population error is
// returned together with the cached instance; the failed property is retried
// on its next access.
func (e *Engine) Instantiate(ctx context.Context, template *meta.Type, args []*meta.Type, referring meta.Referrer) (*meta.Type, error) {
	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeType, "instantiate", trace.ParentID(ctx))
	inst, err := e.instantiate(tr, template, args, referring)
	if tr.Enabled() {
		span.Attr("template", template.FullName())
		if inst != nil {
			span.Attr("instance", inst.FullName())
		}
	}
	span.End(err)
	return inst, err
}

// InstantiateConsolidated instantiates decl from its consolidated argument
// list: the arguments of every generic declaring type, outermost first,
// followed by decl's own. A nested decl is first mapped to its copy inside the
// instantiated declaring type; when the list holds no arguments of decl's own
// that copy is returned.
func (e *Engine) InstantiateConsolidated(ctx context.Context, decl *meta.Type, consolidated []*meta.Type, referring meta.Referrer) (*meta.Type, error) {
	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeType, "instantiate-consolidated", trace.ParentID(ctx))
	inst, err := e.consolidated(tr, decl, consolidated, referring)
	span.End(err)
	return inst, err
}

// InstantiateMethod returns the instance of generic method m over args.
func (e *Engine) InstantiateMethod(ctx context.Context, m *meta.Method, args []*meta.Type) (*meta.Method, error) {
	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeMember, "instantiate-method", trace.ParentID(ctx))
	inst, err := e.instantiateMethod(tr, m, args)
	if tr.Enabled() && m != nil {
		span.Attr("method", m.String())
	}
	span.End(err)
	return inst, err
}

// Substitute replaces params by args throughout t, instantiating generic
// types as needed. module is the referring context of new instances.
func (e *Engine) Substitute(ctx context.Context, t *meta.Type, params, args []*meta.Type, module *meta.Module) (*meta.Type, error) {
	if len(params) != len(args) {
		return nil, fmt.Errorf("%w: %d parameters, %d arguments", ErrArity, len(params), len(args))
	}
	s := newSpecializer(e, trace.FromContext(ctx), module, nil)
	for i, p := range params {
		s.bind.Set(p.UniqueKey(), args[i])
	}
	out := s.typ(t)
	return out, s.takeErr()
}

func (e *Engine) instantiate(tr trace.Tracer, template *meta.Type, args []*meta.Type, referring meta.Referrer) (*meta.Type, error) {
	if template == nil {
		return nil, fmt.Errorf("%w: nil template", ErrNotGeneric)
	}
	if !template.Kind().IsNominal() || template.IsInstance() {
		return nil, fmt.Errorf("%w: %s", ErrNotGeneric, template.FullName())
	}
	params, err := template.LoadTemplateParameters()
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return e.contextual(template, referring)
	}
	if len(args) != len(params) {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, template.FullName(), len(params), len(args))
	}
	if i := slices.Index(args, nil); i >= 0 {
		return nil, fmt.Errorf("%w: argument %d of %s", ErrNilArgument, i, template.FullName())
	}

	module := template.DeclaringModule()
	if referring != nil {
		if m := referring.ReferringModule(); m != nil {
			module = m
		}
	}
	if module == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoReferringContext, template.FullName())
	}

	var consolidated []*meta.Type
	if d := template.DeclaringType(); d != nil {
		consolidated = slices.Clone(d.ConsolidatedTemplateArguments())
	}
	consolidated = append(consolidated, args...)

	if depth := argumentDepth(args); depth >= e.maxDepth {
		e.cycle(tr, template.FullName(), args, fmt.Sprintf("argument nesting reached %d", depth))
		return template, nil
	}

	found, res, status := template.ReserveInstance(consolidated)
	switch status {
	case meta.ReserveFound:
		return found, nil
	case meta.ReserveCycle:
		e.cycle(tr, template.FullName(), args, "instance is already being built on this goroutine")
		return template, nil
	}

	inst := e.shell(tr, template, args, consolidated, module)
	inst = res.Publish(inst)
	return inst, populate(inst)
}

// contextual handles a non-generic template. Inside a generic declaring type
// it stands for its copy in the instance named by referring.
func (e *Engine) contextual(template *meta.Type, referring meta.Referrer) (*meta.Type, error) {
	if template.GenericContextSize() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotGeneric, template.FullName())
	}
	owner, ok := referring.(*meta.Type)
	if !ok || owner == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoReferringContext, template.FullName())
	}
	for o := owner; o != nil; o = o.DeclaringType() {
		if o.IsInstance() && o.Template().Root() == template.DeclaringType().Root() {
			if c := correspondingType(o, template); c != nil {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s is not inside an instance of %s",
		ErrNoReferringContext, owner.FullName(), template.DeclaringType().FullName())
}

func (e *Engine) consolidated(tr trace.Tracer, decl *meta.Type, cons []*meta.Type, referring meta.Referrer) (*meta.Type, error) {
	if decl == nil {
		return nil, fmt.Errorf("%w: nil template", ErrNotGeneric)
	}
	decl = decl.Root()
	k := decl.GenericContextSize()
	if len(cons) < k {
		return nil, fmt.Errorf("%w: %s needs %d outer arguments, got %d", ErrArity, decl.FullName(), k, len(cons))
	}
	target := decl
	if k > 0 {
		outer, err := e.consolidated(tr, decl.DeclaringType(), cons[:k], referring)
		if err != nil {
			return nil, err
		}
		if target = correspondingType(outer, decl); target == nil {
			return nil, fmt.Errorf("%w: %s has no copy of %s", ErrNotGeneric, outer.FullName(), decl.FullName())
		}
	}
	// No arguments of its own name the definition itself.
	own := cons[k:]
	if len(own) == 0 {
		return target, nil
	}
	return e.instantiate(tr, target, own, referring)
}

// shell builds the unpublished instance. It must not take the population
// lock: another goroutine may hold it while waiting for this reservation.
func (e *Engine) shell(tr trace.Tracer, template *meta.Type, args, consolidated []*meta.Type, module *meta.Module) *meta.Type {
	vis := template.EffectiveVisibility()
	for _, a := range consolidated {
		vis = vis.Meet(a.EffectiveVisibility())
	}
	prefix := template.Namespace().Text() + "."
	if d := template.DeclaringType(); d != nil {
		prefix = d.FullName() + "+"
	} else if prefix == "." {
		prefix = ""
	}

	s := newSpecializer(e, tr, module, newDuplicator())
	for i, p := range template.TemplateParameters() {
		s.bind.Set(p.UniqueKey(), args[i])
	}
	st := &copyState{from: template, s: s, forked: true}
	providers := &meta.InstanceProviders{
		Signature:   instanceSignature,
		NestedTypes: copyNestedTypes,
		Members:     copyMembers,
		Attributes:  copyAttributes,
		Handle:      st,
	}

	return module.NameInstance(prefix, MangledName(template.Name().Text(), args), func(name string) *meta.Type {
		return meta.NewInstance(template, args, consolidated, module, name, vis, providers)
	})
}

// populate fills every lazy property of a new instance. Properties whose
// definition is still being populated by the caller stay lazy.
func populate(inst *meta.Type) error {
	loads := []func() error{
		func() error { _, err := inst.LoadSignature(); return err },
		func() error { _, err := inst.LoadNestedTypes(); return err },
		func() error { _, err := inst.LoadMembers(); return err },
		func() error { _, err := inst.LoadAttributes(); return err },
	}
	for _, load := range loads {
		if err := load(); err != nil && !errors.Is(err, errDefinitionBusy) {
			return err
		}
	}
	return nil
}

func (e *Engine) cycle(tr trace.Tracer, definition string, args []*meta.Type, why string) {
	subject := MangledName(definition, args)
	trace.Point(tr, trace.ScopeType, "instantiation-cycle", 0, trace.Attr{Key: "instance", Value: subject})
	diag.ReportWarning(e.reporter, diag.MetaInstantiationCycle, subject,
		"instantiation cycle: "+why+"; using the generic definition").
		WithNote(definition, "definition used in place of the instance").
		Emit()
}

func (e *Engine) instantiateMethod(tr trace.Tracer, m *meta.Method, args []*meta.Type) (*meta.Method, error) {
	if m == nil || !m.IsGeneric() || m.IsInstance() {
		return nil, fmt.Errorf("%w: %v", ErrNotGeneric, m)
	}
	if len(args) != len(m.TemplateParameters) {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, m.Name.Text(), len(m.TemplateParameters), len(args))
	}
	if i := slices.Index(args, nil); i >= 0 {
		return nil, fmt.Errorf("%w: argument %d of %s", ErrNilArgument, i, m.Name.Text())
	}
	if found := m.CachedInstance(args); found != nil {
		return found, nil
	}
	if depth := argumentDepth(args); depth >= e.maxDepth {
		e.cycle(tr, m.String(), args, fmt.Sprintf("argument nesting reached %d", depth))
		return m, nil
	}

	// The instance is built before it is reserved: specializing its
	// signature may populate other types, which must not happen while a
	// reservation is pending.
	s := newSpecializer(e, tr, m.ReferringModule(), nil)
	for i, p := range m.TemplateParameters {
		s.bind.Set(p.UniqueKey(), args[i])
	}
	inst := &meta.Method{
		Name:              internName(MangledName(m.Name.Text(), args)),
		Declaring:         m.Declaring,
		Flags:             m.Flags,
		CallingConvention: m.CallingConvention,
		ReturnType:        s.typ(m.ReturnType),
		Parameters:        s.params(m.Parameters),
		Template:          m,
		TemplateArguments: slices.Clone(args),
		Overrides:         m.Overrides,
		Attrs:             m.Attrs,
		Body:              m.Body,
	}
	if err := s.takeErr(); err != nil {
		return nil, err
	}

	found, res, status := m.ReserveInstance(args)
	switch status {
	case meta.ReserveFound:
		return found, nil
	case meta.ReserveCycle:
		return m, nil
	}
	return res.Publish(inst), nil
}
