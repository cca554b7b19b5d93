package meta

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"cilgraph/internal/names"
)

var uniqueKeys atomic.Int32

func nextUniqueKey() int32 { return uniqueKeys.Add(1) }

// Signature is the jointly populated part of a definition: its base type,
// implemented interfaces and template parameters. For a template parameter the
// base type and interfaces are its constraints.
type Signature struct {
	BaseType           *Type
	Interfaces         []*Type
	TemplateParameters []*Type
}

// Providers fill lazy properties on first access. handle is the opaque value
// given when the provider was installed.
type (
	MembersProvider     func(t *Type, handle any) ([]Member, error)
	NestedTypesProvider func(t *Type, handle any) ([]*Type, error)
	AttributesProvider  func(t *Type, handle any) ([]*Attribute, error)
	SignatureProvider   func(t *Type, handle any) (Signature, error)
)

type paramInfo struct {
	index        int
	owner        Member
	methodScoped bool
	variance     Variance
	constraints  ConstraintFlags
}

type fnSig struct {
	ret         *Type
	params      []*Type
	cc          CallingConvention
	varArgStart int // -1 when the signature has no vararg sentinel
}

// Type is a node of the type graph. Definitions, instances and structural
// types share this struct; Kind says which fields are meaningful.
type Type struct {
	kind      Kind
	uniqueKey int32
	name      *names.Identifier
	namespace *names.Identifier
	declaring *Type
	module    *Module
	flags     TypeFlags
	fullName  string
	origin    *Type

	// instantiation
	template     *Type
	templateArgs []*Type
	consolidated []*Type
	effective    Visibility
	hasEffective bool

	// structural
	elem        *Type
	rank        int
	sz          bool
	sizes       []int
	lowerBounds []int
	modifier    *Type
	param       *paramInfo
	fn          *fnSig

	members   cell[[]Member]
	nested    cell[[]*Type]
	attrs     cell[[]*Attribute]
	signature cell[Signature]

	mu        sync.Mutex
	derived   *derivedIndex
	instances instanceTable[Type]
}

// NewType creates a top-level definition of a nominal kind. The type is not
// added to module; see Module.AddType.
func NewType(kind Kind, module *Module, namespace, name string, flags TypeFlags) *Type {
	if !kind.IsNominal() {
		panic(fmt.Sprintf("meta: NewType with non-nominal kind %s", kind))
	}
	t := &Type{
		kind:      kind,
		uniqueKey: nextUniqueKey(),
		name:      names.Intern(name),
		namespace: names.Intern(namespace),
		module:    module,
		flags:     flags,
	}
	t.fullName = qualify(namespace, name)
	return t
}

// NewNestedType creates a definition declared inside declaring. The type is
// not added to declaring; see AddNestedType.
func NewNestedType(kind Kind, declaring *Type, name string, flags TypeFlags) *Type {
	if !kind.IsNominal() {
		panic(fmt.Sprintf("meta: NewNestedType with non-nominal kind %s", kind))
	}
	if declaring == nil {
		panic("meta: NewNestedType without declaring type")
	}
	return &Type{
		kind:      kind,
		uniqueKey: nextUniqueKey(),
		name:      names.Intern(name),
		namespace: declaring.namespace,
		declaring: declaring,
		module:    declaring.module,
		flags:     flags,
		fullName:  declaring.FullName() + "+" + name,
	}
}

// NewCopy creates a declaration copied from origin into declaring, as done for
// nested types of a generic instance. Lazy properties start empty.
func NewCopy(origin, declaring *Type) *Type {
	t := NewNestedType(origin.kind, declaring, origin.name.Text(), origin.flags)
	t.origin = origin
	return t
}

// InstanceProviders fill the lazy properties of a new instance.
type InstanceProviders struct {
	Signature   SignatureProvider
	NestedTypes NestedTypesProvider
	Members     MembersProvider
	Attributes  AttributesProvider
	Handle      any
}

// NewInstance creates the shell of a generic instance. consolidated is the
// declaring type's consolidated arguments followed by args. Providers are
// installed without taking the population lock; the shell must not be
// reachable by other goroutines until it is published.
func NewInstance(template *Type, args, consolidated []*Type, module *Module, name string, effective Visibility, p *InstanceProviders) *Type {
	t := &Type{
		kind:         template.kind,
		uniqueKey:    nextUniqueKey(),
		name:         names.Intern(name),
		namespace:    template.namespace,
		declaring:    template.declaring,
		module:       module,
		flags:        template.flags,
		template:     template,
		templateArgs: slices.Clone(args),
		consolidated: slices.Clone(consolidated),
		effective:    effective,
		hasEffective: true,
	}
	if t.declaring != nil {
		t.fullName = t.declaring.FullName() + "+" + name
	} else {
		t.fullName = qualify(template.namespace.Text(), name)
	}
	if p != nil {
		h := p.Handle
		if fn := p.Signature; fn != nil {
			t.signature.provide = func() (Signature, error) { return fn(t, h) }
		}
		if fn := p.NestedTypes; fn != nil {
			t.nested.provide = func() ([]*Type, error) { return normalize(fn(t, h)) }
		}
		if fn := p.Members; fn != nil {
			t.members.provide = func() ([]Member, error) { return normalize(fn(t, h)) }
		}
		if fn := p.Attributes; fn != nil {
			t.attrs.provide = func() ([]*Attribute, error) { return normalize(fn(t, h)) }
		}
	}
	return t
}

// normalize turns a successful nil result into an empty list.
func normalize[E any](v []E, err error) ([]E, error) {
	if v == nil && err == nil {
		v = []E{}
	}
	return v, err
}

// NewTypeParameter creates template parameter index of owner, which is either
// a *Type or a *Method.
func NewTypeParameter(owner Member, name string, index int, variance Variance, constraints ConstraintFlags) *Type {
	t := &Type{
		kind:      KindTypeParameter,
		uniqueKey: nextUniqueKey(),
		name:      names.Intern(name),
		namespace: names.Empty(),
		flags:     TypeNestedPublic,
		fullName:  name,
		param: &paramInfo{
			index:       index,
			owner:       owner,
			variance:    variance,
			constraints: constraints,
		},
	}
	switch o := owner.(type) {
	case *Type:
		t.declaring = o
		t.module = o.module
	case *Method:
		t.param.methodScoped = true
		t.declaring = o.Declaring
		if o.Declaring != nil {
			t.module = o.Declaring.module
		}
	default:
		panic(fmt.Sprintf("meta: type parameter owner %T", owner))
	}
	return t
}

// CopyTypeParameter duplicates p for a new owner, keeping its name, position,
// variance and special constraints. Constraint types are left to the caller.
func CopyTypeParameter(p *Type, owner Member) *Type {
	t := NewTypeParameter(owner, p.name.Text(), p.param.index, p.param.variance, p.param.constraints)
	t.origin = p
	return t
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

func (t *Type) Kind() Kind { return t.kind }

// UniqueKey is a positive process-wide identity of the node.
func (t *Type) UniqueKey() int32 { return t.uniqueKey }

func (t *Type) Name() *names.Identifier      { return t.name }
func (t *Type) Namespace() *names.Identifier { return t.namespace }
func (t *Type) DeclaringType() *Type         { return t.declaring }
func (t *Type) DeclaringModule() *Module     { return t.module }
func (t *Type) Flags() TypeFlags             { return t.flags }

// FullName is the namespace-qualified name, with '+' between nesting levels.
func (t *Type) FullName() string {
	if t == nil {
		return "<nil>"
	}
	return t.fullName
}

func (t *Type) String() string { return t.FullName() }

// Origin is the declaration t was copied from, or nil for originals.
func (t *Type) Origin() *Type { return t.origin }

// Root follows Origin to the original declaration.
func (t *Type) Root() *Type {
	for t != nil && t.origin != nil {
		t = t.origin
	}
	return t
}

// Template is the generic definition t instantiates, or nil.
func (t *Type) Template() *Type { return t.template }

// IsInstance reports whether t is a generic instance.
func (t *Type) IsInstance() bool { return t.template != nil }

// TemplateArguments are the instance's own arguments, in parameter order. The
// slice must not be modified.
func (t *Type) TemplateArguments() []*Type { return t.templateArgs }

// IsGeneric reports whether t declares template parameters of its own.
func (t *Type) IsGeneric() bool {
	if !t.kind.IsNominal() || t.template != nil {
		return false
	}
	return len(t.TemplateParameters()) > 0
}

// ConsolidatedTemplateArguments is the declaring type's consolidated list
// followed by t's own arguments. For a generic definition the template
// parameters stand in for the arguments.
func (t *Type) ConsolidatedTemplateArguments() []*Type {
	if t.template != nil {
		return t.consolidated
	}
	if !t.kind.IsNominal() {
		return nil
	}
	var out []*Type
	if t.declaring != nil {
		out = slices.Clone(t.declaring.ConsolidatedTemplateArguments())
	}
	return append(out, t.TemplateParameters()...)
}

// GenericContextSize is the length of the consolidated list of t's declaring
// type.
func (t *Type) GenericContextSize() int {
	if t.declaring == nil {
		return 0
	}
	return len(t.declaring.ConsolidatedTemplateArguments())
}

// Visibility is the declared visibility of t alone.
func (t *Type) Visibility() Visibility {
	if !t.kind.IsNominal() {
		return VisPublic
	}
	return VisibilityOf(t.flags)
}

// EffectiveVisibility is the meet of t's visibility, that of every declaring
// type and, for instances and structural types, that of their components.
func (t *Type) EffectiveVisibility() Visibility {
	switch t.kind {
	case KindTypeParameter:
		return VisPublic
	case KindArray, KindPointer, KindReference:
		return t.elem.EffectiveVisibility()
	case KindOptionalModifier, KindRequiredModifier:
		return t.elem.EffectiveVisibility().Meet(t.modifier.EffectiveVisibility())
	case KindFunctionPointer:
		v := t.fn.ret.EffectiveVisibility()
		for _, p := range t.fn.params {
			v = v.Meet(p.EffectiveVisibility())
		}
		return v
	}
	if t.hasEffective {
		return t.effective
	}
	v := t.Visibility()
	if t.declaring != nil {
		v = v.Meet(t.declaring.EffectiveVisibility())
	}
	return v
}

func (t *Type) IsInterface() bool { return t.kind == KindInterface }
func (t *Type) IsAbstract() bool  { return t.flags&TypeAbstract != 0 || t.kind == KindInterface }
func (t *Type) IsSealed() bool    { return t.flags&TypeSealed != 0 }

// IsValueType reports whether instances of t are copied by value.
func (t *Type) IsValueType() bool {
	switch t.kind {
	case KindStruct, KindEnum:
		return true
	case KindTypeParameter:
		return t.param.constraints&ConstraintNotNullableValue != 0
	case KindOptionalModifier, KindRequiredModifier:
		return t.elem.IsValueType()
	}
	return false
}

// IsReferenceType reports whether t is known to be a reference type.
func (t *Type) IsReferenceType() bool {
	switch t.kind {
	case KindClass, KindInterface, KindDelegate, KindArray:
		return true
	case KindTypeParameter:
		if t.param.constraints&ConstraintReferenceType != 0 {
			return true
		}
		base := t.BaseType()
		return base != nil && base.kind == KindClass
	case KindOptionalModifier, KindRequiredModifier:
		return t.elem.IsReferenceType()
	}
	return false
}

// ContainsTypeParameters reports whether a template parameter occurs anywhere
// in t's structure.
func (t *Type) ContainsTypeParameters() bool {
	switch t.kind {
	case KindTypeParameter:
		return true
	case KindArray, KindPointer, KindReference:
		return t.elem.ContainsTypeParameters()
	case KindOptionalModifier, KindRequiredModifier:
		return t.elem.ContainsTypeParameters() || t.modifier.ContainsTypeParameters()
	case KindFunctionPointer:
		if t.fn.ret.ContainsTypeParameters() {
			return true
		}
		return slices.ContainsFunc(t.fn.params, (*Type).ContainsTypeParameters)
	}
	if t.template != nil {
		return slices.ContainsFunc(t.consolidated, (*Type).ContainsTypeParameters)
	}
	return false
}

// MemberName, MemberKind and MemberVisibility make a nested type a Member of
// its declaring type.
func (t *Type) MemberName() *names.Identifier { return t.name }
func (t *Type) MemberKind() MemberKind        { return MemberNestedType }
func (t *Type) MemberVisibility() Visibility  { return t.Visibility() }

// Structural accessors.

func (t *Type) ElementType() *Type { return t.elem }
func (t *Type) Rank() int          { return t.rank }
func (t *Type) Sizes() []int       { return t.sizes }
func (t *Type) LowerBounds() []int { return t.lowerBounds }

// IsSZArray reports whether t is a single-dimensional zero-based array.
func (t *Type) IsSZArray() bool { return t.kind == KindArray && t.sz }

// Modifier is the modifier type of a custom-modifier node. ElementType is the
// modified type.
func (t *Type) Modifier() *Type { return t.modifier }

// TemplateParameterIndex is the position of a template parameter.
func (t *Type) TemplateParameterIndex() int {
	if t.param == nil {
		return -1
	}
	return t.param.index
}

// TemplateParameterOwner is the *Type or *Method declaring the parameter.
func (t *Type) TemplateParameterOwner() Member {
	if t.param == nil {
		return nil
	}
	return t.param.owner
}

// IsMethodTemplateParameter reports whether a generic method owns t.
func (t *Type) IsMethodTemplateParameter() bool { return t.param != nil && t.param.methodScoped }

func (t *Type) Variance() Variance {
	if t.param == nil {
		return Invariant
	}
	return t.param.variance
}

func (t *Type) Constraints() ConstraintFlags {
	if t.param == nil {
		return 0
	}
	return t.param.constraints
}

func (t *Type) ReturnType() *Type {
	if t.fn == nil {
		return nil
	}
	return t.fn.ret
}

func (t *Type) ParameterTypes() []*Type {
	if t.fn == nil {
		return nil
	}
	return t.fn.params
}

func (t *Type) CallingConvention() CallingConvention {
	if t.fn == nil {
		return CallDefault
	}
	return t.fn.cc
}

// VarArgStart is the index of the vararg sentinel, or -1.
func (t *Type) VarArgStart() int {
	if t.fn == nil {
		return -1
	}
	return t.fn.varArgStart
}

// Lazy properties. The plain accessors return an empty value when the provider
// fails and keep the error for PopulationError; the Load variants return it.

func (t *Type) Members() []Member {
	v, _ := t.members.get(t, PropMembers)
	return v
}

func (t *Type) LoadMembers() ([]Member, error) { return t.members.get(t, PropMembers) }

func (t *Type) NestedTypes() []*Type {
	v, _ := t.nested.get(t, PropNestedTypes)
	return v
}

func (t *Type) LoadNestedTypes() ([]*Type, error) { return t.nested.get(t, PropNestedTypes) }

func (t *Type) Attributes() []*Attribute {
	v, _ := t.attrs.get(t, PropAttributes)
	return v
}

func (t *Type) LoadAttributes() ([]*Attribute, error) { return t.attrs.get(t, PropAttributes) }

func (t *Type) Signature() Signature {
	v, _ := t.signature.get(t, PropSignature)
	return v
}

func (t *Type) LoadSignature() (Signature, error) { return t.signature.get(t, PropSignature) }

func (t *Type) BaseType() *Type     { return t.Signature().BaseType }
func (t *Type) Interfaces() []*Type { return t.Signature().Interfaces }
func (t *Type) TemplateParameters() []*Type {
	if t.template != nil {
		return nil
	}
	return t.Signature().TemplateParameters
}

// LoadTemplateParameters populates the signature and returns the template
// parameters.
func (t *Type) LoadTemplateParameters() ([]*Type, error) {
	if t.template != nil {
		return nil, nil
	}
	sig, err := t.LoadSignature()
	return sig.TemplateParameters, err
}

// PopulationState reports the state of one lazy property.
func (t *Type) PopulationState(p LazyProperty) CellState {
	switch p {
	case PropMembers:
		return t.members.state()
	case PropNestedTypes:
		return t.nested.state()
	case PropAttributes:
		return t.attrs.state()
	default:
		return t.signature.state()
	}
}

// PopulationError returns the error of the last failed population of p.
func (t *Type) PopulationError(p LazyProperty) error {
	switch p {
	case PropMembers:
		return t.members.lastError()
	case PropNestedTypes:
		return t.nested.lastError()
	case PropAttributes:
		return t.attrs.lastError()
	default:
		return t.signature.lastError()
	}
}

// ProvideMembers installs a members provider and resets the property.
func (t *Type) ProvideMembers(fn MembersProvider, handle any) error {
	if fn == nil {
		return ErrNilProvider
	}
	populationLock.Lock()
	defer populationLock.Unlock()
	t.members.install(func() ([]Member, error) { return normalize(fn(t, handle)) })
	t.invalidate()
	return nil
}

func (t *Type) ProvideNestedTypes(fn NestedTypesProvider, handle any) error {
	if fn == nil {
		return ErrNilProvider
	}
	populationLock.Lock()
	defer populationLock.Unlock()
	t.nested.install(func() ([]*Type, error) { return normalize(fn(t, handle)) })
	t.invalidate()
	return nil
}

func (t *Type) ProvideAttributes(fn AttributesProvider, handle any) error {
	if fn == nil {
		return ErrNilProvider
	}
	populationLock.Lock()
	defer populationLock.Unlock()
	t.attrs.install(func() ([]*Attribute, error) { return normalize(fn(t, handle)) })
	return nil
}

// ProvideSignature installs the provider of base type, interfaces and
// template parameters. A provider that resolves references to its own
// template parameters should publish them first with SetTemplateParameters.
func (t *Type) ProvideSignature(fn SignatureProvider, handle any) error {
	if fn == nil {
		return ErrNilProvider
	}
	populationLock.Lock()
	defer populationLock.Unlock()
	t.signature.install(func() (Signature, error) {
		return fn(t, handle)
	})
	return nil
}

// SetMembers replaces the member list and drops every cache derived from it.
func (t *Type) SetMembers(members []Member) {
	t.members.set(slices.Clip(members))
	t.invalidate()
}

// AddMember appends m to the member list.
func (t *Type) AddMember(m Member) {
	populationLock.Lock()
	defer populationLock.Unlock()
	cur, _ := t.members.get(t, PropMembers)
	t.members.set(append(slices.Clip(cur), m))
	t.invalidate()
}

func (t *Type) SetNestedTypes(nested []*Type) {
	t.nested.set(slices.Clip(nested))
	t.invalidate()
}

// AddNestedType appends n to the nested type list.
func (t *Type) AddNestedType(n *Type) {
	populationLock.Lock()
	defer populationLock.Unlock()
	cur, _ := t.nested.get(t, PropNestedTypes)
	t.nested.set(append(slices.Clip(cur), n))
	t.invalidate()
}

func (t *Type) SetAttributes(attrs []*Attribute) { t.attrs.set(slices.Clip(attrs)) }

func (t *Type) SetSignature(sig Signature) { t.signature.set(sig) }

// SetTemplateParameters replaces only the template parameters of the
// signature. Inside the signature provider this makes them visible to
// re-entrant readers before the provider returns.
func (t *Type) SetTemplateParameters(params []*Type) {
	populationLock.Lock()
	defer populationLock.Unlock()
	sig, _ := t.signature.get(t, PropSignature)
	sig.TemplateParameters = params
	t.signature.set(sig)
}

// SetBaseType replaces only the base type of the signature.
func (t *Type) SetBaseType(base *Type) {
	populationLock.Lock()
	defer populationLock.Unlock()
	sig, _ := t.signature.get(t, PropSignature)
	sig.BaseType = base
	t.signature.set(sig)
}

// Describe renders a one-line summary used by diagnostics and the CLI.
func (t *Type) Describe() string {
	var sb strings.Builder
	sb.WriteString(t.kind.String())
	sb.WriteByte(' ')
	sb.WriteString(t.FullName())
	if t.kind.IsNominal() {
		sb.WriteString(" [")
		sb.WriteString(t.EffectiveVisibility().String())
		sb.WriteByte(']')
	}
	return sb.String()
}
