package meta

import (
	"slices"
	"strings"
	"strconv"
	"sync"
	"sync/atomic"

	"cilgraph/internal/names"
)

// MemberKind distinguishes the members of a type.
type MemberKind uint8

const (
	MemberField MemberKind = iota + 1
	MemberMethod
	MemberProperty
	MemberEvent
	MemberNestedType
)

func (k MemberKind) String() string {
	switch k {
	case MemberField:
		return "field"
	case MemberMethod:
		return "method"
	case MemberProperty:
		return "property"
	case MemberEvent:
		return "event"
	case MemberNestedType:
		return "nested"
	default:
		return "member"
	}
}

// Member is anything a type declares.
type Member interface {
	MemberName() *names.Identifier
	DeclaringType() *Type
	MemberKind() MemberKind
	MemberVisibility() Visibility
}

// FieldFlags mirror field attribute bits. The low bits are a MemberAccess.
type FieldFlags uint16

const (
	FieldStatic      FieldFlags = 0x10
	FieldInitOnly    FieldFlags = 0x20
	FieldLiteral     FieldFlags = 0x40
	FieldSpecialName FieldFlags = 0x200
)

// Field is a data member.
type Field struct {
	Name      *names.Identifier
	Declaring *Type
	Flags     FieldFlags
	Type      *Type
	Constant  any // literal value when Flags has FieldLiteral
	Attrs     []*Attribute
	Origin    *Field
}

func (f *Field) MemberName() *names.Identifier { return f.Name }
func (f *Field) DeclaringType() *Type          { return f.Declaring }
func (f *Field) MemberKind() MemberKind        { return MemberField }
func (f *Field) MemberVisibility() Visibility  { return AccessVisibility(MemberAccess(f.Flags)) }
func (f *Field) IsStatic() bool                { return f.Flags&FieldStatic != 0 }

// MethodFlags mirror method attribute bits. The low bits are a MemberAccess.
type MethodFlags uint16

const (
	MethodStatic        MethodFlags = 0x10
	MethodFinal         MethodFlags = 0x20
	MethodVirtual       MethodFlags = 0x40
	MethodHideBySig     MethodFlags = 0x80
	MethodNewSlot       MethodFlags = 0x100
	MethodAbstract      MethodFlags = 0x400
	MethodSpecialName   MethodFlags = 0x800
	MethodRTSpecialName MethodFlags = 0x1000
	MethodPInvokeImpl   MethodFlags = 0x2000
	MethodRequireSecObj MethodFlags = 0x8000
)

// ParameterFlags mirror parameter attribute bits.
type ParameterFlags uint16

const (
	ParamIn         ParameterFlags = 0x1
	ParamOut        ParameterFlags = 0x2
	ParamOptional   ParameterFlags = 0x10
	ParamHasDefault ParameterFlags = 0x1000
)

// Parameter of a method or property.
type Parameter struct {
	Name     *names.Identifier
	Type     *Type
	Position int
	Flags    ParameterFlags
	Default  any
	Attrs    []*Attribute
}

// Method is a callable member. A generic method owns TemplateParameters; a
// generic method instance has Template and TemplateArguments instead.
type Method struct {
	Name               *names.Identifier
	Declaring          *Type
	Flags              MethodFlags
	CallingConvention  CallingConvention
	ReturnType         *Type
	Parameters         []*Parameter
	TemplateParameters []*Type
	Template           *Method
	TemplateArguments  []*Type
	Overrides          []*Method // interface or base methods implemented explicitly
	Attrs              []*Attribute
	Body               any // opaque handle for the code of the method
	Origin             *Method

	key       atomic.Int32
	instances instanceTable[Method]
	mu        sync.Mutex
}

// NewMethod creates a method with parameters named p0, p1, ... for the given
// parameter types.
func NewMethod(declaring *Type, name string, flags MethodFlags, ret *Type, params ...*Type) *Method {
	m := &Method{
		Name:       names.Intern(name),
		Declaring:  declaring,
		Flags:      flags,
		ReturnType: ret,
	}
	if flags&MethodStatic == 0 {
		m.CallingConvention = CallHasThis
	}
	for i, p := range params {
		m.Parameters = append(m.Parameters, &Parameter{
			Name:     names.Intern("p" + strconv.Itoa(i)),
			Type:     p,
			Position: i,
		})
	}
	return m
}

// UniqueKey is a positive process-wide identity assigned on first use.
func (m *Method) UniqueKey() int32 {
	if k := m.key.Load(); k != 0 {
		return k
	}
	m.key.CompareAndSwap(0, nextUniqueKey())
	return m.key.Load()
}

func (m *Method) MemberName() *names.Identifier { return m.Name }
func (m *Method) DeclaringType() *Type          { return m.Declaring }
func (m *Method) MemberKind() MemberKind        { return MemberMethod }
func (m *Method) MemberVisibility() Visibility  { return AccessVisibility(MemberAccess(m.Flags)) }
func (m *Method) IsStatic() bool                { return m.Flags&MethodStatic != 0 }
func (m *Method) IsVirtual() bool               { return m.Flags&MethodVirtual != 0 }
func (m *Method) IsAbstract() bool              { return m.Flags&MethodAbstract != 0 }
func (m *Method) IsGeneric() bool               { return len(m.TemplateParameters) > 0 }
func (m *Method) IsInstance() bool              { return m.Template != nil }

// IsConstructor reports whether m is an instance or type initializer.
func (m *Method) IsConstructor() bool {
	if m.Flags&MethodRTSpecialName == 0 {
		return false
	}
	n := m.Name.Text()
	return n == ".ctor" || n == ".cctor"
}

// IsConversion reports whether m is a user-defined conversion operator and
// whether it is implicit.
func (m *Method) IsConversion() (conversion, implicit bool) {
	if m.Flags&MethodSpecialName == 0 || !m.IsStatic() {
		return false, false
	}
	switch m.Name.Text() {
	case "op_Implicit":
		return true, true
	case "op_Explicit":
		return true, false
	}
	return false, false
}

// ParameterTypes returns the parameter types in order.
func (m *Method) ParameterTypes() []*Type {
	out := make([]*Type, len(m.Parameters))
	for i, p := range m.Parameters {
		out[i] = p.Type
	}
	return out
}

// Root follows Origin to the original declaration.
func (m *Method) Root() *Method {
	for m != nil && m.Origin != nil {
		m = m.Origin
	}
	return m
}

// Signature renders "Ret Name<T>(P0,P1)".
func (m *Method) Signature() string {
	var sb strings.Builder
	sb.WriteString(m.ReturnType.FullName())
	sb.WriteByte(' ')
	sb.WriteString(m.Name.Text())
	if len(m.TemplateParameters) > 0 {
		sb.WriteByte('<')
		for i, p := range m.TemplateParameters {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(p.FullName())
		}
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	for i, p := range m.Parameters {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Type.FullName())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (m *Method) String() string { return m.Declaring.FullName() + "::" + m.Signature() }

// Property groups accessor methods under one name.
type Property struct {
	Name       *names.Identifier
	Declaring  *Type
	Type       *Type
	Parameters []*Parameter
	Getter     *Method
	Setter     *Method
	Attrs      []*Attribute
	Origin     *Property
}

func (p *Property) MemberName() *names.Identifier { return p.Name }
func (p *Property) DeclaringType() *Type          { return p.Declaring }
func (p *Property) MemberKind() MemberKind        { return MemberProperty }

// MemberVisibility is the widest visibility of the accessors.
func (p *Property) MemberVisibility() Visibility {
	return accessorVisibility(p.Getter, p.Setter)
}

// Event groups subscription methods under one name.
type Event struct {
	Name        *names.Identifier
	Declaring   *Type
	HandlerType *Type
	Adder       *Method
	Remover     *Method
	Raiser      *Method
	Attrs       []*Attribute
	Origin      *Event
}

func (e *Event) MemberName() *names.Identifier { return e.Name }
func (e *Event) DeclaringType() *Type          { return e.Declaring }
func (e *Event) MemberKind() MemberKind        { return MemberEvent }

func (e *Event) MemberVisibility() Visibility {
	return accessorVisibility(e.Adder, e.Remover, e.Raiser)
}

func accessorVisibility(ms ...*Method) Visibility {
	var v Visibility
	for _, m := range ms {
		if m != nil {
			v |= m.MemberVisibility()
		}
	}
	if v == 0 {
		return VisPrivate
	}
	return v
}

// SameParameterTypes reports whether a and b take pairwise identical
// parameter types.
func SameParameterTypes(a, b []*Parameter) bool {
	return slices.EqualFunc(a, b, func(x, y *Parameter) bool { return x.Type == y.Type })
}
