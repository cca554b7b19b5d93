package meta

import "fmt"

// Kind distinguishes the node shapes of the type graph.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindClass
	KindInterface
	KindStruct
	KindEnum
	KindDelegate
	KindArray
	KindPointer
	KindReference
	KindTypeParameter
	KindFunctionPointer
	KindOptionalModifier
	KindRequiredModifier
)

var kindNames = [...]string{
	KindInvalid:          "invalid",
	KindClass:            "class",
	KindInterface:        "interface",
	KindStruct:           "struct",
	KindEnum:             "enum",
	KindDelegate:         "delegate",
	KindArray:            "array",
	KindPointer:          "pointer",
	KindReference:        "reference",
	KindTypeParameter:    "typeparam",
	KindFunctionPointer:  "fnptr",
	KindOptionalModifier: "modopt",
	KindRequiredModifier: "modreq",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind maps a definition kind name back to its Kind. Only nominal kinds
// are accepted.
func ParseKind(s string) (Kind, bool) {
	for k := KindClass; k <= KindDelegate; k++ {
		if kindNames[k] == s {
			return k, true
		}
	}
	return KindInvalid, false
}

// IsNominal reports whether k is a named definition kind.
func (k Kind) IsNominal() bool { return k >= KindClass && k <= KindDelegate }

// IsModifier reports whether k wraps a type with a custom modifier.
func (k Kind) IsModifier() bool {
	return k == KindOptionalModifier || k == KindRequiredModifier
}

// TypeFlags mirrors the type attribute bits of the metadata tables.
type TypeFlags uint32

const (
	TypeVisibilityMask    TypeFlags = 0x7
	TypeNotPublic         TypeFlags = 0x0
	TypePublic            TypeFlags = 0x1
	TypeNestedPublic      TypeFlags = 0x2
	TypeNestedPrivate     TypeFlags = 0x3
	TypeNestedFamily      TypeFlags = 0x4
	TypeNestedAssembly    TypeFlags = 0x5
	TypeNestedFamANDAssem TypeFlags = 0x6
	TypeNestedFamORAssem  TypeFlags = 0x7

	TypeLayoutMask       TypeFlags = 0x18
	TypeAutoLayout       TypeFlags = 0x0
	TypeSequentialLayout TypeFlags = 0x8
	TypeExplicitLayout   TypeFlags = 0x10

	TypeAbstract        TypeFlags = 0x80
	TypeSealed          TypeFlags = 0x100
	TypeSpecialName     TypeFlags = 0x400
	TypeImport          TypeFlags = 0x1000
	TypeSerializable    TypeFlags = 0x2000
	TypeBeforeFieldInit TypeFlags = 0x100000
)

// MemberAccess is the access field shared by field and method attributes.
type MemberAccess uint16

const (
	AccessMask               MemberAccess = 0x7
	AccessCompilerControlled MemberAccess = 0x0
	AccessPrivate            MemberAccess = 0x1
	AccessFamANDAssem        MemberAccess = 0x2
	AccessAssembly           MemberAccess = 0x3
	AccessFamily             MemberAccess = 0x4
	AccessFamORAssem         MemberAccess = 0x5
	AccessPublic             MemberAccess = 0x6
)

// Variance of a type parameter.
type Variance uint8

const (
	Invariant Variance = iota
	Covariant
	Contravariant
)

func (v Variance) String() string {
	switch v {
	case Covariant:
		return "covariant"
	case Contravariant:
		return "contravariant"
	default:
		return "invariant"
	}
}

// ConstraintFlags are the special constraints of a type parameter.
type ConstraintFlags uint8

const (
	ConstraintReferenceType      ConstraintFlags = 1 << iota // class
	ConstraintNotNullableValue                               // struct
	ConstraintDefaultConstructor                             // new()
)

// CallingConvention of a method or function pointer signature.
type CallingConvention uint8

const (
	CallDefault CallingConvention = iota
	CallC
	CallStdCall
	CallThisCall
	CallFastCall
	CallVarArg
	CallHasThis CallingConvention = 0x20
)

func (c CallingConvention) String() string {
	var base string
	switch c &^ CallHasThis {
	case CallDefault:
		base = "default"
	case CallC:
		base = "unmanaged cdecl"
	case CallStdCall:
		base = "unmanaged stdcall"
	case CallThisCall:
		base = "unmanaged thiscall"
	case CallFastCall:
		base = "unmanaged fastcall"
	case CallVarArg:
		base = "vararg"
	default:
		base = fmt.Sprintf("cc(%d)", uint8(c&^CallHasThis))
	}
	if c&CallHasThis != 0 {
		return "instance " + base
	}
	return base
}
