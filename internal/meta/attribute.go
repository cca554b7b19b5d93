package meta

import "cilgraph/internal/names"

// AttributeArgument is one constructor or named argument of a custom
// attribute. Value is a Go scalar, a string, a *Type for typeof operands, or
// a []AttributeArgument for arrays.
type AttributeArgument struct {
	Type  *Type
	Value any
}

// NamedArgument sets a field or property of the attribute.
type NamedArgument struct {
	Name    *names.Identifier
	IsField bool
	AttributeArgument
}

// Attribute is a custom attribute application.
type Attribute struct {
	Type        *Type
	Constructor *Method
	Positional  []AttributeArgument
	Named       []NamedArgument
}

// FindAttribute returns the first attribute whose type has the given full
// name.
func FindAttribute(attrs []*Attribute, fullName string) *Attribute {
	for _, a := range attrs {
		if a.Type != nil && a.Type.FullName() == fullName {
			return a
		}
	}
	return nil
}
