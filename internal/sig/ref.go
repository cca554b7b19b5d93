// Package sig reads and writes textual type references such as
// "[corlib]System.Collections.Generic.List`1<!0>[]" and resolves them against
// the type graph.
package sig

import (
	"errors"
	"strconv"
	"strings"

	"cilgraph/internal/meta"
)

var (
	ErrSyntax     = errors.New("sig: malformed type reference")
	ErrUnresolved = errors.New("sig: unresolved type reference")
)

// RefKind says which fields of a Ref are meaningful.
type RefKind uint8

const (
	RefNamed RefKind = iota + 1
	RefTypeParam
	RefMethodParam
	RefArray
	RefPointer
	RefReference
	RefModOpt
	RefModReq
	RefFunctionPointer
	RefVoid
)

// Ref is a parsed type reference.
type Ref struct {
	Kind RefKind

	// RefNamed: Names runs from the top-level type to the innermost nested
	// one. Args is the consolidated argument list of the innermost type.
	Assembly  string
	Namespace string
	Names     []string
	Args      []*Ref

	// RefTypeParam, RefMethodParam
	Index int

	// RefArray, RefPointer, RefReference and the modifiers wrap Elem.
	// Rank 0 is a single-dimensional zero-based array.
	Elem        *Ref
	Rank        int
	Sizes       []int
	LowerBounds []int
	Modifier    *Ref

	// RefFunctionPointer
	CallConv    meta.CallingConvention
	Return      *Ref
	Params      []*Ref
	VarArgStart int
}

// String renders r in the syntax Parse accepts.
func (r *Ref) String() string {
	var sb strings.Builder
	r.write(&sb)
	return sb.String()
}

func (r *Ref) write(sb *strings.Builder) {
	switch r.Kind {
	case RefVoid:
		sb.WriteString("void")
	case RefTypeParam:
		sb.WriteByte('!')
		sb.WriteString(strconv.Itoa(r.Index))
	case RefMethodParam:
		sb.WriteString("!!")
		sb.WriteString(strconv.Itoa(r.Index))
	case RefArray:
		r.Elem.write(sb)
		if r.Rank == 0 {
			sb.WriteString("[]")
		} else {
			sb.WriteString(dimensions(r.Rank, r.Sizes, r.LowerBounds))
		}
	case RefPointer:
		r.Elem.write(sb)
		sb.WriteByte('*')
	case RefReference:
		r.Elem.write(sb)
		sb.WriteByte('&')
	case RefModOpt, RefModReq:
		r.Elem.write(sb)
		if r.Kind == RefModOpt {
			sb.WriteString(" modopt(")
		} else {
			sb.WriteString(" modreq(")
		}
		r.Modifier.write(sb)
		sb.WriteByte(')')
	case RefFunctionPointer:
		sb.WriteString("method ")
		if r.CallConv != meta.CallDefault {
			sb.WriteString(r.CallConv.String())
			sb.WriteByte(' ')
		}
		r.Return.write(sb)
		sb.WriteString(" *(")
		for i, p := range r.Params {
			if i == r.VarArgStart {
				if i > 0 {
					sb.WriteByte(',')
				}
				sb.WriteString("...")
			}
			if i > 0 || i == r.VarArgStart {
				sb.WriteByte(',')
			}
			p.write(sb)
		}
		if r.VarArgStart == len(r.Params) {
			if len(r.Params) > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("...")
		}
		sb.WriteByte(')')
	case RefNamed:
		if r.Assembly != "" {
			sb.WriteByte('[')
			sb.WriteString(r.Assembly)
			sb.WriteByte(']')
		}
		if r.Namespace != "" {
			sb.WriteString(r.Namespace)
			sb.WriteByte('.')
		}
		sb.WriteString(strings.Join(r.Names, "/"))
		if len(r.Args) > 0 {
			sb.WriteByte('<')
			for i, a := range r.Args {
				if i > 0 {
					sb.WriteByte(',')
				}
				a.write(sb)
			}
			sb.WriteByte('>')
		}
	}
}

// dimensions renders array bounds: "[,]", "[0...3]", "[4]", "[1...]", and
// "[*]" for a rank-1 array that is not single-dimensional zero-based.
func dimensions(rank int, sizes, lowerBounds []int) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := range rank {
		if i > 0 {
			sb.WriteByte(',')
		}
		hasLo, hasSize := i < len(lowerBounds), i < len(sizes)
		switch {
		case hasLo && hasSize:
			sb.WriteString(strconv.Itoa(lowerBounds[i]))
			sb.WriteString("...")
			sb.WriteString(strconv.Itoa(lowerBounds[i] + sizes[i] - 1))
		case hasSize:
			sb.WriteString(strconv.Itoa(sizes[i]))
		case hasLo:
			sb.WriteString(strconv.Itoa(lowerBounds[i]))
			sb.WriteString("...")
		case rank == 1:
			sb.WriteByte('*')
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
