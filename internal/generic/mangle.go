package generic

import (
	"strings"

	"cilgraph/internal/meta"
	"cilgraph/internal/names"
)

// MangledName renders the simple name of an instance: name without its
// backtick arity suffix, followed by the argument full names in angle
// brackets. MangledName("Box`1", [Int32]) is "Box<Int32>".
func MangledName(name string, args []*meta.Type) string {
	var sb strings.Builder
	sb.WriteString(stripArity(name))
	sb.WriteByte('<')
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(a.FullName())
	}
	sb.WriteByte('>')
	return sb.String()
}

func stripArity(name string) string {
	i := strings.LastIndexByte(name, '`')
	if i < 0 || i == len(name)-1 {
		return name
	}
	for _, r := range name[i+1:] {
		if r < '0' || r > '9' {
			return name
		}
	}
	return name[:i]
}

func internName(s string) *names.Identifier { return names.Intern(s) }

// argumentDepth is the deepest nesting of instances within args.
func argumentDepth(args []*meta.Type) int {
	depth := 0
	for _, a := range args {
		depth = max(depth, typeDepth(a))
	}
	return depth
}

func typeDepth(t *meta.Type) int {
	if t == nil {
		return 0
	}
	switch t.Kind() {
	case meta.KindArray, meta.KindPointer, meta.KindReference:
		return typeDepth(t.ElementType())
	case meta.KindOptionalModifier, meta.KindRequiredModifier:
		return max(typeDepth(t.ElementType()), typeDepth(t.Modifier()))
	case meta.KindFunctionPointer:
		return max(typeDepth(t.ReturnType()), argumentDepth(t.ParameterTypes()))
	}
	if t.IsInstance() {
		return 1 + argumentDepth(t.ConsolidatedTemplateArguments())
	}
	return 0
}
