package loader

import (
	"fmt"
	"slices"

	"cilgraph/internal/meta"
)

type flagName[F ~uint16 | ~uint32] struct {
	name string
	bit  F
}

var typeFlagNames = []flagName[meta.TypeFlags]{
	{"abstract", meta.TypeAbstract},
	{"sealed", meta.TypeSealed},
	{"sequential", meta.TypeSequentialLayout},
	{"explicit", meta.TypeExplicitLayout},
	{"specialname", meta.TypeSpecialName},
	{"import", meta.TypeImport},
	{"serializable", meta.TypeSerializable},
	{"beforefieldinit", meta.TypeBeforeFieldInit},
}

var methodFlagNames = []flagName[meta.MethodFlags]{
	{"static", meta.MethodStatic},
	{"final", meta.MethodFinal},
	{"virtual", meta.MethodVirtual},
	{"hidebysig", meta.MethodHideBySig},
	{"newslot", meta.MethodNewSlot},
	{"abstract", meta.MethodAbstract},
	{"specialname", meta.MethodSpecialName},
	{"rtspecialname", meta.MethodRTSpecialName},
	{"pinvokeimpl", meta.MethodPInvokeImpl},
}

var fieldFlagNames = []flagName[meta.FieldFlags]{
	{"static", meta.FieldStatic},
	{"initonly", meta.FieldInitOnly},
	{"literal", meta.FieldLiteral},
	{"specialname", meta.FieldSpecialName},
}

var paramFlagNames = []flagName[meta.ParameterFlags]{
	{"in", meta.ParamIn},
	{"out", meta.ParamOut},
	{"optional", meta.ParamOptional},
}

func parseFlags[F ~uint16 | ~uint32](table []flagName[F], words []string) (F, error) {
	var out F
	for _, w := range words {
		i := slices.IndexFunc(table, func(f flagName[F]) bool { return f.name == w })
		if i < 0 {
			return 0, fmt.Errorf("%w: unknown flag %q", ErrMalformed, w)
		}
		out |= table[i].bit
	}
	return out, nil
}

func flagWords[F ~uint16 | ~uint32](table []flagName[F], flags F) []string {
	var out []string
	for _, f := range table {
		if flags&f.bit == f.bit {
			out = append(out, f.name)
		}
	}
	return out
}

func parseKind(s string) (meta.Kind, error) {
	if s == "" {
		return meta.KindClass, nil
	}
	k, ok := meta.ParseKind(s)
	if !ok {
		return 0, fmt.Errorf("%w: unknown kind %q", ErrMalformed, s)
	}
	return k, nil
}

// typeFlags combines a visibility name and flag words. Top-level types
// default to public visibility, nested ones to private.
func typeFlags(h *TypeHeader, nested bool) (meta.TypeFlags, error) {
	vis := meta.VisPublic
	if nested {
		vis = meta.VisPrivate
	}
	if h.Visibility != "" {
		v, ok := meta.ParseVisibility(h.Visibility)
		if !ok {
			return 0, fmt.Errorf("%w: unknown visibility %q", ErrMalformed, h.Visibility)
		}
		vis = v
	}
	f, err := parseFlags(typeFlagNames, h.Flags)
	if err != nil {
		return 0, err
	}
	return f | meta.TypeVisibilityFlags(vis, nested), nil
}

// access maps a visibility name to member access bits. Members default to
// public.
func access(s string) (meta.MemberAccess, error) {
	if s == "" {
		return meta.AccessPublic, nil
	}
	v, ok := meta.ParseVisibility(s)
	if !ok {
		return 0, fmt.Errorf("%w: unknown access %q", ErrMalformed, s)
	}
	return meta.VisibilityAccess(v), nil
}

func parseVariance(s string) (meta.Variance, error) {
	switch s {
	case "":
		return meta.Invariant, nil
	case "out":
		return meta.Covariant, nil
	case "in":
		return meta.Contravariant, nil
	}
	return 0, fmt.Errorf("%w: unknown variance %q", ErrMalformed, s)
}

func varianceWord(v meta.Variance) string {
	switch v {
	case meta.Covariant:
		return "out"
	case meta.Contravariant:
		return "in"
	}
	return ""
}

var specialNames = []struct {
	name string
	bit  meta.ConstraintFlags
}{
	{"class", meta.ConstraintReferenceType},
	{"struct", meta.ConstraintNotNullableValue},
	{"new", meta.ConstraintDefaultConstructor},
}

func parseSpecial(words []string) (meta.ConstraintFlags, error) {
	var out meta.ConstraintFlags
outer:
	for _, w := range words {
		for _, s := range specialNames {
			if s.name == w {
				out |= s.bit
				continue outer
			}
		}
		return 0, fmt.Errorf("%w: unknown constraint %q", ErrMalformed, w)
	}
	return out, nil
}

func specialWords(c meta.ConstraintFlags) []string {
	var out []string
	for _, s := range specialNames {
		if c&s.bit != 0 {
			out = append(out, s.name)
		}
	}
	return out
}
