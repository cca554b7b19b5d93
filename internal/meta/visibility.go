package meta

// Visibility is the set of accessor classes allowed to see an entity. The
// lattice meet is set intersection: an entity seen through another is visible
// to whoever can see both.
type Visibility uint8

const (
	seeSelf            Visibility = 1 << iota // the declaring type itself
	seeFamilyAssembly                         // derived types in the same assembly
	seeAssembly                               // other code in the same assembly
	seeFamilyElsewhere                        // derived types in other assemblies
	seeWorld                                  // everyone else
)

const (
	VisPrivate     = seeSelf
	VisFamANDAssem = seeSelf | seeFamilyAssembly
	VisAssembly    = VisFamANDAssem | seeAssembly
	VisFamily      = VisFamANDAssem | seeFamilyElsewhere
	VisFamORAssem  = VisAssembly | seeFamilyElsewhere
	VisPublic      = VisFamORAssem | seeWorld
)

// Meet returns the greatest visibility contained in both v and o.
func (v Visibility) Meet(o Visibility) Visibility { return v & o }

// Covers reports whether v is at least as visible as o.
func (v Visibility) Covers(o Visibility) bool { return v&o == o }

func (v Visibility) String() string {
	switch v {
	case VisPublic:
		return "public"
	case VisFamORAssem:
		return "famorassem"
	case VisFamily:
		return "family"
	case VisAssembly:
		return "assembly"
	case VisFamANDAssem:
		return "famandassem"
	case VisPrivate:
		return "private"
	default:
		return "none"
	}
}

// ParseVisibility maps a visibility name back to its lattice value.
func ParseVisibility(s string) (Visibility, bool) {
	switch s {
	case "public":
		return VisPublic, true
	case "famorassem", "protected internal":
		return VisFamORAssem, true
	case "family", "protected":
		return VisFamily, true
	case "assembly", "internal":
		return VisAssembly, true
	case "famandassem", "private protected":
		return VisFamANDAssem, true
	case "private":
		return VisPrivate, true
	}
	return 0, false
}

// VisibilityOf decodes the visibility bits of type flags.
func VisibilityOf(flags TypeFlags) Visibility {
	switch flags & TypeVisibilityMask {
	case TypePublic, TypeNestedPublic:
		return VisPublic
	case TypeNestedPrivate:
		return VisPrivate
	case TypeNestedFamily:
		return VisFamily
	case TypeNestedFamANDAssem:
		return VisFamANDAssem
	case TypeNestedFamORAssem:
		return VisFamORAssem
	default:
		return VisAssembly
	}
}

// TypeVisibilityFlags encodes v as type flags. Top-level types can only be
// public or assembly visible; anything narrower collapses to assembly.
func TypeVisibilityFlags(v Visibility, nested bool) TypeFlags {
	if !nested {
		if v == VisPublic {
			return TypePublic
		}
		return TypeNotPublic
	}
	switch v {
	case VisPublic:
		return TypeNestedPublic
	case VisFamORAssem:
		return TypeNestedFamORAssem
	case VisFamily:
		return TypeNestedFamily
	case VisAssembly:
		return TypeNestedAssembly
	case VisFamANDAssem:
		return TypeNestedFamANDAssem
	default:
		return TypeNestedPrivate
	}
}

// AccessVisibility decodes member access bits.
func AccessVisibility(a MemberAccess) Visibility {
	switch a & AccessMask {
	case AccessPublic:
		return VisPublic
	case AccessFamORAssem:
		return VisFamORAssem
	case AccessFamily:
		return VisFamily
	case AccessAssembly:
		return VisAssembly
	case AccessFamANDAssem:
		return VisFamANDAssem
	default:
		return VisPrivate
	}
}

// VisibilityAccess encodes v as member access bits.
func VisibilityAccess(v Visibility) MemberAccess {
	switch v {
	case VisPublic:
		return AccessPublic
	case VisFamORAssem:
		return AccessFamORAssem
	case VisFamily:
		return AccessFamily
	case VisAssembly:
		return AccessAssembly
	case VisFamANDAssem:
		return AccessFamANDAssem
	default:
		return AccessPrivate
	}
}
