package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// Loading assembly descriptions
	LoadInfo                 Code = 1000
	LoadMalformedDescription Code = 1001
	LoadUnresolvedReference  Code = 1002
	LoadVersionMismatch      Code = 1003
	LoadDuplicateType        Code = 1004
	LoadUnresolvedType       Code = 1005
	LoadBadSignature         Code = 1006
	LoadBadFlag              Code = 1007

	// Type graph and generic instantiation
	MetaInfo               Code = 2000
	MetaPopulationFailed   Code = 2001
	MetaInstantiationCycle Code = 2002
	MetaNameCollision      Code = 2003
	MetaArityMismatch      Code = 2004
	MetaNotGeneric         Code = 2005

	// Binary images
	ImageInfo           Code = 3000
	ImageSchemaMismatch Code = 3001
	ImageCorrupt        Code = 3002

	// Configuration
	CfgInfo         Code = 4000
	CfgInvalidValue Code = 4001
)

var codeDescription = map[Code]string{
	UnknownCode:              "Unknown error",
	LoadInfo:                 "Load information",
	LoadMalformedDescription: "Malformed assembly description",
	LoadUnresolvedReference:  "Unresolved assembly reference",
	LoadVersionMismatch:      "No assembly version satisfies the reference",
	LoadDuplicateType:        "Duplicate type definition",
	LoadUnresolvedType:       "Unresolved type reference",
	LoadBadSignature:         "Malformed type signature",
	LoadBadFlag:              "Unknown flag",
	MetaInfo:                 "Type graph information",
	MetaPopulationFailed:     "Lazy population failed",
	MetaInstantiationCycle:   "Generic instantiation cycle",
	MetaNameCollision:        "Instance name collision",
	MetaArityMismatch:        "Wrong number of template arguments",
	MetaNotGeneric:           "Type is not generic",
	ImageInfo:                "Image information",
	ImageSchemaMismatch:      "Unsupported image schema",
	ImageCorrupt:             "Corrupt image",
	CfgInfo:                  "Configuration information",
	CfgInvalidValue:          "Invalid configuration value",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("LOD%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("GEN%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("IMG%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("CFG%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
