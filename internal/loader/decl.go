// Package loader binds assembly descriptions to the type graph. Definitions
// become shells up front; their signatures, members, nested types and
// attributes are resolved by providers the first time they are asked for.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"cilgraph/internal/sig"
)

var (
	// ErrUnresolved is returned when a reference names nothing loaded.
	ErrUnresolved = sig.ErrUnresolved
	// ErrMalformed marks a description that decodes but does not make sense.
	ErrMalformed = errors.New("loader: malformed assembly description")
)

// AssemblyDecl is the decoded form of an assembly description file.
type AssemblyDecl struct {
	Name       string          `toml:"name" msgpack:"name" cbor:"1,keyasint"`
	Version    string          `toml:"version,omitempty" msgpack:"version,omitempty" cbor:"2,keyasint,omitempty"`
	Kind       string          `toml:"kind,omitempty" msgpack:"kind,omitempty" cbor:"3,keyasint,omitempty"`
	References []ReferenceDecl `toml:"references,omitempty" msgpack:"references,omitempty" cbor:"4,keyasint,omitempty"`
	Types      []TypeDecl      `toml:"types,omitempty" msgpack:"types,omitempty" cbor:"5,keyasint,omitempty"`
}

// ReferenceDecl names a dependency. Version is a semver constraint such as
// "^4.0" and may be empty.
type ReferenceDecl struct {
	Name    string `toml:"name" msgpack:"name" cbor:"1,keyasint"`
	Version string `toml:"version,omitempty" msgpack:"version,omitempty" cbor:"2,keyasint,omitempty"`
}

// TypeHeader is the part of a definition needed to create its shell.
type TypeHeader struct {
	Namespace  string   `toml:"namespace,omitempty" msgpack:"namespace,omitempty" cbor:"1,keyasint,omitempty"`
	Name       string   `toml:"name" msgpack:"name" cbor:"2,keyasint"`
	Kind       string   `toml:"kind,omitempty" msgpack:"kind,omitempty" cbor:"3,keyasint,omitempty"`
	Visibility string   `toml:"visibility,omitempty" msgpack:"visibility,omitempty" cbor:"4,keyasint,omitempty"`
	Flags      []string `toml:"flags,omitempty" msgpack:"flags,omitempty" cbor:"5,keyasint,omitempty"`
}

// SignatureDecl holds the base type, interfaces and own template parameters.
type SignatureDecl struct {
	Base       string      `toml:"base,omitempty" msgpack:"base,omitempty" cbor:"10,keyasint,omitempty"`
	Interfaces []string    `toml:"interfaces,omitempty" msgpack:"interfaces,omitempty" cbor:"11,keyasint,omitempty"`
	Params     []ParamDecl `toml:"params,omitempty" msgpack:"params,omitempty" cbor:"12,keyasint,omitempty"`
}

// ParamDecl is a template parameter. Variance is "in", "out" or empty.
// Special lists "class", "struct" and "new".
type ParamDecl struct {
	Name        string   `toml:"name" msgpack:"name" cbor:"1,keyasint"`
	Variance    string   `toml:"variance,omitempty" msgpack:"variance,omitempty" cbor:"2,keyasint,omitempty"`
	Special     []string `toml:"special,omitempty" msgpack:"special,omitempty" cbor:"3,keyasint,omitempty"`
	Constraints []string `toml:"constraints,omitempty" msgpack:"constraints,omitempty" cbor:"4,keyasint,omitempty"`
}

// MembersDecl holds every member of one definition.
type MembersDecl struct {
	Fields     []FieldDecl    `toml:"fields,omitempty" msgpack:"fields,omitempty" cbor:"20,keyasint,omitempty"`
	Methods    []MethodDecl   `toml:"methods,omitempty" msgpack:"methods,omitempty" cbor:"21,keyasint,omitempty"`
	Properties []PropertyDecl `toml:"properties,omitempty" msgpack:"properties,omitempty" cbor:"22,keyasint,omitempty"`
	Events     []EventDecl    `toml:"events,omitempty" msgpack:"events,omitempty" cbor:"23,keyasint,omitempty"`
}

// TypeDecl is a complete definition.
type TypeDecl struct {
	TypeHeader
	SignatureDecl
	MembersDecl
	Attributes []AttributeDecl `toml:"attributes,omitempty" msgpack:"attributes,omitempty" cbor:"30,keyasint,omitempty"`
	Nested     []TypeDecl      `toml:"nested,omitempty" msgpack:"nested,omitempty" cbor:"31,keyasint,omitempty"`
}

type FieldDecl struct {
	Name       string          `toml:"name" msgpack:"name" cbor:"1,keyasint"`
	Type       string          `toml:"type" msgpack:"type" cbor:"2,keyasint"`
	Access     string          `toml:"access,omitempty" msgpack:"access,omitempty" cbor:"3,keyasint,omitempty"`
	Flags      []string        `toml:"flags,omitempty" msgpack:"flags,omitempty" cbor:"4,keyasint,omitempty"`
	Attributes []AttributeDecl `toml:"attributes,omitempty" msgpack:"attributes,omitempty" cbor:"5,keyasint,omitempty"`
}

// MethodDecl is a method. Returns is a type reference, "void" or empty.
// Overrides entries have the form "TypeRef::Name".
type MethodDecl struct {
	Name       string          `toml:"name" msgpack:"name" cbor:"1,keyasint"`
	Access     string          `toml:"access,omitempty" msgpack:"access,omitempty" cbor:"2,keyasint,omitempty"`
	Flags      []string        `toml:"flags,omitempty" msgpack:"flags,omitempty" cbor:"3,keyasint,omitempty"`
	Returns    string          `toml:"returns,omitempty" msgpack:"returns,omitempty" cbor:"4,keyasint,omitempty"`
	Params     []ParameterDecl `toml:"params,omitempty" msgpack:"params,omitempty" cbor:"5,keyasint,omitempty"`
	Generic    []ParamDecl     `toml:"generic,omitempty" msgpack:"generic,omitempty" cbor:"6,keyasint,omitempty"`
	Overrides  []string        `toml:"overrides,omitempty" msgpack:"overrides,omitempty" cbor:"7,keyasint,omitempty"`
	Attributes []AttributeDecl `toml:"attributes,omitempty" msgpack:"attributes,omitempty" cbor:"8,keyasint,omitempty"`
}

type ParameterDecl struct {
	Name  string   `toml:"name,omitempty" msgpack:"name,omitempty" cbor:"1,keyasint,omitempty"`
	Type  string   `toml:"type" msgpack:"type" cbor:"2,keyasint"`
	Flags []string `toml:"flags,omitempty" msgpack:"flags,omitempty" cbor:"3,keyasint,omitempty"`
}

// PropertyDecl names its accessors by method name.
type PropertyDecl struct {
	Name       string          `toml:"name" msgpack:"name" cbor:"1,keyasint"`
	Type       string          `toml:"type" msgpack:"type" cbor:"2,keyasint"`
	Getter     string          `toml:"getter,omitempty" msgpack:"getter,omitempty" cbor:"3,keyasint,omitempty"`
	Setter     string          `toml:"setter,omitempty" msgpack:"setter,omitempty" cbor:"4,keyasint,omitempty"`
	Attributes []AttributeDecl `toml:"attributes,omitempty" msgpack:"attributes,omitempty" cbor:"5,keyasint,omitempty"`
}

type EventDecl struct {
	Name       string          `toml:"name" msgpack:"name" cbor:"1,keyasint"`
	Type       string          `toml:"type" msgpack:"type" cbor:"2,keyasint"`
	Add        string          `toml:"add,omitempty" msgpack:"add,omitempty" cbor:"3,keyasint,omitempty"`
	Remove     string          `toml:"remove,omitempty" msgpack:"remove,omitempty" cbor:"4,keyasint,omitempty"`
	Raise      string          `toml:"raise,omitempty" msgpack:"raise,omitempty" cbor:"5,keyasint,omitempty"`
	Attributes []AttributeDecl `toml:"attributes,omitempty" msgpack:"attributes,omitempty" cbor:"6,keyasint,omitempty"`
}

// AttributeDecl applies a custom attribute. The constructor is the overload
// of the attribute type whose parameter types are those of Args.
type AttributeDecl struct {
	Type  string         `toml:"type" msgpack:"type" cbor:"1,keyasint"`
	Args  []ArgumentDecl `toml:"args,omitempty" msgpack:"args,omitempty" cbor:"2,keyasint,omitempty"`
	Named []NamedDecl    `toml:"named,omitempty" msgpack:"named,omitempty" cbor:"3,keyasint,omitempty"`
}

// ArgumentDecl is a typed attribute argument written as text. Values of
// primitive types are parsed; a System.Type value is a type reference.
type ArgumentDecl struct {
	Type  string `toml:"type" msgpack:"type" cbor:"1,keyasint"`
	Value string `toml:"value" msgpack:"value" cbor:"2,keyasint"`
}

type NamedDecl struct {
	Name  string `toml:"name" msgpack:"name" cbor:"1,keyasint"`
	Field bool   `toml:"field,omitempty" msgpack:"field,omitempty" cbor:"2,keyasint,omitempty"`
	Type  string `toml:"type" msgpack:"type" cbor:"3,keyasint"`
	Value string `toml:"value" msgpack:"value" cbor:"4,keyasint"`
}

// Decode reads an assembly description. Keys the description does not define
// are returned as undecoded so callers can warn about them.
func Decode(r io.Reader) (*AssemblyDecl, []string, error) {
	var d AssemblyDecl
	md, err := toml.NewDecoder(r).Decode(&d)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if !md.IsDefined("name") || strings.TrimSpace(d.Name) == "" {
		return nil, nil, fmt.Errorf("%w: missing name", ErrMalformed)
	}
	return &d, UnknownKeys(md), nil
}

// UnknownKeys lists the keys of md that nothing decoded. Keys inside an
// unknown table are covered by the table and left out.
func UnknownKeys(md toml.MetaData) []string {
	var tables []toml.Key
	var out []string
	for _, k := range md.Undecoded() {
		if slices.ContainsFunc(tables, func(t toml.Key) bool {
			return len(t) < len(k) && slices.Equal(t, k[:len(t)])
		}) {
			continue
		}
		tables = append(tables, k)
		out = append(out, k.String())
	}
	return out
}

// DecodeFile is Decode on the file at path.
func DecodeFile(path string) (*AssemblyDecl, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	d, undecoded, err := Decode(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, undecoded, nil
}

// Encode writes d as TOML.
func Encode(w io.Writer, d *AssemblyDecl) error {
	return toml.NewEncoder(w).Encode(d)
}
