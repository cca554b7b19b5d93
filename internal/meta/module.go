package meta

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/Masterminds/semver/v3"

	"cilgraph/internal/names"
	"cilgraph/internal/probe"
)

// ModuleKind separates assemblies, which carry a manifest, from bare modules.
type ModuleKind uint8

const (
	ModuleAssembly ModuleKind = iota
	ModuleNetModule
)

// AssemblyReference names another assembly and the versions it accepts.
type AssemblyReference struct {
	Name       *names.Identifier
	Constraint *semver.Constraints // nil accepts any version
	Raw        string
	Resolved   *Module
}

// Accepts reports whether v satisfies the reference's constraint.
func (r *AssemblyReference) Accepts(v *semver.Version) bool {
	if r.Constraint == nil {
		return true
	}
	return v != nil && r.Constraint.Check(v)
}

// Module is a unit of loaded metadata. It owns its top-level type list, a
// name index over it, and caches of structural types and generic instances
// that live as long as something else references them.
type Module struct {
	name    *names.Identifier
	kind    ModuleKind
	version *semver.Version

	mu            sync.Mutex
	references    []*AssemblyReference
	types         []*Type
	index         probe.Map[*Type]
	constructed   *probe.WeakMap[Type]
	instanceNames *probe.WeakMap[Type]
}

// NewModule creates an empty module.
func NewModule(name string, kind ModuleKind, version *semver.Version) *Module {
	return &Module{
		name:          names.Intern(name),
		kind:          kind,
		version:       version,
		constructed:   probe.NewWeakMap[Type](0),
		instanceNames: probe.NewWeakMap[Type](0),
	}
}

// ParseVersion accepts semantic versions and four-part assembly versions.
// A revision maps to build metadata, which version comparison ignores.
func ParseVersion(s string) (*semver.Version, error) {
	parts := splitDots(s)
	if len(parts) == 4 {
		for _, p := range parts {
			if _, err := strconv.ParseUint(p, 10, 32); err != nil {
				return nil, fmt.Errorf("invalid assembly version %q", s)
			}
		}
		s = parts[0] + "." + parts[1] + "." + parts[2] + "+r" + parts[3]
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.':
			out = append(out, s[start:i])
			start = i + 1
		case '-', '+':
			return nil
		}
	}
	return append(out, s[start:])
}

func (m *Module) Name() *names.Identifier  { return m.name }
func (m *Module) Kind() ModuleKind         { return m.kind }
func (m *Module) Version() *semver.Version { return m.version }
func (m *Module) ReferringModule() *Module { return m }

func (m *Module) String() string {
	if m.version == nil {
		return m.name.Text()
	}
	return m.name.Text() + " " + m.version.String()
}

// AddReference records a dependency on another assembly.
func (m *Module) AddReference(ref *AssemblyReference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.references = append(m.references, ref)
}

// References returns a snapshot of the assembly references.
func (m *Module) References() []*AssemblyReference {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.references)
}

// AddType registers a top-level definition. A later type with the same full
// name shadows the earlier one in lookups but both stay in Types.
func (m *Module) AddType(t *Type) {
	if t.declaring != nil {
		panic(fmt.Sprintf("meta: AddType with nested type %s", t.FullName()))
	}
	key := int32(names.Intern(t.FullName()).Key())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, t)
	m.index.Set(key, t)
}

// Types returns a snapshot of the top-level definitions in declaration order.
func (m *Module) Types() []*Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.types)
}

// Type finds a top-level definition by namespace and name.
func (m *Module) Type(namespace, name string) *Type {
	return m.TypeByFullName(qualify(namespace, name))
}

// TypeByFullName finds a top-level definition by full name.
func (m *Module) TypeByFullName(full string) *Type {
	id, ok := names.Find(full)
	if !ok {
		return nil
	}
	key := int32(id.Key())
	m.mu.Lock()
	defer m.mu.Unlock()
	t, _ := m.index.Get(key)
	return t
}

// NameInstance builds a new generic instance under a name unique within the
// module. prefix is what precedes the simple name in the full name; when
// prefix+simple collides with a definition or a live instance, a numeric
// suffix is appended to simple before build is called with it.
func (m *Module) NameInstance(prefix, simple string, build func(name string) *Type) *Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	candidate := simple
	for n := 1; ; n++ {
		key := int32(names.Intern(prefix + candidate).Key())
		_, declared := m.index.Get(key)
		if !declared && m.instanceNames.Get(key) == nil {
			inst := build(candidate)
			m.instanceNames.Set(key, inst)
			return inst
		}
		candidate = simple + strconv.Itoa(n)
	}
}

// constructedType returns the cached structural type with the given key, or
// stores and returns the one built by mk.
func (m *Module) constructedType(key string, mk func() *Type) *Type {
	k := int32(names.Intern(key).Key())
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.constructed.Get(k); t != nil {
		return t
	}
	t := mk()
	m.constructed.Set(k, t)
	return t
}

// Referrer is the scope a generic instance is requested from.
type Referrer interface {
	ReferringModule() *Module
}

func (t *Type) ReferringModule() *Module { return t.module }

func (m *Method) ReferringModule() *Module {
	if m.Declaring == nil {
		return nil
	}
	return m.Declaring.module
}
