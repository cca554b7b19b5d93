package loader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"cilgraph/internal/diag"
	"cilgraph/internal/generic"
	"cilgraph/internal/meta"
)

const corlib4 = `
name = "corlib"
version = "4.1.0"

[[types]]
namespace = "System"
name = "Object"

[[types]]
namespace = "System"
name = "ValueType"
base = "System.Object"

[[types]]
namespace = "System"
name = "Int32"
kind = "struct"
flags = ["sealed"]
base = "System.ValueType"

[[types]]
namespace = "System"
name = "String"
flags = ["sealed"]
base = "System.Object"

[[types]]
namespace = "System"
name = "IComparable` + "`" + `1"
kind = "interface"

  [[types.params]]
  name = "T"
  variance = "in"

  [[types.methods]]
  name = "CompareTo"
  returns = "System.Int32"
  flags = ["virtual", "abstract"]

    [[types.methods.params]]
    name = "other"
    type = "!0"
`

const corlib3 = `
name = "corlib"
version = "3.0.0"

[[types]]
namespace = "System"
name = "Object"
`

const app = `
name = "app"
version = "1.0.0"

[[references]]
name = "corlib"
version = "^4.0"

[[types]]
namespace = "Demo"
name = "Box` + "`" + `1"
base = "[corlib]System.Object"
interfaces = ["[corlib]System.IComparable` + "`" + `1<Demo.Box` + "`" + `1<!0>>"]

  [[types.params]]
  name = "T"
  special = ["class"]
  constraints = ["[corlib]System.IComparable` + "`" + `1<!0>"]

  [[types.fields]]
  name = "value"
  type = "!0"
  access = "private"

  [[types.methods]]
  name = "get_Value"
  returns = "!0"
  flags = ["specialname"]

  [[types.methods]]
  name = "Map"
  returns = "!!0"

    [[types.methods.generic]]
    name = "U"

    [[types.methods.params]]
    name = "item"
    type = "!0"

  [[types.methods]]
  name = "CompareTo"
  returns = "[corlib]System.Int32"
  flags = ["virtual"]
  overrides = ["[corlib]System.IComparable` + "`" + `1<Demo.Box` + "`" + `1<!0>>::CompareTo"]

    [[types.methods.params]]
    name = "other"
    type = "Demo.Box` + "`" + `1<!0>"

  [[types.properties]]
  name = "Value"
  type = "!0"
  getter = "get_Value"

  [[types.nested]]
  name = "Node"
  visibility = "public"

    [[types.nested.fields]]
    name = "item"
    type = "!0"

[[types]]
namespace = "Demo"
name = "TagAttribute"
base = "[corlib]System.Object"

  [[types.methods]]
  name = ".ctor"
  flags = ["specialname", "rtspecialname"]

    [[types.methods.params]]
    name = "label"
    type = "[corlib]System.String"

[[types]]
namespace = "Demo"
name = "Program"
visibility = "assembly"
flags = ["abstract", "sealed"]

  [[types.attributes]]
  type = "Demo.TagAttribute"

    [[types.attributes.args]]
    type = "[corlib]System.String"
    value = "entry"

  [[types.methods]]
  name = "Main"
  flags = ["static"]
`

type fixture struct {
	dir      string
	bag      *diag.Bag
	universe *Universe
}

// newFixture lays out corlib 3.0.0 and 4.1.0 in separate search paths and
// app.toml in the root.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("old/corlib.toml", corlib3)
	write("new/corlib.toml", corlib4)
	write("app.toml", app)
	bag := diag.NewBag(100)
	u := NewUniverse(UniverseOptions{
		Options:     Options{Reporter: diag.BagReporter{Bag: bag}},
		SearchPaths: []string{filepath.Join(dir, "old"), filepath.Join(dir, "new")},
	})
	return &fixture{dir: dir, bag: bag, universe: u}
}

func (f *fixture) load(t *testing.T) *meta.Module {
	t.Helper()
	mod, err := f.universe.LoadFile(context.Background(), filepath.Join(f.dir, "app.toml"))
	if err != nil {
		t.Fatal(err)
	}
	return mod
}

func TestUniverseBindsReferenceByConstraint(t *testing.T) {
	f := newFixture(t)
	mod := f.load(t)

	refs := mod.References()
	if len(refs) != 1 || refs[0].Resolved == nil {
		t.Fatalf("references = %+v", refs)
	}
	if got := refs[0].Resolved.Version().String(); got != "4.1.0" {
		t.Fatalf("corlib resolved to %s", got)
	}
	if n := len(f.universe.Modules()); n != 3 {
		t.Fatalf("loaded %d modules, want app and both corlibs", n)
	}
	if f.bag.HasErrors() {
		t.Fatalf("diagnostics: %s", diag.FormatShort(f.bag.Items(), true))
	}

	again, err := f.universe.LoadFile(context.Background(), filepath.Join(f.dir, "app.toml"))
	if err != nil || again != mod {
		t.Fatalf("second load = %v, %v", again, err)
	}
}

func TestUniverseReportsVersionMismatch(t *testing.T) {
	f := newFixture(t)
	d := &AssemblyDecl{Name: "strict", References: []ReferenceDecl{{Name: "corlib", Version: ">=5.0"}}}
	mod, err := Load(context.Background(), d, f.universe.Options())
	if err != nil {
		t.Fatal(err)
	}
	if err := f.universe.Add(context.Background(), mod); err != nil {
		t.Fatal(err)
	}
	if mod.References()[0].Resolved != nil {
		t.Fatal("reference resolved despite the constraint")
	}
	var found bool
	for _, item := range f.bag.Items() {
		found = found || item.Code == diag.LoadVersionMismatch
	}
	if !found {
		t.Fatalf("no version mismatch in %s", diag.FormatShort(f.bag.Items(), false))
	}
}

func TestGenericDefinition(t *testing.T) {
	f := newFixture(t)
	mod := f.load(t)
	corlib := mod.References()[0].Resolved
	str := corlib.Type("System", "String")
	comparable := corlib.Type("System", "IComparable`1")

	box := mod.Type("Demo", "Box`1")
	if box == nil {
		t.Fatal("Box`1 not loaded")
	}
	params := box.TemplateParameters()
	if len(params) != 1 || params[0].Constraints() != meta.ConstraintReferenceType {
		t.Fatalf("params = %v", params)
	}
	constraint := params[0].Interfaces()
	if len(constraint) != 1 || constraint[0].Template() != comparable || constraint[0].TemplateArguments()[0] != params[0] {
		t.Fatalf("constraint = %v", constraint)
	}
	ifaces := box.Interfaces()
	if len(ifaces) != 1 || ifaces[0].Template() != comparable || ifaces[0].TemplateArguments()[0].Template() != box {
		t.Fatalf("interfaces = %v", ifaces)
	}
	if box.BaseType() != corlib.Type("System", "Object") {
		t.Fatalf("base = %v", box.BaseType())
	}

	if f := box.Field("value"); f == nil || f.Type != params[0] || f.MemberVisibility() != meta.VisPrivate {
		t.Fatalf("field value = %+v", f)
	}
	mapper := box.MethodsNamed("Map")[0]
	if mapper.ReturnType != mapper.TemplateParameters[0] || mapper.Parameters[0].Type != params[0] {
		t.Fatalf("Map = %s", mapper)
	}
	cmp := box.MethodsNamed("CompareTo")[0]
	if len(cmp.Overrides) != 1 || cmp.Overrides[0].Declaring != ifaces[0] {
		t.Fatalf("CompareTo overrides %v", cmp.Overrides)
	}
	if p := box.Property("Value"); p == nil || p.Getter != box.MethodsNamed("get_Value")[0] {
		t.Fatalf("property Value = %+v", p)
	}

	inst, err := generic.Instantiate(context.Background(), box, []*meta.Type{str}, mod)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Field("value").Type != str || inst.Property("Value").Getter.ReturnType != str {
		t.Fatalf("instance members not specialized: %s", inst)
	}
	node := inst.NestedType("Node")
	if node == nil || node.Field("item").Type != str {
		t.Fatalf("nested copy = %v", node)
	}
}

func TestAttributesAndFlags(t *testing.T) {
	f := newFixture(t)
	mod := f.load(t)
	prog := mod.Type("Demo", "Program")
	if prog.Visibility() != meta.VisAssembly || !prog.IsAbstract() || !prog.IsSealed() {
		t.Fatalf("Program flags = %#x", prog.Flags())
	}
	if m := prog.MethodsNamed("Main")[0]; !m.IsStatic() || m.ReturnType != nil || m.CallingConvention != meta.CallDefault {
		t.Fatalf("Main = %s", m)
	}
	attrs := prog.Attributes()
	if len(attrs) != 1 {
		t.Fatalf("attributes = %v", attrs)
	}
	a := attrs[0]
	tag := mod.Type("Demo", "TagAttribute")
	if a.Type != tag || a.Constructor != tag.MethodsNamed(".ctor")[0] {
		t.Fatalf("attribute = %+v", a)
	}
	if len(a.Positional) != 1 || a.Positional[0].Value != "entry" {
		t.Fatalf("arguments = %+v", a.Positional)
	}
	if meta.FindAttribute(attrs, "Demo.TagAttribute") != a {
		t.Fatal("FindAttribute missed the tag")
	}
}

type countingSource struct {
	DeclSource
	members *atomic.Int32
}

func (s countingSource) Members() (MembersDecl, error) {
	s.members.Add(1)
	return s.DeclSource.Members()
}

func TestMembersResolveOnFirstRequest(t *testing.T) {
	mod, err := NewModule(&AssemblyDecl{Name: "lazy"})
	if err != nil {
		t.Fatal(err)
	}
	b := NewBinder(mod, Options{})
	var calls atomic.Int32
	decl := &TypeDecl{
		TypeHeader:  TypeHeader{Namespace: "Demo", Name: "Broken"},
		MembersDecl: MembersDecl{Fields: []FieldDecl{{Name: "x", Type: "Demo.Missing"}}},
		Nested:      []TypeDecl{{TypeHeader: TypeHeader{Name: "Inner", Visibility: "public"}}},
	}
	typ, err := b.AddType(countingSource{DeclSource: DeclSource{Decl: decl}, members: &calls})
	if err != nil {
		t.Fatal(err)
	}
	if mod.Type("Demo", "Broken") != typ {
		t.Fatal("shell not registered")
	}
	if _, err := typ.LoadSignature(); err != nil {
		t.Fatal(err)
	}
	if inner := typ.NestedType("Inner"); inner == nil || inner.FullName() != "Demo.Broken+Inner" {
		t.Fatalf("nested = %v", inner)
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("members provider ran %d times before any member was requested", n)
	}

	if _, err := typ.LoadMembers(); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("LoadMembers error = %v, want ErrUnresolved", err)
	}
	var perr *meta.PopulationError
	if _, err := typ.LoadMembers(); !errors.As(err, &perr) || perr.Property != meta.PropMembers {
		t.Fatalf("retry error = %v", err)
	}
	if calls.Load() != 2 || typ.PopulationState(meta.PropMembers) != meta.Unpopulated {
		t.Fatalf("calls = %d, state = %s", calls.Load(), typ.PopulationState(meta.PropMembers))
	}
}

func TestSignatureRetryKeepsParameters(t *testing.T) {
	mod, err := NewModule(&AssemblyDecl{Name: "retry"})
	if err != nil {
		t.Fatal(err)
	}
	b := NewBinder(mod, Options{})
	sink, err := b.AddType(DeclSource{Decl: &TypeDecl{
		TypeHeader:    TypeHeader{Namespace: "Demo", Name: "Sink`1", Kind: "interface"},
		SignatureDecl: SignatureDecl{Params: []ParamDecl{{Name: "T"}}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	holder, err := b.AddType(DeclSource{Decl: &TypeDecl{
		TypeHeader: TypeHeader{Namespace: "Demo", Name: "Holder`1"},
		SignatureDecl: SignatureDecl{
			Interfaces: []string{"Demo.Sink`1<!0>", "Demo.Later"},
			Params:     []ParamDecl{{Name: "U"}},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := holder.LoadSignature(); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("first load error = %v, want ErrUnresolved", err)
	}
	stale := sink.Instances()
	if len(stale) != 1 {
		t.Fatalf("failed attempt left %d Sink instances, want 1", len(stale))
	}
	if _, err := b.AddType(DeclSource{Decl: &TypeDecl{
		TypeHeader: TypeHeader{Namespace: "Demo", Name: "Later", Kind: "interface"},
	}}); err != nil {
		t.Fatal(err)
	}

	if _, err := holder.LoadSignature(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	params := holder.TemplateParameters()
	ifaces := holder.Interfaces()
	if len(params) != 1 || len(ifaces) != 2 {
		t.Fatalf("params = %v, interfaces = %v", params, ifaces)
	}
	if ifaces[0] != stale[0] || ifaces[0].TemplateArguments()[0] != params[0] {
		t.Fatalf("Sink instance %v is not built over the published parameter %v", ifaces[0], params[0])
	}
	if n := len(sink.Instances()); n != 1 {
		t.Fatalf("retry built %d Sink instances, want 1", n)
	}
}

func TestWarm(t *testing.T) {
	f := newFixture(t)
	mod := f.load(t)
	n, err := Warm(context.Background(), mod, 4)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("warmed %d definitions, want 4", n)
	}
	for _, typ := range mod.Types() {
		for _, p := range []meta.LazyProperty{meta.PropSignature, meta.PropNestedTypes, meta.PropMembers, meta.PropAttributes} {
			if s := typ.PopulationState(p); s != meta.Populated {
				t.Errorf("%s %s is %s", typ, p, s)
			}
		}
	}
}

func TestDescribeRoundTrip(t *testing.T) {
	f := newFixture(t)
	first, err := Describe(f.load(t))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, first); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `overrides = ["[corlib]System.IComparable`) {
		t.Fatalf("encoded description:\n%s", buf.String())
	}
	copyDir := filepath.Join(f.dir, "copy")
	if err := os.MkdirAll(copyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(copyDir, "app.toml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	u := NewUniverse(UniverseOptions{SearchPaths: []string{filepath.Join(f.dir, "new")}})
	mod, err := u.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Describe(mod)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("round trip changed the description\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestDecodeRejectsMissingName(t *testing.T) {
	if _, _, err := Decode(strings.NewReader(`version = "1.0.0"`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("error = %v", err)
	}
	_, undecoded, err := Decode(strings.NewReader("name = \"x\"\ncolour = \"red\"\n"))
	if err != nil || len(undecoded) != 1 || undecoded[0] != "colour" {
		t.Fatalf("undecoded = %v, %v", undecoded, err)
	}
	_, undecoded, err = Decode(strings.NewReader("name = \"x\"\n[build]\nflags = 1\nmode = \"fast\"\n"))
	if err != nil || len(undecoded) != 1 || undecoded[0] != "build" {
		t.Fatalf("keys of an unknown table must not be listed again: %v, %v", undecoded, err)
	}
	for _, bad := range []*AssemblyDecl{
		{Name: "x", Kind: "library"},
		{Name: "x", Version: "one"},
		{Name: "x", References: []ReferenceDecl{{Name: "y", Version: ">= banana"}}},
		{Name: "x", Types: []TypeDecl{{TypeHeader: TypeHeader{Name: "T", Kind: "record"}}}},
		{Name: "x", Types: []TypeDecl{{TypeHeader: TypeHeader{Name: "T", Flags: []string{"shiny"}}}}},
	} {
		if _, err := Load(context.Background(), bad, Options{}); !errors.Is(err, ErrMalformed) {
			t.Errorf("Load(%+v) error = %v, want ErrMalformed", bad, err)
		}
	}
}
