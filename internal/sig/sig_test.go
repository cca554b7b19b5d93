package sig

import (
	"context"
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"

	"cilgraph/internal/meta"
	"cilgraph/internal/names"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"System.Int32",
		"Int32",
		"[corlib]System.Collections.Generic.List`1<System.Int32>",
		"Demo.Outer`1/Inner`1<!0,!!1>",
		"!0[]",
		"!!2&",
		"System.Int32[,]",
		"System.Int32[*]",
		"System.Int32[0...3]",
		"System.Int32[4,5]",
		"System.Int32[1...]",
		"System.Byte*&",
		"System.Int32 modopt([corlib]System.Runtime.CompilerServices.IsLong)",
		"System.Int32 modreq(IsVolatile) modopt(IsConst)",
		"method System.Int32 *(System.String,!0)",
		"method unmanaged cdecl void *(System.Int32,...)",
		"method void *(...,System.Int32)",
		"method instance default void *()",
		"Pair`2<System.Int32[],List`1<!0>>[]",
	}
	for _, in := range cases {
		r, err := Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): %v", in, err)
			continue
		}
		if got := r.String(); got != in {
			t.Errorf("Parse(%q).String() = %q", in, got)
		}
	}
}

func TestParseShape(t *testing.T) {
	r := MustParse(" [corlib] System.Collections.Generic.Dictionary`2< !0 , System.String >[0...3,5] ")
	if r.Kind != RefArray || r.Rank != 2 {
		t.Fatalf("outer = %+v", r)
	}
	if len(r.LowerBounds) != 1 || r.LowerBounds[0] != 0 || len(r.Sizes) != 2 || r.Sizes[0] != 4 || r.Sizes[1] != 5 {
		t.Fatalf("bounds = %v sizes = %v", r.LowerBounds, r.Sizes)
	}
	d := r.Elem
	if d.Assembly != "corlib" || d.Namespace != "System.Collections.Generic" || d.Names[0] != "Dictionary`2" {
		t.Fatalf("named = %+v", d)
	}
	if len(d.Args) != 2 || d.Args[0].Kind != RefTypeParam || d.Args[0].Index != 0 {
		t.Fatalf("args = %+v", d.Args)
	}

	fp := MustParse("method vararg void *(System.Int32,...)")
	if fp.CallConv != meta.CallVarArg || fp.VarArgStart != 1 || len(fp.Params) != 1 || fp.Return.Kind != RefVoid {
		t.Fatalf("function pointer = %+v", fp)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"",
		"List`1<",
		"List`1<Int32",
		"!x",
		"!-1",
		"[]Foo",
		"Foo[1...0]",
		"Foo[,3]",
		"Foo bar",
		"method Int32 (X)",
		"method void *(...,...)",
		"Foo modopt(Bar",
	}
	for _, in := range cases {
		if _, err := Parse(in); !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q) error = %v, want ErrSyntax", in, err)
		}
	}
}

type world struct {
	corlib, app  *meta.Module
	int32, str   *meta.Type
	box          *meta.Type
	outer, inner *meta.Type
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		corlib: meta.NewModule("corlib", meta.ModuleAssembly, semver.MustParse("4.0.0")),
		app:    meta.NewModule("app", meta.ModuleAssembly, semver.MustParse("1.0.0")),
	}
	object := meta.NewType(meta.KindClass, w.corlib, "System", "Object", meta.TypePublic)
	w.int32 = meta.NewType(meta.KindStruct, w.corlib, "System", "Int32", meta.TypePublic|meta.TypeSealed)
	w.str = meta.NewType(meta.KindClass, w.corlib, "System", "String", meta.TypePublic|meta.TypeSealed)
	void := meta.NewType(meta.KindStruct, w.corlib, "System", "Void", meta.TypePublic)
	for _, typ := range []*meta.Type{object, w.int32, w.str, void} {
		w.corlib.AddType(typ)
	}
	w.app.AddReference(&meta.AssemblyReference{Name: names.Intern("corlib"), Raw: "corlib", Resolved: w.corlib})

	w.box = meta.NewType(meta.KindClass, w.app, "Demo", "Box`1", meta.TypePublic)
	w.box.SetSignature(meta.Signature{BaseType: object, TemplateParameters: []*meta.Type{
		meta.NewTypeParameter(w.box, "T", 0, meta.Invariant, 0),
	}})
	w.app.AddType(w.box)

	w.outer = meta.NewType(meta.KindClass, w.app, "Demo", "Outer`1", meta.TypePublic)
	w.outer.SetSignature(meta.Signature{BaseType: object, TemplateParameters: []*meta.Type{
		meta.NewTypeParameter(w.outer, "T", 0, meta.Invariant, 0),
	}})
	w.inner = meta.NewNestedType(meta.KindClass, w.outer, "Inner`1", meta.TypeNestedPublic)
	w.inner.SetSignature(meta.Signature{BaseType: object, TemplateParameters: []*meta.Type{
		meta.NewTypeParameter(w.inner, "U", 0, meta.Invariant, 0),
	}})
	w.outer.AddNestedType(w.inner)
	w.app.AddType(w.outer)
	return w
}

func TestResolveNamed(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	r := &Resolver{Module: w.app}

	for _, in := range []string{"[corlib]System.Int32", "System.Int32"} {
		got, err := r.ResolveString(ctx, in)
		if err != nil || got != w.int32 {
			t.Fatalf("%q = %v, %v", in, got, err)
		}
	}
	if got, err := r.ResolveString(ctx, "Demo.Outer`1/Inner`1"); err != nil || got != w.inner {
		t.Fatalf("nested path = %v, %v", got, err)
	}
	if got, err := r.ResolveString(ctx, "void"); err != nil || got != nil {
		t.Fatalf("void = %v, %v", got, err)
	}
	for _, in := range []string{"Demo.Missing", "[nowhere]System.Int32", "Demo.Outer`1/Nope", "void[]"} {
		if _, err := r.ResolveString(ctx, in); !errors.Is(err, ErrUnresolved) {
			t.Errorf("%q error = %v, want ErrUnresolved", in, err)
		}
	}
}

func TestResolveGenericRoundTrip(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	r := &Resolver{Module: w.app}

	a, err := r.ResolveString(ctx, "Demo.Box`1<System.Int32>")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.ResolveString(ctx, "Demo.Box`1<[corlib]System.Int32>")
	if err != nil {
		t.Fatal(err)
	}
	if a != b || !a.IsInstance() || a.Template() != w.box {
		t.Fatalf("Box<Int32> resolved to %v and %v", a, b)
	}
	if got := Format(a, w.app); got != "Demo.Box`1<[corlib]System.Int32>" {
		t.Fatalf("Format = %q", got)
	}

	const nested = "Demo.Outer`1/Inner`1<[corlib]System.Int32,[corlib]System.String>"
	leaf, err := r.ResolveString(ctx, nested)
	if err != nil {
		t.Fatal(err)
	}
	if leaf.Template().Origin() != w.inner || leaf.DeclaringType().Template() != w.outer {
		t.Fatalf("nested instance = %s", leaf)
	}
	if got := Format(leaf, w.app); got != nested {
		t.Fatalf("Format(nested) = %q", got)
	}
	again, err := r.ResolveString(ctx, Format(leaf, w.app))
	if err != nil || again != leaf {
		t.Fatalf("formatted reference resolved to %v, %v", again, err)
	}
}

func TestResolveStructural(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	r := (&Resolver{Module: w.app}).WithTypeContext(w.box)

	arr, err := r.ResolveString(ctx, "System.Int32[]")
	if err != nil || arr != meta.SZArrayOf(w.int32) {
		t.Fatalf("Int32[] = %v, %v", arr, err)
	}
	tp, err := r.ResolveString(ctx, "!0")
	if err != nil || tp != w.box.TemplateParameters()[0] {
		t.Fatalf("!0 = %v, %v", tp, err)
	}
	if _, err := r.ResolveString(ctx, "!1"); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("!1 error = %v", err)
	}
	if _, err := r.ResolveString(ctx, "!!0"); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("!!0 outside a method error = %v", err)
	}

	fp, err := r.ResolveString(ctx, "method System.Int32 *(System.String,!0&)")
	if err != nil {
		t.Fatal(err)
	}
	if fp.Kind() != meta.KindFunctionPointer || fp.ReturnType() != w.int32 || fp.ParameterTypes()[1] != meta.ReferenceTo(tp) {
		t.Fatalf("function pointer = %s", fp)
	}
	if got := Format(fp, w.app); got != "method [corlib]System.Int32 *([corlib]System.String,!0&)" {
		t.Fatalf("Format(fnptr) = %q", got)
	}
	voidFn, err := r.ResolveString(ctx, "method void *()")
	if err != nil || voidFn.ReturnType().FullName() != "System.Void" {
		t.Fatalf("void function pointer = %v, %v", voidFn, err)
	}

	mod, err := r.ResolveString(ctx, "System.Int32 modreq(System.String)")
	if err != nil || mod.Kind() != meta.KindRequiredModifier || mod.Modifier() != w.str {
		t.Fatalf("modreq = %v, %v", mod, err)
	}

	innerCtx := r.WithTypeContext(w.inner)
	u, err := innerCtx.ResolveString(ctx, "!1")
	if err != nil || u != w.inner.TemplateParameters()[0] {
		t.Fatalf("!1 in Inner`1 = %v, %v", u, err)
	}
	if got := Format(u, w.app); got != "!1" {
		t.Fatalf("Format(U) = %q", got)
	}
}

func TestResolveMethodParameters(t *testing.T) {
	w := newWorld(t)
	m := meta.NewMethod(w.box, "Map", meta.MethodFlags(meta.AccessPublic), nil)
	m.TemplateParameters = []*meta.Type{meta.NewTypeParameter(m, "U", 0, meta.Invariant, 0)}
	r := (&Resolver{Module: w.app}).WithTypeContext(w.box).WithMethodContext(m)

	got, err := r.ResolveString(context.Background(), "!!0[]")
	if err != nil || got != meta.SZArrayOf(m.TemplateParameters[0]) {
		t.Fatalf("!!0[] = %v, %v", got, err)
	}
	if s := Format(got, w.app); s != "!!0[]" {
		t.Fatalf("Format = %q", s)
	}
}
