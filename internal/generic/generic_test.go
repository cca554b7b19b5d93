package generic

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/Masterminds/semver/v3"

	"cilgraph/internal/diag"
	"cilgraph/internal/meta"
	"cilgraph/internal/names"
)

type fixture struct {
	mod    *meta.Module
	object *meta.Type
	int32  *meta.Type
	str    *meta.Type
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mod := meta.NewModule("demo", meta.ModuleAssembly, semver.MustParse("1.0.0"))
	f := &fixture{mod: mod}
	f.object = meta.NewType(meta.KindClass, mod, "System", "Object", meta.TypePublic)
	f.int32 = meta.NewType(meta.KindStruct, mod, "System", "Int32", meta.TypePublic|meta.TypeSealed)
	f.str = meta.NewType(meta.KindClass, mod, "System", "String", meta.TypePublic|meta.TypeSealed)
	f.int32.SetSignature(meta.Signature{BaseType: f.object})
	f.str.SetSignature(meta.Signature{BaseType: f.object})
	for _, typ := range []*meta.Type{f.object, f.int32, f.str} {
		mod.AddType(typ)
	}
	return f
}

func (f *fixture) generic(name string, params ...string) (*meta.Type, []*meta.Type) {
	t := meta.NewType(meta.KindClass, f.mod, "Demo", name, meta.TypePublic)
	ps := make([]*meta.Type, len(params))
	for i, p := range params {
		ps[i] = meta.NewTypeParameter(t, p, i, meta.Invariant, 0)
	}
	t.SetSignature(meta.Signature{BaseType: f.object, TemplateParameters: ps})
	f.mod.AddType(t)
	return t, ps
}

func field(owner *meta.Type, name string, typ *meta.Type) *meta.Field {
	return &meta.Field{Name: names.Intern(name), Declaring: owner, Type: typ, Flags: meta.FieldFlags(meta.AccessPublic)}
}

// newBox builds Box`1<T> { T Value; T Get(); T Item { get; }; U Convert<U>(T) }.
func (f *fixture) newBox() (*meta.Type, *meta.Type) {
	box, ps := f.generic("Box`1", "T")
	tp := ps[0]
	get := meta.NewMethod(box, "get_Item", meta.MethodFlags(meta.AccessPublic)|meta.MethodSpecialName, tp)
	conv := meta.NewMethod(box, "Convert", meta.MethodFlags(meta.AccessPublic), nil, tp)
	u := meta.NewTypeParameter(conv, "U", 0, meta.Invariant, 0)
	conv.TemplateParameters = []*meta.Type{u}
	conv.ReturnType = u
	box.SetMembers([]meta.Member{
		field(box, "Value", tp),
		meta.NewMethod(box, "Get", meta.MethodFlags(meta.AccessPublic), tp),
		get,
		conv,
		&meta.Property{Name: names.Intern("Item"), Declaring: box, Type: tp, Getter: get},
	})
	return box, tp
}

func TestInstantiateBox(t *testing.T) {
	f := newFixture(t)
	box, _ := f.newBox()
	ctx := context.Background()
	e := New(Options{})

	inst, err := e.Instantiate(ctx, box, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if got := inst.FullName(); got != "Demo.Box<System.Int32>" {
		t.Fatalf("FullName = %q", got)
	}
	if !inst.IsInstance() || inst.Template() != box || inst.TemplateArguments()[0] != f.int32 {
		t.Fatalf("instance shape: template=%v args=%v", inst.Template(), inst.TemplateArguments())
	}
	if inst.BaseType() != f.object {
		t.Fatalf("BaseType = %v", inst.BaseType())
	}
	if fv := inst.Field("Value"); fv == nil || fv.Type != f.int32 || fv.Declaring != inst {
		t.Fatalf("Value field = %+v", fv)
	}
	get := inst.Method("Get")
	if get == nil || get.ReturnType != f.int32 || get.Root() != box.Method("Get") {
		t.Fatalf("Get = %v", get)
	}
	prop := inst.Property("Item")
	if prop == nil || prop.Type != f.int32 || prop.Getter != inst.Method("get_Item") {
		t.Fatalf("Item property not rewired to copied getter: %+v", prop)
	}
	conv := inst.MethodsNamed("Convert")
	if len(conv) != 1 || len(conv[0].TemplateParameters) != 1 {
		t.Fatalf("Convert = %v", conv)
	}
	orig := box.MethodsNamed("Convert")[0]
	if conv[0].TemplateParameters[0] == orig.TemplateParameters[0] {
		t.Fatalf("generic method copy must own fresh template parameters")
	}
	if conv[0].ReturnType != conv[0].TemplateParameters[0] || conv[0].Parameters[0].Type != f.int32 {
		t.Fatalf("Convert signature = %s", conv[0].Signature())
	}
	for _, p := range []meta.LazyProperty{meta.PropSignature, meta.PropMembers, meta.PropNestedTypes, meta.PropAttributes} {
		if inst.PopulationState(p) != meta.Populated {
			t.Fatalf("%v not populated eagerly", p)
		}
	}
}

func TestInstantiateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	box, _ := f.newBox()
	ctx := context.Background()
	a, err := Instantiate(ctx, box, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Instantiate(ctx, box, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("equal requests must return the same node")
	}
	c, err := Instantiate(ctx, box, []*meta.Type{f.str}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	if c == a || c.Field("Value").Type != f.str {
		t.Fatalf("Box<String> must be distinct with String members")
	}
	if got := len(box.Instances()); got != 2 {
		t.Fatalf("template caches %d instances, want 2", got)
	}
}

func TestInstantiateValidation(t *testing.T) {
	f := newFixture(t)
	box, _ := f.newBox()
	ctx := context.Background()
	cases := []struct {
		name     string
		template *meta.Type
		args     []*meta.Type
		want     error
	}{
		{"not generic", f.int32, []*meta.Type{f.str}, ErrNotGeneric},
		{"too many", box, []*meta.Type{f.int32, f.str}, ErrArity},
		{"too few", box, nil, ErrArity},
		{"nil argument", box, []*meta.Type{nil}, ErrNilArgument},
		{"nil template", nil, nil, ErrNotGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Instantiate(ctx, tc.template, tc.args, f.mod); !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestEffectiveVisibilityIsMeetOfArguments(t *testing.T) {
	f := newFixture(t)
	box, _ := f.newBox()
	secret := meta.NewType(meta.KindClass, f.mod, "Demo", "Secret", meta.TypeNotPublic)
	f.mod.AddType(secret)
	ctx := context.Background()

	pub, err := Instantiate(ctx, box, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	if pub.EffectiveVisibility() != meta.VisPublic {
		t.Fatalf("Box<Int32> visibility = %v", pub.EffectiveVisibility())
	}
	hidden, err := Instantiate(ctx, box, []*meta.Type{secret}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	if hidden.EffectiveVisibility() != meta.VisAssembly {
		t.Fatalf("Box<Secret> visibility = %v", hidden.EffectiveVisibility())
	}
	if !box.EffectiveVisibility().Covers(hidden.EffectiveVisibility()) {
		t.Fatalf("instance must not be more visible than its template")
	}
}

func TestConcurrentInstantiate(t *testing.T) {
	f := newFixture(t)
	box, _ := f.newBox()
	ctx := context.Background()
	e := New(Options{})

	const workers = 16
	got := make([]*meta.Type, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Go(func() {
			inst, err := e.Instantiate(ctx, box, []*meta.Type{f.int32}, f.mod)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
			got[i] = inst
		})
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		if got[i] != got[0] {
			t.Fatalf("worker %d received a different instance", i)
		}
	}
	if n := len(box.Instances()); n != 1 {
		t.Fatalf("%d instances cached, want 1", n)
	}
}

// newOuter builds Outer`1<T> { nested Inner`1<U> { T A; U B; } Inner<T> Child; }.
func (f *fixture) newOuter(t *testing.T) (outer, inner *meta.Type) {
	t.Helper()
	outer, ops := f.generic("Outer`1", "T")
	inner = meta.NewNestedType(meta.KindClass, outer, "Inner`1", meta.TypeNestedPublic)
	u := meta.NewTypeParameter(inner, "U", 0, meta.Invariant, 0)
	inner.SetSignature(meta.Signature{BaseType: f.object, TemplateParameters: []*meta.Type{u}})
	inner.SetMembers([]meta.Member{field(inner, "A", ops[0]), field(inner, "B", u)})
	outer.AddNestedType(inner)

	open, err := Instantiate(context.Background(), inner, []*meta.Type{ops[0]}, f.mod)
	if err != nil {
		t.Fatalf("open Inner<T>: %v", err)
	}
	outer.SetMembers([]meta.Member{field(outer, "Child", open)})
	return outer, inner
}

func TestNestedGenericCopies(t *testing.T) {
	f := newFixture(t)
	outer, inner := f.newOuter(t)
	ctx := context.Background()
	e := New(Options{})

	oi, err := e.Instantiate(ctx, outer, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	nested := oi.NestedTypes()
	if len(nested) != 1 {
		t.Fatalf("nested copies = %v", nested)
	}
	copyInner := nested[0]
	if copyInner.Origin() != inner || copyInner.DeclaringType() != oi || copyInner.IsInstance() {
		t.Fatalf("nested copy shape: %s origin=%v", copyInner, copyInner.Origin())
	}
	if ps := copyInner.TemplateParameters(); len(ps) != 1 || ps[0] == inner.TemplateParameters()[0] {
		t.Fatalf("nested copy must own its template parameters: %v", ps)
	}
	if a := copyInner.Field("A"); a == nil || a.Type != f.int32 {
		t.Fatalf("copied A = %+v", a)
	}

	leaf, err := e.Instantiate(ctx, copyInner, []*meta.Type{f.str}, oi)
	if err != nil {
		t.Fatal(err)
	}
	if got := leaf.FullName(); got != "Demo.Outer<System.Int32>+Inner<System.String>" {
		t.Fatalf("FullName = %q", got)
	}
	if leaf.Field("A").Type != f.int32 || leaf.Field("B").Type != f.str {
		t.Fatalf("leaf fields A=%v B=%v", leaf.Field("A").Type, leaf.Field("B").Type)
	}
	cons := leaf.ConsolidatedTemplateArguments()
	if len(cons) != 2 || cons[0] != f.int32 || cons[1] != f.str {
		t.Fatalf("consolidated = %v", cons)
	}

	again, err := e.InstantiateConsolidated(ctx, inner, []*meta.Type{f.int32, f.str}, f.mod)
	if err != nil || again != leaf {
		t.Fatalf("InstantiateConsolidated = %v, %v; want the cached leaf", again, err)
	}

	child := oi.Field("Child")
	want, err := e.Instantiate(ctx, copyInner, []*meta.Type{f.int32}, oi)
	if err != nil {
		t.Fatal(err)
	}
	if child == nil || child.Type != want {
		t.Fatalf("Child = %v, want %v", child.Type, want)
	}
}

func TestContextualNestedDefinition(t *testing.T) {
	f := newFixture(t)
	outer, _ := f.generic("Holder`1", "T")
	leaf := meta.NewNestedType(meta.KindClass, outer, "Leaf", meta.TypeNestedPublic)
	outer.AddNestedType(leaf)
	ctx := context.Background()

	oi, err := Instantiate(ctx, outer, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Instantiate(ctx, leaf, nil, oi)
	if err != nil {
		t.Fatal(err)
	}
	if got.Origin() != leaf || got.DeclaringType() != oi {
		t.Fatalf("Leaf in Holder<Int32> = %v", got)
	}
	if _, err := Instantiate(ctx, leaf, nil, nil); !errors.Is(err, ErrNoReferringContext) {
		t.Fatalf("missing context error = %v", err)
	}
}

func TestDivergentInstantiationStops(t *testing.T) {
	f := newFixture(t)
	chain, ps := f.generic("Chain`1", "T")
	ctx := context.Background()
	bag := diag.NewBag(16)
	e := New(Options{MaxDepth: 4, Reporter: diag.BagReporter{Bag: bag}})

	// Chain<T> { Chain<Chain<T>> Next; }
	if err := chain.ProvideMembers(func(owner *meta.Type, _ any) ([]meta.Member, error) {
		self, err := e.Instantiate(ctx, owner, ps, f.mod)
		if err != nil {
			return nil, err
		}
		next, err := e.Instantiate(ctx, owner, []*meta.Type{self}, f.mod)
		if err != nil {
			return nil, err
		}
		return []meta.Member{field(owner, "Next", next)}, nil
	}, nil); err != nil {
		t.Fatal(err)
	}

	cur, err := e.Instantiate(ctx, chain, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	levels := 0
	for cur != chain {
		levels++
		if levels > 10 {
			t.Fatalf("expansion did not stop")
		}
		next := cur.Field("Next")
		if next == nil {
			t.Fatalf("%s has no Next field", cur)
		}
		cur = next.Type
	}
	if levels != 4 {
		t.Fatalf("expanded %d levels, want 4", levels)
	}
	if !bag.HasWarnings() {
		t.Fatalf("cycle must be reported")
	}
	for _, d := range bag.Items() {
		if d.Code != diag.MetaInstantiationCycle {
			t.Fatalf("unexpected diagnostic %v", d)
		}
	}
}

func TestReservedOnSameGoroutineIsCycle(t *testing.T) {
	f := newFixture(t)
	box, _ := f.newBox()
	bag := diag.NewBag(4)
	e := New(Options{Reporter: diag.BagReporter{Bag: bag}})
	args := []*meta.Type{f.str}

	_, res, st := box.ReserveInstance(args)
	if st != meta.ReserveOwned {
		t.Fatalf("reservation = %v", st)
	}
	got, err := e.Instantiate(context.Background(), box, args, f.mod)
	res.Abandon()
	if err != nil {
		t.Fatal(err)
	}
	if got != box {
		t.Fatalf("cyclic instantiation returned %v, want the definition", got)
	}
	items := bag.Items()
	if len(items) != 1 || items[0].Code != diag.MetaInstantiationCycle || items[0].Subject != "Demo.Box<System.String>" {
		t.Fatalf("diagnostics = %+v", items)
	}
	if len(box.Instances()) != 0 {
		t.Fatalf("nothing may be cached for a cycle")
	}
}

func TestInstanceSurvivesUnrelatedInstantiations(t *testing.T) {
	f := newFixture(t)
	box, _ := f.newBox()
	pair, _ := f.generic("Pair`2", "K", "V")
	ctx := context.Background()
	e := New(Options{})

	first, err := e.Instantiate(ctx, box, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	const unrelated = 200
	for i := range unrelated {
		arg := meta.NewType(meta.KindClass, f.mod, "Demo", "Filler"+strconv.Itoa(i), meta.TypePublic)
		arg.SetSignature(meta.Signature{BaseType: f.object})
		f.mod.AddType(arg)
		if _, err := e.Instantiate(ctx, box, []*meta.Type{arg}, f.mod); err != nil {
			t.Fatal(err)
		}
		if _, err := e.Instantiate(ctx, pair, []*meta.Type{arg, f.int32}, f.mod); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		name string
		args []*meta.Type
	}{
		{"same argument node", []*meta.Type{f.int32}},
		{"fresh slice", append([]*meta.Type(nil), f.int32)},
	}
	for _, tc := range cases {
		again, err := e.Instantiate(ctx, box, tc.args, f.mod)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("%s: Box<Int32> rebuilt after %d unrelated instantiations", tc.name, unrelated)
		}
	}
	if n := len(box.Instances()); n != unrelated+1 {
		t.Fatalf("Box has %d instances, want %d", n, unrelated+1)
	}
}

func TestSelfReferenceInOwnMembers(t *testing.T) {
	f := newFixture(t)
	node, ps := f.generic("Node`1", "T")
	ctx := context.Background()
	// Node<T> { T Value; Node<T> Next; }
	if err := node.ProvideMembers(func(owner *meta.Type, _ any) ([]meta.Member, error) {
		self, err := Instantiate(ctx, owner, ps, f.mod)
		if err != nil {
			return nil, err
		}
		return []meta.Member{field(owner, "Value", ps[0]), field(owner, "Next", self)}, nil
	}, nil); err != nil {
		t.Fatal(err)
	}

	inst, err := Instantiate(ctx, node, []*meta.Type{f.str}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Field("Value").Type != f.str || inst.Field("Next").Type != inst {
		t.Fatalf("Node<String> fields: %v", inst.Fields())
	}
	open, _ := Instantiate(ctx, node, ps, f.mod)
	if open.Field("Value") == nil || open.Field("Value").Type != ps[0] {
		t.Fatalf("open instance created during population must fill in later: %v", open.Fields())
	}
}

func TestGenericMethodInstance(t *testing.T) {
	f := newFixture(t)
	box, _ := f.newBox()
	ctx := context.Background()
	e := New(Options{})

	inst, err := e.Instantiate(ctx, box, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	conv := inst.MethodsNamed("Convert")[0]
	m, err := e.InstantiateMethod(ctx, conv, []*meta.Type{f.str})
	if err != nil {
		t.Fatal(err)
	}
	if m.Name.Text() != "Convert<System.String>" || m.Template != conv {
		t.Fatalf("method instance = %s", m)
	}
	if m.ReturnType != f.str || m.Parameters[0].Type != f.int32 {
		t.Fatalf("method instance signature = %s", m.Signature())
	}
	again, err := e.InstantiateMethod(ctx, conv, []*meta.Type{f.str})
	if err != nil || again != m {
		t.Fatalf("method instance must be cached: %v, %v", again, err)
	}
	if _, err := e.InstantiateMethod(ctx, box.Method("Get"), []*meta.Type{f.str}); !errors.Is(err, ErrNotGeneric) {
		t.Fatalf("non-generic method error = %v", err)
	}
}

func TestSignaturesMatch(t *testing.T) {
	f := newFixture(t)
	base, ps := f.generic("Base`1", "T")
	virt := meta.NewMethod(base, "Put", meta.MethodFlags(meta.AccessPublic)|meta.MethodVirtual, nil, ps[0])
	base.SetMembers([]meta.Member{virt})

	derived := meta.NewType(meta.KindClass, f.mod, "Demo", "Derived", meta.TypePublic)
	over := meta.NewMethod(derived, "Put", meta.MethodFlags(meta.AccessPublic)|meta.MethodVirtual, nil, f.int32)
	wrong := meta.NewMethod(derived, "Put", meta.MethodFlags(meta.AccessPublic)|meta.MethodVirtual, nil, f.str)

	subst := BindingSubstitution(ps, []*meta.Type{f.int32})
	if !SignaturesMatch(over, virt, subst) {
		t.Fatalf("Put(Int32) must match Put(T) with T=Int32")
	}
	if SignaturesMatch(wrong, virt, subst) {
		t.Fatalf("Put(String) must not match Put(T) with T=Int32")
	}
	if SignaturesMatch(over, virt, nil) {
		t.Fatalf("without substitution T is not Int32")
	}

	inst, err := Instantiate(context.Background(), base, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	if !SignaturesMatch(over, inst.Method("Put", f.int32), nil) {
		t.Fatalf("Put(Int32) must match Base<Int32>.Put")
	}
	derived.SetMembers([]meta.Member{over})
	if got := FindImplementation(derived, inst.Method("Put", f.int32)); got != over {
		t.Fatalf("FindImplementation = %v", got)
	}
}

func TestSubstitute(t *testing.T) {
	f := newFixture(t)
	box, tp := f.newBox()
	ctx := context.Background()
	e := New(Options{})

	open := meta.SZArrayOf(tp)
	got, err := e.Substitute(ctx, open, []*meta.Type{tp}, []*meta.Type{f.str}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	if got != meta.SZArrayOf(f.str) {
		t.Fatalf("Substitute(T[]) = %v", got)
	}
	inst, err := e.Instantiate(ctx, box, []*meta.Type{tp}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	closed, err := e.Substitute(ctx, meta.PointerTo(inst), []*meta.Type{tp}, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := e.Instantiate(ctx, box, []*meta.Type{f.int32}, f.mod)
	if closed != meta.PointerTo(want) {
		t.Fatalf("Substitute(Box<T>*) = %v", closed)
	}
}

func TestMangledName(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		args []*meta.Type
		want string
	}{
		{"Box`1", []*meta.Type{f.int32}, "Box<System.Int32>"},
		{"Pair`2", []*meta.Type{f.int32, f.str}, "Pair<System.Int32,System.String>"},
		{"Odd`x", []*meta.Type{f.str}, "Odd`x<System.String>"},
		{"Plain", []*meta.Type{f.str}, "Plain<System.String>"},
	}
	for _, tc := range cases {
		if got := MangledName(tc.name, tc.args); got != tc.want {
			t.Errorf("MangledName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestInstanceNameCollision(t *testing.T) {
	f := newFixture(t)
	box, _ := f.newBox()
	squatter := meta.NewType(meta.KindClass, f.mod, "Demo", "Box<System.Int32>", meta.TypePublic)
	f.mod.AddType(squatter)

	inst, err := Instantiate(context.Background(), box, []*meta.Type{f.int32}, f.mod)
	if err != nil {
		t.Fatal(err)
	}
	if inst == squatter || inst.FullName() != "Demo.Box<System.Int32>1" {
		t.Fatalf("colliding instance named %q", inst.FullName())
	}
}
