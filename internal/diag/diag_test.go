package diag

import (
	"sync"
	"testing"
)

func TestBagLimitAndSeverity(t *testing.T) {
	b := NewBag(2)
	if !b.Add(New(SevInfo, LoadInfo, "a", "loaded")) {
		t.Fatalf("first add must succeed")
	}
	b.Add(NewError(LoadUnresolvedType, "b", "missing"))
	if b.Add(New(SevWarning, MetaInstantiationCycle, "c", "cycle")) {
		t.Fatalf("add beyond the limit must fail")
	}
	if !b.HasErrors() || !b.HasWarnings() || b.Len() != 2 {
		t.Fatalf("unexpected bag state: %+v", b.Items())
	}
}

func TestBagSortAndDedup(t *testing.T) {
	b := NewBag(10)
	b.Add(New(SevWarning, MetaInstantiationCycle, "Demo.C`1", "cycle"))
	b.Add(NewError(LoadUnresolvedType, "Demo.A", "missing"))
	b.Add(New(SevWarning, MetaInstantiationCycle, "Demo.C`1", "cycle again"))
	b.Add(New(SevInfo, LoadInfo, "Demo.A", "loaded"))
	b.Sort()
	b.Dedup()
	items := b.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items after dedup, got %d", len(items))
	}
	if items[0].Subject != "Demo.A" || items[0].Severity != SevError {
		t.Fatalf("errors must sort before infos for the same subject: %+v", items)
	}
}

func TestBagConcurrentAdd(t *testing.T) {
	b := NewBag(1000)
	r := BagReporter{Bag: b}
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				ReportWarning(r, MetaInstantiationCycle, "X", "cycle").Emit()
			}
		})
	}
	wg.Wait()
	if b.Len() != 400 {
		t.Fatalf("expected 400 diagnostics, got %d", b.Len())
	}
}

func TestDedupReporter(t *testing.T) {
	b := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: b})
	for range 3 {
		ReportError(r, LoadUnresolvedReference, "corlib", "no match").WithNote("demo", "referenced here").Emit()
	}
	if b.Len() != 1 {
		t.Fatalf("duplicates must be dropped, got %d", b.Len())
	}
	if notes := b.Items()[0].Notes; len(notes) != 1 || notes[0].Subject != "demo" {
		t.Fatalf("notes lost: %+v", notes)
	}
}

func TestCodeIDs(t *testing.T) {
	cases := map[Code]string{
		LoadUnresolvedType:     "LOD1005",
		MetaInstantiationCycle: "GEN2002",
		ImageSchemaMismatch:    "IMG3001",
		Code(9999):             "E0000",
	}
	for c, want := range cases {
		if c.ID() != want {
			t.Errorf("%d.ID() = %s, want %s", c, c.ID(), want)
		}
	}
	if Code(42).Title() != "Unknown error" {
		t.Errorf("unknown codes must fall back to the generic title")
	}
}

func TestFormatShort(t *testing.T) {
	d := NewError(LoadUnresolvedType, "Demo.Box`1", "base type not found").WithNote("[corlib]System.Object", "looked up here")
	got := FormatShort([]Diagnostic{d}, true)
	want := "error LOD1005 Demo.Box`1: base type not found\n  note [corlib]System.Object: looked up here\n"
	if got != want {
		t.Fatalf("FormatShort = %q, want %q", got, want)
	}
}

func TestReporterFuncAndEmitOnce(t *testing.T) {
	var got []Diagnostic
	r := ReporterFunc(func(d Diagnostic) { got = append(got, d) })
	b := ReportInfo(r, LoadInfo, "app", "loaded").WithNote("corlib", "bound")
	b.Emit()
	b.Emit()
	if len(got) != 1 || got[0].Severity != SevInfo || len(got[0].Notes) != 1 {
		t.Fatalf("reported %+v", got)
	}
	if SevWarning.String() != "warning" || !SevError.AtLeast(SevWarning) || SevInfo.AtLeast(SevWarning) {
		t.Fatalf("severity ordering or names changed")
	}
}
