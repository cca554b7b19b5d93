package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cilgraph/internal/diag"
	"cilgraph/internal/generic"
	"cilgraph/internal/trace"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[trace]
level = "detail"
output = "trace.ndjson"

[generic]
max_depth = 8

[load]
jobs = 3
search_paths = ["lib", "/abs/refs"]
`)
	bag := diag.NewBag(10)
	f, err := Load(path, diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatal(err)
	}
	if f.Trace.Mode != "stream" || f.Trace.RingSize != 4096 || f.Load.Codec != "msgpack" {
		t.Fatalf("defaults lost: %+v", f)
	}
	if f.Generic.MaxDepth != 8 || f.Load.Jobs != 3 {
		t.Fatalf("values not decoded: %+v", f)
	}
	want := []string{filepath.Join(dir, "lib"), "/abs/refs"}
	if len(f.Load.SearchPaths) != 2 || f.Load.SearchPaths[0] != want[0] || f.Load.SearchPaths[1] != want[1] {
		t.Fatalf("search paths = %v, want %v", f.Load.SearchPaths, want)
	}

	tc, err := f.TraceConfig()
	if err != nil {
		t.Fatal(err)
	}
	if tc.Level != trace.LevelDetail || tc.Mode != trace.ModeStream || tc.OutputPath != "trace.ndjson" {
		t.Fatalf("trace config = %+v", tc)
	}
	if opts := f.GenericOptions(nil); opts.MaxDepth != 8 {
		t.Fatalf("generic options = %+v", opts)
	}
	if len(bag.Items()) != 0 {
		t.Fatalf("diagnostics: %s", diag.FormatShort(bag.Items(), false))
	}
}

func TestLoadReportsUnknownAndInvalid(t *testing.T) {
	dir := t.TempDir()
	bag := diag.NewBag(10)
	path := writeConfig(t, dir, `
[trace]
level = "loud"

[generic]
max_depth = -1

[colour]
scheme = "dark"
contrast = 2
`)
	_, err := Load(path, diag.BagReporter{Bag: bag})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
	var warnings, errs int
	for _, d := range bag.Items() {
		if d.Code != diag.CfgInvalidValue {
			t.Errorf("unexpected code %v", d.Code)
		}
		if d.Severity == diag.SevWarning {
			warnings++
		} else if d.Severity == diag.SevError {
			errs++
		}
	}
	if warnings != 1 || errs != 1 {
		t.Fatalf("warnings=%d errors=%d: %s", warnings, errs, diag.FormatShort(bag.Items(), false))
	}
	if out := diag.FormatShort(bag.Items(), false); !strings.Contains(out, "unknown key colour\n") {
		t.Fatalf("unknown table must be reported once by name: %s", out)
	}
}

func TestDefaultIsValid(t *testing.T) {
	f := Default()
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	if f.Generic.MaxDepth != generic.DefaultMaxDepth {
		t.Fatalf("max depth = %d", f.Generic.MaxDepth)
	}
	tc, err := f.TraceConfig()
	if err != nil || tc.Level != trace.LevelOff {
		t.Fatalf("trace config = %+v, %v", tc, err)
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "")
	deep := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	path, ok, err := Find(deep)
	if err != nil || !ok || path != filepath.Join(root, FileName) {
		t.Fatalf("Find = %q, %v, %v", path, ok, err)
	}
}
