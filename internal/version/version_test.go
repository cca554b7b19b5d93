package version

import (
	"os"
	"testing"

	"github.com/fatih/color"
)

func TestColoredPlain(t *testing.T) {
	saved, savedNoColor := Version, color.NoColor
	t.Cleanup(func() { Version, color.NoColor = saved, savedNoColor })
	color.NoColor = true

	for _, v := range []string{"0.1.0-dev", "1.2.3", "2.0.0-rc.1", "7"} {
		Version = v
		if got := Colored(); got != v {
			t.Errorf("Colored() = %q, want %q", got, v)
		}
	}
}

func TestColoredKeepsSuffixPlain(t *testing.T) {
	if os.Getenv("NO_COLOR") != "" {
		t.Skip("NO_COLOR is set")
	}
	saved, savedNoColor := Version, color.NoColor
	t.Cleanup(func() { Version, color.NoColor = saved, savedNoColor })
	color.NoColor = false
	Version = "1.2.3-dev"

	got := Colored()
	if got == Version {
		t.Fatal("no color applied")
	}
	if got[len(got)-4:] != "-dev" {
		t.Fatalf("suffix colored: %q", got)
	}
}
