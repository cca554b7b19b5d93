package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cilgraph/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "cilgraph",
	Short: "Inspect and instantiate CLI type graphs",
	Long: `cilgraph loads assembly descriptions and metadata images into a lazily
populated type graph, instantiates generic types and compares type references.`,
	SilenceUsage:      true,
	PersistentPreRunE: prepare,
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(instantiateCmd)
	rootCmd.AddCommand(equivCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to cilgraph.toml (default: search upward from the working directory)")
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Int("max-diagnostics", 100, "maximum number of diagnostics to keep")
	pf.Bool("with-notes", false, "include diagnostic notes in output")
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-mode", "", "trace storage mode (stream|ring|both)")
	pf.Int("jobs", 0, "parallel workers for warming (0=auto)")
	pf.StringSlice("search-path", nil, "directories searched for referenced assemblies")
	pf.Int("max-depth", 0, "deepest generic argument nesting before an instantiation is cut")
}

// main runs the root command. Diagnostics collected along the way are
// printed before exiting.
func main() {
	err := rootCmd.Execute()
	if s := current; s != nil {
		s.close(os.Stderr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
