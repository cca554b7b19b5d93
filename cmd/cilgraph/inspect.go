package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cilgraph/internal/loader"
	"cilgraph/internal/meta"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <assembly.toml|image.cgi> [type...]",
	Short: "List the types and members of an assembly",
	Long: `Load an assembly and list its definitions. Members are only resolved for
the types that are printed, unless --warm populates everything first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Bool("members", false, "list members of every printed type")
	inspectCmd.Flags().Bool("warm", false, "populate every type in parallel before printing")
	inspectCmd.Flags().String("namespace", "", "only print types in namespaces with this prefix")
}

func runInspect(cmd *cobra.Command, args []string) error {
	s := current
	showMembers, err := cmd.Flags().GetBool("members")
	if err != nil {
		return fmt.Errorf("failed to get members flag: %w", err)
	}
	warm, err := cmd.Flags().GetBool("warm")
	if err != nil {
		return fmt.Errorf("failed to get warm flag: %w", err)
	}
	namespace, err := cmd.Flags().GetString("namespace")
	if err != nil {
		return fmt.Errorf("failed to get namespace flag: %w", err)
	}

	ctx := cmd.Context()
	mod, err := s.open(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	st := styler{on: s.color}

	if warm {
		start := time.Now()
		n, err := loader.Warm(ctx, mod, s.cfg.Load.Jobs)
		if err != nil {
			return fmt.Errorf("warm %s: %w", mod, err)
		}
		fmt.Fprintln(out, st.render(mutedStyle, fmt.Sprintf("warmed %d types in %s", n, time.Since(start).Round(time.Microsecond))))
	}

	var types []*meta.Type
	if len(args) > 1 {
		r := s.resolver(mod)
		for _, ref := range args[1:] {
			t, err := r.ResolveString(ctx, ref)
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("%s: not a type", ref)
			}
			types = append(types, t)
		}
		showMembers = true
	} else {
		for _, t := range mod.Types() {
			if strings.HasPrefix(t.Namespace().Text(), namespace) {
				types = append(types, t)
			}
		}
	}

	printModule(out, st, mod)
	st.heading(out, "types")
	printTypes(out, st, types, mod, showMembers)
	return nil
}

func printModule(w io.Writer, st styler, mod *meta.Module) {
	st.heading(w, mod.String())
	refs := mod.References()
	if len(refs) == 0 {
		return
	}
	tbl := table{indent: "  "}
	tbl.style(2, mutedStyle)
	for _, r := range refs {
		target := "unresolved"
		if r.Resolved != nil {
			target = "-> " + r.Resolved.String()
		}
		raw := r.Raw
		if raw == "" {
			raw = "*"
		}
		tbl.add(r.Name.Text(), raw, target)
	}
	tbl.write(w, st)
}

// printTypes prints one aligned table, or a table per type followed by its
// members.
func printTypes(w io.Writer, st styler, types []*meta.Type, from *meta.Module, members bool) {
	if !members {
		tbl := typeTable()
		for _, t := range types {
			tbl.add(typeRow(t, from)...)
		}
		tbl.write(w, st)
		return
	}
	for _, t := range types {
		tbl := typeTable()
		tbl.add(typeRow(t, from)...)
		tbl.write(w, st)
		printMembers(w, st, t, from)
	}
}

func typeTable() *table {
	tbl := &table{indent: "  "}
	tbl.style(0, kindStyle)
	tbl.style(3, mutedStyle)
	return tbl
}

func printMembers(w io.Writer, st styler, t *meta.Type, from *meta.Module) {
	sub := table{indent: "      "}
	sub.style(0, kindStyle)
	for _, m := range t.Members() {
		sub.add(memberRow(m, from)...)
	}
	for _, n := range t.NestedTypes() {
		sub.add(memberRow(n, from)...)
	}
	sub.write(w, st)
}
