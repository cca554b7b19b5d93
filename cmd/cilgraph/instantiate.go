package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cilgraph/internal/meta"
	"cilgraph/internal/sig"
)

var instantiateCmd = &cobra.Command{
	Use:   "instantiate <assembly.toml|image.cgi> <template> <arg>...",
	Short: "Instantiate a generic definition and print the specialized type",
	Long: `Instantiate a generic definition with the given type arguments. References
use the textual form, e.g. "Demo.Box` + "`" + `1" and "[corlib]System.Int32".`,
	Args: cobra.MinimumNArgs(3),
	RunE: runInstantiate,
}

func runInstantiate(cmd *cobra.Command, args []string) error {
	s := current
	ctx := cmd.Context()
	mod, err := s.open(ctx, args[0])
	if err != nil {
		return err
	}
	r := s.resolver(mod)
	template, err := r.ResolveString(ctx, args[1])
	if err != nil {
		return err
	}
	if template == nil {
		return fmt.Errorf("%s: not a type", args[1])
	}
	var targs []*meta.Type
	for _, a := range args[2:] {
		t, err := r.ResolveString(ctx, a)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%s: void is not a type argument", a)
		}
		targs = append(targs, t)
	}

	inst, err := s.engine.Instantiate(ctx, template, targs, mod)
	if err != nil {
		return err
	}
	printInstance(cmd.OutOrStdout(), styler{on: s.color}, inst, mod)
	return nil
}

func printInstance(w io.Writer, st styler, inst *meta.Type, from *meta.Module) {
	st.heading(w, sig.Format(inst, from))
	info := table{indent: "  "}
	info.style(0, mutedStyle)
	info.add("name", inst.FullName())
	info.add("visibility", inst.EffectiveVisibility().String())
	if b := inst.BaseType(); b != nil {
		info.add("base", sig.Format(b, from))
	}
	for _, i := range inst.Interfaces() {
		info.add("implements", sig.Format(i, from))
	}
	info.write(w, st)
	printMembers(w, st, inst, from)
}
