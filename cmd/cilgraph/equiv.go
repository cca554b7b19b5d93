package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cilgraph/internal/meta"
)

var equivCmd = &cobra.Command{
	Use:   "equiv <assembly.toml|image.cgi> <typeref> <typeref>",
	Short: "Report whether two type references are structurally equivalent",
	Args:  cobra.ExactArgs(3),
	RunE:  runEquiv,
}

func init() {
	equivCmd.Flags().Bool("exit-code", false, "exit with status 1 when the types differ")
}

func runEquiv(cmd *cobra.Command, args []string) error {
	s := current
	exitCode, err := cmd.Flags().GetBool("exit-code")
	if err != nil {
		return fmt.Errorf("failed to get exit-code flag: %w", err)
	}
	ctx := cmd.Context()
	mod, err := s.open(ctx, args[0])
	if err != nil {
		return err
	}
	r := s.resolver(mod)
	var ts [2]*meta.Type
	for i, ref := range args[1:] {
		if ts[i], err = r.ResolveString(ctx, ref); err != nil {
			return err
		}
	}

	st := styler{on: s.color}
	verdict := "equivalent"
	same := meta.Equivalent(ts[0], ts[1], nil)
	switch {
	case same && meta.Identical(ts[0], ts[1]):
		verdict = "identical"
	case !same:
		verdict = "different"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n  %s\n  %s\n", st.render(headingStyle, verdict),
		formatOrVoid(ts[0], mod), formatOrVoid(ts[1], mod))
	if !same && exitCode {
		return fmt.Errorf("%s and %s differ", formatOrVoid(ts[0], mod), formatOrVoid(ts[1], mod))
	}
	return nil
}
