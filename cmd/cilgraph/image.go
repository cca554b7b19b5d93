package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cilgraph/internal/image"
	"cilgraph/internal/meta"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Convert assemblies to binary metadata images and read them back",
}

var imageWriteCmd = &cobra.Command{
	Use:   "write [flags] <assembly.toml>",
	Short: "Write the binary image of an assembly",
	Args:  cobra.ExactArgs(1),
	RunE:  runImageWrite,
}

var imageReadCmd = &cobra.Command{
	Use:   "read [flags] <image.cgi>",
	Short: "List an image without decoding more than it prints",
	Args:  cobra.ExactArgs(1),
	RunE:  runImageRead,
}

func init() {
	imageWriteCmd.Flags().StringP("output", "o", "", "output path (default: input with the image extension)")
	imageWriteCmd.Flags().String("codec", "", "record codec (msgpack|cbor, default from config)")
	imageReadCmd.Flags().Bool("members", false, "decode and list members")
	imageCmd.AddCommand(imageWriteCmd)
	imageCmd.AddCommand(imageReadCmd)
}

func runImageWrite(cmd *cobra.Command, args []string) error {
	s := current
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	codecName, err := cmd.Flags().GetString("codec")
	if err != nil {
		return fmt.Errorf("failed to get codec flag: %w", err)
	}
	if codecName == "" {
		codecName = s.cfg.Load.Codec
	}
	codec, err := image.CodecByName(strings.ToLower(codecName))
	if err != nil {
		return err
	}
	if output == "" {
		output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + image.Extension
	}

	mod, err := s.open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := image.WriteFile(output, mod, codec); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d types)\n", output, codec.Name(), len(mod.Types()))
	return nil
}

func runImageRead(cmd *cobra.Command, args []string) error {
	s := current
	members, err := cmd.Flags().GetBool("members")
	if err != nil {
		return fmt.Errorf("failed to get members flag: %w", err)
	}
	mod, err := s.open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	st := styler{on: s.color}
	printModule(out, st, mod)
	st.heading(out, "types")

	// Rows come from the shells; only --members decodes member blobs.
	if members {
		printTypes(out, st, mod.Types(), mod, true)
		return nil
	}
	tbl := typeTable()
	for _, t := range mod.Types() {
		tbl.add(t.Kind().String(), t.Visibility().String(), t.FullName(),
			"members "+t.PopulationState(meta.PropMembers).String())
	}
	tbl.write(out, st)
	return nil
}
