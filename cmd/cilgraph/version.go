package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cilgraph/internal/image"
	"cilgraph/internal/version"
)

// versionPayload is the json rendering of the version command.
type versionPayload struct {
	Tool         string   `json:"tool"`
	Version      string   `json:"version"`
	ImageVersion uint32   `json:"image_version"`
	Codecs       []string `json:"codecs"`
	GitCommit    string   `json:"git_commit,omitempty"`
	BuildDate    string   `json:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show cilgraph build information",
	Long: `Print the cilgraph version together with the metadata image layout it
reads and writes and the codecs it supports.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().Bool("hash", false, "include git commit hash")
	versionCmd.Flags().Bool("date", false, "include build timestamp")
	versionCmd.Flags().Bool("full", false, "show all recorded build metadata")
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	format, err := flags.GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	p := versionPayload{
		Tool:         "cilgraph",
		Version:      strings.TrimSpace(version.Version),
		ImageVersion: image.Version,
		Codecs:       image.CodecNames(),
	}
	full, _ := flags.GetBool("full")
	if hash, _ := flags.GetBool("hash"); hash || full {
		p.GitCommit = orUnknown(version.GitCommit)
	}
	if date, _ := flags.GetBool("date"); date || full {
		p.BuildDate = orUnknown(version.BuildDate)
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(format) {
	case "pretty":
		printVersion(out, p)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
}

func printVersion(w io.Writer, p versionPayload) {
	fmt.Fprintf(w, "%s %s\n", p.Tool, version.Colored())
	fmt.Fprintf(w, "image:  v%d (%s)\n", p.ImageVersion, strings.Join(p.Codecs, ", "))
	if p.GitCommit != "" {
		fmt.Fprintf(w, "commit: %s\n", p.GitCommit)
	}
	if p.BuildDate != "" {
		fmt.Fprintf(w, "built:  %s\n", p.BuildDate)
	}
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
