package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cilgraph/internal/config"
	"cilgraph/internal/diag"
	"cilgraph/internal/generic"
	"cilgraph/internal/image"
	"cilgraph/internal/loader"
	"cilgraph/internal/meta"
	"cilgraph/internal/sig"
	"cilgraph/internal/trace"
)

// session is the state shared by one command run.
type session struct {
	cfg      config.File
	bag      *diag.Bag
	reporter diag.Reporter
	engine   *generic.Engine
	tracer   trace.Tracer
	universe *loader.Universe
	color    bool
	notes    bool
	cleanup  func()
}

var current *session

// prepare builds the session for the command about to run.
func prepare(cmd *cobra.Command, _ []string) error {
	if current != nil {
		current.close(io.Discard)
		current = nil
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	current = s
	return nil
}

func newSession(cmd *cobra.Command) (*session, error) {
	flags := cmd.Root().PersistentFlags()
	maxDiagnostics, err := flags.GetInt("max-diagnostics")
	if err != nil {
		return nil, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	bag := diag.NewBag(maxDiagnostics)
	s := &session{bag: bag, reporter: diag.NewDedupReporter(diag.BagReporter{Bag: bag}), cleanup: func() {}}

	if s.cfg, err = loadConfig(cmd.Root(), s.reporter); err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Root(), &s.cfg); err != nil {
		return nil, err
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	colorMode, err := flags.GetString("color")
	if err != nil {
		return nil, fmt.Errorf("failed to get color flag: %w", err)
	}
	switch strings.ToLower(colorMode) {
	case "auto":
		s.color = isTerminal(os.Stdout)
	case "on":
		s.color = true
	case "off":
		s.color = false
	default:
		return nil, fmt.Errorf("unsupported color mode %q (must be auto, on or off)", colorMode)
	}
	color.NoColor = !s.color
	if s.notes, err = flags.GetBool("with-notes"); err != nil {
		return nil, fmt.Errorf("failed to get with-notes flag: %w", err)
	}

	if err := s.setupTracing(cmd); err != nil {
		return nil, err
	}
	s.engine = generic.New(s.cfg.GenericOptions(s.reporter))
	return s, nil
}

func loadConfig(root *cobra.Command, r diag.Reporter) (config.File, error) {
	path, err := root.PersistentFlags().GetString("config")
	if err != nil {
		return config.File{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path == "" {
		found, ok, err := config.Find(".")
		if err != nil {
			return config.File{}, err
		}
		if !ok {
			return config.Default(), nil
		}
		path = found
	}
	return config.Load(path, r)
}

// applyFlags overrides file values with flags given on the command line.
func applyFlags(root *cobra.Command, cfg *config.File) error {
	flags := root.PersistentFlags()
	var err error
	get := func(name string, dst *string) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetString(name)
		}
	}
	getInt := func(name string, dst *int) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetInt(name)
		}
	}
	get("trace", &cfg.Trace.Output)
	get("trace-level", &cfg.Trace.Level)
	get("trace-mode", &cfg.Trace.Mode)
	getInt("jobs", &cfg.Load.Jobs)
	getInt("max-depth", &cfg.Generic.MaxDepth)
	if err == nil && flags.Changed("search-path") {
		var paths []string
		if paths, err = flags.GetStringSlice("search-path"); err == nil {
			cfg.Load.SearchPaths = append(paths, cfg.Load.SearchPaths...)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to read flags: %w", err)
	}
	// --trace alone turns on phase tracing.
	if flags.Changed("trace") && !flags.Changed("trace-level") && strings.EqualFold(cfg.Trace.Level, "off") {
		cfg.Trace.Level = "phase"
	}
	return nil
}

// setupTracing creates the tracer, attaches it to the command context and
// installs it for type population.
func (s *session) setupTracing(cmd *cobra.Command) error {
	tc, err := s.cfg.TraceConfig()
	if err != nil {
		return fmt.Errorf("invalid trace configuration: %w", err)
	}
	tracer, err := trace.New(tc)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	s.tracer = tracer

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	span := trace.Begin(tracer, trace.ScopeCommand, cmd.Name(), 0)
	ctx = trace.WithSpan(trace.WithTracer(ctx, tracer), span)
	cmd.SetContext(ctx)
	meta.SetTracer(tracer)

	s.cleanup = func() {
		span.End(nil)
		meta.SetTracer(nil)
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "trace: close error: %v\n", err)
		}
	}
	return nil
}

// newUniverse returns a universe searching the configured paths and then
// the directory of each root file.
func (s *session) newUniverse(roots ...string) *loader.Universe {
	paths := append([]string(nil), s.cfg.Load.SearchPaths...)
	for _, r := range roots {
		paths = append(paths, filepath.Dir(r))
	}
	u := loader.NewUniverse(loader.UniverseOptions{
		Options: loader.Options{
			Engine:   s.engine,
			Reporter: s.reporter,
			Tracer:   s.tracer,
		},
		SearchPaths: paths,
	})
	image.Register(u)
	return u
}

// open loads path, and what it references, into the session universe.
func (s *session) open(ctx context.Context, path string) (*meta.Module, error) {
	if s.universe == nil {
		s.universe = s.newUniverse(path)
	}
	return s.universe.LoadFile(ctx, path)
}

// resolver resolves references as seen from mod.
func (s *session) resolver(mod *meta.Module) *sig.Resolver {
	return &sig.Resolver{Module: mod, Engine: s.engine}
}

// close prints the collected diagnostics to w and releases the tracer.
func (s *session) close(w io.Writer) {
	s.bag.Sort()
	printDiagnostics(w, s.bag.Items(), s.notes)
	s.dumpRings(w)
	s.cleanup()
}

// dumpRings writes in-memory trace events to w when the run went wrong.
func (s *session) dumpRings(w io.Writer) {
	for _, ring := range trace.Rings(s.tracer) {
		if ring.Failures() == 0 && !s.bag.HasErrors() {
			continue
		}
		fmt.Fprintln(w, "trace (most recent events):")
		if err := ring.Dump(w, trace.FormatText); err != nil {
			fmt.Fprintf(w, "trace: dump error: %v\n", err)
		}
	}
}
