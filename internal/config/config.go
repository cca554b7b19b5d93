// Package config reads cilgraph.toml. Command-line flags are applied on top
// of the file by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"cilgraph/internal/diag"
	"cilgraph/internal/generic"
	"cilgraph/internal/loader"
	"cilgraph/internal/trace"
)

// FileName is the name Find looks for.
const FileName = "cilgraph.toml"

// ErrInvalid marks a configuration value that is out of range or unknown.
var ErrInvalid = errors.New("config: invalid value")

// File is the decoded configuration.
type File struct {
	// Path is where the file was read from; empty for defaults.
	Path string `toml:"-"`

	Trace   TraceSection   `toml:"trace"`
	Generic GenericSection `toml:"generic"`
	Load    LoadSection    `toml:"load"`
}

type TraceSection struct {
	Level    string `toml:"level"`
	Mode     string `toml:"mode"`
	Output   string `toml:"output"`
	RingSize int    `toml:"ring_size"`
}

type GenericSection struct {
	MaxDepth int `toml:"max_depth"`
}

// LoadSection configures assembly loading. Relative search paths are taken
// from the directory holding the file.
type LoadSection struct {
	Jobs        int      `toml:"jobs"`
	SearchPaths []string `toml:"search_paths"`
	Codec       string   `toml:"codec"`
}

// Default returns the configuration used when no file exists.
func Default() File {
	return File{
		Trace:   TraceSection{Level: "off", Mode: "stream", Output: "-", RingSize: 4096},
		Generic: GenericSection{MaxDepth: generic.DefaultMaxDepth},
		Load:    LoadSection{Codec: "msgpack"},
	}
}

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load decodes path over the defaults. Unknown keys are reported as warnings;
// invalid values are reported and returned as an error wrapping ErrInvalid.
func Load(path string, r diag.Reporter) (File, error) {
	f := Default()
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return File{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	f.Path = path
	for _, k := range loader.UnknownKeys(md) {
		diag.ReportWarning(r, diag.CfgInvalidValue, path, "unknown key "+k).Emit()
	}
	dir := filepath.Dir(path)
	for i, p := range f.Load.SearchPaths {
		if !filepath.IsAbs(p) {
			f.Load.SearchPaths[i] = filepath.Join(dir, p)
		}
	}
	if err := f.Validate(); err != nil {
		diag.ReportError(r, diag.CfgInvalidValue, path, err.Error()).Emit()
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate checks every value. It is run again by callers after flags are
// applied.
func (f *File) Validate() error {
	var errs []error
	if _, err := trace.ParseLevel(f.Trace.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: [trace].level: %v", ErrInvalid, err))
	}
	if _, err := trace.ParseMode(f.Trace.Mode); err != nil {
		errs = append(errs, fmt.Errorf("%w: [trace].mode: %v", ErrInvalid, err))
	}
	if f.Trace.RingSize < 0 {
		errs = append(errs, fmt.Errorf("%w: [trace].ring_size must not be negative", ErrInvalid))
	}
	if f.Generic.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("%w: [generic].max_depth must not be negative", ErrInvalid))
	}
	if f.Load.Jobs < 0 {
		errs = append(errs, fmt.Errorf("%w: [load].jobs must not be negative", ErrInvalid))
	}
	switch strings.ToLower(f.Load.Codec) {
	case "", "msgpack", "cbor":
	default:
		errs = append(errs, fmt.Errorf("%w: [load].codec %q (expected msgpack|cbor)", ErrInvalid, f.Load.Codec))
	}
	return errors.Join(errs...)
}

// TraceConfig converts the [trace] section.
func (f *File) TraceConfig() (trace.Config, error) {
	level, err := trace.ParseLevel(f.Trace.Level)
	if err != nil {
		return trace.Config{}, err
	}
	mode, err := trace.ParseMode(f.Trace.Mode)
	if err != nil {
		return trace.Config{}, err
	}
	return trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     trace.FormatAuto,
		OutputPath: f.Trace.Output,
		RingSize:   f.Trace.RingSize,
	}, nil
}

// GenericOptions converts the [generic] section.
func (f *File) GenericOptions(r diag.Reporter) generic.Options {
	return generic.Options{MaxDepth: f.Generic.MaxDepth, Reporter: r}
}
