package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"cilgraph/internal/diag"
	"cilgraph/internal/meta"
	"cilgraph/internal/trace"
)

// Opener loads the module stored at path. Universe registers the TOML
// opener; other formats are registered by their packages' callers.
type Opener func(ctx context.Context, u *Universe, path string) (*meta.Module, error)

// UniverseOptions configure a Universe.
type UniverseOptions struct {
	Options
	// SearchPaths are the directories searched for referenced assemblies,
	// as <name><ext> for every registered extension.
	SearchPaths []string
}

// Universe is a set of loaded modules whose references resolve to each
// other by name and version constraint.
type Universe struct {
	opts UniverseOptions

	mu      sync.Mutex
	modules []*meta.Module
	openers map[string]Opener
	exts    []string
}

// NewUniverse returns an empty universe that opens ".toml" descriptions.
func NewUniverse(opts UniverseOptions) *Universe {
	if opts.Reporter == nil {
		opts.Reporter = diag.NopReporter{}
	}
	u := &Universe{opts: opts, openers: map[string]Opener{}}
	u.Register(".toml", openDescription)
	return u
}

// Options returns the binding options modules of u are loaded with.
func (u *Universe) Options() Options { return u.opts.Options }

// Register makes files with extension ext loadable.
func (u *Universe) Register(ext string, open Opener) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.openers[ext]; !ok {
		u.exts = append(u.exts, ext)
	}
	u.openers[ext] = open
}

// Modules returns the loaded modules in load order.
func (u *Universe) Modules() []*meta.Module {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.modules)
}

// Lookup returns the loaded module called name with the highest version
// accepted by c. A nil c accepts any version.
func (u *Universe) Lookup(name string, c *semver.Constraints) *meta.Module {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lookupLocked(name, c)
}

func (u *Universe) lookupLocked(name string, c *semver.Constraints) *meta.Module {
	var best *meta.Module
	for _, m := range u.modules {
		if m.Name().Text() != name {
			continue
		}
		if c != nil && (m.Version() == nil || !c.Check(m.Version())) {
			continue
		}
		if best == nil || newer(m.Version(), best.Version()) {
			best = m
		}
	}
	return best
}

func newer(a, b *semver.Version) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.GreaterThan(b)
}

// Add registers mod and resolves its references, loading referenced
// assemblies from the search paths when they are not loaded yet. References
// that cannot be satisfied are reported and left unresolved; lookups through
// them then fail with ErrUnresolved.
func (u *Universe) Add(ctx context.Context, mod *meta.Module) error {
	u.mu.Lock()
	u.modules = append(u.modules, mod)
	u.mu.Unlock()

	span := trace.Begin(trace.FromContext(ctx), trace.ScopeAssembly, "bind_references", trace.ParentID(ctx)).
		Attr("assembly", mod.String())

	var errs []error
	for _, ref := range mod.References() {
		if ref.Resolved != nil {
			continue
		}
		target, err := u.Open(ctx, ref.Name.Text(), ref.Constraint)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if target == nil {
			if loaded := u.Lookup(ref.Name.Text(), nil); loaded != nil {
				diag.ReportError(u.opts.Reporter, diag.LoadVersionMismatch, mod.String(),
					fmt.Sprintf("reference %s %s does not accept loaded %s", ref.Name.Text(), ref.Raw, loaded)).Emit()
			} else {
				diag.ReportError(u.opts.Reporter, diag.LoadUnresolvedReference, mod.String(),
					"reference "+ref.Name.Text()+" not found").Emit()
			}
			continue
		}
		ref.Resolved = target
	}
	err := errors.Join(errs...)
	span.End(err)
	return err
}

// Open returns the module called name accepted by c, loading it from the
// search paths if needed. It returns nil without error when nothing matches.
func (u *Universe) Open(ctx context.Context, name string, c *semver.Constraints) (*meta.Module, error) {
	if m := u.Lookup(name, c); m != nil {
		return m, nil
	}
	for _, path := range u.candidates(name) {
		m, err := u.LoadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		if m.Name().Text() == name && (c == nil || (m.Version() != nil && c.Check(m.Version()))) {
			return m, nil
		}
	}
	return nil, nil
}

func (u *Universe) candidates(name string) []string {
	u.mu.Lock()
	exts := slices.Clone(u.exts)
	u.mu.Unlock()
	var out []string
	for _, dir := range u.opts.SearchPaths {
		for _, ext := range exts {
			p := filepath.Join(dir, name+ext)
			if _, err := os.Stat(p); err == nil {
				out = append(out, p)
			}
		}
	}
	return out
}

// LoadFile opens path with the opener registered for its extension and adds
// the result to u. A file already loaded is not loaded again.
func (u *Universe) LoadFile(ctx context.Context, path string) (*meta.Module, error) {
	ext := strings.ToLower(filepath.Ext(path))
	u.mu.Lock()
	open := u.openers[ext]
	u.mu.Unlock()
	if open == nil {
		return nil, fmt.Errorf("%s: no loader for %q files", path, ext)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}

	span := trace.Begin(trace.FromContext(ctx), trace.ScopeAssembly, "load_assembly", trace.ParentID(ctx)).
		Attr("path", path)
	mod, err := open(trace.WithSpan(ctx, span), u, path)
	span.End(err)
	if err != nil {
		return nil, err
	}
	if loaded := u.Lookup(mod.Name().Text(), nil); loaded != nil && sameVersion(loaded.Version(), mod.Version()) {
		return loaded, nil
	}
	if err := u.Add(ctx, mod); err != nil {
		return mod, err
	}
	return mod, nil
}

func sameVersion(a, b *semver.Version) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b)
}

func openDescription(ctx context.Context, u *Universe, path string) (*meta.Module, error) {
	d, undecoded, err := DecodeFile(path)
	if err != nil {
		diag.ReportError(u.opts.Reporter, diag.LoadMalformedDescription, path, err.Error()).Emit()
		return nil, err
	}
	for _, k := range undecoded {
		diag.ReportWarning(u.opts.Reporter, diag.LoadMalformedDescription, path, "unknown key "+k).Emit()
	}
	mod, err := Load(ctx, d, u.opts.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mod, nil
}
