package loader

import (
	"context"
	"runtime"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"cilgraph/internal/meta"
	"cilgraph/internal/trace"
)

// Warm populates every definition of mod, nested ones included, using up to
// jobs goroutines. jobs <= 0 means GOMAXPROCS. It returns how many
// definitions were populated before the first error.
func Warm(ctx context.Context, mod *meta.Module, jobs int) (int, error) {
	types := mod.Types()
	if len(types) == 0 {
		return 0, nil
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeAssembly, "warm", trace.ParentID(ctx)).
		Attr("assembly", mod.String())

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(types)))
	for _, t := range types {
		g.Go(func() error {
			return warmType(gctx, t, &done)
		})
	}
	err := g.Wait()
	n := int(done.Load())
	span.Attr("types", strconv.Itoa(n)).End(err)
	return n, err
}

func warmType(ctx context.Context, t *meta.Type, done *atomic.Int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.LoadSignature(); err != nil {
		return err
	}
	for _, p := range t.TemplateParameters() {
		if _, err := p.LoadSignature(); err != nil {
			return err
		}
	}
	nested, err := t.LoadNestedTypes()
	if err != nil {
		return err
	}
	if _, err := t.LoadMembers(); err != nil {
		return err
	}
	if _, err := t.LoadAttributes(); err != nil {
		return err
	}
	done.Add(1)
	for _, n := range nested {
		if err := warmType(ctx, n, done); err != nil {
			return err
		}
	}
	return nil
}
