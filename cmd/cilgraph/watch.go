package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"cilgraph/internal/diag"
	"cilgraph/internal/generic"
	"cilgraph/internal/image"
	"cilgraph/internal/loader"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <assembly.toml>",
	Short: "Reload and warm an assembly whenever it or its references change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", 150*time.Millisecond, "quiet period before reloading")
}

func runWatch(cmd *cobra.Command, args []string) error {
	s := current
	debounce, err := cmd.Flags().GetDuration("debounce")
	if err != nil {
		return fmt.Errorf("failed to get debounce flag: %w", err)
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	dirs := append([]string{filepath.Dir(path)}, s.cfg.Load.SearchPaths...)
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	out := cmd.OutOrStdout()
	s.reload(ctx, out, path)
	return watchLoop(ctx, w, debounce, func() { s.reload(ctx, out, path) })
}

// watchLoop calls reload once events on description or image files have
// been quiet for debounce. It returns when ctx is done.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, debounce time.Duration, reload func()) error {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		case <-timer.C:
			reload()
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	switch filepath.Ext(ev.Name) {
	case ".toml", image.Extension:
		return true
	}
	return false
}

// reload loads path into a fresh universe, warms it and prints a summary
// with the diagnostics of this round only.
func (s *session) reload(ctx context.Context, out io.Writer, path string) {
	bag := diag.NewBag(s.bag.Cap())
	reporter := diag.NewDedupReporter(diag.BagReporter{Bag: bag})
	u := loader.NewUniverse(loader.UniverseOptions{
		Options: loader.Options{
			Engine:   generic.New(s.cfg.GenericOptions(reporter)),
			Reporter: reporter,
			Tracer:   s.tracer,
		},
		SearchPaths: append(append([]string(nil), s.cfg.Load.SearchPaths...), filepath.Dir(path)),
	})
	image.Register(u)

	st := styler{on: s.color}
	start := time.Now()
	mod, err := u.LoadFile(ctx, path)
	n := 0
	if err == nil {
		n, err = loader.Warm(ctx, mod, s.cfg.Load.Jobs)
	}
	elapsed := time.Since(start).Round(time.Microsecond)
	stamp := st.render(mutedStyle, time.Now().Format("15:04:05"))
	switch {
	case err != nil:
		fmt.Fprintf(out, "%s %s\n", stamp, errorColor.Sprint(err))
	default:
		fmt.Fprintf(out, "%s %s: %d types, %d assemblies in %s\n", stamp, mod, n, len(u.Modules()), elapsed)
	}
	bag.Sort()
	printDiagnostics(out, bag.Items(), s.notes)
}
