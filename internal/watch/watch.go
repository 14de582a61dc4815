// Package watch reports batches of changed Java sources and archives under a
// workspace. Events are debounced, filtered by exclude globs, and flushed no
// faster than a token-bucket rate.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
	"go.trai.ch/zerr"

	"github.com/jward/lineage/internal/config"
	"github.com/jward/lineage/internal/observability"
)

// Extensions of the files a batch can contain.
var watched = map[string]bool{".java": true, ".jar": true, ".zip": true, ".class": true}

// Options configure a Watcher.
type Options struct {
	Debounce time.Duration
	Rate     float64 // batches per second
	Burst    int
	Exclude  *config.Excluder // matched against workspace-relative paths
	Logger   *slog.Logger
}

// OptionsFrom builds Options from the watch and index sections of cfg.
func OptionsFrom(cfg *config.Config, logger *slog.Logger) (Options, error) {
	ex, err := cfg.Index.Excluder()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Debounce: cfg.Watch.Debounce,
		Rate:     cfg.Watch.Rate,
		Burst:    cfg.Watch.Burst,
		Exclude:  ex,
		Logger:   logger,
	}, nil
}

// Watcher watches directory trees under a workspace root.
type Watcher struct {
	root     string
	opts     Options
	fsw      *fsnotify.Watcher
	limiter  *rate.Limiter
	onChange func(ctx context.Context, paths []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	batches chan []string
}

// New creates a Watcher for the workspace at root. onChange receives sorted,
// workspace-relative, slash-separated paths and is never called
// concurrently.
func New(root string, opts Options, onChange func(ctx context.Context, paths []string)) (*Watcher, error) {
	if onChange == nil {
		return nil, zerr.New("watch: onChange is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := max(opts.Burst, 1)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, zerr.Wrap(err, "watch: create watcher")
	}
	return &Watcher{
		root:     root,
		opts:     opts,
		fsw:      fsw,
		limiter:  rate.NewLimiter(limit, burst),
		onChange: onChange,
		pending:  map[string]struct{}{},
		batches:  make(chan []string, 16),
	}, nil
}

// Add watches every directory under each workspace-relative dir, skipping
// excluded ones. Missing directories are ignored.
func (w *Watcher) Add(dirs ...string) error {
	for _, d := range dirs {
		abs := filepath.Join(w.root, filepath.FromSlash(d))
		info, err := os.Stat(abs)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return zerr.With(zerr.Wrap(err, "watch: stat"), "dir", d)
		}
		if !info.IsDir() {
			// An archive root; watch the directory holding it.
			abs = filepath.Dir(abs)
		}
		if err := w.addRecursive(abs); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.excluded(p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return zerr.With(zerr.Wrap(err, "watch: add"), "dir", p)
		}
		return nil
	})
}

// Run delivers batches until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.opts.Logger.Warn("closing watcher", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Error("watcher error", "error", err)
		case batch := <-w.batches:
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
			w.onChange(ctx, batch)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	observability.WatchEventsTotal.Inc()
	if w.excluded(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.opts.Logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
				return
			}
			w.enqueueTree(ev.Name)
			return
		}
	}
	if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.schedule(ev.Name)
	}
}

// enqueueTree schedules the files already inside a newly created directory.
func (w *Watcher) enqueueTree(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		w.schedule(p)
		return nil
	})
}

func (w *Watcher) schedule(abs string) {
	rel, ok := w.relative(abs)
	if !ok || !watched[strings.ToLower(filepath.Ext(rel))] {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[string]struct{}{}
	w.mu.Unlock()

	slices.Sort(paths)
	w.batches <- paths
}

func (w *Watcher) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) excluded(abs string) bool {
	rel, ok := w.relative(abs)
	if !ok {
		return true
	}
	return rel != "." && (w.opts.Exclude.Match(rel) || w.opts.Exclude.Match(rel+"/"))
}
