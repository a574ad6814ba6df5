// Package watch re-ingests a run directory while the ENAS job that produces
// it is still writing generations.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"evovis/internal/ingest"
	"evovis/internal/metrics"
	"evovis/internal/run"
	"evovis/internal/session"
)

const DefaultDebounce = 500 * time.Millisecond

type Options struct {
	// Debounce is the quiet period after the last change before a reload.
	Debounce time.Duration
	Load     ingest.Options
	Logger   *zap.Logger
	Metrics  *metrics.Collectors
	// OnReload is called after every load attempt, including the first.
	OnReload func(*run.Run, error)
}

type Watcher struct {
	dir      string
	runID    string
	registry *session.Registry
	opts     Options
	logger   *zap.Logger
	fs       *fsnotify.Watcher
}

func New(dir string, registry *session.Registry, opts Options) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", dir)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	runID := opts.Load.RunID
	if runID == "" {
		runID = filepath.Base(filepath.Clean(dir))
	}
	return &Watcher{
		dir:      dir,
		runID:    runID,
		registry: registry,
		opts:     opts,
		logger:   logger.With(zap.String("run_dir", dir)),
		fs:       fsw,
	}, nil
}

// Run loads the directory once and then reloads it after each burst of
// changes until ctx is done. The underlying file watcher is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	if err := w.addRecursive(w.dir); err != nil {
		return err
	}
	w.reload(ctx)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.opts.Debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload(ctx)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	loaded, err := w.registry.Load(ctx, w.dir, w.opts.Load)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// The previous run stays published while the job is mid-write.
		w.logger.Info("reload skipped", zap.Error(err))
		w.opts.Metrics.ObserveReload(w.runID, false)
	} else {
		w.logger.Debug("run reloaded", zap.String("load_id", loaded.LoadID()))
		w.opts.Metrics.ObserveReload(w.runID, true)
	}
	if w.opts.OnReload != nil {
		w.opts.OnReload(loaded, err)
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignored(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".tmp")
}
