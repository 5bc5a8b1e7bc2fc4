package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 300 * time.Millisecond

type Config struct {
	Root     string
	Debounce time.Duration
	// SkipDir reports whether a directory must not be watched.
	SkipDir func(name string) bool
	// OnChange receives the sorted set of paths touched since the last run.
	OnChange func(ctx context.Context, changed []string) error
	OnError  func(err error)
	Log      *zap.SugaredLogger
}

// Run watches Root recursively and calls OnChange once the tree has been
// quiet for Debounce. It blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	if cfg.OnChange == nil {
		return errors.New("watch: OnChange is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.OnError == nil {
		log := cfg.Log
		cfg.OnError = func(err error) { log.Warnw("watch error", "error", err) }
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root must be a directory: %s", cfg.Root)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := addRecursive(w, root, cfg.SkipDir); err != nil {
		return err
	}
	cfg.Log.Infow("watching", "root", root, "dirs", len(w.WatchList()))

	var timer *time.Timer
	var fire <-chan time.Time
	pending := map[string]struct{}{}
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				stop()
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Lstat(ev.Name); err == nil && fi.IsDir() {
					if skip(cfg.SkipDir, filepath.Base(ev.Name)) {
						continue
					}
					if err := addRecursive(w, ev.Name, cfg.SkipDir); err != nil {
						cfg.OnError(err)
					}
				}
			}
			pending[ev.Name] = struct{}{}
			stop()
			timer = time.NewTimer(cfg.Debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]struct{}{}
			cfg.Log.Debugw("change detected", "paths", len(changed))
			if err := cfg.OnChange(ctx, changed); err != nil {
				cfg.OnError(err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				stop()
				return nil
			}
			cfg.OnError(err)
		}
	}
}

func addRecursive(w *fsnotify.Watcher, root string, skipDir func(string) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skip(skipDir, d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func skip(fn func(string) bool, name string) bool {
	return fn != nil && fn(name)
}
