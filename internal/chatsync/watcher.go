package chatsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// watcherTick is how often pending filesystem activity is checked.
	watcherTick = 500 * time.Millisecond

	// defaultQuietPeriod is how long session files must stay untouched
	// before a sync is triggered. Chat sessions are written in bursts
	// while a response streams in.
	defaultQuietPeriod = 3 * time.Second
)

// TriggerFunc starts a sync. It is called from the watcher goroutine.
type TriggerFunc func(ctx context.Context, reason string)

// Watcher monitors a FileSource root for session file changes and
// triggers a sync once activity settles.
type Watcher struct {
	root    string
	trigger TriggerFunc
	logger  *slog.Logger
	quiet   time.Duration
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over root that calls trigger.
func NewWatcher(root string, trigger TriggerFunc, logger *slog.Logger) *Watcher {
	return &Watcher{root: root, trigger: trigger, logger: logger, quiet: defaultQuietPeriod}
}

// Watch blocks until ctx is cancelled. Workspace and session directories
// created while watching are picked up.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = watcher
	defer watcher.Close()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("watching %s: %w", w.root, err)
	}

	w.logger.Info("file watcher started", slog.String("dir", w.root))

	var lastEvent time.Time

	ticker := time.NewTicker(watcherTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if event.Has(fsnotify.Create) {
				info, err := os.Lstat(event.Name)
				if err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
					_ = w.addRecursive(event.Name)
					continue
				}
			}

			if !isSessionFile(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				lastEvent = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			if lastEvent.IsZero() || time.Since(lastEvent) < w.quiet {
				continue
			}

			lastEvent = time.Time{}
			w.trigger(ctx, "file change")
		}
	}
}

// addRecursive watches dir and the directories below it, down to the
// session directories. Symlinked directories are skipped.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if d.Type()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			return err
		}

		// Nothing of interest lives below a session directory.
		if d.Name() == sessionsSubdir {
			return filepath.SkipDir
		}

		return nil
	})
}

func isSessionFile(path string) bool {
	if filepath.Base(filepath.Dir(path)) != sessionsSubdir {
		return false
	}

	_, _, ok := parseSessionName(filepath.Base(path))

	return ok
}
