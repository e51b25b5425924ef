package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces the burst of events editors produce on save.
const defaultDebounce = 500 * time.Millisecond

// fileWatcher calls a callback when any of a set of files changes.
//
// Directories are watched rather than the files themselves so that
// atomic saves (write to temp file, rename over the original) and
// Kubernetes ConfigMap symlink swaps are seen.
type fileWatcher struct {
	logger   *slog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	targets map[string]func() // cleaned path -> callback
	timers  map[string]*time.Timer
}

func newFileWatcher(logger *slog.Logger) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	return &fileWatcher{
		logger:   logger,
		debounce: defaultDebounce,
		watcher:  w,
		targets:  make(map[string]func()),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Watch registers fn to run after path changes.
func (fw *fileWatcher) Watch(path string, fn func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	fw.mu.Lock()
	fw.targets[abs] = fn
	fw.mu.Unlock()

	if err := fw.watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	fw.logger.Debug("watching file", "path", abs)
	return nil
}

// Close releases the underlying watcher. Run closes it on return, so Close
// is only needed when Run is never started.
func (fw *fileWatcher) Close() error {
	return fw.watcher.Close()
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (fw *fileWatcher) Run(ctx context.Context) {
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			fw.stopTimers()
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (fw *fileWatcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	name := filepath.Clean(event.Name)
	fn, ok := fw.targets[name]
	if !ok {
		// ConfigMap updates swap a "..data" symlink in the same directory.
		if filepath.Base(name) != "..data" {
			return
		}
		dir := filepath.Dir(name)
		for path, target := range fw.targets {
			if filepath.Dir(path) == dir {
				fw.schedule(path, target)
			}
		}
		return
	}
	fw.schedule(name, fn)
}

// schedule runs fn once events for path have been quiet for the debounce
// window. Callers hold fw.mu.
func (fw *fileWatcher) schedule(path string, fn func()) {
	if t, ok := fw.timers[path]; ok {
		t.Stop()
	}
	fw.timers[path] = time.AfterFunc(fw.debounce, func() {
		fw.logger.Info("file changed", "path", path)
		fn()
	})
}

func (fw *fileWatcher) stopTimers() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for _, t := range fw.timers {
		t.Stop()
	}
}
