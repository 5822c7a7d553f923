// Package watcher reports debounced changes to installed packages: edits to
// package.json files and packages appearing in or leaving node_modules.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"poitree/internal/shared/observability"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

const (
	manifestName = "package.json"
	nodeModules  = "node_modules"
)

type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	debounce     time.Duration
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	nameFilters  map[string]bool
	onChange     func([]string)
	callbackMu   sync.Mutex

	watchedMu sync.Mutex
	watched   map[string]bool
	running   bool

	pending   map[string]time.Time
	pendingMu sync.Mutex
	timer     *time.Timer
}

func NewWatcher(debounce time.Duration, excludeDirs, excludeFiles []string, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}

	compiledDirs := make([]glob.Glob, 0, len(excludeDirs))
	for _, pattern := range excludeDirs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiledDirs = append(compiledDirs, g)
	}

	compiledFiles := make([]glob.Glob, 0, len(excludeFiles))
	for _, pattern := range excludeFiles {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiledFiles = append(compiledFiles, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher:    fsw,
		debounce:     debounce,
		excludeDirs:  compiledDirs,
		excludeFiles: compiledFiles,
		nameFilters:  map[string]bool{manifestName: true},
		onChange:     onChange,
		watched:      make(map[string]bool),
		pending:      make(map[string]time.Time),
	}
	return w, nil
}

// SetFileFilters replaces the file names that trigger a change.
func (w *Watcher) SetFileFilters(names []string) {
	filter := make(map[string]bool, len(names))
	for _, name := range names {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		filter[normalized] = true
	}
	w.nameFilters = filter
}

func (w *Watcher) SetDebounce(debounce time.Duration) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.debounce = debounce
}

// Watch adds dirs without descending into them. Dirs that are excluded,
// missing or already watched are skipped. The event loop starts once the
// first directory is registered.
func (w *Watcher) Watch(dirs []string) error {
	w.watchedMu.Lock()
	for _, dir := range dirs {
		dir = filepath.Clean(dir)
		if w.watched[dir] || w.shouldExcludeDir(dir) {
			continue
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			w.watchedMu.Unlock()
			return err
		}
		w.watched[dir] = true
	}
	start := !w.running && len(w.watched) > 0
	if start {
		w.running = true
	}
	w.watchedMu.Unlock()

	if start {
		go w.run()
	}
	return nil
}

// Watched returns the number of directories currently registered.
func (w *Watcher) Watched() int {
	w.watchedMu.Lock()
	defer w.watchedMu.Unlock()
	return len(w.watched)
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Op&fsnotify.Remove == fsnotify.Remove || event.Op&fsnotify.Rename == fsnotify.Rename {
				w.forget(event.Name)
			}
			if !w.relevant(event.Name) {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Remove == fsnotify.Remove ||
				event.Op&fsnotify.Rename == fsnotify.Rename {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) forget(path string) {
	w.watchedMu.Lock()
	defer w.watchedMu.Unlock()
	delete(w.watched, filepath.Clean(path))
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = time.Now()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		w.flushChanges()
	})
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	if len(paths) > 0 {
		w.callbackMu.Lock()
		defer w.callbackMu.Unlock()
		w.onChange(paths)
	}
}

// relevant accepts manifest edits and entries directly inside node_modules,
// including scoped packages one level below an @scope directory.
func (w *Watcher) relevant(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeFiles {
		if g.Match(base) {
			return false
		}
	}
	if w.nameFilters[strings.ToLower(base)] {
		return true
	}
	if w.shouldExcludeDir(path) {
		return false
	}

	parent := filepath.Dir(path)
	if filepath.Base(parent) == nodeModules {
		return true
	}
	return strings.HasPrefix(filepath.Base(parent), "@") && filepath.Base(filepath.Dir(parent)) == nodeModules
}

func (w *Watcher) shouldExcludeDir(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}
