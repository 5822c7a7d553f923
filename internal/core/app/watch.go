package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"poitree/internal/core/ports"
	"poitree/internal/core/watcher"
	"poitree/internal/engine/manifest"
	"poitree/internal/engine/poi"
	"poitree/internal/engine/tree"
)

type watchService struct {
	inspector *Inspector
	root      string

	mu       sync.RWMutex
	handlers []func(ports.WatchUpdate)
	watcher  *watcher.Watcher
	ctx      context.Context
}

var _ ports.WatchService = (*watchService)(nil)

// WatchService re-inspects root whenever a manifest or an installed package
// under it changes.
func (i *Inspector) WatchService(root string) ports.WatchService {
	return &watchService{inspector: i, root: root}
}

// Start runs the first inspection, publishes it and begins watching. It
// returns once the watcher is running; ctx bounds every later run.
func (s *watchService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		return fmt.Errorf("watch service already started")
	}
	cfg := s.inspector.cfg
	w, err := watcher.NewWatcher(cfg.Watch.Debounce, cfg.Scan.ExcludeDirs, cfg.Watch.Exclude, s.handleChanges)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create watcher: %w", err)
	}
	w.SetFileFilters([]string{manifest.FileName, poi.BindingGyp})
	s.watcher = w
	s.ctx = ctx
	s.mu.Unlock()

	s.rerun(ctx, nil)
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return nil
}

func (s *watchService) Subscribe(ctx context.Context, handler func(ports.WatchUpdate)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
	return nil
}

func (s *watchService) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (s *watchService) handleChanges(paths []string) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	sort.Strings(paths)
	slog.Info("package changes detected", "paths", len(paths))
	s.rerun(ctx, paths)
}

func (s *watchService) rerun(ctx context.Context, paths []string) {
	update := ports.WatchUpdate{Paths: paths}
	report, err := s.inspector.Inspect(ctx, s.root)
	if err != nil {
		slog.Error("re-inspection failed", "path", s.root, "error", err)
		update.Err = err
		s.watchTree(nil)
	} else {
		update.Input = report.RenderInput()
		update.Issues = report.IssueCount()
		s.watchTree(report.Tree)
	}

	s.mu.RLock()
	handlers := append([]func(ports.WatchUpdate){}, s.handlers...)
	s.mu.RUnlock()
	for _, h := range handlers {
		h(update)
	}
}

// watchTree registers the root, every resolved package directory and their
// node_modules. Directories already watched are skipped by the watcher.
func (s *watchService) watchTree(root *tree.Node) {
	s.mu.RLock()
	w := s.watcher
	s.mu.RUnlock()
	if w == nil {
		return
	}

	seen := make(map[string]bool)
	var dirs []string
	if abs, err := filepath.Abs(s.root); err == nil {
		seen[abs] = true
		dirs = append(dirs, abs, filepath.Join(abs, "node_modules"))
	}
	tree.Walk(root, func(n *tree.Node) bool {
		if !n.IsResolved() || seen[n.ResolvedPath] {
			return true
		}
		seen[n.ResolvedPath] = true
		dirs = append(dirs, n.ResolvedPath, filepath.Join(n.ResolvedPath, "node_modules"))
		return true
	})
	if err := w.Watch(dirs); err != nil {
		slog.Warn("failed to watch package directories", "error", err)
	}
}
