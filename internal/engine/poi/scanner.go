// Package poi scans installed package directories for points of interest
// and attaches the findings to the dependency tree.
package poi

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"poitree/internal/core/errors"
	"poitree/internal/data/fsys"
	"poitree/internal/engine/manifest"
	"poitree/internal/engine/tree"
	"poitree/internal/shared/observability"
	"poitree/internal/shared/util"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	// Depth is how many levels of subdirectories are entered below a
	// package directory.
	Depth       int
	Concurrency int
	Timeout     time.Duration
	ExcludeDirs []string
	Rules       Rules
}

type Scanner struct {
	fs       fsys.FileSystem
	opts     Options
	excludes []glob.Glob
	licenses []glob.Glob
	native   map[string]bool
	js       *jsAnalyzer

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]result
}

type result struct {
	pois []tree.PointOfInterest
	err  *errors.DomainError
}

func New(fs fsys.FileSystem, opts Options) (*Scanner, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	if opts.Rules.OversizedBytes <= 0 {
		opts.Rules.OversizedBytes = DefaultOversizedBytes
	}
	if opts.Rules.MaxParseBytes <= 0 {
		opts.Rules.MaxParseBytes = DefaultMaxParseBytes
	}

	excludes, err := util.CompileGlobs(opts.ExcludeDirs, "exclude", false)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid scan exclude")
	}
	licenses, err := util.CompileGlobs(opts.Rules.LicenseGlobs, "license", true)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid license glob")
	}

	s := &Scanner{
		fs:       fs,
		opts:     opts,
		excludes: excludes,
		licenses: licenses,
		native:   make(map[string]bool, len(opts.Rules.NativeExtensions)),
		cache:    make(map[string]result),
	}
	for _, ext := range opts.Rules.NativeExtensions {
		s.native[strings.ToLower(ext)] = true
	}
	if opts.Rules.JavaScript && len(opts.Rules.ProcessModules) > 0 {
		s.js = newJSAnalyzer(opts.Rules.ProcessModules)
	}
	return s, nil
}

// ScanTree scans every resolved node, root included, and writes POIs or
// ScanError onto it. Failures are node-local; only cancellation of ctx is
// returned.
func (s *Scanner) ScanTree(ctx context.Context, root *tree.Node) error {
	var nodes []*tree.Node
	tree.Walk(root, func(n *tree.Node) bool {
		if n.IsResolved() {
			nodes = append(nodes, n)
		}
		return true
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			res := s.scanNode(gctx, n.ResolvedPath)
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(res.pois) > 0 {
				n.POIs = append([]tree.PointOfInterest(nil), res.pois...)
			}
			n.ScanError = res.err
			return nil
		})
	}
	return g.Wait()
}

// scanNode memoizes per directory so hoisted packages reached from many
// tree positions are scanned once.
func (s *Scanner) scanNode(ctx context.Context, dir string) result {
	s.mu.Lock()
	if cached, ok := s.cache[dir]; ok {
		s.mu.Unlock()
		observability.ScanCacheHitsTotal.Inc()
		return cached
	}
	s.mu.Unlock()

	v, _, _ := s.group.Do(dir, func() (any, error) {
		s.mu.Lock()
		cached, ok := s.cache[dir]
		s.mu.Unlock()
		if ok {
			return cached, nil
		}
		res := s.scanWithTimeout(ctx, dir)
		if ctx.Err() == nil {
			s.mu.Lock()
			s.cache[dir] = res
			s.mu.Unlock()
		}
		return res, nil
	})
	return v.(result)
}

func (s *Scanner) scanWithTimeout(ctx context.Context, dir string) result {
	pois, err := util.RunWithTimeout(ctx, s.opts.Timeout, func(ctx context.Context) ([]tree.PointOfInterest, error) {
		return s.ScanDir(ctx, dir)
	})
	if err == nil {
		return result{pois: pois}
	}
	if ctx.Err() != nil {
		return result{}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		timeout := errors.NewNode(errors.CodeScanTimeout, "scan timed out", nil)
		timeout.WithContext(errors.CtxPath, dir).WithContext(errors.CtxTimeout, s.opts.Timeout.String())
		return result{err: timeout}
	}
	slog.Warn("scan failed", "path", dir, "error", err)
	scanErr := errors.NewNode(errors.CodeScanError, "scan failed", err)
	scanErr.WithContext(errors.CtxPath, dir)
	return result{err: scanErr}
}

// ScanDir classifies the files of one package directory and returns the
// findings sorted by (kind, path). Any filesystem error aborts the scan.
func (s *Scanner) ScanDir(ctx context.Context, dir string) ([]tree.PointOfInterest, error) {
	m, err := manifest.Read(ctx, s.fs, dir)
	if err != nil {
		switch {
		case stderrors.Is(err, fs.ErrNotExist), errors.IsCode(err, errors.CodeInvalidManifest):
			// Reported by the resolver; only file rules apply.
			m = nil
		default:
			return nil, fmt.Errorf("read manifest: %w", err)
		}
	}

	w := &walk{scanner: s}
	if err := w.dir(ctx, dir, 0); err != nil {
		return nil, err
	}

	pois := append(w.pois, installScripts(dir, m, s.opts.Rules.InstallHooks, w.gyp)...)
	tree.SortPOIs(pois)
	return pois, nil
}

// walk accumulates findings for a single ScanDir call.
type walk struct {
	scanner *Scanner
	pois    []tree.PointOfInterest
	// gyp is set when binding.gyp sits at the package root.
	gyp bool
}

func (w *walk) dir(ctx context.Context, dir string, level int) error {
	s := w.scanner
	entries, err := s.fs.ReadDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)
		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			continue
		case entry.IsDir():
			if name == "node_modules" || util.MatchAny(s.excludes, name) || level >= s.opts.Depth {
				continue
			}
			if err := w.dir(ctx, path, level+1); err != nil {
				return err
			}
		default:
			if err := w.file(ctx, path, name, level); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walk) file(ctx context.Context, path, name string, level int) error {
	s := w.scanner
	info, err := s.fs.Stat(ctx, path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	size := info.Size()
	rules := s.opts.Rules

	if name == BindingGyp && level == 0 {
		w.gyp = true
	}
	if hasExtension(name, s.native) {
		w.pois = append(w.pois, nativeBinary(path, size))
	}
	if size > rules.OversizedBytes {
		w.pois = append(w.pois, oversizedFile(path, size, rules.OversizedBytes))
	}
	if s.isLicenseFile(name) {
		if size > rules.MaxParseBytes {
			slog.Debug("skipping license file above parse limit", "path", path, "bytes", size)
		} else {
			content, err := s.fs.ReadFile(ctx, path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if reason := licenseSuspicion(content); reason != "" {
				w.pois = append(w.pois, licenseFile(path, reason))
			}
		}
	}
	if s.js != nil && hasExtension(name, javascriptExtensions) && size <= rules.MaxParseBytes {
		content, err := s.fs.ReadFile(ctx, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if imp, ok := s.js.Find(content); ok {
			w.pois = append(w.pois, childProcess(path, imp))
		}
	}
	return nil
}

func (s *Scanner) isLicenseFile(name string) bool {
	return util.MatchAny(s.licenses, strings.ToLower(name)) && !hasExtension(name, sourceExtensions)
}
