// Package resolver maps declared dependencies to installed directories the
// way Node's require() would find them.
package resolver

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"syscall"
	"time"

	"poitree/internal/core/errors"
	"poitree/internal/data/fsys"
	"poitree/internal/engine/manifest"
	"poitree/internal/engine/tree"
	"poitree/internal/shared/util"

	"github.com/Masterminds/semver/v3"
)

const nodeModules = "node_modules"

type Resolver struct {
	fs fsys.FileSystem
	// roots holds the inspected root as given and, when it differs, with
	// symlinks resolved. Resolved package paths are always real paths.
	roots   []string
	timeout time.Duration
}

// New returns a resolver confined to root. A zero timeout disables the
// per-lookup deadline.
func New(fs fsys.FileSystem, root string, timeout time.Duration) *Resolver {
	root = filepath.Clean(root)
	roots := []string{root}
	if canonical, err := fs.EvalSymlinks(context.Background(), root); err == nil && canonical != root {
		roots = append(roots, canonical)
	}
	return &Resolver{fs: fs, roots: roots, timeout: timeout}
}

// Resolve finds the directory that satisfies desc when required from
// requesterDir. Every outcome except cancellation of ctx is reported in the
// returned Resolution.
func (r *Resolver) Resolve(ctx context.Context, requesterDir string, desc manifest.Descriptor) (tree.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return tree.Resolution{}, err
	}
	res, err := util.RunWithTimeout(ctx, r.timeout, func(ctx context.Context) (tree.Resolution, error) {
		return r.lookup(ctx, requesterDir, desc)
	})
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return tree.Resolution{}, ctx.Err()
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		timeout := errors.NewNode(errors.CodeResolutionTimeout, "resolution timed out", nil)
		timeout.WithContext(errors.CtxPackage, desc.Name).WithContext(errors.CtxTimeout, r.timeout.String())
		return tree.Resolution{Err: timeout}, nil
	}
	return tree.Resolution{}, err
}

func (r *Resolver) lookup(ctx context.Context, requesterDir string, desc manifest.Descriptor) (tree.Resolution, error) {
	expected := desc.ExpectedName()
	if !manifest.ValidName(desc.Name) || !manifest.ValidName(expected) {
		invalid := errors.NewNode(errors.CodeInvalidManifest, "dependency name is not a valid package name", nil)
		invalid.WithContext(errors.CtxPackage, desc.Name)
		return tree.Resolution{Err: invalid}, nil
	}
	for _, dir := range r.Candidates(requesterDir, desc.Name) {
		manifestPath := filepath.Join(dir, manifest.FileName)
		data, err := r.fs.ReadFile(ctx, manifestPath)
		if err != nil {
			if ctx.Err() != nil {
				return tree.Resolution{}, ctx.Err()
			}
			if isMissing(err) {
				continue
			}
			invalid := errors.NewNode(errors.CodeInvalidManifest, "cannot read package.json", err)
			invalid.WithContext(errors.CtxPath, manifestPath)
			return r.resolved(ctx, tree.Resolution{Path: dir, Err: invalid})
		}

		m, err := manifest.Parse(data)
		if err != nil {
			invalid := errors.NewNode(errors.CodeInvalidManifest, "cannot parse package.json", unwrapDomain(err))
			invalid.WithContext(errors.CtxPath, manifestPath)
			return r.resolved(ctx, tree.Resolution{Path: dir, Err: invalid})
		}
		if m.Name != expected {
			slog.Debug("skipping candidate with mismatched name", "path", dir, "package", expected, "found", m.Name)
			continue
		}

		return r.resolved(ctx, tree.Resolution{
			Path:     dir,
			Version:  m.Version,
			Manifest: m,
			Warning:  CheckRange(desc.Range(), m.Version),
		})
	}

	missing := errors.NewNode(errors.CodeNotInstalled, "dependency is not installed", nil)
	missing.WithContext(errors.CtxPackage, desc.Name).WithContext(errors.CtxRange, desc.VersionRange)
	return tree.Resolution{Err: missing}, nil
}

// resolved replaces res.Path with its real path. Node resolves a package's
// own dependencies from where the package really lives, so with pnpm's
// linked node_modules the next lookup must start inside the store.
func (r *Resolver) resolved(ctx context.Context, res tree.Resolution) (tree.Resolution, error) {
	canonical, err := r.fs.EvalSymlinks(ctx, res.Path)
	if err != nil {
		if ctx.Err() != nil {
			return tree.Resolution{}, ctx.Err()
		}
		slog.Debug("keeping unresolved package path", "path", res.Path, "error", err)
		return res, nil
	}
	res.Path = canonical
	return res, nil
}

// Candidates lists <dir>/node_modules/<name> for requesterDir and each of
// its ancestors up to the root, nearest first. Directories that are
// themselves named node_modules are skipped.
func (r *Resolver) Candidates(requesterDir, name string) []string {
	dir := filepath.Clean(requesterDir)
	var out []string
	for {
		if filepath.Base(dir) != nodeModules {
			out = append(out, filepath.Join(dir, nodeModules, name))
		}
		if r.atTop(dir) {
			return out
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return out
		}
		dir = parent
	}
}

// atTop reports whether the upward walk ends at dir: dir is the root or
// lies outside it.
func (r *Resolver) atTop(dir string) bool {
	within := false
	for _, root := range r.roots {
		if dir == root {
			return true
		}
		within = within || util.IsWithin(root, dir)
	}
	return !within
}

// CheckRange returns a RESOLUTION_WARNING when installed does not satisfy
// rng. Ranges or versions that are not semver are not checked.
func CheckRange(rng, installed string) *errors.DomainError {
	if rng == "" || rng == "*" || installed == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(rng)
	if err != nil {
		return nil
	}
	version, err := semver.NewVersion(installed)
	if err != nil {
		return nil
	}
	if constraint.Check(version) {
		return nil
	}
	warning := errors.NewNode(errors.CodeResolutionWarning, "installed version is outside the declared range", nil)
	warning.WithContext(errors.CtxRange, rng).WithContext(errors.CtxVersion, installed)
	return warning
}

func isMissing(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, syscall.ENOTDIR)
}

// unwrapDomain strips the parser's own DomainError so the node annotation
// carries one code.
func unwrapDomain(err error) error {
	if de, ok := errors.As(err); ok && de.Err != nil {
		return de.Err
	}
	return err
}
