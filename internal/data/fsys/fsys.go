// Package fsys is the read-only filesystem boundary shared by every pipeline
// stage. Tests substitute fault-injecting implementations.
package fsys

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"poitree/internal/shared/observability"
	"poitree/internal/shared/util"

	"golang.org/x/sync/semaphore"
)

// FileSystem is the read-only subset of the OS the pipeline needs. Every
// call is a suspension point and honours ctx where the implementation can.
type FileSystem interface {
	Stat(ctx context.Context, path string) (fs.FileInfo, error)
	ReadDir(ctx context.Context, path string) ([]fs.DirEntry, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// EvalSymlinks returns path with every symbolic link resolved.
	EvalSymlinks(ctx context.Context, path string) (string, error)
}

// OS reads directly from the host filesystem.
type OS struct{}

func (OS) Stat(ctx context.Context, path string) (fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Stat(path)
}

func (OS) ReadDir(ctx context.Context, path string) ([]fs.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadDir(path)
}

func (OS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (OS) EvalSymlinks(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(path)
}

// Instrumented counts operations, optionally throttles them and caps how
// many are in flight at once. A call abandoned by a caller's timeout keeps its
// slot until the inner call returns.
type Instrumented struct {
	inner   FileSystem
	limiter *util.Limiter
	open    *semaphore.Weighted
}

// NewInstrumented wraps inner. A nil limiter disables throttling and
// maxOpen <= 0 leaves in-flight calls unbounded.
func NewInstrumented(inner FileSystem, limiter *util.Limiter, maxOpen int) *Instrumented {
	if inner == nil {
		inner = OS{}
	}
	f := &Instrumented{inner: inner, limiter: limiter}
	if maxOpen > 0 {
		f.open = semaphore.NewWeighted(int64(maxOpen))
	}
	return f
}

func (f *Instrumented) Stat(ctx context.Context, path string) (fs.FileInfo, error) {
	if err := f.admit(ctx, "stat"); err != nil {
		return nil, err
	}
	defer f.release()
	return f.inner.Stat(ctx, path)
}

func (f *Instrumented) ReadDir(ctx context.Context, path string) ([]fs.DirEntry, error) {
	if err := f.admit(ctx, "readdir"); err != nil {
		return nil, err
	}
	defer f.release()
	return f.inner.ReadDir(ctx, path)
}

func (f *Instrumented) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := f.admit(ctx, "readfile"); err != nil {
		return nil, err
	}
	defer f.release()
	return f.inner.ReadFile(ctx, path)
}

func (f *Instrumented) EvalSymlinks(ctx context.Context, path string) (string, error) {
	if err := f.admit(ctx, "realpath"); err != nil {
		return "", err
	}
	defer f.release()
	return f.inner.EvalSymlinks(ctx, path)
}

// admit waits for a rate token and then for a free slot. On error no slot
// is held.
func (f *Instrumented) admit(ctx context.Context, op string) error {
	observability.FSOpsTotal.WithLabelValues(op).Inc()
	if err := f.limiter.Wait(ctx, 1); err != nil {
		return err
	}
	if f.open == nil {
		return nil
	}
	return f.open.Acquire(ctx, 1)
}

func (f *Instrumented) release() {
	if f.open != nil {
		f.open.Release(1)
	}
}

// Exists reports whether path can be stat'ed. Errors other than not-exist
// are returned so callers can tell a missing entry from an unreadable one.
func Exists(ctx context.Context, fsys FileSystem, path string) (bool, error) {
	_, err := fsys.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
