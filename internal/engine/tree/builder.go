package tree

import (
	"context"
	"fmt"
	"log/slog"

	"poitree/internal/core/errors"
	"poitree/internal/engine/manifest"

	"golang.org/x/sync/errgroup"
)

// Resolver maps a descriptor requested from requesterDir to an installed
// directory. Node-local failures are carried in the Resolution; a non-nil
// error aborts the build.
type Resolver interface {
	Resolve(ctx context.Context, requesterDir string, desc manifest.Descriptor) (Resolution, error)
}

type Options struct {
	Kinds manifest.DependencyKinds
	// MaxDepth stops expansion below this depth; 0 means unlimited.
	MaxDepth int
	// Concurrency bounds in-flight resolutions per level.
	Concurrency int
}

type Builder struct {
	resolver Resolver
	opts     Options
}

func NewBuilder(resolver Resolver, opts Options) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	return &Builder{resolver: resolver, opts: opts}
}

type visitKey struct {
	name string
	path string
}

type pending struct {
	node   *Node
	parent *Node
	desc   manifest.Descriptor
	res    Resolution
}

// Build expands the tree rooted at rootDir breadth-first. Each level is
// resolved concurrently and then claimed sequentially in tree order, so the
// expanded occurrence of a shared package is always the shallowest,
// left-most one and every later occurrence is a back-reference.
func (b *Builder) Build(ctx context.Context, rootDir string, rootManifest *manifest.Manifest) (*Node, error) {
	if rootDir == "" {
		return nil, errors.New(errors.CodeValidationError, "root directory is required")
	}
	if rootManifest == nil {
		return nil, errors.New(errors.CodeInvalidManifest, "root manifest is required")
	}

	root := &Node{
		Name:             rootManifest.Name,
		VersionRange:     rootManifest.Version,
		Kind:             manifest.KindProd,
		ResolvedPath:     rootDir,
		InstalledVersion: rootManifest.Version,
	}
	visited := map[visitKey]bool{{name: rootManifest.Name, path: rootDir}: true}

	level := b.expand(root, rootManifest)
	for len(level) > 0 {
		if err := b.resolveLevel(ctx, level); err != nil {
			return nil, err
		}

		var next []*pending
		for _, p := range level {
			n := p.node
			n.ResolvedPath = p.res.Path
			n.InstalledVersion = p.res.Version
			n.ResolutionError = p.res.Err
			n.ResolutionWarning = p.res.Warning
			if !n.IsResolved() {
				continue
			}

			key := visitKey{name: p.desc.ExpectedName(), path: n.ResolvedPath}
			if visited[key] {
				n.BackReference = true
				continue
			}
			visited[key] = true

			if p.res.Manifest == nil {
				continue
			}
			if b.opts.MaxDepth > 0 && n.Depth >= b.opts.MaxDepth {
				n.Truncated = len(p.res.Manifest.Descriptors(b.opts.Kinds)) > 0
				continue
			}
			next = append(next, b.expand(n, p.res.Manifest)...)
		}
		slog.Debug("tree level built", "nodes", len(level), "next", len(next))
		level = next
	}
	return root, nil
}

// expand creates parent's children from m in declaration order.
func (b *Builder) expand(parent *Node, m *manifest.Manifest) []*pending {
	descs := m.Descriptors(b.opts.Kinds)
	if len(descs) == 0 {
		return nil
	}
	out := make([]*pending, 0, len(descs))
	parent.Children = make([]*Node, 0, len(descs))
	for _, d := range descs {
		child := &Node{
			Name:         d.Name,
			VersionRange: d.VersionRange,
			Kind:         d.Kind,
			Depth:        parent.Depth + 1,
		}
		parent.Children = append(parent.Children, child)
		out = append(out, &pending{node: child, parent: parent, desc: d})
	}
	return out
}

// resolveLevel fills in p.res for every pending node. Each goroutine writes
// only its own slot.
func (b *Builder) resolveLevel(ctx context.Context, level []*pending) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for _, p := range level {
		p := p
		g.Go(func() error {
			res, err := b.resolver.Resolve(gctx, p.parent.ResolvedPath, p.desc)
			if err != nil {
				return fmt.Errorf("resolve %s from %s: %w", p.desc.Name, p.parent.ResolvedPath, err)
			}
			p.res = res
			return nil
		})
	}
	return g.Wait()
}
