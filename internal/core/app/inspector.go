package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"poitree/internal/core/config"
	"poitree/internal/core/errors"
	"poitree/internal/core/ports"
	"poitree/internal/data/fsys"
	"poitree/internal/data/history"
	"poitree/internal/engine/manifest"
	"poitree/internal/engine/poi"
	"poitree/internal/engine/resolver"
	"poitree/internal/engine/tree"
	"poitree/internal/shared/observability"
	"poitree/internal/shared/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	stageManifest = "manifest"
	stageBuild    = "build"
	stageScan     = "scan"
	stageHistory  = "history"
)

// Dependencies are the adapters an Inspector drives. A nil FileSystem means
// the host filesystem; a nil History disables snapshots. Resolver and
// Scanner replace the node_modules resolver and the POI scanner built for
// each run.
type Dependencies struct {
	FileSystem fsys.FileSystem
	History    ports.HistoryStore
	Resolver   ports.Resolver
	Scanner    ports.Scanner
	// ProjectKey groups history snapshots; defaults to the inspected root.
	ProjectKey string
}

type Inspector struct {
	cfg  *config.Config
	deps Dependencies
	fs   fsys.FileSystem

	mu   sync.RWMutex
	last *Report
}

func New(cfg *config.Config) (*Inspector, error) {
	return NewWithDependencies(cfg, Dependencies{})
}

func NewWithDependencies(cfg *config.Config, deps Dependencies) (*Inspector, error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeValidationError, "config is required")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	inner := deps.FileSystem
	if inner == nil {
		inner = fsys.OS{}
	}
	limiter := util.NewLimiter(cfg.Scan.OpsPerSecond, cfg.Scan.Concurrency)
	return &Inspector{
		cfg:  cfg,
		deps: deps,
		fs:   fsys.NewInstrumented(inner, limiter, cfg.Scan.Concurrency),
	}, nil
}

func (i *Inspector) Config() *config.Config {
	return i.cfg
}

// LastReport returns the most recent successful inspection, or nil.
func (i *Inspector) LastReport() *Report {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.last
}

// Inspect runs the manifest, build and scan stages against rootDir. Only
// failures that prevent the tree from existing are returned; everything
// else is recorded on the nodes.
func (i *Inspector) Inspect(ctx context.Context, rootDir string) (*Report, error) {
	ctx, span := observability.Tracer.Start(ctx, "Inspector.Inspect",
		trace.WithAttributes(attribute.String("root", rootDir)))
	defer span.End()

	if rootDir == "" {
		return nil, errors.New(errors.CodeValidationError, "root directory is required")
	}
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "resolve root directory")
	}
	// Resolved package paths are real paths; the root must match them.
	if canonical, err := i.fs.EvalSymlinks(ctx, root); err == nil {
		root = canonical
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Root:      root,
		StartedAt: time.Now().UTC(),
	}

	var rootManifest *manifest.Manifest
	err = i.stage(ctx, stageManifest, func(ctx context.Context) error {
		m, err := manifest.Read(ctx, i.fs, root)
		if err != nil {
			return rootManifestError(root, err)
		}
		rootManifest = m
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	err = i.stage(ctx, stageBuild, func(ctx context.Context) error {
		builder := tree.NewBuilder(i.resolverFor(root), tree.Options{
			Kinds: manifest.DependencyKinds{
				Optional: i.cfg.Dependencies.IncludeOptional,
				Dev:      i.cfg.Dependencies.IncludeDev,
				Peer:     i.cfg.Dependencies.IncludePeer,
			},
			MaxDepth:    i.cfg.Tree.MaxDepth,
			Concurrency: i.cfg.Scan.Concurrency,
		})
		t, err := builder.Build(ctx, root, rootManifest)
		if err != nil {
			return err
		}
		report.Tree = t
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	err = i.stage(ctx, stageScan, func(ctx context.Context) error {
		scanner, err := i.scanner()
		if err != nil {
			return err
		}
		return scanner.ScanTree(ctx, report.Tree)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report.Stats = tree.ComputeStats(report.Tree)
	report.Duration = time.Since(report.StartedAt)
	recordMetrics(report.Stats)
	span.SetAttributes(
		attribute.Int("nodes", report.Stats.Nodes),
		attribute.Int("issues", report.Stats.Issues),
		attribute.Int("pois", report.Stats.TotalPOIs),
	)

	if i.deps.History != nil {
		_ = i.stage(ctx, stageHistory, func(context.Context) error {
			trend, err := i.recordHistory(report, rootManifest)
			if err != nil {
				slog.Warn("failed to record inspection history", "path", root, "error", err)
				return err
			}
			report.Trend = trend
			return nil
		})
	}

	slog.Info("inspection complete",
		"path", root,
		"nodes", report.Stats.Nodes,
		"issues", report.Stats.Issues,
		"pois", report.Stats.TotalPOIs,
		"duration", report.Duration,
	)

	i.mu.Lock()
	i.last = report
	i.mu.Unlock()
	return report, nil
}

func (i *Inspector) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := observability.Tracer.Start(ctx, "inspect."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	observability.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (i *Inspector) resolverFor(root string) ports.Resolver {
	if i.deps.Resolver != nil {
		return i.deps.Resolver
	}
	return resolver.New(i.fs, root, i.cfg.Scan.Timeout)
}

func (i *Inspector) scanner() (ports.Scanner, error) {
	if i.deps.Scanner != nil {
		return i.deps.Scanner, nil
	}
	s, err := poi.New(i.fs, i.scanOptions())
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (i *Inspector) scanOptions() poi.Options {
	r := i.cfg.Rules
	return poi.Options{
		Depth:       i.cfg.Scan.Depth,
		Concurrency: i.cfg.Scan.Concurrency,
		Timeout:     i.cfg.Scan.Timeout,
		ExcludeDirs: i.cfg.Scan.ExcludeDirs,
		Rules: poi.Rules{
			OversizedBytes:   r.OversizedBytes,
			NativeExtensions: r.NativeExtensions,
			InstallHooks:     r.InstallHooks,
			LicenseGlobs:     r.LicenseGlobs,
			ProcessModules:   r.ProcessModules,
			JavaScript:       r.JavaScriptEnabled(),
			MaxParseBytes:    r.MaxParseBytes,
		},
	}
}

// rootManifestError classifies a failure to read the root package.json. The
// root is not a node, so these are fatal.
func rootManifestError(root string, err error) error {
	if de, ok := errors.As(err); ok && de.Code == errors.CodeInvalidManifest {
		return de.WithContext(errors.CtxPath, filepath.Join(root, manifest.FileName))
	}
	code := errors.CodeInternal
	switch {
	case isNotExist(err):
		code = errors.CodeNotFound
	case isPermission(err):
		code = errors.CodePermissionDenied
	}
	wrapped := errors.Wrap(err, code, "cannot read root manifest")
	return errors.AddContext(wrapped, errors.CtxPath, filepath.Join(root, manifest.FileName))
}

func recordMetrics(stats tree.Stats) {
	observability.NodesTotal.Add(float64(stats.Nodes))
	observability.LastTreeNodes.Set(float64(stats.Nodes))
	for kind, n := range stats.POIs {
		observability.POIsTotal.WithLabelValues(kind).Add(float64(n))
	}
	for code, n := range stats.Codes {
		observability.NodeIssuesTotal.WithLabelValues(string(code)).Add(float64(n))
	}
}

func (i *Inspector) recordHistory(report *Report, rootManifest *manifest.Manifest) (*history.Trend, error) {
	key := i.deps.ProjectKey
	if key == "" {
		key = report.Root
	}
	snapshot := SnapshotFromReport(report, rootManifest)
	if recorder, ok := i.deps.History.(ports.TrendRecorder); ok {
		trend, err := recorder.Record(key, snapshot)
		if err != nil {
			return nil, fmt.Errorf("record snapshot: %w", err)
		}
		return &trend, nil
	}
	if err := i.deps.History.SaveSnapshot(key, snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return nil, nil
}
