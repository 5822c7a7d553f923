package cli

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"poitree/internal/core/app"
	"poitree/internal/core/config"
	"poitree/internal/core/errors"
	"poitree/internal/core/ports"
	"poitree/internal/data/fsys"
	"poitree/internal/data/history"
	"poitree/internal/engine/manifest"
	"poitree/internal/shared/observability"
	"poitree/internal/shared/version"
	"poitree/internal/ui/report"
)

const (
	exitClean  = 0
	exitIssues = 1
	exitFatal  = 2
)

func Run(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return exitClean
		}
		return exitFatal
	}

	if opts.version {
		fmt.Fprintf(stdout, "poitree %s\n", version.Version)
		return exitClean
	}

	cleanupLogs := configureLogging(stderr, opts.ui, opts.verbose)
	defer cleanupLogs()

	if len(opts.args) != 1 {
		fmt.Fprintln(stderr, usageLine)
		return exitFatal
	}
	root, err := validateRoot(opts.args[0])
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitFatal
	}

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return exitFatal
	}

	cfg, err := config.LoadOrDefault(opts.configPath, cwd, root)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFatal
	}
	applyFlagOverrides(opts, cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitFatal
	}

	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Observability.OTLPEndpoint)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	deps := app.Dependencies{}
	if store := openHistoryStoreIfEnabled(cfg, paths); store != nil {
		defer store.Close()
		deps.History = store
	}

	inspector, err := app.NewWithDependencies(cfg, deps)
	if err != nil {
		slog.Error("failed to initialize inspector", "error", err)
		return exitFatal
	}

	if cfg.Observability.Enabled {
		server := NewObservabilityServer(cfg.Observability.Address, app.NewHealthService(inspector))
		if err := server.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
			return exitFatal
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}()
	}

	switch {
	case opts.ui:
		if err := runUI(ctx, inspector, root); err != nil {
			slog.Error("failed to run UI", "error", err)
			return exitFatal
		}
		return exitClean
	case opts.watch:
		return runWatch(ctx, inspector, root, paths.OutputPath, stdout)
	}

	rep, err := inspector.Inspect(ctx, root)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitFatal
	}
	if err := report.Write(stdout, paths.OutputPath, cfg.Output.Format, rep.RenderInput()); err != nil {
		slog.Error("failed to write report", "error", err)
		return exitFatal
	}
	if rep.IssueCount() > 0 {
		return exitIssues
	}
	return exitClean
}

// validateRoot requires an existing directory containing package.json and
// returns its absolute path.
func validateRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("resolve %q", dir))
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New(errors.CodeNotFound, fmt.Sprintf("directory %s does not exist", abs))
		}
		return "", errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("stat %s", abs))
	}
	if !info.IsDir() {
		return "", errors.New(errors.CodeValidationError, fmt.Sprintf("%s is not a directory", abs))
	}
	ok, err := fsys.Exists(context.Background(), fsys.OS{}, filepath.Join(abs, manifest.FileName))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("stat %s", manifest.FileName))
	}
	if !ok {
		return "", errors.New(errors.CodeNotFound, fmt.Sprintf("%s has no %s", abs, manifest.FileName))
	}
	return abs, nil
}

func applyFlagOverrides(opts cliOptions, cfg *config.Config) {
	if opts.set["format"] {
		cfg.Output.Format = opts.format
	}
	if opts.set["output"] {
		cfg.Output.Path = opts.output
	}
	if opts.set["include-dev"] {
		cfg.Dependencies.IncludeDev = opts.includeDev
	}
	if opts.set["include-peer"] {
		cfg.Dependencies.IncludePeer = opts.includePeer
	}
	if opts.set["include-optional"] {
		cfg.Dependencies.IncludeOptional = opts.includeOptional
	}
	if opts.set["depth"] {
		cfg.Tree.MaxDepth = opts.depth
	}
	if opts.set["scan-depth"] {
		cfg.Scan.Depth = opts.scanDepth
	}
	if opts.set["concurrency"] {
		cfg.Scan.Concurrency = opts.concurrency
	}
	if opts.set["timeout"] {
		cfg.Scan.Timeout = opts.timeout
	}
	if opts.set["oversized"] {
		cfg.Rules.OversizedBytes = opts.oversized
	}
	if opts.history {
		cfg.History.Enabled = true
	}
	if opts.metricsAddr != "" {
		cfg.Observability.Enabled = true
		cfg.Observability.Address = opts.metricsAddr
	}
}

// openHistoryStoreIfEnabled returns nil when history is off or the store
// cannot be opened; a broken history database never blocks an inspection.
func openHistoryStoreIfEnabled(cfg *config.Config, paths config.ResolvedPaths) *history.Adapter {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(paths.HistoryPath)
	if err != nil {
		slog.Warn("history disabled", "path", paths.HistoryPath, "error", err)
		return nil
	}
	return history.NewAdapter(store)
}

func runWatch(ctx context.Context, inspector *app.Inspector, root, outputPath string, stdout io.Writer) int {
	format := inspector.Config().Output.Format
	watch := inspector.WatchService(root)
	err := watch.Subscribe(ctx, func(u ports.WatchUpdate) {
		if u.Err != nil {
			slog.Error("inspection failed", "error", u.Err)
			return
		}
		if err := report.Write(stdout, outputPath, format, u.Input); err != nil {
			slog.Error("failed to write report", "error", err)
		}
	})
	if err != nil {
		slog.Error("failed to subscribe to watch updates", "error", err)
		return exitFatal
	}
	if err := watch.Start(ctx); err != nil {
		slog.Error("failed to start watcher", "error", err)
		return exitFatal
	}
	slog.Info("watching for changes", "root", root)
	<-ctx.Done()
	if err := watch.Close(); err != nil {
		slog.Warn("failed to close watcher", "error", err)
	}
	return exitClean
}

func configureLogging(stderr io.Writer, uiMode, verbose bool) func() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := stderr
	closeFn := func() {}
	if uiMode {
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else {
			if fi, err := os.Lstat(logPath); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
				fmt.Fprintf(stderr, "warning: refusing to write logs to symlink path %s\n", logPath)
			} else {
				f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
				if err == nil {
					output = f
					closeFn = func() { _ = f.Close() }
				} else {
					fmt.Fprintf(stderr, "warning: failed to open log file %s: %v\n", logPath, err)
				}
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return closeFn
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "poitree", "poitree.log")
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "poitree", "poitree.log")
	}

	return "poitree.log"
}
