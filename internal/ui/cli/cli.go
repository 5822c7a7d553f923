package cli

import (
	"flag"
	"io"
	"time"
)

const usageLine = "usage: poitree [flags] <package-dir>"

type cliOptions struct {
	configPath      string
	format          string
	output          string
	includeDev      bool
	includePeer     bool
	includeOptional bool
	depth           int
	scanDepth       int
	concurrency     int
	timeout         time.Duration
	oversized       int64
	history         bool
	watch           bool
	ui              bool
	metricsAddr     string
	verbose         bool
	version         bool
	args            []string

	// set holds the flags given explicitly; only those override the config.
	set map[string]bool
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("poitree", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = io.WriteString(stderr, usageLine+"\n\nflags:\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default: discover poitree.toml)")
	fs.StringVar(&opts.format, "format", "", "Output format: text, json, markdown or sarif")
	fs.StringVar(&opts.output, "output", "", "Write the report to this file instead of stdout")
	fs.BoolVar(&opts.includeDev, "include-dev", false, "Include devDependencies")
	fs.BoolVar(&opts.includePeer, "include-peer", false, "Include peerDependencies")
	fs.BoolVar(&opts.includeOptional, "include-optional", false, "Include optionalDependencies")
	fs.IntVar(&opts.depth, "depth", 0, "Maximum tree depth (0 = unlimited)")
	fs.IntVar(&opts.scanDepth, "scan-depth", 1, "Subdirectory levels scanned inside each package")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "Concurrent resolve and scan operations")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Per-operation timeout (example: 10s)")
	fs.Int64Var(&opts.oversized, "oversized", 0, "Size in bytes above which a file is reported")
	fs.BoolVar(&opts.history, "history", false, "Record a history snapshot and report changes since the last run")
	fs.BoolVar(&opts.watch, "watch", false, "Re-inspect whenever installed packages change")
	fs.BoolVar(&opts.ui, "ui", false, "Browse the tree in a terminal UI")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	opts.args = fs.Args()
	return opts, nil
}
