package config

import (
	"time"
)

const (
	DefaultFileName     = "poitree.toml"
	DefaultConcurrency  = 16
	DefaultTimeout      = 10 * time.Second
	DefaultOversized    = 10 << 20
	DefaultMaxParse     = 1 << 20
	DefaultDebounce     = 750 * time.Millisecond
	DefaultMetricsAddr  = "127.0.0.1:9464"
	DefaultHistoryPath  = "data/state/history.db"
	DefaultOutputFormat = "text"
	maxConcurrency      = 1024
)

type Config struct {
	Version       int           `toml:"version"`
	Dependencies  Dependencies  `toml:"dependencies"`
	Tree          Tree          `toml:"tree"`
	Scan          Scan          `toml:"scan"`
	Rules         Rules         `toml:"rules"`
	Output        Output        `toml:"output"`
	History       History       `toml:"history"`
	Watch         Watch         `toml:"watch"`
	Observability Observability `toml:"observability"`

	// SourcePath is the file the config was read from; empty for defaults.
	SourcePath string `toml:"-"`
}

type Dependencies struct {
	IncludeOptional bool `toml:"include_optional"`
	IncludeDev      bool `toml:"include_dev"`
	IncludePeer     bool `toml:"include_peer"`
}

type Tree struct {
	MaxDepth int `toml:"max_depth"` // 0 = unlimited
}

type Scan struct {
	Depth        int           `toml:"depth"`
	Concurrency  int           `toml:"concurrency"`
	Timeout      time.Duration `toml:"timeout"`
	OpsPerSecond float64       `toml:"ops_per_second"`
	ExcludeDirs  []string      `toml:"exclude_dirs"`
}

type Rules struct {
	OversizedBytes   int64    `toml:"oversized_bytes"`
	NativeExtensions []string `toml:"native_extensions"`
	InstallHooks     []string `toml:"install_hooks"`
	LicenseGlobs     []string `toml:"license_globs"`
	ProcessModules   []string `toml:"process_modules"`
	JavaScript       *bool    `toml:"javascript"`
	MaxParseBytes    int64    `toml:"max_parse_bytes"`
}

type Output struct {
	Format string `toml:"format"`
	Path   string `toml:"path"`
}

type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
	Exclude  []string      `toml:"exclude"`
}

type Observability struct {
	Enabled      bool   `toml:"enabled"`
	Address      string `toml:"address"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// Default returns the configuration used when no file is found. Load decodes
// on top of it, so keys absent from a file keep these values.
func Default() *Config {
	return &Config{
		Version: 1,
		Scan: Scan{
			Depth:       1,
			Concurrency: DefaultConcurrency,
			Timeout:     DefaultTimeout,
			ExcludeDirs: []string{".git"},
		},
		Rules: Rules{
			OversizedBytes:   DefaultOversized,
			NativeExtensions: []string{".node"},
			InstallHooks:     []string{"preinstall", "install", "postinstall"},
			LicenseGlobs:     []string{"licen[cs]e*", "copying*", "unlicen[cs]e*"},
			ProcessModules:   []string{"child_process", "node:child_process"},
			MaxParseBytes:    DefaultMaxParse,
		},
		Output:  Output{Format: DefaultOutputFormat},
		History: History{Path: DefaultHistoryPath},
		Watch: Watch{
			Debounce: DefaultDebounce,
			Exclude:  []string{"*.log"},
		},
		Observability: Observability{Address: DefaultMetricsAddr},
	}
}

// JavaScriptEnabled defaults to true when the key is absent.
func (r Rules) JavaScriptEnabled() bool {
	if r.JavaScript == nil {
		return true
	}
	return *r.JavaScript
}
