package config

import (
	"fmt"
	"strings"
	"time"

	"poitree/internal/core/errors"
	"poitree/internal/shared/util"
)

// OutputFormats lists the renderers selectable through output.format.
var OutputFormats = []string{"text", "json", "markdown", "sarif"}

// formatAliases are accepted spellings of an output format.
var formatAliases = map[string]string{
	"":   DefaultOutputFormat,
	"md": "markdown",
}

// CanonicalFormat lower-cases name and expands aliases. Unknown names are
// returned lower-cased.
func CanonicalFormat(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := formatAliases[name]; ok {
		return canonical
	}
	return name
}

// Validate checks cfg after defaults and overrides. It is exported so the
// CLI can re-validate after applying flags.
func Validate(cfg *Config) error {
	for _, check := range []func(*Config) error{
		validateVersion,
		validateTree,
		validateScan,
		validateRules,
		validateOutput,
		validateWatch,
	} {
		if err := check(cfg); err != nil {
			return errors.Wrap(err, errors.CodeValidationError, "invalid configuration")
		}
	}
	return nil
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateTree(cfg *Config) error {
	if cfg.Tree.MaxDepth < 0 {
		return fmt.Errorf("tree.max_depth must be >= 0, got %d", cfg.Tree.MaxDepth)
	}
	return nil
}

func validateScan(cfg *Config) error {
	scan := cfg.Scan
	if scan.Depth < 0 {
		return fmt.Errorf("scan.depth must be >= 0, got %d", scan.Depth)
	}
	if scan.Concurrency < 1 || scan.Concurrency > maxConcurrency {
		return fmt.Errorf("scan.concurrency must be between 1 and %d, got %d", maxConcurrency, scan.Concurrency)
	}
	if scan.Timeout < time.Millisecond {
		return fmt.Errorf("scan.timeout must be at least 1ms, got %s", scan.Timeout)
	}
	if scan.OpsPerSecond < 0 {
		return fmt.Errorf("scan.ops_per_second must be >= 0, got %g", scan.OpsPerSecond)
	}
	if _, err := util.CompileGlobs(scan.ExcludeDirs, "scan.exclude_dirs", false); err != nil {
		return err
	}
	return nil
}

func validateRules(cfg *Config) error {
	rules := cfg.Rules
	if rules.OversizedBytes <= 0 {
		return fmt.Errorf("rules.oversized_bytes must be > 0, got %d", rules.OversizedBytes)
	}
	if rules.MaxParseBytes <= 0 {
		return fmt.Errorf("rules.max_parse_bytes must be > 0, got %d", rules.MaxParseBytes)
	}
	for i, ext := range rules.NativeExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("rules.native_extensions[%d] must start with '.', got %q", i, ext)
		}
	}
	for i, hook := range rules.InstallHooks {
		if strings.TrimSpace(hook) == "" {
			return fmt.Errorf("rules.install_hooks[%d] must not be empty", i)
		}
	}
	if _, err := util.CompileGlobs(rules.LicenseGlobs, "rules.license_globs", true); err != nil {
		return err
	}
	return nil
}

func validateOutput(cfg *Config) error {
	format := CanonicalFormat(cfg.Output.Format)
	for _, f := range OutputFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("output.format must be one of: %s, got %q", strings.Join(OutputFormats, ", "), cfg.Output.Format)
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be >= 0, got %s", cfg.Watch.Debounce)
	}
	if _, err := util.CompileGlobs(cfg.Watch.Exclude, "watch.exclude", false); err != nil {
		return err
	}
	return nil
}
