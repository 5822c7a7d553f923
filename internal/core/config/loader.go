package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"poitree/internal/core/errors"

	"github.com/BurntSushi/toml"
)

// Load reads path, applies defaults and environment overrides, and
// validates the result. Validation failures are VALIDATION_ERROR.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("parse config %s", path))
	}
	cfg.SourcePath = path

	applyDefaults(cfg)
	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads explicit when set; otherwise the first discovered
// config file under searchDirs; otherwise the defaults.
func LoadOrDefault(explicit string, searchDirs ...string) (*Config, error) {
	if strings.TrimSpace(explicit) != "" {
		return Load(explicit)
	}
	if path, ok := Discover(searchDirs...); ok {
		return Load(path)
	}
	cfg := Default()
	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover returns the first poitree.toml or data/config/poitree.toml found
// in dirs, in order.
func Discover(dirs ...string) (string, bool) {
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		for _, candidate := range []string{
			filepath.Join(dir, DefaultFileName),
			filepath.Join(dir, "data", "config", DefaultFileName),
		} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}
	return "", false
}

// applyDefaults fills values a file may set to zero but that have no
// meaningful zero.
func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Scan.Concurrency == 0 {
		cfg.Scan.Concurrency = DefaultConcurrency
	}
	if cfg.Scan.Timeout == 0 {
		cfg.Scan.Timeout = DefaultTimeout
	}
	if cfg.Rules.OversizedBytes == 0 {
		cfg.Rules.OversizedBytes = DefaultOversized
	}
	if cfg.Rules.MaxParseBytes == 0 {
		cfg.Rules.MaxParseBytes = DefaultMaxParse
	}
	cfg.Output.Format = CanonicalFormat(cfg.Output.Format)
	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = DefaultHistoryPath
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultDebounce
	}
	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = DefaultMetricsAddr
	}
}
