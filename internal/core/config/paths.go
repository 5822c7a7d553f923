package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	// Base is the directory relative paths are resolved against: the
	// config file's directory, or cwd when running on defaults.
	Base        string
	HistoryPath string
	OutputPath  string
}

func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}

	base := cwd
	if src := strings.TrimSpace(cfg.SourcePath); src != "" {
		abs, err := filepath.Abs(src)
		if err != nil {
			return ResolvedPaths{}, fmt.Errorf("resolve config path: %w", err)
		}
		base = filepath.Dir(abs)
		// data/config/poitree.toml anchors at the project directory.
		if filepath.Base(base) == "config" && filepath.Base(filepath.Dir(base)) == "data" {
			base = filepath.Dir(filepath.Dir(base))
		}
	}

	resolved := ResolvedPaths{
		Base:        filepath.Clean(base),
		HistoryPath: ResolveRelative(base, cfg.History.Path),
	}
	if out := strings.TrimSpace(cfg.Output.Path); out != "" {
		resolved.OutputPath = ResolveRelative(cwd, out)
	}
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}
