package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: POITREE_[SECTION]_[KEY] (e.g., POITREE_SCAN_CONCURRENCY).
func ApplyEnvOverrides(cfg *Config) {
	// Dependencies
	setEnvBool(&cfg.Dependencies.IncludeOptional, "POITREE_DEPENDENCIES_INCLUDE_OPTIONAL")
	setEnvBool(&cfg.Dependencies.IncludeDev, "POITREE_DEPENDENCIES_INCLUDE_DEV")
	setEnvBool(&cfg.Dependencies.IncludePeer, "POITREE_DEPENDENCIES_INCLUDE_PEER")

	// Tree
	setEnvInt(&cfg.Tree.MaxDepth, "POITREE_TREE_MAX_DEPTH")

	// Scan
	setEnvInt(&cfg.Scan.Depth, "POITREE_SCAN_DEPTH")
	setEnvInt(&cfg.Scan.Concurrency, "POITREE_SCAN_CONCURRENCY")
	setEnvDuration(&cfg.Scan.Timeout, "POITREE_SCAN_TIMEOUT")
	setEnvFloat64(&cfg.Scan.OpsPerSecond, "POITREE_SCAN_OPS_PER_SECOND")

	// Rules
	setEnvInt64(&cfg.Rules.OversizedBytes, "POITREE_RULES_OVERSIZED_BYTES")
	setEnvInt64(&cfg.Rules.MaxParseBytes, "POITREE_RULES_MAX_PARSE_BYTES")
	if val, ok := os.LookupEnv("POITREE_RULES_JAVASCRIPT"); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			logOverride("POITREE_RULES_JAVASCRIPT", val)
			cfg.Rules.JavaScript = &b
		}
	}

	// Output
	setEnvString(&cfg.Output.Format, "POITREE_OUTPUT_FORMAT")
	setEnvString(&cfg.Output.Path, "POITREE_OUTPUT_PATH")

	// History
	setEnvBool(&cfg.History.Enabled, "POITREE_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "POITREE_HISTORY_PATH")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "POITREE_WATCH_DEBOUNCE")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "POITREE_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "POITREE_OBSERVABILITY_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "POITREE_OBSERVABILITY_OTLP_ENDPOINT")
}

func logOverride(key, val string) {
	slog.Debug("applying env override", "key", key, "value", val)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		logOverride(key, val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			logOverride(key, val)
			*target = i
		}
	}
}

func setEnvInt64(target *int64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			logOverride(key, val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			logOverride(key, val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			logOverride(key, val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			logOverride(key, val)
			*target = d
		}
	}
}
