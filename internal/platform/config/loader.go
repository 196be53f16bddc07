// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 Fedclient Authors

// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but the file is missing or invalid, loading fails.
	ConfigPath string

	// FlagOverrides are CLI flag values that override everything else.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file and
// environment values. Nil pointers mean "unset".
type FlagOverrides struct {
	DataDir        *string
	StoreDriver    *string
	SSRFMode       *string
	LoggingLevel   *string
	LogNetwork     *string // "true", "false", or "" (unset)
	AllowSensitive *string // "true", "false", or "" (unset)
	TimeoutMS      *int
}

// Load loads configuration with the following precedence:
//  1. Built-in defaults
//  2. TOML config file values
//  3. FEDCLIENT_* environment variables
//  4. CLI flags
//  5. Validate
//
// If ConfigPath is provided but the file is missing, unreadable, or
// invalid TOML, Load returns an error (fail fast). Unknown TOML keys
// produce a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Default()

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("ignoring unknown config keys", "keys", strings.Join(keys, ", "))
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	applyFlagOverrides(cfg, opts.FlagOverrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyFlagOverrides(cfg *Config, fo FlagOverrides) {
	if v := strPtr(fo.DataDir); v != "" {
		cfg.DataDir = v
	}
	if v := strPtr(fo.StoreDriver); v != "" {
		cfg.Store.Driver = v
	}
	if v := strPtr(fo.SSRFMode); v != "" {
		cfg.OutboundHTTP.SSRFMode = v
	}
	if v := strPtr(fo.LoggingLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strPtr(fo.LogNetwork); v != "" {
		cfg.Logging.LogNetwork = v == "true"
	}
	if v := strPtr(fo.AllowSensitive); v != "" {
		cfg.Logging.AllowSensitive = v == "true"
	}
	if fo.TimeoutMS != nil && *fo.TimeoutMS > 0 {
		cfg.OutboundHTTP.TimeoutMS = *fo.TimeoutMS
	}
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// ParseLevel converts a config level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
