// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
)

// Config holds the client configuration.
type Config struct {
	// DataDir is the directory for persisted credential data.
	DataDir string `toml:"data_dir" env:"FEDCLIENT_DATA_DIR"`

	// OutboundHTTP configuration
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// Store configuration
	Store StoreConfig `toml:"store"`

	// Cache configuration
	Cache CacheConfig `toml:"cache"`

	// Credentials configuration
	Credentials CredentialsConfig `toml:"credentials"`

	// Throttle configuration
	Throttle ThrottleConfig `toml:"throttle"`

	// Callback configuration for the loopback redirect listener
	Callback CallbackConfig `toml:"callback"`

	// Origins lists the configured origin servers.
	Origins []OriginConfig `toml:"origins"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `toml:"ssrf_mode" env:"FEDCLIENT_SSRF_MODE"`

	// TimeoutMS is the overall request timeout in milliseconds
	TimeoutMS int `toml:"timeout_ms" env:"FEDCLIENT_TIMEOUT_MS"`

	// ConnectTimeoutMS is the connection timeout in milliseconds
	ConnectTimeoutMS int `toml:"connect_timeout_ms" env:"FEDCLIENT_CONNECT_TIMEOUT_MS"`

	// MaxResponseBytes is the maximum buffered response body size
	MaxResponseBytes int64 `toml:"max_response_bytes" env:"FEDCLIENT_MAX_RESPONSE_BYTES"`

	// UserAgent is sent on every outbound request.
	UserAgent string `toml:"user_agent" env:"FEDCLIENT_USER_AGENT"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" env:"FEDCLIENT_LOG_LEVEL"`

	// LogNetwork enables request/response body logging.
	LogNetwork bool `toml:"log_network" env:"FEDCLIENT_LOG_NETWORK"`

	// AllowSensitive permits logging of sensitive values (tokens, secrets).
	// Default: false. Use only for debugging.
	AllowSensitive bool `toml:"allow_sensitive" env:"FEDCLIENT_LOG_ALLOW_SENSITIVE"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is the persistence driver name: json (default) or sqlite.
	Driver string `toml:"driver" env:"FEDCLIENT_STORE_DRIVER"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default).
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	Drivers map[string]any `toml:"drivers"`
}

// CredentialsConfig holds client-credential settings.
type CredentialsConfig struct {
	// SealPassphrase, when set, encrypts persisted secrets at rest.
	SealPassphrase string `toml:"seal_passphrase" env:"FEDCLIENT_SEAL_PASSPHRASE"`
}

// ThrottleConfig holds per-host backoff settings.
type ThrottleConfig struct {
	// MinBackoffSeconds is the floor applied when a rate-limited
	// response carries no explicit retry timestamp.
	MinBackoffSeconds int `toml:"min_backoff_seconds" env:"FEDCLIENT_MIN_BACKOFF_SECONDS"`

	// MaxBackoffSeconds caps the fallback backoff schedule.
	MaxBackoffSeconds int `toml:"max_backoff_seconds" env:"FEDCLIENT_MAX_BACKOFF_SECONDS"`
}

// CallbackConfig holds the loopback redirect-URI listener settings.
type CallbackConfig struct {
	// ListenAddr is the loopback address to bind. Port 0 picks a free port.
	ListenAddr string `toml:"listen_addr" env:"FEDCLIENT_CALLBACK_LISTEN_ADDR"`

	// Path is the well-known redirect path.
	Path string `toml:"path" env:"FEDCLIENT_CALLBACK_PATH"`
}

// OriginConfig describes one origin server and how to authenticate
// against it.
type OriginConfig struct {
	// Name identifies the origin in logs and flags.
	Name string `toml:"name"`

	// URL is the origin base URL, e.g. "https://mastodon.example".
	URL string `toml:"url"`

	// Type is the origin flavor: mastodon, gnusocial, pumpio, generic.
	Type string `toml:"type"`

	// Auth is the strategy: none, basic, oauth1, oauth2.
	Auth string `toml:"auth"`

	// SSLMode is one of: secure, insecure, misconfigured.
	SSLMode string `toml:"ssl_mode"`

	// LegacyHTTP forces the legacy POST encoding: "", "true", "false".
	LegacyHTTP string `toml:"legacy_http"`

	// Account identifies the account for logging only.
	Account string `toml:"account"`

	// ClientKey/ClientSecret are statically bundled client credentials.
	ClientKey    string `toml:"client_key"`
	ClientSecret string `toml:"client_secret"`

	// Settings holds origin-type-specific raw settings, decoded by the
	// origin package (rate-limit header names, endpoint paths).
	Settings map[string]any `toml:"settings"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: "data",
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:         "strict",
			TimeoutMS:        30000,
			ConnectTimeoutMS: 5000,
			MaxResponseBytes: 2 << 20,
			UserAgent:        "fedclient-go",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Driver: "json",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Throttle: ThrottleConfig{
			MinBackoffSeconds: 15,
			MaxBackoffSeconds: 900,
		},
		Callback: CallbackConfig{
			ListenAddr: "127.0.0.1:0",
			Path:       "/oauth/callback",
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.OutboundHTTP.SSRFMode {
	case "strict", "off":
	default:
		return fmt.Errorf("invalid ssrf_mode %q: must be strict or off", c.OutboundHTTP.SSRFMode)
	}
	if c.OutboundHTTP.TimeoutMS <= 0 {
		return fmt.Errorf("timeout_ms must be positive")
	}
	if c.Throttle.MinBackoffSeconds <= 0 {
		return fmt.Errorf("min_backoff_seconds must be positive")
	}
	if c.Throttle.MaxBackoffSeconds < c.Throttle.MinBackoffSeconds {
		return fmt.Errorf("max_backoff_seconds must be >= min_backoff_seconds")
	}
	for i := range c.Origins {
		if err := c.Origins[i].validate(); err != nil {
			return fmt.Errorf("origin %d: %w", i, err)
		}
	}
	return nil
}

func (o *OriginConfig) validate() error {
	if o.URL == "" {
		return fmt.Errorf("url is required")
	}
	switch strings.ToLower(o.Type) {
	case "", "generic", "mastodon", "gnusocial", "pumpio":
	default:
		return fmt.Errorf("unknown origin type %q", o.Type)
	}
	switch strings.ToLower(o.Auth) {
	case "", "none", "basic", "oauth1", "oauth2":
	default:
		return fmt.Errorf("unknown auth strategy %q", o.Auth)
	}
	switch strings.ToLower(o.SSLMode) {
	case "", "secure", "insecure", "misconfigured":
	default:
		return fmt.Errorf("unknown ssl_mode %q", o.SSLMode)
	}
	switch strings.ToLower(o.LegacyHTTP) {
	case "", "true", "false":
	default:
		return fmt.Errorf("legacy_http must be \"\", \"true\" or \"false\"")
	}
	return nil
}
