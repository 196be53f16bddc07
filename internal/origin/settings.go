package origin

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Settings carries optional per-origin overrides supplied as a free
// form table in the config file.
type Settings struct {
	// Basic auth material for AuthBasic origins.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Endpoint path overrides, applied before discovery metadata is
	// available. Leading slash required.
	AuthorizePath     string `mapstructure:"authorize_path"`
	TokenPath         string `mapstructure:"token_path"`
	RegisterPath      string `mapstructure:"register_path"`
	RequestTokenPath  string `mapstructure:"request_token_path"`
	AccessTokenPath   string `mapstructure:"access_token_path"`
	IntrospectionPath string `mapstructure:"introspection_path"`

	// Rate-limit header name overrides, matched case-insensitively.
	RateLimitRemainingHeaders []string `mapstructure:"rate_limit_remaining_headers"`
	RateLimitResetHeaders     []string `mapstructure:"rate_limit_reset_headers"`

	// Scopes requested at registration and authorization time.
	Scopes []string `mapstructure:"scopes"`
}

// DecodeSettings converts the raw config table into Settings. Unknown
// keys are rejected so typos surface at load time.
func DecodeSettings(raw map[string]any) (Settings, error) {
	var s Settings
	if len(raw) == 0 {
		return s, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &s,
		ErrorUnused: true,
	})
	if err != nil {
		return s, err
	}
	if err := dec.Decode(raw); err != nil {
		return s, fmt.Errorf("decode origin settings: %w", err)
	}
	return s, nil
}
