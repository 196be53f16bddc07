// Package origin models the long-lived connection descriptor for one
// account/origin pairing: base URL, origin flavor, SSL mode, legacy
// protocol preference and the lazily discovered authorization-server
// metadata. The protocol core reads the descriptor; the only mutable
// parts are the metadata cache slot and the credential fields.
package origin

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/openfedi/fedclient-go/internal/platform/config"
	"github.com/openfedi/fedclient-go/internal/platform/hostport"
	"github.com/openfedi/fedclient-go/internal/protocol"
)

// Type is the origin server flavor. It drives default endpoint paths
// and rate-limit header names.
type Type string

const (
	TypeGeneric   Type = "generic"
	TypeMastodon  Type = "mastodon"
	TypeGNUSocial Type = "gnusocial"
	TypePumpIO    Type = "pumpio"
)

// ParseType maps a config string to a Type.
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mastodon":
		return TypeMastodon
	case "gnusocial":
		return TypeGNUSocial
	case "pumpio":
		return TypePumpIO
	default:
		return TypeGeneric
	}
}

// SSLMode states how TLS failures against the origin are handled.
type SSLMode int

const (
	// SSLSecure requires full certificate verification.
	SSLSecure SSLMode = iota
	// SSLInsecureAllowed skips verification; the user opted in.
	SSLInsecureAllowed
	// SSLMisconfigured marks an origin whose certificates are known
	// bad; connections proceed like SSLInsecureAllowed but are flagged
	// in logs.
	SSLMisconfigured
)

// ParseSSLMode maps a config string to an SSLMode.
func ParseSSLMode(s string) SSLMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "insecure":
		return SSLInsecureAllowed
	case "misconfigured":
		return SSLMisconfigured
	default:
		return SSLSecure
	}
}

// Insecure reports whether TLS verification is skipped.
func (m SSLMode) Insecure() bool { return m != SSLSecure }

// AuthKind selects the connection strategy for an origin.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBasic  AuthKind = "basic"
	AuthOAuth1 AuthKind = "oauth1"
	AuthOAuth2 AuthKind = "oauth2"
)

// ParseAuthKind maps a config string to an AuthKind.
func ParseAuthKind(s string) AuthKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return AuthBasic
	case "oauth1":
		return AuthOAuth1
	case "oauth2":
		return AuthOAuth2
	default:
		return AuthNone
	}
}

// Metadata is the RFC 8414 authorization-server discovery document,
// reduced to the fields the client consumes.
type Metadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint,omitempty"`
	IntrospectionEndpoint string   `json:"introspection_endpoint,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// Descriptor is the read-only connection descriptor handed to the
// protocol core. One instance per account/origin pairing.
type Descriptor struct {
	// URL is the origin base URL without trailing slash.
	URL string

	Type    Type
	Auth    AuthKind
	SSLMode SSLMode

	// LegacyHTTP is the legacy POST encoding preference. Unknown
	// enables the one-shot modern-then-legacy fallback.
	LegacyHTTP protocol.TriState

	// Account identifies the account for logging only.
	Account string

	Settings Settings

	// metadata is the lazily populated discovery cache slot.
	metaMu   sync.RWMutex
	metadata *Metadata
}

// FromConfig builds a descriptor from one configured origin.
func FromConfig(oc config.OriginConfig) (*Descriptor, error) {
	base := strings.TrimSuffix(strings.TrimSpace(oc.URL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q: invalid url %q", oc.Name, oc.URL)
	}

	settings, err := DecodeSettings(oc.Settings)
	if err != nil {
		return nil, fmt.Errorf("origin %q: %w", oc.Name, err)
	}

	var legacy protocol.TriState
	switch strings.ToLower(oc.LegacyHTTP) {
	case "true":
		legacy = protocol.TriTrue
	case "false":
		legacy = protocol.TriFalse
	}

	return &Descriptor{
		URL:        base,
		Type:       ParseType(oc.Type),
		Auth:       ParseAuthKind(oc.Auth),
		SSLMode:    ParseSSLMode(oc.SSLMode),
		LegacyHTTP: legacy,
		Account:    oc.Account,
		Settings:   settings,
	}, nil
}

// Host returns the normalized host[:port] key for the origin.
func (d *Descriptor) Host() (string, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return "", err
	}
	return hostport.Normalize(u.Host, u.Scheme)
}

// Metadata returns the cached discovery document, nil when not yet
// discovered.
func (d *Descriptor) Metadata() *Metadata {
	d.metaMu.RLock()
	defer d.metaMu.RUnlock()
	return d.metadata
}

// SetMetadata populates the discovery cache slot.
func (d *Descriptor) SetMetadata(m *Metadata) {
	d.metaMu.Lock()
	defer d.metaMu.Unlock()
	d.metadata = m
}

// Endpoint resolution prefers discovered metadata over the per-type
// defaults.

// AuthorizationEndpoint returns the user-authorization URL.
func (d *Descriptor) AuthorizationEndpoint() string {
	if m := d.Metadata(); m != nil && m.AuthorizationEndpoint != "" {
		return m.AuthorizationEndpoint
	}
	return d.URL + d.defaults().authorizePath
}

// TokenEndpoint returns the token exchange URL.
func (d *Descriptor) TokenEndpoint() string {
	if m := d.Metadata(); m != nil && m.TokenEndpoint != "" {
		return m.TokenEndpoint
	}
	return d.URL + d.defaults().tokenPath
}

// RegistrationEndpoint returns the dynamic client registration URL.
func (d *Descriptor) RegistrationEndpoint() string {
	if m := d.Metadata(); m != nil && m.RegistrationEndpoint != "" {
		return m.RegistrationEndpoint
	}
	return d.URL + d.defaults().registerPath
}

// IntrospectionEndpoint returns the token introspection URL, empty
// when the origin advertises none and no default applies.
func (d *Descriptor) IntrospectionEndpoint() string {
	if m := d.Metadata(); m != nil && m.IntrospectionEndpoint != "" {
		return m.IntrospectionEndpoint
	}
	if p := d.Settings.IntrospectionPath; p != "" {
		return d.URL + p
	}
	return ""
}

// RequestTokenEndpoint returns the OAuth1 request-token URL.
func (d *Descriptor) RequestTokenEndpoint() string {
	return d.URL + d.defaults().requestTokenPath
}

// AccessTokenEndpoint returns the OAuth1 access-token URL.
func (d *Descriptor) AccessTokenEndpoint() string {
	return d.URL + d.defaults().accessTokenPath
}

type endpointDefaults struct {
	authorizePath    string
	tokenPath        string
	registerPath     string
	requestTokenPath string
	accessTokenPath  string
}

func (d *Descriptor) defaults() endpointDefaults {
	s := d.Settings
	def := endpointDefaults{
		authorizePath:    "/oauth/authorize",
		tokenPath:        "/oauth/token",
		registerPath:     "/oauth/register",
		requestTokenPath: "/oauth/request_token",
		accessTokenPath:  "/oauth/access_token",
	}
	switch d.Type {
	case TypeMastodon:
		def.registerPath = "/api/v1/apps"
	case TypeGNUSocial:
		def.requestTokenPath = "/api/oauth/request_token"
		def.authorizePath = "/api/oauth/authorize"
		def.accessTokenPath = "/api/oauth/access_token"
	case TypePumpIO:
		def.registerPath = "/api/client/register"
	}
	if s.AuthorizePath != "" {
		def.authorizePath = s.AuthorizePath
	}
	if s.TokenPath != "" {
		def.tokenPath = s.TokenPath
	}
	if s.RegisterPath != "" {
		def.registerPath = s.RegisterPath
	}
	if s.RequestTokenPath != "" {
		def.requestTokenPath = s.RequestTokenPath
	}
	if s.AccessTokenPath != "" {
		def.accessTokenPath = s.AccessTokenPath
	}
	return def
}

// RateLimitRemainingHeaders returns the origin's rate-limit-remaining
// header candidates, falling back to the common spellings.
func (d *Descriptor) RateLimitRemainingHeaders() []string {
	if len(d.Settings.RateLimitRemainingHeaders) > 0 {
		return d.Settings.RateLimitRemainingHeaders
	}
	return []string{"x-ratelimit-remaining", "ratelimit-remaining"}
}

// RateLimitResetHeaders returns the origin's rate-limit-reset header
// candidates, falling back to the common spellings.
func (d *Descriptor) RateLimitResetHeaders() []string {
	if len(d.Settings.RateLimitResetHeaders) > 0 {
		return d.Settings.RateLimitResetHeaders
	}
	return []string{"x-ratelimit-reset", "ratelimit-reset"}
}
