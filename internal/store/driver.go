// Package store provides persistence primitives and driver abstractions
// for per-origin client keys and user tokens.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (json, sqlite).
	Name() string

	CredentialStore
}

// CredentialStore defines operations for credential persistence.
type CredentialStore interface {
	// Client key pairs, keyed by normalized origin host.
	GetClientKey(ctx context.Context, host string) (*ClientKey, error)
	PutClientKey(ctx context.Context, key *ClientKey) error
	DeleteClientKey(ctx context.Context, host string) error
	ListClientKeys(ctx context.Context) ([]*ClientKey, error)

	// User tokens, keyed by normalized origin host + account.
	GetUserToken(ctx context.Context, host, account string) (*UserToken, error)
	PutUserToken(ctx context.Context, token *UserToken) error
	DeleteUserToken(ctx context.Context, host, account string) error
}

// ClientKey is a persisted OAuth client id/secret pair for one origin.
// Provenance records how the pair was obtained: "static" (bundled),
// "dynamic" (just registered) or "cached_dynamic" (loaded back from
// storage).
type ClientKey struct {
	Host       string `json:"host" gorm:"primaryKey"`
	Key        string `json:"key"`
	Secret     string `json:"secret,omitempty"` // omitempty for redaction
	Provenance string `json:"provenance"`
	UpdatedAt  int64  `json:"updated_at"`
}

// UserToken is a persisted per-account access token for one origin.
// TokenSecret is the OAuth1 token secret; RefreshToken is OAuth2-only.
type UserToken struct {
	Host         string `json:"host" gorm:"primaryKey"`
	Account      string `json:"account" gorm:"primaryKey"`
	AccessToken  string `json:"access_token,omitempty"` // omitempty for redaction
	TokenSecret  string `json:"token_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	UpdatedAt    int64  `json:"updated_at"`
}
