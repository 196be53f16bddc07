package creds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openfedi/fedclient-go/internal/platform/logutil"
	"github.com/openfedi/fedclient-go/internal/store"
)

// Store resolves client credentials for origin hosts and persists
// dynamically registered ones. Static pairs come from configuration
// and are never written through.
type Store struct {
	static  map[string]ClientCredentials // keyed by normalized host
	backend store.CredentialStore
	sealer  *Sealer
	logger  *slog.Logger
}

// NewStore builds a credential store over a persistence backend.
func NewStore(backend store.CredentialStore, sealer *Sealer, logger *slog.Logger) *Store {
	return &Store{
		static:  make(map[string]ClientCredentials),
		backend: backend,
		sealer:  sealer,
		logger:  logutil.NoopIfNil(logger),
	}
}

// AddStatic registers a statically bundled key pair for a host.
func (s *Store) AddStatic(host, key, secret string) {
	if key == "" || secret == "" {
		return
	}
	s.static[host] = ClientCredentials{Key: key, Secret: secret, Provenance: ProvenanceStatic}
}

// Resolve returns the client credentials for a host: static first,
// then a previously cached dynamic pair. A zero-value dynamic pair is
// returned when nothing exists yet; the caller registers and Saves.
func (s *Store) Resolve(ctx context.Context, host string) (ClientCredentials, error) {
	if c, ok := s.static[host]; ok {
		return c, nil
	}

	rec, err := s.backend.GetClientKey(ctx, host)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ClientCredentials{Provenance: ProvenanceDynamic}, nil
		}
		return ClientCredentials{}, fmt.Errorf("load client key for %s: %w", host, err)
	}

	secret, err := s.sealer.Open(rec.Secret)
	if err != nil {
		// A corrupt record is unusable; treat as absent so the flow
		// re-registers instead of failing forever.
		s.logger.Warn("discarding unreadable client key record", "host", host, "error", err)
		return ClientCredentials{Provenance: ProvenanceDynamic}, nil
	}

	c := ClientCredentials{
		Key:        rec.Key,
		Secret:     secret,
		Provenance: ProvenanceCachedDynamic,
	}
	if !c.Present() {
		c.Provenance = ProvenanceDynamic
	}
	return c, nil
}

// Save persists a dynamically registered pair for a host.
func (s *Store) Save(ctx context.Context, host string, c ClientCredentials) error {
	if !c.Present() {
		return fmt.Errorf("refusing to persist incomplete client key for %s", host)
	}
	sealed, err := s.sealer.Seal(c.Secret)
	if err != nil {
		return fmt.Errorf("seal client secret for %s: %w", host, err)
	}
	rec := &store.ClientKey{
		Host:       host,
		Key:        c.Key,
		Secret:     sealed,
		Provenance: c.Provenance.String(),
		UpdatedAt:  time.Now().Unix(),
	}
	if err := s.backend.PutClientKey(ctx, rec); err != nil {
		return fmt.Errorf("persist client key for %s: %w", host, err)
	}
	return nil
}

// Clear wipes the persisted pair for a host. Called on hard
// authentication failures so the next attempt re-registers.
func (s *Store) Clear(ctx context.Context, host string) error {
	err := s.backend.DeleteClientKey(ctx, host)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("clear client key for %s: %w", host, err)
	}
	return nil
}

// LoadUserToken returns the persisted token for host+account, or a
// zero value when none exists.
func (s *Store) LoadUserToken(ctx context.Context, host, account string) (UserToken, error) {
	rec, err := s.backend.GetUserToken(ctx, host, account)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserToken{}, nil
		}
		return UserToken{}, fmt.Errorf("load user token for %s: %w", host, err)
	}
	access, err := s.sealer.Open(rec.AccessToken)
	if err != nil {
		s.logger.Warn("discarding unreadable user token record", "host", host, "account", account, "error", err)
		return UserToken{}, nil
	}
	secret, err := s.sealer.Open(rec.TokenSecret)
	if err != nil {
		return UserToken{}, nil
	}
	refresh, err := s.sealer.Open(rec.RefreshToken)
	if err != nil {
		return UserToken{}, nil
	}
	return UserToken{
		Access:    access,
		Secret:    secret,
		Refresh:   refresh,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// SaveUserToken persists a token for host+account.
func (s *Store) SaveUserToken(ctx context.Context, host, account string, t UserToken) error {
	access, err := s.sealer.Seal(t.Access)
	if err != nil {
		return err
	}
	secret, err := s.sealer.Seal(t.Secret)
	if err != nil {
		return err
	}
	refresh, err := s.sealer.Seal(t.Refresh)
	if err != nil {
		return err
	}
	rec := &store.UserToken{
		Host:         host,
		Account:      account,
		AccessToken:  access,
		TokenSecret:  secret,
		RefreshToken: refresh,
		ExpiresAt:    t.ExpiresAt,
		UpdatedAt:    time.Now().Unix(),
	}
	if err := s.backend.PutUserToken(ctx, rec); err != nil {
		return fmt.Errorf("persist user token for %s: %w", host, err)
	}
	return nil
}

// ClearUserToken removes the persisted token for host+account.
func (s *Store) ClearUserToken(ctx context.Context, host, account string) error {
	err := s.backend.DeleteUserToken(ctx, host, account)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("clear user token for %s: %w", host, err)
	}
	return nil
}
