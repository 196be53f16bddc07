// Package testutil provides shared test helpers for store driver tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/openfedi/fedclient-go/internal/store"
)

// TestClientKey creates a test client key pair.
func TestClientKey() *store.ClientKey {
	return &store.ClientKey{
		Host:       "social.example",
		Key:        "client-id-1234",
		Secret:     "client-secret-abcd",
		Provenance: "dynamic",
		UpdatedAt:  time.Now().Unix(),
	}
}

// TestUserToken creates a test user token.
func TestUserToken() *store.UserToken {
	return &store.UserToken{
		Host:         "social.example",
		Account:      "alice@social.example",
		AccessToken:  "access-token-value",
		TokenSecret:  "token-secret-value",
		RefreshToken: "refresh-token-value",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		UpdatedAt:    time.Now().Unix(),
	}
}

// RunDriverTests runs the standard test suite against a driver.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}

	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}

	t.Run("ClientKeyCRUD", func(t *testing.T) {
		TestClientKeyCRUD(t, ctx, driver)
	})

	t.Run("UserTokenCRUD", func(t *testing.T) {
		TestUserTokenCRUD(t, ctx, driver)
	})

	t.Run("AccountScopedTokens", func(t *testing.T) {
		TestAccountScopedTokens(t, ctx, driver)
	})
}

// TestClientKeyCRUD tests CRUD operations for client keys.
func TestClientKeyCRUD(t *testing.T, ctx context.Context, s store.CredentialStore) {
	key := TestClientKey()

	// Create
	if err := s.PutClientKey(ctx, key); err != nil {
		t.Fatalf("PutClientKey failed: %v", err)
	}

	// Get
	got, err := s.GetClientKey(ctx, key.Host)
	if err != nil {
		t.Fatalf("GetClientKey failed: %v", err)
	}
	if got.Key != key.Key || got.Secret != key.Secret {
		t.Errorf("round trip mismatch: got %q/%q", got.Key, got.Secret)
	}
	if got.Provenance != "dynamic" {
		t.Errorf("expected provenance 'dynamic', got %q", got.Provenance)
	}

	// Update (upsert on the same host)
	key.Secret = "rotated-secret"
	if err := s.PutClientKey(ctx, key); err != nil {
		t.Fatalf("PutClientKey update failed: %v", err)
	}
	got, _ = s.GetClientKey(ctx, key.Host)
	if got.Secret != "rotated-secret" {
		t.Errorf("expected rotated secret, got %q", got.Secret)
	}

	// List
	keys, err := s.ListClientKeys(ctx)
	if err != nil {
		t.Fatalf("ListClientKeys failed: %v", err)
	}
	if len(keys) == 0 {
		t.Error("expected at least one key in list")
	}

	// Delete
	if err := s.DeleteClientKey(ctx, key.Host); err != nil {
		t.Fatalf("DeleteClientKey failed: %v", err)
	}

	// Verify deleted
	if _, err := s.GetClientKey(ctx, key.Host); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// TestUserTokenCRUD tests CRUD operations for user tokens.
func TestUserTokenCRUD(t *testing.T, ctx context.Context, s store.CredentialStore) {
	tok := TestUserToken()

	// Create
	if err := s.PutUserToken(ctx, tok); err != nil {
		t.Fatalf("PutUserToken failed: %v", err)
	}

	// Get
	got, err := s.GetUserToken(ctx, tok.Host, tok.Account)
	if err != nil {
		t.Fatalf("GetUserToken failed: %v", err)
	}
	if got.AccessToken != tok.AccessToken || got.RefreshToken != tok.RefreshToken {
		t.Error("token round trip mismatch")
	}

	// Update
	tok.AccessToken = "fresh-access-token"
	if err := s.PutUserToken(ctx, tok); err != nil {
		t.Fatalf("PutUserToken update failed: %v", err)
	}
	got, _ = s.GetUserToken(ctx, tok.Host, tok.Account)
	if got.AccessToken != "fresh-access-token" {
		t.Errorf("expected refreshed access token, got %q", got.AccessToken)
	}

	// Delete
	if err := s.DeleteUserToken(ctx, tok.Host, tok.Account); err != nil {
		t.Fatalf("DeleteUserToken failed: %v", err)
	}

	// Verify deleted
	if _, err := s.GetUserToken(ctx, tok.Host, tok.Account); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// TestAccountScopedTokens verifies tokens are keyed by host+account.
func TestAccountScopedTokens(t *testing.T, ctx context.Context, s store.CredentialStore) {
	tok1 := TestUserToken()
	tok1.Account = "alice@social.example"
	tok1.AccessToken = "alice-token"

	tok2 := TestUserToken()
	tok2.Account = "bob@social.example"
	tok2.AccessToken = "bob-token"

	if err := s.PutUserToken(ctx, tok1); err != nil {
		t.Fatalf("PutUserToken tok1 failed: %v", err)
	}
	if err := s.PutUserToken(ctx, tok2); err != nil {
		t.Fatalf("PutUserToken tok2 failed: %v", err)
	}

	got, err := s.GetUserToken(ctx, tok1.Host, "alice@social.example")
	if err != nil {
		t.Fatalf("GetUserToken alice failed: %v", err)
	}
	if got.AccessToken != "alice-token" {
		t.Errorf("expected alice-token, got %q", got.AccessToken)
	}

	got, err = s.GetUserToken(ctx, tok2.Host, "bob@social.example")
	if err != nil {
		t.Fatalf("GetUserToken bob failed: %v", err)
	}
	if got.AccessToken != "bob-token" {
		t.Errorf("expected bob-token, got %q", got.AccessToken)
	}

	// Cleanup
	s.DeleteUserToken(ctx, tok1.Host, tok1.Account)
	s.DeleteUserToken(ctx, tok2.Host, tok2.Account)
}
