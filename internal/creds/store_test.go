package creds_test

import (
	"context"
	"strings"
	"testing"

	"github.com/openfedi/fedclient-go/internal/creds"
	"github.com/openfedi/fedclient-go/internal/store"
	jsondriver "github.com/openfedi/fedclient-go/internal/store/json"
)

func newBackend(t *testing.T) store.Driver {
	t.Helper()
	d, err := jsondriver.NewDriver(&store.DriverConfig{Driver: "json", DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func newStore(t *testing.T, passphrase string) (*creds.Store, store.Driver) {
	t.Helper()
	backend := newBackend(t)
	sealer, err := creds.NewSealer(passphrase)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	return creds.NewStore(backend, sealer, nil), backend
}

func TestResolve_EmptyYieldsDynamic(t *testing.T) {
	s, _ := newStore(t, "")
	c, err := s.Resolve(context.Background(), "social.example")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Present() {
		t.Errorf("expected empty pair, got %+v", c)
	}
	if c.Provenance != creds.ProvenanceDynamic {
		t.Errorf("expected dynamic provenance, got %v", c.Provenance)
	}
}

func TestResolve_StaticWinsOverCached(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "")

	// A previously registered pair sits in the backend.
	err := s.Save(ctx, "social.example", creds.ClientCredentials{
		Key: "dyn-key", Secret: "dyn-secret", Provenance: creds.ProvenanceDynamic,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	s.AddStatic("social.example", "static-key", "static-secret")

	c, err := s.Resolve(ctx, "social.example")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Key != "static-key" || c.Secret != "static-secret" {
		t.Errorf("expected static pair to win, got %+v", c)
	}
	if c.Provenance != creds.ProvenanceStatic {
		t.Errorf("expected static provenance, got %v", c.Provenance)
	}
}

func TestResolve_CachedDynamicRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "hunter2")

	err := s.Save(ctx, "social.example", creds.ClientCredentials{
		Key: "key", Secret: "secret", Provenance: creds.ProvenanceDynamic,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	c, err := s.Resolve(ctx, "social.example")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Key != "key" || c.Secret != "secret" {
		t.Errorf("round trip lost values: %+v", c)
	}
	if c.Provenance != creds.ProvenanceCachedDynamic {
		t.Errorf("expected cached_dynamic provenance, got %v", c.Provenance)
	}
}

func TestSave_SealsSecretAtRest(t *testing.T) {
	ctx := context.Background()
	s, backend := newStore(t, "hunter2")

	err := s.Save(ctx, "social.example", creds.ClientCredentials{
		Key: "key", Secret: "plaintext-secret",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := backend.GetClientKey(ctx, "social.example")
	if err != nil {
		t.Fatalf("GetClientKey: %v", err)
	}
	if rec.Secret == "plaintext-secret" {
		t.Error("secret persisted in plaintext despite passphrase")
	}
	if !strings.HasPrefix(rec.Secret, "sealed:") {
		t.Errorf("persisted secret not sealed: %q", rec.Secret)
	}
}

func TestResolve_CorruptRecordTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	s, backend := newStore(t, "hunter2")

	// Write a record whose sealed secret cannot be opened.
	err := backend.PutClientKey(ctx, &store.ClientKey{
		Host: "social.example", Key: "key", Secret: "sealed:not-valid-ciphertext",
	})
	if err != nil {
		t.Fatalf("PutClientKey: %v", err)
	}

	c, err := s.Resolve(ctx, "social.example")
	if err != nil {
		t.Fatalf("Resolve should not fail on a corrupt record: %v", err)
	}
	if c.Present() {
		t.Errorf("expected absent pair for corrupt record, got %+v", c)
	}
	if c.Provenance != creds.ProvenanceDynamic {
		t.Errorf("expected dynamic provenance forcing re-registration, got %v", c.Provenance)
	}
}

func TestSave_RejectsIncompletePair(t *testing.T) {
	s, _ := newStore(t, "")
	if err := s.Save(context.Background(), "social.example", creds.ClientCredentials{Key: "only-key"}); err == nil {
		t.Fatal("expected error persisting incomplete pair")
	}
}

func TestClear_RemovesPair(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "")

	if err := s.Save(ctx, "social.example", creds.ClientCredentials{Key: "k", Secret: "s"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear(ctx, "social.example"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	c, err := s.Resolve(ctx, "social.example")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Present() {
		t.Errorf("expected pair gone after Clear, got %+v", c)
	}

	// Clearing an absent host is not an error.
	if err := s.Clear(ctx, "other.example"); err != nil {
		t.Errorf("Clear on absent host: %v", err)
	}
}

func TestUserToken_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, backend := newStore(t, "hunter2")

	in := creds.UserToken{
		Access:    "access-token",
		Secret:    "token-secret",
		Refresh:   "refresh-token",
		ExpiresAt: 1893456000,
	}
	if err := s.SaveUserToken(ctx, "social.example", "alice", in); err != nil {
		t.Fatalf("SaveUserToken: %v", err)
	}

	out, err := s.LoadUserToken(ctx, "social.example", "alice")
	if err != nil {
		t.Fatalf("LoadUserToken: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}

	rec, err := backend.GetUserToken(ctx, "social.example", "alice")
	if err != nil {
		t.Fatalf("GetUserToken: %v", err)
	}
	if rec.AccessToken == "access-token" {
		t.Error("access token persisted in plaintext despite passphrase")
	}

	// Unknown account resolves to a zero token, not an error.
	out, err = s.LoadUserToken(ctx, "social.example", "bob")
	if err != nil {
		t.Fatalf("LoadUserToken absent: %v", err)
	}
	if out.Present() {
		t.Errorf("expected zero token for unknown account, got %+v", out)
	}
}

func TestClearUserToken(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "")

	if err := s.SaveUserToken(ctx, "social.example", "alice", creds.UserToken{Access: "a"}); err != nil {
		t.Fatalf("SaveUserToken: %v", err)
	}
	if err := s.ClearUserToken(ctx, "social.example", "alice"); err != nil {
		t.Fatalf("ClearUserToken: %v", err)
	}
	out, err := s.LoadUserToken(ctx, "social.example", "alice")
	if err != nil {
		t.Fatalf("LoadUserToken: %v", err)
	}
	if out.Present() {
		t.Errorf("expected token gone, got %+v", out)
	}
}

func TestParseProvenance(t *testing.T) {
	tests := []struct {
		in   string
		want creds.Provenance
	}{
		{"static", creds.ProvenanceStatic},
		{"cached_dynamic", creds.ProvenanceCachedDynamic},
		{"dynamic", creds.ProvenanceDynamic},
		{"garbage", creds.ProvenanceDynamic},
		{"", creds.ProvenanceDynamic},
	}
	for _, tt := range tests {
		if got := creds.ParseProvenance(tt.in); got != tt.want {
			t.Errorf("ParseProvenance(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
