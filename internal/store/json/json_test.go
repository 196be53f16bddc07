package json_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfedi/fedclient-go/internal/store"
	_ "github.com/openfedi/fedclient-go/internal/store/json"
	"github.com/openfedi/fedclient-go/internal/store/testutil"
)

func TestJSONDriver(t *testing.T) {
	cfg := &store.DriverConfig{
		Driver:  "json",
		DataDir: t.TempDir(),
	}

	testutil.RunDriverTests(t, "json", cfg)
}

func TestJSONDriverPersistsAcrossRestart(t *testing.T) {
	tempDir := t.TempDir()
	ctx := context.Background()
	cfg := &store.DriverConfig{
		Driver:  "json",
		DataDir: tempDir,
	}

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatal(err)
	}

	key := testutil.TestClientKey()
	if err := driver.PutClientKey(ctx, key); err != nil {
		t.Fatal(err)
	}
	tok := testutil.TestUserToken()
	if err := driver.PutUserToken(ctx, tok); err != nil {
		t.Fatal(err)
	}
	driver.Close()

	if _, err := os.Stat(filepath.Join(tempDir, "client_keys.json")); err != nil {
		t.Fatalf("client_keys.json not written: %v", err)
	}

	// Reload driver - data should survive
	driver2, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := driver2.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer driver2.Close()

	got, err := driver2.GetClientKey(ctx, key.Host)
	if err != nil {
		t.Fatalf("client key not found after restart: %v", err)
	}
	if got.Key != key.Key || got.Secret != key.Secret {
		t.Error("client key corrupted across restart")
	}

	gotTok, err := driver2.GetUserToken(ctx, tok.Host, tok.Account)
	if err != nil {
		t.Fatalf("user token not found after restart: %v", err)
	}
	if gotTok.AccessToken != tok.AccessToken {
		t.Error("user token corrupted across restart")
	}
}

func TestJSONDriverClosedErrors(t *testing.T) {
	ctx := context.Background()
	cfg := &store.DriverConfig{
		Driver:  "json",
		DataDir: t.TempDir(),
	}

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatal(err)
	}
	driver.Close()

	if _, err := driver.GetClientKey(ctx, "social.example"); err != store.ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
