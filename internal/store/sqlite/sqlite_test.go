package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfedi/fedclient-go/internal/store"
	_ "github.com/openfedi/fedclient-go/internal/store/sqlite"
	"github.com/openfedi/fedclient-go/internal/store/testutil"
)

func TestSQLiteDriver(t *testing.T) {
	tempDir := t.TempDir()
	cfg := &store.DriverConfig{
		Driver:  "sqlite",
		DataDir: tempDir,
	}

	testutil.RunDriverTests(t, "sqlite", cfg)

	// Verify database file was created
	if _, err := os.Stat(filepath.Join(tempDir, "fedclient.db")); os.IsNotExist(err) {
		t.Error("fedclient.db not created")
	}
}

func TestSQLiteDriverSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := &store.DriverConfig{
		Driver:  "sqlite",
		DataDir: t.TempDir(),
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
	driver.Close()

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
	if got.Key != key.Key {
		t.Errorf("data corruption: expected %q, got %q", key.Key, got.Key)
	}
}
