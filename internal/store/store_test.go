package store_test

import (
	"testing"

	"github.com/openfedi/fedclient-go/internal/store"
	_ "github.com/openfedi/fedclient-go/internal/store/json"
	_ "github.com/openfedi/fedclient-go/internal/store/sqlite"
)

func TestDriverRegistry(t *testing.T) {
	drivers := store.AvailableDrivers()

	expected := map[string]bool{"json": true, "sqlite": true}
	for _, d := range drivers {
		if !expected[d] {
			t.Logf("unexpected driver registered: %s", d)
		}
		delete(expected, d)
	}

	for d := range expected {
		t.Errorf("expected driver %q not registered", d)
	}
}

func TestUnknownDriver(t *testing.T) {
	_, err := store.New(&store.DriverConfig{Driver: "nope"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
