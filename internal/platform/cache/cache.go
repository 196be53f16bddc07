// Package cache provides TTL-based key-value caching for discovered
// authorization-server metadata and other per-origin documents.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// Default TTLs for cache categories.
const (
	// TTLMetadata covers discovered authorization-server metadata.
	// Endpoint documents are stable; a restart-scale TTL avoids
	// rediscovery per request without pinning stale endpoints forever.
	TTLMetadata = 15 * time.Minute
)

// DriverFactory creates a cache instance from a raw config map.
type DriverFactory func(config map[string]any) Cache

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// RegisterDriver registers a cache driver by name, typically from an
// init() in the driver package.
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// NewFromConfig creates a cache by driver name. Unknown names fall
// back to the default in-memory cache.
func NewFromConfig(driver string, config map[string]any) Cache {
	driversMu.RLock()
	factory, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return NewDefault()
	}
	return factory(config)
}

// defaultFactory is set by the memory driver's init.
var defaultFactory DriverFactory

// SetDefaultFactory registers the fallback driver.
func SetDefaultFactory(f DriverFactory) {
	defaultFactory = f
}

// NewDefault returns the default in-memory cache.
func NewDefault() Cache {
	if defaultFactory == nil {
		return nopCache{}
	}
	return defaultFactory(nil)
}

// nopCache is used only when no driver is linked in.
type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }
func (nopCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (nopCache) Delete(context.Context, string) error       { return nil }
func (nopCache) Exists(context.Context, string) (bool, error) { return false, nil }
func (nopCache) Close() error                               { return nil }
