// Package json implements a JSON file-based persistence driver.
// It uses atomic writes (temp file + fsync + rename) and in-process locking.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openfedi/fedclient-go/internal/store"
)

func init() {
	store.Register("json", NewDriver)
}

// Driver implements the store.Driver interface using JSON files.
type Driver struct {
	dataDir string
	mu      sync.RWMutex
	closed  bool

	// In-memory state loaded from JSON
	clientKeys map[string]*store.ClientKey // keyed by host
	userTokens map[string]*store.UserToken // keyed by host+"\x00"+account
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		dataDir:    cfg.DataDir,
		clientKeys: make(map[string]*store.ClientKey),
		userTokens: make(map[string]*store.UserToken),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init loads data from JSON files.
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	if err := d.loadFile("client_keys.json", &d.clientKeys); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load client keys: %w", err)
	}
	if err := d.loadFile("user_tokens.json", &d.userTokens); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load user tokens: %w", err)
	}

	return nil
}

// Close marks the driver closed. A final flush is not needed since
// every mutation saves through immediately.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) loadFile(filename string, target interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func (d *Driver) saveFile(filename string, data interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Fsync to ensure data is on disk
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func tokenKey(host, account string) string {
	return host + "\x00" + account
}

// GetClientKey retrieves a client key pair by host.
func (d *Driver) GetClientKey(ctx context.Context, host string) (*store.ClientKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	key, ok := d.clientKeys[host]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *key
	return &cp, nil
}

// PutClientKey creates or replaces a client key pair.
func (d *Driver) PutClientKey(ctx context.Context, key *store.ClientKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	cp := *key
	d.clientKeys[key.Host] = &cp
	return d.saveFile("client_keys.json", d.clientKeys)
}

// DeleteClientKey removes a client key pair.
func (d *Driver) DeleteClientKey(ctx context.Context, host string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	if _, ok := d.clientKeys[host]; !ok {
		return store.ErrNotFound
	}
	delete(d.clientKeys, host)
	return d.saveFile("client_keys.json", d.clientKeys)
}

// ListClientKeys returns all stored client key pairs.
func (d *Driver) ListClientKeys(ctx context.Context) ([]*store.ClientKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	keys := make([]*store.ClientKey, 0, len(d.clientKeys))
	for _, k := range d.clientKeys {
		cp := *k
		keys = append(keys, &cp)
	}
	return keys, nil
}

// GetUserToken retrieves a user token by host and account.
func (d *Driver) GetUserToken(ctx context.Context, host, account string) (*store.UserToken, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	tok, ok := d.userTokens[tokenKey(host, account)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

// PutUserToken creates or replaces a user token.
func (d *Driver) PutUserToken(ctx context.Context, token *store.UserToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	cp := *token
	d.userTokens[tokenKey(token.Host, token.Account)] = &cp
	return d.saveFile("user_tokens.json", d.userTokens)
}

// DeleteUserToken removes a user token.
func (d *Driver) DeleteUserToken(ctx context.Context, host, account string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	key := tokenKey(host, account)
	if _, ok := d.userTokens[key]; !ok {
		return store.ErrNotFound
	}
	delete(d.userTokens, key)
	return d.saveFile("user_tokens.json", d.userTokens)
}
