// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openfedi/fedclient-go/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "fedclient.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.AutoMigrate(
		&store.ClientKey{},
		&store.UserToken{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetClientKey retrieves a client key pair by host.
func (d *Driver) GetClientKey(ctx context.Context, host string) (*store.ClientKey, error) {
	var key store.ClientKey
	result := d.db.WithContext(ctx).First(&key, "host = ?", host)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &key, nil
}

// PutClientKey creates or replaces a client key pair.
func (d *Driver) PutClientKey(ctx context.Context, key *store.ClientKey) error {
	result := d.db.WithContext(ctx).Save(key)
	return result.Error
}

// DeleteClientKey deletes a client key pair.
func (d *Driver) DeleteClientKey(ctx context.Context, host string) error {
	result := d.db.WithContext(ctx).Delete(&store.ClientKey{}, "host = ?", host)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListClientKeys returns all stored client key pairs.
func (d *Driver) ListClientKeys(ctx context.Context) ([]*store.ClientKey, error) {
	var keys []*store.ClientKey
	result := d.db.WithContext(ctx).Find(&keys)
	if result.Error != nil {
		return nil, result.Error
	}
	return keys, nil
}

// GetUserToken retrieves a user token by host and account.
func (d *Driver) GetUserToken(ctx context.Context, host, account string) (*store.UserToken, error) {
	var token store.UserToken
	result := d.db.WithContext(ctx).First(&token, "host = ? AND account = ?", host, account)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &token, nil
}

// PutUserToken creates or replaces a user token.
func (d *Driver) PutUserToken(ctx context.Context, token *store.UserToken) error {
	result := d.db.WithContext(ctx).Save(token)
	return result.Error
}

// DeleteUserToken deletes a user token.
func (d *Driver) DeleteUserToken(ctx context.Context, host, account string) error {
	result := d.db.WithContext(ctx).Delete(&store.UserToken{}, "host = ? AND account = ?", host, account)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
