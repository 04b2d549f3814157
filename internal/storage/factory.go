package storage

import (
	"context"
	"fmt"
)

// Set groups a Database, Cache, and BlobStore — the full storage surface the
// DextoAgent facade wires into every other component, mirroring the
// teacher's StoreSet grouping.
type Set struct {
	Database  Database
	Cache     Cache
	BlobStore BlobStore
}

// Close closes every non-nil member of the set.
func (s Set) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{s.Database, s.Cache, s.BlobStore} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DatabaseConfig selects and configures a Database implementation.
type DatabaseConfig struct {
	Driver string // "memory", "sqlite", "postgres"
	DSN    string
	Pool   SQLPoolConfig
}

// NewDatabase builds a Database from config.
func NewDatabase(cfg DatabaseConfig) (Database, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryDatabase(), nil
	case "sqlite":
		return OpenSQLDatabase("sqlite", cfg.DSN, poolOrDefault(cfg.Pool))
	case "postgres":
		return OpenSQLDatabase("postgres", cfg.DSN, poolOrDefault(cfg.Pool))
	default:
		return nil, fmt.Errorf("storage: unknown database driver %q", cfg.Driver)
	}
}

func poolOrDefault(p SQLPoolConfig) SQLPoolConfig {
	if p == (SQLPoolConfig{}) {
		return DefaultSQLPoolConfig()
	}
	return p
}

// CacheConfig selects a Cache implementation. Only "memory" is implemented;
// see DESIGN.md for why a redis-backed Cache was not wired.
type CacheConfig struct {
	Driver string // "memory"
}

// NewCache builds a Cache from config.
func NewCache(cfg CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("storage: unknown cache driver %q", cfg.Driver)
	}
}

// BlobStoreConfig selects and configures a BlobStore implementation.
type BlobStoreConfig struct {
	Driver string // "memory", "local", "s3"
	Quota  int64

	LocalRoot string

	S3 S3BlobStoreConfig
}

// NewBlobStore builds a BlobStore from config.
func NewBlobStore(ctx context.Context, cfg BlobStoreConfig) (BlobStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryBlobStore(cfg.Quota), nil
	case "local":
		return NewLocalBlobStore(cfg.LocalRoot, cfg.Quota)
	case "s3":
		return NewS3BlobStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("storage: unknown blob store driver %q", cfg.Driver)
	}
}
