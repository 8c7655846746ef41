package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: not found")

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendValkey = "valkey"
	BackendSQLite = "sqlite"
)

// DefaultTTL is how long a cached list stays usable.
const DefaultTTL = 24 * time.Hour

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear removes key. Clearing a missing key is not an error.
	Clear(ctx context.Context, key string) error

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of BackendMemory (default), BackendValkey, BackendSQLite.
	Backend string

	Valkey ValkeyConfig

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string
}

// New opens the backend named by cfg.Backend.
func New(cfg Config) (Cache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendValkey:
		return NewValkey(cfg.Valkey)
	case BackendSQLite:
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown cache backend %q (valid: memory, valkey, sqlite)", cfg.Backend)
	}
}
