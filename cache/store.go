// Package cache keeps short-lived copies of GitHub API responses so that
// re-running a summary for the same day does not spend the rate limit
// again.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mcgillij/gitlog-summary/db"
)

// DefaultTTL is how long a cached page stays valid
const DefaultTTL = 15 * time.Minute

// ErrUnknownBackend is returned by Open for an unsupported backend name
var ErrUnknownBackend = fmt.Errorf("unknown cache backend")

// Store persists opaque values under string keys with an expiry.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key, repository string, value []byte, ttl time.Duration) error
	// Purge removes every entry and returns how many were removed.
	Purge(ctx context.Context) (int, error)
	Close() error
}

// Config selects and configures a cache backend
type Config struct {
	// Backend is "none", "bolt", "sqlite" or "postgres"
	Backend string
	// Path is the bbolt file for the bolt backend
	Path string
	// DSN is the connection string for the SQL backends
	DSN string
	TTL time.Duration
}

// Open returns the configured Store, or nil when caching is disabled.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "none", "off":
		return nil, nil
	case "bolt":
		store, err := OpenBolt(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite", "postgres":
		database, err := db.New(ctx, db.Config{Driver: cfg.Backend, DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return NewSQLStore(database), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
