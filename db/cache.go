package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GetEntry returns the live cache entry stored under key
func (db *DB) GetEntry(ctx context.Context, key string, now time.Time) (CacheEntry, error) {
	if key == "" {
		return CacheEntry{}, fmt.Errorf("%w: cache key cannot be empty", ErrInvalidInput)
	}

	stmt, err := db.getStmt(ctx, `
		SELECT cache_key, repository, payload, created_at, expires_at
		FROM response_cache
		WHERE cache_key = ?
	`)
	if err != nil {
		return CacheEntry{}, err
	}

	var entry CacheEntry
	if err := stmt.GetContext(ctx, &entry, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CacheEntry{}, ErrCacheMiss
		}
		return CacheEntry{}, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	if entry.Expired(now) {
		return CacheEntry{}, ErrCacheMiss
	}
	return entry, nil
}

// PutEntry stores or replaces a cache entry
func (db *DB) PutEntry(ctx context.Context, entry CacheEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("%w: cache key cannot be empty", ErrInvalidInput)
	}

	query := db.conn.Rebind(`
		INSERT INTO response_cache (cache_key, repository, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			repository = EXCLUDED.repository,
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`)

	if _, err := db.conn.ExecContext(ctx, query,
		entry.Key,
		entry.Repository,
		entry.Payload,
		entry.CreatedAt,
		entry.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", entry.Key, err)
	}
	return nil
}

// PurgeExpired deletes entries that are stale at now
func (db *DB) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(`DELETE FROM response_cache WHERE expires_at <= ?`), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		safeLogInfo("Purged expired cache entries", zap.Int64("count", n))
	}
	return n, nil
}

// Purge deletes every cache entry
func (db *DB) Purge(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM response_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
