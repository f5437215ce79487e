package cache

import (
	"context"
	"errors"
	"time"

	"github.com/mcgillij/gitlog-summary/db"
)

// SQLStore is a Store backed by the response_cache table, shareable
// between machines when pointed at Postgres.
type SQLStore struct {
	db  *db.DB
	now func() time.Time
}

// NewSQLStore wraps an open database.
func NewSQLStore(database *db.DB) *SQLStore {
	return &SQLStore{db: database, now: time.Now}
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.db.GetEntry(ctx, key, s.now())
	if errors.Is(err, db.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(entry.Payload), true, nil
}

func (s *SQLStore) Put(ctx context.Context, key, repository string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now()
	if _, err := s.db.PurgeExpired(ctx, now); err != nil {
		return err
	}
	return s.db.PutEntry(ctx, db.CacheEntry{
		Key:        key,
		Repository: repository,
		Payload:    string(value),
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	})
}

func (s *SQLStore) Purge(ctx context.Context) (int, error) {
	n, err := s.db.Purge(ctx)
	return int(n), err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
