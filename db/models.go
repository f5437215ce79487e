package db

import (
	"time"
)

const schema = `
	CREATE TABLE IF NOT EXISTS response_cache (
		cache_key  TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		payload    TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)
`

// CacheEntry is one cached API response
type CacheEntry struct {
	Key        string `db:"cache_key"`
	Repository string `db:"repository"`
	Payload    string `db:"payload"`
	CreatedAt  int64  `db:"created_at"`
	ExpiresAt  int64  `db:"expires_at"`
}

// Expired reports whether the entry is stale at now
func (e CacheEntry) Expired(now time.Time) bool {
	return now.Unix() >= e.ExpiresAt
}
