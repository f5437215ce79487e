package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var pagesBucket = []byte("commit_pages")

type boltEntry struct {
	Repository string `json:"repository"`
	Payload    []byte `json:"payload"`
	ExpiresAt  int64  `json:"expires_at"`
}

// BoltStore is a Store backed by a local bbolt file.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens (creating if needed) the bbolt file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt cache path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	database, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}

	err = database.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pagesBucket)
		return err
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &BoltStore{db: database, now: time.Now}, nil
}

func (s *BoltStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var entry boltEntry
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(pagesBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	if !found || s.now().Unix() >= entry.ExpiresAt {
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

func (s *BoltStore) Put(_ context.Context, key, repository string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(boltEntry{
		Repository: repository,
		Payload:    value,
		ExpiresAt:  s.now().Add(ttl).Unix(),
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pagesBucket).Put([]byte(key), data)
	})
}

func (s *BoltStore) Purge(_ context.Context) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		n = tx.Bucket(pagesBucket).Stats().KeyN
		if err := tx.DeleteBucket(pagesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(pagesBucket)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return n, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
