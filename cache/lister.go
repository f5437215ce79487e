package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mcgillij/gitlog-summary/github"
	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/metrics"
	"github.com/mcgillij/gitlog-summary/models"
)

// Lister wraps a github.PageLister and serves repeated page requests from
// a Store. Cache failures are logged and fall through to the API.
type Lister struct {
	next     github.PageLister
	store    Store
	ttl      time.Duration
	maxPages int
	metrics  *metrics.Metrics
}

// NewLister creates a caching lister in front of next.
func NewLister(next github.PageLister, store Store, ttl time.Duration, maxPages int, m *metrics.Metrics) *Lister {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lister{next: next, store: store, ttl: ttl, maxPages: maxPages, metrics: m}
}

// Key returns the cache key of one commit page.
func Key(repo models.RepositoryRef, since, until time.Time, page int) string {
	return fmt.Sprintf("commits:%s:%d:%d:%d", repo, since.Unix(), until.Unix(), page)
}

// ListCommits returns the cached page when present, otherwise fetches and
// stores it.
func (l *Lister) ListCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time, page int) (github.CommitPage, error) {
	key := Key(repo, since, until, page)

	data, ok, err := l.store.Get(ctx, key)
	if err != nil {
		logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		var cached github.CommitPage
		if err := json.Unmarshal(data, &cached); err == nil {
			l.metrics.CacheLookup(true)
			return cached, nil
		}
		logger.Warn("Discarding corrupt cache entry", zap.String("key", key))
	}
	l.metrics.CacheLookup(false)

	result, err := l.next.ListCommits(ctx, repo, since, until, page)
	if err != nil {
		return github.CommitPage{}, err
	}

	data, err = json.Marshal(result)
	if err == nil {
		err = l.store.Put(ctx, key, repo.String(), data, l.ttl)
	}
	if err != nil {
		logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

// FetchCommits runs the pagination loop through the cache.
func (l *Lister) FetchCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time) ([]models.Commit, error) {
	return github.FetchAllPages(ctx, l, repo, since, until, l.maxPages)
}
