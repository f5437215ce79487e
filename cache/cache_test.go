package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mcgillij/gitlog-summary/github"
	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/models"
)

func init() {
	logger.UseNop()
}

// MockPageLister is a mock implementation of github.PageLister
type MockPageLister struct {
	mock.Mock
}

func (m *MockPageLister) ListCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time, page int) (github.CommitPage, error) {
	args := m.Called(ctx, repo, since, until, page)
	return args.Get(0).(github.CommitPage), args.Error(1)
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	boltStore, err := Open(ctx, Config{Backend: "bolt", Path: filepath.Join(t.TempDir(), "nested", "cache.db")})
	require.NoError(t, err)
	sqlStore, err := Open(ctx, Config{Backend: "sqlite", DSN: filepath.Join(t.TempDir(), "cache.sqlite")})
	require.NoError(t, err)

	t.Cleanup(func() {
		boltStore.Close()
		sqlStore.Close()
	})
	return map[string]Store{"bolt": boltStore, "sqlite": sqlStore}
}

func TestStores(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Put(ctx, "k1", "org/a", []byte("one"), time.Minute))
			require.NoError(t, store.Put(ctx, "k2", "org/a", []byte("two"), time.Minute))
			require.NoError(t, store.Put(ctx, "k1", "org/a", []byte("uno"), time.Minute))

			value, ok, err := store.Get(ctx, "k1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "uno", string(value))

			n, err := store.Purge(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, ok, err = store.Get(ctx, "k2")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBoltStoreExpiry(t *testing.T) {
	store, err := OpenBolt(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(context.Background(), "k", "org/a", []byte("v"), time.Minute))

	_, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, err = store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), Config{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = Open(context.Background(), Config{Backend: "redis"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestListerServesRepeatsFromCache(t *testing.T) {
	store, err := OpenBolt(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	repo := models.RepositoryRef{Owner: "org", Name: "a"}
	since := time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)
	until := since.Add(52 * time.Hour)
	page := github.CommitPage{
		Commits: []models.Commit{{
			SHA:        "abc1234def",
			Repository: repo,
			AuthorName: "Alice",
			Timestamp:  since.Add(time.Hour),
			Message:    "fix parser",
		}},
	}

	next := new(MockPageLister)
	next.On("ListCommits", mock.Anything, repo, since, until, 1).Return(page, nil).Once()

	lister := NewLister(next, store, time.Minute, 0, nil)

	first, err := lister.FetchCommits(context.Background(), repo, since, until)
	require.NoError(t, err)
	second, err := lister.FetchCommits(context.Background(), repo, since, until)
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].SHA, second[0].SHA)
	assert.True(t, first[0].Timestamp.Equal(second[0].Timestamp))
	next.AssertExpectations(t)
}

func TestListerDoesNotCacheErrors(t *testing.T) {
	store, err := OpenBolt(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	repo := models.RepositoryRef{Owner: "org", Name: "gone"}
	since := time.Unix(0, 0)
	until := since.Add(time.Hour)

	next := new(MockPageLister)
	next.On("ListCommits", mock.Anything, repo, since, until, 1).
		Return(github.CommitPage{}, github.ErrRepositoryNotFound).Twice()

	lister := NewLister(next, store, time.Minute, 0, nil)
	for i := 0; i < 2; i++ {
		_, err := lister.ListCommits(context.Background(), repo, since, until, 1)
		assert.True(t, errors.Is(err, github.ErrRepositoryNotFound))
	}
	next.AssertExpectations(t)
}
