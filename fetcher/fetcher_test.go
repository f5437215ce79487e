package fetcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mcgillij/gitlog-summary/github"
	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/models"
	"github.com/mcgillij/gitlog-summary/window"
)

func init() {
	logger.UseNop()
}

// MockGitHubClient is a mock implementation of GitHubClientInterface
type MockGitHubClient struct {
	mock.Mock
}

func (m *MockGitHubClient) FetchCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time) ([]models.Commit, error) {
	args := m.Called(ctx, repo, since, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Commit), args.Error(1)
}

type clientFunc func(ctx context.Context) ([]models.Commit, error)

func (f clientFunc) FetchCommits(ctx context.Context, _ models.RepositoryRef, _, _ time.Time) ([]models.Commit, error) {
	return f(ctx)
}

var (
	repoA = models.RepositoryRef{Owner: "org", Name: "a"}
	day   = window.New(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	fast  = Options{InitialInterval: time.Millisecond, MaxRetries: 2}
)

func commitAt(sha string, ts time.Time) models.Commit {
	return models.Commit{SHA: sha, Repository: repoA, AuthorName: "Alice", Timestamp: ts}
}

func TestFetchDayFiltersToWindow(t *testing.T) {
	since, until := day.Padded()
	client := new(MockGitHubClient)
	client.On("FetchCommits", mock.Anything, repoA, since, until).Return([]models.Commit{
		commitAt("before", day.Start.Add(-time.Nanosecond)),
		commitAt("start", day.Start),
		commitAt("noon", day.Start.Add(12*time.Hour)),
		commitAt("end", day.End),
	}, nil).Once()

	commits, err := FetchDay(context.Background(), client, repoA, day, fast)
	require.NoError(t, err)

	var shas []string
	for _, c := range commits {
		shas = append(shas, c.SHA)
	}
	assert.Equal(t, []string{"start", "noon"}, shas)
	client.AssertExpectations(t)
}

func TestFetchDayCountsCommitDate(t *testing.T) {
	since, until := day.Padded()
	rebased := commitAt("rebased", day.Start.Add(9*time.Hour))
	rebased.AuthoredAt = day.Start.AddDate(-1, 0, 0)
	stale := commitAt("stale", day.Start.Add(-2*time.Hour))
	stale.AuthoredAt = day.Start.Add(3 * time.Hour)

	client := new(MockGitHubClient)
	client.On("FetchCommits", mock.Anything, repoA, since, until).Return([]models.Commit{rebased, stale}, nil).Once()

	commits, err := FetchDay(context.Background(), client, repoA, day, fast)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "rebased", commits[0].SHA)
}

func TestFetchDayRetries(t *testing.T) {
	rateLimited := &github.RateLimitedError{Err: fmt.Errorf("secondary rate limit")}
	hinted := &github.RateLimitedError{RetryAfter: 5 * time.Millisecond, Err: fmt.Errorf("429")}
	tooLong := &github.RateLimitedError{RetryAfter: time.Hour, Err: fmt.Errorf("quota exhausted")}

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
		wantKind  models.FailureKind
	}{
		{
			name:      "recovers after backoff",
			errs:      []error{rateLimited, nil},
			wantCalls: 2,
		},
		{
			name:      "honors retry hint",
			errs:      []error{hinted, hinted, nil},
			wantCalls: 3,
		},
		{
			name:      "gives up after retry budget",
			errs:      []error{hinted, hinted, hinted},
			wantCalls: 3,
			wantErr:   hinted,
			wantKind:  models.FailureRateLimited,
		},
		{
			name:      "hint beyond max wait is not retried",
			errs:      []error{tooLong},
			wantCalls: 1,
			wantErr:   tooLong,
			wantKind:  models.FailureRateLimited,
		},
		{
			name:      "not found is permanent",
			errs:      []error{fmt.Errorf("failed to fetch commits for org/a: %w", github.ErrRepositoryNotFound)},
			wantCalls: 1,
			wantErr:   github.ErrRepositoryNotFound,
			wantKind:  models.FailureRepositoryNotFound,
		},
		{
			name:      "unavailable is permanent",
			errs:      []error{fmt.Errorf("%w: 502", github.ErrSourceUnavailable)},
			wantCalls: 1,
			wantErr:   github.ErrSourceUnavailable,
			wantKind:  models.FailureSourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			client := clientFunc(func(ctx context.Context) ([]models.Commit, error) {
				err := tt.errs[calls]
				calls++
				if err != nil {
					return nil, err
				}
				return []models.Commit{commitAt("ok", day.Start.Add(time.Hour))}, nil
			})

			commits, err := FetchDay(context.Background(), client, repoA, day, fast)
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Len(t, commits, 1)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, FailureOf(repoA, err).Kind)
		})
	}
}

func TestFetchDayTimeoutIsUnavailable(t *testing.T) {
	client := clientFunc(func(ctx context.Context) ([]models.Commit, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: request timed out: %v", github.ErrSourceUnavailable, ctx.Err())
	})

	opts := fast
	opts.Timeout = 20 * time.Millisecond
	_, err := FetchDay(context.Background(), client, repoA, day, opts)
	assert.ErrorIs(t, err, github.ErrSourceUnavailable)
	assert.Equal(t, models.FailureSourceUnavailable, FailureOf(repoA, err).Kind)
}

func TestFetchDayCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := clientFunc(func(ctx context.Context) ([]models.Commit, error) {
		cancel()
		return nil, ctx.Err()
	})

	_, err := FetchDay(ctx, client, repoA, day, fast)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFailureOfKeepsRetryHint(t *testing.T) {
	err := fmt.Errorf("failed to fetch commits for org/a: %w", &github.RateLimitedError{RetryAfter: 7 * time.Second, Err: fmt.Errorf("429")})
	failure := FailureOf(repoA, err)
	assert.Equal(t, models.FailureRateLimited, failure.Kind)
	assert.Equal(t, 7*time.Second, failure.RetryAfter)
	assert.Equal(t, repoA, failure.Repository)
}
