// Package fetcher retrieves one repository's commits for a day: it pads
// the query window, bounds each attempt with a timeout, retries when the
// API throttles, and keeps only commits inside the day.
package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/mcgillij/gitlog-summary/github"
	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/metrics"
	"github.com/mcgillij/gitlog-summary/models"
	"github.com/mcgillij/gitlog-summary/window"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultMaxRetryWait = 2 * time.Minute
)

// GitHubClientInterface defines the GitHub client operations needed by the fetcher
type GitHubClientInterface interface {
	FetchCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time) ([]models.Commit, error)
}

// Options tunes a repository fetch
type Options struct {
	// Timeout bounds each attempt
	Timeout time.Duration
	// MaxRetries is how many times a rate limited fetch is retried
	MaxRetries int
	// MaxRetryWait is the longest server retry hint that is waited out
	MaxRetryWait time.Duration
	// InitialInterval seeds the exponential backoff when the server gives
	// no hint
	InitialInterval time.Duration
	Metrics         *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.MaxRetryWait <= 0 {
		o.MaxRetryWait = DefaultMaxRetryWait
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = backoff.DefaultInitialInterval
	}
	return o
}

// FetchDay fetches the commits of repo committed inside w.
func FetchDay(ctx context.Context, client GitHubClientInterface, repo models.RepositoryRef, w window.Window, opts Options) ([]models.Commit, error) {
	opts = opts.withDefaults()
	since, until := w.Padded()

	log := logger.WithContext(zap.String("repository", repo.String()))
	started := time.Now()

	var lastErr error
	operation := func() ([]models.Commit, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()

		commits, err := client.FetchCommits(attemptCtx, repo, since, until)
		if err == nil {
			return commits, nil
		}
		lastErr = err

		var rateErr *github.RateLimitedError
		if !errors.As(err, &rateErr) || rateErr.RetryAfter > opts.MaxRetryWait {
			return nil, backoff.Permanent(err)
		}
		if rateErr.RetryAfter > 0 {
			return nil, &backoff.RetryAfterError{Duration: rateErr.RetryAfter}
		}
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.InitialInterval

	commits, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(opts.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			opts.Metrics.Retry(repo.String())
			log.Warn("Rate limited, retrying",
				zap.Duration("wait", next),
				zap.Error(lastErr))
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if lastErr == nil {
			lastErr = err
		}
		opts.Metrics.ObserveFetch(outcomeOf(lastErr), time.Since(started))
		return nil, lastErr
	}

	opts.Metrics.CommitsFetched(repo.String(), len(commits))
	opts.Metrics.ObserveFetch(metrics.OutcomeOK, time.Since(started))

	inWindow := make([]models.Commit, 0, len(commits))
	for _, c := range commits {
		if w.Contains(c.Timestamp) {
			inWindow = append(inWindow, c)
		}
	}

	log.Debug("Fetched repository",
		zap.Int("fetched", len(commits)),
		zap.Int("in_window", len(inWindow)))
	return inWindow, nil
}

// FailureOf classifies a fetch error for the report.
func FailureOf(repo models.RepositoryRef, err error) models.RepositoryFailure {
	failure := models.RepositoryFailure{Repository: repo, Message: err.Error()}

	var rateErr *github.RateLimitedError
	switch {
	case errors.As(err, &rateErr):
		failure.Kind = models.FailureRateLimited
		failure.RetryAfter = rateErr.RetryAfter
	case errors.Is(err, github.ErrRepositoryNotFound):
		failure.Kind = models.FailureRepositoryNotFound
	default:
		failure.Kind = models.FailureSourceUnavailable
	}
	return failure
}

func outcomeOf(err error) string {
	switch FailureOf(models.RepositoryRef{}, err).Kind {
	case models.FailureRateLimited:
		return metrics.OutcomeRateLimited
	case models.FailureRepositoryNotFound:
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeUnavailable
	}
}
