package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gh "github.com/google/go-github/v57/github"

	"github.com/mcgillij/gitlog-summary/metrics"
)

// Source errors
var (
	ErrSourceUnavailable  = fmt.Errorf("source unavailable")
	ErrRepositoryNotFound = fmt.Errorf("repository not found")
)

// RateLimitedError is returned when the API throttles the client.
// RetryAfter is the server's hint, zero when it gave none.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter.Round(time.Second), e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// classify maps transport and API errors onto the source error taxonomy.
// Cancellation is passed through untouched so callers can tell an
// interrupted run from a failed repository.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out: %v", ErrSourceUnavailable, err)
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return &RateLimitedError{RetryAfter: untilReset(rateErr.Rate.Reset.Time), Err: err}
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &RateLimitedError{RetryAfter: abuseErr.GetRetryAfter(), Err: err}
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrRepositoryNotFound, err)
		case http.StatusTooManyRequests:
			return &RateLimitedError{RetryAfter: retryAfterHeader(respErr.Response), Err: err}
		}
	}

	return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
}

// isEmptyRepository reports the 409 GitHub returns when listing the commits
// of a repository that has none.
func isEmptyRepository(err error) bool {
	var respErr *gh.ErrorResponse
	return errors.As(err, &respErr) &&
		respErr.Response != nil &&
		respErr.Response.StatusCode == http.StatusConflict
}

func untilReset(reset time.Time) time.Duration {
	if reset.IsZero() {
		return 0
	}
	if d := time.Until(reset); d > 0 {
		return d
	}
	return 0
}

func retryAfterHeader(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// outcome maps a classified error onto a metrics label.
func outcome(err error) string {
	var rateErr *RateLimitedError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.Canceled):
		return metrics.OutcomeCanceled
	case errors.As(err, &rateErr):
		return metrics.OutcomeRateLimited
	case errors.Is(err, ErrRepositoryNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeUnavailable
	}
}
