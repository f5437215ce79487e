// Package metrics collects Prometheus metrics for a single summary run.
//
// The tool is a one-shot CLI, so nothing is served over HTTP: metrics live
// in a private registry and can be written in the text exposition format
// for the node exporter's textfile collector. All methods are safe to call
// on a nil *Metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeRateLimited = "rate_limited"
	OutcomeUnavailable = "unavailable"
	OutcomeCanceled    = "canceled"
)

// Metrics contains the Prometheus collectors for one run.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests      *prometheus.CounterVec
	commitsFetched   *prometheus.CounterVec
	commitsKept      prometheus.Counter
	duplicates       prometheus.Counter
	repoFailures     *prometheus.CounterVec
	retries          *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	contributors     prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		apiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitlog_summary_api_requests_total",
				Help: "GitHub API requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),

		commitsFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitlog_summary_commits_fetched_total",
				Help: "Commits returned by the API before day filtering",
			},
			[]string{"repository"},
		),

		commitsKept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gitlog_summary_commits_in_window_total",
				Help: "Commits inside the day window after deduplication",
			},
		),

		duplicates: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gitlog_summary_duplicate_commits_total",
				Help: "Commits dropped because their hash was already seen",
			},
		),

		repoFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitlog_summary_repository_failures_total",
				Help: "Repositories that could not be fetched, by failure kind",
			},
			[]string{"kind"},
		),

		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitlog_summary_fetch_retries_total",
				Help: "Retries of repository fetches after rate limiting",
			},
			[]string{"repository"},
		),

		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitlog_summary_cache_lookups_total",
				Help: "Response cache lookups by result",
			},
			[]string{"result"},
		),

		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gitlog_summary_repository_fetch_seconds",
				Help:    "Time spent fetching one repository, retries included",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"outcome"},
		),

		contributors: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gitlog_summary_contributors",
				Help: "Contributors with at least one commit in the window",
			},
		),

		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gitlog_summary_last_run_timestamp_seconds",
				Help: "Unix time the run finished",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// APIRequest records one API call.
func (m *Metrics) APIRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(endpoint, outcome).Inc()
}

// CommitsFetched records commits returned for a repository.
func (m *Metrics) CommitsFetched(repository string, n int) {
	if m == nil {
		return
	}
	m.commitsFetched.WithLabelValues(repository).Add(float64(n))
}

// CommitKept records a commit accepted into the result.
func (m *Metrics) CommitKept() {
	if m == nil {
		return
	}
	m.commitsKept.Inc()
}

// DuplicateCommit records a commit dropped by hash deduplication.
func (m *Metrics) DuplicateCommit() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// RepositoryFailed records a failed repository.
func (m *Metrics) RepositoryFailed(kind string) {
	if m == nil {
		return
	}
	m.repoFailures.WithLabelValues(kind).Inc()
}

// Retry records a retried fetch.
func (m *Metrics) Retry(repository string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(repository).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveFetch records how long a repository fetch took.
func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetContributors records the number of contributors in the result.
func (m *Metrics) SetContributors(n int) {
	if m == nil {
		return
	}
	m.contributors.Set(float64(n))
}

// Finish stamps the run completion time.
func (m *Metrics) Finish(now time.Time) {
	if m == nil {
		return
	}
	m.lastRunTimestamp.Set(float64(now.Unix()))
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
