package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcgillij/gitlog-summary/aggregator"
	"github.com/mcgillij/gitlog-summary/cache"
	"github.com/mcgillij/gitlog-summary/config"
	"github.com/mcgillij/gitlog-summary/fetcher"
	"github.com/mcgillij/gitlog-summary/github"
	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/metrics"
	"github.com/mcgillij/gitlog-summary/models"
	"github.com/mcgillij/gitlog-summary/narrate"
	"github.com/mcgillij/gitlog-summary/summary"
	"github.com/mcgillij/gitlog-summary/window"
)

// GitHubClientInterface abstracts the GitHub client operations needed by the service
// (for testability)
type GitHubClientInterface interface {
	github.PageLister
	FetchCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time) ([]models.Commit, error)
	ListUserEmails(ctx context.Context, login string) ([]string, error)
	ListUserRepositories(ctx context.Context) ([]models.RepositoryRef, error)
}

// NarratorInterface abstracts the AI narrative generator
type NarratorInterface interface {
	Annotate(ctx context.Context, report *summary.Report)
}

// Service errors
var (
	ErrServiceInit     = fmt.Errorf("service initialization error")
	ErrServiceShutdown = fmt.Errorf("service shutdown error")
)

// Service runs one daily summary
type Service struct {
	config   *config.Config
	client   GitHubClientInterface
	source   aggregator.Source
	cache    cache.Store
	narrator NarratorInterface
	metrics  *metrics.Metrics
	runID    string
	now      func() time.Time
}

// NewService creates a new service instance from a loaded configuration
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := metrics.New()
	client, err := github.NewClient(github.ClientConfig{
		Token:             cfg.GitHubToken,
		BaseURL:           cfg.GitHubAPIURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxPages:          cfg.MaxPages,
		Metrics:           m,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GitHub client: %v", ErrServiceInit, err)
	}

	store, err := cache.Open(ctx, cache.Config{
		Backend: cfg.CacheBackend,
		Path:    cfg.CachePath,
		DSN:     cfg.CacheDSN,
		TTL:     cfg.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open cache: %v", ErrServiceInit, err)
	}

	var narrator NarratorInterface
	if cfg.AISummary {
		narrator = narrate.New(narrate.Config{
			BaseURL: cfg.AIBaseURL,
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
		})
	}

	s := newService(cfg, client, store, narrator, m)

	logger.Info("Service initialized successfully",
		zap.Int("repositories", len(cfg.Repositories)),
		zap.Bool("all_repos", cfg.AllRepos),
		zap.String("token_source", cfg.TokenSource),
		zap.String("cache", cfg.CacheBackend),
		zap.Bool("ai_summary", cfg.AISummary))

	return s, nil
}

func newService(cfg *config.Config, client GitHubClientInterface, store cache.Store, narrator NarratorInterface, m *metrics.Metrics) *Service {
	runID := uuid.NewString()
	logger.With(zap.String("run_id", runID))

	var source aggregator.Source = client
	if store != nil {
		source = cache.NewLister(client, store, cfg.CacheTTL, cfg.MaxPages, m)
	}

	return &Service{
		config:   cfg,
		client:   client,
		source:   source,
		cache:    store,
		narrator: narrator,
		metrics:  m,
		runID:    runID,
		now:      time.Now,
	}
}

// RunID identifies this run in logs
func (s *Service) RunID() string {
	return s.runID
}

// Run aggregates the configured day and builds the report. Repository
// failures are part of the report; only configuration problems and
// cancellation are returned as errors.
func (s *Service) Run(ctx context.Context) (summary.Report, error) {
	w, err := window.Parse(s.config.Date, s.config.Timezone, s.now())
	if err != nil {
		return summary.Report{}, fmt.Errorf("%w: %v", config.ErrConfigurationInvalid, err)
	}

	repos, err := s.repositories(ctx)
	if err != nil {
		return summary.Report{}, err
	}

	cfg := aggregator.Config{
		Concurrency:      s.config.Concurrency,
		StrictIdentities: s.config.StrictIdentities,
		Fetch: fetcher.Options{
			Timeout:    s.config.RequestTimeout,
			MaxRetries: s.config.MaxRetries,
		},
		Metrics: s.metrics,
	}
	if s.config.EmailLookup {
		cfg.EmailLookup = s.client
	}

	result, err := aggregator.New(s.source, cfg).Aggregate(ctx, aggregator.Request{
		Repositories:      repos,
		Window:            w,
		GroupByRepository: s.config.GroupByRepository,
		Author:            s.config.Author,
	})
	if err != nil {
		return summary.Report{}, err
	}

	report := summary.Build(result)
	if s.narrator != nil && len(report.Sections) > 0 {
		s.narrator.Annotate(ctx, &report)
	}
	if err := ctx.Err(); err != nil {
		return summary.Report{}, err
	}

	s.metrics.Finish(s.now())
	if err := s.metrics.WriteTextfile(s.config.MetricsFile); err != nil {
		logger.Warn("Failed to write metrics", zap.Error(err))
	}

	logger.Info("Summary ready",
		zap.String("date", report.Date),
		zap.String("status", string(report.Status)),
		zap.Int("commits", report.TotalCommits),
		zap.Int("failures", len(report.Failures)))

	return report, nil
}

// repositories returns the configured list, or the token owner's
// repositories when --all-repos is set and none were named.
func (s *Service) repositories(ctx context.Context) ([]models.RepositoryRef, error) {
	if len(s.config.Repositories) > 0 || !s.config.AllRepos {
		return s.config.Repositories, nil
	}

	logger.Info("Discovering repositories of the authenticated user")
	repos, err := s.client.ListUserRepositories(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("%w: the authenticated user has no repositories", config.ErrConfigurationInvalid)
	}
	return repos, nil
}

// PurgeCache empties the response cache
func (s *Service) PurgeCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.Purge(ctx)
}

// Close performs cleanup operations
func (s *Service) Close() error {
	logger.Info("Closing service")
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			return fmt.Errorf("%w: failed to close cache: %v", ErrServiceShutdown, err)
		}
	}
	return nil
}

// IsFatal reports whether err must abort the run without output
func IsFatal(err error) bool {
	return errors.Is(err, config.ErrConfigurationInvalid)
}
