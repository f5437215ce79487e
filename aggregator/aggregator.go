// Package aggregator fans out over the configured repositories, collects
// the day's commits and groups them by resolved contributor.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mcgillij/gitlog-summary/fetcher"
	"github.com/mcgillij/gitlog-summary/identity"
	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/metrics"
	"github.com/mcgillij/gitlog-summary/models"
	"github.com/mcgillij/gitlog-summary/window"
)

// DefaultConcurrency is the number of repositories fetched at once
const DefaultConcurrency = 4

// Source fetches the commits of one repository committed in [since, until)
type Source interface {
	FetchCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time) ([]models.Commit, error)
}

// Config holds the collaborators and tuning of an Aggregator
type Config struct {
	Concurrency      int
	StrictIdentities bool
	// EmailLookup enables identity enrichment when set
	EmailLookup identity.EmailLookup
	Fetch       fetcher.Options
	Metrics     *metrics.Metrics
}

// Request describes one aggregation run
type Request struct {
	Repositories      []models.RepositoryRef
	Window            window.Window
	GroupByRepository bool
	// Author keeps only the contributor known by this login, email or name
	Author string
}

// Aggregator builds AggregationResults from a Source
type Aggregator struct {
	source      Source
	concurrency int
	strict      bool
	lookup      identity.EmailLookup
	fetch       fetcher.Options
	metrics     *metrics.Metrics
}

// New creates an Aggregator reading from source.
func New(source Source, cfg Config) *Aggregator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	fetch := cfg.Fetch
	if fetch.Metrics == nil {
		fetch.Metrics = cfg.Metrics
	}
	return &Aggregator{
		source:      source,
		concurrency: concurrency,
		strict:      cfg.StrictIdentities,
		lookup:      cfg.EmailLookup,
		fetch:       fetch,
		metrics:     cfg.Metrics,
	}
}

// collector is the single aggregation point shared by fetch workers
type collector struct {
	mu       sync.Mutex
	commits  []models.Commit
	failures []models.RepositoryFailure
}

func (c *collector) add(commits []models.Commit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits = append(c.commits, commits...)
}

func (c *collector) fail(f models.RepositoryFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, f)
}

// Aggregate fetches every repository in req and groups the day's commits
// by contributor. Repository failures are reported in the result and never
// abort the run. When ctx is canceled no result is returned.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*models.AggregationResult, error) {
	repos := uniqueRepositories(req.Repositories)
	if len(repos) == 0 {
		return nil, fmt.Errorf("%w: no repositories configured", models.ErrConfigurationInvalid)
	}
	if req.Window.Location == nil || !req.Window.Start.Before(req.Window.End) {
		return nil, fmt.Errorf("%w: empty day window", models.ErrConfigurationInvalid)
	}

	logger.Info("Aggregating commits",
		zap.String("window", req.Window.String()),
		zap.Int("repositories", len(repos)),
		zap.Int("concurrency", a.concurrency))

	var col collector
	var g errgroup.Group
	g.SetLimit(a.concurrency)

	for _, repo := range repos {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			commits, err := fetcher.FetchDay(ctx, a.source, repo, req.Window, a.fetch)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				failure := fetcher.FailureOf(repo, err)
				a.metrics.RepositoryFailed(string(failure.Kind))
				logger.Warn("Skipping repository",
					zap.String("repository", repo.String()),
					zap.String("kind", string(failure.Kind)),
					zap.Error(err))
				col.fail(failure)
				return nil
			}
			col.add(commits)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	commits := a.dedupe(col.commits)

	resolver := identity.NewResolver(a.strict)
	for _, c := range commits {
		resolver.Observe(c.Author())
	}

	result := &models.AggregationResult{
		Date:         req.Window.Start,
		Timezone:     req.Window.Location.String(),
		Repositories: repos,
		Failures:     sortFailures(col.failures),
	}

	if a.lookup != nil {
		warnings, err := resolver.Enrich(ctx, a.lookup)
		if err != nil {
			return nil, err
		}
		for _, w := range warnings {
			result.Warnings = append(result.Warnings, w.Error())
		}
	}
	for _, c := range resolver.Conflicts() {
		result.Warnings = append(result.Warnings, c.Error())
	}

	result.Contributors = group(resolver, commits, req.GroupByRepository)
	if req.Author != "" {
		result.Contributors = filterAuthor(result.Contributors, req.Author)
	}

	a.metrics.SetContributors(len(result.Contributors))
	logger.Info("Aggregation complete",
		zap.Int("commits", result.TotalCommits()),
		zap.Int("contributors", len(result.Contributors)),
		zap.Int("failures", len(result.Failures)))

	return result, nil
}

// dedupe orders commits by (timestamp, repository, SHA) and keeps the first
// commit seen for each SHA.
func (a *Aggregator) dedupe(commits []models.Commit) []models.Commit {
	sorted := make([]models.Commit, len(commits))
	copy(sorted, commits)
	sortCommits(sorted)

	seen := make(map[string]struct{}, len(sorted))
	out := sorted[:0]
	for _, c := range sorted {
		if _, dup := seen[c.SHA]; dup {
			a.metrics.DuplicateCommit()
			continue
		}
		seen[c.SHA] = struct{}{}
		a.metrics.CommitKept()
		out = append(out, c)
	}
	return out
}

func sortCommits(commits []models.Commit) {
	sort.SliceStable(commits, func(i, j int) bool {
		ci, cj := commits[i], commits[j]
		if !ci.Timestamp.Equal(cj.Timestamp) {
			return ci.Timestamp.Before(cj.Timestamp)
		}
		if ri, rj := ci.Repository.String(), cj.Repository.String(); ri != rj {
			return ri < rj
		}
		return ci.SHA < cj.SHA
	})
}

// group builds one ContributorCommits per identity with at least one
// commit, ordered by identity ID. commits must already be sorted.
func group(resolver *identity.Resolver, commits []models.Commit, byRepository bool) []models.ContributorCommits {
	identities := resolver.Identities()
	byID := make(map[string]*models.ContributorCommits)
	var ids []string

	for _, c := range commits {
		id := resolver.IdentityOf(c.Author())
		cc, ok := byID[id]
		if !ok {
			cc = &models.ContributorCommits{Contributor: identities[id]}
			byID[id] = cc
			ids = append(ids, id)
		}
		cc.Commits = append(cc.Commits, c)
	}

	sort.Strings(ids)
	out := make([]models.ContributorCommits, 0, len(ids))
	for _, id := range ids {
		cc := byID[id]
		if byRepository {
			cc.Repositories = groupByRepository(cc.Commits)
		}
		out = append(out, *cc)
	}
	return out
}

func groupByRepository(commits []models.Commit) []models.RepositoryCommits {
	index := make(map[models.RepositoryRef]int)
	var out []models.RepositoryCommits
	for _, c := range commits {
		i, ok := index[c.Repository]
		if !ok {
			i = len(out)
			index[c.Repository] = i
			out = append(out, models.RepositoryCommits{Repository: c.Repository})
		}
		out[i].Commits = append(out[i].Commits, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Repository.String() < out[j].Repository.String()
	})
	return out
}

func filterAuthor(contributors []models.ContributorCommits, author string) []models.ContributorCommits {
	var out []models.ContributorCommits
	for _, cc := range contributors {
		if cc.Contributor.Matches(author) || strings.EqualFold(cc.Contributor.DisplayName, strings.TrimSpace(author)) {
			out = append(out, cc)
		}
	}
	return out
}

func uniqueRepositories(repos []models.RepositoryRef) []models.RepositoryRef {
	seen := make(map[string]struct{}, len(repos))
	var out []models.RepositoryRef
	for _, r := range repos {
		key := strings.ToLower(r.String())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func sortFailures(failures []models.RepositoryFailure) []models.RepositoryFailure {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Repository.String() < failures[j].Repository.String()
	})
	return failures
}
