package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/metrics"
	"github.com/mcgillij/gitlog-summary/models"
)

const (
	// DefaultPerPage is GitHub's maximum page size
	DefaultPerPage = 100
	// DefaultMaxPages bounds pagination for a single repository and window
	DefaultMaxPages = 50
	// DefaultRequestsPerSecond keeps well under the 5000 requests/hour quota
	DefaultRequestsPerSecond = 5.0

	noreplyDomain = "users.noreply.github.com"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Token             string
	BaseURL           string
	RequestsPerSecond float64
	PerPage           int
	MaxPages          int
	HTTPClient        *http.Client
	Metrics           *metrics.Metrics
}

// CommitPage is one page of commits returned by the API
type CommitPage struct {
	Commits     []models.Commit
	HasNextPage bool
	NextPage    int
}

// Client represents a GitHub API client
type Client struct {
	client      *gh.Client
	rateLimiter *rate.Limiter
	perPage     int
	maxPages    int
	metrics     *metrics.Metrics

	mu        sync.Mutex
	viewer    string
	viewerSet bool
	hasToken  bool
}

// NewClient creates a GitHub client. The token is attached to every
// request and never logged.
func NewClient(cfg ClientConfig) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	client := gh.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}

	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
		}
		client.BaseURL = u
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	perPage := cfg.PerPage
	if perPage <= 0 || perPage > DefaultPerPage {
		perPage = DefaultPerPage
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	logger.Debug("Initializing GitHub client",
		zap.String("base_url", client.BaseURL.String()),
		zap.Float64("requests_per_second", rps),
		zap.Bool("authenticated", cfg.Token != ""))

	return &Client{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 1),
		perPage:     perPage,
		maxPages:    maxPages,
		metrics:     cfg.Metrics,
		hasToken:    cfg.Token != "",
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return classify(ctx.Err())
		}
		// the limiter refuses waits that would overrun the deadline
		return fmt.Errorf("%w: rate limiter: %v", ErrSourceUnavailable, err)
	}
	return nil
}

// ListCommits fetches a single page of commits committed in [since, until).
// An empty repository yields an empty page.
func (c *Client) ListCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time, page int) (CommitPage, error) {
	if page < 1 {
		page = 1
	}
	if err := c.wait(ctx); err != nil {
		return CommitPage{}, err
	}

	opts := &gh.CommitsListOptions{
		Since: since,
		Until: until,
		ListOptions: gh.ListOptions{
			Page:    page,
			PerPage: c.perPage,
		},
	}

	logger.Debug("Fetching commits page",
		zap.String("repository", repo.String()),
		zap.Int("page", page),
		zap.Time("since", since),
		zap.Time("until", until))

	commits, resp, err := c.client.Repositories.ListCommits(ctx, repo.Owner, repo.Name, opts)
	if isEmptyRepository(err) {
		c.metrics.APIRequest("list_commits", metrics.OutcomeOK)
		logger.Debug("Repository has no commits", zap.String("repository", repo.String()))
		return CommitPage{Commits: []models.Commit{}}, nil
	}
	if err != nil {
		classified := classify(err)
		c.metrics.APIRequest("list_commits", outcome(classified))
		logger.Debug("Failed to fetch commits page",
			zap.String("repository", repo.String()),
			zap.Int("page", page),
			zap.Error(err))
		return CommitPage{}, classified
	}
	c.metrics.APIRequest("list_commits", metrics.OutcomeOK)
	c.logRateLimit(resp)

	out := CommitPage{Commits: make([]models.Commit, 0, len(commits))}
	for _, rc := range commits {
		out.Commits = append(out.Commits, toModel(repo, rc))
	}
	if resp != nil && resp.NextPage != 0 {
		out.HasNextPage = true
		out.NextPage = resp.NextPage
	}
	return out, nil
}

// FetchCommits fetches every commit of repo in [since, until), following
// pagination until the API reports no further pages, a page reaches back
// before since, or the page budget is spent.
func (c *Client) FetchCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time) ([]models.Commit, error) {
	return FetchAllPages(ctx, c, repo, since, until, c.maxPages)
}

// PageLister lists one page of commits. Client satisfies it, as does the
// caching decorator in package cache.
type PageLister interface {
	ListCommits(ctx context.Context, repo models.RepositoryRef, since, until time.Time, page int) (CommitPage, error)
}

// FetchAllPages drives the pagination loop over any PageLister.
func FetchAllPages(ctx context.Context, lister PageLister, repo models.RepositoryRef, since, until time.Time, maxPages int) ([]models.Commit, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var all []models.Commit
	page := 1
	for fetched := 0; ; fetched++ {
		if fetched == maxPages {
			logger.Warn("Page budget exhausted, results may be truncated",
				zap.String("repository", repo.String()),
				zap.Int("max_pages", maxPages))
			break
		}

		result, err := lister.ListCommits(ctx, repo, since, until, page)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch commits for %s: %w", repo, err)
		}
		all = append(all, result.Commits...)

		if !result.HasNextPage || len(result.Commits) == 0 {
			break
		}
		if oldest(result.Commits).Before(since) {
			break
		}
		page = result.NextPage
	}

	logger.Debug("Fetched commits",
		zap.String("repository", repo.String()),
		zap.Int("total_count", len(all)))

	return all, nil
}

func oldest(commits []models.Commit) time.Time {
	earliest := commits[0].Timestamp
	for _, c := range commits[1:] {
		if c.Timestamp.Before(earliest) {
			earliest = c.Timestamp
		}
	}
	return earliest
}

// ListUserEmails returns the addresses GitHub attributes to login: the
// public profile email, both noreply aliases and, when login is the token's
// own user, its verified emails.
func (c *Client) ListUserEmails(ctx context.Context, login string) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	user, _, err := c.client.Users.Get(ctx, login)
	if err != nil {
		classified := classify(err)
		c.metrics.APIRequest("get_user", outcome(classified))
		return nil, fmt.Errorf("failed to get user %s: %w", login, classified)
	}
	c.metrics.APIRequest("get_user", metrics.OutcomeOK)

	seen := make(map[string]bool)
	var emails []string
	add := func(email string) {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" && !seen[email] {
			seen[email] = true
			emails = append(emails, email)
		}
	}

	add(user.GetEmail())
	add(fmt.Sprintf("%s@%s", user.GetLogin(), noreplyDomain))
	if user.GetID() != 0 {
		add(fmt.Sprintf("%d+%s@%s", user.GetID(), user.GetLogin(), noreplyDomain))
	}

	if viewer := c.authenticatedLogin(ctx); viewer != "" && strings.EqualFold(viewer, login) {
		verified, err := c.listVerifiedEmails(ctx)
		if err != nil {
			// /user/emails needs the user:email scope
			logger.Debug("Skipping verified email lookup", zap.Error(err))
		}
		for _, e := range verified {
			add(e)
		}
	}

	return emails, nil
}

func (c *Client) listVerifiedEmails(ctx context.Context) ([]string, error) {
	var out []string
	opts := &gh.ListOptions{PerPage: c.perPage}
	for {
		if err := c.wait(ctx); err != nil {
			return out, err
		}
		emails, resp, err := c.client.Users.ListEmails(ctx, opts)
		if err != nil {
			return out, classify(err)
		}
		for _, e := range emails {
			if e.GetVerified() {
				out = append(out, e.GetEmail())
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// authenticatedLogin returns the token owner's login, or "" when
// unauthenticated or unknown. The answer is looked up once.
func (c *Client) authenticatedLogin(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewerSet || !c.hasToken {
		return c.viewer
	}
	if err := c.wait(ctx); err != nil {
		return ""
	}
	user, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		logger.Debug("Failed to identify authenticated user", zap.Error(err))
		return ""
	}
	c.viewer = user.GetLogin()
	c.viewerSet = true
	return c.viewer
}

// ListUserRepositories returns the repositories owned by the authenticated
// user.
func (c *Client) ListUserRepositories(ctx context.Context) ([]models.RepositoryRef, error) {
	opts := &gh.RepositoryListOptions{
		Affiliation: "owner",
		Sort:        "full_name",
		ListOptions: gh.ListOptions{PerPage: c.perPage},
	}

	var repos []models.RepositoryRef
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := c.client.Repositories.List(ctx, "", opts)
		if err != nil {
			classified := classify(err)
			c.metrics.APIRequest("list_repositories", outcome(classified))
			return nil, fmt.Errorf("failed to list repositories: %w", classified)
		}
		c.metrics.APIRequest("list_repositories", metrics.OutcomeOK)
		for _, r := range page {
			repos = append(repos, models.RepositoryRef{Owner: r.GetOwner().GetLogin(), Name: r.GetName()})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	logger.Info("Discovered repositories", zap.Int("count", len(repos)))
	return repos, nil
}

// logRateLimit warns when the remaining API quota runs low
func (c *Client) logRateLimit(resp *gh.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	if resp.Rate.Remaining < 100 {
		logger.Warn("GitHub rate limit low",
			zap.Int("remaining", resp.Rate.Remaining),
			zap.Int("limit", resp.Rate.Limit),
			zap.Time("reset", resp.Rate.Reset.Time))
	}
}

func toModel(repo models.RepositoryRef, rc *gh.RepositoryCommit) models.Commit {
	author := rc.GetCommit().GetAuthor()
	committed := rc.GetCommit().GetCommitter().GetDate().Time
	if committed.IsZero() {
		committed = author.GetDate().Time
	}
	return models.Commit{
		SHA:         rc.GetSHA(),
		Repository:  repo,
		AuthorName:  author.GetName(),
		AuthorEmail: author.GetEmail(),
		AuthorLogin: rc.GetAuthor().GetLogin(),
		Timestamp:   committed,
		AuthoredAt:  author.GetDate().Time,
		Message:     rc.GetCommit().GetMessage(),
		URL:         rc.GetHTMLURL(),
	}
}
