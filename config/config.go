package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mcgillij/gitlog-summary/models"
	"github.com/mcgillij/gitlog-summary/render"
	"github.com/mcgillij/gitlog-summary/window"
)

// EnvPrefix prefixes every environment variable the tool reads
const EnvPrefix = "GITLOG_SUMMARY"

// ErrConfigurationInvalid is returned by Validate
var ErrConfigurationInvalid = models.ErrConfigurationInvalid

// Config holds all configuration for the application
type Config struct {
	Repositories []models.RepositoryRef
	AllRepos     bool
	Date         string
	Timezone     string
	Concurrency  int

	GitHubToken       string
	TokenSource       string
	GitHubAPIURL      string
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	MaxRetries        int
	MaxPages          int

	EmailLookup       bool
	StrictIdentities  bool
	GroupByRepository bool
	Author            string
	Format            string

	CacheBackend string
	CachePath    string
	CacheDSN     string
	CacheTTL     time.Duration

	LogLevel    string
	LogFormat   string
	MetricsFile string

	AISummary bool
	AIBaseURL string
	AIModel   string
	AIAPIKey  string
}

// NewConfig creates a new Config instance
func NewConfig() *Config {
	return &Config{}
}

// Dir returns the directory holding the config file, credentials and cache
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "gitlog-summary")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gitlog-summary")
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "UTC")
	v.SetDefault("concurrency", 4)
	v.SetDefault("requests-per-second", 5.0)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("max-pages", 50)
	v.SetDefault("format", render.FormatText)
	v.SetDefault("cache", "none")
	v.SetDefault("cache-path", filepath.Join(Dir(), "cache.db"))
	v.SetDefault("cache-ttl", 15*time.Minute)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")
	v.SetDefault("ai-base-url", "http://localhost:1234/v1")
	v.SetDefault("ai-model", "local-model")
}

// Load reads configuration from v, which is expected to have flags bound.
// Precedence is flags, environment, .env file, config file, defaults.
func (c *Config) Load(v *viper.Viper) error {
	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read .env file: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	path := v.GetString("config")
	if path == "" {
		path = filepath.Join(Dir(), "config.yaml")
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	} else if v.IsSet("config") {
		return fmt.Errorf("%w: config file %s not found", ErrConfigurationInvalid, path)
	}

	repos, err := parseRepositories(v.GetStringSlice("repos"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationInvalid, err)
	}
	c.Repositories = repos
	c.AllRepos = v.GetBool("all-repos")
	c.Date = v.GetString("date")
	c.Timezone = v.GetString("timezone")
	c.Concurrency = v.GetInt("concurrency")

	c.GitHubToken = v.GetString("token")
	if c.GitHubToken != "" {
		c.TokenSource = "flag"
	}
	c.GitHubAPIURL = v.GetString("api-url")
	c.RequestsPerSecond = v.GetFloat64("requests-per-second")
	c.RequestTimeout = v.GetDuration("timeout")
	c.MaxRetries = v.GetInt("max-retries")
	c.MaxPages = v.GetInt("max-pages")

	c.EmailLookup = v.GetBool("email-lookup")
	c.StrictIdentities = v.GetBool("strict-identities")
	c.GroupByRepository = v.GetBool("group-by-repo")
	c.Author = v.GetString("author")
	c.Format = strings.ToLower(v.GetString("format"))

	c.CacheBackend = strings.ToLower(v.GetString("cache"))
	c.CachePath = v.GetString("cache-path")
	c.CacheDSN = v.GetString("cache-dsn")
	c.CacheTTL = v.GetDuration("cache-ttl")

	c.LogLevel = v.GetString("log-level")
	c.LogFormat = v.GetString("log-format")
	c.MetricsFile = v.GetString("metrics-file")

	c.AISummary = v.GetBool("ai-summary")
	c.AIBaseURL = v.GetString("ai-base-url")
	c.AIModel = v.GetString("ai-model")
	c.AIAPIKey = v.GetString("ai-api-key")

	return nil
}

// ResolveToken fills in the GitHub token from the credential chain when no
// token was given explicitly.
func (c *Config) ResolveToken(store *CredentialStore) error {
	if c.GitHubToken != "" {
		return nil
	}
	token, source, err := store.GitHubToken()
	if err != nil {
		return err
	}
	c.GitHubToken, c.TokenSource = token, source
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var problems []string

	if len(c.Repositories) == 0 && !c.AllRepos {
		problems = append(problems, "no repositories configured (use --repos or --all-repos)")
	}
	if c.AllRepos && c.GitHubToken == "" {
		problems = append(problems, "--all-repos needs a GitHub token")
	}
	if c.Concurrency < 1 || c.Concurrency > 16 {
		problems = append(problems, fmt.Sprintf("concurrency must be between 1 and 16, got %d", c.Concurrency))
	}
	if _, err := window.Parse(c.Date, c.Timezone, time.Now()); err != nil {
		problems = append(problems, err.Error())
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max-retries cannot be negative")
	}
	if !contains(render.Formats(), c.Format) {
		problems = append(problems, fmt.Sprintf("format must be one of %s", strings.Join(render.Formats(), ", ")))
	}

	switch c.CacheBackend {
	case "", "none", "off":
	case "bolt":
		if c.CachePath == "" {
			problems = append(problems, "cache-path is required for the bolt cache")
		}
	case "sqlite", "postgres":
		if c.CacheDSN == "" {
			problems = append(problems, fmt.Sprintf("cache-dsn is required for the %s cache", c.CacheBackend))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown cache backend %q", c.CacheBackend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// parseRepositories accepts owner/name entries separated by commas or
// whitespace.
func parseRepositories(values []string) ([]models.RepositoryRef, error) {
	var repos []models.RepositoryRef
	for _, value := range values {
		for _, field := range strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n' || r == '\t'
		}) {
			repo, err := models.ParseRepositoryRef(field)
			if err != nil {
				return nil, err
			}
			repos = append(repos, repo)
		}
	}
	return repos, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
