package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mcgillij/gitlog-summary/config"
	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/render"
	"github.com/mcgillij/gitlog-summary/service"
)

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

// Version is set at build time
var Version = "dev"

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(viper.New())
	err := cmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case service.IsFatal(err):
		return exitConfig
	default:
		return exitFailure
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gitlog-summary",
		Short: "Summarize a day of commits across GitHub repositories",
		Long: `gitlog-summary fetches the commits made on one calendar day across a set of
GitHub repositories and prints them grouped by contributor.

Authors are matched across repositories by GitHub login and commit email,
so one person using several addresses shows up once. Repositories that
cannot be read are listed in the report instead of failing the run.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default "+config.Dir()+"/config.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "console", "log format: console or json")
	flags.String("cache", "none", "response cache: none, bolt, sqlite or postgres")
	flags.String("cache-path", "", "bolt cache file")
	flags.String("cache-dsn", "", "sqlite or postgres cache DSN")

	local := cmd.Flags()
	local.StringSlice("repos", nil, "repositories as owner/name, comma separated")
	local.Bool("all-repos", false, "summarize every repository of the authenticated user")
	local.String("date", "", "day to summarize as YYYY-MM-DD (default today)")
	local.String("timezone", "UTC", "IANA timezone or fixed offset such as +05:30")
	local.Int("concurrency", 4, "repositories fetched at once")
	local.String("token", "", "GitHub token (default from environment, keychain or credentials file)")
	local.String("api-url", "", "GitHub API base URL, for GitHub Enterprise")
	local.Float64("requests-per-second", 5, "GitHub API request rate")
	local.Duration("timeout", 0, "per-request timeout")
	local.Int("max-retries", 3, "retries after a rate-limited request")
	local.Int("max-pages", 50, "maximum pages fetched per repository")
	local.Bool("email-lookup", false, "merge contributors using the emails GitHub reports for each login")
	local.Bool("strict-identities", false, "refuse to merge identities carrying different logins")
	local.Bool("group-by-repo", false, "group each contributor's commits by repository")
	local.String("author", "", "only show the contributor with this login, email or name")
	local.StringP("format", "f", render.FormatText, "output format: text, markdown or json")
	local.Duration("cache-ttl", 0, "cache entry lifetime")
	local.String("metrics-file", "", "write Prometheus metrics to this file")
	local.Bool("ai-summary", false, "add an AI narrative to each contributor")
	local.String("ai-base-url", "", "OpenAI-compatible API base URL")
	local.String("ai-model", "", "model used for narratives")
	local.String("ai-api-key", "", "API key for the narrative endpoint")

	_ = v.BindPFlags(flags)
	_ = v.BindPFlags(local)

	cmd.AddCommand(newAuthCmd(v), newCacheCmd(v))
	return cmd
}

// loadConfig reads the configuration and starts the logger
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.Load(v); err != nil {
		return nil, err
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfigurationInvalid, err)
	}
	return cfg, nil
}

func runSummary(ctx context.Context, v *viper.Viper, out io.Writer) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if err := cfg.ResolveToken(config.NewCredentialStore("")); err != nil {
		return err
	}
	if cfg.GitHubToken == "" {
		logger.Warn("No GitHub token found, using anonymous access with a low rate limit")
	}

	svc, err := service.NewService(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Error during service shutdown", zap.Error(err))
		}
	}()

	report, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	return render.Render(out, report, cfg.Format)
}
