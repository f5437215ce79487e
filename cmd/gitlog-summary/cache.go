package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcgillij/gitlog-summary/cache"
)

func newCacheCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the GitHub response cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			store, err := cache.Open(cmd.Context(), cache.Config{
				Backend: cfg.CacheBackend,
				Path:    cfg.CachePath,
				DSN:     cfg.CacheDSN,
				TTL:     cfg.CacheTTL,
			})
			if err != nil {
				return err
			}
			if store == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No cache configured")
				return nil
			}
			defer store.Close()

			n, err := store.Purge(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to purge cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d cached responses\n", n)
			return nil
		},
	})
	return cmd
}
