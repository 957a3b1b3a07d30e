package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the provider response cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheBumpVersionCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-provider cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				stats, err := p.cache.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(stats) == 0 {
					fmt.Fprintln(out, "cache is empty")
					return nil
				}
				rows := make([][]string, 0, len(stats))
				for _, s := range stats {
					rows = append(rows, []string{
						s.Provider,
						strconv.FormatInt(s.Entries, 10),
						strconv.FormatInt(s.Bytes, 10),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"PROVIDER", "ENTRIES", "BYTES"}, rows, out))
				return nil
			})
		},
	}
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune [provider]",
		Short: "Remove cached responses, for one provider or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				provider := ""
				if len(args) == 1 {
					provider = args[0]
				}
				removed, err := p.cache.Prune(cmd.Context(), provider)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", removed)
				return nil
			})
		},
	}
}

func newCacheBumpVersionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "bump-version <provider> <current-version>",
		Short: "Drop a provider's entries from older client versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				purged, err := p.cache.PurgeStaleVersions(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d stale entries for %s\n", purged, args[0])
				return nil
			})
		},
	}
}
