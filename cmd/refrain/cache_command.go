package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sydlexius/refrain/internal/cache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the source lookup cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage per source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store := cache.NewStore(cfg.Cache.Root, cache.WithLogger(cliLogger(cmd.ErrOrStderr(), cfg)))
			stats, err := store.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache root: %s\n", store.Root())
			if len(stats) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}
			fmt.Fprintln(out, renderTable(cacheStatsTable(stats, cfg.TTLFor, time.Now())))
			return nil
		},
	}
}

func cacheStatsTable(stats []cache.SourceStats, ttlFor cache.TTLFunc, now time.Time) ([]string, [][]string, []columnAlignment) {
	headers := []string{"Source", "Entries", "Size", "TTL", "Oldest", "Newest"}
	rows := make([][]string, 0, len(stats)+1)
	var entries int
	var bytes int64
	for _, st := range stats {
		entries += st.Entries
		bytes += st.Bytes
		rows = append(rows, []string{
			st.Source,
			humanize.Comma(int64(st.Entries)),
			humanize.Bytes(uint64(max(st.Bytes, 0))),
			ttlFor(st.Source).String(),
			relTime(st.Oldest, now),
			relTime(st.Newest, now),
		})
	}
	rows = append(rows, []string{"total", humanize.Comma(int64(entries)), humanize.Bytes(uint64(max(bytes, 0))), "", "", ""})
	return headers, rows, []columnAlignment{alignLeft, alignRight, alignRight}
}

func relTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired and unreadable cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store := cache.NewStore(cfg.Cache.Root, cache.WithLogger(cliLogger(cmd.ErrOrStderr(), cfg)))
			res, err := store.Prune(cfg.TTLFor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scanned %s entries, removed %s, freed %s\n",
				strconv.Itoa(res.Scanned), strconv.Itoa(res.Removed), humanize.Bytes(uint64(max(res.Freed, 0))))
			return nil
		},
	}
}
