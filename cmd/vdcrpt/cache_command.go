package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vdcrpt/internal/intercache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the intermediate cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show intermediate cache usage",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.cacheManager()
			if err != nil {
				return err
			}
			stats, err := manager.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache:   %s\n", stats.Root)
			fmt.Fprintf(out, "Entries: %d\n", stats.Entries)
			fmt.Fprintf(out, "Size:    %s / %s\n", bytesLabel(stats.TotalBytes), budgetLabel(stats.MaxBytes))
			if stats.TotalFSBytes > 0 {
				fmt.Fprintf(out, "Disk:    %s free (%.1f%%)\n", humanize.Bytes(stats.FreeBytes), stats.FreeRatio*100)
			}
			printCacheEntries(out, stats.EntrySummaries)
			return nil
		},
	}
}

func printCacheEntries(out io.Writer, entries []intercache.EntrySummary) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "Cached intermediates: none")
		return
	}
	const stampLayout = "2006-01-02 15:04"
	rows := make([][]string, 0, len(entries))
	for i, entry := range entries {
		updated := "unknown"
		if !entry.ModifiedAt.IsZero() {
			updated = fmt.Sprintf("%s (%s)", entry.ModifiedAt.Local().Format(stampLayout), humanize.Time(entry.ModifiedAt))
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			entry.Key,
			bytesLabel(entry.SizeBytes),
			updated,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Key", "Size", "Last used"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight},
	))
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Evict least recently used intermediates over the size budget",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.cacheManager()
			if err != nil {
				return err
			}
			before, err := manager.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if err := manager.Prune(cmd.Context(), ""); err != nil {
				return err
			}
			after, err := manager.Stats(cmd.Context())
			if err != nil {
				return err
			}
			freed := before.TotalBytes - after.TotalBytes
			if freed <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cache entries pruned")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries, %s (now %s / %s)\n",
				before.Entries-after.Entries,
				bytesLabel(freed),
				bytesLabel(after.TotalBytes),
				budgetLabel(after.MaxBytes),
			)
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached intermediate",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.cacheManager()
			if err != nil {
				return err
			}
			removed, err := manager.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries\n", removed)
			return nil
		},
	}
}

func bytesLabel(v int64) string {
	if v < 0 {
		v = 0
	}
	return humanize.IBytes(uint64(v))
}

func budgetLabel(v int64) string {
	if v <= 0 {
		return "unlimited"
	}
	return bytesLabel(v)
}
