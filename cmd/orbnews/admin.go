package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"orbnews/internal/config"
	"orbnews/internal/reliability"
	"orbnews/internal/storage"
	"orbnews/internal/story"
)

var flagPruneDays int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe every configured generator once and print the reliability report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := newRegistry(cfg)
		report := newProber(cfg, reg).ProbeAll(cmd.Context(), reg.IDs())
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show story cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.Stats(cmd.Context(), 5)
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}
		printStats(cmd.OutOrStdout(), st, time.Now().UTC())
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete stories older than the retention period",
	Long: `Delete cached stories older than --days (default: GENERATION_RETENTION_DAYS).

Narration audio expires on its own TTL in Redis and is not touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		days := cfg.Generation.RetentionDays
		if cmd.Flags().Changed("days") {
			days = flagPruneDays
		}
		if days < 0 {
			return fmt.Errorf("invalid --days value %d", days)
		}

		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		deleted, err := store.ClearOlderThan(cmd.Context(), days)
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), pruneText(deleted, days))
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&flagPruneDays, "days", story.RetentionDays, "delete stories created more than this many days ago")
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func pruneText(deleted int64, days int) string {
	if deleted == 0 {
		return "Nothing to prune."
	}
	return fmt.Sprintf("Pruned %s story(s) older than %d days.", humanize.Comma(deleted), days)
}

func printStats(w io.Writer, st story.Stats, now time.Time) {
	fmt.Fprintf(w, "Stories: %s\n", humanize.Comma(st.TotalStories))
	fmt.Fprintf(w, "Categories: %d  Epochs: %d  Models: %d  Languages: %d\n",
		st.DistinctCategories, st.DistinctEpochs, st.DistinctModels, st.DistinctLanguages)
	for _, c := range st.Categories {
		fmt.Fprintf(w, "  %-16s %8s  %s\n", c.Category, humanize.Comma(c.Count), strings.Join(c.Models, ","))
	}
	if len(st.MostAccessed) > 0 {
		fmt.Fprintln(w, "Most served:")
		for _, s := range st.MostAccessed {
			fmt.Fprintf(w, "  %s (%s)\n", s.Headline, humanize.Comma(s.AccessCount))
		}
	}
	if len(st.MostRecent) > 0 {
		fmt.Fprintln(w, "Newest:")
		for _, s := range st.MostRecent {
			fmt.Fprintf(w, "  %s (%s)\n", s.Headline, humanize.RelTime(s.CreatedAt, now, "ago", "from now"))
		}
	}
}

func printReport(w io.Writer, report reliability.Report) {
	for _, r := range report.Results {
		status := "down"
		if r.Reliable {
			status = "ok"
		}
		line := fmt.Sprintf("%-24s %-4s %s", r.ModelID, status, r.Latency.Round(time.Millisecond))
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Fprintln(w, line)
	}
	if len(report.Reliable) == 0 {
		fmt.Fprintln(w, "No reliable generator; requests will get the fallback story.")
		return
	}
	fmt.Fprintf(w, "Order: %s\n", strings.Join(report.Reliable, " > "))
}
