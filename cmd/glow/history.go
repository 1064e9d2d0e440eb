package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/daryaKuto/glowrange/internal/config"
	"github.com/daryaKuto/glowrange/internal/db"
	"github.com/daryaKuto/glowrange/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history [gameId]",
		Short: "Show past practice sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runHistoryDetail(cmd, configPath, args[0])
			}
			return runHistoryList(cmd, configPath, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Glow Range config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to show")
	return cmd
}

func runHistoryList(cmd *cobra.Command, configPath string, limit int) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("connect to history db: %w", err)
	}

	recs, err := history.Fetch(gdb, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "No sessions recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tDURATION\tHITS\tSCORE")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%ds\t%d\t%.1f\n",
			rec.GameID,
			rec.StartedAt.Local().Format(time.DateTime),
			rec.DurationSeconds,
			rec.TotalHits,
			rec.Score,
		)
	}
	return w.Flush()
}

func runHistoryDetail(cmd *cobra.Command, configPath, gameID string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("connect to history db: %w", err)
	}

	rec, err := history.Get(gdb, gameID)
	if err != nil {
		return err
	}

	printSummary(out, rec)
	fmt.Fprintf(out, "\n  Started: %s\n", rec.StartedAt.Local().Format(time.DateTime))
	return nil
}
