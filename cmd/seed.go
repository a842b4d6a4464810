package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/seeder"
)

func newSeedCommand() *cobra.Command {
	cfg := seeder.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Submit generated attendees, duplicates included, to a running service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := seeder.Run(cmd.Context(), &cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Generated", "Duplicates", "Captures", "Committed", "Queued", "Rejected", "Replayed", "Failed", "Pending", "Elapsed"},
				[][]string{{
					strconv.Itoa(stats.Generated),
					strconv.Itoa(stats.Duplicates),
					strconv.Itoa(stats.Captures),
					strconv.Itoa(stats.Committed),
					strconv.Itoa(stats.Queued),
					strconv.Itoa(stats.Rejected),
					strconv.Itoa(stats.Replayed),
					strconv.Itoa(stats.Failed),
					strconv.Itoa(stats.PendingReviews),
					stats.Duration.Round(time.Millisecond).String(),
				}},
				tableOptions{numeric: []int{1, 2, 3, 4, 5, 6, 7, 8, 9}},
			))
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.IntVarP(&cfg.Count, "count", "n", cfg.Count, "number of submissions")
	f.Float64Var(&cfg.DuplicateRatio, "duplicates", cfg.DuplicateRatio, "share of submissions repeating an earlier attendee")
	f.Float64Var(&cfg.CaptureRatio, "captures", cfg.CaptureRatio, "share of submissions sent as OCR captures")
	f.Float64Var(&cfg.ReplayRatio, "replays", cfg.ReplayRatio, "share of submissions re-sent with their Idempotency-Key")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent requests")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.StringVar(&cfg.StaffID, "staff-id", cfg.StaffID, "X-Staff-ID sent with every request")
	f.Int64Var(&cfg.Seed, "seed", 0, "generator seed (0 uses the clock)")
	return cmd
}
