package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/adudulescu/stock-predictor/internal/model"
	"github.com/adudulescu/stock-predictor/internal/quota"
)

func newUsageCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show upstream API usage for the last 24 hours",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rec, err := a.openRecorder(ctx)
			if err != nil {
				return err
			}
			defer rec.Close()

			since := time.Now().Add(-24 * time.Hour)
			logs, err := rec.UsageSince(ctx, since)
			if err != nil {
				return err
			}
			report := model.SummarizeUsage(logs, a.cfg.Quota.DailyLimit, since)

			state, err := quota.LoadState(a.cfg.Quota.StateFile)
			if err != nil {
				return fmt.Errorf("load quota state: %w", err)
			}
			state.DailyLimit = a.cfg.Quota.DailyLimit

			if asJSON {
				return writeJSON(os.Stdout, struct {
					model.UsageReport
					Quota model.QuotaState `json:"quota"`
				}{report, *state})
			}

			t := report.Totals
			fmt.Printf("runs: %d\n", report.Runs)
			fmt.Printf("requests: %d (succeeded %d, failed %d, rate limited %d)\n", t.Calls, t.Succeeded, t.Failed, t.RateLimited)
			fmt.Printf("daily limit: %d, remaining: %d, used: %.1f%%\n", report.DailyLimit, report.Remaining, report.PercentUsed)
			fmt.Printf("quota file: %d used on %s\n", state.Used, state.Day)
			for _, h := range report.Hourly {
				fmt.Printf("  %s  %4d calls  %3d rate limited\n", h.Hour.Local().Format("2006-01-02 15:00"), h.Calls, h.RateLimited)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
