package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adudulescu/stock-predictor/internal/collector"
)

func newCollectCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "collect [SYMBOL...]",
		Short: "Fetch price history and analyst data into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.build(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if days <= 0 {
				days = a.cfg.Upstream.HistoryDays
			}
			res, err := collector.NewCollector(d.guard, d.rec, a.log).Collect(ctx, a.symbolsOrConfig(args), days)
			if err != nil {
				return err
			}
			printCollect(res)
			u := d.guard.Usage()
			fmt.Printf("upstream calls %d, rate limited %d, quota left %d\n", u.Calls, u.RateLimited, d.quota.State().Remaining())
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "days of history to fetch (default upstream.history_days)")
	return cmd
}

func newSeedCmd(a *app) *cobra.Command {
	var (
		days int
		seed int64
	)
	cmd := &cobra.Command{
		Use:   "seed [SYMBOL...]",
		Short: "Fill the database with synthetic demo data",
		Long:  "Generates a deterministic random-walk history and analyst targets for each symbol. Use only for demos and local testing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rec, err := a.openRecorder(ctx)
			if err != nil {
				return err
			}
			defer rec.Close()

			symbols := a.symbolsOrConfig(args)
			res, err := collector.Seed(ctx, rec, collector.NewSyntheticSource(seed), symbols, days, a.log)
			if err != nil {
				return err
			}
			printCollect(res)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "days of synthetic history")
	cmd.Flags().Int64Var(&seed, "seed", 1, "generator seed")
	return cmd
}

func printCollect(res *collector.CollectResult) {
	fmt.Fprintf(os.Stdout, "collected %d symbols: %d price rows, %d analyst rows\n",
		len(res.Succeeded), res.TotalPrices, res.TotalAnalyst)
	for _, f := range res.Failed {
		fmt.Fprintf(os.Stdout, "! %s: %s\n", f.Symbol, f.Error)
	}
}
