package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adudulescu/stock-predictor/internal/config"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Show stored predictions for a symbol, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := config.NormalizeSymbols(args)
			if len(symbols) == 0 {
				return fmt.Errorf("invalid symbol %q", args[0])
			}
			ctx := cmd.Context()
			rec, err := a.openRecorder(ctx)
			if err != nil {
				return err
			}
			defer rec.Close()

			recs, err := rec.PredictionHistory(ctx, symbols[0], limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, recs)
			}
			if len(recs) == 0 {
				fmt.Printf("no stored predictions for %s\n", symbols[0])
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tTARGET DATE\tPRICE\tPREDICTED\tUPSIDE\tSCORE\tCONF\tMODEL")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%+.1f%%\t%.1f\t%.0f\t%s\n",
					r.PredictionDate.Format("2006-01-02"), r.TargetDate.Format("2006-01-02"),
					r.CurrentPrice, r.PredictedPrice, r.PredictedUpside, r.CombinedScore, r.Confidence, r.ModelVersion)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 30, "maximum rows, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	return cmd
}
