package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adudulescu/stock-predictor/internal/model"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		minUpside float64
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "predict [SYMBOL...]",
		Short: "Score symbols and print the opportunities",
		Long:  "Scores the given symbols (or the configured ones) and prints those whose predicted upside is at least --min-upside, best first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.build(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			svc, err := a.newService(d)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("min-upside") {
				minUpside = a.cfg.MinUpside
			}
			res, err := svc.Predict(ctx, a.symbolsOrConfig(args), minUpside)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, res)
			}
			printBatch(os.Stdout, res)
			return nil
		},
	}
	cmd.Flags().Float64Var(&minUpside, "min-upside", 10, "minimum predicted upside in percent")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBatch(w io.Writer, res *model.BatchResult) {
	fmt.Fprintf(w, "run %s | model %s | analyzed %d | scored %d (cached %d) | skipped %d | failed %d\n\n",
		res.RunID, res.ModelVersion, res.Analyzed, res.Succeeded, res.Cached, res.Skipped, res.Failed)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tPREDICTED\tUPSIDE\tSCORE\tCONF\tSIGNALS")
	for _, p := range res.Opportunities {
		texts := make([]string, 0, len(p.Signals))
		for _, s := range p.Signals {
			texts = append(texts, s.Text)
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%+.1f%%\t%.1f\t%.0f\t%s\n",
			p.Symbol, p.CurrentPrice, p.PredictedPrice, p.PredictedUpside, p.CombinedScore, p.Confidence, strings.Join(texts, "; "))
	}
	tw.Flush()

	if res.Count == 0 {
		fmt.Fprintln(w, "no opportunities")
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "! %s: %s\n", f.Symbol, f.Error)
	}
	fmt.Fprintf(w, "\nupstream calls %d, succeeded %d, failed %d, rate limited %d\n",
		res.Usage.Calls, res.Usage.Succeeded, res.Usage.Failed, res.Usage.RateLimited)
}
