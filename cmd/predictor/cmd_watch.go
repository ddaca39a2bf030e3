package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adudulescu/stock-predictor/internal/config"
	"github.com/adudulescu/stock-predictor/internal/model"
	"github.com/adudulescu/stock-predictor/internal/strategy"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the watchlist scanned alongside the configured symbols",
	}

	var name string
	var offline bool
	add := &cobra.Command{
		Use:   "add SYMBOL",
		Short: "Add a symbol, recording its current price and analyst target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			symbols := config.NormalizeSymbols(args)
			if len(symbols) == 0 {
				return fmt.Errorf("invalid symbol %q", args[0])
			}
			item := model.WatchItem{Symbol: symbols[0], Name: name, AddedAt: time.Now()}

			d, err := a.build(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if !offline {
				q, err := d.source.Quote(ctx, item.Symbol)
				if err != nil {
					a.log.Warn().Err(err).Str("symbol", item.Symbol).Msg("quote unavailable, adding without prices")
				} else {
					if item.Name == "" {
						item.Name = q.Name
					}
					item.PriceWhenAdded = q.CurrentPrice
					if upside, ok := strategy.AnalystUpside(q.CurrentPrice, q.TargetMeanPrice); ok {
						item.TargetWhenAdded = *q.TargetMeanPrice
						item.UpsideWhenAdded = upside
					}
				}
			}
			if err := d.rec.AddWatch(ctx, item); err != nil {
				return err
			}
			fmt.Printf("watching %s\n", item.Symbol)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().BoolVar(&offline, "offline", false, "do not fetch a quote")

	remove := &cobra.Command{
		Use:     "remove SYMBOL",
		Aliases: []string{"rm"},
		Short:   "Remove a symbol",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rec, err := a.openRecorder(ctx)
			if err != nil {
				return err
			}
			defer rec.Close()

			symbols := config.NormalizeSymbols(args)
			if len(symbols) == 0 {
				return fmt.Errorf("invalid symbol %q", args[0])
			}
			removed, err := rec.RemoveWatch(ctx, symbols[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not on the watchlist", symbols[0])
			}
			fmt.Printf("removed %s\n", symbols[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List watched symbols",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rec, err := a.openRecorder(ctx)
			if err != nil {
				return err
			}
			defer rec.Close()

			items, err := rec.Watchlist(ctx)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("watchlist is empty")
			}
			for _, it := range items {
				fmt.Printf("%-8s %-28s added %s  price %.2f  target %.2f  upside %+.1f%%\n",
					it.Symbol, it.Name, it.AddedAt.Local().Format("2006-01-02"), it.PriceWhenAdded, it.TargetWhenAdded, it.UpsideWhenAdded)
			}
			return nil
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}
