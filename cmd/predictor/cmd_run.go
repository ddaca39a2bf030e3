package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adudulescu/stock-predictor/internal/collector"
	"github.com/adudulescu/stock-predictor/internal/notifier"
	"github.com/adudulescu/stock-predictor/internal/scheduler"
)

func newRunCmd(a *app) *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler, Telegram bot and metrics listener",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if os.Getenv("RUN_ON_START") == "true" {
				runOnStart = true
			}
			return a.run(cmd.Context(), runOnStart)
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run a scan immediately (also RUN_ON_START=true)")
	return cmd
}

const cacheSweepCron = "0 */10 * * * *"

func (a *app) run(parent context.Context, runOnStart bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.log.Info().Str("version", version).Msg("stock predictor starting")

	d, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	svc, err := a.newService(d)
	if err != nil {
		return err
	}

	col := collector.NewCollector(d.guard, d.rec, a.log)

	var tn *notifier.TelegramNotifier
	var n scheduler.Notifier
	if a.cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Proxy, a.log)
		n = tn
	} else {
		a.log.Warn().Msg("telegram not configured, reports are only logged")
	}

	sc := a.cfg.Schedule
	sched := scheduler.NewScheduler(col, svc, d.quota, n, d.rec, d.metrics, scheduler.Options{
		Symbols:       a.cfg.Symbols,
		MinUpside:     a.cfg.MinUpside,
		HistoryDays:   a.cfg.Upstream.HistoryDays,
		RetentionDays: sc.RetentionDays,
	}, a.log)
	sched.Breaker = d.guard.BreakerState
	if err := sched.RegisterAll(ctx, sc.CollectCron, sc.ScanCron, sc.QuotaResetCron, sc.PruneCron); err != nil {
		return err
	}
	if d.sweep != nil {
		if err := sched.RegisterSweep(cacheSweepCron, d.sweep); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		a.log.Info().Msg("telegram polling started")
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := d.metrics.Serve(ctx, addr, a.log); err != nil {
				a.log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	if runOnStart {
		a.log.Info().Msg("run on start enabled, scanning now")
		go sched.RunScanNow(ctx)
	}

	a.log.Info().Strs("symbols", a.cfg.Symbols).Msg("stock predictor running, press Ctrl+C to stop")
	<-ctx.Done()
	a.log.Info().Msg("shutdown signal received, stopping")
	return nil
}
