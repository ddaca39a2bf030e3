package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/adudulescu/stock-predictor/internal/collector"
	"github.com/adudulescu/stock-predictor/internal/config"
	"github.com/adudulescu/stock-predictor/internal/metrics"
	"github.com/adudulescu/stock-predictor/internal/model"
	"github.com/adudulescu/stock-predictor/internal/notifier"
	"github.com/adudulescu/stock-predictor/internal/quota"
	"github.com/adudulescu/stock-predictor/internal/recorder"
)

// Scanner runs a batch prediction.
type Scanner interface {
	Predict(ctx context.Context, symbols []string, minUpside float64) (*model.BatchResult, error)
}

// DataCollector runs a collection pass.
type DataCollector interface {
	Collect(ctx context.Context, symbols []string, days int) (*collector.CollectResult, error)
}

// Notifier delivers reports. A nil Notifier only logs.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Sweeper drops expired cache entries.
type Sweeper interface {
	DeleteExpired() int
}

// Options carries the job settings taken from config.
type Options struct {
	Symbols       []string
	MinUpside     float64
	HistoryDays   int
	RetentionDays int
	TopLimit      int
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Collector DataCollector
	Scanner   Scanner
	Quota     *quota.Manager
	Notifier  Notifier
	Recorder  recorder.Recorder
	Metrics   *metrics.Registry
	Opts      Options
	Breaker   func() string // upstream circuit state for /usage, may be nil

	log  zerolog.Logger
	now  func() time.Time
	scan sync.Mutex // one scan at a time, cron or command
}

// NewScheduler creates a new Scheduler.
func NewScheduler(col DataCollector, scanner Scanner, qm *quota.Manager, n Notifier, rec recorder.Recorder, reg *metrics.Registry, opts Options, log zerolog.Logger) *Scheduler {
	if opts.TopLimit <= 0 {
		opts.TopLimit = 10
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Collector: col,
		Scanner:   scanner,
		Quota:     qm,
		Notifier:  n,
		Recorder:  rec,
		Metrics:   reg,
		Opts:      opts,
		log:       log.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
	}
}

// RegisterAll registers the collect, scan, quota reset and prune jobs. An
// empty spec leaves that job unscheduled.
func (s *Scheduler) RegisterAll(ctx context.Context, collectCron, scanCron, quotaResetCron, pruneCron string) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context)
	}{
		{"collect", collectCron, s.collectTask},
		{"scan", scanCron, func(ctx context.Context) { s.scanTask(ctx) }},
		{"quota reset", quotaResetCron, s.quotaResetTask},
		{"prune", pruneCron, s.pruneTask},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		fn := j.fn
		if _, err := s.Cron.AddFunc(j.spec, func() { fn(ctx) }); err != nil {
			return fmt.Errorf("register %s task: %w", j.name, err)
		}
		s.log.Info().Str("job", j.name).Str("spec", j.spec).Msg("job registered")
	}
	return nil
}

// RegisterSweep periodically clears expired entries from an in-process cache.
func (s *Scheduler) RegisterSweep(spec string, c Sweeper) error {
	if spec == "" || c == nil {
		return nil
	}
	if _, err := s.Cron.AddFunc(spec, func() { s.sweepTask(c) }); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	return nil
}

func (s *Scheduler) sweepTask(c Sweeper) {
	if n := c.DeleteExpired(); n > 0 {
		s.log.Debug().Int("removed", n).Msg("swept quote cache")
	}
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunScanNow executes the scan task immediately (for manual trigger / run on start).
func (s *Scheduler) RunScanNow(ctx context.Context) (*model.BatchResult, error) {
	return s.scanTask(ctx)
}

// symbols is the configured list plus the watchlist.
func (s *Scheduler) symbols(ctx context.Context) []string {
	all := append([]string{}, s.Opts.Symbols...)
	items, err := s.Recorder.Watchlist(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("load watchlist failed")
	}
	for _, it := range items {
		all = append(all, it.Symbol)
	}
	return config.NormalizeSymbols(all)
}

func (s *Scheduler) collectTask(ctx context.Context) {
	s.log.Info().Msg("running collect task")
	res, err := s.Collector.Collect(ctx, s.symbols(ctx), s.Opts.HistoryDays)
	if err != nil {
		s.log.Error().Err(err).Msg("collect failed")
		s.trySend(ctx, fmt.Sprintf("❌ Data collection failed: %v", err))
		return
	}
	failed := make([]string, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, f.Symbol)
	}
	s.updateQuotaGauge()
	if len(failed) > 0 {
		s.trySend(ctx, notifier.FormatCollect(res.Succeeded, failed, res.TotalPrices, res.TotalAnalyst, s.now()))
	}
}

func (s *Scheduler) scanTask(ctx context.Context) (*model.BatchResult, error) {
	s.scan.Lock()
	defer s.scan.Unlock()

	s.log.Info().Msg("running scan task")
	res, err := s.Scanner.Predict(ctx, s.symbols(ctx), s.Opts.MinUpside)
	if err != nil {
		s.log.Error().Err(err).Msg("scan failed")
		s.trySend(ctx, fmt.Sprintf("❌ Scan failed: %v", err))
		return nil, err
	}
	s.updateQuotaGauge()
	s.trySend(ctx, notifier.FormatOpportunities(res, s.Opts.MinUpside))
	return res, nil
}

func (s *Scheduler) quotaResetTask(context.Context) {
	if s.Quota == nil {
		return
	}
	s.Quota.Reset()
	s.updateQuotaGauge()
	s.log.Info().Msg("daily quota reset")
}

func (s *Scheduler) pruneTask(ctx context.Context) {
	if s.Opts.RetentionDays <= 0 {
		return
	}
	before := s.now().AddDate(0, 0, -s.Opts.RetentionDays)
	n, err := s.Recorder.PrunePredictions(ctx, before)
	if err != nil {
		s.log.Error().Err(err).Msg("prune predictions failed")
		return
	}
	s.log.Info().Int64("deleted", n).Time("before", before).Msg("pruned predictions")
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.HelpText
	}
	// commands may arrive as /cmd@BotName in groups
	cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])

	switch cmd {
	case "/scan":
		// the scan task sends its own report
		s.scanTask(ctx)
		return ""
	case "/top":
		recs, err := s.Recorder.LatestPredictions(ctx, s.Opts.TopLimit)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatTop(recs)
	case "/usage":
		report, err := s.UsageReport(ctx)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		var state model.QuotaState
		if s.Quota != nil {
			state = s.Quota.State()
		}
		return notifier.FormatUsage(report, state)
	case "/history":
		if len(fields) < 2 {
			return "Usage: /history SYMBOL"
		}
		symbol := strings.ToUpper(fields[1])
		recs, err := s.Recorder.PredictionHistory(ctx, symbol, s.Opts.TopLimit)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatHistory(symbol, recs)
	case "/watchlist":
		items, err := s.Recorder.Watchlist(ctx)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatWatchlist(items)
	default:
		return notifier.HelpText
	}
}

// UsageReport summarises the last 24 hours of usage logs.
func (s *Scheduler) UsageReport(ctx context.Context) (model.UsageReport, error) {
	since := s.now().Add(-24 * time.Hour)
	logs, err := s.Recorder.UsageSince(ctx, since)
	if err != nil {
		return model.UsageReport{}, fmt.Errorf("load usage: %w", err)
	}
	limit := 0
	if s.Quota != nil {
		limit = s.Quota.State().DailyLimit
	}
	report := model.SummarizeUsage(logs, limit, since)
	if s.Breaker != nil {
		report.Breaker = s.Breaker()
	}
	return report, nil
}

func (s *Scheduler) updateQuotaGauge() {
	if s.Quota == nil {
		return
	}
	s.Metrics.SetQuotaRemaining(s.Quota.State().Remaining())
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if s.Notifier == nil {
		s.log.Debug().Msg("notifier disabled, report not sent")
		return
	}
	if err := s.Notifier.SendWithRetry(ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification failed")
	}
}
