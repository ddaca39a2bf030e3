// Package predictor runs the scoring engine over a batch of symbols: cached
// predictions first, then stored history with an upstream fallback, then
// ranking and usage telemetry.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adudulescu/stock-predictor/internal/collector"
	"github.com/adudulescu/stock-predictor/internal/config"
	"github.com/adudulescu/stock-predictor/internal/metrics"
	"github.com/adudulescu/stock-predictor/internal/model"
	"github.com/adudulescu/stock-predictor/internal/recorder"
	"github.com/adudulescu/stock-predictor/internal/strategy"
)

// ErrNoSymbols is returned when a batch names no symbols.
var ErrNoSymbols = errors.New("no symbols provided")

// Store is the persistence the service needs.
type Store interface {
	SavePrices(ctx context.Context, symbol string, series model.PriceSeries) (int, error)
	PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error)
	LatestAnalyst(ctx context.Context, symbol string) (*model.AnalystRecord, error)
	UpsertPrediction(ctx context.Context, rec *model.PredictionRecord) error
	FreshPrediction(ctx context.Context, symbol string, day time.Time, modelVersion string, maxAge time.Duration) (*model.PredictionRecord, error)
	RecordUsage(ctx context.Context, entry model.UsageLog) error
}

// UsageCounter reports cumulative upstream counters, as collector.Guard does.
type UsageCounter interface {
	Usage() model.UsageStats
}

// Options tunes a Service.
type Options struct {
	Workers       int
	PredictionTTL time.Duration // zero disables the prediction cache
	MinHistory    int           // stored history shorter than this is refetched upstream
	HistoryDays   int
}

// Service is the batch prediction entry point.
type Service struct {
	engine  *strategy.Engine
	store   Store
	source  collector.Fetcher
	usage   UsageCounter
	metrics *metrics.Registry
	opts    Options
	log     zerolog.Logger
	now     func() time.Time
}

// NewService wires a Service. usage and reg may be nil.
func NewService(engine *strategy.Engine, store Store, source collector.Fetcher, usage UsageCounter, reg *metrics.Registry, opts Options, log zerolog.Logger) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = collector.DefaultHistoryDays
	}
	return &Service{
		engine:  engine,
		store:   store,
		source:  source,
		usage:   usage,
		metrics: reg,
		opts:    opts,
		log:     log.With().Str("component", "predictor").Logger(),
		now:     time.Now,
	}
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeCached
	outcomeSkipped
	outcomeFailed
)

func (o outcome) label() string {
	switch o {
	case outcomeCached:
		return metrics.OutcomeCached
	case outcomeSkipped:
		return metrics.OutcomeSkipped
	case outcomeFailed:
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeSucceeded
}

type symbolResult struct {
	index         int
	prediction    *model.Prediction
	outcome       outcome
	err           error
	persistFailed bool
}

// Predict scores every symbol and returns those with predicted upside of at
// least minUpside, best combined score first. Per-symbol failures are counted
// in the result and never fail the batch.
func (s *Service) Predict(ctx context.Context, symbols []string, minUpside float64) (*model.BatchResult, error) {
	symbols = config.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	start := s.now()
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()
	var before model.UsageStats
	if s.usage != nil {
		before = s.usage.Usage()
	}

	results := s.runPool(ctx, symbols)

	res := &model.BatchResult{
		RunID:        runID,
		AnalyzedAt:   start.UTC(),
		ModelVersion: s.engine.Params().ModelVersion,
		Analyzed:     len(symbols),
	}
	preds := make([]*model.Prediction, 0, len(symbols))
	for _, r := range results {
		s.metrics.ObservePrediction(r.outcome.label())
		if r.persistFailed {
			res.PersistFailures++
		}
		switch r.outcome {
		case outcomeSucceeded:
			res.Succeeded++
		case outcomeCached:
			res.Succeeded++
			res.Cached++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
		}
		if r.err != nil {
			res.Failures = append(res.Failures, model.SymbolFailure{Symbol: symbols[r.index], Error: r.err.Error()})
		}
		if r.prediction != nil {
			preds = append(preds, r.prediction)
		}
	}

	ranked, count := strategy.Rank(preds, minUpside)
	res.Count = count
	res.Opportunities = make([]model.Prediction, 0, count)
	for _, p := range ranked {
		res.Opportunities = append(res.Opportunities, *p)
	}

	if s.usage != nil {
		res.Usage = s.usage.Usage().Sub(before)
	}
	if err := s.store.RecordUsage(ctx, model.UsageLog{RunID: runID, Timestamp: s.now(), UsageStats: res.Usage}); err != nil {
		log.Warn().Err(err).Msg("record usage failed")
	}

	elapsed := s.now().Sub(start)
	s.metrics.ObserveBatch(elapsed, res.Count, res.PersistFailures)
	log.Info().
		Int("analyzed", res.Analyzed).
		Int("succeeded", res.Succeeded).
		Int("cached", res.Cached).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("opportunities", res.Count).
		Int64("upstream_calls", res.Usage.Calls).
		Dur("elapsed", elapsed).
		Msg("batch complete")
	return res, nil
}

// runPool evaluates symbols on a bounded worker pool and returns results in
// input order.
func (s *Service) runPool(ctx context.Context, symbols []string) []symbolResult {
	jobs := make(chan int, len(symbols))
	out := make(chan symbolResult, len(symbols))

	workers := s.opts.Workers
	if len(symbols) < workers {
		workers = len(symbols)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				r := s.evaluate(ctx, symbols[idx])
				r.index = idx
				out <- r
			}
		}()
	}
	for i := range symbols {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]symbolResult, len(symbols))
	for r := range out {
		results[r.index] = r
	}
	return results
}

func (s *Service) evaluate(ctx context.Context, symbol string) symbolResult {
	log := s.log.With().Str("symbol", symbol).Logger()
	if err := ctx.Err(); err != nil {
		return symbolResult{outcome: outcomeFailed, err: err}
	}
	now := s.now()
	version := s.engine.Params().ModelVersion

	if s.opts.PredictionTTL > 0 {
		rec, err := s.store.FreshPrediction(ctx, symbol, recorder.Day(now), version, s.opts.PredictionTTL)
		if err != nil {
			log.Warn().Err(err).Msg("prediction cache lookup failed")
		}
		s.metrics.CacheObserver("prediction")(rec != nil)
		if rec != nil {
			p := rec.Prediction
			return symbolResult{prediction: &p, outcome: outcomeCached}
		}
	}

	quote, err := s.source.Quote(ctx, symbol)
	switch {
	case errors.Is(err, collector.ErrNotFound), err == nil && (quote == nil || quote.CurrentPrice <= 0):
		log.Warn().Msg("no usable quote, skipping")
		return symbolResult{outcome: outcomeSkipped, err: fmt.Errorf("%s: %w", symbol, strategy.ErrMissingQuote)}
	case err != nil:
		log.Error().Err(err).Msg("quote fetch failed")
		return symbolResult{outcome: outcomeFailed, err: err}
	}

	series := s.history(ctx, symbol, log)

	if !quote.HasTarget() || quote.AverageAnalystRating == "" {
		rec, err := s.store.LatestAnalyst(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Msg("stored analyst lookup failed")
		}
		collector.MergeAnalyst(quote, rec)
	}

	pred, err := s.engine.Predict(symbol, quote.Name, series, quote)
	if errors.Is(err, strategy.ErrMissingQuote) {
		log.Warn().Float64("price", quote.CurrentPrice).Msg("quote has no usable price, skipping")
		return symbolResult{outcome: outcomeSkipped, err: err}
	}
	if err != nil {
		log.Error().Err(err).Msg("prediction failed")
		return symbolResult{outcome: outcomeFailed, err: err}
	}

	r := symbolResult{prediction: pred, outcome: outcomeSucceeded}
	p := s.engine.Params()
	if err := s.store.UpsertPrediction(ctx, recorder.NewRecord(pred, now, p.HorizonDays, version)); err != nil {
		log.Error().Err(err).Msg("persist prediction failed")
		r.persistFailed = true
	}
	return r
}

// history prefers stored prices and goes upstream only when the store holds
// fewer than MinHistory points. Upstream failures fall back to whatever the
// store had; an empty series is still scored.
func (s *Service) history(ctx context.Context, symbol string, log zerolog.Logger) model.PriceSeries {
	stored, err := s.store.PriceHistory(ctx, symbol, s.opts.HistoryDays)
	if err != nil {
		log.Warn().Err(err).Msg("stored history lookup failed")
	}
	if len(stored) >= s.opts.MinHistory {
		return stored
	}

	fetched, err := s.source.PriceHistory(ctx, symbol, s.opts.HistoryDays)
	if err != nil {
		log.Warn().Err(err).Int("stored", len(stored)).Msg("upstream history failed, using stored")
		return stored
	}
	if len(fetched) <= len(stored) {
		return stored
	}
	if _, err := s.store.SavePrices(ctx, symbol, fetched); err != nil {
		log.Warn().Err(err).Msg("save fetched history failed")
	}
	return fetched
}
