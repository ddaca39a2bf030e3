package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// DefaultHistoryDays is how much history a collection run asks for.
const DefaultHistoryDays = 90

// CollectResult summarises one collection run.
type CollectResult struct {
	Succeeded    []string              `json:"succeeded"`
	Failed       []model.SymbolFailure `json:"failed"`
	TotalPrices  int                   `json:"totalPrices"`
	TotalAnalyst int                   `json:"totalAnalyst"`
}

// Collector pulls history and analyst data from a Fetcher into the Store.
type Collector struct {
	Source Fetcher
	Store  Store
	// Pace is slept between symbols, on top of any limiter in Source.
	Pace time.Duration
	log  zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(source Fetcher, store Store, log zerolog.Logger) *Collector {
	return &Collector{
		Source: source,
		Store:  store,
		log:    log.With().Str("component", "collector").Logger(),
	}
}

// Collect fetches and stores data for each symbol. One symbol failing never
// stops the others; a spent quota or a cancelled context ends the run and
// reports the remaining symbols as failed.
func (c *Collector) Collect(ctx context.Context, symbols []string, days int) (*CollectResult, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no symbols to collect")
	}
	if days <= 0 {
		days = DefaultHistoryDays
	}

	res := &CollectResult{}
	for i, symbol := range symbols {
		if i > 0 && c.Pace > 0 {
			if err := sleepCtx(ctx, c.Pace); err != nil {
				res.failRest(symbols[i:], err)
				return res, nil
			}
		}

		prices, analyst, err := c.collectOne(ctx, symbol, days)
		res.TotalPrices += prices
		res.TotalAnalyst += analyst
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("collect failed")
			res.Failed = append(res.Failed, model.SymbolFailure{Symbol: symbol, Error: err.Error()})
			if errors.Is(err, ErrQuotaExhausted) || ctx.Err() != nil {
				res.failRest(symbols[i+1:], err)
				return res, nil
			}
			continue
		}
		res.Succeeded = append(res.Succeeded, symbol)
		c.log.Info().Str("symbol", symbol).Int("prices", prices).Int("analyst", analyst).Msg("collected")
	}
	return res, nil
}

func (c *Collector) collectOne(ctx context.Context, symbol string, days int) (prices, analyst int, err error) {
	series, err := c.Source.PriceHistory(ctx, symbol, days)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch history: %w", err)
	}
	if len(series) > 0 {
		prices, err = c.Store.SavePrices(ctx, symbol, series)
		if err != nil {
			return 0, 0, fmt.Errorf("save prices: %w", err)
		}
	}

	q, err := c.Source.Quote(ctx, symbol)
	if err != nil {
		// prices are already stored; a missing quote only costs the analyst row
		if errors.Is(err, ErrNotFound) {
			return prices, 0, nil
		}
		return prices, 0, fmt.Errorf("fetch quote: %w", err)
	}
	if q == nil || (q.TargetMeanPrice == nil && q.AverageAnalystRating == "") {
		return prices, 0, nil
	}
	if err := c.Store.SaveAnalyst(ctx, model.AnalystFromQuote(q, today())); err != nil {
		return prices, 0, fmt.Errorf("save analyst: %w", err)
	}
	return prices, 1, nil
}

func (r *CollectResult) failRest(symbols []string, err error) {
	for _, s := range symbols {
		r.Failed = append(r.Failed, model.SymbolFailure{Symbol: s, Error: err.Error()})
	}
}

// Seed fills the store with synthetic data for symbols. It is the explicit
// replacement for real history when no upstream is available.
func Seed(ctx context.Context, store Store, src *SyntheticSource, symbols []string, days int, log zerolog.Logger) (*CollectResult, error) {
	c := NewCollector(src, store, log)
	return c.Collect(ctx, symbols, days)
}
