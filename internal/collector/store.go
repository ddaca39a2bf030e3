package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/adudulescu/stock-predictor/internal/calculator"
	"github.com/adudulescu/stock-predictor/internal/model"
)

// Store is the subset of the recorder the collector reads and writes.
type Store interface {
	SavePrices(ctx context.Context, symbol string, series model.PriceSeries) (int, error)
	PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error)
	SaveAnalyst(ctx context.Context, rec model.AnalystRecord) error
	LatestAnalyst(ctx context.Context, symbol string) (*model.AnalystRecord, error)
}

// StoreSource serves history and quotes from previously collected data, so a
// batch can run without touching the upstream.
type StoreSource struct {
	Store Store
}

func (s *StoreSource) Name() string { return "store" }

// PriceHistory reads the most recent maxDays stored points.
func (s *StoreSource) PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error) {
	return s.Store.PriceHistory(ctx, symbol, maxDays)
}

// Quote uses the latest stored close as the current price, derives the
// 52-week bounds from the stored year and attaches the latest stored analyst
// record.
func (s *StoreSource) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	series, err := s.Store.PriceHistory(ctx, symbol, calculator.TradingDaysPerYear)
	if err != nil {
		return nil, fmt.Errorf("stored price %s: %w", symbol, err)
	}
	last, ok := series.Last()
	if !ok {
		return nil, fmt.Errorf("stored price %s: %w", symbol, ErrNotFound)
	}
	q := &model.Quote{Symbol: symbol, CurrentPrice: last.Close, FetchedAt: last.Date}
	FillYearRange(q, series)

	rec, err := s.Store.LatestAnalyst(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("stored analyst %s: %w", symbol, err)
	}
	MergeAnalyst(q, rec)
	return q, nil
}

// FillYearRange sets missing 52-week bounds from series.
func FillYearRange(q *model.Quote, series model.PriceSeries) {
	if q == nil || (q.FiftyTwoWeekLow != nil && q.FiftyTwoWeekHigh != nil) {
		return
	}
	high, low, err := calculator.Calculate52WeekRange(series)
	if err != nil {
		return
	}
	if q.FiftyTwoWeekLow == nil {
		q.FiftyTwoWeekLow = model.Float(low)
	}
	if q.FiftyTwoWeekHigh == nil {
		q.FiftyTwoWeekHigh = model.Float(high)
	}
}

// MergeAnalyst fills analyst fields the quote lacks from a stored record.
func MergeAnalyst(q *model.Quote, rec *model.AnalystRecord) {
	if q == nil || rec == nil {
		return
	}
	if q.TargetMeanPrice == nil {
		q.TargetMeanPrice = rec.TargetMean
	}
	if q.TargetHighPrice == nil {
		q.TargetHighPrice = rec.TargetHigh
	}
	if q.TargetLowPrice == nil {
		q.TargetLowPrice = rec.TargetLow
	}
	if q.AverageAnalystRating == "" {
		q.AverageAnalystRating = rec.Recommendation
	}
	if q.NumberOfAnalysts == 0 {
		q.NumberOfAnalysts = rec.NumberOfAnalysts
	}
}

// today is the UTC calendar date used to key analyst rows.
func today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
