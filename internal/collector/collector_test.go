package collector

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adudulescu/stock-predictor/internal/calculator"
	"github.com/adudulescu/stock-predictor/internal/model"
)

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	prices  map[string]map[time.Time]model.PricePoint
	analyst map[string]model.AnalystRecord
}

func newMemStore() *memStore {
	return &memStore{
		prices:  make(map[string]map[time.Time]model.PricePoint),
		analyst: make(map[string]model.AnalystRecord),
	}
}

func (s *memStore) SavePrices(_ context.Context, symbol string, series model.PriceSeries) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.prices[symbol]
	if !ok {
		m = make(map[time.Time]model.PricePoint)
		s.prices[symbol] = m
	}
	for _, p := range series {
		m[p.Date] = p
	}
	return len(series), nil
}

func (s *memStore) PriceHistory(_ context.Context, symbol string, maxDays int) (model.PriceSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out model.PriceSeries
	for _, p := range s.prices[symbol] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return trimSeries(out, maxDays), nil
}

func (s *memStore) SaveAnalyst(_ context.Context, rec model.AnalystRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyst[rec.Symbol] = rec
	return nil
}

func (s *memStore) LatestAnalyst(_ context.Context, symbol string) (*model.AnalystRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.analyst[symbol]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// symbolFetcher fails for the symbols in errs and delegates the rest.
type symbolFetcher struct {
	Fetcher
	errs map[string]error
}

func (f *symbolFetcher) PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error) {
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.Fetcher.PriceHistory(ctx, symbol, maxDays)
}

func fixedSynthetic() *SyntheticSource {
	src := NewSyntheticSource(42)
	src.Now = func() time.Time { return time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC) }
	return src
}

func TestSyntheticSourceDeterministic(t *testing.T) {
	ctx := context.Background()
	a, err := fixedSynthetic().PriceHistory(ctx, "AAPL", 60)
	require.NoError(t, err)
	b, err := fixedSynthetic().PriceHistory(ctx, "AAPL", 60)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 60)

	last, _ := a.Last()
	assert.Equal(t, 195.50, last.Close)
	for i, p := range a {
		assert.NotEqual(t, time.Saturday, p.Date.Weekday())
		assert.NotEqual(t, time.Sunday, p.Date.Weekday())
		if i > 0 {
			assert.True(t, a[i-1].Date.Before(p.Date))
		}
	}

	other, _ := fixedSynthetic().PriceHistory(ctx, "MSFT", 60)
	assert.NotEqual(t, a.Closes()[:10], other.Closes()[:10])

	q, err := fixedSynthetic().Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 195.50, q.CurrentPrice)
	assert.True(t, q.HasTarget())
	assert.LessOrEqual(t, *q.FiftyTwoWeekLow, q.CurrentPrice)
}

func TestCollectorIsolatesFailures(t *testing.T) {
	store := newMemStore()
	src := &symbolFetcher{Fetcher: fixedSynthetic(), errs: map[string]error{"BAD": errors.New("boom")}}
	c := NewCollector(src, store, zerolog.Nop())

	res, err := c.Collect(context.Background(), []string{"AAPL", "BAD", "MSFT"}, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "BAD", res.Failed[0].Symbol)
	assert.Equal(t, 60, res.TotalPrices)
	assert.Equal(t, 2, res.TotalAnalyst)

	rec, err := store.LatestAnalyst(context.Background(), "MSFT")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 410.0, *rec.TargetMean)
}

func TestCollectorStopsOnQuota(t *testing.T) {
	src := &symbolFetcher{Fetcher: fixedSynthetic(), errs: map[string]error{"MSFT": ErrQuotaExhausted}}
	c := NewCollector(src, newMemStore(), zerolog.Nop())

	res, err := c.Collect(context.Background(), []string{"AAPL", "MSFT", "GOOGL", "AMZN"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, res.Succeeded)
	require.Len(t, res.Failed, 3)
	assert.Equal(t, "AMZN", res.Failed[2].Symbol)
}

func TestCollectorRejectsEmpty(t *testing.T) {
	_, err := NewCollector(fixedSynthetic(), newMemStore(), zerolog.Nop()).Collect(context.Background(), nil, 0)
	assert.Error(t, err)
}

func TestStoreSource(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	_, err := Seed(ctx, store, fixedSynthetic(), []string{"GOOGL"}, 20, zerolog.Nop())
	require.NoError(t, err)

	src := &StoreSource{Store: store}
	series, err := src.PriceHistory(ctx, "GOOGL", 90)
	require.NoError(t, err)
	assert.Len(t, series, 20)

	q, err := src.Quote(ctx, "GOOGL")
	require.NoError(t, err)
	assert.Equal(t, 140.35, q.CurrentPrice)
	require.True(t, q.HasTarget())
	assert.Equal(t, 165.0, *q.TargetMeanPrice)
	assert.Equal(t, "buy", q.AverageAnalystRating)

	high, low, err := calculator.Calculate52WeekRange(series)
	require.NoError(t, err)
	require.NotNil(t, q.FiftyTwoWeekLow)
	require.NotNil(t, q.FiftyTwoWeekHigh)
	assert.Equal(t, low, *q.FiftyTwoWeekLow)
	assert.Equal(t, high, *q.FiftyTwoWeekHigh)

	_, err = src.Quote(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFillYearRange(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	series := model.PriceSeries{
		{Date: day, Close: 100, High: 104, Low: 97},
		{Date: day.AddDate(0, 0, 1), Close: 90},
		{Date: day.AddDate(0, 0, 2), Close: 110, High: 112, Low: 108},
	}

	q := &model.Quote{Symbol: "AAPL", CurrentPrice: 110}
	FillYearRange(q, series)
	assert.Equal(t, 90.0, *q.FiftyTwoWeekLow)
	assert.Equal(t, 112.0, *q.FiftyTwoWeekHigh)

	upstream := &model.Quote{Symbol: "AAPL", FiftyTwoWeekLow: model.Float(80), FiftyTwoWeekHigh: model.Float(150)}
	FillYearRange(upstream, series)
	assert.Equal(t, 80.0, *upstream.FiftyTwoWeekLow)
	assert.Equal(t, 150.0, *upstream.FiftyTwoWeekHigh)

	empty := &model.Quote{Symbol: "AAPL"}
	FillYearRange(empty, nil)
	assert.Nil(t, empty.FiftyTwoWeekLow)
	FillYearRange(nil, series)
}

func TestMergeAnalystKeepsQuoteValues(t *testing.T) {
	q := &model.Quote{Symbol: "AAPL", CurrentPrice: 100, TargetMeanPrice: model.Float(130)}
	MergeAnalyst(q, &model.AnalystRecord{TargetMean: model.Float(110), TargetHigh: model.Float(150), Recommendation: "hold"})
	assert.Equal(t, 130.0, *q.TargetMeanPrice)
	assert.Equal(t, 150.0, *q.TargetHighPrice)
	assert.Equal(t, "hold", q.AverageAnalystRating)

	MergeAnalyst(q, nil)
	MergeAnalyst(nil, &model.AnalystRecord{})
}
