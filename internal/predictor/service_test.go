package predictor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adudulescu/stock-predictor/internal/collector"
	"github.com/adudulescu/stock-predictor/internal/metrics"
	"github.com/adudulescu/stock-predictor/internal/model"
	"github.com/adudulescu/stock-predictor/internal/strategy"
)

type fakeStore struct {
	mu          sync.Mutex
	history     map[string]model.PriceSeries
	analyst     map[string]*model.AnalystRecord
	predictions map[string]*model.PredictionRecord
	usage       []model.UsageLog
	saved       map[string]int
	failUpsert  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		history:     map[string]model.PriceSeries{},
		analyst:     map[string]*model.AnalystRecord{},
		predictions: map[string]*model.PredictionRecord{},
		saved:       map[string]int{},
		failUpsert:  map[string]bool{},
	}
}

func (s *fakeStore) SavePrices(_ context.Context, symbol string, series model.PriceSeries) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[symbol] = series
	s.saved[symbol] += len(series)
	return len(series), nil
}

func (s *fakeStore) PriceHistory(_ context.Context, symbol string, _ int) (model.PriceSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[symbol], nil
}

func (s *fakeStore) LatestAnalyst(_ context.Context, symbol string) (*model.AnalystRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyst[symbol], nil
}

func (s *fakeStore) UpsertPrediction(_ context.Context, rec *model.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert[rec.Symbol] {
		return errors.New("disk full")
	}
	s.predictions[rec.Symbol] = rec
	return nil
}

func (s *fakeStore) FreshPrediction(_ context.Context, symbol string, day time.Time, version string, maxAge time.Duration) (*model.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.predictions[symbol]
	if !ok || !rec.PredictionDate.Equal(day) || rec.ModelVersion != version || time.Since(rec.CreatedAt) > maxAge {
		return nil, nil
	}
	return rec, nil
}

func (s *fakeStore) RecordUsage(_ context.Context, entry model.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, entry)
	return nil
}

// fakeSource serves fixed quotes and histories and counts upstream calls.
type fakeSource struct {
	mu        sync.Mutex
	quotes    map[string]*model.Quote
	quoteErr  map[string]error
	history   map[string]model.PriceSeries
	calls     int64
	histCalls int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) PriceHistory(_ context.Context, symbol string, _ int) (model.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.histCalls++
	return f.history[symbol], nil
}

func (f *fakeSource) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.quoteErr[symbol]; ok {
		return nil, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, collector.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (f *fakeSource) Usage() model.UsageStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.UsageStats{Calls: f.calls, Succeeded: f.calls}
}

func rising(n int, start float64) model.PriceSeries {
	s := make(model.PriceSeries, n)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range s {
		s[i] = model.PricePoint{Date: day.AddDate(0, 0, i), Close: start + float64(i)}
	}
	return s
}

func newTestService(t *testing.T, store *fakeStore, src *fakeSource, reg *metrics.Registry) *Service {
	t.Helper()
	engine, err := strategy.NewEngine(strategy.DefaultParams())
	require.NoError(t, err)
	return NewService(engine, store, src, src, reg, Options{
		Workers:       3,
		PredictionTTL: time.Hour,
		MinHistory:    20,
		HistoryDays:   90,
	}, zerolog.Nop())
}

func TestPredict_NoSymbols(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeSource{}, nil)
	_, err := svc.Predict(context.Background(), []string{" ", ""}, 10)
	assert.ErrorIs(t, err, ErrNoSymbols)
}

func TestPredict_IsolatesFailures(t *testing.T) {
	store := newFakeStore()
	store.history["AAA"] = rising(40, 60)
	store.history["DDD"] = rising(40, 60)
	store.failUpsert["DDD"] = true
	src := &fakeSource{
		quotes: map[string]*model.Quote{
			"AAA":  {Symbol: "AAA", Name: "Alpha", CurrentPrice: 100, TargetMeanPrice: model.Float(150), AverageAnalystRating: "buy"},
			"DDD":  {Symbol: "DDD", CurrentPrice: 100, TargetMeanPrice: model.Float(140)},
			"ZERO": {Symbol: "ZERO", CurrentPrice: 0},
		},
		quoteErr: map[string]error{"CCC": errors.New("connection reset")},
	}
	reg := metrics.NewRegistry()
	svc := newTestService(t, store, src, reg)

	res, err := svc.Predict(context.Background(), []string{"aaa", "BBB", "CCC", "DDD", "ZERO", "AAA"}, -100)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Analyzed, "duplicates collapse")
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.PersistFailures)
	assert.Len(t, res.Failures, 3)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "v2.0", res.ModelVersion)

	require.Equal(t, 2, res.Count)
	require.Len(t, res.Opportunities, 2)
	assert.GreaterOrEqual(t, res.Opportunities[0].CombinedScore, res.Opportunities[1].CombinedScore)
	assert.Equal(t, "Alpha", res.Opportunities[0].Name)

	assert.Contains(t, store.predictions, "AAA")
	assert.NotContains(t, store.predictions, "DDD", "persist failure still returns the prediction")

	require.Len(t, store.usage, 1)
	assert.Equal(t, res.RunID, store.usage[0].RunID)
	assert.Equal(t, res.Usage, store.usage[0].UsageStats)
	assert.Equal(t, 5, int(res.Usage.Calls), "one quote call per symbol, stored history is long enough")

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.Predictions.WithLabelValues(metrics.OutcomeSucceeded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.Predictions.WithLabelValues(metrics.OutcomeSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.Opportunities))
}

func TestPredict_MinUpsideFiltersEverything(t *testing.T) {
	store := newFakeStore()
	store.history["AAA"] = rising(40, 60)
	src := &fakeSource{quotes: map[string]*model.Quote{"AAA": {Symbol: "AAA", CurrentPrice: 100}}}
	svc := newTestService(t, store, src, nil)

	res, err := svc.Predict(context.Background(), []string{"AAA"}, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, res.Opportunities)
	assert.Equal(t, 1, res.Succeeded)
}

func TestPredict_UsesFreshCache(t *testing.T) {
	store := newFakeStore()
	store.history["AAA"] = rising(40, 60)
	src := &fakeSource{quotes: map[string]*model.Quote{"AAA": {Symbol: "AAA", CurrentPrice: 100, TargetMeanPrice: model.Float(130)}}}
	svc := newTestService(t, store, src, nil)
	ctx := context.Background()

	first, err := svc.Predict(ctx, []string{"AAA"}, 0)
	require.NoError(t, err)
	second, err := svc.Predict(ctx, []string{"AAA"}, 0)
	require.NoError(t, err)

	assert.Equal(t, 0, first.Cached)
	assert.Equal(t, 1, second.Cached)
	assert.Equal(t, int64(0), second.Usage.Calls)
	assert.Equal(t, first.Opportunities, second.Opportunities)
}

func TestPredict_FallsBackToUpstreamHistory(t *testing.T) {
	store := newFakeStore()
	store.history["AAA"] = rising(5, 90)
	src := &fakeSource{
		quotes:  map[string]*model.Quote{"AAA": {Symbol: "AAA", CurrentPrice: 100}},
		history: map[string]model.PriceSeries{"AAA": rising(60, 40)},
	}
	svc := newTestService(t, store, src, nil)

	res, err := svc.Predict(context.Background(), []string{"AAA"}, -100)
	require.NoError(t, err)
	require.Len(t, res.Opportunities, 1)
	assert.Equal(t, 60, res.Opportunities[0].HistoryLength)
	assert.Equal(t, 60, store.saved["AAA"])
	assert.Equal(t, 1, src.histCalls)
}

func TestPredict_MergesStoredAnalyst(t *testing.T) {
	store := newFakeStore()
	store.history["AAA"] = rising(40, 60)
	store.analyst["AAA"] = &model.AnalystRecord{Symbol: "AAA", TargetMean: model.Float(120), Recommendation: "strong_buy"}
	src := &fakeSource{quotes: map[string]*model.Quote{"AAA": {Symbol: "AAA", CurrentPrice: 100}}}
	svc := newTestService(t, store, src, nil)

	res, err := svc.Predict(context.Background(), []string{"AAA"}, -100)
	require.NoError(t, err)
	require.Len(t, res.Opportunities, 1)
	assert.InDelta(t, 80, res.Opportunities[0].AnalystScore, 1e-9)
	assert.Equal(t, strategy.SentimentBullish, res.Opportunities[0].SentimentScore)
}

func TestPredict_CancelledContext(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{quotes: map[string]*model.Quote{"AAA": {Symbol: "AAA", CurrentPrice: 100}}}
	svc := newTestService(t, store, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := svc.Predict(ctx, []string{"AAA", "BBB"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, int64(0), src.calls)
}
