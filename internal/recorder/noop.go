package recorder

import (
	"context"
	"time"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// NoopRecorder is used when no database is configured. Writes are dropped and
// reads find nothing.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) SavePrices(_ context.Context, _ string, s model.PriceSeries) (int, error) {
	return len(s), nil
}
func (n *NoopRecorder) PriceHistory(context.Context, string, int) (model.PriceSeries, error) {
	return nil, nil
}
func (n *NoopRecorder) SaveAnalyst(context.Context, model.AnalystRecord) error { return nil }
func (n *NoopRecorder) LatestAnalyst(context.Context, string) (*model.AnalystRecord, error) {
	return nil, nil
}
func (n *NoopRecorder) UpsertPrediction(context.Context, *model.PredictionRecord) error { return nil }
func (n *NoopRecorder) FreshPrediction(context.Context, string, time.Time, string, time.Duration) (*model.PredictionRecord, error) {
	return nil, nil
}
func (n *NoopRecorder) PredictionHistory(context.Context, string, int) ([]model.PredictionRecord, error) {
	return nil, nil
}
func (n *NoopRecorder) LatestPredictions(context.Context, int) ([]model.PredictionRecord, error) {
	return nil, nil
}
func (n *NoopRecorder) PrunePredictions(context.Context, time.Time) (int64, error) { return 0, nil }
func (n *NoopRecorder) RecordUsage(context.Context, model.UsageLog) error          { return nil }
func (n *NoopRecorder) UsageSince(context.Context, time.Time) ([]model.UsageLog, error) {
	return nil, nil
}
func (n *NoopRecorder) AddWatch(context.Context, model.WatchItem) error      { return nil }
func (n *NoopRecorder) RemoveWatch(context.Context, string) (bool, error)    { return false, nil }
func (n *NoopRecorder) Watchlist(context.Context) ([]model.WatchItem, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                         { return nil }
