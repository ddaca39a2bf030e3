package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// Recorder persists prices, analyst targets, predictions, usage telemetry and
// the watchlist. Lookups that find nothing return a nil result and a nil error.
type Recorder interface {
	SavePrices(ctx context.Context, symbol string, series model.PriceSeries) (int, error)
	PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error)

	SaveAnalyst(ctx context.Context, rec model.AnalystRecord) error
	LatestAnalyst(ctx context.Context, symbol string) (*model.AnalystRecord, error)

	UpsertPrediction(ctx context.Context, rec *model.PredictionRecord) error
	FreshPrediction(ctx context.Context, symbol string, day time.Time, modelVersion string, maxAge time.Duration) (*model.PredictionRecord, error)
	PredictionHistory(ctx context.Context, symbol string, limit int) ([]model.PredictionRecord, error)
	LatestPredictions(ctx context.Context, limit int) ([]model.PredictionRecord, error)
	PrunePredictions(ctx context.Context, before time.Time) (int64, error)

	RecordUsage(ctx context.Context, entry model.UsageLog) error
	UsageSince(ctx context.Context, since time.Time) ([]model.UsageLog, error)

	AddWatch(ctx context.Context, item model.WatchItem) error
	RemoveWatch(ctx context.Context, symbol string) (bool, error)
	Watchlist(ctx context.Context) ([]model.WatchItem, error)

	Close() error
}

const dayLayout = "2006-01-02"

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewRecord wraps a prediction with its persistence keys. The target date is
// horizonDays after the prediction date.
func NewRecord(p *model.Prediction, now time.Time, horizonDays int, modelVersion string) *model.PredictionRecord {
	day := Day(now)
	return &model.PredictionRecord{
		Prediction:     *p,
		PredictionDate: day,
		TargetDate:     day.AddDate(0, 0, horizonDays),
		ModelVersion:   modelVersion,
		CreatedAt:      now,
	}
}

// predictionBlobs holds the JSON columns of a prediction row.
type predictionBlobs struct {
	signals   []byte
	technical []byte
}

func encodeBlobs(p *model.Prediction) (predictionBlobs, error) {
	signals := p.Signals
	if signals == nil {
		signals = []model.Signal{}
	}
	s, err := json.Marshal(signals)
	if err != nil {
		return predictionBlobs{}, fmt.Errorf("encode signals: %w", err)
	}
	t, err := json.Marshal(p.Technical)
	if err != nil {
		return predictionBlobs{}, fmt.Errorf("encode technical: %w", err)
	}
	return predictionBlobs{signals: s, technical: t}, nil
}

func (b predictionBlobs) decodeInto(p *model.Prediction) error {
	if len(b.signals) > 0 {
		if err := json.Unmarshal(b.signals, &p.Signals); err != nil {
			return fmt.Errorf("decode signals: %w", err)
		}
	}
	if len(b.technical) > 0 {
		if err := json.Unmarshal(b.technical, &p.Technical); err != nil {
			return fmt.Errorf("decode technical: %w", err)
		}
	}
	return nil
}

func reverse(s model.PriceSeries) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Open returns the recorder for driver: "sqlite", "postgres" or "none".
func Open(ctx context.Context, driver, sqlitePath, dsn string, log zerolog.Logger) (Recorder, error) {
	switch driver {
	case "sqlite":
		if dir := filepath.Dir(sqlitePath); sqlitePath != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return NewSQLiteRecorder(sqlitePath, log)
	case "postgres":
		return NewPostgresRecorder(ctx, dsn, log)
	case "none", "":
		return NewNoopRecorder(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}
