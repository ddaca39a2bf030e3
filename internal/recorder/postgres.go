package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// PostgresRecorder persists to a hosted PostgreSQL database using the same
// table layout as the SQLite recorder.
type PostgresRecorder struct {
	db      *sqlx.DB
	timeout time.Duration
	log     zerolog.Logger
}

// NewPostgresRecorder connects to dsn and creates missing tables.
func NewPostgresRecorder(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresRecorder, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	r := newPostgresRecorder(db, 30*time.Second, log)
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r.log.Info().Msg("postgres recorder opened")
	return r, nil
}

func newPostgresRecorder(db *sqlx.DB, timeout time.Duration, log zerolog.Logger) *PostgresRecorder {
	return &PostgresRecorder{db: db, timeout: timeout, log: log.With().Str("component", "recorder").Logger()}
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stock_prices (
			symbol TEXT NOT NULL,
			date   DATE NOT NULL,
			open   DOUBLE PRECISION,
			high   DOUBLE PRECISION,
			low    DOUBLE PRECISION,
			close  DOUBLE PRECISION NOT NULL,
			volume BIGINT,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE TABLE IF NOT EXISTS analyst_data (
			symbol             TEXT NOT NULL,
			date               DATE NOT NULL,
			target_mean        DOUBLE PRECISION,
			target_high        DOUBLE PRECISION,
			target_low         DOUBLE PRECISION,
			recommendation     TEXT,
			number_of_analysts INTEGER,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			symbol           TEXT NOT NULL,
			prediction_date  DATE NOT NULL,
			target_date      DATE NOT NULL,
			name             TEXT,
			current_price    DOUBLE PRECISION,
			predicted_price  DOUBLE PRECISION,
			predicted_upside DOUBLE PRECISION,
			confidence_score DOUBLE PRECISION,
			technical_score  DOUBLE PRECISION,
			analyst_score    DOUBLE PRECISION,
			sentiment_score  DOUBLE PRECISION,
			combined_score   DOUBLE PRECISION,
			signals          JSONB,
			technical        JSONB,
			history_length   INTEGER,
			model_version    TEXT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (symbol, prediction_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_date ON predictions(prediction_date)`,
		`CREATE TABLE IF NOT EXISTS api_usage_logs (
			id                  BIGSERIAL PRIMARY KEY,
			run_id              TEXT,
			timestamp           TIMESTAMPTZ NOT NULL,
			total_requests      INTEGER,
			successful_requests INTEGER,
			failed_requests     INTEGER,
			rate_limit_hits     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_ts ON api_usage_logs(timestamp)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			symbol            TEXT PRIMARY KEY,
			name              TEXT,
			added_at          TIMESTAMPTZ NOT NULL,
			price_when_added  DOUBLE PRECISION,
			target_when_added DOUBLE PRECISION,
			upside_when_added DOUBLE PRECISION
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func limitArg(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

func (r *PostgresRecorder) SavePrices(ctx context.Context, symbol string, series model.PriceSeries) (int, error) {
	if len(series) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, p := range series {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stock_prices
			(symbol, date, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (symbol, date) DO UPDATE SET
				open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume`,
			symbol, Day(p.Date), p.Open, p.High, p.Low, p.Close, p.Volume); err != nil {
			return 0, fmt.Errorf("upsert %s %s: %w", symbol, p.Date.Format(dayLayout), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(series), nil
}

func (r *PostgresRecorder) PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var series model.PriceSeries
	err := r.db.SelectContext(ctx, &series, `SELECT date, COALESCE(open, 0) AS open, COALESCE(high, 0) AS high,
		COALESCE(low, 0) AS low, close, COALESCE(volume, 0) AS volume
		FROM stock_prices WHERE symbol = $1 ORDER BY date DESC LIMIT $2`, symbol, limitArg(maxDays))
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	reverse(series)
	return series, nil
}

func (r *PostgresRecorder) SaveAnalyst(ctx context.Context, rec model.AnalystRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO analyst_data
		(symbol, date, target_mean, target_high, target_low, recommendation, number_of_analysts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, date) DO UPDATE SET
			target_mean = EXCLUDED.target_mean, target_high = EXCLUDED.target_high,
			target_low = EXCLUDED.target_low, recommendation = EXCLUDED.recommendation,
			number_of_analysts = EXCLUDED.number_of_analysts`,
		rec.Symbol, Day(rec.Date), rec.TargetMean, rec.TargetHigh, rec.TargetLow,
		rec.Recommendation, rec.NumberOfAnalysts)
	if err != nil {
		return fmt.Errorf("upsert analyst: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) LatestAnalyst(ctx context.Context, symbol string) (*model.AnalystRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rec model.AnalystRecord
	err := r.db.GetContext(ctx, &rec, `SELECT symbol, date, target_mean, target_high, target_low,
		COALESCE(recommendation, '') AS recommendation, COALESCE(number_of_analysts, 0) AS number_of_analysts
		FROM analyst_data WHERE symbol = $1 ORDER BY date DESC LIMIT 1`, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query analyst: %w", err)
	}
	return &rec, nil
}

// pgPrediction is the row shape of the predictions table.
type pgPrediction struct {
	Symbol          string    `db:"symbol"`
	PredictionDate  time.Time `db:"prediction_date"`
	TargetDate      time.Time `db:"target_date"`
	Name            string    `db:"name"`
	CurrentPrice    float64   `db:"current_price"`
	PredictedPrice  float64   `db:"predicted_price"`
	PredictedUpside float64   `db:"predicted_upside"`
	Confidence      float64   `db:"confidence_score"`
	TechnicalScore  float64   `db:"technical_score"`
	AnalystScore    float64   `db:"analyst_score"`
	SentimentScore  float64   `db:"sentiment_score"`
	CombinedScore   float64   `db:"combined_score"`
	Signals         []byte    `db:"signals"`
	Technical       []byte    `db:"technical"`
	HistoryLength   int       `db:"history_length"`
	ModelVersion    string    `db:"model_version"`
	CreatedAt       time.Time `db:"created_at"`
}

func (p pgPrediction) record() (model.PredictionRecord, error) {
	rec := model.PredictionRecord{
		Prediction: model.Prediction{
			Symbol:          p.Symbol,
			Name:            p.Name,
			CurrentPrice:    p.CurrentPrice,
			PredictedPrice:  p.PredictedPrice,
			PredictedUpside: p.PredictedUpside,
			Confidence:      p.Confidence,
			TechnicalScore:  p.TechnicalScore,
			AnalystScore:    p.AnalystScore,
			SentimentScore:  p.SentimentScore,
			CombinedScore:   p.CombinedScore,
			HistoryLength:   p.HistoryLength,
		},
		PredictionDate: p.PredictionDate,
		TargetDate:     p.TargetDate,
		ModelVersion:   p.ModelVersion,
		CreatedAt:      p.CreatedAt,
	}
	blobs := predictionBlobs{signals: p.Signals, technical: p.Technical}
	if err := blobs.decodeInto(&rec.Prediction); err != nil {
		return rec, fmt.Errorf("%s: %w", p.Symbol, err)
	}
	return rec, nil
}

const pgPredictionCols = `symbol, prediction_date, target_date, COALESCE(name, '') AS name,
	current_price, predicted_price, predicted_upside, confidence_score, technical_score,
	analyst_score, sentiment_score, combined_score, signals, technical,
	COALESCE(history_length, 0) AS history_length, COALESCE(model_version, '') AS model_version, created_at`

func (r *PostgresRecorder) UpsertPrediction(ctx context.Context, rec *model.PredictionRecord) error {
	blobs, err := encodeBlobs(&rec.Prediction)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `INSERT INTO predictions
		(symbol, prediction_date, target_date, name, current_price, predicted_price, predicted_upside,
		 confidence_score, technical_score, analyst_score, sentiment_score, combined_score,
		 signals, technical, history_length, model_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (symbol, prediction_date) DO UPDATE SET
			target_date = EXCLUDED.target_date, name = EXCLUDED.name,
			current_price = EXCLUDED.current_price, predicted_price = EXCLUDED.predicted_price,
			predicted_upside = EXCLUDED.predicted_upside, confidence_score = EXCLUDED.confidence_score,
			technical_score = EXCLUDED.technical_score, analyst_score = EXCLUDED.analyst_score,
			sentiment_score = EXCLUDED.sentiment_score, combined_score = EXCLUDED.combined_score,
			signals = EXCLUDED.signals, technical = EXCLUDED.technical,
			history_length = EXCLUDED.history_length, model_version = EXCLUDED.model_version,
			created_at = EXCLUDED.created_at`,
		rec.Symbol, Day(rec.PredictionDate), Day(rec.TargetDate), rec.Name,
		rec.CurrentPrice, rec.PredictedPrice, rec.PredictedUpside,
		rec.Confidence, rec.TechnicalScore, rec.AnalystScore, rec.SentimentScore, rec.CombinedScore,
		string(blobs.signals), string(blobs.technical), rec.HistoryLength, rec.ModelVersion, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert prediction: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) FreshPrediction(ctx context.Context, symbol string, day time.Time, modelVersion string, maxAge time.Duration) (*model.PredictionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row pgPrediction
	err := r.db.GetContext(ctx, &row, `SELECT `+pgPredictionCols+` FROM predictions
		WHERE symbol = $1 AND prediction_date = $2 AND model_version = $3 AND created_at >= $4`,
		symbol, Day(day), modelVersion, time.Now().Add(-maxAge))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query prediction: %w", err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresRecorder) selectPredictions(ctx context.Context, query string, args ...any) ([]model.PredictionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []pgPrediction
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	out := make([]model.PredictionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *PostgresRecorder) PredictionHistory(ctx context.Context, symbol string, limit int) ([]model.PredictionRecord, error) {
	return r.selectPredictions(ctx, `SELECT `+pgPredictionCols+` FROM predictions
		WHERE symbol = $1 ORDER BY prediction_date DESC LIMIT $2`, symbol, limitArg(limit))
}

func (r *PostgresRecorder) LatestPredictions(ctx context.Context, limit int) ([]model.PredictionRecord, error) {
	return r.selectPredictions(ctx, `SELECT `+pgPredictionCols+` FROM predictions
		WHERE prediction_date = (SELECT MAX(prediction_date) FROM predictions)
		ORDER BY combined_score DESC, symbol LIMIT $1`, limitArg(limit))
}

func (r *PostgresRecorder) PrunePredictions(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM predictions WHERE prediction_date < $1`, Day(before))
	if err != nil {
		return 0, fmt.Errorf("prune predictions: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRecorder) RecordUsage(ctx context.Context, entry model.UsageLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO api_usage_logs
		(run_id, timestamp, total_requests, successful_requests, failed_requests, rate_limit_hits)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.RunID, entry.Timestamp, entry.Calls, entry.Succeeded, entry.Failed, entry.RateLimited)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

type pgUsage struct {
	RunID       string    `db:"run_id"`
	Timestamp   time.Time `db:"timestamp"`
	Calls       int64     `db:"total_requests"`
	Succeeded   int64     `db:"successful_requests"`
	Failed      int64     `db:"failed_requests"`
	RateLimited int64     `db:"rate_limit_hits"`
}

func (r *PostgresRecorder) UsageSince(ctx context.Context, since time.Time) ([]model.UsageLog, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []pgUsage
	if err := r.db.SelectContext(ctx, &rows, `SELECT COALESCE(run_id, '') AS run_id, timestamp,
		COALESCE(total_requests, 0) AS total_requests, COALESCE(successful_requests, 0) AS successful_requests,
		COALESCE(failed_requests, 0) AS failed_requests, COALESCE(rate_limit_hits, 0) AS rate_limit_hits
		FROM api_usage_logs WHERE timestamp >= $1 ORDER BY timestamp, id`, since); err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	out := make([]model.UsageLog, len(rows))
	for i, row := range rows {
		out[i] = model.UsageLog{
			RunID:     row.RunID,
			Timestamp: row.Timestamp,
			UsageStats: model.UsageStats{
				Calls: row.Calls, Succeeded: row.Succeeded, Failed: row.Failed, RateLimited: row.RateLimited,
			},
		}
	}
	return out, nil
}

func (r *PostgresRecorder) AddWatch(ctx context.Context, item model.WatchItem) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `INSERT INTO watchlist
		(symbol, name, added_at, price_when_added, target_when_added, upside_when_added)
		VALUES (:symbol, :name, :added_at, :price_when_added, :target_when_added, :upside_when_added)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name, price_when_added = EXCLUDED.price_when_added,
			target_when_added = EXCLUDED.target_when_added, upside_when_added = EXCLUDED.upside_when_added`,
		item)
	if err != nil {
		return fmt.Errorf("upsert watch item: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) RemoveWatch(ctx context.Context, symbol string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM watchlist WHERE symbol = $1`, symbol)
	if err != nil {
		return false, fmt.Errorf("delete watch item: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRecorder) Watchlist(ctx context.Context) ([]model.WatchItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var items []model.WatchItem
	if err := r.db.SelectContext(ctx, &items, `SELECT symbol, COALESCE(name, '') AS name, added_at,
		COALESCE(price_when_added, 0) AS price_when_added, COALESCE(target_when_added, 0) AS target_when_added,
		COALESCE(upside_when_added, 0) AS upside_when_added
		FROM watchlist ORDER BY added_at DESC, symbol`); err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	return items, nil
}

func (r *PostgresRecorder) Close() error {
	r.log.Info().Msg("closing postgres recorder")
	return r.db.Close()
}
