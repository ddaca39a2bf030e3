package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// SQLiteRecorder persists to a local SQLite database. Writes are serialised.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
// ":memory:" gives a private in-process database.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection: keeps :memory: databases shared and writes ordered
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stock_prices (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   REAL,
			high   REAL,
			low    REAL,
			close  REAL NOT NULL,
			volume INTEGER,
			PRIMARY KEY (symbol, date)
		)`,

		`CREATE TABLE IF NOT EXISTS analyst_data (
			symbol             TEXT NOT NULL,
			date               TEXT NOT NULL,
			target_mean        REAL,
			target_high        REAL,
			target_low         REAL,
			recommendation     TEXT,
			number_of_analysts INTEGER,
			PRIMARY KEY (symbol, date)
		)`,

		`CREATE TABLE IF NOT EXISTS predictions (
			symbol           TEXT NOT NULL,
			prediction_date  TEXT NOT NULL,
			target_date      TEXT NOT NULL,
			name             TEXT,
			current_price    REAL,
			predicted_price  REAL,
			predicted_upside REAL,
			confidence_score REAL,
			technical_score  REAL,
			analyst_score    REAL,
			sentiment_score  REAL,
			combined_score   REAL,
			signals          TEXT,
			technical        TEXT,
			history_length   INTEGER,
			model_version    TEXT,
			created_at       INTEGER NOT NULL,
			PRIMARY KEY (symbol, prediction_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_date ON predictions(prediction_date)`,

		`CREATE TABLE IF NOT EXISTS api_usage_logs (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id              TEXT,
			timestamp           INTEGER NOT NULL,
			total_requests      INTEGER,
			successful_requests INTEGER,
			failed_requests     INTEGER,
			rate_limit_hits     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_ts ON api_usage_logs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS watchlist (
			symbol            TEXT PRIMARY KEY,
			name              TEXT,
			added_at          INTEGER NOT NULL,
			price_when_added  REAL,
			target_when_added REAL,
			upside_when_added REAL
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) SavePrices(ctx context.Context, symbol string, series model.PriceSeries) (int, error) {
	if len(series) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stock_prices
		(symbol, date, open, high, low, close, volume)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range series {
		if _, err := stmt.ExecContext(ctx, symbol, p.Date.Format(dayLayout),
			p.Open, p.High, p.Low, p.Close, p.Volume); err != nil {
			return 0, fmt.Errorf("upsert %s %s: %w", symbol, p.Date.Format(dayLayout), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(series), nil
}

// PriceHistory returns the most recent maxDays points in ascending order. A
// non-positive maxDays returns everything.
func (r *SQLiteRecorder) PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error) {
	if maxDays <= 0 {
		maxDays = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT date, open, high, low, close, volume
		FROM stock_prices WHERE symbol = ? ORDER BY date DESC LIMIT ?`, symbol, maxDays)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var series model.PriceSeries
	for rows.Next() {
		var (
			day             string
			open, high, low sql.NullFloat64
			closePrice      float64
			volume          sql.NullInt64
		)
		if err := rows.Scan(&day, &open, &high, &low, &closePrice, &volume); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		d, err := time.Parse(dayLayout, day)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", day, err)
		}
		series = append(series, model.PricePoint{
			Date: d, Open: open.Float64, High: high.Float64, Low: low.Float64,
			Close: closePrice, Volume: volume.Int64,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(series)
	return series, nil
}

func (r *SQLiteRecorder) SaveAnalyst(ctx context.Context, rec model.AnalystRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO analyst_data
		(symbol, date, target_mean, target_high, target_low, recommendation, number_of_analysts)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			target_mean = excluded.target_mean, target_high = excluded.target_high,
			target_low = excluded.target_low, recommendation = excluded.recommendation,
			number_of_analysts = excluded.number_of_analysts`,
		rec.Symbol, rec.Date.Format(dayLayout), rec.TargetMean, rec.TargetHigh, rec.TargetLow,
		rec.Recommendation, rec.NumberOfAnalysts,
	)
	return err
}

func (r *SQLiteRecorder) LatestAnalyst(ctx context.Context, symbol string) (*model.AnalystRecord, error) {
	var (
		rec             = model.AnalystRecord{Symbol: symbol}
		day             string
		mean, high, low sql.NullFloat64
		recommendation  sql.NullString
		analysts        sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `SELECT date, target_mean, target_high, target_low, recommendation, number_of_analysts
		FROM analyst_data WHERE symbol = ? ORDER BY date DESC LIMIT 1`, symbol).
		Scan(&day, &mean, &high, &low, &recommendation, &analysts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query analyst: %w", err)
	}
	if rec.Date, err = time.Parse(dayLayout, day); err != nil {
		return nil, fmt.Errorf("parse date %q: %w", day, err)
	}
	rec.TargetMean = nullFloat(mean)
	rec.TargetHigh = nullFloat(high)
	rec.TargetLow = nullFloat(low)
	rec.Recommendation = recommendation.String
	rec.NumberOfAnalysts = int(analysts.Int64)
	return &rec, nil
}

func (r *SQLiteRecorder) UpsertPrediction(ctx context.Context, rec *model.PredictionRecord) error {
	blobs, err := encodeBlobs(&rec.Prediction)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `INSERT INTO predictions
		(symbol, prediction_date, target_date, name, current_price, predicted_price, predicted_upside,
		 confidence_score, technical_score, analyst_score, sentiment_score, combined_score,
		 signals, technical, history_length, model_version, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, prediction_date) DO UPDATE SET
			target_date = excluded.target_date, name = excluded.name,
			current_price = excluded.current_price, predicted_price = excluded.predicted_price,
			predicted_upside = excluded.predicted_upside, confidence_score = excluded.confidence_score,
			technical_score = excluded.technical_score, analyst_score = excluded.analyst_score,
			sentiment_score = excluded.sentiment_score, combined_score = excluded.combined_score,
			signals = excluded.signals, technical = excluded.technical,
			history_length = excluded.history_length, model_version = excluded.model_version,
			created_at = excluded.created_at`,
		rec.Symbol, rec.PredictionDate.Format(dayLayout), rec.TargetDate.Format(dayLayout), rec.Name,
		rec.CurrentPrice, rec.PredictedPrice, rec.PredictedUpside,
		rec.Confidence, rec.TechnicalScore, rec.AnalystScore, rec.SentimentScore, rec.CombinedScore,
		string(blobs.signals), string(blobs.technical), rec.HistoryLength, rec.ModelVersion,
		rec.CreatedAt.UnixMilli(),
	)
	return err
}

const sqlitePredictionCols = `symbol, prediction_date, target_date, name, current_price, predicted_price,
	predicted_upside, confidence_score, technical_score, analyst_score, sentiment_score, combined_score,
	signals, technical, history_length, model_version, created_at`

// FreshPrediction returns the stored prediction for symbol on day if it was
// written by modelVersion no longer than maxAge ago.
func (r *SQLiteRecorder) FreshPrediction(ctx context.Context, symbol string, day time.Time, modelVersion string, maxAge time.Duration) (*model.PredictionRecord, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqlitePredictionCols+` FROM predictions
		WHERE symbol = ? AND prediction_date = ? AND model_version = ? AND created_at >= ?`,
		symbol, Day(day).Format(dayLayout), modelVersion, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query prediction: %w", err)
	}
	recs, err := scanSQLitePredictions(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// PredictionHistory returns up to limit predictions for symbol, newest first.
func (r *SQLiteRecorder) PredictionHistory(ctx context.Context, symbol string, limit int) ([]model.PredictionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqlitePredictionCols+` FROM predictions
		WHERE symbol = ? ORDER BY prediction_date DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	return scanSQLitePredictions(rows)
}

// LatestPredictions returns predictions from the most recent prediction date,
// best combined score first.
func (r *SQLiteRecorder) LatestPredictions(ctx context.Context, limit int) ([]model.PredictionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqlitePredictionCols+` FROM predictions
		WHERE prediction_date = (SELECT MAX(prediction_date) FROM predictions)
		ORDER BY combined_score DESC, symbol LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	return scanSQLitePredictions(rows)
}

func (r *SQLiteRecorder) PrunePredictions(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM predictions WHERE prediction_date < ?`,
		Day(before).Format(dayLayout))
	if err != nil {
		return 0, fmt.Errorf("prune predictions: %w", err)
	}
	return res.RowsAffected()
}

func scanSQLitePredictions(rows *sql.Rows) ([]model.PredictionRecord, error) {
	defer rows.Close()

	var out []model.PredictionRecord
	for rows.Next() {
		var (
			rec                 model.PredictionRecord
			predDay, targetDay  string
			name, signals, tech sql.NullString
			version             sql.NullString
			historyLen          sql.NullInt64
			createdAt           int64
		)
		if err := rows.Scan(&rec.Symbol, &predDay, &targetDay, &name,
			&rec.CurrentPrice, &rec.PredictedPrice, &rec.PredictedUpside,
			&rec.Confidence, &rec.TechnicalScore, &rec.AnalystScore, &rec.SentimentScore, &rec.CombinedScore,
			&signals, &tech, &historyLen, &version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		var err error
		if rec.PredictionDate, err = time.Parse(dayLayout, predDay); err != nil {
			return nil, fmt.Errorf("parse prediction_date: %w", err)
		}
		if rec.TargetDate, err = time.Parse(dayLayout, targetDay); err != nil {
			return nil, fmt.Errorf("parse target_date: %w", err)
		}
		rec.Name = name.String
		rec.HistoryLength = int(historyLen.Int64)
		rec.ModelVersion = version.String
		rec.CreatedAt = time.UnixMilli(createdAt)
		blobs := predictionBlobs{signals: []byte(signals.String), technical: []byte(tech.String)}
		if err := blobs.decodeInto(&rec.Prediction); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Symbol, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) RecordUsage(ctx context.Context, entry model.UsageLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO api_usage_logs
		(run_id, timestamp, total_requests, successful_requests, failed_requests, rate_limit_hits)
		VALUES (?,?,?,?,?,?)`,
		entry.RunID, entry.Timestamp.Unix(), entry.Calls, entry.Succeeded, entry.Failed, entry.RateLimited,
	)
	return err
}

func (r *SQLiteRecorder) UsageSince(ctx context.Context, since time.Time) ([]model.UsageLog, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, timestamp, total_requests, successful_requests,
		failed_requests, rate_limit_hits FROM api_usage_logs WHERE timestamp >= ? ORDER BY timestamp, id`,
		since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []model.UsageLog
	for rows.Next() {
		var (
			entry model.UsageLog
			runID sql.NullString
			ts    int64
		)
		if err := rows.Scan(&runID, &ts, &entry.Calls, &entry.Succeeded, &entry.Failed, &entry.RateLimited); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		entry.RunID = runID.String
		entry.Timestamp = time.Unix(ts, 0)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) AddWatch(ctx context.Context, item model.WatchItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO watchlist
		(symbol, name, added_at, price_when_added, target_when_added, upside_when_added)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name, price_when_added = excluded.price_when_added,
			target_when_added = excluded.target_when_added, upside_when_added = excluded.upside_when_added`,
		item.Symbol, item.Name, item.AddedAt.Unix(), item.PriceWhenAdded, item.TargetWhenAdded, item.UpsideWhenAdded,
	)
	return err
}

func (r *SQLiteRecorder) RemoveWatch(ctx context.Context, symbol string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM watchlist WHERE symbol = ?`, symbol)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLiteRecorder) Watchlist(ctx context.Context) ([]model.WatchItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, name, added_at, price_when_added,
		target_when_added, upside_when_added FROM watchlist ORDER BY added_at DESC, symbol`)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	var out []model.WatchItem
	for rows.Next() {
		var (
			item                  model.WatchItem
			name                  sql.NullString
			addedAt               int64
			price, target, upside sql.NullFloat64
		)
		if err := rows.Scan(&item.Symbol, &name, &addedAt, &price, &target, &upside); err != nil {
			return nil, fmt.Errorf("scan watch item: %w", err)
		}
		item.Name = name.String
		item.AddedAt = time.Unix(addedAt, 0)
		item.PriceWhenAdded = price.Float64
		item.TargetWhenAdded = target.Float64
		item.UpsideWhenAdded = upside.Float64
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
