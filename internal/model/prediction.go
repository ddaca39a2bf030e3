package model

import "time"

// Signal is a short human-readable explanation attached to a prediction.
type Signal struct {
	Text    string `json:"text"`
	Bullish bool   `json:"bullish"`
}

// Prediction is the scoring engine's output for one symbol.
type Prediction struct {
	Symbol          string              `json:"symbol"`
	Name            string              `json:"name"`
	CurrentPrice    float64             `json:"currentPrice"`
	PredictedPrice  float64             `json:"predictedPrice"`
	PredictedUpside float64             `json:"predictedUpside"`
	Confidence      float64             `json:"confidence"`
	TechnicalScore  float64             `json:"technicalScore"`
	AnalystScore    float64             `json:"analystScore"`
	SentimentScore  float64             `json:"sentimentScore"`
	CombinedScore   float64             `json:"combinedScore"`
	Technical       TechnicalIndicators `json:"technical"`
	Signals         []Signal            `json:"signals"`
	HistoryLength   int                 `json:"historyLength"`
}

// PredictionRecord is a persisted prediction keyed by (symbol, prediction date).
type PredictionRecord struct {
	Prediction
	PredictionDate time.Time `json:"predictionDate"`
	TargetDate     time.Time `json:"targetDate"`
	ModelVersion   string    `json:"modelVersion"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UsageStats counts upstream calls made during a batch run.
type UsageStats struct {
	Calls       int64 `json:"calls"`
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	RateLimited int64 `json:"rateLimited"`
}

// Add returns the element-wise sum of u and o.
func (u UsageStats) Add(o UsageStats) UsageStats {
	return UsageStats{
		Calls:       u.Calls + o.Calls,
		Succeeded:   u.Succeeded + o.Succeeded,
		Failed:      u.Failed + o.Failed,
		RateLimited: u.RateLimited + o.RateLimited,
	}
}

// Sub returns u minus o, used to take a delta between two counter snapshots.
func (u UsageStats) Sub(o UsageStats) UsageStats {
	return UsageStats{
		Calls:       u.Calls - o.Calls,
		Succeeded:   u.Succeeded - o.Succeeded,
		Failed:      u.Failed - o.Failed,
		RateLimited: u.RateLimited - o.RateLimited,
	}
}

// UsageLog is one persisted usage row.
type UsageLog struct {
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
	UsageStats
}

// SymbolFailure describes why a symbol dropped out of a batch.
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// BatchResult is returned by the batch prediction entry point.
type BatchResult struct {
	RunID           string          `json:"runId"`
	Count           int             `json:"count"`
	Opportunities   []Prediction    `json:"opportunities"`
	AnalyzedAt      time.Time       `json:"analyzedAt"`
	ModelVersion    string          `json:"modelVersion"`
	Analyzed        int             `json:"analyzed"`
	Succeeded       int             `json:"succeeded"`
	Failed          int             `json:"failed"`
	Skipped         int             `json:"skipped"`
	Cached          int             `json:"cached"`
	PersistFailures int             `json:"persistFailures"`
	Failures        []SymbolFailure `json:"failures,omitempty"`
	Usage           UsageStats      `json:"usage"`
}

// WatchItem is a symbol tracked for scheduled scans.
type WatchItem struct {
	Symbol          string    `json:"symbol" db:"symbol"`
	Name            string    `json:"name" db:"name"`
	AddedAt         time.Time `json:"addedAt" db:"added_at"`
	PriceWhenAdded  float64   `json:"priceWhenAdded" db:"price_when_added"`
	TargetWhenAdded float64   `json:"targetWhenAdded" db:"target_when_added"`
	UpsideWhenAdded float64   `json:"upsideWhenAdded" db:"upside_when_added"`
}

// QuotaState tracks the daily upstream request budget.
type QuotaState struct {
	DailyLimit  int       `json:"daily_limit"`
	Used        int       `json:"used"`
	RateLimited int       `json:"rate_limited"`
	Day         string    `json:"day"` // YYYY-MM-DD, local time
	ResetAt     time.Time `json:"reset_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Remaining returns the requests left for the current day.
func (s QuotaState) Remaining() int {
	if s.Used >= s.DailyLimit {
		return 0
	}
	return s.DailyLimit - s.Used
}
