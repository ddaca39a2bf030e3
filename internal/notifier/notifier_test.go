package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adudulescu/stock-predictor/internal/model"
)

func sampleBatch() *model.BatchResult {
	return &model.BatchResult{
		Count:      1,
		AnalyzedAt: time.Date(2024, 5, 2, 22, 0, 0, 0, time.UTC),
		Analyzed:   3,
		Succeeded:  2,
		Skipped:    1,
		Opportunities: []model.Prediction{{
			Symbol:          "AAPL",
			Name:            "Apple <Inc>",
			CurrentPrice:    100,
			PredictedPrice:  112.5,
			PredictedUpside: 12.5,
			CombinedScore:   71,
			Confidence:      80,
			Signals: []model.Signal{
				{Text: "Moderate upside: +12.5%", Bullish: true},
				{Text: "Negative momentum: -3.0%", Bullish: false},
			},
		}},
		Failures: []model.SymbolFailure{{Symbol: "ZZZZ", Error: "missing quote"}},
		Usage:    model.UsageStats{Calls: 6, RateLimited: 1},
	}
}

func TestFormatOpportunities(t *testing.T) {
	msg := FormatOpportunities(sampleBatch(), 10)
	assert.Contains(t, msg, "1 opportunities")
	assert.Contains(t, msg, "<b>AAPL</b> Apple &lt;Inc&gt;")
	assert.Contains(t, msg, "$100.00 → $112.50 (+12.5%)")
	assert.Contains(t, msg, "🔹 Moderate upside: +12.5%")
	assert.Contains(t, msg, "🔻 Negative momentum: -3.0%")
	assert.Contains(t, msg, "Not scored: ZZZZ")
	assert.Contains(t, msg, "Upstream calls: 6 (rate limited 1)")
}

func TestFormatOpportunities_Empty(t *testing.T) {
	res := &model.BatchResult{AnalyzedAt: time.Now()}
	assert.Contains(t, FormatOpportunities(res, 50), "No opportunities with upside ≥ 50.0%")
}

func TestFormatOpportunities_Truncates(t *testing.T) {
	res := &model.BatchResult{AnalyzedAt: time.Now(), Count: MaxReportRows + 2}
	for i := 0; i < res.Count; i++ {
		res.Opportunities = append(res.Opportunities, model.Prediction{Symbol: "S"})
	}
	assert.Contains(t, FormatOpportunities(res, 0), "… and 2 more")
}

func TestFormatUsageAndWatchlist(t *testing.T) {
	r := model.UsageReport{
		Runs:        2,
		Totals:      model.UsageStats{Calls: 50, Succeeded: 48, Failed: 2},
		DailyLimit:  500,
		Remaining:   450,
		PercentUsed: 10,
		Hourly:      []model.HourlyUsage{{Hour: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), UsageStats: model.UsageStats{Calls: 50}}},
	}
	msg := FormatUsage(r, model.QuotaState{DailyLimit: 500, Used: 60})
	assert.Contains(t, msg, "Limit: 500 | Remaining: 450 | Used: 10.0%")
	assert.Contains(t, msg, "Quota today: 60 used, 440 left")
	assert.Contains(t, msg, "05-02 09:00  50")

	assert.Equal(t, "Watchlist is empty.", FormatWatchlist(nil))
	wl := FormatWatchlist([]model.WatchItem{{Symbol: "MSFT", Name: "Microsoft", PriceWhenAdded: 300, UpsideWhenAdded: 8}})
	assert.Contains(t, wl, "<b>MSFT</b> Microsoft | added at $300.00 (+8.0%)")

	assert.Contains(t, FormatTop(nil), "/scan")
	assert.NotContains(t, msg, "circuit")

	r.Breaker = "half-open"
	assert.Contains(t, FormatUsage(r, model.QuotaState{}), "Upstream circuit half-open")
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "No stored predictions for NVDA.", FormatHistory("NVDA", nil))

	recs := []model.PredictionRecord{{
		Prediction:     model.Prediction{Symbol: "NVDA", CurrentPrice: 100, PredictedPrice: 115.5, PredictedUpside: 15.5, CombinedScore: 71},
		PredictionDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		ModelVersion:   "v2.0",
	}}
	assert.Contains(t, FormatHistory("NVDA", recs), "2024-05-02  $100.00 → $115.50 (+15.5%) | score 71 | v2.0")
}

func TestSendWithRetry(t *testing.T) {
	var attempts atomic.Int32
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	tn.APIBase = srv.URL
	tn.RetryBase = time.Millisecond

	require.NoError(t, tn.SendWithRetry(context.Background(), "hello", 3))
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])

	attempts.Store(-100)
	err := tn.SendWithRetry(context.Background(), "hello", 1)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "all 2 attempts failed"))
}

func TestStartPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var replies []string
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if polls.Add(1) == 1 {
				w.Write([]byte(`{"ok":true,"result":[
					{"update_id":7,"message":{"text":" /top ","chat":{"id":42}}},
					{"update_id":8,"message":{"text":"/scan","chat":{"id":99}}}]}`))
				return
			}
			assert.Equal(t, "9", r.URL.Query().Get("offset"))
			cancel()
			w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			replies = append(replies, body["text"].(string))
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	tn.APIBase = srv.URL

	var commands []string
	tn.StartPolling(ctx, func(_ context.Context, cmd string) string {
		commands = append(commands, cmd)
		return "reply to " + cmd
	})

	assert.Equal(t, []string{"/top"}, commands, "foreign chat ignored")
	assert.Equal(t, []string{"reply to /top"}, replies)
}
