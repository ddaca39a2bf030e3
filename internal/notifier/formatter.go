package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// MaxReportRows caps how many opportunities one message lists.
const MaxReportRows = 10

// FormatOpportunities formats a batch result into a Telegram message.
func FormatOpportunities(res *model.BatchResult, minUpside float64) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Stock Scan</b> | %s\n", res.AnalyzedAt.Format("2006-01-02 15:04 MST")))
	b.WriteString(fmt.Sprintf("Analyzed %d, scored %d (cached %d), skipped %d, failed %d\n\n",
		res.Analyzed, res.Succeeded, res.Cached, res.Skipped, res.Failed))

	if res.Count == 0 {
		b.WriteString(fmt.Sprintf("No opportunities with upside ≥ %.1f%%.\n", minUpside))
	} else {
		b.WriteString(fmt.Sprintf("🚀 <b>%d opportunities</b> (upside ≥ %.1f%%)\n\n", res.Count, minUpside))
		for i, p := range res.Opportunities {
			if i == MaxReportRows {
				b.WriteString(fmt.Sprintf("… and %d more\n", res.Count-MaxReportRows))
				break
			}
			b.WriteString(formatPrediction(i+1, &p))
		}
	}

	if len(res.Failures) > 0 {
		names := make([]string, 0, len(res.Failures))
		for _, f := range res.Failures {
			names = append(names, f.Symbol)
		}
		b.WriteString(fmt.Sprintf("\n⚠️ Not scored: %s\n", strings.Join(names, ", ")))
	}
	if res.Usage.Calls > 0 {
		b.WriteString(fmt.Sprintf("\nUpstream calls: %d (rate limited %d)", res.Usage.Calls, res.Usage.RateLimited))
	}
	return b.String()
}

func formatPrediction(rank int, p *model.Prediction) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d. <b>%s</b> %s\n", rank, html.EscapeString(p.Symbol), html.EscapeString(p.Name)))
	b.WriteString(fmt.Sprintf("   $%.2f → $%.2f (%+.1f%%)\n", p.CurrentPrice, p.PredictedPrice, p.PredictedUpside))
	b.WriteString(fmt.Sprintf("   Score %.0f | Confidence %.0f | RSI %.0f\n", p.CombinedScore, p.Confidence, p.Technical.RSI))
	for _, s := range p.Signals {
		mark := "🔻"
		if s.Bullish {
			mark = "🔹"
		}
		b.WriteString(fmt.Sprintf("   %s %s\n", mark, html.EscapeString(s.Text)))
	}
	return b.String()
}

// FormatTop lists the most recent stored predictions.
func FormatTop(records []model.PredictionRecord) string {
	if len(records) == 0 {
		return "No stored predictions yet. Send /scan to run one."
	}
	var b strings.Builder
	b.WriteString("🏆 <b>Latest predictions</b>\n\n")
	for i, r := range records {
		b.WriteString(fmt.Sprintf("%d. <b>%s</b> %+.1f%% | score %.0f | %s\n",
			i+1, html.EscapeString(r.Symbol), r.PredictedUpside, r.CombinedScore, r.PredictionDate.Format("2006-01-02")))
	}
	return b.String()
}

// FormatHistory lists stored predictions for one symbol, newest first.
func FormatHistory(symbol string, records []model.PredictionRecord) string {
	if len(records) == 0 {
		return fmt.Sprintf("No stored predictions for %s.", html.EscapeString(symbol))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>%s</b> history\n\n", html.EscapeString(symbol)))
	for _, r := range records {
		b.WriteString(fmt.Sprintf("%s  $%.2f → $%.2f (%+.1f%%) | score %.0f | %s\n",
			r.PredictionDate.Format("2006-01-02"), r.CurrentPrice, r.PredictedPrice, r.PredictedUpside, r.CombinedScore, r.ModelVersion))
	}
	return b.String()
}

// FormatUsage formats a usage report and the live quota state.
func FormatUsage(r model.UsageReport, q model.QuotaState) string {
	var b strings.Builder
	b.WriteString("📡 <b>API usage</b> (last 24h)\n\n")
	b.WriteString(fmt.Sprintf("Runs: %d\n", r.Runs))
	b.WriteString(fmt.Sprintf("Requests: %d (ok %d, failed %d, rate limited %d)\n",
		r.Totals.Calls, r.Totals.Succeeded, r.Totals.Failed, r.Totals.RateLimited))
	if r.DailyLimit > 0 {
		b.WriteString(fmt.Sprintf("Limit: %d | Remaining: %d | Used: %.1f%%\n", r.DailyLimit, r.Remaining, r.PercentUsed))
	}
	b.WriteString(fmt.Sprintf("Quota today: %d used, %d left\n", q.Used, q.Remaining()))
	if r.Breaker != "" && r.Breaker != "closed" {
		b.WriteString(fmt.Sprintf("⚠️ Upstream circuit %s\n", r.Breaker))
	}
	if len(r.Hourly) > 0 {
		b.WriteString("\n<b>Hourly</b>\n")
		for _, h := range r.Hourly {
			b.WriteString(fmt.Sprintf("  %s  %d\n", h.Hour.Format("01-02 15:00"), h.Calls))
		}
	}
	return b.String()
}

// FormatWatchlist formats the watchlist, newest first as stored.
func FormatWatchlist(items []model.WatchItem) string {
	if len(items) == 0 {
		return "Watchlist is empty."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👀 <b>Watchlist</b> (%d)\n\n", len(items)))
	for _, it := range items {
		line := fmt.Sprintf("• <b>%s</b>", html.EscapeString(it.Symbol))
		if it.Name != "" {
			line += " " + html.EscapeString(it.Name)
		}
		if it.PriceWhenAdded > 0 {
			line += fmt.Sprintf(" | added at $%.2f", it.PriceWhenAdded)
		}
		if it.UpsideWhenAdded != 0 {
			line += fmt.Sprintf(" (%+.1f%%)", it.UpsideWhenAdded)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// FormatCollect reports a collection run.
func FormatCollect(succeeded, failed []string, prices, analyst int, at time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📥 <b>Data collection</b> | %s\n", at.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Symbols ok: %d | failed: %d\n", len(succeeded), len(failed)))
	b.WriteString(fmt.Sprintf("Price rows: %d | analyst rows: %d\n", prices, analyst))
	if len(failed) > 0 {
		b.WriteString(fmt.Sprintf("Failed: %s\n", strings.Join(failed, ", ")))
	}
	return b.String()
}

// HelpText lists the bot commands.
const HelpText = "Available commands:\n" +
	"/scan - score the configured symbols and the watchlist\n" +
	"/top - latest stored predictions\n" +
	"/history SYMBOL - stored predictions for a symbol\n" +
	"/usage - upstream API usage\n" +
	"/watchlist - watched symbols"
