package strategy

import "strings"

// AnalystUpside is the percentage distance from price to the analyst target.
// ok is false when there is no usable target or price.
func AnalystUpside(price float64, target *float64) (upside float64, ok bool) {
	if target == nil || price <= 0 {
		return 0, false
	}
	return (*target - price) / price * 100, true
}

// ScoreAnalyst returns 50 without a target, otherwise 50 + upside*k clamped.
func ScoreAnalyst(price float64, target *float64, k float64) float64 {
	upside, ok := AnalystUpside(price, target)
	if !ok {
		return neutralScore
	}
	return clamp(neutralScore+upside*k, 0, 100)
}

// Sentiment scores for rating keywords.
const (
	SentimentBullish = 75.0
	SentimentNeutral = 50.0
	SentimentBearish = 25.0
)

// ScoreSentiment maps a free-text rating such as "1.8 - Buy" or "Strong Sell"
// to a score. Matching is case-insensitive; "sell" is checked before "buy"
// so "Strong Sell" never reads as bullish.
func ScoreSentiment(rating string) float64 {
	r := strings.ToLower(strings.TrimSpace(rating))
	switch {
	case r == "":
		return SentimentNeutral
	case strings.Contains(r, "sell") || strings.Contains(r, "underperform"):
		return SentimentBearish
	case strings.Contains(r, "buy") || strings.Contains(r, "outperform") || strings.HasPrefix(r, "1"):
		return SentimentBullish
	case strings.Contains(r, "hold") || strings.HasPrefix(r, "2"):
		return SentimentNeutral
	}
	return SentimentNeutral
}
