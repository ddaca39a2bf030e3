package strategy

import (
	"github.com/adudulescu/stock-predictor/internal/calculator"
	"github.com/adudulescu/stock-predictor/internal/model"
)

// neutralScore is where every scorer starts.
const neutralScore = 50.0

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ScoreTechnical maps indicators plus optional 52-week bounds to [0,100].
// Adjustments accumulate unclamped; the result is clamped once at the end.
func ScoreTechnical(ind model.TechnicalIndicators, low52w, high52w *float64) float64 {
	score := neutralScore
	score += scoreRSI(ind.RSI)
	score += scoreMomentum(ind.Momentum)
	score += scoreTrend(ind)
	score += scoreVolatility(ind.Volatility)
	score += score52WeekPosition(ind.CurrentPrice, low52w, high52w)
	return clamp(score, 0, 100)
}

func scoreRSI(rsi float64) float64 {
	switch {
	case rsi < 30:
		return 20
	case rsi < 40:
		return 10
	case rsi > 70:
		return -15
	case rsi > 60:
		return -5
	}
	return 0
}

func scoreMomentum(m float64) float64 {
	switch {
	case m > 10:
		return 20
	case m > 5:
		return 15
	case m > 0:
		return 5
	case m < -10:
		return -20
	case m < -5:
		return -10
	}
	return 0
}

func scoreTrend(ind model.TechnicalIndicators) float64 {
	var s float64
	if ind.CurrentPrice > ind.SMA20 {
		s += 10
	}
	if ind.SMA20 > ind.SMA50 {
		s += 10
	}
	if ind.CurrentPrice > ind.SMA50 {
		s += 5
	}
	return s
}

func scoreVolatility(vol float64) float64 {
	switch {
	case vol < 20:
		return 10
	case vol < 30:
		return 5
	case vol > 50:
		return -10
	}
	return 0
}

// score52WeekPosition only applies when both bounds exist and span a range.
func score52WeekPosition(price float64, low, high *float64) float64 {
	if low == nil || high == nil || *high-*low <= 0 {
		return 0
	}
	pos, err := calculator.Calculate52WeekPosition(price, *high, *low)
	if err != nil {
		return 0
	}
	switch {
	case pos < 0.3:
		return 15
	case pos > 0.9:
		return -10
	}
	return 0
}
