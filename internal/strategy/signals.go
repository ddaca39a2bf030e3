package strategy

import (
	"fmt"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// buildSignals emits at most one signal per category in this order: upside,
// RSI, momentum, trend, analyst, volatility. The list is truncated to limit.
func buildSignals(upside float64, ind model.TechnicalIndicators, analystUpside float64, hasTarget bool, limit int) []model.Signal {
	var out []model.Signal
	add := func(bullish bool, format string, args ...any) {
		out = append(out, model.Signal{Text: fmt.Sprintf(format, args...), Bullish: bullish})
	}

	switch {
	case upside > 15:
		add(true, "Strong upside: +%.1f%%", upside)
	case upside > 8:
		add(true, "Moderate upside: +%.1f%%", upside)
	case upside > 3:
		add(true, "Modest gain expected: +%.1f%%", upside)
	case upside < 0:
		add(false, "Downside risk: %.1f%%", upside)
	}

	switch {
	case ind.RSI < 30:
		add(true, "Oversold — potential bounce (RSI %.1f)", ind.RSI)
	case ind.RSI > 70:
		add(false, "Overbought — exercise caution (RSI %.1f)", ind.RSI)
	}

	switch {
	case ind.Momentum > 8:
		add(true, "Strong positive momentum: +%.1f%%", ind.Momentum)
	case ind.Momentum < -8:
		add(false, "Negative momentum: %.1f%%", ind.Momentum)
	}

	if ind.CurrentPrice > ind.SMA20 && ind.SMA20 > ind.SMA50 {
		add(true, "Price above key moving averages")
	}

	if hasTarget && analystUpside > 12 {
		add(true, "Analyst target: +%.1f%% upside", analystUpside)
	}

	if ind.Volatility > 40 {
		add(false, "High volatility — elevated risk (%.1f%%)", ind.Volatility)
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
