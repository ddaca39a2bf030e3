package calculator

import (
	"errors"
	"math"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// Calculate52WeekRange scans the most recent 252 trading days and returns the
// high and low. Points without intraday bounds fall back to their close.
func Calculate52WeekRange(series model.PriceSeries) (high, low float64, err error) {
	if len(series) == 0 {
		return 0, 0, errors.New("no price points provided")
	}
	n := len(series)
	start := n - TradingDaysPerYear
	if start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		h, l := series[i].High, series[i].Low
		if h == 0 {
			h = series[i].Close
		}
		if l == 0 {
			l = series[i].Close
		}
		if h > high {
			high = h
		}
		if l < low {
			low = l
		}
	}
	return high, low, nil
}

// Calculate52WeekPosition returns where the current price sits within the
// 52-week range, clamped to 0.0~1.0.
func Calculate52WeekPosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
