package calculator

import "errors"

// CalculateMomentum returns the percentage change from the close `lookback`
// points before the end of the series (inclusive window) to the last close.
// Fewer than `lookback` closes yields 0.
func CalculateMomentum(closes []float64, lookback int) (float64, error) {
	if lookback <= 1 {
		return 0, errors.New("lookback must be greater than 1")
	}
	n := len(closes)
	if n < lookback {
		return 0, nil
	}
	base := closes[n-lookback]
	if base == 0 {
		return 0, nil
	}
	return (closes[n-1] - base) / base * 100, nil
}
