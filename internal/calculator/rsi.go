package calculator

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"
)

// NeutralRSI is returned whenever the history is too short for an RSI.
const NeutralRSI = 50.0

// CalculateRSI computes RSI from the last `period` close-to-close changes only.
// Requires at least period+1 closes; returns 50 otherwise. A window with no
// losses returns 100.
func CalculateRSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period+1 {
		return NeutralRSI, nil
	}

	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0, nil
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs), nil
}

// CalculateWilderRSI computes the Wilder-smoothed RSI over the full history.
// Same short-input and no-loss behaviour as CalculateRSI.
func CalculateWilderRSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period+1 {
		return NeutralRSI, nil
	}
	if period < 2 {
		return CalculateRSI(closes, period)
	}
	if noLosses(closes) {
		return 100.0, nil
	}
	rsi := talib.Rsi(closes, period)
	if len(rsi) == 0 {
		return NeutralRSI, nil
	}
	last := rsi[len(rsi)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return NeutralRSI, nil
	}
	return last, nil
}

func noLosses(closes []float64) bool {
	for i := 1; i < len(closes); i++ {
		if closes[i] < closes[i-1] {
			return false
		}
	}
	return true
}
