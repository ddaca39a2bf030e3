package calculator

import (
	"errors"
)

// CalculateSMA averages the last `period` prices. When fewer prices are
// available the window shrinks to the whole series. An empty series yields 0.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) == 0 {
		return 0, nil
	}
	if len(prices) < period {
		period = len(prices)
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}
