package calculator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear scales daily volatility to an annual figure.
const TradingDaysPerYear = 252

// DefaultVolatilityFloor is reported when fewer than two closes are available.
const DefaultVolatilityFloor = 25.0

// CalculateReturns converts prices to simple day-over-day returns. A zero
// previous price contributes a zero return.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

// CalculateVolatility is the population standard deviation of daily returns in
// percent, multiplied by sqrt(252) when annualize is set.
func CalculateVolatility(closes []float64, annualize bool, floor float64) float64 {
	if len(closes) < 2 {
		return floor
	}
	vol := stat.PopStdDev(CalculateReturns(closes), nil) * 100
	if annualize {
		vol *= math.Sqrt(TradingDaysPerYear)
	}
	return vol
}
