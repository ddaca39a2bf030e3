package calculator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adudulescu/stock-predictor/internal/model"
)

var decliningCloses = []float64{100, 101, 99, 98, 97, 96, 95, 94, 93, 92, 91, 90, 89, 88, 87}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 50 + float64(i)*0.5
	}
	return closes
}

func TestCalculateRSI_ShortHistoryIsNeutral(t *testing.T) {
	for n := 0; n < 15; n++ {
		rsi, err := CalculateRSI(risingCloses(n), 14)
		require.NoError(t, err)
		assert.Equal(t, 50.0, rsi, "len=%d", n)
	}
}

func TestCalculateRSI_NoLossesIs100(t *testing.T) {
	for _, n := range []int{15, 16, 40, 120} {
		rsi, err := CalculateRSI(risingCloses(n), 14)
		require.NoError(t, err)
		assert.Equal(t, 100.0, rsi, "len=%d", n)
	}
}

func TestCalculateRSI_UsesOnlyLastWindow(t *testing.T) {
	// a crash far outside the window must not matter
	closes := append([]float64{500, 10}, risingCloses(15)...)
	rsi, err := CalculateRSI(closes, 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rsi)
}

func TestCalculateRSI_Decline(t *testing.T) {
	rsi, err := CalculateRSI(decliningCloses, 14)
	require.NoError(t, err)
	// gains 1, losses 14 over 14 transitions
	assert.InDelta(t, 100-100/(1+1.0/14), rsi, 1e-9)
	assert.Less(t, rsi, 30.0)
}

func TestCalculateRSI_InvalidPeriod(t *testing.T) {
	_, err := CalculateRSI(decliningCloses, 0)
	assert.Error(t, err)
}

func TestCalculateWilderRSI(t *testing.T) {
	rsi, err := CalculateWilderRSI(risingCloses(10), 14)
	require.NoError(t, err)
	assert.Equal(t, 50.0, rsi)

	rsi, err = CalculateWilderRSI(risingCloses(30), 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rsi)

	rsi, err = CalculateWilderRSI(decliningCloses, 14)
	require.NoError(t, err)
	assert.Less(t, rsi, 30.0)
	assert.GreaterOrEqual(t, rsi, 0.0)
}

func TestCalculateSMA(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		want   float64
	}{
		{"empty", nil, 20, 0},
		{"shorter than period uses whole series", []float64{1, 2, 3, 4}, 20, 2.5},
		{"exact", []float64{2, 4, 6}, 3, 4},
		{"last window only", []float64{100, 1, 2, 3}, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateSMA(tt.prices, tt.period)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	_, err := CalculateSMA([]float64{1}, 0)
	assert.Error(t, err)
}

func TestCalculateMomentum(t *testing.T) {
	m, err := CalculateMomentum(decliningCloses, 10)
	require.NoError(t, err)
	assert.InDelta(t, (87.0-96.0)/96.0*100, m, 1e-9)

	m, err = CalculateMomentum([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m)

	m, err = CalculateMomentum([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m, "zero base must not divide")

	_, err = CalculateMomentum(decliningCloses, 1)
	assert.Error(t, err)
}

func TestCalculateVolatility(t *testing.T) {
	assert.Equal(t, 25.0, CalculateVolatility(nil, true, 25))
	assert.Equal(t, 25.0, CalculateVolatility([]float64{10}, true, 25))
	assert.Equal(t, 0.0, CalculateVolatility([]float64{10, 10, 10, 10}, true, 25))

	closes := []float64{100, 102, 100, 102, 100}
	daily := CalculateVolatility(closes, false, 25)
	annual := CalculateVolatility(closes, true, 25)
	assert.Greater(t, daily, 0.0)
	assert.InDelta(t, daily*math.Sqrt(252), annual, 1e-9)

	// population std-dev of returns {+2%, -1.96%, +2%, -1.96%}
	r1, r2 := 0.02, -2.0/102
	mean := (r1 + r2) / 2
	want := math.Sqrt(((r1-mean)*(r1-mean)+(r2-mean)*(r2-mean))/2) * 100
	assert.InDelta(t, want, daily, 1e-9)
}

func TestCalculateReturns(t *testing.T) {
	assert.Empty(t, CalculateReturns([]float64{1}))
	assert.Equal(t, []float64{0, 0.5}, CalculateReturns([]float64{0, 2, 3}))
}

func TestCalculate52WeekRange(t *testing.T) {
	_, _, err := Calculate52WeekRange(nil)
	assert.Error(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := model.PriceSeries{
		{Date: start, Close: 10, High: 11, Low: 9},
		{Date: start.AddDate(0, 0, 1), Close: 12},
		{Date: start.AddDate(0, 0, 2), Close: 8, High: 8.5, Low: 7.5},
	}
	high, low, err := Calculate52WeekRange(series)
	require.NoError(t, err)
	assert.Equal(t, 12.0, high)
	assert.Equal(t, 7.5, low)
}

func TestCalculate52WeekPosition(t *testing.T) {
	pos, err := Calculate52WeekPosition(15, 20, 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pos, 1e-12)

	pos, _ = Calculate52WeekPosition(25, 20, 10)
	assert.Equal(t, 1.0, pos)

	pos, _ = Calculate52WeekPosition(10, 10, 10)
	assert.Equal(t, 0.5, pos)

	_, err = Calculate52WeekPosition(10, 5, 10)
	assert.Error(t, err)
}

func TestCompute_EmptyHistoryDegrades(t *testing.T) {
	ind, err := Compute(nil, 42, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 50.0, ind.RSI)
	assert.Equal(t, 42.0, ind.SMA20)
	assert.Equal(t, 42.0, ind.SMA50)
	assert.Equal(t, 0.0, ind.Momentum)
	assert.Equal(t, DefaultVolatilityFloor, ind.Volatility)
	assert.Equal(t, 42.0, ind.CurrentPrice)
}

func TestCompute_Decline(t *testing.T) {
	ind, err := Compute(decliningCloses, 87, DefaultParams())
	require.NoError(t, err)
	assert.Less(t, ind.RSI, 30.0)
	sum := 0.0
	for _, c := range decliningCloses {
		sum += c
	}
	assert.InDelta(t, sum/15, ind.SMA20, 1e-9)
	assert.InDelta(t, sum/15, ind.SMA50, 1e-9)
	assert.InDelta(t, -9.375, ind.Momentum, 1e-9)
}

func TestCompute_WilderMode(t *testing.T) {
	p := DefaultParams()
	p.RSIMode = RSIModeWilder
	ind, err := Compute(risingCloses(40), 70, p)
	require.NoError(t, err)
	assert.Equal(t, 100.0, ind.RSI)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.RSIMode = "ema"
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.SMALong = 0
	assert.Error(t, p.Validate())

	_, err := Compute(decliningCloses, 87, p)
	assert.Error(t, err)
}
