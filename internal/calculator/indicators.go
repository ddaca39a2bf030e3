package calculator

import (
	"fmt"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// RSI modes.
const (
	RSIModeSimple = "simple"
	RSIModeWilder = "wilder"
)

// Params controls the indicator windows.
type Params struct {
	RSIPeriod           int     `yaml:"rsi_period"`
	RSIMode             string  `yaml:"rsi_mode"`
	SMAShort            int     `yaml:"sma_short"`
	SMALong             int     `yaml:"sma_long"`
	MomentumLookback    int     `yaml:"momentum_lookback"`
	AnnualizeVolatility bool    `yaml:"annualize_volatility"`
	VolatilityFloor     float64 `yaml:"volatility_floor"`
}

// DefaultParams returns the canonical indicator settings.
func DefaultParams() Params {
	return Params{
		RSIPeriod:           14,
		RSIMode:             RSIModeSimple,
		SMAShort:            20,
		SMALong:             50,
		MomentumLookback:    10,
		AnnualizeVolatility: true,
		VolatilityFloor:     DefaultVolatilityFloor,
	}
}

// Validate rejects windows the calculators cannot work with.
func (p Params) Validate() error {
	if p.RSIPeriod <= 0 {
		return fmt.Errorf("rsi_period must be positive, got %d", p.RSIPeriod)
	}
	if p.RSIMode != RSIModeSimple && p.RSIMode != RSIModeWilder {
		return fmt.Errorf("rsi_mode must be %q or %q, got %q", RSIModeSimple, RSIModeWilder, p.RSIMode)
	}
	if p.SMAShort <= 0 || p.SMALong <= 0 {
		return fmt.Errorf("sma windows must be positive, got %d/%d", p.SMAShort, p.SMALong)
	}
	if p.MomentumLookback <= 1 {
		return fmt.Errorf("momentum_lookback must be greater than 1, got %d", p.MomentumLookback)
	}
	if p.VolatilityFloor < 0 {
		return fmt.Errorf("volatility_floor must not be negative")
	}
	return nil
}

// Compute derives all technical indicators from ascending closes. Short
// histories degrade to neutral values; moving averages fall back to the
// current price when there is no history at all.
func Compute(closes []float64, currentPrice float64, p Params) (model.TechnicalIndicators, error) {
	if err := p.Validate(); err != nil {
		return model.TechnicalIndicators{}, err
	}
	ind := model.TechnicalIndicators{CurrentPrice: currentPrice}

	var err error
	if p.RSIMode == RSIModeWilder {
		ind.RSI, err = CalculateWilderRSI(closes, p.RSIPeriod)
	} else {
		ind.RSI, err = CalculateRSI(closes, p.RSIPeriod)
	}
	if err != nil {
		return model.TechnicalIndicators{}, fmt.Errorf("rsi: %w", err)
	}

	if len(closes) == 0 {
		ind.SMA20 = currentPrice
		ind.SMA50 = currentPrice
	} else {
		if ind.SMA20, err = CalculateSMA(closes, p.SMAShort); err != nil {
			return model.TechnicalIndicators{}, fmt.Errorf("sma%d: %w", p.SMAShort, err)
		}
		if ind.SMA50, err = CalculateSMA(closes, p.SMALong); err != nil {
			return model.TechnicalIndicators{}, fmt.Errorf("sma%d: %w", p.SMALong, err)
		}
	}

	if ind.Momentum, err = CalculateMomentum(closes, p.MomentumLookback); err != nil {
		return model.TechnicalIndicators{}, fmt.Errorf("momentum: %w", err)
	}

	ind.Volatility = CalculateVolatility(closes, p.AnnualizeVolatility, p.VolatilityFloor)
	return ind, nil
}
