package strategy

import (
	"fmt"
	"math"

	"github.com/adudulescu/stock-predictor/internal/calculator"
)

// Params holds every tunable of the prediction engine. The zero value is not
// usable; start from DefaultParams.
type Params struct {
	calculator.Params `yaml:",inline"`

	TechnicalWeight float64 `yaml:"technical_weight"`
	AnalystWeight   float64 `yaml:"analyst_weight"`
	SentimentWeight float64 `yaml:"sentiment_weight"`

	// AnalystSensitivity is k in 50 + analystUpside*k.
	AnalystSensitivity float64 `yaml:"analyst_sensitivity"`
	// AnalystInfluence scales analyst upside into predicted upside.
	AnalystInfluence float64 `yaml:"analyst_influence"`
	// VolatilityAdjustment adds min(5, volatility)*0.5 to predicted upside.
	VolatilityAdjustment bool `yaml:"volatility_adjustment"`

	DataQualityDays int    `yaml:"data_quality_days"`
	MaxSignals      int    `yaml:"max_signals"`
	HorizonDays     int    `yaml:"horizon_days"`
	ModelVersion    string `yaml:"model_version"`
}

// DefaultParams returns the canonical rule set.
func DefaultParams() Params {
	return Params{
		Params:             calculator.DefaultParams(),
		TechnicalWeight:    0.40,
		AnalystWeight:      0.40,
		SentimentWeight:    0.20,
		AnalystSensitivity: 1.5,
		AnalystInfluence:   0.3,
		DataQualityDays:    60,
		MaxSignals:         5,
		HorizonDays:        30,
		ModelVersion:       "v2.0",
	}
}

// Validate checks the params are internally consistent.
func (p Params) Validate() error {
	if err := p.Params.Validate(); err != nil {
		return err
	}
	for name, w := range map[string]float64{
		"technical_weight": p.TechnicalWeight,
		"analyst_weight":   p.AnalystWeight,
		"sentiment_weight": p.SentimentWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	sum := p.TechnicalWeight + p.AnalystWeight + p.SentimentWeight
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1, got %.4f", sum)
	}
	if p.AnalystSensitivity <= 0 {
		return fmt.Errorf("analyst_sensitivity must be positive")
	}
	if p.AnalystInfluence < 0 {
		return fmt.Errorf("analyst_influence must not be negative")
	}
	if p.DataQualityDays <= 0 {
		return fmt.Errorf("data_quality_days must be positive")
	}
	if p.MaxSignals <= 0 {
		return fmt.Errorf("max_signals must be positive")
	}
	if p.HorizonDays <= 0 {
		return fmt.Errorf("horizon_days must be positive")
	}
	if p.ModelVersion == "" {
		return fmt.Errorf("model_version is required")
	}
	return nil
}
