package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/adudulescu/stock-predictor/internal/calculator"
	"github.com/adudulescu/stock-predictor/internal/model"
)

// ErrMissingQuote means there is no current price to score against. Callers
// skip the symbol.
var ErrMissingQuote = errors.New("missing quote")

// Engine turns a price history and a quote into a Prediction. It performs no
// I/O and holds no mutable state, so one Engine may be shared by any number
// of goroutines.
type Engine struct {
	params Params
}

// NewEngine validates p and returns an Engine.
func NewEngine(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("strategy params: %w", err)
	}
	return &Engine{params: p}, nil
}

// Params returns the engine's configuration.
func (e *Engine) Params() Params { return e.params }

// CombinedScore blends the three sub-scores with the configured weights.
func (e *Engine) CombinedScore(technical, analyst, sentiment float64) float64 {
	p := e.params
	return p.TechnicalWeight*technical + p.AnalystWeight*analyst + p.SentimentWeight*sentiment
}

// Predict scores one symbol. series must be ascending by date and may be
// empty; quote must carry a positive current price.
func (e *Engine) Predict(symbol, name string, series model.PriceSeries, quote *model.Quote) (*model.Prediction, error) {
	if quote == nil || quote.CurrentPrice <= 0 || math.IsNaN(quote.CurrentPrice) {
		return nil, fmt.Errorf("%s: %w", symbol, ErrMissingQuote)
	}
	p := e.params
	price := quote.CurrentPrice

	ind, err := calculator.Compute(series.Closes(), price, p.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: indicators: %w", symbol, err)
	}

	technical := ScoreTechnical(ind, quote.FiftyTwoWeekLow, quote.FiftyTwoWeekHigh)
	analyst := ScoreAnalyst(price, quote.TargetMeanPrice, p.AnalystSensitivity)
	sentiment := ScoreSentiment(quote.AverageAnalystRating)
	combined := e.CombinedScore(technical, analyst, sentiment)

	analystUpside, hasTarget := AnalystUpside(price, quote.TargetMeanPrice)
	upside := e.predictedUpside(ind, analystUpside, hasTarget)

	if name == "" {
		name = quote.Name
	}
	if name == "" {
		name = symbol
	}

	return &model.Prediction{
		Symbol:          symbol,
		Name:            name,
		CurrentPrice:    price,
		PredictedPrice:  price * (1 + upside/100),
		PredictedUpside: upside,
		Confidence:      e.confidence(combined, len(series), hasTarget, ind.Volatility),
		TechnicalScore:  technical,
		AnalystScore:    analyst,
		SentimentScore:  sentiment,
		CombinedScore:   combined,
		Technical:       ind,
		Signals:         buildSignals(upside, ind, analystUpside, hasTarget, p.MaxSignals),
		HistoryLength:   len(series),
	}, nil
}

func (e *Engine) predictedUpside(ind model.TechnicalIndicators, analystUpside float64, hasTarget bool) float64 {
	upside := ind.Momentum * 0.4

	if ind.CurrentPrice > ind.SMA20 {
		upside += 3
	} else {
		upside -= 2
	}
	if ind.SMA20 > ind.SMA50 {
		upside += 3
	} else {
		upside -= 2
	}

	if hasTarget {
		upside += analystUpside * e.params.AnalystInfluence
	}
	if e.params.VolatilityAdjustment {
		upside += math.Min(5, ind.Volatility) * 0.5
	}
	return upside
}

func (e *Engine) confidence(combined float64, historyLen int, hasTarget bool, volatility float64) float64 {
	dataQuality := math.Min(float64(historyLen)/float64(e.params.DataQualityDays), 1)
	analystQuality := 0.6
	if hasTarget {
		analystQuality = 0.9
	}
	volPenalty := math.Max(0, 1-volatility/15)

	c := 100 * (0.5*(combined/100) + 0.25*dataQuality + 0.15*analystQuality + 0.10*volPenalty)
	return clamp(c, 0, 100)
}
