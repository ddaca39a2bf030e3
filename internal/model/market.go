package model

import "time"

// PricePoint is one trading day. Open, High, Low and Volume are optional and
// left at zero when the source does not provide them.
type PricePoint struct {
	Date   time.Time `json:"date" db:"date"`
	Open   float64   `json:"open,omitempty" db:"open"`
	High   float64   `json:"high,omitempty" db:"high"`
	Low    float64   `json:"low,omitempty" db:"low"`
	Close  float64   `json:"close" db:"close"`
	Volume int64     `json:"volume,omitempty" db:"volume"`
}

// PriceSeries is an ascending-by-date run of price points. Gaps are tolerated.
type PriceSeries []PricePoint

// Closes extracts the close prices in series order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, p := range s {
		closes[i] = p.Close
	}
	return closes
}

// Last returns the most recent point and false when the series is empty.
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// Quote is the current market snapshot for a symbol. Optional values are nil
// when the provider did not return them.
type Quote struct {
	Symbol               string    `json:"symbol"`
	Name                 string    `json:"name,omitempty"`
	CurrentPrice         float64   `json:"currentPrice"`
	FiftyTwoWeekLow      *float64  `json:"fiftyTwoWeekLow,omitempty"`
	FiftyTwoWeekHigh     *float64  `json:"fiftyTwoWeekHigh,omitempty"`
	TargetMeanPrice      *float64  `json:"targetMeanPrice,omitempty"`
	TargetHighPrice      *float64  `json:"targetHighPrice,omitempty"`
	TargetLowPrice       *float64  `json:"targetLowPrice,omitempty"`
	AverageAnalystRating string    `json:"averageAnalystRating,omitempty"`
	NumberOfAnalysts     int       `json:"numberOfAnalysts,omitempty"`
	FetchedAt            time.Time `json:"fetchedAt"`
}

// HasTarget reports whether an analyst consensus target is available.
func (q *Quote) HasTarget() bool {
	return q != nil && q.TargetMeanPrice != nil && *q.TargetMeanPrice > 0
}

// AnalystRecord is one day of analyst consensus data for a symbol.
type AnalystRecord struct {
	Symbol           string    `json:"symbol" db:"symbol"`
	Date             time.Time `json:"date" db:"date"`
	TargetMean       *float64  `json:"targetMean,omitempty" db:"target_mean"`
	TargetHigh       *float64  `json:"targetHigh,omitempty" db:"target_high"`
	TargetLow        *float64  `json:"targetLow,omitempty" db:"target_low"`
	Recommendation   string    `json:"recommendation,omitempty" db:"recommendation"`
	NumberOfAnalysts int       `json:"numberOfAnalysts,omitempty" db:"number_of_analysts"`
}

// AnalystFromQuote extracts the analyst fields of a quote into a record dated on day.
func AnalystFromQuote(q *Quote, day time.Time) AnalystRecord {
	return AnalystRecord{
		Symbol:           q.Symbol,
		Date:             day,
		TargetMean:       q.TargetMeanPrice,
		TargetHigh:       q.TargetHighPrice,
		TargetLow:        q.TargetLowPrice,
		Recommendation:   q.AverageAnalystRating,
		NumberOfAnalysts: q.NumberOfAnalysts,
	}
}

// Float returns a pointer to v, for populating optional fields.
func Float(v float64) *float64 { return &v }
