package model

// TechnicalIndicators holds the indicators derived from a price series.
type TechnicalIndicators struct {
	RSI          float64 `json:"rsi"`
	SMA20        float64 `json:"sma20"`
	SMA50        float64 `json:"sma50"`
	Momentum     float64 `json:"momentum"`   // percent
	Volatility   float64 `json:"volatility"` // percent, annualized unless disabled
	CurrentPrice float64 `json:"currentPrice"`
}
