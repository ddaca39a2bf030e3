package collector

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// SyntheticStock seeds the generator for one symbol.
type SyntheticStock struct {
	Name   string
	Price  float64
	Target float64
}

// DefaultSyntheticStocks are the demo symbols used by the seed command.
var DefaultSyntheticStocks = map[string]SyntheticStock{
	"AAPL":  {Name: "Apple Inc.", Price: 195.50, Target: 220.00},
	"MSFT":  {Name: "Microsoft Corporation", Price: 378.25, Target: 410.00},
	"GOOGL": {Name: "Alphabet Inc.", Price: 140.35, Target: 165.00},
	"AMZN":  {Name: "Amazon.com Inc.", Price: 151.20, Target: 175.00},
	"META":  {Name: "Meta Platforms Inc.", Price: 352.90, Target: 395.00},
}

// SyntheticSource generates random-walk histories and matching quotes. It is
// only ever selected explicitly (the seed command or provider "synthetic").
// Output is deterministic for a given seed, symbol and end date.
type SyntheticSource struct {
	Seed   int64
	Stocks map[string]SyntheticStock
	Now    func() time.Time
}

// NewSyntheticSource returns a generator over DefaultSyntheticStocks.
func NewSyntheticSource(seed int64) *SyntheticSource {
	return &SyntheticSource{Seed: seed, Stocks: DefaultSyntheticStocks, Now: time.Now}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

func (s *SyntheticSource) stock(symbol string) SyntheticStock {
	if st, ok := s.Stocks[symbol]; ok {
		return st
	}
	// unknown symbols get a stable price derived from the ticker
	h := fnv.New32a()
	h.Write([]byte(symbol))
	price := 20 + float64(h.Sum32()%480)
	return SyntheticStock{Name: symbol, Price: price, Target: price * 1.1}
}

func (s *SyntheticSource) rng(symbol string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return rand.New(rand.NewSource(s.Seed ^ int64(h.Sum64())))
}

func (s *SyntheticSource) today() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	y, m, d := now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PriceHistory walks backwards from the stock's base price over weekdays so
// the most recent close sits near the base price.
func (s *SyntheticSource) PriceHistory(_ context.Context, symbol string, maxDays int) (model.PriceSeries, error) {
	if maxDays <= 0 {
		maxDays = 90
	}
	st := s.stock(symbol)
	r := s.rng(symbol)

	series := make(model.PriceSeries, maxDays)
	day := s.today()
	price := st.Price
	for i := maxDays - 1; i >= 0; i-- {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, -1)
		}
		spread := price * 0.01
		series[i] = model.PricePoint{
			Date:   day,
			Open:   round2(price + (r.Float64()-0.5)*spread),
			High:   round2(price + r.Float64()*spread),
			Low:    round2(price - r.Float64()*spread),
			Close:  round2(price),
			Volume: 1_000_000 + r.Int63n(99_000_000),
		}
		price /= 1 + r.NormFloat64()*0.015
		day = day.AddDate(0, 0, -1)
	}
	return series, nil
}

// Quote reports the latest synthetic close with the stock's analyst target.
func (s *SyntheticSource) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	st := s.stock(symbol)
	series, _ := s.PriceHistory(ctx, symbol, 252)
	low, high := math.Inf(1), math.Inf(-1)
	for _, p := range series {
		low = math.Min(low, p.Low)
		high = math.Max(high, p.High)
	}
	last, _ := series.Last()
	return &model.Quote{
		Symbol:               symbol,
		Name:                 st.Name,
		CurrentPrice:         last.Close,
		FiftyTwoWeekLow:      model.Float(low),
		FiftyTwoWeekHigh:     model.Float(high),
		TargetMeanPrice:      model.Float(st.Target),
		TargetHighPrice:      model.Float(round2(st.Target * 1.1)),
		TargetLowPrice:       model.Float(round2(st.Target * 0.9)),
		AverageAnalystRating: "buy",
		NumberOfAnalysts:     25,
		FetchedAt:            s.today(),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
