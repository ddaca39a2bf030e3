package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// RapidAPIFetcher implements Fetcher against the apidojo Yahoo Finance API on
// RapidAPI. Its quotes carry analyst consensus fields.
type RapidAPIFetcher struct {
	BaseURL string
	Host    string
	APIKey  string
	Region  string
	Client  *http.Client
}

// NewRapidAPIFetcher creates a new fetcher with optional proxy support.
func NewRapidAPIFetcher(baseURL, host, apiKey, region, proxyURL string, timeout time.Duration) *RapidAPIFetcher {
	if region == "" {
		region = "US"
	}
	return &RapidAPIFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Host:    host,
		APIKey:  apiKey,
		Region:  region,
		Client:  newHTTPClient(proxyURL, timeout),
	}
}

func (f *RapidAPIFetcher) Name() string { return "rapidapi" }

func (f *RapidAPIFetcher) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := f.BaseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", f.APIKey)
	req.Header.Set("X-RapidAPI-Host", f.Host)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rapidapi %s: %w", path, err)
	}
	return readBody("rapidapi", resp)
}

// PriceHistory reads stock/v3/get-historical-data. The upstream returns
// newest first and mixes dividend/split events into the prices array.
func (f *RapidAPIFetcher) PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error) {
	body, err := f.get(ctx, "/stock/v3/get-historical-data", url.Values{
		"symbol": {symbol},
		"region": {f.Region},
	})
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("rapidapi history %s: invalid json", symbol)
	}

	var series model.PriceSeries
	gjson.GetBytes(body, "prices").ForEach(func(_, p gjson.Result) bool {
		date, closePrice := p.Get("date"), p.Get("close")
		if p.Get("type").Exists() || !date.Exists() || closePrice.Float() <= 0 {
			return true
		}
		series = append(series, model.PricePoint{
			Date:   time.Unix(date.Int(), 0).UTC(),
			Open:   p.Get("open").Float(),
			High:   p.Get("high").Float(),
			Low:    p.Get("low").Float(),
			Close:  closePrice.Float(),
			Volume: p.Get("volume").Int(),
		})
		return true
	})

	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return trimSeries(series, maxDays), nil
}

// Quote reads market/v2/get-quotes for a single symbol.
func (f *RapidAPIFetcher) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	quotes, err := f.Quotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("rapidapi quote %s: %w", symbol, ErrNotFound)
	}
	return q, nil
}

// Quotes fetches several symbols in one request, keyed by symbol. Symbols
// the upstream does not know are absent from the map.
func (f *RapidAPIFetcher) Quotes(ctx context.Context, symbols []string) (map[string]*model.Quote, error) {
	body, err := f.get(ctx, "/market/v2/get-quotes", url.Values{
		"region":  {f.Region},
		"symbols": {strings.Join(symbols, ",")},
	})
	if err != nil {
		return nil, err
	}
	result := gjson.GetBytes(body, "quoteResponse.result")
	if !result.IsArray() {
		return nil, fmt.Errorf("rapidapi quotes: unexpected response shape")
	}

	out := make(map[string]*model.Quote, len(symbols))
	now := time.Now()
	result.ForEach(func(_, r gjson.Result) bool {
		q := parseRapidQuote(r, now)
		if q.Symbol != "" && q.CurrentPrice > 0 {
			out[q.Symbol] = q
		}
		return true
	})
	return out, nil
}

func parseRapidQuote(r gjson.Result, now time.Time) *model.Quote {
	name := r.Get("longName").String()
	if name == "" {
		name = r.Get("shortName").String()
	}
	rating := r.Get("averageAnalystRating").String()
	if rating == "" {
		rating = r.Get("recommendationKey").String()
	}
	return &model.Quote{
		Symbol:               r.Get("symbol").String(),
		Name:                 name,
		CurrentPrice:         r.Get("regularMarketPrice").Float(),
		FiftyTwoWeekLow:      optionalPositive(r.Get("fiftyTwoWeekLow")),
		FiftyTwoWeekHigh:     optionalPositive(r.Get("fiftyTwoWeekHigh")),
		TargetMeanPrice:      optionalPositive(r.Get("targetMeanPrice")),
		TargetHighPrice:      optionalPositive(r.Get("targetHighPrice")),
		TargetLowPrice:       optionalPositive(r.Get("targetLowPrice")),
		AverageAnalystRating: rating,
		NumberOfAnalysts:     int(r.Get("numberOfAnalystOpinions").Int()),
		FetchedAt:            now,
	}
}

// optionalPositive treats missing, null and non-positive numbers as absent.
func optionalPositive(v gjson.Result) *float64 {
	if v.Type != gjson.Number || v.Float() <= 0 {
		return nil
	}
	f := v.Float()
	return &f
}
