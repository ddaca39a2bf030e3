package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adudulescu/stock-predictor/internal/model"
)

var (
	// ErrNotFound means the provider has no data for the symbol.
	ErrNotFound = errors.New("symbol not found")
	// ErrRateLimited is returned for upstream 429 responses.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrQuotaExhausted means the local daily request budget is spent.
	ErrQuotaExhausted = errors.New("upstream quota exhausted")
)

// PriceProvider returns up to maxDays of history, ascending by date. Fewer
// points than requested is not an error.
type PriceProvider interface {
	PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error)
}

// QuoteProvider returns the current snapshot for a symbol. A missing quote is
// reported as ErrNotFound.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
}

// Fetcher is a complete market-data source.
type Fetcher interface {
	PriceProvider
	QuoteProvider
	Name() string
}

// StatusError is a non-200 upstream response that is neither 404 nor 429.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Provider, e.Code, e.Body)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500
}

// newHTTPClient builds a client with optional proxy support.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// readBody reads a response and maps error statuses onto the package errors.
func readBody(provider string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", provider, err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", provider, ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", provider, ErrNotFound)
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return nil, &StatusError{Provider: provider, Code: resp.StatusCode, Body: string(body)}
}

// trimSeries keeps the last maxDays points. Non-positive maxDays keeps all.
func trimSeries(s model.PriceSeries, maxDays int) model.PriceSeries {
	if maxDays > 0 && len(s) > maxDays {
		return s[len(s)-maxDays:]
	}
	return s
}
