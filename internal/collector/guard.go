package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// Budget is a daily request allowance, satisfied by quota.Manager. Release
// returns a reservation that never reached the upstream.
type Budget interface {
	Reserve() error
	Release()
	NoteRateLimited()
}

// Request outcomes reported to GuardConfig.OnAttempt.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
	OutcomeNotFound    = "not_found"
	OutcomeRejected    = "rejected"
)

// GuardConfig tunes the upstream protections.
type GuardConfig struct {
	RequestsPerSecond float64 // <= 0 disables limiting
	Burst             int
	MaxRetries        int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	FailureThreshold  uint32        // consecutive failures that open the breaker
	OpenTimeout       time.Duration // how long the breaker stays open
	OnAttempt         func(outcome string)
}

// DefaultGuardConfig matches the upstream free tier.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerSecond: 10,
		Burst:             1,
		MaxRetries:        3,
		BaseBackoff:       500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		FailureThreshold:  5,
		OpenTimeout:       60 * time.Second,
	}
}

// Guard wraps a Fetcher with a token-bucket limiter, a circuit breaker, the
// daily budget and bounded retries, and counts every attempt.
type Guard struct {
	next    Fetcher
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	budget  Budget
	log     zerolog.Logger

	calls       atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	rateLimited atomic.Int64
}

// NewGuard wraps next. budget may be nil.
func NewGuard(next Fetcher, cfg GuardConfig, budget Budget, log zerolog.Logger) *Guard {
	g := &Guard{
		next:   next,
		cfg:    cfg,
		budget: budget,
		log:    log.With().Str("component", "guard").Str("provider", next.Name()).Logger(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    next.Name(),
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// a missing symbol says nothing about upstream health
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return g
}

// Name reports the wrapped provider's name.
func (g *Guard) Name() string { return g.next.Name() }

// PriceHistory fetches history through the limiter, breaker and budget.
func (g *Guard) PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error) {
	var out model.PriceSeries
	err := g.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.PriceHistory(ctx, symbol, maxDays)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", symbol, err)
	}
	return out, nil
}

// Quote fetches a quote through the limiter, breaker and budget.
func (g *Guard) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	var out *model.Quote
	err := g.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.Quote(ctx, symbol)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	return out, nil
}

// Usage returns the counters accumulated since the Guard was created. Every
// attempt, retries included, is one call; a rate-limited attempt counts as
// both failed and rate-limited.
func (g *Guard) Usage() model.UsageStats {
	return model.UsageStats{
		Calls:       g.calls.Load(),
		Succeeded:   g.succeeded.Load(),
		Failed:      g.failed.Load(),
		RateLimited: g.rateLimited.Load(),
	}
}

// BreakerState exposes the circuit breaker state for status reporting.
func (g *Guard) BreakerState() string {
	return g.breaker.State().String()
}

func (g *Guard) observe(outcome string) {
	if g.cfg.OnAttempt != nil {
		g.cfg.OnAttempt(outcome)
	}
}

func (g *Guard) do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, g.backoff(attempt)); err != nil {
				return err
			}
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if g.breaker.State() == gobreaker.StateOpen {
			g.observe(OutcomeRejected)
			return fmt.Errorf("%s: %w", g.next.Name(), gobreaker.ErrOpenState)
		}
		if g.budget != nil {
			if err := g.budget.Reserve(); err != nil {
				g.observe(OutcomeRejected)
				return fmt.Errorf("%w: %v", ErrQuotaExhausted, err)
			}
		}

		g.calls.Add(1)
		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			g.succeeded.Add(1)
			g.observe(OutcomeSuccess)
			return nil
		}
		lastErr = err

		switch {
		case errors.Is(err, ErrNotFound):
			// the upstream answered; nothing to retry
			g.succeeded.Add(1)
			g.observe(OutcomeNotFound)
			return err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			// tripped between the state check and Execute
			g.calls.Add(-1)
			if g.budget != nil {
				g.budget.Release()
			}
			g.observe(OutcomeRejected)
			return err
		case errors.Is(err, ErrRateLimited):
			g.failed.Add(1)
			g.rateLimited.Add(1)
			g.observe(OutcomeRateLimited)
			if g.budget != nil {
				g.budget.NoteRateLimited()
			}
		default:
			g.failed.Add(1)
			g.observe(OutcomeFailure)
			if !retryable(err) {
				return err
			}
		}
		g.log.Debug().Err(err).Int("attempt", attempt+1).Msg("upstream attempt failed")
	}
	return lastErr
}

func (g *Guard) backoff(attempt int) time.Duration {
	base := g.cfg.BaseBackoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := base << (attempt - 1)
	if g.cfg.MaxBackoff > 0 && d > g.cfg.MaxBackoff {
		d = g.cfg.MaxBackoff
	}
	return d
}

// retryable keeps transport errors and 5xx responses; other upstream
// statuses and decode errors fail fast.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
