// Package metrics holds the prometheus collectors for batch runs, upstream
// traffic and caches, plus a bare /metrics listener.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Prediction outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeCached    = "cached"
)

// Registry holds every collector. A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	Predictions      *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
	UpstreamRequests *prometheus.CounterVec
	Opportunities    prometheus.Gauge
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	PersistFailures  prometheus.Counter
	QuotaRemaining   prometheus.Gauge
}

// NewRegistry creates the collectors on a private prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_predictions_total",
				Help: "Per-symbol prediction outcomes",
			},
			[]string{"outcome"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "predictor_batch_duration_seconds",
				Help:    "Wall time of a batch prediction run",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_upstream_requests_total",
				Help: "Upstream market-data requests by outcome",
			},
			[]string{"outcome"},
		),
		Opportunities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictor_opportunities",
				Help: "Opportunities returned by the last batch",
			},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_cache_hits_total",
				Help: "Cache hits by cache",
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_cache_misses_total",
				Help: "Cache misses by cache",
			},
			[]string{"cache"},
		),
		PersistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "predictor_persist_failures_total",
				Help: "Predictions computed but not persisted",
			},
		),
		QuotaRemaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictor_quota_remaining",
				Help: "Upstream requests left in today's budget",
			},
		),
	}
	r.reg.MustRegister(
		r.Predictions,
		r.BatchDuration,
		r.UpstreamRequests,
		r.Opportunities,
		r.CacheHits,
		r.CacheMisses,
		r.PersistFailures,
		r.QuotaRemaining,
	)
	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObservePrediction counts one symbol outcome of a batch.
func (r *Registry) ObservePrediction(outcome string) {
	if r == nil {
		return
	}
	r.Predictions.WithLabelValues(outcome).Inc()
}

// ObserveBatch records a finished batch: its duration, the number of
// opportunities it reported and how many predictions failed to persist.
func (r *Registry) ObserveBatch(d time.Duration, opportunities, persistFailures int) {
	if r == nil {
		return
	}
	r.BatchDuration.Observe(d.Seconds())
	r.Opportunities.Set(float64(opportunities))
	r.PersistFailures.Add(float64(persistFailures))
}

// ObserveUpstream fits collector.GuardConfig.OnAttempt.
func (r *Registry) ObserveUpstream(outcome string) {
	if r == nil {
		return
	}
	r.UpstreamRequests.WithLabelValues(outcome).Inc()
}

// CacheObserver returns a hit/miss callback for the named cache.
func (r *Registry) CacheObserver(cache string) func(hit bool) {
	return func(hit bool) {
		if r == nil {
			return
		}
		if hit {
			r.CacheHits.WithLabelValues(cache).Inc()
		} else {
			r.CacheMisses.WithLabelValues(cache).Inc()
		}
	}
}

// SetQuotaRemaining publishes what is left of the daily request budget.
func (r *Registry) SetQuotaRemaining(n int) {
	if r == nil {
		return
	}
	r.QuotaRemaining.Set(float64(n))
}

// Handler serves the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve listens on addr until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
