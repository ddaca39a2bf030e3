package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/adudulescu/stock-predictor/internal/collector"
	"github.com/adudulescu/stock-predictor/internal/config"
	"github.com/adudulescu/stock-predictor/internal/metrics"
	"github.com/adudulescu/stock-predictor/internal/predictor"
	"github.com/adudulescu/stock-predictor/internal/quota"
	"github.com/adudulescu/stock-predictor/internal/recorder"
	"github.com/adudulescu/stock-predictor/internal/strategy"
)

// deps is everything a command may need, built from config.
type deps struct {
	rec     recorder.Recorder
	quota   *quota.Manager
	guard   *collector.Guard
	source  collector.Fetcher // guard plus quote cache
	sweep   *collector.MemoryQuoteCache
	metrics *metrics.Registry
	redis   *redis.Client
}

func (d *deps) Close() {
	if d.redis != nil {
		d.redis.Close()
	}
	if d.rec != nil {
		d.rec.Close()
	}
}

func (a *app) openRecorder(ctx context.Context) (recorder.Recorder, error) {
	db := a.cfg.Database
	rec, err := recorder.Open(ctx, db.Driver, db.SQLitePath, db.URL, a.log)
	if err != nil {
		return nil, fmt.Errorf("open %s recorder: %w", db.Driver, err)
	}
	a.log.Info().Str("driver", db.Driver).Msg("recorder ready")
	return rec, nil
}

// upstream builds the raw provider selected in config.
func (a *app) upstream() collector.Fetcher {
	up := a.cfg.Upstream
	switch up.Provider {
	case config.ProviderRapidAPI:
		return collector.NewRapidAPIFetcher(up.RapidAPIBaseURL, up.RapidAPIHost, up.RapidAPIKey, up.Region, a.cfg.Proxy, up.Timeout)
	case config.ProviderSynthetic:
		a.log.Warn().Msg("using synthetic market data")
		return collector.NewSyntheticSource(1)
	}
	return collector.NewYahooFetcher(up.YahooBaseURL, a.cfg.Proxy, up.Timeout)
}

// build wires storage, quota, upstream protection and the quote cache.
func (a *app) build(ctx context.Context) (*deps, error) {
	d := &deps{metrics: metrics.NewRegistry()}

	rec, err := a.openRecorder(ctx)
	if err != nil {
		return nil, err
	}
	d.rec = rec

	qm, err := quota.NewManager(a.cfg.Quota.StateFile, a.cfg.Quota.DailyLimit, a.log)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("init quota: %w", err)
	}
	d.quota = qm
	d.metrics.SetQuotaRemaining(qm.State().Remaining())

	up := a.cfg.Upstream
	gcfg := collector.DefaultGuardConfig()
	gcfg.RequestsPerSecond = up.RequestsPerSecond
	gcfg.Burst = up.Burst
	gcfg.MaxRetries = up.MaxRetries
	gcfg.OnAttempt = d.metrics.ObserveUpstream
	d.guard = collector.NewGuard(a.upstream(), gcfg, qm, a.log)

	var cache collector.QuoteCache
	if addr := a.cfg.Cache.RedisAddr; addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
		})
		if err := d.redis.Ping(ctx).Err(); err != nil {
			a.log.Warn().Err(err).Str("addr", addr).Msg("redis unavailable, using in-memory quote cache")
			d.redis.Close()
			d.redis = nil
		} else {
			cache = collector.NewRedisQuoteCache(d.redis, a.cfg.Cache.KeyPrefix)
		}
	}
	if cache == nil {
		d.sweep = collector.NewMemoryQuoteCache()
		cache = d.sweep
	}
	cached := collector.NewCachedQuotes(d.guard, cache, a.cfg.Cache.QuoteTTL, a.log)
	cached.OnHit = d.metrics.CacheObserver("quote")
	d.source = cached

	a.log.Info().
		Str("provider", d.guard.Name()).
		Float64("rps", up.RequestsPerSecond).
		Int("daily_limit", a.cfg.Quota.DailyLimit).
		Bool("redis", d.redis != nil).
		Msg("upstream ready")
	return d, nil
}

func (a *app) newService(d *deps) (*predictor.Service, error) {
	engine, err := strategy.NewEngine(a.cfg.Model)
	if err != nil {
		return nil, err
	}
	p := a.cfg.Predictor
	return predictor.NewService(engine, d.rec, d.source, d.guard, d.metrics, predictor.Options{
		Workers:       p.Workers,
		PredictionTTL: p.PredictionTTL,
		MinHistory:    p.MinHistory,
		HistoryDays:   p.HistoryDays,
	}, a.log), nil
}

// symbolsOrConfig returns args when given, else the configured symbols.
func (a *app) symbolsOrConfig(args []string) []string {
	if len(args) > 0 {
		return config.NormalizeSymbols(args)
	}
	return a.cfg.Symbols
}
