package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// QuoteCache stores quotes for a bounded time. Get reports a miss with
// ok=false and a nil error.
type QuoteCache interface {
	Get(ctx context.Context, symbol string) (*model.Quote, bool, error)
	Set(ctx context.Context, q *model.Quote, ttl time.Duration) error
}

type memoryEntry struct {
	quote   model.Quote
	expires time.Time
}

// MemoryQuoteCache is an in-process QuoteCache used when no Redis address
// is configured.
type MemoryQuoteCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryQuoteCache() *MemoryQuoteCache {
	return &MemoryQuoteCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryQuoteCache) Get(_ context.Context, symbol string) (*model.Quote, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[symbol]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, symbol)
		return nil, false, nil
	}
	q := e.quote
	return &q, true, nil
}

func (c *MemoryQuoteCache) Set(_ context.Context, q *model.Quote, ttl time.Duration) error {
	if q == nil || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.entries[q.Symbol] = memoryEntry{quote: *q, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// DeleteExpired drops stale entries and returns how many were removed.
func (c *MemoryQuoteCache) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// RedisQuoteCache keeps JSON-encoded quotes under "<prefix>:quote:<SYMBOL>".
type RedisQuoteCache struct {
	client *redis.Client
	prefix string
}

func NewRedisQuoteCache(client *redis.Client, prefix string) *RedisQuoteCache {
	if prefix == "" {
		prefix = "predictor"
	}
	return &RedisQuoteCache{client: client, prefix: prefix}
}

func (c *RedisQuoteCache) key(symbol string) string {
	return fmt.Sprintf("%s:quote:%s", c.prefix, strings.ToUpper(symbol))
}

func (c *RedisQuoteCache) Get(ctx context.Context, symbol string) (*model.Quote, bool, error) {
	raw, err := c.client.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", symbol, err)
	}
	var q model.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, false, fmt.Errorf("decode cached quote %s: %w", symbol, err)
	}
	return &q, true, nil
}

func (c *RedisQuoteCache) Set(ctx context.Context, q *model.Quote, ttl time.Duration) error {
	if q == nil || ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote %s: %w", q.Symbol, err)
	}
	if err := c.client.Set(ctx, c.key(q.Symbol), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", q.Symbol, err)
	}
	return nil
}

// CachedQuotes serves quotes from a QuoteCache before asking the wrapped
// Fetcher. History requests pass straight through. Cache failures are logged
// and never fail the request.
type CachedQuotes struct {
	next  Fetcher
	cache QuoteCache
	ttl   time.Duration
	log   zerolog.Logger

	// OnHit, when set, is called with true for a cache hit and false for a miss.
	OnHit func(hit bool)
}

func NewCachedQuotes(next Fetcher, cache QuoteCache, ttl time.Duration, log zerolog.Logger) *CachedQuotes {
	return &CachedQuotes{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "quote_cache").Logger(),
	}
}

func (c *CachedQuotes) Name() string { return c.next.Name() }

func (c *CachedQuotes) PriceHistory(ctx context.Context, symbol string, maxDays int) (model.PriceSeries, error) {
	return c.next.PriceHistory(ctx, symbol, maxDays)
}

func (c *CachedQuotes) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	q, ok, err := c.cache.Get(ctx, symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache read failed")
	}
	if c.OnHit != nil {
		c.OnHit(ok)
	}
	if ok {
		return q, nil
	}

	q, err = c.next.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, q, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("quote cache write failed")
	}
	return q, nil
}
