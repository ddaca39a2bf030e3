package collector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adudulescu/stock-predictor/internal/model"
)

func TestMemoryQuoteCacheExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryQuoteCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &model.Quote{Symbol: "AAPL", CurrentPrice: 100}, time.Hour))
	require.NoError(t, c.Set(ctx, &model.Quote{Symbol: "MSFT", CurrentPrice: 300}, 0), "zero ttl is not stored")

	q, ok, err := c.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, q.CurrentPrice)

	_, ok, _ = c.Get(ctx, "MSFT")
	assert.False(t, ok)

	now = now.Add(time.Hour)
	_, ok, _ = c.Get(ctx, "AAPL")
	assert.False(t, ok, "entry expires at its ttl")

	require.NoError(t, c.Set(ctx, &model.Quote{Symbol: "GOOGL"}, time.Minute))
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, c.DeleteExpired())
}

func TestRedisQuoteCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisQuoteCache(db, "test")
	ctx := context.Background()

	q := &model.Quote{Symbol: "AAPL", CurrentPrice: 100, TargetMeanPrice: model.Float(120)}
	raw, err := json.Marshal(q)
	require.NoError(t, err)

	mock.ExpectSet("test:quote:AAPL", raw, time.Hour).SetVal("OK")
	mock.ExpectGet("test:quote:AAPL").SetVal(string(raw))
	mock.ExpectGet("test:quote:MSFT").RedisNil()
	mock.ExpectGet("test:quote:GOOGL").SetErr(errors.New("connection refused"))

	require.NoError(t, c.Set(ctx, q, time.Hour))

	got, ok, err := c.Get(ctx, "aapl")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, got.CurrentPrice)
	assert.True(t, got.HasTarget())

	_, ok, err = c.Get(ctx, "MSFT")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Get(ctx, "GOOGL")
	assert.Error(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (*model.Quote, bool, error) {
	return nil, false, errors.New("down")
}

func (failingCache) Set(context.Context, *model.Quote, time.Duration) error {
	return errors.New("down")
}

func TestCachedQuotes(t *testing.T) {
	f := &scriptedFetcher{}
	var hits, misses int
	c := NewCachedQuotes(f, NewMemoryQuoteCache(), time.Hour, zerolog.Nop())
	c.OnHit = func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := c.Quote(ctx, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, "AAPL", q.Symbol)
	}
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 2, hits)
	assert.Equal(t, 1, misses)

	_, err := c.PriceHistory(ctx, "AAPL", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls, "history is never cached")
}

func TestCachedQuotesSurvivesCacheFailure(t *testing.T) {
	f := &scriptedFetcher{}
	c := NewCachedQuotes(f, failingCache{}, time.Hour, zerolog.Nop())

	q, err := c.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.0, q.CurrentPrice)
}
