package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeUsage(t *testing.T) {
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)
	logs := []UsageLog{
		{RunID: "old", Timestamp: since.Add(-time.Minute), UsageStats: UsageStats{Calls: 99}},
		{RunID: "a", Timestamp: now.Add(-3*time.Hour + 5*time.Minute), UsageStats: UsageStats{Calls: 10, Succeeded: 9, Failed: 1}},
		{RunID: "b", Timestamp: now.Add(-3*time.Hour + 40*time.Minute), UsageStats: UsageStats{Calls: 5, Succeeded: 3, Failed: 2, RateLimited: 2}},
		{RunID: "c", Timestamp: now.Add(-time.Hour), UsageStats: UsageStats{Calls: 35, Succeeded: 35}},
	}

	r := SummarizeUsage(logs, 500, since)
	assert.Equal(t, 3, r.Runs)
	assert.Equal(t, UsageStats{Calls: 50, Succeeded: 47, Failed: 3, RateLimited: 2}, r.Totals)
	assert.Equal(t, 450, r.Remaining)
	assert.InDelta(t, 10.0, r.PercentUsed, 1e-9)
	require.Len(t, r.Hourly, 2)
	assert.Equal(t, time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), r.Hourly[0].Hour)
	assert.Equal(t, int64(15), r.Hourly[0].Calls)
	assert.Equal(t, int64(35), r.Hourly[1].Calls)
}

func TestSummarizeUsage_OverLimit(t *testing.T) {
	r := SummarizeUsage([]UsageLog{{Timestamp: time.Now(), UsageStats: UsageStats{Calls: 600}}}, 500, time.Now().Add(-time.Hour))
	assert.Equal(t, 0, r.Remaining)
	assert.InDelta(t, 120.0, r.PercentUsed, 1e-9)

	r = SummarizeUsage(nil, 0, time.Now())
	assert.Equal(t, 0, r.Remaining)
	assert.Zero(t, r.PercentUsed)
}
