package model

import (
	"sort"
	"time"
)

// HourlyUsage is the upstream traffic recorded within one clock hour.
type HourlyUsage struct {
	Hour time.Time `json:"hour"`
	UsageStats
}

// UsageReport summarises usage logs over a trailing window against the
// daily request limit.
type UsageReport struct {
	Since       time.Time     `json:"since"`
	Runs        int           `json:"runs"`
	Totals      UsageStats    `json:"totals"`
	DailyLimit  int           `json:"dailyLimit"`
	Remaining   int           `json:"remaining"`
	PercentUsed float64       `json:"percentUsed"`
	Hourly      []HourlyUsage `json:"hourly"`
	Breaker     string        `json:"breaker,omitempty"` // upstream circuit state, when known
}

// SummarizeUsage folds logs at or after since into a report. Hourly buckets
// are in UTC, oldest first, and only hours with traffic are listed.
func SummarizeUsage(logs []UsageLog, dailyLimit int, since time.Time) UsageReport {
	r := UsageReport{Since: since, DailyLimit: dailyLimit}
	buckets := make(map[time.Time]UsageStats)
	for _, l := range logs {
		if l.Timestamp.Before(since) {
			continue
		}
		r.Runs++
		r.Totals = r.Totals.Add(l.UsageStats)
		h := l.Timestamp.UTC().Truncate(time.Hour)
		buckets[h] = buckets[h].Add(l.UsageStats)
	}
	for h, u := range buckets {
		r.Hourly = append(r.Hourly, HourlyUsage{Hour: h, UsageStats: u})
	}
	sort.Slice(r.Hourly, func(i, j int) bool { return r.Hourly[i].Hour.Before(r.Hourly[j].Hour) })

	if dailyLimit > 0 {
		r.Remaining = dailyLimit - int(r.Totals.Calls)
		if r.Remaining < 0 {
			r.Remaining = 0
		}
		r.PercentUsed = float64(r.Totals.Calls) / float64(dailyLimit) * 100
	}
	return r
}
