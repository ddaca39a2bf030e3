package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayUsesUTCDate(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 08:30 on the 2nd in Tokyo is still the 1st in UTC
	local := time.Date(2024, 6, 2, 8, 30, 0, 0, tokyo)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Day(local))

	rec := NewRecord(samplePrediction("AAPL", 70), local, 30, "v2.0")
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), rec.TargetDate)
}
