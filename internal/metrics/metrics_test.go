package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounters(t *testing.T) {
	r := NewRegistry()
	r.ObservePrediction(OutcomeSucceeded)
	r.ObservePrediction(OutcomeSucceeded)
	r.ObservePrediction(OutcomeSkipped)
	r.ObserveUpstream("rate_limited")
	r.CacheObserver("quote")(true)
	r.CacheObserver("quote")(false)
	r.ObserveBatch(2*time.Second, 3, 1)
	r.SetQuotaRemaining(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Predictions.WithLabelValues(OutcomeSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Predictions.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.UpstreamRequests.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheHits.WithLabelValues("quote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheMisses.WithLabelValues("quote")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Opportunities))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PersistFailures))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.QuotaRemaining))
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.ObservePrediction(OutcomeFailed)
		r.ObserveUpstream("success")
		r.ObserveBatch(time.Second, 1, 0)
		r.CacheObserver("prediction")(true)
		r.SetQuotaRemaining(1)
	})
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ObservePrediction(OutcomeCached)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `predictor_predictions_total{outcome="cached"} 1`))
	assert.Contains(t, body, "predictor_batch_duration_seconds")
}
