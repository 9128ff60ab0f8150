package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesSolverMetrics(t *testing.T) {
	RecordKeyRotation()
	RecordKeyExhausted()
	SetKeysAvailable(2)
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordHTTPAttempt("GET", "ok")
	RecordBridgeTask(10*time.Millisecond, true)
	RecordProviderCall("gemini", "quota_exceeded", time.Second)
	RecordSubmission(true)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, "hybridsolver_key_rotations_total")
	assert.Contains(t, out, "hybridsolver_keys_available 2")
	assert.Contains(t, out, `hybridsolver_cache_requests_total{result="hit"}`)
	assert.Contains(t, out, `hybridsolver_provider_calls_total{kind="quota_exceeded",provider="gemini"}`)
	assert.Contains(t, out, `hybridsolver_answer_submissions_total{outcome="correct"}`)
}

func TestEnsureRegisteredIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		EnsureRegistered()
		EnsureRegistered()
	})
}
