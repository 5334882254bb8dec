package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordAttempt("fn", "function_error")
	m.RecordAttempt("fn", "function_error")
	m.RecordAttempt("fn", "success")
	m.RecordWait("fn", 5*time.Second)
	m.RecordWait("fn", 5*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("fn", "function_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("fn", "success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.waitSeconds.WithLabelValues("fn")))
}

func TestRecordToggle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordToggle("ok", "1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.crashFlag))

	m.RecordToggle("not_found", "")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.crashFlag), "failed toggles leave the gauge alone")

	m.RecordToggle("ok", "0")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.crashFlag))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.toggles.WithLabelValues("ok")))
}

func TestServeHTTP(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordAttempt("fn", "success")
	m.RecordHTTP(http.MethodPost, "/toggleCrash", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "crashloop_uptime_seconds")
	assert.Contains(t, body, `crashloop_invoke_attempts_total{outcome="success",target="fn"} 1`)
	assert.Contains(t, body, `crashloop_http_requests_total{method="POST",route="/toggleCrash",status="200"} 1`)
}
