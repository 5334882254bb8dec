// Package metrics exposes harness counters in the Prometheus text format.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "crashloop"

// Metrics holds every harness collector. It implements invoke.Recorder and
// crash.Recorder.
type Metrics struct {
	gatherer  prometheus.Gatherer
	startTime time.Time

	attempts     *prometheus.CounterVec
	waitSeconds  *prometheus.CounterVec
	toggles      *prometheus.CounterVec
	crashFlag    prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Passing a *prometheus.Registry keeps
// tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer:  reg,
		startTime: time.Now(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoke_attempts_total",
			Help:      "Invocation attempts by target and outcome",
		}, []string{"target", "outcome"}),
		waitSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoke_wait_seconds_total",
			Help:      "Time spent waiting between attempts",
		}, []string{"target"}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crash_toggles_total",
			Help:      "Crash flag toggles by result",
		}, []string{"result"}),
		crashFlag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "crash_flag",
			Help:      "Last crash flag value written by this process (1 = crashing)",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(m.attempts, m.waitSeconds, m.toggles, m.crashFlag, m.httpRequests, m.httpDuration)
	return m
}

// RecordAttempt counts one invocation attempt.
func (m *Metrics) RecordAttempt(target, outcome string) {
	m.attempts.WithLabelValues(target, outcome).Inc()
}

// RecordWait adds d to the waited total for target.
func (m *Metrics) RecordWait(target string, d time.Duration) {
	m.waitSeconds.WithLabelValues(target).Add(d.Seconds())
}

// RecordToggle counts a toggle and, on success, tracks the new flag value.
func (m *Metrics) RecordToggle(result, value string) {
	m.toggles.WithLabelValues(result).Inc()
	if result != "ok" {
		return
	}
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		m.crashFlag.Set(v)
	}
}

// RecordHTTP counts a served request.
func (m *Metrics) RecordHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ServeHTTP writes the uptime gauge followed by every gathered family.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP crashloop_uptime_seconds Time since the harness started\n")
	fmt.Fprintf(w, "# TYPE crashloop_uptime_seconds gauge\n")
	fmt.Fprintf(w, "crashloop_uptime_seconds %d\n", int64(time.Since(m.startTime).Seconds()))

	families, err := m.gatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering metrics: %v\n", err)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
	w.Write(buf.Bytes())
}
