// Package report turns the harness's Prometheus exposition back into a
// summary for the command line.
package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// Metric family names read by Summarize.
const (
	familyUptime   = "crashloop_uptime_seconds"
	familyAttempts = "crashloop_invoke_attempts_total"
	familyWaits    = "crashloop_invoke_wait_seconds_total"
	familyToggles  = "crashloop_crash_toggles_total"
	familyFlag     = "crashloop_crash_flag"
	familyHTTP     = "crashloop_http_requests_total"
)

// Parse decodes a text exposition.
func Parse(r io.Reader) (map[string]*dto.MetricFamily, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics: %w", err)
	}
	return families, nil
}

// Fetch downloads and parses the /metrics endpoint of a running server.
func Fetch(ctx context.Context, client *http.Client, serverURL, apiKey string) (map[string]*dto.MetricFamily, error) {
	url := strings.TrimRight(serverURL, "/") + "/metrics"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return Parse(resp.Body)
}

// Summarize folds the harness families into a Summary. Missing families
// leave their fields zero.
func Summarize(families map[string]*dto.MetricFamily) *Summary {
	s := &Summary{Toggles: make(map[string]float64)}

	s.UptimeSeconds = firstValue(families[familyUptime])
	s.CrashFlag = firstValue(families[familyFlag])

	targets := make(map[string]*TargetStats)
	stats := func(name string) *TargetStats {
		ts, ok := targets[name]
		if !ok {
			ts = &TargetStats{Target: name}
			targets[name] = ts
		}
		return ts
	}

	if mf := families[familyAttempts]; mf != nil {
		for _, m := range mf.GetMetric() {
			ts := stats(label(m, "target"))
			v := value(m)
			switch label(m, "outcome") {
			case "success":
				ts.Successes += v
			case "function_error":
				ts.FunctionErrors += v
			case "transport_error":
				ts.TransportErrors += v
			}
		}
	}
	if mf := families[familyWaits]; mf != nil {
		for _, m := range mf.GetMetric() {
			stats(label(m, "target")).WaitSeconds += value(m)
		}
	}
	if mf := families[familyToggles]; mf != nil {
		for _, m := range mf.GetMetric() {
			s.Toggles[label(m, "result")] += value(m)
		}
	}
	if mf := families[familyHTTP]; mf != nil {
		for _, m := range mf.GetMetric() {
			s.HTTPRequests += value(m)
		}
	}

	for _, ts := range targets {
		s.Targets = append(s.Targets, *ts)
	}
	sort.Slice(s.Targets, func(i, j int) bool { return s.Targets[i].Target < s.Targets[j].Target })
	return s
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}

func firstValue(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0
	}
	return value(mf.GetMetric()[0])
}
