package report

// TargetStats summarizes the invocations of one function target.
type TargetStats struct {
	Target          string  `json:"target"`
	Successes       float64 `json:"successes"`
	FunctionErrors  float64 `json:"function_errors"`
	TransportErrors float64 `json:"transport_errors"`
	WaitSeconds     float64 `json:"wait_seconds"`
}

// Attempts is the total number of invocation attempts.
func (s TargetStats) Attempts() float64 {
	return s.Successes + s.FunctionErrors + s.TransportErrors
}

// CrashRate is the share of attempts that failed, in [0, 1].
func (s TargetStats) CrashRate() float64 {
	total := s.Attempts()
	if total == 0 {
		return 0
	}
	return (s.FunctionErrors + s.TransportErrors) / total
}

// Summary is what `crashloop stats` prints.
type Summary struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	CrashFlag     float64            `json:"crash_flag"`
	Targets       []TargetStats      `json:"targets"`
	Toggles       map[string]float64 `json:"toggles"`
	HTTPRequests  float64            `json:"http_requests"`
}
