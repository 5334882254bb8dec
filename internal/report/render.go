package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Render prints s as two tables: one row per target, then harness totals.
func Render(w io.Writer, s *Summary) {
	table := tablewriter.NewWriter(w)
	table.Header("Target", "Attempts", "Success", "Function Err", "Transport Err", "Crash Rate", "Waited")
	for _, ts := range s.Targets {
		table.Append(
			ts.Target,
			fmt.Sprintf("%.0f", ts.Attempts()),
			fmt.Sprintf("%.0f", ts.Successes),
			fmt.Sprintf("%.0f", ts.FunctionErrors),
			fmt.Sprintf("%.0f", ts.TransportErrors),
			fmt.Sprintf("%.1f%%", ts.CrashRate()*100),
			(time.Duration(ts.WaitSeconds * float64(time.Second))).String(),
		)
	}
	table.Render()

	fmt.Fprintln(w)

	totals := tablewriter.NewWriter(w)
	totals.Header("Property", "Value")
	totals.Append([]string{"Uptime", (time.Duration(s.UptimeSeconds) * time.Second).String()})
	totals.Append([]string{"Crash flag", fmt.Sprintf("%.0f", s.CrashFlag)})
	totals.Append([]string{"HTTP requests", fmt.Sprintf("%.0f", s.HTTPRequests)})

	results := make([]string, 0, len(s.Toggles))
	for r := range s.Toggles {
		results = append(results, r)
	}
	sort.Strings(results)
	for _, r := range results {
		totals.Append([]string{"Toggles (" + r + ")", fmt.Sprintf("%.0f", s.Toggles[r])})
	}
	totals.Render()
}
