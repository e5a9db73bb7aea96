package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"lbsim/internal/core"
)

// FormatText writes a snapshot in human-readable format.
func FormatText(w io.Writer, s Snapshot, thresholds *ThresholdResults) {
	total := s.Total()

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "lbsim - Worker Statistics")
	fmt.Fprintln(w, "=========================")
	fmt.Fprintln(w, "")
	if total.Total == 0 {
		fmt.Fprintln(w, "No requests recorded")
	} else {
		fmt.Fprintf(w, "Total Requests: %s\n", formatNumber(total.Total))
		fmt.Fprintf(w, "Success Rate:   %.1f%% (%s / %s)\n",
			total.SuccessRate(), formatNumber(total.Success), formatNumber(total.Total))
		fmt.Fprintf(w, "Avg Request:    %s\n", FormatDuration(secondsToDuration(total.AvgRequestTime)))
	}
	if s.SinkErrors > 0 {
		fmt.Fprintf(w, "Sink Errors:    %s\n", formatNumber(s.SinkErrors))
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Worker:")
	for _, name := range s.Workers {
		ws := s.Stats[name]
		fmt.Fprintf(w, "  %-12s %s reqs   ok=%s  failed=%s  avg=%.4fs\n",
			name, formatNumber(ws.Total), formatNumber(ws.Success), formatNumber(ws.Failed), ws.AvgRequestTime)
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes the snapshot as the stats endpoint payload. When
// thresholds are given they are nested under "thresholds" next to a
// "stats" key instead.
func FormatJSON(w io.Writer, s Snapshot, thresholds *ThresholdResults) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if thresholds == nil {
		return encoder.Encode(s)
	}
	return encoder.Encode(struct {
		Stats      Snapshot          `json:"stats"`
		Thresholds *ThresholdResults `json:"thresholds"`
	}{s, thresholds})
}

// WorkerLoads writes one "<name> Load: <n>" line per worker.
func WorkerLoads(w io.Writer, s Snapshot) {
	for _, name := range s.Workers {
		if name == core.TotalKey {
			continue
		}
		fmt.Fprintf(w, "%s Load: %d\n", name, s.Stats[name].Total)
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
