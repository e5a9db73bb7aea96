package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for a load run.
type Thresholds struct {
	FailureRate    string        `yaml:"failureRate"`    // e.g. "15%"
	AvgRequestTime time.Duration `yaml:"avgRequestTime"` // global mean delay
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate reports a malformed failure rate.
func (t *Thresholds) Validate() error {
	if t == nil || t.FailureRate == "" {
		return nil
	}
	_, err := parsePercentage(t.FailureRate)
	return err
}

// Check evaluates all thresholds against the global aggregate of s.
func (t *Thresholds) Check(s Snapshot) *ThresholdResults {
	if t == nil {
		return &ThresholdResults{Passed: true, Results: nil}
	}

	results := &ThresholdResults{
		Passed:  true,
		Results: make([]ThresholdResult, 0),
	}
	total := s.Total()

	if t.FailureRate != "" {
		results.checkFailureRate(t.FailureRate, total)
	}
	if t.AvgRequestTime > 0 {
		actual := secondsToDuration(total.AvgRequestTime)
		results.add(ThresholdResult{
			Name:      "avg_request_time",
			Passed:    actual < t.AvgRequestTime,
			Threshold: FormatDuration(t.AvgRequestTime),
			Actual:    FormatDuration(actual),
		})
	}

	return results
}

func (r *ThresholdResults) add(result ThresholdResult) {
	if !result.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, result)
}

func (r *ThresholdResults) checkFailureRate(rate string, total WorkerStats) {
	thresholdRate, err := parsePercentage(rate)
	if err != nil {
		return
	}

	actualRate := 0.0
	if recorded := total.Success + total.Failed; recorded > 0 {
		actualRate = float64(total.Failed) / float64(recorded) * 100
	}

	r.add(ThresholdResult{
		Name:      "failure_rate",
		Passed:    actualRate < thresholdRate,
		Threshold: rate,
		Actual:    fmt.Sprintf("%.2f%%", actualRate),
	})
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	s = strings.TrimSuffix(s, "%")
	return strconv.ParseFloat(s, 64)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
