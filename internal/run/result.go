package run

import (
	"fmt"
	"strings"
	"time"

	"greetbot/internal/types"
)

// Status is the coarse outcome reported to schedulers and HTTP callers.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the structured outcome of one run.
type Result struct {
	RunID    string
	State    State
	Date     types.Date
	Reports  map[types.OccasionKind]types.DispatchReport
	Err      error
	Duration time.Duration
}

// Status is success when the run reached Done. Individual send failures do
// not make a run fail.
func (r Result) Status() Status {
	if r.State == StateDone && r.Err == nil {
		return StatusSuccess
	}
	return StatusFailure
}

// Totals sums the reports of every completed cycle.
func (r Result) Totals() types.DispatchReport {
	var total types.DispatchReport
	for _, kind := range types.AllOccasionKinds {
		if rep, ok := r.Reports[kind]; ok {
			total.Merge(rep)
		}
	}
	return total
}

// Summary is a one-line human description, used as the HTTP/Lambda message.
func (r Result) Summary() string {
	if r.Status() == StatusFailure {
		if r.Err != nil {
			return fmt.Sprintf("greeting run for %s failed: %v", r.Date, r.Err)
		}
		return fmt.Sprintf("greeting run for %s failed", r.Date)
	}

	parts := make([]string, 0, len(types.AllOccasionKinds))
	for _, kind := range types.AllOccasionKinds {
		rep := r.Reports[kind]
		parts = append(parts, fmt.Sprintf("%s %d/%d/%d", kind, len(rep.Sent), len(rep.Skipped), len(rep.Failed)))
	}
	return fmt.Sprintf("greeting run for %s completed (sent/skipped/failed: %s)", r.Date, strings.Join(parts, ", "))
}
