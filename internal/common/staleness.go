// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"time"
)

// StalenessResult contains the result of a staleness check.
type StalenessResult struct {
	// IsStale indicates the job has been running longer than the
	// operational threshold and its executor is suspect.
	IsStale bool
	// RunningFor is how long the job has been in the running state.
	RunningFor time.Duration
	// Reason provides a human-readable explanation for the decision.
	Reason string
}

// CheckJobStaleness determines whether a running job should be treated as
// stalled. A crash between a persisted running transition and a terminal
// write leaves the record in running forever; callers use this check to
// surface such jobs instead of trusting the state blindly.
//
// startedAt is the persisted running transition time, now the current time,
// threshold the operational staleness threshold.
func CheckJobStaleness(startedAt time.Time, now time.Time, threshold time.Duration) StalenessResult {
	if startedAt.IsZero() {
		return StalenessResult{
			IsStale: false,
			Reason:  "job has not started",
		}
	}

	runningFor := now.UTC().Sub(startedAt.UTC())
	if runningFor < 0 {
		runningFor = 0
	}

	if runningFor > threshold {
		return StalenessResult{
			IsStale:    true,
			RunningFor: runningFor,
			Reason: fmt.Sprintf("running for %s, exceeds staleness threshold %s",
				runningFor.Round(time.Second), threshold),
		}
	}

	return StalenessResult{
		IsStale:    false,
		RunningFor: runningFor,
		Reason: fmt.Sprintf("running for %s, within staleness threshold %s",
			runningFor.Round(time.Second), threshold),
	}
}
