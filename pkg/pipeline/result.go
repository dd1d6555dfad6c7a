package pipeline

import (
	"time"

	"foreman/pkg/agent"
	"foreman/pkg/backlog"
	"foreman/pkg/scheduler"
)

// Result summarizes a completed pipeline run. Task-level failures are data
// here, not errors: Err carries only fatal session or environment failures.
type Result struct {
	RunID     string
	SessionID string

	Success        bool
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	Duration       time.Duration

	ShutdownInterrupted bool
	ShutdownReason      string

	FinalState     State
	PhaseSummaries []backlog.PhaseSummary

	// Backlog is the final document state, for downstream reporting.
	Backlog *backlog.Backlog

	// DefectsFound holds defects still open after verification: either
	// accepted minor defects or majors left when the fix budget ran out.
	DefectsFound []agent.Defect

	// Failures carries the scheduler's per-task failure records for
	// downstream impact analysis.
	Failures []scheduler.TaskFailure

	Err error
}
