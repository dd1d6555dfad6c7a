package impact

import (
	"fmt"
	"time"
)

// Report is the renderable failure report: every section a renderer needs,
// with no rendering concerns of its own.
type Report struct {
	Header     Header
	Summary    Summary
	Timeline   Timeline
	Details    []FailureDetail
	Categories []Category
	Impact     ImpactSection
	Actions    Actions
}

// Header carries report metadata.
type Header struct {
	SessionID   string
	GeneratedAt time.Time
	RunStarted  time.Time
	RunDuration time.Duration
}

// Summary carries the top-line statistics.
type Summary struct {
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	Severity       string
}

// FailureDetail is one per-failure entry with full error detail and its
// location in the hierarchy.
type FailureDetail struct {
	TaskID    string
	Title     string
	Phase     string // "Unknown" when absent
	Milestone string // "N/A" when absent
	Error     string
	ErrorCode string
	Timestamp time.Time
	Blocked   FailureImpact
}

// ImpactSection aggregates the blocked-work numbers.
type ImpactSection struct {
	BlockedTasks      int
	BlockedMilestones int
	BlockedPhases     int
	MaxCascadeDepth   int
	Severity          string
}

// Actions offers the operator per-task directives plus a single resume
// command.
type Actions struct {
	RetryDirectives []string
	SkipDirectives  []string
	ResumeCommand   string
}

// BuildReport turns an analysis into the full report structure. A run with
// zero failures yields a complete report with zero counts.
func BuildReport(a *Analysis, sessionID string) *Report {
	now := time.Now().UTC()
	r := &Report{
		Header: Header{
			SessionID:   sessionID,
			GeneratedAt: now,
			RunStarted:  a.Run.StartTime,
			RunDuration: now.Sub(a.Run.StartTime),
		},
		Summary: Summary{
			TotalTasks:     a.Run.TotalTasks,
			CompletedTasks: a.Run.CompletedTasks,
			FailedTasks:    len(a.Failures),
			Severity:       a.Severity,
		},
		Timeline:   a.Timeline,
		Categories: a.Categories,
		Impact: ImpactSection{
			BlockedTasks:      a.TotalBlockedTasks,
			BlockedMilestones: a.TotalBlockedMilestones,
			BlockedPhases:     a.TotalBlockedPhases,
			MaxCascadeDepth:   a.MaxCascadeDepth,
			Severity:          a.Severity,
		},
		Actions: Actions{
			ResumeCommand: fmt.Sprintf("foreman run --resume %s", sessionID),
		},
	}

	impactsByTask := make(map[string]FailureImpact, len(a.Impacts))
	for _, imp := range a.Impacts {
		impactsByTask[imp.TaskID] = imp
	}

	for _, f := range a.Timeline.Entries {
		phase := f.Phase
		if phase == "" {
			phase = "Unknown"
		}
		milestone := f.Milestone
		if milestone == "" {
			milestone = "N/A"
		}
		r.Details = append(r.Details, FailureDetail{
			TaskID:    f.TaskID,
			Title:     f.Title,
			Phase:     phase,
			Milestone: milestone,
			Error:     f.Error,
			ErrorCode: f.ErrorCode,
			Timestamp: f.Timestamp,
			Blocked:   impactsByTask[f.TaskID],
		})
		r.Actions.RetryDirectives = append(r.Actions.RetryDirectives,
			fmt.Sprintf("foreman retry %s", f.TaskID))
		r.Actions.SkipDirectives = append(r.Actions.SkipDirectives,
			fmt.Sprintf("foreman skip %s", f.TaskID))
	}

	return r
}
