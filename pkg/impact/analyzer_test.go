package impact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foreman/pkg/backlog"
	"foreman/pkg/scheduler"
)

// fanoutBacklog: S1 has two direct dependents (S2, S3) and one transitive
// dependent (S4 via S2). S5 is independent.
func fanoutBacklog() *backlog.Backlog {
	sub := func(n int, deps ...string) *backlog.Subtask {
		return &backlog.Subtask{
			ID:          subID(n),
			Title:       "step",
			Status:      backlog.StatusPlanned,
			StoryPoints: 3,
			Dependencies: deps,
		}
	}
	return &backlog.Backlog{
		Phases: []*backlog.Phase{{
			ID: "P1", Title: "Build", Status: backlog.StatusPlanned,
			Milestones: []*backlog.Milestone{{
				ID: "P1.M1", Title: "Core", Status: backlog.StatusPlanned,
				Tasks: []*backlog.Task{{
					ID: "P1.M1.T1", Title: "Work", Status: backlog.StatusPlanned,
					Subtasks: []*backlog.Subtask{
						sub(1),
						sub(2, subID(1)),
						sub(3, subID(1)),
						sub(4, subID(2)),
						sub(5),
					},
				}},
			}},
		}},
	}
}

func subID(n int) string {
	return "P1.M1.T1.S" + string(rune('0'+n))
}

func failureAt(taskID string, ts time.Time, code string) scheduler.TaskFailure {
	return scheduler.TaskFailure{
		ID:        "f-" + taskID,
		TaskID:    taskID,
		Title:     "step",
		Error:     "boom",
		ErrorCode: code,
		Timestamp: ts,
		Phase:     "Build",
		Milestone: "Core",
	}
}

func TestCascadeCounts(t *testing.T) {
	b := fanoutBacklog()
	start := time.Now().Add(-time.Minute)

	a := Analyze([]scheduler.TaskFailure{
		failureAt(subID(1), time.Now(), "EXECUTION"),
	}, b, RunContext{TotalTasks: 5, CompletedTasks: 1, StartTime: start})

	require.Len(t, a.Impacts, 1)
	imp := a.Impacts[0]

	// Two direct dependents plus one transitive dependent.
	assert.Len(t, imp.BlockedTasks, 3)
	assert.GreaterOrEqual(t, imp.CascadeDepth, 2)
	assert.Equal(t, 1, imp.BlockedMilestones)
	assert.Equal(t, 1, imp.BlockedPhases)

	assert.Equal(t, 3, a.TotalBlockedTasks)
	assert.Equal(t, 2, a.MaxCascadeDepth)
	assert.Equal(t, SeverityMedium, a.Severity)
}

func TestZeroFailures(t *testing.T) {
	a := Analyze(nil, fanoutBacklog(), RunContext{TotalTasks: 5, CompletedTasks: 5, StartTime: time.Now()})

	assert.Empty(t, a.Impacts)
	assert.Equal(t, 0, a.TotalBlockedTasks)
	assert.Equal(t, 0, a.MaxCascadeDepth)
	assert.Equal(t, SeverityNone, a.Severity)

	r := BuildReport(a, "001_abcdef123456")
	assert.Equal(t, 0, r.Summary.FailedTasks)
	assert.Empty(t, r.Details)
	assert.Empty(t, r.Actions.RetryDirectives)
	assert.Contains(t, r.Actions.ResumeCommand, "001_abcdef123456")
}

func TestTimelineOrderingAndSpan(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	failures := []scheduler.TaskFailure{
		failureAt(subID(5), base.Add(4*time.Minute), "TIMEOUT"),
		failureAt(subID(1), base, "EXECUTION"),
	}

	a := Analyze(failures, fanoutBacklog(), RunContext{TotalTasks: 5, StartTime: base})

	require.Len(t, a.Timeline.Entries, 2)
	assert.Equal(t, subID(1), a.Timeline.Entries[0].TaskID, "timeline must be chronological")
	assert.Equal(t, base, a.Timeline.FirstErrorAt)
	assert.Equal(t, base.Add(4*time.Minute), a.Timeline.LastErrorAt)
	assert.Equal(t, 4*time.Minute, a.Timeline.Span)
	assert.InDelta(t, 0.5, a.Timeline.PerMinute, 0.001)
}

func TestCategoryBreakdown(t *testing.T) {
	base := time.Now()
	failures := []scheduler.TaskFailure{
		failureAt(subID(1), base, "TIMEOUT"),
		failureAt(subID(2), base, "TIMEOUT"),
		failureAt(subID(3), base, "NETWORK"),
		failureAt(subID(4), base, ""),
	}

	a := Analyze(failures, fanoutBacklog(), RunContext{TotalTasks: 5, StartTime: base})

	require.Len(t, a.Categories, 3)
	assert.Equal(t, "TIMEOUT", a.Categories[0].Code)
	assert.Equal(t, 2, a.Categories[0].Count)
	assert.InDelta(t, 50.0, a.Categories[0].Percent, 0.001)

	// Empty codes are bucketed as UNKNOWN.
	codes := map[string]bool{}
	for _, c := range a.Categories {
		codes[c.Code] = true
	}
	assert.True(t, codes["UNKNOWN"])
}

func TestReportDefaultsForMissingContext(t *testing.T) {
	f := scheduler.TaskFailure{
		TaskID:    subID(1),
		Title:     "step",
		Error:     "boom",
		Timestamp: time.Now(),
		// Phase and Milestone deliberately empty.
	}
	a := Analyze([]scheduler.TaskFailure{f}, fanoutBacklog(), RunContext{TotalTasks: 5, StartTime: time.Now()})
	r := BuildReport(a, "001_abcdef123456")

	require.Len(t, r.Details, 1)
	assert.Equal(t, "Unknown", r.Details[0].Phase)
	assert.Equal(t, "N/A", r.Details[0].Milestone)
	assert.Len(t, r.Actions.RetryDirectives, 1)
	assert.Len(t, r.Actions.SkipDirectives, 1)
}

func TestSeverityBands(t *testing.T) {
	cases := []struct {
		blocked int
		want    string
	}{
		{0, SeverityNone},
		{1, SeverityLow},
		{2, SeverityLow},
		{3, SeverityMedium},
		{5, SeverityMedium},
		{6, SeverityHigh},
		{10, SeverityHigh},
		{11, SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, severityFor(tc.blocked), "blocked=%d", tc.blocked)
	}
}

func TestRenderZeroFailures(t *testing.T) {
	a := Analyze(nil, fanoutBacklog(), RunContext{TotalTasks: 5, CompletedTasks: 5, StartTime: time.Now()})
	out := BuildReport(a, "001_abcdef123456").Render()

	assert.Contains(t, out, "FAILURE IMPACT REPORT")
	assert.Contains(t, out, "Session:   001_abcdef123456")
	assert.Contains(t, out, "5 total, 5 completed, 0 failed (severity: none)")
	assert.Contains(t, out, "No failures recorded.")
	assert.NotContains(t, out, "Failures:")
}

func TestRenderFailureSections(t *testing.T) {
	b := fanoutBacklog()
	start := time.Now().Add(-time.Minute)
	a := Analyze([]scheduler.TaskFailure{
		failureAt(subID(1), start.Add(10*time.Second), "TIMEOUT"),
		failureAt(subID(5), start.Add(20*time.Second), "EXECUTION"),
	}, b, RunContext{TotalTasks: 5, CompletedTasks: 1, StartTime: start})
	out := BuildReport(a, "002_abcdef123456").Render()

	// S1 blocks its three dependents; independent S5 gets no blocks line.
	assert.Contains(t, out, "[TIMEOUT] "+subID(1))
	assert.Contains(t, out, "blocks: 3 tasks (cascade depth 2)")
	assert.Contains(t, out, "[EXECUTION] "+subID(5))
	assert.Contains(t, out, "phase: Build / Core")
	assert.Contains(t, out, "Error categories:")
	assert.Contains(t, out, "Impact: 3 blocked tasks across 1 milestones, 1 phases")
	assert.Contains(t, out, "foreman retry "+subID(1))
	assert.Contains(t, out, "foreman skip "+subID(5))
	assert.Contains(t, out, "foreman run --resume 002_abcdef123456")
}
