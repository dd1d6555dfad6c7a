package impact

import (
	"fmt"
	"strings"
	"time"
)

// timeRounding keeps rendered durations readable.
const timeRounding = time.Millisecond

// Render formats the report as operator-facing text.
func (r *Report) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "FAILURE IMPACT REPORT\n")
	fmt.Fprintf(&b, "Session:   %s\n", r.Header.SessionID)
	fmt.Fprintf(&b, "Generated: %s\n", r.Header.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Duration:  %s\n\n", r.Header.RunDuration.Round(timeRounding))

	fmt.Fprintf(&b, "Summary: %d total, %d completed, %d failed (severity: %s)\n\n",
		r.Summary.TotalTasks, r.Summary.CompletedTasks, r.Summary.FailedTasks, r.Summary.Severity)

	if len(r.Details) == 0 {
		b.WriteString("No failures recorded.\n")
		return b.String()
	}

	b.WriteString("Failures:\n")
	for _, d := range r.Details {
		fmt.Fprintf(&b, "  [%s] %s — %s\n", d.ErrorCode, d.TaskID, d.Title)
		fmt.Fprintf(&b, "    phase: %s / %s\n", d.Phase, d.Milestone)
		fmt.Fprintf(&b, "    error: %s\n", d.Error)
		if len(d.Blocked.BlockedTasks) > 0 {
			fmt.Fprintf(&b, "    blocks: %d tasks (cascade depth %d)\n",
				len(d.Blocked.BlockedTasks), d.Blocked.CascadeDepth)
		}
	}

	if len(r.Categories) > 0 {
		b.WriteString("\nError categories:\n")
		for _, c := range r.Categories {
			fmt.Fprintf(&b, "  %-12s %3d (%.0f%%)\n", c.Code, c.Count, c.Percent)
		}
	}

	fmt.Fprintf(&b, "\nImpact: %d blocked tasks across %d milestones, %d phases\n",
		r.Impact.BlockedTasks, r.Impact.BlockedMilestones, r.Impact.BlockedPhases)

	b.WriteString("\nSuggested actions:\n")
	for _, a := range r.Actions.RetryDirectives {
		fmt.Fprintf(&b, "  %s\n", a)
	}
	for _, a := range r.Actions.SkipDirectives {
		fmt.Fprintf(&b, "  %s\n", a)
	}
	fmt.Fprintf(&b, "  %s\n", r.Actions.ResumeCommand)

	return b.String()
}
