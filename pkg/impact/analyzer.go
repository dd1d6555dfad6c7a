// Package impact computes the downstream consequences of task failures: which
// work is transitively blocked, how failures cluster over time, and how
// severe the overall damage is. Its output is structured data for the failure
// report.
package impact

import (
	"sort"
	"time"

	"foreman/pkg/backlog"
	"foreman/pkg/scheduler"
)

// Severity tiers derived from the total blocked-task count.
const (
	SeverityNone     = "none"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// RunContext carries run-level numbers into the analysis.
type RunContext struct {
	TotalTasks     int
	CompletedTasks int
	StartTime      time.Time
}

// Timeline summarizes when failures occurred.
type Timeline struct {
	Entries      []scheduler.TaskFailure // chronological
	FirstErrorAt time.Time
	LastErrorAt  time.Time
	Span         time.Duration
	PerMinute    float64
}

// Category is one error-kind bucket with its share of all failures.
type Category struct {
	Code    string
	Count   int
	Percent float64
}

// FailureImpact is the blocked-work cascade for one failed subtask.
type FailureImpact struct {
	TaskID            string
	BlockedTasks      []string // transitive dependents, BFS order
	BlockedMilestones int
	BlockedPhases     int
	CascadeDepth      int // longest reverse-dependency chain from this failure
}

// Analysis is the full computed result.
type Analysis struct {
	Run        RunContext
	Failures   []scheduler.TaskFailure
	Timeline   Timeline
	Categories []Category
	Impacts    []FailureImpact

	// Union across all failures.
	TotalBlockedTasks      int
	TotalBlockedMilestones int
	TotalBlockedPhases     int
	MaxCascadeDepth        int
	Severity               string
}

// Analyze computes the impact of the recorded failures against the backlog's
// dependency graph. Zero failures produce a well-formed analysis with zero
// counts, never an error.
func Analyze(failures []scheduler.TaskFailure, b *backlog.Backlog, run RunContext) *Analysis {
	a := &Analysis{
		Run:      run,
		Failures: failures,
		Severity: SeverityNone,
	}

	a.Timeline = buildTimeline(failures)
	a.Categories = buildCategories(failures)

	dependents := reverseDependencies(b)

	blockedUnion := make(map[string]bool)
	for _, f := range failures {
		imp := cascade(f.TaskID, dependents, b)
		a.Impacts = append(a.Impacts, imp)
		if imp.CascadeDepth > a.MaxCascadeDepth {
			a.MaxCascadeDepth = imp.CascadeDepth
		}
		for _, id := range imp.BlockedTasks {
			blockedUnion[id] = true
		}
	}

	a.TotalBlockedTasks = len(blockedUnion)
	a.TotalBlockedMilestones, a.TotalBlockedPhases = containerCounts(blockedUnion, b)
	a.Severity = severityFor(a.TotalBlockedTasks)

	return a
}

func buildTimeline(failures []scheduler.TaskFailure) Timeline {
	entries := make([]scheduler.TaskFailure, len(failures))
	copy(entries, failures)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	tl := Timeline{Entries: entries}
	if len(entries) == 0 {
		return tl
	}

	tl.FirstErrorAt = entries[0].Timestamp
	tl.LastErrorAt = entries[len(entries)-1].Timestamp
	tl.Span = tl.LastErrorAt.Sub(tl.FirstErrorAt)
	if minutes := tl.Span.Minutes(); minutes > 0 {
		tl.PerMinute = float64(len(entries)) / minutes
	} else {
		tl.PerMinute = float64(len(entries))
	}
	return tl
}

func buildCategories(failures []scheduler.TaskFailure) []Category {
	counts := make(map[string]int)
	for _, f := range failures {
		code := f.ErrorCode
		if code == "" {
			code = "UNKNOWN"
		}
		counts[code]++
	}

	categories := make([]Category, 0, len(counts))
	for code, count := range counts {
		categories = append(categories, Category{
			Code:    code,
			Count:   count,
			Percent: 100 * float64(count) / float64(len(failures)),
		})
	}
	// Largest bucket first, code as tie-break for stable output.
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Count != categories[j].Count {
			return categories[i].Count > categories[j].Count
		}
		return categories[i].Code < categories[j].Code
	})
	return categories
}

// reverseDependencies inverts the subtask dependency edges.
func reverseDependencies(b *backlog.Backlog) map[string][]string {
	dependents := make(map[string][]string)
	for _, sub := range b.Subtasks() {
		for _, dep := range sub.Dependencies {
			dependents[dep] = append(dependents[dep], sub.ID)
		}
	}
	return dependents
}

// cascade runs a breadth-first walk over reverse dependencies from the failed
// task, collecting every transitively blocked subtask and the longest chain.
func cascade(taskID string, dependents map[string][]string, b *backlog.Backlog) FailureImpact {
	imp := FailureImpact{TaskID: taskID}

	visited := map[string]bool{taskID: true}
	type node struct {
		id    string
		depth int
	}
	queue := []node{{taskID, 0}}

	blocked := make(map[string]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range dependents[cur.id] {
			if visited[next] {
				continue
			}
			visited[next] = true
			blocked[next] = true
			imp.BlockedTasks = append(imp.BlockedTasks, next)
			if cur.depth+1 > imp.CascadeDepth {
				imp.CascadeDepth = cur.depth + 1
			}
			queue = append(queue, node{next, cur.depth + 1})
		}
	}

	imp.BlockedMilestones, imp.BlockedPhases = containerCounts(blocked, b)
	return imp
}

// containerCounts maps a set of blocked subtask IDs to how many distinct
// milestones and phases they touch.
func containerCounts(blocked map[string]bool, b *backlog.Backlog) (milestones, phases int) {
	msSeen := make(map[string]bool)
	phSeen := make(map[string]bool)
	for _, p := range b.Phases {
		for _, m := range p.Milestones {
			for _, t := range m.Tasks {
				for _, s := range t.Subtasks {
					if blocked[s.ID] {
						msSeen[m.ID] = true
						phSeen[p.ID] = true
					}
				}
			}
		}
	}
	return len(msSeen), len(phSeen)
}

func severityFor(blockedTasks int) string {
	switch {
	case blockedTasks == 0:
		return SeverityNone
	case blockedTasks <= 2:
		return SeverityLow
	case blockedTasks <= 5:
		return SeverityMedium
	case blockedTasks <= 10:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}
