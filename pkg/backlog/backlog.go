// Package backlog defines the hierarchical work document driving the pipeline.
// A backlog is a tree of phases, milestones, tasks, and subtasks; subtasks are
// the only executable items and carry dependency edges to other subtasks.
package backlog

import (
	"time"
)

// Status represents the lifecycle state of a backlog item.
type Status string

const (
	StatusPlanned      Status = "planned"
	StatusResearching  Status = "researching"
	StatusImplementing Status = "implementing"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

// IsTerminal returns true for states that end an item's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// IsInProgress returns true for the intermediate agent-driven states.
func (s Status) IsInProgress() bool {
	return s == StatusResearching || s == StatusImplementing
}

// ValidStatuses returns all statuses a backlog item may carry.
func ValidStatuses() []Status {
	return []Status{
		StatusPlanned, StatusResearching, StatusImplementing,
		StatusComplete, StatusFailed,
	}
}

// Subtask is the leaf work item executed by an agent. Dependencies reference
// other subtask IDs; insertion order within the parent task is priority order.
type Subtask struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Status       Status   `json:"status"`
	StoryPoints  int      `json:"story_points"`
	Dependencies []string `json:"dependencies,omitempty"`
	ContextScope string   `json:"context_scope,omitempty"`
}

// Task groups subtasks under a milestone.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Subtasks    []*Subtask `json:"subtasks,omitempty"`
}

// Milestone groups tasks under a phase.
type Milestone struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      Status  `json:"status"`
	Tasks       []*Task `json:"tasks,omitempty"`
}

// Phase is a top-level stage of the build plan.
type Phase struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      Status       `json:"status"`
	Milestones  []*Milestone `json:"milestones,omitempty"`
}

// Backlog is the root aggregate persisted as tasks.json. It is created once
// per session by the backlog generator and mutated only through the session
// store's update API.
type Backlog struct {
	Version   string    `json:"version,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Phases    []*Phase  `json:"phases"`
}

// Subtasks returns every subtask in depth-first declaration order. This order
// is the scheduler's tie-break, so it must be stable across calls.
func (b *Backlog) Subtasks() []*Subtask {
	var out []*Subtask
	for _, p := range b.Phases {
		for _, m := range p.Milestones {
			for _, t := range m.Tasks {
				out = append(out, t.Subtasks...)
			}
		}
	}
	return out
}

// FindSubtask returns the subtask with the given ID, or nil.
func (b *Backlog) FindSubtask(id string) *Subtask {
	for _, p := range b.Phases {
		for _, m := range p.Milestones {
			for _, t := range m.Tasks {
				for _, s := range t.Subtasks {
					if s.ID == id {
						return s
					}
				}
			}
		}
	}
	return nil
}

// Locate returns the enclosing phase and milestone titles for a subtask ID.
// Both are empty when the ID is unknown.
func (b *Backlog) Locate(id string) (phase, milestone string) {
	for _, p := range b.Phases {
		for _, m := range p.Milestones {
			for _, t := range m.Tasks {
				for _, s := range t.Subtasks {
					if s.ID == id {
						return p.Title, m.Title
					}
				}
			}
		}
	}
	return "", ""
}

// SetStatus updates the status of any item by ID, returning false when no
// item carries the ID. Parent items (phase/milestone/task) are addressable
// too, though the scheduler only ever transitions subtasks.
func (b *Backlog) SetStatus(id string, status Status) bool {
	for _, p := range b.Phases {
		if p.ID == id {
			p.Status = status
			return true
		}
		for _, m := range p.Milestones {
			if m.ID == id {
				m.Status = status
				return true
			}
			for _, t := range m.Tasks {
				if t.ID == id {
					t.Status = status
					return true
				}
				for _, s := range t.Subtasks {
					if s.ID == id {
						s.Status = status
						return true
					}
				}
			}
		}
	}
	return false
}

// CountByStatus returns the number of subtasks in the given status.
func (b *Backlog) CountByStatus(status Status) int {
	n := 0
	for _, s := range b.Subtasks() {
		if s.Status == status {
			n++
		}
	}
	return n
}

// TotalSubtasks returns the number of subtasks in the document.
func (b *Backlog) TotalSubtasks() int {
	return len(b.Subtasks())
}

// PhaseSummary reports milestone completion within a phase. A milestone is
// considered complete when every subtask beneath it is complete.
type PhaseSummary struct {
	PhaseID             string `json:"phase_id"`
	Title               string `json:"title"`
	TotalMilestones     int    `json:"total_milestones"`
	CompletedMilestones int    `json:"completed_milestones"`
}

// PhaseSummaries computes per-phase milestone completion for the run result.
func (b *Backlog) PhaseSummaries() []PhaseSummary {
	summaries := make([]PhaseSummary, 0, len(b.Phases))
	for _, p := range b.Phases {
		summary := PhaseSummary{PhaseID: p.ID, Title: p.Title}
		for _, m := range p.Milestones {
			summary.TotalMilestones++
			if milestoneComplete(m) {
				summary.CompletedMilestones++
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func milestoneComplete(m *Milestone) bool {
	for _, t := range m.Tasks {
		for _, s := range t.Subtasks {
			if s.Status != StatusComplete {
				return false
			}
		}
	}
	return true
}
