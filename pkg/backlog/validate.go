package backlog

import (
	"fmt"
	"regexp"
)

// ID patterns per hierarchy level. Every ID must match its level's pattern
// and be unique within the document.
var (
	phaseIDPattern     = regexp.MustCompile(`^P\d+$`)
	milestoneIDPattern = regexp.MustCompile(`^P\d+\.M\d+$`)
	taskIDPattern      = regexp.MustCompile(`^P\d+\.M\d+\.T\d+$`)
	subtaskIDPattern   = regexp.MustCompile(`^P\d+\.M\d+\.T\d+\.S\d+$`)
)

// Story point bounds for subtasks.
const (
	MinStoryPoints = 1
	MaxStoryPoints = 21
)

// ValidationError describes a schema violation in a backlog document.
type ValidationError struct {
	ItemID string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("backlog validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("backlog validation failed at %s: %s", e.ItemID, e.Reason)
}

// Validate checks the full document schema: ID patterns, ID uniqueness,
// status values, story point bounds, dependency resolution, and acyclicity
// of the dependency relation. It must pass before any scheduling decision
// and before every write.
func Validate(b *Backlog) error {
	if b == nil {
		return &ValidationError{Reason: "document is nil"}
	}

	seen := make(map[string]bool)
	subtasks := make(map[string]*Subtask)

	checkID := func(id string, pattern *regexp.Regexp, level string) error {
		if !pattern.MatchString(id) {
			return &ValidationError{ItemID: id, Reason: fmt.Sprintf("invalid %s ID", level)}
		}
		if seen[id] {
			return &ValidationError{ItemID: id, Reason: "duplicate ID"}
		}
		seen[id] = true
		return nil
	}

	for _, p := range b.Phases {
		if err := checkID(p.ID, phaseIDPattern, "phase"); err != nil {
			return err
		}
		if err := checkStatus(p.ID, p.Status); err != nil {
			return err
		}
		for _, m := range p.Milestones {
			if err := checkID(m.ID, milestoneIDPattern, "milestone"); err != nil {
				return err
			}
			if err := checkStatus(m.ID, m.Status); err != nil {
				return err
			}
			for _, t := range m.Tasks {
				if err := checkID(t.ID, taskIDPattern, "task"); err != nil {
					return err
				}
				if err := checkStatus(t.ID, t.Status); err != nil {
					return err
				}
				for _, s := range t.Subtasks {
					if err := checkID(s.ID, subtaskIDPattern, "subtask"); err != nil {
						return err
					}
					if err := checkStatus(s.ID, s.Status); err != nil {
						return err
					}
					if s.StoryPoints < MinStoryPoints || s.StoryPoints > MaxStoryPoints {
						return &ValidationError{ItemID: s.ID, Reason: fmt.Sprintf("story points %d out of range [%d,%d]", s.StoryPoints, MinStoryPoints, MaxStoryPoints)}
					}
					subtasks[s.ID] = s
				}
			}
		}
	}

	// Dependencies must reference existing subtasks.
	for id, s := range subtasks {
		for _, dep := range s.Dependencies {
			if _, ok := subtasks[dep]; !ok {
				return &ValidationError{ItemID: id, Reason: fmt.Sprintf("dependency %q does not exist", dep)}
			}
			if dep == id {
				return &ValidationError{ItemID: id, Reason: "subtask depends on itself"}
			}
		}
	}

	return checkAcyclic(subtasks)
}

func checkStatus(id string, status Status) error {
	for _, valid := range ValidStatuses() {
		if status == valid {
			return nil
		}
	}
	return &ValidationError{ItemID: id, Reason: fmt.Sprintf("unknown status %q", status)}
}

// checkAcyclic runs Kahn's algorithm over the subtask dependency relation.
// A cycle is a fatal schema error, not a scheduling stall.
func checkAcyclic(subtasks map[string]*Subtask) error {
	indegree := make(map[string]int, len(subtasks))
	dependents := make(map[string][]string, len(subtasks))
	for id := range subtasks {
		indegree[id] = 0
	}
	for id, s := range subtasks {
		for _, dep := range s.Dependencies {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	queue := make([]string, 0, len(subtasks))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited != len(subtasks) {
		var stuck []string
		for id, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		return &ValidationError{Reason: fmt.Sprintf("dependency cycle involving %v", stuck)}
	}
	return nil
}
