// Package agent defines the boundary to the external generation and
// execution collaborators. The pipeline treats these as opaque: what they do
// internally (prompting, model invocation, shell tools) is not this module's
// concern; only the typed contracts below are.
package agent

import (
	"context"
	"time"

	"foreman/pkg/backlog"
)

// ValidationResult is one check the executor ran against its output.
type ValidationResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ExecutionResult is the tagged success payload of an executor call. It feeds
// the session store's per-task artifact directory.
type ExecutionResult struct {
	Summary      string             `json:"summary"`
	TouchedFiles []string           `json:"touched_files,omitempty"`
	Validations  []ValidationResult `json:"validations,omitempty"`
	StartedAt    time.Time          `json:"started_at,omitempty"`
	FinishedAt   time.Time          `json:"finished_at,omitempty"`
}

// Executor performs one subtask given its context scope and the full backlog
// for surrounding context. Implementations may block for a long time; the
// scheduler enforces no timeout of its own.
type Executor interface {
	Execute(ctx context.Context, contextScope string, b *backlog.Backlog) (*ExecutionResult, error)
}

// BacklogGenerator produces the initial backlog from the source requirements
// document. Called once per fresh session; the result is schema-validated at
// the boundary before it is trusted.
type BacklogGenerator interface {
	GenerateBacklog(ctx context.Context, sourceDocument string) (*backlog.Backlog, error)
}

// Defect is a single finding from post-execution verification.
type Defect struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Severity    string `json:"severity"` // critical, major, minor, cosmetic
	Description string `json:"description,omitempty"`
}

// IsMinor reports whether the defect is acceptable to ship with.
func (d Defect) IsMinor() bool {
	return d.Severity == "minor" || d.Severity == "cosmetic"
}

// VerificationResult is the outcome of the quality verification collaborator.
type VerificationResult struct {
	HasDefects bool     `json:"has_defects"`
	Defects    []Defect `json:"defects,omitempty"`
}

// Verifier runs post-execution quality verification over the completed work.
type Verifier interface {
	RunVerification(ctx context.Context, sourceDocument string, completedTasks []string) (*VerificationResult, error)
}

// FixCycle turns verification defects into new subtasks appended to the
// backlog, which the scheduler then drains in another round.
type FixCycle interface {
	PlanFixes(ctx context.Context, defects []Defect, b *backlog.Backlog) ([]*backlog.Subtask, error)
}

// ChangeSummarizer produces the change-summary artifact that marks a delta
// session complete.
type ChangeSummarizer interface {
	SummarizeChanges(ctx context.Context, parentSource, currentSource string) (string, error)
}

// Collaborators bundles everything the pipeline driver needs injected.
type Collaborators struct {
	Executor   Executor
	Generator  BacklogGenerator
	Verifier   Verifier
	FixCycle   FixCycle
	Summarizer ChangeSummarizer
}
