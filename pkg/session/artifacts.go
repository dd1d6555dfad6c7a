package session

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"foreman/pkg/agent"
	"foreman/pkg/utils"
)

// Artifact filenames under artifacts/{taskId}/.
const (
	validationResultsFile = "validation_results.json"
	summaryFile           = "summary.md"
	touchedFilesFile      = "touched_files.txt"
)

// PRPPath returns the generated per-task document path for a task ID,
// derived by replacing "." with "_".
func (s *Store) PRPPath(taskID string) (string, error) {
	if s.session == nil {
		return "", fmt.Errorf("no active session")
	}
	return filepath.Join(s.session.Dir, DirPRPs, utils.SanitizeTaskID(taskID)+".md"), nil
}

// WriteArtifacts persists an executor result into the task's artifact
// directory: the validation results array, a human-readable summary, and the
// list of touched file paths.
func (s *Store) WriteArtifacts(taskID string, result *agent.ExecutionResult) error {
	if s.session == nil {
		return fmt.Errorf("no active session")
	}

	dir := filepath.Join(s.session.Dir, DirArtifacts, utils.SanitizeTaskID(taskID))
	if err := utils.EnsureDir(dir); err != nil {
		return err
	}

	validations, err := json.MarshalIndent(result.Validations, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize validation results: %w", err)
	}
	if err := utils.WriteFileAtomic(filepath.Join(dir, validationResultsFile), validations, 0644); err != nil {
		return err
	}

	if err := utils.WriteFileAtomic(filepath.Join(dir, summaryFile), []byte(result.Summary), 0644); err != nil {
		return err
	}

	touched := strings.Join(result.TouchedFiles, "\n")
	if len(result.TouchedFiles) > 0 {
		touched += "\n"
	}
	return utils.WriteFileAtomic(filepath.Join(dir, touchedFilesFile), []byte(touched), 0644)
}
