package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"foreman/pkg/utils"
)

// Delta session support. A delta session captures an incremental requirements
// change: it stores its parent session ID in parent_session.txt and is
// considered complete only once the change-summary artifact exists alongside
// its backlog.

// MarkDelta records the parent session ID, turning the active session into a
// delta session.
func (s *Store) MarkDelta(parentID string) error {
	if s.session == nil {
		return fmt.Errorf("no active session")
	}
	path := filepath.Join(s.session.Dir, ParentFilename)
	if err := utils.WriteFileAtomic(path, []byte(parentID+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to record parent session: %w", err)
	}
	s.session.ParentID = parentID
	return nil
}

// readParentID returns the parent session ID, or "" for non-delta sessions.
func (s *Store) readParentID(sess *Session) string {
	data, err := os.ReadFile(filepath.Join(sess.Dir, ParentFilename))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// DeltaComplete reports whether the delta session's change-summary artifact
// exists. An incomplete delta session must be regenerated on resume, not
// treated as scheduling-ready.
func (s *Store) DeltaComplete() bool {
	if s.session == nil || !s.session.IsDelta() {
		return true
	}
	_, err := os.Stat(s.session.ChangeSummaryPath())
	return err == nil
}

// WriteChangeSummary persists the change-summary artifact that marks a delta
// session complete.
func (s *Store) WriteChangeSummary(summary string) error {
	if s.session == nil {
		return fmt.Errorf("no active session")
	}
	path := s.session.ChangeSummaryPath()
	if err := utils.WriteFileAtomic(path, []byte(summary), 0644); err != nil {
		return fmt.Errorf("failed to write change summary: %w", err)
	}
	return nil
}

// ParentSnapshot reads the parent session's requirements snapshot, used by
// the change summarizer when regenerating an incomplete delta session.
func (s *Store) ParentSnapshot() ([]byte, error) {
	if s.session == nil || !s.session.IsDelta() {
		return nil, fmt.Errorf("not a delta session")
	}
	path := filepath.Join(s.root, s.session.ParentID, SnapshotFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parent snapshot: %w", err)
	}
	return data, nil
}
