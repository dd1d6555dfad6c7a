// Package session owns the on-disk session directory layout and makes the
// persisted backlog document the single source of truth for task state.
//
// A session is identified by (sequence, contentHash), where contentHash is a
// deterministic hash of the source requirements text. Directory layout:
//
//	{root}/{seq:03d}_{hash12}/
//	    tasks.json            authoritative backlog document
//	    prd_snapshot.md       immutable copy of the source requirements
//	    parent_session.txt    delta sessions only
//	    architecture/         generated design documents
//	    prps/                 generated per-task documents
//	    prps/.cache/          content-addressed cache metadata
//	    artifacts/{taskId}/   execution artifacts
//	    bugfix/{sessionId}/   nested sessions, identical shape
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// Persisted layout constants.
const (
	BacklogFilename       = "tasks.json"
	SnapshotFilename      = "prd_snapshot.md"
	ParentFilename        = "parent_session.txt"
	ChangeSummaryFilename = "change_summary.md"

	DirArchitecture = "architecture"
	DirPRPs         = "prps"
	DirCache        = ".cache" // under prps/
	DirArtifacts    = "artifacts"
	DirBugfix       = "bugfix"

	// ContentHashLen is the number of lowercase hex characters kept from the
	// source document's SHA-256.
	ContentHashLen = 12
)

var sessionDirPattern = regexp.MustCompile(`^(\d{3})_([0-9a-f]{12})$`)

// Session is a directory-scoped, hash-identified execution context owning one
// backlog and its artifacts.
type Session struct {
	ID          string // "{seq:03d}_{hash12}"
	Sequence    int
	ContentHash string
	Dir         string
	ParentID    string // non-empty for delta sessions
	Resumed     bool   // true when an existing directory was reused
}

// ContentHash returns the deterministic hash identifying a source document:
// the first ContentHashLen lowercase hex characters of its SHA-256.
func ContentHash(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])[:ContentHashLen]
}

// FormatID builds a session ID from sequence and content hash.
func FormatID(sequence int, contentHash string) string {
	return fmt.Sprintf("%03d_%s", sequence, contentHash)
}

// parseDirName extracts (sequence, hash) from a session directory name,
// returning ok=false for names that are not session directories.
func parseDirName(name string) (sequence int, hash string, ok bool) {
	m := sessionDirPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return seq, m[2], true
}

// BacklogPath returns the path of the authoritative backlog document.
func (s *Session) BacklogPath() string {
	return filepath.Join(s.Dir, BacklogFilename)
}

// SnapshotPath returns the path of the immutable requirements snapshot.
func (s *Session) SnapshotPath() string {
	return filepath.Join(s.Dir, SnapshotFilename)
}

// ChangeSummaryPath returns the path of the delta change-summary artifact.
func (s *Session) ChangeSummaryPath() string {
	return filepath.Join(s.Dir, DirArchitecture, ChangeSummaryFilename)
}

// CacheDir returns the content-addressed cache directory.
func (s *Session) CacheDir() string {
	return filepath.Join(s.Dir, DirPRPs, DirCache)
}

// IsDelta reports whether this session derives from a parent session.
func (s *Session) IsDelta() bool {
	return s.ParentID != ""
}
