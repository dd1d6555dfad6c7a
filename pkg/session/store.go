package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"foreman/pkg/backlog"
	"foreman/pkg/logx"
	"foreman/pkg/utils"
)

// Store manages one session directory and the in-memory copy of its backlog.
// Status mutations are queued in memory and persisted in batches via
// FlushUpdates so rapid transitions during execution do not each incur a
// synchronous disk write.
//
// Concurrent processes targeting the same session directory are not
// supported; the atomic rename on write is the only safety net against
// corruption, not a cross-process lock.
type Store struct {
	root    string
	logger  *logx.Logger
	session *Session

	mu      sync.Mutex
	backlog *backlog.Backlog
	pending int // queued status mutations since last flush
}

// NewStore creates a store rooted at the session root directory (the
// directory holding all session directories, e.g. "plan").
func NewStore(root string) *Store {
	return &Store{
		root:   root,
		logger: logx.NewLogger("session"),
	}
}

// Session returns the active session, or nil before Initialize.
func (s *Store) Session() *Session {
	return s.session
}

// Initialize establishes the session for the given source requirements
// document. It computes the content hash, reuses an existing session
// directory whose hash matches (idempotent resume), or allocates the next
// sequence number and creates a fresh directory with the required
// subdirectories and an immutable snapshot of the source.
func (s *Store) Initialize(ctx context.Context, sourceDocPath string) (*Session, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("session initialize cancelled: %w", ctx.Err())
	default:
	}

	source, err := os.ReadFile(sourceDocPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source document %s: %w", sourceDocPath, err)
	}
	hash := ContentHash(source)

	if err := utils.EnsureDir(s.root); err != nil {
		return nil, err
	}

	// Resume: look for an existing directory with a matching content hash.
	existing, err := s.findByHash(hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Resumed = true
		s.session = existing
		s.logger.Info("resuming session %s", existing.ID)
		return existing, nil
	}

	seq, err := s.nextSequence()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:          FormatID(seq, hash),
		Sequence:    seq,
		ContentHash: hash,
		Dir:         filepath.Join(s.root, FormatID(seq, hash)),
	}

	for _, sub := range []string{
		sess.Dir,
		filepath.Join(sess.Dir, DirArchitecture),
		filepath.Join(sess.Dir, DirPRPs),
		filepath.Join(sess.Dir, DirPRPs, DirCache),
		filepath.Join(sess.Dir, DirArtifacts),
		filepath.Join(sess.Dir, DirBugfix),
	} {
		if err := utils.EnsureDir(sub); err != nil {
			return nil, err
		}
	}

	if err := utils.WriteFileAtomic(sess.SnapshotPath(), source, 0644); err != nil {
		return nil, fmt.Errorf("failed to snapshot source document: %w", err)
	}

	s.session = sess
	s.logger.Info("created session %s", sess.ID)
	return sess, nil
}

// findByHash scans the session root for a directory whose name carries the
// given content hash and returns the highest-sequence match.
func (s *Store) findByHash(hash string) (*Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session root %s: %w", s.root, err)
	}

	var found *Session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		seq, h, ok := parseDirName(entry.Name())
		if !ok || h != hash {
			continue
		}
		if found == nil || seq > found.Sequence {
			found = &Session{
				ID:          entry.Name(),
				Sequence:    seq,
				ContentHash: h,
				Dir:         filepath.Join(s.root, entry.Name()),
			}
		}
	}
	if found != nil {
		found.ParentID = s.readParentID(found)
	}
	return found, nil
}

// nextSequence returns one past the highest sequence number in the root.
func (s *Store) nextSequence() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("failed to scan session root %s: %w", s.root, err)
	}

	max := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if seq, _, ok := parseDirName(entry.Name()); ok && seq > max {
			max = seq
		}
	}
	return max + 1, nil
}

// LoadBacklog reads and schema-validates the on-disk document. Malformed
// JSON or a schema violation yields a *CorruptStateError.
func (s *Store) LoadBacklog() (*backlog.Backlog, error) {
	if s.session == nil {
		return nil, fmt.Errorf("no active session")
	}
	path := s.session.BacklogPath()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backlog document: %w", err)
	}

	var b backlog.Backlog
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &CorruptStateError{Path: path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := backlog.Validate(&b); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}

	s.mu.Lock()
	s.backlog = &b
	s.pending = 0
	s.mu.Unlock()

	return &b, nil
}

// HasBacklog reports whether a backlog document exists on disk.
func (s *Store) HasBacklog() bool {
	if s.session == nil {
		return false
	}
	_, err := os.Stat(s.session.BacklogPath())
	return err == nil
}

// SaveBacklog validates the document and writes it atomically: validation
// failures prevent any partial write, and the rename guarantees a reader
// never observes a half-written file. Serialization happens under the store
// lock so a save never races a queued mutation.
func (s *Store) SaveBacklog(b *backlog.Backlog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(b)
}

// saveLocked is SaveBacklog's body; caller holds s.mu.
func (s *Store) saveLocked(b *backlog.Backlog) error {
	if s.session == nil {
		return fmt.Errorf("no active session")
	}
	if err := backlog.Validate(b); err != nil {
		return fmt.Errorf("refusing to persist invalid backlog: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize backlog: %w", err)
	}

	if err := utils.WriteFileAtomic(s.session.BacklogPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write backlog document: %w", err)
	}

	s.backlog = b
	s.pending = 0
	return nil
}

// Backlog returns the in-memory copy last loaded or saved.
func (s *Store) Backlog() *backlog.Backlog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog
}

// UpdateItemStatus mutates the in-memory copy and queues the change for the
// next flush. It does not touch the disk.
func (s *Store) UpdateItemStatus(id string, status backlog.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backlog == nil {
		return fmt.Errorf("no backlog loaded")
	}
	if !s.backlog.SetStatus(id, status) {
		return fmt.Errorf("unknown backlog item %q", id)
	}
	s.pending++
	return nil
}

// FlushUpdates persists queued mutations via SaveBacklog. With no pending
// mutations it is a no-op, so calling it twice in a row produces no change
// on disk.
func (s *Store) FlushUpdates() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backlog == nil || s.pending == 0 {
		return nil
	}
	n := s.pending
	if err := s.saveLocked(s.backlog); err != nil {
		return err
	}
	s.logger.Debug("flushed %d queued status updates", n)
	return nil
}

// PendingUpdates returns the count of queued, unflushed mutations.
func (s *Store) PendingUpdates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// BugfixStore returns a store rooted at this session's bugfix directory, so
// nested bugfix sessions get the identical directory shape.
func (s *Store) BugfixStore() (*Store, error) {
	if s.session == nil {
		return nil, fmt.Errorf("no active session")
	}
	return NewStore(filepath.Join(s.session.Dir, DirBugfix)), nil
}
