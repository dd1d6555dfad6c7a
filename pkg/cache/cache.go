// Package cache provides a content-addressed, TTL-bound store for expensive
// generated per-task documents. Entries are keyed by a hash of the fields
// that change the meaning of the work (id, title, and the description or
// context scope); status, dependencies, and story points are excluded since
// they do not affect the cached content.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"foreman/pkg/backlog"
	"foreman/pkg/logx"
	"foreman/pkg/utils"
)

// EntryVersion is bumped when the entry format changes; older entries are
// treated as misses.
const EntryVersion = 1

// Entry is the persisted cache record for one task.
type Entry struct {
	TaskID      string    `json:"task_id"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	Version     int       `json:"version"`
	Payload     string    `json:"payload"`
}

// Cache stores entries as JSON metadata files in a single directory
// (prps/.cache under a session).
type Cache struct {
	dir    string
	ttl    time.Duration
	logger *logx.Logger
}

// New creates a cache over dir with the given TTL. A zero TTL disables
// expiry.
func New(dir string, ttl time.Duration) *Cache {
	return &Cache{
		dir:    dir,
		ttl:    ttl,
		logger: logx.NewLogger("cache"),
	}
}

// KeyHash computes the content hash for a subtask. ContextScope is preferred
// over Description when present, matching what the executor actually
// consumes.
func KeyHash(s *backlog.Subtask) string {
	body := s.Description
	if s.ContextScope != "" {
		body = s.ContextScope
	}
	sum := sha256.Sum256([]byte(s.ID + "\x00" + s.Title + "\x00" + body))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) entryPath(taskID string) string {
	return filepath.Join(c.dir, utils.SanitizeTaskID(taskID)+".json")
}

// Get returns the cached payload for the subtask, or ok=false when the entry
// is absent, carries a different content hash, an older format version, or
// has outlived the TTL. A hit refreshes AccessedAt on disk.
func (c *Cache) Get(s *backlog.Subtask) (string, bool, error) {
	path := c.entryPath(s.ID)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt entry is a miss, not an error; it will be overwritten.
		c.logger.Warn("discarding corrupt cache entry for %s: %v", s.ID, err)
		return "", false, nil
	}

	if entry.Version != EntryVersion || entry.ContentHash != KeyHash(s) {
		return "", false, nil
	}
	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		c.logger.Debug("cache entry for %s expired", s.ID)
		return "", false, nil
	}

	entry.AccessedAt = time.Now().UTC()
	if updated, err := json.MarshalIndent(&entry, "", "  "); err == nil {
		_ = utils.WriteFileAtomic(path, updated, 0644)
	}

	return entry.Payload, true, nil
}

// Put stores payload for the subtask under its current content hash.
func (c *Cache) Put(s *backlog.Subtask, payload string) error {
	if err := utils.EnsureDir(c.dir); err != nil {
		return err
	}

	now := time.Now().UTC()
	entry := Entry{
		TaskID:      s.ID,
		ContentHash: KeyHash(s),
		CreatedAt:   now,
		AccessedAt:  now,
		Version:     EntryVersion,
		Payload:     payload,
	}

	data, err := json.MarshalIndent(&entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize cache entry: %w", err)
	}
	if err := utils.WriteFileAtomic(c.entryPath(s.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Invalidate removes the entry for a task ID. Removing a missing entry is
// not an error.
func (c *Cache) Invalidate(taskID string) error {
	err := os.Remove(c.entryPath(taskID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}
