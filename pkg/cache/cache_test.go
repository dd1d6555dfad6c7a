package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foreman/pkg/backlog"
)

func sampleSubtask() *backlog.Subtask {
	return &backlog.Subtask{
		ID:           "P1.M1.T1.S1",
		Title:        "Implement parser",
		Status:       backlog.StatusPlanned,
		StoryPoints:  5,
		ContextScope: "parse the tasks.json schema",
	}
}

func TestPutGet(t *testing.T) {
	c := New(t.TempDir(), time.Hour)
	s := sampleSubtask()

	_, ok, err := c.Get(s)
	require.NoError(t, err)
	assert.False(t, ok, "empty cache should miss")

	require.NoError(t, c.Put(s, "generated document body"))

	payload, ok, err := c.Get(s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "generated document body", payload)
}

func TestContentChangeInvalidates(t *testing.T) {
	c := New(t.TempDir(), time.Hour)
	s := sampleSubtask()
	require.NoError(t, c.Put(s, "v1"))

	s.ContextScope = "parse the tasks.json schema, now with milestones"
	_, ok, err := c.Get(s)
	require.NoError(t, err)
	assert.False(t, ok, "changed context scope must miss")
}

func TestStatusChangeDoesNotInvalidate(t *testing.T) {
	c := New(t.TempDir(), time.Hour)
	s := sampleSubtask()
	require.NoError(t, c.Put(s, "v1"))

	// Status, dependencies, and story points do not change the meaning of
	// the cached work.
	s.Status = backlog.StatusComplete
	s.StoryPoints = 13
	s.Dependencies = []string{"P1.M1.T1.S2"}

	_, ok, err := c.Get(s)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, time.Hour)
	s := sampleSubtask()
	require.NoError(t, c.Put(s, "old"))

	// Age the entry past the TTL by rewriting its created_at.
	short := New(dir, time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok, err := short.Get(s)
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must miss")
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New(t.TempDir(), 0)
	s := sampleSubtask()
	require.NoError(t, c.Put(s, "kept"))

	_, ok, err := c.Get(s)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, time.Hour)
	s := sampleSubtask()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "P1_M1_T1_S1.json"), []byte("{nope"), 0644))

	_, ok, err := c.Get(s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New(t.TempDir(), time.Hour)
	s := sampleSubtask()
	require.NoError(t, c.Put(s, "x"))
	require.NoError(t, c.Invalidate(s.ID))

	_, ok, err := c.Get(s)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, c.Invalidate("P9.M9.T9.S9"), "missing entry is not an error")
}

func TestSanitizedFilenames(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, time.Hour)
	require.NoError(t, c.Put(sampleSubtask(), "x"))

	_, err := os.Stat(filepath.Join(dir, "P1_M1_T1_S1.json"))
	assert.NoError(t, err)
}
