package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRunLifecycle(t *testing.T) {
	h := openTestHistory(t)

	started := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	require.NoError(t, h.StartRun("run-1", "001_abcdef123456", started))

	run, err := h.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "001_abcdef123456", run.SessionID)
	assert.True(t, run.StartedAt.Equal(started))
	assert.Nil(t, run.FinishedAt)
	assert.False(t, run.Success)

	require.NoError(t, h.FinishRun("run-1", "backlog_complete", true, 10, 9, 1, false, ""))

	run, err = h.GetRun("run-1")
	require.NoError(t, err)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, "backlog_complete", run.FinalState)
	assert.True(t, run.Success)
	assert.Equal(t, 10, run.TotalTasks)
	assert.Equal(t, 9, run.Completed)
	assert.Equal(t, 1, run.Failed)
	assert.False(t, run.Interrupted)
}

func TestFinishUnknownRun(t *testing.T) {
	h := openTestHistory(t)

	err := h.FinishRun("missing", "error", false, 0, 0, 0, false, "")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = h.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestInterruptedRun(t *testing.T) {
	h := openTestHistory(t)

	require.NoError(t, h.StartRun("run-2", "002_abcdef123456", time.Now()))
	require.NoError(t, h.FinishRun("run-2", "shutdown_complete", false, 5, 2, 0, true, "received SIGINT"))

	run, err := h.GetRun("run-2")
	require.NoError(t, err)
	assert.True(t, run.Interrupted)
	assert.Equal(t, "received SIGINT", run.Reason)
	assert.Equal(t, "shutdown_complete", run.FinalState)
}

func TestLastRunForSession(t *testing.T) {
	h := openTestHistory(t)

	base := time.Now().UTC()
	require.NoError(t, h.StartRun("run-a", "003_abcdef123456", base.Add(-time.Hour)))
	require.NoError(t, h.StartRun("run-b", "003_abcdef123456", base))
	require.NoError(t, h.StartRun("run-c", "004_abcdef123456", base))

	run, err := h.LastRunForSession("003_abcdef123456")
	require.NoError(t, err)
	assert.Equal(t, "run-b", run.RunID)

	_, err = h.LastRunForSession("005_abcdef123456")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestTaskEventsOrdered(t *testing.T) {
	h := openTestHistory(t)

	require.NoError(t, h.StartRun("run-3", "001_abcdef123456", time.Now()))
	require.NoError(t, h.RecordTaskEvent("run-3", "P1.M1.T1.S1", "implementing", ""))
	require.NoError(t, h.RecordTaskEvent("run-3", "P1.M1.T1.S1", "complete", ""))
	require.NoError(t, h.RecordTaskEvent("run-3", "P1.M1.T1.S2", "failed", "TIMEOUT: operation timed out"))

	events, err := h.TaskEvents("run-3")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "implementing", events[0].Status)
	assert.Equal(t, "complete", events[1].Status)
	assert.Equal(t, "P1.M1.T1.S2", events[2].TaskID)
	assert.Equal(t, "TIMEOUT: operation timed out", events[2].Detail)
	assert.False(t, events[2].CreatedAt.IsZero())
}
