package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tasks.json")

	require.NoError(t, WriteFileAtomic(target, []byte(`{"v":1}`), 0644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(data))

	// Overwrite keeps a single file and leaves no temp files behind.
	require.NoError(t, WriteFileAtomic(target, []byte(`{"v":2}`), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.Contains(entries[0].Name(), ".tmp-"))
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "tasks.json"), []byte("x"), 0644)
	assert.Error(t, err)
}

func TestSanitizeTaskID(t *testing.T) {
	assert.Equal(t, "P1_M2_T3_S4", SanitizeTaskID("P1.M2.T3.S4"))
	assert.Equal(t, "P1_M1", SanitizeTaskID("P1.M1"))
	assert.Equal(t, "a-b", SanitizeTaskID("a/b"))
}
