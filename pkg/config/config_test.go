package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultSessionRoot, cfg.SessionRoot)
	assert.Equal(t, 1, cfg.Parallelism)
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreman.yaml")
	content := `
session_root: work/plan
parallelism: 4
fix_cycle_budget: 2
retry:
  max_attempts: 5
  base_delay: 250ms
  max_delay: 30s
  backoff_factor: 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "work/plan", cfg.SessionRoot)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, 2, cfg.FixCycleBudget)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 1.5, cfg.Retry.BackoffFactor)

	// Unspecified fields keep defaults.
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreman.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parallelism: [broken"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FOREMAN_SESSION_ROOT", "/tmp/other-plan")
	t.Setenv("FOREMAN_PARALLELISM", "8")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other-plan", cfg.SessionRoot)
	assert.Equal(t, 8, cfg.Parallelism)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Parallelism = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.SessionRoot = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Retry.BackoffFactor = 0.5
	assert.Error(t, cfg.Validate())
}
