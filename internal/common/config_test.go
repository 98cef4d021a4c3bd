package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "claude", config.LLM.Provider)
	assert.Equal(t, 3, config.Worker.MaxStageRetries)
	assert.Equal(t, int64(10*1024*1024), config.Extract.MaxFileSize)
	assert.Equal(t, 15000, config.Extract.TruncateChars)
}

func TestLoadFromFilesOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "censeo.toml")
	content := `
[server]
port = 9090

[queue]
concurrency = 4

[worker]
max_stage_retries = 5
job_ceiling = "10m"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 4, config.Queue.Concurrency)
	assert.Equal(t, 5, config.Worker.MaxStageRetries)
	assert.Equal(t, "10m", config.Worker.JobCeiling)
	// Unset sections keep defaults
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "claude", config.LLM.Provider)
}

func TestLoadFromFilesRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "censeo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[worker]\njob_ceiling = \"soon\"\n"), 0644))

	_, err := LoadFromFiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job_ceiling")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CENSEO_SERVER_PORT", "7070")
	t.Setenv("CENSEO_LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("CENSEO_WORKER_MAX_STAGE_RETRIES", "2")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "gemini", config.LLM.Provider)
	assert.Equal(t, "test-key", config.LLM.Gemini.APIKey)
	assert.Equal(t, 2, config.Worker.MaxStageRetries)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 6060, "0.0.0.0")
	assert.Equal(t, 6060, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave the config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 6060, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestDurationAccessorsFallBack(t *testing.T) {
	w := WorkerConfig{}
	assert.Equal(t, "2s", w.InitialBackoffDuration().String())
	assert.Equal(t, "1m0s", w.MaxBackoffDuration().String())
	assert.Equal(t, "15m0s", w.JobCeilingDuration().String())
	assert.Equal(t, "20m0s", w.StalenessThresholdDuration().String())

	w = WorkerConfig{InitialBackoff: "500ms", JobCeiling: "30m"}
	assert.Equal(t, "500ms", w.InitialBackoffDuration().String())
	assert.Equal(t, "30m0s", w.JobCeilingDuration().String())
}
