package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	work := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("APSWEEP_WORKDIR", work)
	t.Setenv("APSWEEP_DATA_DIR", filepath.Join(work, ".data"))
	for _, key := range []string{"APSWEEP_TOOL_ROOT", "APSWEEP_BUILD", "APSWEEP_SCHEDULE"} {
		// Setenv registers the restore, then the key is dropped entirely
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return work
}

func TestNew_Defaults(t *testing.T) {
	work := setupEnv(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, work, cfg.WorkDir)
	assert.Equal(t, DefaultToolRoot, cfg.ToolRoot)
	assert.Equal(t, "ROSE_PATH", cfg.ToolRootEnv)
	assert.Equal(t, "make", cfg.Build)
	assert.Equal(t, "run_ap", cfg.BuildTarget)
	assert.True(t, cfg.Debug)
	assert.Equal(t, filepath.Join(work, "auto_run_logs.log"), cfg.LogPath())
	assert.Equal(t, filepath.Join(work, ".data", "apsweep.db"), cfg.DBPath)
	assert.Empty(t, cfg.ScheduleScript)
}

func TestNew_FileAndEnvOverrides(t *testing.T) {
	work := setupEnv(t)
	yaml := `
tool_root: /opt/rose
build: gmake
build_target: run_tool
debug: false
log_file: sweep.log
schedule_script: sched.lua
`
	require.NoError(t, os.WriteFile(filepath.Join(work, FileName), []byte(yaml), 0644))

	t.Run("file", func(t *testing.T) {
		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, "/opt/rose", cfg.ToolRoot)
		assert.Equal(t, "gmake", cfg.Build)
		assert.Equal(t, "run_tool", cfg.BuildTarget)
		assert.False(t, cfg.Debug)
		assert.Equal(t, filepath.Join(work, "sweep.log"), cfg.LogPath())
		assert.Equal(t, filepath.Join(work, "sched.lua"), cfg.ScheduleScript)
		// Unset keys keep their defaults
		assert.Equal(t, DefaultArtifactPrefix, cfg.ArtifactPrefix)
	})

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv("APSWEEP_TOOL_ROOT", "/env/rose")
		t.Setenv("APSWEEP_BUILD", "/usr/bin/make")
		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, "/env/rose", cfg.ToolRoot)
		assert.Equal(t, "/usr/bin/make", cfg.Build)
	})
}

func TestNew_InvalidFile(t *testing.T) {
	work := setupEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(work, FileName), []byte("build: [unclosed"), 0644))

	_, err := New()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Build:          "make",
		BuildTarget:    "run_ap",
		ArtifactPrefix: "rose_",
		LogFile:        "x.log",
		ToolRootEnv:    "ROSE_PATH",
	}
	require.NoError(t, cfg.Validate())

	cfg.Build = ""
	assert.Error(t, cfg.Validate())
}
