// Package config tests.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Empty(t, cfg.DefaultsFile)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("MEMVAULT_ROOT", "/projects/demo")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ADDR", ":7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/projects/demo", cfg.Root)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":7070", cfg.MetricsAddr)
}

func TestLoadWithPrefix(t *testing.T) {
	t.Setenv("APP_MEMVAULT_ROOT", "/other")
	cfg, err := LoadWithPrefix("APP")
	require.NoError(t, err)
	assert.Equal(t, "/other", cfg.Root)
}

func TestLoadDefaults_EmptyPath(t *testing.T) {
	d, ptype, err := LoadDefaults("")
	require.NoError(t, err)
	assert.Empty(t, ptype)
	assert.True(t, d.AutoSummarize)
	assert.Equal(t, 50, d.SummarizeThresholdKB)
	assert.Equal(t, 3, d.MaxRecoveryAttempts)
}

func TestLoadDefaults_OverridesSubset(t *testing.T) {
	yaml := []byte(`
project:
  type: video
memory:
  summarize_threshold_kb: 100
  auto_translate: true
  target_languages: [es, fr]
`)
	d, ptype, err := LoadDefaultsBytes(yaml)
	require.NoError(t, err)
	assert.Equal(t, "video", ptype)
	assert.Equal(t, 100, d.SummarizeThresholdKB)
	assert.True(t, d.AutoTranslate)
	assert.Equal(t, []string{"es", "fr"}, d.TargetLanguages)
	// Unset keys keep the system defaults.
	assert.True(t, d.AutoSummarize)
	assert.Equal(t, 3, d.MaxRecoveryAttempts)
}

func TestLoadDefaults_EnvExpansion(t *testing.T) {
	t.Setenv("THRESHOLD", "75")
	yaml := []byte("memory:\n  summarize_threshold_kb: ${THRESHOLD}\n")
	d, _, err := LoadDefaultsBytes(yaml)
	require.NoError(t, err)
	assert.Equal(t, 75, d.SummarizeThresholdKB)
}

func TestLoadDefaults_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  auto_summarize: false\n"), 0o644))

	d, _, err := LoadDefaults(path)
	require.NoError(t, err)
	assert.False(t, d.AutoSummarize)
}

func TestLoadDefaults_MissingFile(t *testing.T) {
	_, _, err := LoadDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadDefaults_BadYAML(t *testing.T) {
	_, _, err := LoadDefaultsBytes([]byte("memory: [unclosed"))
	assert.Error(t, err)
}
