package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExplicitFlagsWinOverDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, err := Load("/custom/mappings", "/custom/runs.jsonl", 8)
	require.NoError(t, err)
	assert.Equal(t, "/custom/mappings", cfg.MappingDir)
	assert.Equal(t, "/custom/runs.jsonl", cfg.RunLogPath)
	assert.Equal(t, 8, cfg.NumThreads)
}

func TestLoad_EmptyFlagsFallBackToConfigDirDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, err := Load("", "", 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DefaultConfigDir, DefaultMappingDir), cfg.MappingDir)
	assert.Equal(t, filepath.Join(home, DefaultConfigDir, DefaultRunLogFile), cfg.RunLogPath)
	assert.Equal(t, DefaultNumThreads, cfg.NumThreads)

	info, err := os.Stat(filepath.Join(home, DefaultConfigDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
