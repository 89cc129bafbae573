// Package config resolves the default paths the CLI falls back to when
// a flag is not given: the mapping directory and the run-log location,
// the same explicit-flag-wins pattern the teacher uses for its policy
// file.
package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultConfigDir   = ".chainsaw"
	DefaultMappingDir  = "mappings"
	DefaultRunLogFile  = "runs.jsonl"
)

// Config holds the resolved paths one CLI invocation runs with.
type Config struct {
	ConfigDir  string
	MappingDir string
	RunLogPath string
	NumThreads int
}

// DefaultNumThreads is what Load stores in Config.NumThreads when its
// numThreads argument is <= 0. The hunt and search commands do not read
// it; they default to runtime.NumCPU() when --num-threads is not set.
const DefaultNumThreads = 4

// Load resolves defaults, letting an explicit flag value win over the
// package default in every field. mappingDir/runLogPath/numThreads of ""
// or 0 request the default. Locale environment variables (LANG, LC_ALL,
// TZ) are never consulted here or anywhere on the data path.
func Load(mappingDir, runLogPath string, numThreads int) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	configDir := filepath.Join(homeDir, DefaultConfigDir)
	if err := ensureDir(configDir); err != nil {
		return nil, err
	}

	cfg := &Config{ConfigDir: configDir, NumThreads: numThreads}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = DefaultNumThreads
	}

	if mappingDir != "" {
		cfg.MappingDir = mappingDir
	} else {
		cfg.MappingDir = filepath.Join(configDir, DefaultMappingDir)
	}

	if runLogPath != "" {
		cfg.RunLogPath = runLogPath
	} else {
		cfg.RunLogPath = filepath.Join(configDir, DefaultRunLogFile)
	}

	return cfg, nil
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0o700)
	}
	return nil
}
