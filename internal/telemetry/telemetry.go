// Package telemetry implements a JSONL run log: one line per CLI
// invocation recording the command, arguments, file counts, and outcome,
// rotated at a fixed size the way the teacher's audit logger rotates.
// This is purely an operator-facing record - nothing here feeds hunt or
// search evaluation.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

const defaultMaxLogBytes = 10 * 1024 * 1024

// RunEvent is one recorded command invocation.
type RunEvent struct {
	Timestamp    string   `json:"timestamp"`
	Command      string   `json:"command"`
	Args         []string `json:"args"`
	FilesScanned int      `json:"files_scanned,omitempty"`
	Detections   int      `json:"detections,omitempty"`
	DurationMs   int64    `json:"duration_ms,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Logger appends RunEvents to a JSONL file, rotating it once it grows
// past defaultMaxLogBytes.
type Logger struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// Open opens (creating if needed) the run log at path.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Logger{path: path, file: f}, nil
}

func (l *Logger) rotateIfNeeded() error {
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat run log: %w", err)
	}
	if info.Size() < defaultMaxLogBytes {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close run log before rotation: %w", err)
	}
	rotated := l.path + ".1"
	_ = os.Remove(rotated)
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("rotate run log: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open fresh run log after rotation: %w", err)
	}
	l.file = f
	return nil
}

// Log appends one event as a JSON line.
func (l *Logger) Log(event RunEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		fmt.Fprintf(os.Stderr, "[!] run log rotation failed: %v\n", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
