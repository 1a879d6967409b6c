package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunMarker stores the end of the last successful run as one RFC 3339 line.
type RunMarker struct {
	path string
}

func NewRunMarker(path string) *RunMarker {
	return &RunMarker{path: path}
}

// Read returns the stored instant; ok is false when no run has been recorded yet.
func (m *RunMarker) Read() (t time.Time, ok bool, err error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read run marker: %w", err)
	}

	line := strings.TrimSpace(string(raw))
	t, err = time.Parse(time.RFC3339Nano, line)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse run marker %q: %w", line, err)
	}
	return t.UTC(), true, nil
}

// Write replaces the stored instant.
func (m *RunMarker) Write(t time.Time) error {
	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create marker dir: %w", err)
		}
	}
	line := t.UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(m.path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("write run marker: %w", err)
	}
	return nil
}
