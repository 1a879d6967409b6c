package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"NewsDigest/internal/ports"
)

// FileStore keeps every backup entry as a file under a root directory.
// Slash-separated keys map onto nested directories.
type FileStore struct {
	root string
}

var _ ports.BackupStore = (*FileStore)(nil)

// NewFileStore roots the store at dir; the directory is created lazily.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read backup %s: %w", key, err)
	}
	return payload, true, nil
}

func (s *FileStore) Put(_ context.Context, key string, payload []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*")
	if err != nil {
		return fmt.Errorf("create temp backup: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write backup %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close backup %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit backup %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) path(key string) (string, error) {
	var parts []string
	for _, segment := range strings.Split(key, "/") {
		segment = strings.TrimSpace(segment)
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		parts = append(parts, strings.Map(safeRune, segment))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("invalid backup key %q", key)
	}
	return filepath.Join(append([]string{s.root}, parts...)...), nil
}

func safeRune(r rune) rune {
	switch r {
	case ':', '\\', '?', '*', '"', '<', '>', '|':
		return '_'
	default:
		return r
	}
}
