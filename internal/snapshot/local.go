package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore writes snapshots under a directory tree.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Put writes the body to dir/key, creating parent directories as needed.
func (l *LocalStore) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	path := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create snapshot subdir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", key, err)
	}
	return "file://" + path, nil
}
