package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurocloudstack/neurocloud-heal/internal/utils"
)

// FileStore writes one file per key under a base directory. Slashes in
// keys become subdirectories, so "model/snapshot" lands at
// <dir>/model/snapshot.json.
type FileStore struct {
	dir string
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, utils.OpError("store: create data dir", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", utils.KeyError("store: resolve", key, nil)
	}
	return filepath.Join(s.dir, clean+".json"), nil
}

// Save writes atomically via a temp file and rename.
func (s *FileStore) Save(_ context.Context, key string, blob []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return utils.KeyError("store: save", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".store-*")
	if err != nil {
		return utils.KeyError("store: save", key, err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return utils.KeyError("store: save", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return utils.KeyError("store: save", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return utils.KeyError("store: save", key, err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, utils.KeyError("store: load", key, err)
	}
	return blob, nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return utils.KeyError("store: delete", key, err)
	}
	return nil
}

// Close is a no-op; files are flushed on every Save.
func (s *FileStore) Close() error { return nil }
