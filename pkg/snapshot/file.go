package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
)

// FileExt is the extension of saved paintings.
const FileExt = ".sp"

// FileStore keeps one .sp file per blob in a directory.
type FileStore struct {
	dir    string
	closed atomic.Bool
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot: file store needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, name+FileExt)
}

// Save writes the blob atomically through a temporary file.
func (f *FileStore) Save(_ context.Context, name string, blob []byte) error {
	if f.closed.Load() {
		return ErrStoreClosed
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "."+name+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(name))
}

// Load reads name.sp.
func (f *FileStore) Load(_ context.Context, name string) ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Delete removes name.sp.
func (f *FileStore) Delete(_ context.Context, name string) error {
	if f.closed.Load() {
		return ErrStoreClosed
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	err := os.Remove(f.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns the names of the .sp files in the directory.
func (f *FileStore) List(_ context.Context) ([]string, error) {
	if f.closed.Load() {
		return nil, ErrStoreClosed
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, FileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(n, FileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Close marks the store closed. Files are left in place.
func (f *FileStore) Close() error {
	f.closed.Store(true)
	return nil
}
