// FILE: lixenwraith/layersync/store.go
package layersync

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store performs layer file I/O over an afero filesystem.
type Store struct {
	fs afero.Fs
}

// NewStore wraps an afero filesystem.
func NewStore(fsys afero.Fs) *Store {
	return &Store{fs: fsys}
}

// NewDiskStore returns a Store over the operating system filesystem.
func NewDiskStore() *Store {
	return NewStore(afero.NewOsFs())
}

// NewMemStore returns a Store over an in-memory filesystem.
func NewMemStore() *Store {
	return NewStore(afero.NewMemMapFs())
}

// Fs exposes the underlying filesystem.
func (s *Store) Fs() afero.Fs { return s.fs }

// ReadFile reads a whole file. Missing files satisfy errors.Is(err, fs.ErrNotExist).
func (s *Store) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

// Exists reports whether path exists and is a regular file.
func (s *Store) Exists(path string) bool {
	info, err := s.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteFile replaces path atomically: temp file in the same directory, sync, rename.
func (s *Store) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tempFile, err := afero.TempFile(s.fs, dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tempPath := tempFile.Name()
	removed := false
	defer func() {
		if !removed {
			_ = s.fs.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write temporary file '%s': %w", tempPath, err)
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temporary file '%s': %w", tempPath, err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file '%s': %w", tempPath, err)
	}

	if err := s.fs.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions on '%s': %w", tempPath, err)
	}

	if err := s.fs.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename '%s' to '%s': %w", tempPath, path, err)
	}
	removed = true

	return nil
}

// isNotExist reports whether err is a missing-file error from any afero backend.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
