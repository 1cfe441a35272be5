package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStorage implements ArtifactStorage using the local filesystem
type FileSystemStorage struct {
	rootDir string
}

// NewFileSystemStorage creates a new filesystem-based storage
func NewFileSystemStorage(rootDir string) (*FileSystemStorage, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileSystemStorage{rootDir: rootDir}, nil
}

// PutArchive implements ArtifactStorage.PutArchive
func (s *FileSystemStorage) PutArchive(ctx context.Context, pluginID, version string, data io.Reader) (string, string, int64, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to read archive: %w", err)
	}

	key := archiveKey(pluginID, version)
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", "", 0, fmt.Errorf("failed to create archive directory: %w", err)
	}

	// Write to a temp file and rename so readers never observe a
	// partially written archive
	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", "", 0, fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", "", 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", "", 0, fmt.Errorf("failed to move archive into place: %w", err)
	}

	return key, checksumHex(content), int64(len(content)), nil
}

// GetArchive implements ArtifactStorage.GetArchive
func (s *FileSystemStorage) GetArchive(ctx context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("archive not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return f, nil
}

// DeleteArchive implements ArtifactStorage.DeleteArchive
func (s *FileSystemStorage) DeleteArchive(ctx context.Context, key string) error {
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

// HealthCheck implements ArtifactStorage.HealthCheck
func (s *FileSystemStorage) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(s.rootDir); err != nil {
		return fmt.Errorf("storage root unavailable: %w", err)
	}
	return nil
}
