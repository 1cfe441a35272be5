// Package storage provides artifact storage backends for plugin archives.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// ArtifactStorage defines the interface for storing plugin archives
type ArtifactStorage interface {
	// PutArchive stores a plugin archive and returns its storage key and
	// SHA-256 checksum
	PutArchive(ctx context.Context, pluginID, version string, data io.Reader) (key string, checksum string, size int64, err error)

	// GetArchive retrieves a plugin archive by storage key
	GetArchive(ctx context.Context, key string) (io.ReadCloser, error)

	// DeleteArchive deletes a plugin archive
	DeleteArchive(ctx context.Context, key string) error

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error
}

// Config for the artifact storage backend
type Config struct {
	Type string // "filesystem" or "s3"

	// Filesystem config
	FilesystemRoot string

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:           "filesystem",
		FilesystemRoot: "/var/lib/plugmart/artifacts",
		S3Region:       "us-east-1",
	}
}

// New creates the artifact storage backend described by cfg
func New(ctx context.Context, cfg Config) (ArtifactStorage, error) {
	switch cfg.Type {
	case "filesystem":
		return NewFileSystemStorage(cfg.FilesystemRoot)
	case "s3":
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// archiveKey builds the canonical storage key for a plugin version archive
func archiveKey(pluginID, version string) string {
	return fmt.Sprintf("plugins/%s/%s/archive.jar", pluginID, version)
}

// checksumHex returns the hex-encoded SHA-256 of data
func checksumHex(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
