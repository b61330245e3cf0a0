// Package storage provides the host-side artifact store where project
// source trees, workspace backups, and run artifacts are staged.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// FileStore defines the interface for artifact storage operations.
// The primary implementation is disk-backed so external tools (git in
// particular) can operate on project trees directly.
type FileStore interface {
	// Put stores a file and returns its metadata.
	// Keys follow the convention:
	//   - projects/{project_id}/{path} for project source trees and backups
	//   - artifacts/{workspace_id}/{filename} for code-run artifacts
	Put(ctx context.Context, key string, reader io.Reader, opts PutOptions) (*FileInfo, error)

	// Get retrieves a file by key. Caller must close the returned reader.
	Get(ctx context.Context, key string) (io.ReadCloser, *FileInfo, error)

	// Delete removes a file by key.
	Delete(ctx context.Context, key string) error

	// List returns files matching the optional prefix.
	// Pass empty string to list all files.
	List(ctx context.Context, prefix string) ([]*FileInfo, error)

	// Exists checks if a file exists by key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetInfo returns file metadata without the content.
	GetInfo(ctx context.Context, key string) (*FileInfo, error)

	// ProjectDir returns the absolute OS path of a project's tree when the
	// store is disk-backed. ok is false for in-memory stores, where there
	// is no OS path for external tools to run in.
	ProjectDir(projectID string) (dir string, ok bool)

	// Close releases any resources held by the store.
	Close() error
}

// FileInfo contains metadata about a stored file.
type FileInfo struct {
	// Key is the unique identifier/path for the file
	Key string `json:"key"`

	// Size is the file size in bytes
	Size int64 `json:"size"`

	// ContentType is the MIME type of the file
	ContentType string `json:"content_type,omitempty"`

	// Checksum is the SHA-256 hash of the file content.
	// Populated by Put; listing and stat calls leave it empty.
	Checksum string `json:"checksum,omitempty"`

	// CreatedAt is when the file was stored
	CreatedAt time.Time `json:"created_at"`
}

// PutOptions configures file upload behavior.
type PutOptions struct {
	// ContentType is the MIME type of the file (optional, sniffed from
	// content if not set)
	ContentType string
}

// Config holds sizing limits for the artifact store.
type Config struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100 MB)
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`

	// MaxTotalBytes is the maximum total storage in bytes (default: 10 GB)
	MaxTotalBytes int64 `yaml:"max_total_bytes" json:"max_total_bytes"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:   100 * 1024 * 1024,       // 100 MB
		MaxTotalBytes: 10 * 1024 * 1024 * 1024, // 10 GB
	}
}

// ProjectPrefix returns the key prefix holding a project's source tree.
func ProjectPrefix(projectID string) string {
	return "projects/" + projectID + "/"
}

// ProjectFileKey returns the store key for one file in a project's tree.
func ProjectFileKey(projectID, relPath string) string {
	return ProjectPrefix(projectID) + strings.TrimPrefix(path.Clean(relPath), "/")
}

// ArtifactKey returns the store key for a code-run artifact.
func ArtifactKey(workspaceID, filename string) string {
	return "artifacts/" + workspaceID + "/" + filename
}
