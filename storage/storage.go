package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when a stored upload does not exist
var ErrObjectNotFound = errors.New("stored object not found")

// Storage keeps the original bytes of uploaded documents
type Storage interface {
	// Save stores an upload and returns its storage path
	Save(ctx context.Context, documentID uuid.UUID, filename string, data io.Reader) (string, error)

	// Open retrieves an upload by storage path
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes an upload by storage path
	Delete(ctx context.Context, storagePath string) error
}

// Type represents the storage backend type
type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
)

// Config holds configuration for storage
type Config struct {
	Type         Type
	LocalPath    string // For local storage
	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	AWSAccessKey string
	AWSSecretKey string
}

// New creates a storage backend based on configuration
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case TypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET is required for S3 storage")
		}
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectPath derives a unique storage path for an upload. The first two
// characters of the id shard the key space.
func objectPath(documentID uuid.UUID, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	ext := strings.ToLower(filepath.Ext(base))
	name := unsafeChars.ReplaceAllString(strings.TrimSuffix(base, filepath.Ext(base)), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	id := documentID.String()
	return fmt.Sprintf("%s/%s_%s%s", id[:2], id, name, unsafeChars.ReplaceAllString(ext, ""))
}

// contentType determines content type from filename
func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt", ".md":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
