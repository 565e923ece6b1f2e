// Package storage persists uploaded files. Backends address files by a flat
// stored name; directories are never part of a name.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"eventhub/internal/config"
	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
)

// ObjectInfo describes a stored file.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Backend is durable storage for uploaded files.
type Backend interface {
	// Save writes r under name. It must not leave a partial file behind on failure.
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Open returns the file content; errors.ErrFileNotFound when absent.
	Open(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error)
	// Remove deletes name and reports whether anything was deleted.
	Remove(ctx context.Context, name string) (bool, error)
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, log logging.Logger) (Backend, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.UploadDir, log), nil
	case "minio":
		m, err := NewMinIO(cfg, log)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Driver)
	}
}

// ValidName reports whether name is a single safe path element.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

func checkName(name string) error {
	if !ValidName(name) {
		return apperrors.ErrFileNotFound
	}
	return nil
}
