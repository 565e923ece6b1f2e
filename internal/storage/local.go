package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/gommon/log"

	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
)

// Local stores files in a directory on the local filesystem.
type Local struct {
	root string
	log  logging.Logger
}

// NewLocal returns a backend rooted at dir. The directory is created lazily.
func NewLocal(dir string, log logging.Logger) *Local {
	return &Local{root: dir, log: log}
}

// Root returns the storage directory.
func (l *Local) Root() string {
	return l.root
}

// Path returns the on-disk location of name.
func (l *Local) Path(name string) string {
	return filepath.Join(l.root, name)
}

func (l *Local) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	if err := checkName(name); err != nil {
		return fmt.Errorf("invalid file name %q", name)
	}
	// Concurrent creators may race here; MkdirAll treats an existing directory as success.
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	dst := l.Path(name)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	written, copyErr := io.Copy(f, contextReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dst)
		l.log.Errorj(log.JSON{"action": "local_save_failed", "name": name, "error": copyErr.Error()})
		return copyErr
	}

	l.log.Infoj(log.JSON{"action": "local_save_success", "name": name, "size": written, "content_type": contentType})
	return nil
}

func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	if err := checkName(name); err != nil {
		return nil, nil, err
	}
	path := l.Path(name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperrors.ErrFileNotFound
		}
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, nil, apperrors.ErrFileNotFound
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		if mt, err := mimetype.DetectFile(path); err == nil {
			contentType = mt.String()
		} else {
			contentType = "application/octet-stream"
		}
	}

	return f, &ObjectInfo{Name: name, Size: st.Size(), ContentType: contentType, ModTime: st.ModTime()}, nil
}

func (l *Local) Remove(_ context.Context, name string) (bool, error) {
	if !ValidName(name) {
		return false, nil
	}
	err := os.Remove(l.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	l.log.Infoj(log.JSON{"action": "local_remove_success", "name": name})
	return true, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
