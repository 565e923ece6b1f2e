package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
	"eventhub/internal/storage"
)

const (
	// MaxFileSize is the per-file ceiling in bytes.
	MaxFileSize int64 = 5 * 1024 * 1024
	// MaxFiles is the number of files accepted in one request.
	MaxFiles = 10
	// PublicPrefix is the URL path stored files are served under.
	PublicPrefix = "/uploads/"
)

// AllowedMimeTypes lists the accepted upload content types.
var AllowedMimeTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var errExceedsDeclaredSize = errors.New("file content exceeds declared size")

// UploadedFile is a received file waiting to be stored. Content comes from
// Buffer or, when Buffer is nil, from the temporary file at TempPath.
type UploadedFile struct {
	OriginalName string
	MimeType     string
	Size         int64
	Buffer       []byte
	TempPath     string
}

// StoredFile is the result of a successful upload.
type StoredFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// ImageCleaner removes stored images referenced by URL. Failures are logged, not returned.
type ImageCleaner interface {
	DeleteByURLs(ctx context.Context, urls []string)
}

// UploadService validates and persists uploaded files.
type UploadService interface {
	ImageCleaner
	// Upload validates and stores one file. The temp source, if any, is always removed.
	Upload(ctx context.Context, file *UploadedFile) (*StoredFile, error)
	// UploadAll stores files in order and stops at the first failure. Files
	// stored before the failure are kept; files not reached are discarded.
	UploadAll(ctx context.Context, files []*UploadedFile) ([]StoredFile, error)
	URL(storedName string) string
	Delete(ctx context.Context, storedName string) (bool, error)
	Open(ctx context.Context, storedName string) (io.ReadCloser, *storage.ObjectInfo, error)
}

type uploadService struct {
	backend storage.Backend
	log     logging.Logger
	newID   func() string
}

// NewUploadService creates an upload service on top of a storage backend.
func NewUploadService(backend storage.Backend, log logging.Logger) UploadService {
	return &uploadService{
		backend: backend,
		log:     log,
		newID:   func() string { return uuid.New().String() },
	}
}

func (s *uploadService) Upload(ctx context.Context, file *UploadedFile) (*StoredFile, error) {
	if file == nil {
		return nil, apperrors.ErrNoFile
	}
	defer s.discard(file)

	if err := validateUpload(file); err != nil {
		s.log.Warnj(log.JSON{"action": "upload_rejected", "filename": file.OriginalName, "mime_type": file.MimeType, "size": file.Size, "reason": err.Error()})
		return nil, err
	}

	name := s.newID() + "-" + baseName(file.OriginalName)

	src, err := openSource(file)
	if err != nil {
		return nil, &apperrors.UploadError{Message: "Failed to upload file: ", Cause: err}
	}
	defer src.Close()

	body := &sizeGuard{r: src, remaining: file.Size}
	if err := s.backend.Save(ctx, name, body, file.Size, file.MimeType); err != nil {
		s.log.Errorj(log.JSON{"action": "upload_failed", "filename": file.OriginalName, "error": err.Error()})
		return nil, &apperrors.UploadError{Message: "Failed to upload file: ", Cause: err}
	}

	s.log.Infoj(log.JSON{"action": "file_uploaded", "stored_name": name, "size": file.Size, "mime_type": file.MimeType})
	return &StoredFile{Filename: name, URL: s.URL(name)}, nil
}

func (s *uploadService) UploadAll(ctx context.Context, files []*UploadedFile) ([]StoredFile, error) {
	if len(files) == 0 {
		return nil, apperrors.ErrNoFile
	}

	stored := make([]StoredFile, 0, len(files))
	for i, f := range files {
		out, err := s.Upload(ctx, f)
		if err != nil {
			for _, rest := range files[i+1:] {
				s.discard(rest)
			}
			return stored, err
		}
		stored = append(stored, *out)
	}
	return stored, nil
}

func (s *uploadService) URL(storedName string) string {
	return PublicPrefix + storedName
}

func (s *uploadService) Delete(ctx context.Context, storedName string) (bool, error) {
	if !storage.ValidName(storedName) {
		return false, nil
	}
	removed, err := s.backend.Remove(ctx, storedName)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", storedName, err)
	}
	if removed {
		s.log.Infoj(log.JSON{"action": "file_deleted", "stored_name": storedName})
	}
	return removed, nil
}

func (s *uploadService) Open(ctx context.Context, storedName string) (io.ReadCloser, *storage.ObjectInfo, error) {
	if !storage.ValidName(storedName) {
		return nil, nil, apperrors.ErrFileNotFound
	}
	return s.backend.Open(ctx, storedName)
}

// DeleteByURLs removes files whose URL points into the upload store.
// External URLs are left alone.
func (s *uploadService) DeleteByURLs(ctx context.Context, urls []string) {
	for _, u := range urls {
		name, ok := StoredNameFromURL(u)
		if !ok {
			continue
		}
		if _, err := s.Delete(ctx, name); err != nil {
			s.log.Warnj(log.JSON{"action": "image_cleanup_failed", "url": u, "error": err.Error()})
		}
	}
}

// StoredNameFromURL extracts the stored name from a public upload URL.
func StoredNameFromURL(u string) (string, bool) {
	name, ok := strings.CutPrefix(u, PublicPrefix)
	if !ok || !storage.ValidName(name) {
		return "", false
	}
	return name, true
}

// discard removes the temp source once; later calls are no-ops.
func (s *uploadService) discard(file *UploadedFile) {
	if file == nil || file.TempPath == "" {
		return
	}
	path := file.TempPath
	file.TempPath = ""
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warnj(log.JSON{"action": "temp_cleanup_failed", "path": path, "error": err.Error()})
	}
}

func validateUpload(file *UploadedFile) error {
	if file.Buffer == nil && file.TempPath == "" {
		return apperrors.ErrNoFile
	}
	if !isAllowedMimeType(file.MimeType) {
		return &apperrors.UploadError{Message: fmt.Sprintf("File type %s is not allowed. Allowed types: %s",
			file.MimeType, strings.Join(AllowedMimeTypes, ", "))}
	}
	if file.Size > MaxFileSize {
		return &apperrors.UploadError{Message: fmt.Sprintf("File size %d bytes exceeds maximum allowed size of %d bytes",
			file.Size, MaxFileSize)}
	}
	return nil
}

func isAllowedMimeType(mimeType string) bool {
	for _, allowed := range AllowedMimeTypes {
		if mimeType == allowed {
			return true
		}
	}
	return false
}

func openSource(file *UploadedFile) (io.ReadCloser, error) {
	if file.Buffer != nil {
		return io.NopCloser(bytes.NewReader(file.Buffer)), nil
	}
	return os.Open(file.TempPath)
}

// baseName strips any directory part a client put into the file name.
func baseName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return "file"
	}
	return name
}

// sizeGuard fails a copy that produces more bytes than the declared size.
type sizeGuard struct {
	r         io.Reader
	remaining int64
}

func (g *sizeGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	g.remaining -= int64(n)
	if g.remaining < 0 {
		return n, errExceedsDeclaredSize
	}
	return n, err
}
