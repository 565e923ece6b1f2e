package handler

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"eventhub/internal/errors"
	"eventhub/internal/service"
)

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// stager copies multipart file parts to temp files handed over to the upload pipeline.
type stager struct {
	tempDir string
}

// stage returns one UploadedFile per part. On error nothing staged is left behind.
func (s stager) stage(headers []*multipart.FileHeader) ([]*service.UploadedFile, error) {
	if len(headers) > service.MaxFiles {
		return nil, &errors.UploadError{Message: fmt.Sprintf("Too many files. Maximum %d files allowed", service.MaxFiles)}
	}

	files := make([]*service.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := s.stageOne(fh)
		if err != nil {
			discardStaged(files)
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func (s stager) stageOne(fh *multipart.FileHeader) (*service.UploadedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, &errors.UploadError{Message: "Failed to upload file: ", Cause: err}
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.tempDir, "eventhub-upload-*")
	if err != nil {
		return nil, &errors.UploadError{Message: "Failed to upload file: ", Cause: err}
	}
	_, copyErr := io.Copy(tmp, src)
	if closeErr := tmp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmp.Name())
		return nil, &errors.UploadError{Message: "Failed to upload file: ", Cause: copyErr}
	}

	mimeType := partContentType(fh)
	if mimeType == "" {
		if detected, err := mimetype.DetectFile(tmp.Name()); err == nil {
			mimeType, _, _ = strings.Cut(detected.String(), ";")
		}
	}

	return &service.UploadedFile{
		OriginalName: fh.Filename,
		MimeType:     mimeType,
		Size:         fh.Size,
		TempPath:     tmp.Name(),
	}, nil
}

// partContentType returns the declared media type, or "" when the client sent none useful.
func partContentType(fh *multipart.FileHeader) string {
	mediaType, _, err := mime.ParseMediaType(fh.Header.Get(echo.HeaderContentType))
	if err != nil || mediaType == echo.MIMEOctetStream {
		return ""
	}
	return mediaType
}

func discardStaged(files []*service.UploadedFile) {
	for _, f := range files {
		if f.TempPath != "" {
			_ = os.Remove(f.TempPath)
		}
	}
}

func formValue(form *multipart.Form, key string) *string {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}
