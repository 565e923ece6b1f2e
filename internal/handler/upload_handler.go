package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"eventhub/internal/errors"
	"eventhub/internal/service"
)

// UploadHandler accepts image uploads and serves stored files.
type UploadHandler struct {
	uploads service.UploadService
	stager  stager
}

// NewUploadHandler creates an upload handler staging parts in tempDir.
func NewUploadHandler(uploads service.UploadService, tempDir string) *UploadHandler {
	return &UploadHandler{uploads: uploads, stager: stager{tempDir: tempDir}}
}

// UploadResponse lists the stored files.
type UploadResponse struct {
	Files   []service.StoredFile `json:"files"`
	Message string               `json:"message"`
}

// Upload godoc
// @Summary Upload images
// @Description Up to 10 files per request, 5 MiB each. JPEG, PNG, GIF and WebP only.
// @Tags uploads
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param files formData file true "Image files"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /uploads [post]
func (h *UploadHandler) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(errors.ErrNoFile)
	}
	defer form.RemoveAll()

	headers := form.File["files"]
	if len(headers) == 0 {
		return respondError(errors.ErrNoFile)
	}

	files, err := h.stager.stage(headers)
	if err != nil {
		return respondError(err)
	}
	stored, err := h.uploads.UploadAll(c.Request().Context(), files)
	if err != nil {
		return respondError(err)
	}

	return c.JSON(http.StatusCreated, UploadResponse{
		Files:   stored,
		Message: "Files uploaded successfully",
	})
}

// Serve godoc
// @Summary Download a stored file
// @Tags uploads
// @Produce octet-stream
// @Param name path string true "Stored file name"
// @Success 200 {file} file
// @Failure 404 {object} errors.ErrorResponse
// @Router /uploads/{name} [get]
func (h *UploadHandler) Serve(c echo.Context) error {
	rc, info, err := h.uploads.Open(c.Request().Context(), c.Param("*"))
	if err != nil {
		return respondError(err)
	}
	defer rc.Close()

	res := c.Response()
	if info.ContentType != "" {
		res.Header().Set(echo.HeaderContentType, info.ContentType)
	}
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(res, c.Request(), info.Name, info.ModTime, rs)
		return nil
	}

	res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	return c.Stream(http.StatusOK, info.ContentType, rc)
}
