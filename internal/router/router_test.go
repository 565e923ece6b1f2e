package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/auth"
	"eventhub/internal/config"
	"eventhub/internal/db"
	apperrors "eventhub/internal/errors"
	"eventhub/internal/handler"
	"eventhub/internal/logging"
	"eventhub/internal/middleware"
	"eventhub/internal/model"
	"eventhub/internal/repository"
	"eventhub/internal/service"
	"eventhub/internal/storage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testServer struct {
	e         *echo.Echo
	uploadDir string
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	gormDB, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger := logging.Discard()
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	tempDir := t.TempDir()

	userRepo := repository.NewUserRepository(gormDB)
	jwtService := auth.NewJWTService("router-test-secret", time.Hour)
	uploads := service.NewUploadService(storage.NewLocal(uploadDir, logger), logger)
	events := service.NewEventService(repository.NewEventRepository(gormDB), nil, uploads, logger)

	cfg := &config.Config{AllowedOrigins: []string{"*"}, BodyLimit: "60M"}

	e := echo.New()
	Register(e, cfg, Dependencies{
		Auth: middleware.JWT(jwtService),
	}, Handlers{
		Auth:   handler.NewAuthHandler(service.NewAuthService(userRepo, jwtService, logger)),
		User:   handler.NewUserHandler(service.NewUserService(userRepo, nil, uploads, logger)),
		Event:  handler.NewEventHandler(events, uploads, tempDir),
		Upload: handler.NewUploadHandler(uploads, tempDir),
		Health: handler.NewHealthHandler(gormDB, nil),
	})

	return &testServer{e: e, uploadDir: uploadDir}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

type part struct {
	field, filename, contentType string
	content                      []byte
}

func (s *testServer) multipart(t *testing.T, method, path, token string, values map[string]string, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range values {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) register(t *testing.T, username string) service.AuthResult {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[service.AuthResult](t, rec)
}

func eventBody(title string) map[string]interface{} {
	return map[string]interface{}{
		"title":       title,
		"startDate":   "2026-07-10T18:00:00Z",
		"endDate":     "2026-07-10T22:00:00Z",
		"totalGuests": 50,
		"category":    "Music",
	}
}

func TestAuthFlow(t *testing.T) {
	s := setupServer(t)

	alice := s.register(t, "alice")
	assert.NotEmpty(t, alice.AccessToken)
	assert.Equal(t, "alice", alice.User.Username)
	assert.Equal(t, "alice@example.com", alice.User.Email)

	rec := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice2", "email": "alice@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "USER_ALREADY_EXISTS", decode[apperrors.ErrorResponse](t, rec).Code)

	byName := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "password123"})
	byEmail := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, byName.Code)
	require.Equal(t, http.StatusOK, byEmail.Code)
	assert.Equal(t, decode[service.AuthResult](t, byName).User, decode[service.AuthResult](t, byEmail).User)

	for _, creds := range []map[string]string{
		{"username": "alice", "password": "wrong-password"},
		{"username": "nobody", "password": "password123"},
	} {
		rec := s.do(t, http.MethodPost, "/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", decode[apperrors.ErrorResponse](t, rec).Code)
	}

	rec = s.do(t, http.MethodGet, "/auth/profile", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice.User, decode[model.UserSummary](t, rec))

	rec = s.do(t, http.MethodGet, "/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "x", "email": "not-an-email", "password": "123"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[apperrors.ErrorResponse](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	fields := make([]string, 0, len(body.Details))
	for _, d := range body.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"email", "password"}, fields)
}

func TestUserUpdateAndDelete(t *testing.T) {
	s := setupServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")

	rec := s.do(t, http.MethodPut, fmt.Sprintf("/auth/update/%d", alice.User.ID), bob.AccessToken, map[string]string{"firstName": "Mallory"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/auth/update/%d", alice.User.ID), alice.AccessToken, map[string]string{"firstName": "Alice", "password": "a-new-password"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[handler.UserResponse](t, rec)
	require.NotNil(t, updated.FirstName)
	assert.Equal(t, "Alice", *updated.FirstName)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "a-new-password"})
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, patch := range []map[string]string{
		{"username": "bob"},
		{"email": "bob@example.com"},
		{"username": "alice", "email": "bob@example.com"},
	} {
		rec = s.do(t, http.MethodPut, fmt.Sprintf("/auth/update/%d", alice.User.ID), alice.AccessToken, patch)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Equal(t, "USER_ALREADY_EXISTS", decode[apperrors.ErrorResponse](t, rec).Code)
	}

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/auth/update/%d", alice.User.ID), alice.AccessToken, map[string]string{"email": "alice@work.example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alice@work.example.com", decode[handler.UserResponse](t, rec).Email)

	rec = s.do(t, http.MethodPost, "/events", alice.AccessToken, eventBody("Alice's party"))
	require.Equal(t, http.StatusCreated, rec.Code)
	event := decode[model.Event](t, rec)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/auth/delete/%d", alice.User.ID), alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/events/%d", event.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/auth/delete/9999", bob.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventLifecycle(t *testing.T) {
	s := setupServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")

	rec := s.do(t, http.MethodPost, "/events", "", eventBody("anonymous"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/events", alice.AccessToken, eventBody("Jazz Night"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[model.Event](t, rec)
	require.NotNil(t, event.Owner)
	assert.Equal(t, alice.User, *event.Owner)
	assert.Equal(t, []string{}, event.Images)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/events/%d", event.ID), bob.AccessToken, map[string]string{"title": "hijacked"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "EVENT_NOT_FOUND", decode[apperrors.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/events/%d", event.ID), bob.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/events/%d", event.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jazz Night", decode[model.Event](t, rec).Title)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/events/%d", event.ID), alice.AccessToken, map[string]interface{}{"totalGuests": 120})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Event](t, rec)
	assert.Equal(t, 120, updated.TotalGuests)
	assert.Equal(t, "Jazz Night", updated.Title)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/events/%d", event.ID), alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event deleted successfully", decode[handler.MessageResponse](t, rec).Message)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/events/%d", event.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEventValidation(t *testing.T) {
	s := setupServer(t)
	alice := s.register(t, "alice")

	body := eventBody("")
	body["totalGuests"] = 0
	rec := s.do(t, http.MethodPost, "/events", alice.AccessToken, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[apperrors.ErrorResponse](t, rec).Code)

	body = eventBody("Backwards")
	body["endDate"] = "2026-07-09T18:00:00Z"
	rec = s.do(t, http.MethodPost, "/events", alice.AccessToken, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[apperrors.ErrorResponse](t, rec)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "endDate", resp.Details[0].Field)
}

func TestListEvents(t *testing.T) {
	s := setupServer(t)
	alice := s.register(t, "alice")

	for i, title := range []string{"Rock Concert", "Chess Evening", "Music Quiz"} {
		body := eventBody(title)
		body["startDate"] = fmt.Sprintf("2026-07-%02dT18:00:00Z", 10-i)
		body["endDate"] = fmt.Sprintf("2026-07-%02dT22:00:00Z", 10-i)
		body["category"] = []string{"Music", "Games", "Games"}[i]
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/events", alice.AccessToken, body).Code)
	}

	rec := s.do(t, http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[service.EventPage](t, rec)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, "Music Quiz", page.Events[0].Title)

	rec = s.do(t, http.MethodGet, "/events?search=MUSIC&sortBy=title&sortOrder=desc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[service.EventPage](t, rec)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "Rock Concert", page.Events[0].Title)
	assert.Equal(t, "Music Quiz", page.Events[1].Title)

	rec = s.do(t, http.MethodGet, "/events?category=Games&limit=1&page=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[service.EventPage](t, rec)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Events, 1)
	assert.Equal(t, "Chess Evening", page.Events[0].Title)

	for _, q := range []string{"sortBy=password", "limit=500", "page=0", "startDate=yesterday", "minGuests=lots", "page=9223372036854775807"} {
		rec := s.do(t, http.MethodGet, "/events?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "VALIDATION_ERROR", decode[apperrors.ErrorResponse](t, rec).Code, q)
	}
}

func TestMultipartEventWithImages(t *testing.T) {
	s := setupServer(t)
	alice := s.register(t, "alice")

	rec := s.multipart(t, http.MethodPost, "/events", alice.AccessToken, map[string]string{
		"title":       "Gallery Opening",
		"startDate":   "2026-09-01T18:00:00Z",
		"endDate":     "2026-09-01T21:00:00Z",
		"totalGuests": "30",
		"category":    "Art",
		"price":       "12.50",
	}, part{field: "images", filename: "poster.png", content: pngBytes})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	event := decode[model.Event](t, rec)
	assert.Equal(t, 30, event.TotalGuests)
	assert.Equal(t, "12.5", event.Price.Decimal.String())
	require.Len(t, event.Images, 1)
	assert.Regexp(t, `^/uploads/[0-9a-f-]{36}-poster\.png$`, event.Images[0])

	rec = s.do(t, http.MethodGet, event.Images[0], "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.Equal(t, "DENY", rec.Header().Get(echo.HeaderXFrameOptions))

	// Replacing the images removes the old file from the store.
	rec = s.multipart(t, http.MethodPut, fmt.Sprintf("/events/%d", event.ID), alice.AccessToken, nil,
		part{field: "images", filename: "new.gif", contentType: "image/gif", content: []byte("GIF89a")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Event](t, rec)
	require.Len(t, updated.Images, 1)
	assert.Contains(t, updated.Images[0], "-new.gif")

	rec = s.do(t, http.MethodGet, event.Images[0], "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMultipartEventImageLimitCountsLinksAndFiles(t *testing.T) {
	s := setupServer(t)
	alice := s.register(t, "alice")

	files := make([]part, service.MaxFiles)
	for i := range files {
		files[i] = part{field: "images", filename: fmt.Sprintf("p%d.png", i), contentType: "image/png", content: pngBytes}
	}
	values := map[string]string{
		"title":       "Crowded",
		"startDate":   "2026-09-01T18:00:00Z",
		"endDate":     "2026-09-01T21:00:00Z",
		"totalGuests": "30",
		"category":    "Art",
		"images":      "https://cdn.example.com/linked.png",
	}

	rec := s.multipart(t, http.MethodPost, "/events", alice.AccessToken, values, files...)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "VALIDATION_ERROR", decode[apperrors.ErrorResponse](t, rec).Code)

	delete(values, "images")
	rec = s.multipart(t, http.MethodPost, "/events", alice.AccessToken, values, files[:1]...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[model.Event](t, rec)

	rec = s.multipart(t, http.MethodPut, fmt.Sprintf("/events/%d", event.ID), alice.AccessToken,
		map[string]string{"images": "https://cdn.example.com/linked.png"}, files...)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// Only the one accepted image reached the store.
	stored, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestUploads(t *testing.T) {
	s := setupServer(t)
	alice := s.register(t, "alice")

	rec := s.multipart(t, http.MethodPost, "/uploads", alice.AccessToken, nil,
		part{field: "files", filename: "a.png", contentType: "image/png", content: pngBytes},
		part{field: "files", filename: "b.webp", contentType: "image/webp", content: []byte("RIFF0000WEBP")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[handler.UploadResponse](t, rec)
	assert.Equal(t, "Files uploaded successfully", resp.Message)
	require.Len(t, resp.Files, 2)
	for _, f := range resp.Files {
		assert.Equal(t, "/uploads/"+f.Filename, f.URL)
	}

	rec = s.multipart(t, http.MethodPost, "/uploads", alice.AccessToken, nil,
		part{field: "files", filename: "doc.pdf", contentType: "application/pdf", content: []byte("%PDF-1.4")})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[apperrors.ErrorResponse](t, rec).Error, "File type application/pdf is not allowed")

	rec = s.multipart(t, http.MethodPost, "/uploads", alice.AccessToken, map[string]string{"note": "no files"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NO_FILE", decode[apperrors.ErrorResponse](t, rec).Code)

	rec = s.multipart(t, http.MethodPost, "/uploads", "", nil,
		part{field: "files", filename: "a.png", contentType: "image/png", content: pngBytes})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	parts := make([]part, 11)
	for i := range parts {
		parts[i] = part{field: "files", filename: fmt.Sprintf("%d.png", i), contentType: "image/png", content: pngBytes}
	}
	rec = s.multipart(t, http.MethodPost, "/uploads", alice.AccessToken, nil, parts...)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[apperrors.ErrorResponse](t, rec).Error, "Too many files")

	rec = s.do(t, http.MethodGet, "/uploads/does-not-exist.png", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, handler.HealthResponse{Status: "ok", Database: "up", Cache: "disabled"}, decode[handler.HealthResponse](t, rec))
}
