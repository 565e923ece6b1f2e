package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
	"eventhub/internal/storage"
)

func newUploadService(t *testing.T) (*uploadService, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "uploads")
	svc := NewUploadService(storage.NewLocal(root, logging.Discard()), logging.Discard()).(*uploadService)
	svc.newID = func() string { return "0000" }
	return svc, root
}

func stage(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-*")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploadService_URL(t *testing.T) {
	svc, _ := newUploadService(t)
	assert.Equal(t, "/uploads/abc-photo.png", svc.URL("abc-photo.png"))
}

func TestUploadService_UploadFromBuffer(t *testing.T) {
	svc, root := newUploadService(t)

	out, err := svc.Upload(context.Background(), &UploadedFile{
		OriginalName: "photo.png",
		MimeType:     "image/png",
		Size:         4,
		Buffer:       []byte("\x89PNG"),
	})

	require.NoError(t, err)
	assert.Equal(t, "0000-photo.png", out.Filename)
	assert.Equal(t, "/uploads/0000-photo.png", out.URL)
	assert.Equal(t, []string{"0000-photo.png"}, listDir(t, root))
}

func TestUploadService_UploadFromTempPathRemovesSource(t *testing.T) {
	svc, root := newUploadService(t)
	tmp := stage(t, "GIF89a")
	file := &UploadedFile{OriginalName: "../../etc/anim.gif", MimeType: "image/gif", Size: 6, TempPath: tmp}

	out, err := svc.Upload(context.Background(), file)

	require.NoError(t, err)
	assert.Equal(t, "0000-anim.gif", out.Filename)
	assert.NoFileExists(t, tmp)
	assert.Empty(t, file.TempPath)
	data, err := os.ReadFile(filepath.Join(root, out.Filename))
	require.NoError(t, err)
	assert.Equal(t, "GIF89a", string(data))
}

func TestUploadService_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		file    func(tmp string) *UploadedFile
		wantErr string
	}{
		{
			name: "disallowed type",
			file: func(tmp string) *UploadedFile {
				return &UploadedFile{OriginalName: "doc.pdf", MimeType: "application/pdf", Size: 5, TempPath: tmp}
			},
			wantErr: "File type application/pdf is not allowed. Allowed types: image/jpeg, image/png, image/gif, image/webp",
		},
		{
			name: "too large",
			file: func(tmp string) *UploadedFile {
				return &UploadedFile{OriginalName: "big.jpg", MimeType: "image/jpeg", Size: 6_000_000, TempPath: tmp}
			},
			wantErr: "File size 6000000 bytes exceeds maximum allowed size of 5242880 bytes",
		},
		{
			name: "content longer than declared",
			file: func(tmp string) *UploadedFile {
				return &UploadedFile{OriginalName: "liar.png", MimeType: "image/png", Size: 2, TempPath: tmp}
			},
			wantErr: "Failed to upload file: file content exceeds declared size",
		},
		{
			name: "source vanished",
			file: func(tmp string) *UploadedFile {
				require.NoError(t, os.Remove(tmp))
				return &UploadedFile{OriginalName: "gone.png", MimeType: "image/png", Size: 5, TempPath: tmp}
			},
			wantErr: "Failed to upload file: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, root := newUploadService(t)
			tmp := stage(t, "%PDF-")

			out, err := svc.Upload(context.Background(), tt.file(tmp))

			var uerr *apperrors.UploadError
			require.ErrorAs(t, err, &uerr)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, out)
			assert.NoFileExists(t, tmp)
			assert.Empty(t, listDir(t, root))
		})
	}
}

func TestUploadService_NoFile(t *testing.T) {
	svc, _ := newUploadService(t)

	_, err := svc.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrNoFile)

	_, err = svc.UploadAll(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrNoFile)
}

func TestUploadService_UploadAllStopsAtFirstFailure(t *testing.T) {
	svc, root := newUploadService(t)
	ids := []string{"a", "b", "c"}
	svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	third := stage(t, "RIFF")
	files := []*UploadedFile{
		{OriginalName: "one.png", MimeType: "image/png", Size: 3, Buffer: []byte("one")},
		{OriginalName: "two.pdf", MimeType: "application/pdf", Size: 3, Buffer: []byte("two")},
		{OriginalName: "three.webp", MimeType: "image/webp", Size: 4, TempPath: third},
	}

	stored, err := svc.UploadAll(context.Background(), files)

	var uerr *apperrors.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, []StoredFile{{Filename: "a-one.png", URL: "/uploads/a-one.png"}}, stored)
	assert.Equal(t, []string{"a-one.png"}, listDir(t, root))
	assert.NoFileExists(t, third)
}

func TestUploadService_Delete(t *testing.T) {
	svc, _ := newUploadService(t)
	ctx := context.Background()

	removed, err := svc.Delete(ctx, "missing.png")
	require.NoError(t, err)
	assert.False(t, removed)

	out, err := svc.Upload(ctx, &UploadedFile{OriginalName: "x.png", MimeType: "image/png", Size: 1, Buffer: []byte("x")})
	require.NoError(t, err)

	removed, err = svc.Delete(ctx, out.Filename)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.Delete(ctx, out.Filename)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = svc.Delete(ctx, "../secret")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestUploadService_DeleteByURLsSkipsForeignURLs(t *testing.T) {
	svc, root := newUploadService(t)
	ctx := context.Background()

	out, err := svc.Upload(ctx, &UploadedFile{OriginalName: "x.png", MimeType: "image/png", Size: 1, Buffer: []byte("x")})
	require.NoError(t, err)

	svc.DeleteByURLs(ctx, []string{"https://cdn.example.com/uploads/x.png", out.URL, "/uploads/../etc/passwd"})
	assert.Empty(t, listDir(t, root))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "photo.png", baseName("photo.png"))
	assert.Equal(t, "passwd", baseName("../../etc/passwd"))
	assert.Equal(t, "y.png", baseName(`C:\x\y.png`))
	assert.Equal(t, "file", baseName(".."))
}
