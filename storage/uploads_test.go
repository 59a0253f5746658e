package storage

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"rentalintake/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileHeaders(t *testing.T, files map[string]string) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("documents", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["documents"]
}

func TestSaveAndOpen(t *testing.T) {
	u, err := NewUploads(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	docs, err := u.SaveAll(fileHeaders(t, map[string]string{"payslip.pdf": "%PDF-1.4"}))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "payslip.pdf", docs[0].OriginalName)
	assert.NotEqual(t, "payslip.pdf", docs[0].StoredPath)

	f, err := u.Open(docs[0].StoredPath)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestOpenRejectsTraversal(t *testing.T) {
	u, err := NewUploads(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../secret", "a/b", `..\x`, ".hidden", ".."} {
		_, err := u.Open(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestOpenMissing(t *testing.T) {
	u, err := NewUploads(t.TempDir())
	require.NoError(t, err)

	_, err = u.Open("0b7f1a2c")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRemove(t *testing.T) {
	u, err := NewUploads(t.TempDir())
	require.NoError(t, err)

	docs, err := u.SaveAll(fileHeaders(t, map[string]string{"a.txt": "a", "b.txt": "b"}))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	missing := append(docs, models.Document{StoredPath: "gone"})
	require.NoError(t, u.Remove(missing))

	entries, err := os.ReadDir(u.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Error(t, u.Remove(models.Documents{{StoredPath: "../escape"}}))
}
