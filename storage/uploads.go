package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"rentalintake/models"

	"github.com/google/uuid"
)

// ErrInvalidName is returned for stored names that could escape the upload directory.
var ErrInvalidName = errors.New("invalid document name")

// Uploads stores applicant documents on the local filesystem under generated names.
type Uploads struct {
	dir string
}

func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Dir returns the directory files are stored in.
func (u *Uploads) Dir() string {
	return u.dir
}

// Save copies an uploaded file into the store. The returned document keeps the
// client's file name for display only.
func (u *Uploads) Save(file *multipart.FileHeader) (models.Document, error) {
	src, err := file.Open()
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	name := uuid.NewString()
	dst, err := os.OpenFile(filepath.Join(u.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return models.Document{}, fmt.Errorf("failed to save file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return models.Document{}, fmt.Errorf("failed to save file: %w", err)
	}

	return models.Document{StoredPath: name, OriginalName: filepath.Base(file.Filename)}, nil
}

// SaveAll stores every file. If one fails the ones already written are removed.
func (u *Uploads) SaveAll(files []*multipart.FileHeader) (models.Documents, error) {
	docs := make(models.Documents, 0, len(files))
	for _, fh := range files {
		doc, err := u.Save(fh)
		if err != nil {
			u.Remove(docs)
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (u *Uploads) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	return filepath.Join(u.dir, name), nil
}

// Open returns the stored file called name.
func (u *Uploads) Open(name string) (*os.File, error) {
	p, err := u.path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Remove deletes stored documents. Missing files are ignored; the first other
// error is returned after all removals were attempted.
func (u *Uploads) Remove(docs models.Documents) error {
	var first error
	for _, d := range docs {
		p, err := u.path(d.StoredPath)
		if err == nil {
			err = os.Remove(p)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) && first == nil {
			first = fmt.Errorf("remove %s: %w", d.StoredPath, err)
		}
	}
	return first
}
