package handlers

import (
	"errors"
	"net/http"
	"os"

	"rentalintake/storage"

	"github.com/go-chi/chi/v5"
)

// UploadHandler streams a stored document to an authenticated admin.
func (h *Handler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")

	f, err := h.uploads.Open(name)
	if errors.Is(err, storage.ErrInvalidName) || errors.Is(err, os.ErrNotExist) {
		respondWithError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		h.log.Errorw("failed to open document", "name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal", "failed to open document")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		respondWithError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", "attachment")
	http.ServeContent(w, r, "", info.ModTime(), f)
}
