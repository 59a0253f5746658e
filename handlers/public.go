package handlers

import (
	"errors"
	"io/fs"
	"mime/multipart"
	"net/http"
	"path"

	"rentalintake/auth"
	"rentalintake/models"
)

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// IndexHandler serves the application form.
func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, "index.html")
}

// pageHandler serves an admin page. Pages marked protected send visitors
// without a session to the login page.
func (h *Handler) pageHandler(name string, protected bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if protected && !h.sessions.LoggedIn(r) {
			http.Redirect(w, r, "/admin/login.html", http.StatusSeeOther)
			return
		}
		h.servePage(w, r, name)
	}
}

func (h *Handler) servePage(w http.ResponseWriter, r *http.Request, name string) {
	if h.public == nil {
		http.NotFound(w, r)
		return
	}
	data, err := fs.ReadFile(h.public, name)
	if err != nil {
		h.log.Warnw("page not found", "page", name, "error", err)
		http.NotFound(w, r)
		return
	}
	if path.Ext(name) == ".html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.Write(data)
}

// SubmitHandler accepts the multipart application form.
func (h *Handler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.cfg.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	err := r.ParseMultipartForm(32 << 20)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "validation", "upload too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "validation", "invalid form data")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["documents"]
	}
	if len(files) > h.cfg.Uploads.MaxFiles {
		respondWithError(w, http.StatusBadRequest, "validation", "too many documents")
		return
	}

	docs, err := h.uploads.SaveAll(files)
	if err != nil {
		h.log.Errorw("failed to store documents", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "persistence", Message: "failed to store documents"})
		return
	}

	app := models.NewApplication{
		FirstName: r.FormValue("firstname"),
		LastName:  r.FormValue("lastname"),
		Email:     r.FormValue("email"),
		Documents: docs,
	}
	id, err := h.engine.Submit(r.Context(), app, auth.ClientIP(r, h.cfg.Server.TrustProxy))
	if err != nil {
		if rmErr := h.uploads.Remove(docs); rmErr != nil {
			h.log.Warnw("failed to remove documents of rejected submission", "error", rmErr)
		}
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, submitResponse{
		Success: true,
		Message: "Application submitted successfully. Your reference ID is: " + id,
		ID:      id,
	})
}
