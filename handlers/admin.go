package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"rentalintake/auth"
	"rentalintake/database"
	"rentalintake/metrics"
	"rentalintake/models"
	"rentalintake/notify"

	"github.com/go-chi/chi/v5"
)

const maxJSONBody = 1 << 20

// Login failure codes carried to the login page.
const (
	loginErrDB      = "DbError"
	loginErrNoUser  = "NoUser"
	loginErrBadPass = "BadPass"
)

func loginRedirect(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/admin/login.html?error="+url.QueryEscape(code), http.StatusSeeOther)
}

// LoginHandler checks the submitted credentials and records the attempt.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")
	ip := auth.ClientIP(r, h.cfg.Server.TrustProxy)
	ctx := r.Context()

	ok, err := h.creds.Verify(ctx, username, password)
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.recordLogin(r, username, false, ip)
		loginRedirect(w, r, loginErrNoUser)
		return
	case err != nil:
		h.log.Errorw("login lookup failed", "username", username, "source_ip", ip, "error", err)
		h.recordLogin(r, username, false, ip)
		loginRedirect(w, r, loginErrDB)
		return
	case !ok:
		h.recordLogin(r, username, false, ip)
		loginRedirect(w, r, loginErrBadPass)
		return
	}

	if err := h.sessions.Login(w, r, username); err != nil {
		h.log.Errorw("failed to create session", "username", username, "error", err)
		loginRedirect(w, r, loginErrDB)
		return
	}
	h.recordLogin(r, username, true, ip)
	http.Redirect(w, r, "/admin/dashboard.html", http.StatusSeeOther)
}

func (h *Handler) recordLogin(r *http.Request, username string, success bool, ip string) {
	metrics.LoginAttempts.WithLabelValues(metrics.Outcome(success)).Inc()
	if success {
		h.log.Infow("admin login", "username", username, "source_ip", ip)
	} else {
		h.log.Warnw("admin login failed", "username", username, "source_ip", ip)
	}
	if err := h.attempts.Record(r.Context(), username, success, ip); err != nil {
		h.log.Errorw("failed to record login attempt", "error", err)
	}
}

// LogoutHandler ends the session and returns to the login page.
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(w, r); err != nil {
		h.log.Warnw("failed to destroy session", "error", err)
	}
	http.Redirect(w, r, "/admin/login.html", http.StatusSeeOther)
}

// StatusHandler reports whether the caller holds a valid session.
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"loggedIn": h.sessions.LoggedIn(r)})
}

// ListApplicationsHandler lists applications filtered by ?status= and ordered by ?sortBy=.
func (h *Handler) ListApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	apps, err := h.apps.List(r.Context(), database.ListFilter{
		Status: q.Get("status"),
		Sort:   database.ParseSort(q.Get("sortBy")),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, apps)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatusHandler accepts or rejects an application.
func (h *Handler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeRequest(w, r, &req, func(f url.Values) { req.Status = f.Get("status") }); err != nil {
		respondError(w, err)
		return
	}

	if _, err := h.engine.Transition(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, "Status updated and email sent")
}

// DeleteApplicationHandler hard-deletes an application.
func (h *Handler) DeleteApplicationHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, "Application deleted successfully")
}

// CountHandler returns the number of stored applications.
func (h *Handler) CountHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.apps.Count(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": n})
}

// GetTemplatesHandler returns the three email templates.
func (h *Handler) GetTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.templates.Get())
}

// UpdateTemplatesHandler replaces all three templates.
func (h *Handler) UpdateTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	var t models.EmailTemplates
	if isJSON(r) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "validation", "invalid request body")
			return
		}
		if t, err = notify.ParseTemplates(raw); err != nil {
			respondError(w, err)
			return
		}
	} else {
		t = models.EmailTemplates{
			ThankYou: r.FormValue("thankYou"),
			Accepted: r.FormValue("accepted"),
			Rejected: r.FormValue("rejected"),
		}
	}

	if err := h.templates.Update(t); err != nil {
		respondError(w, err)
		return
	}
	h.log.Infow("email templates updated")
	respondMessage(w, "Templates updated")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePasswordHandler rotates the password of the logged in admin.
func (h *Handler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	username, _ := AdminFromContext(r.Context())

	var req changePasswordRequest
	err := decodeRequest(w, r, &req, func(f url.Values) {
		req.OldPassword = f.Get("oldPassword")
		req.NewPassword = f.Get("newPassword")
	})
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.creds.ChangePassword(r.Context(), username, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.log.Warnw("password change rejected", "username", username)
		}
		respondError(w, err)
		return
	}
	h.log.Infow("admin password changed", "username", username)
	respondMessage(w, "Password changed successfully")
}

func (h *Handler) pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	if size <= 0 {
		size = h.cfg.Audit.PageSize
	}
	return page, size
}

// FailedLoginsHandler pages through failed login attempts, newest first.
func (h *Handler) FailedLoginsHandler(w http.ResponseWriter, r *http.Request) {
	page, size := h.pageParams(r)
	result, err := h.attempts.ListFailed(r.Context(), page, size)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ClearFailedLoginsHandler deletes failed attempts and reports how many
// attempts, all successful, remain on record.
func (h *Handler) ClearFailedLoginsHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.attempts.DeleteFailed(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	remaining, err := h.attempts.CountAll(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	username, _ := AdminFromContext(r.Context())
	h.log.Infow("failed login log cleared", "username", username, "deleted", n, "remaining", remaining)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Failed logins cleared",
		"deleted":   n,
		"remaining": remaining,
	})
}

// EmailLogsHandler pages through notification attempts, newest first.
func (h *Handler) EmailLogsHandler(w http.ResponseWriter, r *http.Request) {
	page, size := h.pageParams(r)
	result, err := h.emailLogs.List(r.Context(), page, size)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// decodeRequest reads a JSON body into dst, or calls fromForm with the parsed
// form for urlencoded and multipart requests.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}, fromForm func(url.Values)) error {
	if isJSON(r) {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
		if err := dec.Decode(dst); err != nil {
			return models.Validation("invalid JSON body")
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return models.Validation("invalid form data")
	}
	fromForm(r.Form)
	return nil
}
