package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"rentalintake/metrics"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey struct{}

// AdminFromContext returns the admin identity set by Guard.
func AdminFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(ctxKey{}).(string)
	return username, ok && username != ""
}

// Guard rejects requests without a valid admin session with a 403 JSON payload.
// It never redirects.
func (h *Handler) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := h.sessions.Validate(w, r)
		if !ok {
			respondWithError(w, http.StatusForbidden, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, username)))
	})
}

// requestLogger logs one line per request and counts it.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		h.log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// noStore disables caching of admin responses.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
