package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"rentalintake/logger"
	"rentalintake/models"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func respondMessage(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: message})
}

func respondWithError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, errorResponse{Success: false, Error: kind, Message: message})
}

// respondError maps err onto a status code and a structured payload.
func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	}
	respondWithError(w, status, models.Kind(err), messageFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	if errors.Is(err, models.ErrInvalidCredentials) {
		return "old password is incorrect"
	}
	if errors.Is(err, models.ErrPersistence) {
		return "Database error: " + err.Error()
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
