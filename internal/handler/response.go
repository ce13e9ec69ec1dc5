package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"verification-service/internal/service"
	"verification-service/internal/util"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			util.Error("Failed to encode response", util.ErrorField(err))
		}
	}
}

func respondWithError(w http.ResponseWriter, err error) {
	status := getStatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal detail stays in the logs
		util.Error("Request failed", util.ErrorField(err))
		message = "internal server error"
	}
	respondWithJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrExpired),
		errors.Is(err, service.ErrCodeMismatch),
		errors.Is(err, service.ErrAttemptsExceeded):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrDependencyFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
