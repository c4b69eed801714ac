package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/group17/smartchill/internal/registry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeInternal   = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeStoreError maps registry sentinel errors onto HTTP status codes.
//
// Not-found conditions map to 404, conflicts to 409, validation failures
// to 400. A snapshot write failure means the mutation succeeded in memory
// but did not persist, which the client should treat as a server fault.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound),
		errors.Is(err, registry.ErrUserNotFound),
		errors.Is(err, registry.ErrServiceNotFound),
		errors.Is(err, registry.ErrModelNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, registry.ErrDeviceAlreadyAssigned),
		errors.Is(err, registry.ErrDuplicateUser),
		errors.Is(err, registry.ErrDuplicateChatID):
		writeConflict(w, err.Error())
	case errors.Is(err, registry.ErrInvalidMAC),
		errors.Is(err, registry.ErrUnsupportedModel),
		errors.Is(err, registry.ErrInvalidName),
		errors.Is(err, registry.ErrNameTooLong),
		errors.Is(err, registry.ErrInvalidChatID):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
