package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"raillake/internal/domain"
)

// errorResponse is the JSON error envelope: the HTTP status code and the
// domain error's message.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
// Validation problems with the request itself are 400; content that fails
// the declared contracts is 422; upstream and storage failures surface as
// gateway errors so callers can tell them from their own mistakes.
func httpStatusFromDomainError(err error) int {
	switch {
	case errors.As(err, new(*domain.NotFoundError)):
		return http.StatusNotFound
	case errors.As(err, new(*domain.ValidationError)):
		return http.StatusBadRequest
	case errors.As(err, new(*domain.SchemaMismatchError)):
		return http.StatusUnprocessableEntity
	case errors.As(err, new(*domain.SchemaViolationError)):
		return http.StatusUnprocessableEntity
	case errors.As(err, new(*domain.RuleComputationError)):
		return http.StatusUnprocessableEntity
	case errors.As(err, new(*domain.VersionConflictError)):
		return http.StatusConflict
	case errors.As(err, new(*domain.ConflictError)):
		return http.StatusConflict
	case errors.As(err, new(*domain.SourceUnavailableError)):
		return http.StatusBadGateway
	case errors.As(err, new(*domain.StorageIOError)):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := httpStatusFromDomainError(err)
	writeJSON(w, status, errorResponse{Code: status, Message: err.Error()})
}
