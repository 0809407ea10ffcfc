package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "curator-backend/internal/errors"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError maps error kinds onto HTTP status codes. Unclassified errors
// surface as a generic 500 without leaking internals.
func respondError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: errorDetail{
			Kind:    string(apperrors.KindInternal),
			Code:    "INTERNAL",
			Message: "an internal error occurred",
		}})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindConcurrency:
		status = http.StatusConflict
	case apperrors.KindBudget:
		status = http.StatusTooManyRequests
	case apperrors.KindInfrastructure, apperrors.KindTimeout:
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, errorResponse{Error: errorDetail{
		Kind:    string(appErr.Kind),
		Code:    appErr.Code,
		Message: appErr.Message,
	}})
}
