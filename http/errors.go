package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/irk72ag/StarDrive/models"
)

// Error types of the errors produced by the HTTP layer.
const (
	ErrTypeBadRequest   = "bad_request"
	ErrTypeUnauthorized = "unauthorized"
)

type errorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func statusOf(err error) int {
	switch errors.Type(err) {
	case models.ErrTypeUniverseNotFound,
		models.ErrTypeObjectNotFound:
		return http.StatusNotFound

	case models.ErrTypeInvalidUniverse,
		models.ErrTypeInvalidObject,
		models.ErrTypeInvalidSearch,
		ErrTypeBadRequest:
		return http.StatusBadRequest

	case ErrTypeUnauthorized:
		return http.StatusUnauthorized

	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)

	entry := logs.WithTag("method", r.Method).
		WithTag("path", r.URL.Path).
		WithTag("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error(err)
	} else {
		entry.Debug(err)
	}

	encode(w, r, status, errorResponse{
		Type:    errors.Type(err),
		Message: err.Error(),
	})
}
