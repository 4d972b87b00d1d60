// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by the backend client and the page handlers.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("upstream unavailable")
)

// StatusFor maps a domain error to the HTTP status a handler should answer with.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusNotFound:
		Problem(w, status, "Not Found", err.Error())
	case http.StatusConflict:
		Problem(w, status, "Duplicate", err.Error())
	case http.StatusUnprocessableEntity:
		Problem(w, status, "Validation Failed", err.Error())
	case http.StatusForbidden:
		Problem(w, status, "Forbidden", err.Error())
	case http.StatusUnauthorized:
		Problem(w, status, "Unauthorized", err.Error())
	case http.StatusBadGateway:
		Problem(w, status, "Bad Gateway", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
