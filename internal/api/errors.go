package api

import (
	"net/http"

	"shareit/internal/domain"
)

var statusByKind = map[domain.ErrorKind]int{
	domain.KindInvalidInput: http.StatusBadRequest,
	domain.KindInvalidState: http.StatusBadRequest,
	domain.KindNotFound:     http.StatusNotFound,
	domain.KindForbidden:    http.StatusForbidden,
	domain.KindConflict:     http.StatusConflict,
}

// statusFor maps a domain error kind to its HTTP status; anything else is a 500.
func statusFor(err error) int {
	if code, ok := statusByKind[domain.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeServiceError renders err and returns the status written. Internal
// errors are not shown to the caller.
func writeServiceError(w http.ResponseWriter, err error) int {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, code, msg)
	return code
}
