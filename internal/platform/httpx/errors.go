package httpx

import (
	"net/http"

	"github.com/meridian-admin/meridian/internal/shared"
)

// RespondError maps a domain error to its HTTP status and envelope. Stack
// traces and internal detail never reach the payload.
func RespondError(w http.ResponseWriter, err error) {
	Error(w, StatusOf(err), shared.UserSafeMessage(err))
}

// StatusOf returns the HTTP status for a domain error kind.
func StatusOf(err error) int {
	switch shared.KindOf(err) {
	case shared.KindValidation, shared.KindConflict:
		return http.StatusBadRequest
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
