// File: internal/infra/api/errors.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"rollingpi/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps the domain taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrIDMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrNoSlotsAvailable),
		errors.Is(err, domain.ErrCodeAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCodeExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrPriceUnavailable), errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPaymentFailed), errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError sends {error, code}. Internal failures never leak their text.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Code: domain.ErrorCode(err)}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	var verr *validationError
	if errors.As(err, &verr) {
		body.Fields = verr.fields
	}
	writeJSON(w, status, body)
}
