package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Authentication
	ErrAuthUnavailable = errors.New("payment sdk unavailable in this environment")
	ErrAuthDeclined    = errors.New("user declined authentication")
	ErrAuthExpired     = errors.New("access token rejected by backend")
	ErrUnauthenticated = errors.New("no authenticated user")
	ErrForbidden       = errors.New("forbidden")

	// Payment flow
	ErrIDMismatch       = errors.New("sdk payment id does not match backend payment id")
	ErrNetwork          = errors.New("network failure")
	ErrUserCancelled    = errors.New("payment cancelled by user")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrPaymentInFlight  = errors.New("a payment for this resource is already in flight")
	ErrInvalidState     = errors.New("invalid payment state transition")
	ErrNoSlotsAvailable = errors.New("no slots available for plan")
	ErrPriceUnavailable = errors.New("current pi price unavailable")
	ErrBusy             = errors.New("resource busy, retry shortly")

	// Session links
	ErrCodeAlreadyUsed = errors.New("session link code already used")
	ErrCodeExpired     = errors.New("session link code expired")
	ErrRateLimited     = errors.New("rate limited")
)

// Wire codes carried in API error bodies so clients can recover the sentinel.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "NOT_FOUND"},
	{ErrAlreadyExists, "ALREADY_EXISTS"},
	{ErrInvalidArgument, "INVALID_ARGUMENT"},
	{ErrUnauthenticated, "UNAUTHENTICATED"},
	{ErrForbidden, "FORBIDDEN"},
	{ErrIDMismatch, "ID_MISMATCH"},
	{ErrInvalidState, "INVALID_STATE"},
	{ErrNoSlotsAvailable, "NO_SLOTS"},
	{ErrPriceUnavailable, "PRICE_UNAVAILABLE"},
	{ErrBusy, "BUSY"},
	{ErrPaymentFailed, "PAYMENT_FAILED"},
	{ErrCodeAlreadyUsed, "CODE_USED"},
	{ErrCodeExpired, "CODE_EXPIRED"},
	{ErrRateLimited, "RATE_LIMITED"},
}

// ErrorCode returns the wire code for err, or "INTERNAL".
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// ErrorFromCode maps a wire code back to its sentinel; nil when unknown.
func ErrorFromCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
