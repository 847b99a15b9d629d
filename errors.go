package goSession

import (
	"errors"
	"net/http"
)

var (
	// ErrAuthenticationFailed is returned by Login for an unknown email or a wrong password.
	// The two causes are indistinguishable.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrDuplicateSubject is returned by Register when the email is already taken.
	ErrDuplicateSubject = errors.New("duplicate subject")
	// ErrTokenMissing is returned when no refresh token was presented.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenInvalid covers every rejected token: bad signature, expiry, unknown session and reuse.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenReused is joined with ErrTokenInvalid when a retired refresh token is presented again.
	ErrTokenReused = errors.New("refresh token reused")
	// ErrSubjectNotFound is joined with ErrTokenInvalid when a session outlives its subject.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrStoreUnavailable wraps failures of the session store or user directory.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidInput is returned for requests missing required fields or violating password policy.
	ErrInvalidInput = errors.New("invalid input")
)

// PublicError translates err into the HTTP status and message a client may see.
// It is the only place where internal detail is dropped: every token failure reads
// "Invalid token" and unknown errors read "Internal server error".
func PublicError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrAuthenticationFailed):
		return http.StatusBadRequest, "Incorrect Email or Password"
	case errors.Is(err, ErrDuplicateSubject):
		return http.StatusBadRequest, "Duplicate email"
	case errors.Is(err, ErrTokenMissing):
		return http.StatusBadRequest, "Token not found"
	case errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
