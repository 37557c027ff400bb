// Package apperror provides domain-specific error types for Gatehouse.
// These errors carry an HTTP status, a numeric envelope code, and a
// user-safe message. The Echo error handler maps them to the standard
// {code, msg, data} response envelope automatically.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"fmt"
	"net/http"
)

// Envelope codes. Zero is success and three is the "second factor required"
// workflow sentinel; both are owned by the response package. Every other
// code here is a typed failure class.
const (
	CodeValidation       = 1
	CodeAuth             = 2
	CodeLocked           = 4
	CodeTwoFactorInvalid = 5
	CodeToken            = 6
	CodePolicy           = 7
	CodeDevice           = 8
	CodeInternal         = 9
)

// Type classifiers for IsType checks.
const (
	TypeValidation       = "validation_error"
	TypeAuth             = "auth_error"
	TypeLocked           = "locked_account"
	TypeTwoFactorInvalid = "two_factor_invalid"
	TypeTokenExpired     = "token_expired"
	TypeTokenRevoked     = "token_revoked"
	TypeTokenUnknown     = "token_unknown"
	TypePolicy           = "policy_error"
	TypeDevice           = "device_error"
	TypeInternal         = "internal_error"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status, the numeric envelope code, a machine-readable error type,
// and a human-readable message safe to show to the client.
type AppError struct {
	// Status is the HTTP status code (e.g., 401, 422, 500).
	Status int `json:"-"`

	// Code is the numeric envelope code returned to the client.
	Code int `json:"code"`

	// Type is a machine-readable error classifier (e.g., "auth_error").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// --- Constructors for the error taxonomy ---

// NewValidation creates an error for missing or malformed input. The user
// can correct these.
func NewValidation(message string) *AppError {
	return &AppError{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeValidation,
		Type:    TypeValidation,
		Message: message,
	}
}

// NewAuth creates an error for failed captcha or credential checks. The
// message is identical whether the username is unknown or the password is
// wrong -- callers must not construct messages that reveal which.
func NewAuth(message string) *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeAuth,
		Type:    TypeAuth,
		Message: message,
	}
}

// NewLocked creates an error for an account that crossed the brute-force
// threshold.
func NewLocked(message string) *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeLocked,
		Type:    TypeLocked,
		Message: message,
	}
}

// NewTwoFactorInvalid creates an error for a wrong, expired, or exhausted
// second-factor code or temp token.
func NewTwoFactorInvalid(message string) *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeTwoFactorInvalid,
		Type:    TypeTwoFactorInvalid,
		Message: message,
	}
}

// Token validation outcomes. The three types share an envelope code but stay
// distinguishable by Type for callers that care (route guards do not).

// NewTokenExpired creates an error for a session token past its expiry.
func NewTokenExpired() *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeToken,
		Type:    TypeTokenExpired,
		Message: "session expired, please log in again",
	}
}

// NewTokenRevoked creates an error for an explicitly revoked session token.
func NewTokenRevoked() *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeToken,
		Type:    TypeTokenRevoked,
		Message: "session revoked, please log in again",
	}
}

// NewTokenUnknown creates an error for a token the issuer cannot map back
// to a session.
func NewTokenUnknown() *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeToken,
		Type:    TypeTokenUnknown,
		Message: "invalid session token",
	}
}

// NewPolicy creates an error for password or two-factor precondition
// violations (expired password, missing email, complexity, reuse).
func NewPolicy(message string) *AppError {
	return &AppError{
		Status:  http.StatusForbidden,
		Code:    CodePolicy,
		Type:    TypePolicy,
		Message: message,
	}
}

// NewDevice creates an error for an unknown or revoked device id.
func NewDevice(message string) *AppError {
	return &AppError{
		Status:  http.StatusNotFound,
		Code:    CodeDevice,
		Type:    TypeDevice,
		Message: message,
	}
}

// NewInternal creates a 500 internal error. The real error is stored in
// Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Status:   http.StatusInternalServerError,
		Code:     CodeInternal,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// IsType reports whether err is an AppError with the given Type.
func IsType(err error, typ string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == typ
}

// SafeMessage returns the client-safe error message from an error. For any
// non-AppError type it returns a generic message to prevent leaking internal
// details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Message
	}
	return "an unexpected error occurred"
}
