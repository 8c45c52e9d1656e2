package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a machine-readable authentication failure category.
type ErrorCode string

const (
	ErrInvalidCredentials  ErrorCode = "INVALID_CREDENTIALS"
	ErrEmailNotVerified    ErrorCode = "EMAIL_NOT_VERIFIED"
	ErrAccountLocked       ErrorCode = "ACCOUNT_LOCKED"
	ErrAccountDisabled     ErrorCode = "ACCOUNT_DISABLED"
	ErrSessionExpired      ErrorCode = "SESSION_EXPIRED"
	ErrTokenExpired        ErrorCode = "TOKEN_EXPIRED"
	ErrTokenInvalid        ErrorCode = "TOKEN_INVALID"
	ErrTokenReuseDetected  ErrorCode = "TOKEN_REUSE_DETECTED"
	ErrMaxSessionsExceeded ErrorCode = "MAX_SESSIONS_EXCEEDED"
	ErrPasswordTooWeak     ErrorCode = "PASSWORD_TOO_WEAK"
	ErrEmailAlreadyExists  ErrorCode = "EMAIL_ALREADY_EXISTS"
	ErrInvalidResetToken   ErrorCode = "INVALID_RESET_TOKEN"
	ErrResetTokenExpired   ErrorCode = "RESET_TOKEN_EXPIRED"
	ErrNetwork             ErrorCode = "NETWORK_ERROR"
	ErrServer              ErrorCode = "SERVER_ERROR"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrUnknown             ErrorCode = "UNKNOWN_ERROR"
)

// Retryable reports whether a refresh that failed with c may be attempted again.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrNetwork, ErrServer, ErrRateLimited:
		return true
	}
	return false
}

// serverCodes maps the identity service's lowercase error identifiers.
var serverCodes = map[string]ErrorCode{
	"invalid_credentials":   ErrInvalidCredentials,
	"email_not_verified":    ErrEmailNotVerified,
	"account_locked":        ErrAccountLocked,
	"account_disabled":      ErrAccountDisabled,
	"session_expired":       ErrSessionExpired,
	"token_expired":         ErrTokenExpired,
	"token_invalid":         ErrTokenInvalid,
	"invalid_grant":         ErrTokenInvalid,
	"invalid_token":         ErrTokenInvalid,
	"token_reuse_detected":  ErrTokenReuseDetected,
	"max_sessions_exceeded": ErrMaxSessionsExceeded,
	"password_too_weak":     ErrPasswordTooWeak,
	"email_already_exists":  ErrEmailAlreadyExists,
	"invalid_reset_token":   ErrInvalidResetToken,
	"reset_token_expired":   ErrResetTokenExpired,
	"rate_limited":          ErrRateLimited,
	"too_many_requests":     ErrRateLimited,
	"server_error":          ErrServer,
}

// ParseErrorCode maps an identity-service error identifier and HTTP status to
// an ErrorCode. Identifiers are matched case-insensitively; when none matches,
// the status decides between RATE_LIMITED, SERVER_ERROR and UNKNOWN_ERROR.
func ParseErrorCode(serverCode string, status int) ErrorCode {
	if code, ok := serverCodes[strings.ToLower(strings.TrimSpace(serverCode))]; ok {
		return code
	}
	// Already-normalized codes pass through.
	upper := ErrorCode(strings.ToUpper(strings.TrimSpace(serverCode)))
	if _, ok := userMessages[upper]; ok {
		return upper
	}
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrServer
	}
	return ErrUnknown
}

// AuthError is the error type carried by refresh results and returned by the
// identity client.
type AuthError struct {
	Code       ErrorCode
	StatusCode int
	Message    string
	Details    map[string]any
	cause      error
}

// NewAuthError creates an AuthError with the given code and message.
func NewAuthError(code ErrorCode, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// WithStatus records the HTTP status that produced the error.
func (e *AuthError) WithStatus(status int) *AuthError {
	e.StatusCode = status
	return e
}

// WithCause records the underlying error for errors.Is and errors.As.
func (e *AuthError) WithCause(err error) *AuthError {
	e.cause = err
	return e
}

func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.UserMessage()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *AuthError) Unwrap() error {
	return e.cause
}

// Retryable reports whether the operation that failed may be retried.
func (e *AuthError) Retryable() bool {
	return e != nil && e.Code.Retryable()
}

var userMessages = map[ErrorCode]string{
	ErrInvalidCredentials:  "The email or password you entered is incorrect.",
	ErrEmailNotVerified:    "Please verify your email address before signing in.",
	ErrAccountLocked:       "Your account has been temporarily locked due to too many failed attempts.",
	ErrAccountDisabled:     "Your account has been disabled.",
	ErrSessionExpired:      "Your session has expired. Please sign in again.",
	ErrTokenExpired:        "Your session has expired. Please sign in again.",
	ErrTokenInvalid:        "Your session is invalid. Please sign in again.",
	ErrTokenReuseDetected:  "A security issue was detected with your session. Please sign in again.",
	ErrMaxSessionsExceeded: "You have reached the maximum number of active sessions.",
	ErrPasswordTooWeak:     "The password does not meet the security requirements.",
	ErrEmailAlreadyExists:  "An account with this email already exists.",
	ErrInvalidResetToken:   "The password reset link is invalid.",
	ErrResetTokenExpired:   "The password reset link has expired.",
	ErrNetwork:             "Unable to reach the authentication service.",
	ErrServer:              "The authentication service encountered an error.",
	ErrRateLimited:         "Too many requests. Please wait a moment and try again.",
	ErrUnknown:             "An unexpected authentication error occurred.",
}

var suggestions = map[ErrorCode]string{
	ErrInvalidCredentials:  "Check your email and password and try again.",
	ErrEmailNotVerified:    "Check your inbox for the verification email.",
	ErrAccountLocked:       "Wait a few minutes or reset your password.",
	ErrAccountDisabled:     "Contact support to restore access.",
	ErrSessionExpired:      "Run 'authhub auth login' to sign in again.",
	ErrTokenExpired:        "Run 'authhub auth login' to sign in again.",
	ErrTokenInvalid:        "Run 'authhub auth login' to sign in again.",
	ErrTokenReuseDetected:  "Sign in again and review your active sessions.",
	ErrMaxSessionsExceeded: "Sign out from another device and try again.",
	ErrNetwork:             "Check your network connection and the configured base URL.",
	ErrServer:              "Try again later.",
	ErrRateLimited:         "Wait a moment before retrying.",
}

// UserMessage returns a human-readable description of the failure.
func (e *AuthError) UserMessage() string {
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return userMessages[ErrUnknown]
}

// Suggestion returns an actionable hint, or "" when there is none.
func (e *AuthError) Suggestion() string {
	return suggestions[e.Code]
}

// AsAuthError extracts an *AuthError from err's chain.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsCode reports whether err carries an AuthError with the given code.
func IsCode(err error, code ErrorCode) bool {
	ae, ok := AsAuthError(err)
	return ok && ae.Code == code
}

// ValidationError reports a malformed PKCE or callback parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
