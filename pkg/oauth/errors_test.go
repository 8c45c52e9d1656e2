package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestParseErrorCode(t *testing.T) {
	tests := []struct {
		serverCode string
		status     int
		want       ErrorCode
	}{
		{"token_expired", http.StatusUnauthorized, ErrTokenExpired},
		{"token_invalid", http.StatusUnauthorized, ErrTokenInvalid},
		{"invalid_grant", http.StatusBadRequest, ErrTokenInvalid},
		{"TOKEN_REUSE_DETECTED", http.StatusUnauthorized, ErrTokenReuseDetected},
		{"token_reuse_detected", http.StatusUnauthorized, ErrTokenReuseDetected},
		{"session_expired", http.StatusUnauthorized, ErrSessionExpired},
		{"max_sessions_exceeded", http.StatusForbidden, ErrMaxSessionsExceeded},
		{"account_disabled", http.StatusForbidden, ErrAccountDisabled},
		{"", http.StatusTooManyRequests, ErrRateLimited},
		{"rate_limited", http.StatusBadRequest, ErrRateLimited},
		{"", http.StatusBadGateway, ErrServer},
		{"something_new", http.StatusBadRequest, ErrUnknown},
		{"", http.StatusBadRequest, ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d", tt.serverCode, tt.status), func(t *testing.T) {
			if got := ParseErrorCode(tt.serverCode, tt.status); got != tt.want {
				t.Errorf("ParseErrorCode(%q, %d) = %s, want %s", tt.serverCode, tt.status, got, tt.want)
			}
		})
	}
}

func TestErrorCode_Retryable(t *testing.T) {
	retryable := []ErrorCode{ErrNetwork, ErrServer, ErrRateLimited}
	for _, c := range retryable {
		if !c.Retryable() {
			t.Errorf("%s should be retryable", c)
		}
	}

	fatal := []ErrorCode{ErrTokenExpired, ErrTokenInvalid, ErrTokenReuseDetected, ErrSessionExpired, ErrAccountDisabled, ErrUnknown}
	for _, c := range fatal {
		if c.Retryable() {
			t.Errorf("%s should not be retryable", c)
		}
	}
}

func TestAuthError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAuthError(ErrNetwork, "refresh request failed").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}

	wrapped := fmt.Errorf("refresh: %w", err)
	if !IsCode(wrapped, ErrNetwork) {
		t.Error("expected IsCode to see through wrapping")
	}
	if IsCode(wrapped, ErrServer) {
		t.Error("IsCode matched the wrong code")
	}
}

func TestAuthError_Messages(t *testing.T) {
	err := NewAuthError(ErrTokenReuseDetected, "").WithStatus(http.StatusUnauthorized)

	if err.UserMessage() == "" {
		t.Error("expected a user message")
	}
	if err.Suggestion() == "" {
		t.Error("expected a suggestion")
	}
	want := "TOKEN_REUSE_DETECTED (HTTP 401): " + err.UserMessage()
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	unknown := NewAuthError(ErrorCode("NOPE"), "boom")
	if unknown.UserMessage() != userMessages[ErrUnknown] {
		t.Errorf("unexpected fallback message %q", unknown.UserMessage())
	}
	if unknown.Suggestion() != "" {
		t.Errorf("expected no suggestion, got %q", unknown.Suggestion())
	}
}
