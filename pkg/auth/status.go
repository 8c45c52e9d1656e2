package auth

import "time"

// Status values reported in StatusResponse.State.
const (
	StateLoading         = "loading"
	StateAuthenticated   = "authenticated"
	StateUnauthenticated = "unauthenticated"
	StateExpired         = "expired"
)

// StatusResponse is the structured authentication state of one client.
type StatusResponse struct {
	// State is one of the State constants.
	State string `json:"state"`

	BaseURL     string `json:"base_url"`
	App         string `json:"app"`
	StorageMode string `json:"storage_mode"`

	// CookieMode means the bearer token lives in a server-managed cookie and
	// AccessToken fingerprints are not available.
	CookieMode bool `json:"cookie_mode"`

	User *UserStatus `json:"user,omitempty"`

	// TokenFingerprint identifies the stored access token without revealing it.
	TokenFingerprint string     `json:"token_fingerprint,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	HasRefreshToken  bool       `json:"has_refresh_token"`
	AutoRefresh      bool       `json:"auto_refresh"`

	// Error is present after a session expired or reuse was detected.
	Error *ErrorStatus `json:"error,omitempty"`
}

// UserStatus is the user part of a StatusResponse.
type UserStatus struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ErrorStatus is the last authentication error.
type ErrorStatus struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExpiresIn returns the time left before expiry relative to now, or 0.
func (s *StatusResponse) ExpiresIn(now time.Time) time.Duration {
	if s.ExpiresAt == nil {
		return 0
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IsAuthenticated reports whether State is StateAuthenticated.
func (s *StatusResponse) IsAuthenticated() bool {
	return s.State == StateAuthenticated
}
