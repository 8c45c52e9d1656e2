package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authhub/internal/testing/mock"
	"authhub/pkg/oauth"
)

func TestClient_RefreshRotates(t *testing.T) {
	srv := mock.NewIdentityServer(mock.IdentityServerConfig{APIKey: "key-1"})
	defer srv.Close()

	issued := srv.IssueTokens()
	c := NewClient(srv.URL+"/", WithAPIKey("key-1"))

	tr, err := c.Refresh(context.Background(), issued.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, tr.AccessToken)
	assert.NotEqual(t, issued.RefreshToken, tr.RefreshToken)
	assert.Equal(t, int64(900), tr.ExpiresIn)
	assert.False(t, srv.IsRefreshTokenActive(issued.RefreshToken))

	// Presenting the consumed token again is reuse.
	_, err = c.Refresh(context.Background(), issued.RefreshToken)
	require.Error(t, err)
	assert.True(t, oauth.IsCode(err, oauth.ErrTokenReuseDetected))

	ids := srv.RequestIDs()
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		failure mock.SimulatedFailure
		want    oauth.ErrorCode
		retry   bool
	}{
		{"server error", mock.SimulatedFailure{Status: 500}, oauth.ErrServer, true},
		{"bad gateway", mock.SimulatedFailure{Status: 502}, oauth.ErrServer, true},
		{"rate limited", mock.SimulatedFailure{Status: 429}, oauth.ErrRateLimited, true},
		{"expired", mock.SimulatedFailure{Status: 401, ErrorCode: "token_expired"}, oauth.ErrTokenExpired, false},
		{"invalid", mock.SimulatedFailure{Status: 401, ErrorCode: "token_invalid"}, oauth.ErrTokenInvalid, false},
		{"session expired", mock.SimulatedFailure{Status: 401, ErrorCode: "session_expired"}, oauth.ErrSessionExpired, false},
		{"disabled", mock.SimulatedFailure{Status: 403, ErrorCode: "account_disabled"}, oauth.ErrAccountDisabled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := mock.NewIdentityServer(mock.IdentityServerConfig{})
			defer srv.Close()
			srv.FailRefresh(tt.failure)

			c := NewClient(srv.URL)
			_, err := c.Refresh(context.Background(), "anything")

			ae, ok := oauth.AsAuthError(err)
			require.True(t, ok, "expected AuthError, got %v", err)
			assert.Equal(t, tt.want, ae.Code)
			assert.Equal(t, tt.failure.Status, ae.StatusCode)
			assert.Equal(t, tt.retry, ae.Retryable())
		})
	}
}

func TestClient_TimeoutIsRetryableNetworkError(t *testing.T) {
	srv := mock.NewIdentityServer(mock.IdentityServerConfig{})
	defer srv.Close()
	srv.FailRefresh(mock.SimulatedFailure{Delay: time.Second})

	c := NewClient(srv.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.Refresh(context.Background(), "anything")

	ae, ok := oauth.AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, oauth.ErrNetwork, ae.Code)
	assert.True(t, ae.Retryable())
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Refresh(context.Background(), "rt")
	assert.True(t, oauth.IsCode(err, oauth.ErrNetwork))
}

func TestClient_ExchangeCodeAndFetchUser(t *testing.T) {
	srv := mock.NewIdentityServer(mock.IdentityServerConfig{})
	defer srv.Close()

	proof, err := oauth.GeneratePKCE()
	require.NoError(t, err)
	srv.AddAuthCode("code-1", proof.CodeChallenge, "http://127.0.0.1:3000/oauth/callback")

	c := NewClient(srv.URL, WithRateLimit(100, 1))

	_, err = c.ExchangeCode(context.Background(), ExchangeRequest{
		Code:         "code-1",
		RedirectURI:  "http://127.0.0.1:3000/oauth/callback",
		CodeVerifier: "wrong-verifier-wrong-verifier-wrong-verifier",
	})
	assert.True(t, oauth.IsCode(err, oauth.ErrTokenInvalid), "got %v", err)

	srv.AddAuthCode("code-2", proof.CodeChallenge, "http://127.0.0.1:3000/oauth/callback")
	tr, err := c.ExchangeCode(context.Background(), ExchangeRequest{
		Code:         "code-2",
		RedirectURI:  "http://127.0.0.1:3000/oauth/callback",
		CodeVerifier: proof.CodeVerifier,
		App:          "cli",
	})
	require.NoError(t, err)

	user, err := c.FetchUser(context.Background(), tr.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-123", user.ID)

	_, err = c.FetchUser(context.Background(), "bogus")
	assert.True(t, oauth.IsCode(err, oauth.ErrTokenInvalid))
}

func TestParseErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   oauth.ErrorCode
		msg    string
	}{
		{"native", 401, `{"error_code":"token_reuse_detected","message":"reused"}`, oauth.ErrTokenReuseDetected, "reused"},
		{"rfc6749", 400, `{"error":"invalid_grant","error_description":"bad"}`, oauth.ErrTokenInvalid, "bad"},
		{"code field", 403, `{"code":"MAX_SESSIONS_EXCEEDED"}`, oauth.ErrMaxSessionsExceeded, "Forbidden"},
		{"html", 503, `<html>down</html>`, oauth.ErrServer, "Service Unavailable"},
		{"empty", 418, ``, oauth.ErrUnknown, "I'm a teapot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseErrorResponse(tt.status, []byte(tt.body))
			assert.Equal(t, tt.want, got.Code)
			assert.Equal(t, tt.msg, got.Message)
			assert.Equal(t, tt.status, got.StatusCode)
		})
	}
}
