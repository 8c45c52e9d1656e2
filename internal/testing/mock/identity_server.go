package mock

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"authhub/pkg/oauth"
)

// SessionCookieName is the cookie the fake server sets in cookie mode.
const SessionCookieName = "authhub_session"

// IdentityServerConfig configures the fake identity service.
type IdentityServerConfig struct {
	// TokenLifetime is the expires_in of issued access tokens. Defaults to 15 minutes.
	TokenLifetime time.Duration

	// User is returned by /api/v1/auth/me. Defaults to a fixed test user.
	User *oauth.User

	// CookieMode makes the token endpoints set SessionCookieName and the
	// current-user endpoint accept it.
	CookieMode bool

	// OmitRefreshRotation returns no refresh_token from /refresh, so clients
	// must keep the one they presented.
	OmitRefreshRotation bool

	// APIKey, when set, must be sent as X-API-Key on every request.
	APIKey string
}

// SimulatedFailure is returned by the next matching request instead of the
// normal response.
type SimulatedFailure struct {
	Status    int
	ErrorCode string
	Message   string
	// Delay is applied before responding. Use it to trigger client timeouts.
	Delay time.Duration
}

// IdentityServer is a fake of the identity service's auth endpoints:
//
//	POST /api/v1/auth/refresh
//	POST /api/v1/auth/token
//	GET  /api/v1/auth/me
//
// Refresh tokens are single use. Presenting a consumed one answers
// token_reuse_detected and revokes every token issued after it.
type IdentityServer struct {
	*httptest.Server

	config IdentityServerConfig

	mu             sync.Mutex
	accessTokens   map[string]bool
	refreshTokens  map[string]bool // active
	consumed       map[string]bool
	authCodes      map[string]authCode
	refreshFail    []SimulatedFailure
	tokenFail      []SimulatedFailure
	refreshGate    chan struct{}
	lastRequestIDs []string

	refreshCalls atomic.Int32
	tokenCalls   atomic.Int32
	meCalls      atomic.Int32
}

type authCode struct {
	challenge   string
	redirectURI string
}

// NewIdentityServer starts a fake identity service. Call Close when done.
func NewIdentityServer(config IdentityServerConfig) *IdentityServer {
	if config.TokenLifetime == 0 {
		config.TokenLifetime = 15 * time.Minute
	}
	if config.User == nil {
		config.User = &oauth.User{
			ID:            "user-123",
			Email:         "dev@example.com",
			Name:          "Test User",
			EmailVerified: true,
			CreatedAt:     "2026-01-01T00:00:00Z",
		}
	}

	s := &IdentityServer{
		config:        config,
		accessTokens:  make(map[string]bool),
		refreshTokens: make(map[string]bool),
		consumed:      make(map[string]bool),
		authCodes:     make(map[string]authCode),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/token", s.handleToken)
	mux.HandleFunc("GET /api/v1/auth/me", s.handleMe)
	s.Server = httptest.NewServer(s.withAPIKey(mux))
	return s
}

func (s *IdentityServer) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastRequestIDs = append(s.lastRequestIDs, r.Header.Get("X-Request-ID"))
		s.mu.Unlock()

		if s.config.APIKey != "" && r.Header.Get("X-API-Key") != s.config.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "missing or invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IssueTokens creates an active access/refresh pair as if a login had completed.
func (s *IdentityServer) IssueTokens() *oauth.TokenResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(true)
}

// AddAuthCode registers an authorization code bound to a PKCE challenge.
func (s *IdentityServer) AddAuthCode(code, challenge, redirectURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authCodes[code] = authCode{challenge: challenge, redirectURI: redirectURI}
}

// FailRefresh queues failures for the next refresh requests, in order.
func (s *IdentityServer) FailRefresh(failures ...SimulatedFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFail = append(s.refreshFail, failures...)
}

// FailToken queues failures for the next code-exchange requests, in order.
func (s *IdentityServer) FailToken(failures ...SimulatedFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenFail = append(s.tokenFail, failures...)
}

// BlockRefresh makes refresh requests wait until the returned release
// function is called. It lets tests hold a refresh in flight.
func (s *IdentityServer) BlockRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.refreshGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// RefreshCalls returns the number of refresh requests received.
func (s *IdentityServer) RefreshCalls() int { return int(s.refreshCalls.Load()) }

// TokenCalls returns the number of code-exchange requests received.
func (s *IdentityServer) TokenCalls() int { return int(s.tokenCalls.Load()) }

// MeCalls returns the number of current-user requests received.
func (s *IdentityServer) MeCalls() int { return int(s.meCalls.Load()) }

// RequestIDs returns the X-Request-ID header of every request received.
func (s *IdentityServer) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lastRequestIDs...)
}

// IsRefreshTokenActive reports whether rt can still be exchanged.
func (s *IdentityServer) IsRefreshTokenActive(rt string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshTokens[rt]
}

// RevokeAll invalidates every issued token.
func (s *IdentityServer) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens = make(map[string]bool)
	s.refreshTokens = make(map[string]bool)
}

func (s *IdentityServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if s.applyFailure(w, r, &s.refreshFail) {
		return
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.refreshTokens[body.RefreshToken]:
		delete(s.refreshTokens, body.RefreshToken)
		s.consumed[body.RefreshToken] = true
		resp := s.issueLocked(!s.config.OmitRefreshRotation)
		if s.config.OmitRefreshRotation {
			s.refreshTokens[body.RefreshToken] = true
			delete(s.consumed, body.RefreshToken)
		}
		s.writeTokens(w, resp)
	case s.consumed[body.RefreshToken]:
		// Theft signal: revoke the whole family.
		s.accessTokens = make(map[string]bool)
		s.refreshTokens = make(map[string]bool)
		writeError(w, http.StatusUnauthorized, "token_reuse_detected", "refresh token has already been used")
	default:
		writeError(w, http.StatusUnauthorized, "token_invalid", "unknown refresh token")
	}
}

func (s *IdentityServer) handleToken(w http.ResponseWriter, r *http.Request) {
	s.tokenCalls.Add(1)

	if s.applyFailure(w, r, &s.tokenFail) {
		return
	}

	var body struct {
		GrantType    string `json:"grant_type"`
		Code         string `json:"code"`
		RedirectURI  string `json:"redirect_uri"`
		CodeVerifier string `json:"code_verifier"`
		App          string `json:"app"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if body.GrantType != "authorization_code" {
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", body.GrantType)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.authCodes[body.Code]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_grant", "unknown authorization code")
		return
	}
	delete(s.authCodes, body.Code)

	if code.redirectURI != "" && code.redirectURI != body.RedirectURI {
		writeError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	}
	if subtle.ConstantTimeCompare([]byte(oauth.ChallengeFrom(body.CodeVerifier)), []byte(code.challenge)) != 1 {
		writeError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	}

	s.writeTokens(w, s.issueLocked(true))
}

func (s *IdentityServer) handleMe(w http.ResponseWriter, r *http.Request) {
	s.meCalls.Add(1)

	token := ExtractBearerToken(r.Header.Get("Authorization"))
	if token == "" && s.config.CookieMode {
		if c, err := r.Cookie(SessionCookieName); err == nil {
			token = c.Value
		}
	}

	s.mu.Lock()
	valid := s.accessTokens[token]
	s.mu.Unlock()

	if !valid {
		writeError(w, http.StatusUnauthorized, "token_invalid", "invalid access token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.config.User)
}

func (s *IdentityServer) applyFailure(w http.ResponseWriter, r *http.Request, queue *[]SimulatedFailure) bool {
	s.mu.Lock()
	if len(*queue) == 0 {
		s.mu.Unlock()
		return false
	}
	f := (*queue)[0]
	*queue = (*queue)[1:]
	s.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-r.Context().Done():
			return true
		}
	}
	if f.Status == 0 {
		return false
	}
	writeError(w, f.Status, f.ErrorCode, f.Message)
	return true
}

func (s *IdentityServer) issueLocked(withRefresh bool) *oauth.TokenResponse {
	resp := &oauth.TokenResponse{
		AccessToken: "at_" + randomToken(),
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.config.TokenLifetime / time.Second),
	}
	s.accessTokens[resp.AccessToken] = true
	if withRefresh {
		resp.RefreshToken = "rt_" + randomToken()
		s.refreshTokens[resp.RefreshToken] = true
	}
	return resp
}

func (s *IdentityServer) writeTokens(w http.ResponseWriter, resp *oauth.TokenResponse) {
	if s.config.CookieMode {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    resp.AccessToken,
			Path:     "/",
			HttpOnly: true,
			MaxAge:   int(s.config.TokenLifetime / time.Second),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]string{}
	if code != "" {
		body["error_code"] = code
	}
	if message != "" {
		body["message"] = message
	}
	_ = json.NewEncoder(w).Encode(body)
}

func randomToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// ExtractBearerToken extracts the token from an "Authorization: Bearer <token>" header.
func ExtractBearerToken(authHeader string) string {
	const prefix = "bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
