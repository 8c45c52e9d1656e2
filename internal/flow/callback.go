package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"authhub/internal/identity"
	"authhub/internal/storage"
	"authhub/pkg/logging"
	"authhub/pkg/oauth"
)

// Callback error codes raised before the code is exchanged.
const (
	CodeMissingCode     = "missing_code"
	CodeStateExpired    = "state_expired"
	CodeMissingState    = "missing_state"
	CodeInvalidState    = "invalid_state"
	CodeMissingVerifier = "missing_verifier"
	CodeExchangeFailed  = "exchange_failed"
	CodeStoreFailed     = "store_failed"
)

// CallbackError reports why a callback could not complete a login. Code is
// one of the Code constants or an error code sent by the identity service.
type CallbackError struct {
	Code        string
	Description string
	cause       error
}

func (e *CallbackError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *CallbackError) Unwrap() error {
	return e.cause
}

// AuthError maps the callback failure onto the shared error taxonomy.
func (e *CallbackError) AuthError() *oauth.AuthError {
	if authErr, ok := oauth.AsAuthError(e.cause); ok {
		return authErr
	}
	msg := e.Description
	if msg == "" {
		msg = e.Code
	}
	return oauth.NewAuthError(oauth.ParseErrorCode(e.Code, 0), msg).WithCause(e)
}

// CallbackResult is a completed login.
type CallbackResult struct {
	User       *oauth.User
	Tokens     *oauth.TokenRecord
	RedirectTo string
}

// Exchanger is the part of the identity client the login flow needs.
type Exchanger interface {
	ExchangeCode(ctx context.Context, req identity.ExchangeRequest) (*oauth.TokenResponse, error)
	FetchUser(ctx context.Context, accessToken string) (*oauth.User, error)
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Redirect  RedirectConfig
	Exchanger Exchanger
	Store     storage.CredentialStore

	// PKCE defaults to a new store with PKCETTL.
	PKCE *PKCEStore

	// StateLength is passed to oauth.GenerateState.
	StateLength int

	Now func() time.Time
}

// Handler runs the authorization-code flow: StartLogin builds the hosted
// page URL and remembers the PKCE secret, HandleCallback redeems the code.
type Handler struct {
	cfg  HandlerConfig
	pkce *PKCEStore
	now  func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	pkce := cfg.PKCE
	if pkce == nil {
		pkce = NewPKCEStore(PKCETTL, now)
	}
	return &Handler{cfg: cfg, pkce: pkce, now: now}
}

// PKCE returns the store holding the pending login.
func (h *Handler) PKCE() *PKCEStore {
	return h.pkce
}

// RedirectConfig returns the handler's redirect settings.
func (h *Handler) RedirectConfig() RedirectConfig {
	return h.cfg.Redirect
}

// StartLogin generates a fresh PKCE proof and state, remembers them, and
// returns the URL to send the user to. Every call uses a new verifier.
func (h *Handler) StartLogin(opts LoginOptions) (*AuthRequest, error) {
	proof, err := oauth.GeneratePKCE()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE proof: %w", err)
	}

	state := opts.State
	if state == "" {
		state, err = oauth.GenerateState(h.cfg.StateLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate state: %w", err)
		}
	}

	authURL, err := BuildAuthURL(h.cfg.Redirect, proof, state, opts)
	if err != nil {
		return nil, err
	}

	redirectURI := opts.RedirectURI
	if redirectURI == "" {
		redirectURI = h.cfg.Redirect.RedirectURI
	}
	h.pkce.Save(PendingLogin{
		CodeVerifier: proof.CodeVerifier,
		State:        state,
		RedirectURI:  redirectURI,
		RedirectTo:   opts.ReturnTo,
	})
	logging.Debug("Flow", "Started login, redirect_uri=%s register=%t", redirectURI, opts.Register)

	return &AuthRequest{URL: authURL, State: state, RedirectURI: redirectURI}, nil
}

// HandleCallback validates the callback parameters against the pending
// login, exchanges the code and stores the tokens. The pending login is
// consumed whatever the outcome. Failures are *CallbackError.
func (h *Handler) HandleCallback(ctx context.Context, params url.Values) (*CallbackResult, error) {
	login, expired := h.pkce.Consume()

	if code := params.Get("error"); code != "" {
		return nil, &CallbackError{Code: code, Description: params.Get("error_description")}
	}

	code := params.Get("code")
	if code == "" {
		return nil, &CallbackError{Code: CodeMissingCode, Description: "Authorization code not found in callback URL"}
	}
	if expired {
		return nil, &CallbackError{Code: CodeStateExpired, Description: "Authentication session expired. Please try logging in again."}
	}
	if login == nil || login.State == "" {
		return nil, &CallbackError{Code: CodeMissingState, Description: "OAuth state not found. Session may have expired."}
	}
	if subtle.ConstantTimeCompare([]byte(params.Get("state")), []byte(login.State)) != 1 {
		logging.Audit("oauth_state_mismatch")
		return nil, &CallbackError{Code: CodeInvalidState, Description: "OAuth state mismatch. Possible CSRF attack."}
	}
	if login.CodeVerifier == "" {
		return nil, &CallbackError{Code: CodeMissingVerifier, Description: "PKCE code verifier not found. Session may have expired."}
	}

	redirectURI := login.RedirectURI
	if redirectURI == "" {
		redirectURI = h.cfg.Redirect.RedirectURI
	}
	tr, err := h.cfg.Exchanger.ExchangeCode(ctx, identity.ExchangeRequest{
		Code:         code,
		RedirectURI:  redirectURI,
		CodeVerifier: login.CodeVerifier,
		App:          h.cfg.Redirect.App,
	})
	if err != nil {
		logging.Warn("Flow", "Code exchange failed: %v", err)
		return nil, &CallbackError{Code: CodeExchangeFailed, Description: "Failed to exchange authorization code", cause: err}
	}

	rec := tr.Record(h.now())
	if err := h.cfg.Store.SetTokens(rec); err != nil {
		return nil, &CallbackError{Code: CodeStoreFailed, Description: "Failed to store tokens", cause: err}
	}
	logging.Audit("login_completed", "access_token", oauth.NewRedactedToken(rec.AccessToken).Fingerprint())

	return &CallbackResult{
		User:       h.fetchUser(ctx, rec.AccessToken),
		Tokens:     rec,
		RedirectTo: login.RedirectTo,
	}, nil
}

// fetchUser never fails: tokens are valid even when the profile endpoint is
// not.
func (h *Handler) fetchUser(ctx context.Context, accessToken string) *oauth.User {
	user, err := h.cfg.Exchanger.FetchUser(ctx, accessToken)
	if err != nil || user == nil {
		logging.Debug("Flow", "Falling back to placeholder user: %v", err)
		return &oauth.User{ID: "unknown", Email: "unknown"}
	}
	return user
}

// ParseCallbackURL extracts the query parameters from a pasted callback URL.
// A bare query string is accepted too.
func ParseCallbackURL(raw string) (url.Values, error) {
	if raw == "" {
		return nil, errors.New("callback URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}
	if u.RawQuery == "" && u.Scheme == "" {
		return url.ParseQuery(raw)
	}
	return u.Query(), nil
}

// IsCallback reports whether params carry a code or a provider error.
func IsCallback(params url.Values) bool {
	return params.Get("code") != "" || params.Get("error") != ""
}
