package flow

import (
	"fmt"
	"net/url"
	"strings"

	"authhub/pkg/oauth"
)

const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	LogoutPath   = "/auth/logout"
)

// RedirectConfig describes where the hosted login pages live and where they
// send the browser back to.
type RedirectConfig struct {
	BaseURL     string
	App         string
	RedirectURI string
	CookieMode  bool
}

// LoginOptions customises a single login or registration.
type LoginOptions struct {
	// Register targets the registration page instead of the login page.
	Register bool

	// RedirectURI overrides RedirectConfig.RedirectURI.
	RedirectURI string

	// State overrides the generated CSRF state.
	State string

	// ReturnTo is handed back in CallbackResult.RedirectTo.
	ReturnTo string

	// Email and Name pre-fill the registration form.
	Email string
	Name  string

	Params map[string]string
}

// AuthRequest is a started login.
type AuthRequest struct {
	URL         string
	State       string
	RedirectURI string
}

// BuildAuthURL returns the hosted login or registration URL for proof and
// state.
func BuildAuthURL(cfg RedirectConfig, proof *oauth.PKCEProof, state string, opts LoginOptions) (string, error) {
	if proof == nil {
		return "", fmt.Errorf("PKCE proof is required")
	}

	path := LoginPath
	if opts.Register {
		path = RegisterPath
	}
	u, err := endpointURL(cfg.BaseURL, path)
	if err != nil {
		return "", err
	}

	redirectURI := opts.RedirectURI
	if redirectURI == "" {
		redirectURI = cfg.RedirectURI
	}

	q := u.Query()
	q.Set("app", cfg.App)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("code_challenge", proof.CodeChallenge)
	q.Set("code_challenge_method", proof.Method)
	if cfg.CookieMode {
		q.Set("storage_mode", "cookie")
	}
	if opts.Register {
		if opts.Email != "" {
			q.Set("email", opts.Email)
		}
		if opts.Name != "" {
			q.Set("name", opts.Name)
		}
	}
	for k, v := range opts.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// LogoutURL returns the hosted logout page URL. global asks the identity
// service to end every session of the user.
func LogoutURL(cfg RedirectConfig, returnTo string, global bool) (string, error) {
	u, err := endpointURL(cfg.BaseURL, LogoutPath)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("app", cfg.App)
	if returnTo != "" {
		q.Set("redirect_uri", returnTo)
	}
	if global {
		q.Set("global", "true")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func endpointURL(baseURL, path string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}
	u.Path += path
	return u, nil
}
