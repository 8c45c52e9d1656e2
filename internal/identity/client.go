package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"authhub/pkg/oauth"
)

const (
	// DefaultHTTPTimeout bounds every request, including each refresh attempt.
	DefaultHTTPTimeout = 30 * time.Second

	RefreshPath = "/api/v1/auth/refresh"
	TokenPath   = "/api/v1/auth/token"
	MePath      = "/api/v1/auth/me"

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Client talks to the identity service's auth endpoints. Every failure is
// returned as an *oauth.AuthError so callers can classify it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	userAgent  string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// ClientOption configures the identity client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Cookie mode passes one carrying
// the credential store's jar.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithAPIKey sends key as X-API-Key on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRateLimit throttles outgoing requests to r per second with the given burst.
func WithRateLimit(r float64, burst int) ClientOption {
	return func(c *Client) {
		if r > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// NewClient creates a client for the identity service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		userAgent:  "authhub",
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the service base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Refresh exchanges refreshToken for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth.TokenResponse, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var tr oauth.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, RefreshPath, "", body, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// ExchangeRequest is the body of the authorization-code exchange.
type ExchangeRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
	App          string
}

// ExchangeCode redeems an authorization code with its PKCE verifier.
func (c *Client) ExchangeCode(ctx context.Context, req ExchangeRequest) (*oauth.TokenResponse, error) {
	body := map[string]string{
		"grant_type":    "authorization_code",
		"code":          req.Code,
		"redirect_uri":  req.RedirectURI,
		"code_verifier": req.CodeVerifier,
		"app":           req.App,
	}

	var tr oauth.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, TokenPath, "", body, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// FetchUser returns the authenticated user. An empty accessToken sends no
// Authorization header, relying on cookies from the HTTP client's jar.
func (c *Client) FetchUser(ctx context.Context, accessToken string) (*oauth.User, error) {
	var user oauth.User
	if err := c.doJSON(ctx, http.MethodGet, MePath, accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, bearer string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return oauth.NewAuthError(oauth.ErrNetwork, "request cancelled while rate limited").WithCause(err)
		}
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return oauth.NewAuthError(oauth.ErrUnknown, "failed to encode request").WithCause(err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return oauth.NewAuthError(oauth.ErrUnknown, "failed to create request").WithCause(err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Identity request failed",
			"path", path,
			"request_id", requestID,
			"timeout", isTimeout(err),
			"error", err)
		return oauth.NewAuthError(oauth.ErrNetwork, fmt.Sprintf("%s %s failed", method, path)).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		authErr := parseErrorResponse(resp.StatusCode, body)
		c.logger.Debug("Identity request rejected",
			"path", path,
			"request_id", requestID,
			"status", resp.StatusCode,
			"code", authErr.Code)
		return authErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oauth.NewAuthError(oauth.ErrServer, "failed to parse response").
			WithStatus(resp.StatusCode).
			WithCause(err)
	}
	return nil
}

// errorResponse accepts both the identity service's native error shape and
// the RFC 6749 one.
type errorResponse struct {
	ErrorCode        string         `json:"error_code"`
	Code             string         `json:"code"`
	Error            string         `json:"error"`
	Message          string         `json:"message"`
	ErrorDescription string         `json:"error_description"`
	Details          map[string]any `json:"details"`
}

func parseErrorResponse(status int, body []byte) *oauth.AuthError {
	var er errorResponse
	if len(body) > 0 {
		_ = json.Unmarshal(body, &er)
	}

	serverCode := firstNonEmpty(er.ErrorCode, er.Code, er.Error)
	message := firstNonEmpty(er.Message, er.ErrorDescription)
	if message == "" {
		message = http.StatusText(status)
	}

	authErr := oauth.NewAuthError(oauth.ParseErrorCode(serverCode, status), message).WithStatus(status)
	authErr.Details = er.Details
	return authErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
