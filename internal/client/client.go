package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"authhub/internal/config"
	"authhub/internal/flow"
	"authhub/internal/identity"
	"authhub/internal/refresh"
	"authhub/internal/state"
	"authhub/internal/storage"
	"authhub/pkg/auth"
	"authhub/pkg/logging"
	"authhub/pkg/oauth"
)

// Reasons carried by SIGNED_OUT events raised by the client.
const (
	SignedOutLogout   = "logout"
	SignedOutExternal = "external"
)

// ErrCookieMode is returned by token accessors when the bearer token is held
// in the cookie jar.
var ErrCookieMode = errors.New("access token is managed by cookies")

// Client is the authentication runtime of one application.
type Client struct {
	cfg        config.Config
	mode       storage.Mode
	cookieMode bool
	now        func() time.Time

	store      storage.CredentialStore
	httpClient *http.Client
	identity   *identity.Client
	engine     *refresh.Engine
	state      *state.Store
	flow       *flow.Handler

	onAuthError func(*oauth.AuthError)
	watch       bool
	ownsSession bool

	mu        sync.Mutex
	watcher   *storage.Watcher
	closed    bool
	closeOnce sync.Once
}

// New validates cfg and builds a client. Call Initialize before use and Close
// when done.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{watch: true, userAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(&o)
	}

	now := time.Now
	if o.clock != nil {
		now = o.clock.Now
	}

	mode, err := storage.ParseMode(cfg.Storage.Mode)
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil {
		store, err = storage.New(mode, storage.Options{
			Dir:       cfg.Storage.Dir,
			SessionID: o.sessionID,
			BaseURL:   cfg.BaseURL,
			Now:       now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	if o.httpClient != nil {
		hc := *o.httpClient
		httpClient = &hc
	}
	if jar := storage.CookieJar(store); jar != nil {
		httpClient.Jar = jar
	}

	idOpts := []identity.ClientOption{
		identity.WithHTTPClient(httpClient),
		identity.WithUserAgent(o.userAgent),
		identity.WithLogger(logging.Logger()),
		identity.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
	}
	if cfg.APIKey != "" {
		idOpts = append(idOpts, identity.WithAPIKey(cfg.APIKey))
	}

	c := &Client{
		cfg:         cfg,
		mode:        mode,
		cookieMode:  storage.IsCookieMode(store),
		now:         now,
		store:       store,
		httpClient:  httpClient,
		identity:    identity.NewClient(cfg.BaseURL, idOpts...),
		onAuthError: o.onAuthError,
		watch:       o.watch,
		ownsSession: o.store == nil && o.sessionID == "",
	}

	c.state = state.NewStore(state.Config{
		Store:     store,
		FetchUser: c.identity.FetchUser,
		Now:       now,
	})

	c.engine, err = refresh.NewEngine(refresh.Config{
		Store:                store,
		Refresher:            c.identity,
		Clock:                o.clock,
		ThresholdSeconds:     cfg.Refresh.ThresholdSeconds,
		MaxRefreshInterval:   cfg.MaxRefreshInterval(),
		OnTokenRefresh:       c.state.SetTokenRefreshed,
		OnSessionExpired:     c.handleSessionExpired,
		OnTokenReuseDetected: c.handleTokenReuse,
	})
	if err != nil {
		return nil, err
	}

	c.flow = flow.NewHandler(flow.HandlerConfig{
		Redirect: flow.RedirectConfig{
			BaseURL:     cfg.BaseURL,
			App:         cfg.App,
			RedirectURI: cfg.RedirectURI,
			CookieMode:  c.cookieMode,
		},
		Exchanger: c.identity,
		Store:     store,
		Now:       now,
	})

	return c, nil
}

// Initialize restores the stored session. An expired access token that still
// has a refresh token is renewed first; when that fails the snapshot keeps
// the renewal error. Afterwards auto-refresh is armed when the user is
// authenticated and it is enabled.
func (c *Client) Initialize(ctx context.Context) {
	var renewErr *oauth.AuthError
	rec, err := c.store.GetTokens()
	if err == nil && rec != nil && rec.HasRefreshToken() && storage.IsTokenExpired(rec, 0, c.now()) {
		logging.Debug("Client", "Stored access token expired, renewing before restore")
		if res := c.engine.Refresh(ctx); !res.Success && res.Error != nil {
			logging.Info("Client", "Stored session could not be renewed: %s", res.Error.Code)
			renewErr = res.Error
		}
	}

	c.state.Initialize(ctx)
	if renewErr != nil && !c.state.IsAuthenticated() {
		c.state.SetError(renewErr)
	}
	c.startAutoRefresh()
	c.startWatch()
}

// Login starts a login and returns the URL to send the user to.
func (c *Client) Login(opts flow.LoginOptions) (*flow.AuthRequest, error) {
	return c.flow.StartLogin(opts)
}

// HandleCallback completes the login started by Login using the query
// parameters of the callback request.
func (c *Client) HandleCallback(ctx context.Context, params url.Values) (*flow.CallbackResult, error) {
	res, err := c.flow.HandleCallback(ctx, params)
	if err != nil {
		var cbErr *flow.CallbackError
		if errors.As(err, &cbErr) {
			c.state.SetError(cbErr.AuthError())
		}
		return nil, err
	}

	rec, err := c.store.GetTokens()
	if err != nil || rec == nil {
		rec = res.Tokens
	}
	c.state.SetSignedIn(res.User, rec)
	c.startAutoRefresh()

	return res, nil
}

// Logout forgets the local session. It does not contact the identity service;
// use LogoutURL to end the server session as well.
func (c *Client) Logout() error {
	c.engine.StopAutoRefresh()
	c.flow.PKCE().Clear()

	err := c.store.ClearTokens()
	c.state.SetSignedOut(SignedOutLogout)
	logging.Audit("logout")

	if err != nil {
		return fmt.Errorf("failed to clear stored tokens: %w", err)
	}
	return nil
}

// LogoutURL returns the identity service URL that ends the server session.
func (c *Client) LogoutURL(returnTo string, global bool) (string, error) {
	return flow.LogoutURL(c.flow.RedirectConfig(), returnTo, global)
}

// GetAccessToken returns a usable access token, refreshing it first when it is
// inside the refresh threshold. It reports false in cookie mode and when no
// valid token can be produced.
func (c *Client) GetAccessToken(ctx context.Context) (string, bool) {
	if c.cookieMode {
		return "", false
	}
	return c.engine.GetValidToken(ctx)
}

// Refresh renews the access token now. Concurrent calls share one exchange.
func (c *Client) Refresh(ctx context.Context) refresh.Result {
	if c.cookieMode {
		return refresh.Result{Error: oauth.NewAuthError(oauth.ErrTokenInvalid, "token refresh is handled by the server in cookie mode")}
	}
	return c.engine.Refresh(ctx)
}

// FetchUser loads the current user from the identity service and publishes it.
func (c *Client) FetchUser(ctx context.Context) (*oauth.User, error) {
	var token string
	if !c.cookieMode {
		t, ok := c.engine.GetValidToken(ctx)
		if !ok {
			return nil, oauth.NewAuthError(oauth.ErrSessionExpired, "not logged in")
		}
		token = t
	}

	user, err := c.identity.FetchUser(ctx, token)
	if err != nil {
		return nil, err
	}
	c.state.SetUser(user)
	return user, nil
}

// State returns the current auth state snapshot.
func (c *Client) State() state.AuthState {
	return c.state.State()
}

// Subscribe registers fn for every state change. It is called at once with the
// current state.
func (c *Client) Subscribe(fn func(state.AuthState)) (unsubscribe func()) {
	return c.state.Subscribe(fn)
}

// On registers fn for one event.
func (c *Client) On(event state.Event, fn func(state.Payload)) (unsubscribe func()) {
	return c.state.On(event, fn)
}

// IsCookieMode reports whether the bearer token lives in the cookie jar.
func (c *Client) IsCookieMode() bool {
	return c.cookieMode
}

// HTTPClient returns a client for calling APIs protected by the identity
// service. In cookie mode it carries the session cookie, otherwise an
// Authorization header from TokenSource.
func (c *Client) HTTPClient() *http.Client {
	if c.cookieMode {
		hc := *c.httpClient
		return &hc
	}
	return &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: c.TokenSource(context.Background()),
			Base:   c.httpClient.Transport,
		},
	}
}

// Status summarizes the session for display.
func (c *Client) Status() *auth.StatusResponse {
	st := c.state.State()
	now := c.now()

	resp := &auth.StatusResponse{
		BaseURL:     c.cfg.BaseURL,
		App:         c.cfg.App,
		StorageMode: string(c.mode),
		CookieMode:  c.cookieMode,
		AutoRefresh: c.engine.IsAutoRefreshing(),
	}

	rec, err := c.store.GetTokens()
	if err != nil {
		logging.Warn("Client", "Failed to read stored tokens: %v", err)
	}
	if rec != nil {
		if !c.cookieMode {
			resp.TokenFingerprint = oauth.NewRedactedToken(rec.AccessToken).Fingerprint()
		}
		if !rec.ExpiresAt.IsZero() {
			exp := rec.ExpiresAt
			resp.ExpiresAt = &exp
		}
		resp.HasRefreshToken = rec.HasRefreshToken()
	}

	switch {
	case st.IsLoading:
		resp.State = auth.StateLoading
	case st.IsAuthenticated:
		resp.State = auth.StateAuthenticated
	case st.Error != nil, rec != nil && storage.IsTokenExpired(rec, 0, now):
		resp.State = auth.StateExpired
	default:
		resp.State = auth.StateUnauthenticated
	}

	if st.User != nil {
		resp.User = &auth.UserStatus{ID: st.User.ID, Email: st.User.Email, Name: st.User.Name}
	}
	if st.Error != nil {
		resp.Error = &auth.ErrorStatus{Code: string(st.Error.Code), Message: st.Error.Message}
	}
	return resp
}

// Close stops auto-refresh, the file watcher and the PKCE sweep, and drops
// every listener. A session store created by the client is removed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		w := c.watcher
		c.watcher = nil
		c.mu.Unlock()

		if w != nil {
			w.Stop()
		}
		c.engine.Close()
		c.flow.PKCE().Stop()
		c.state.ClearListeners()

		if ss, ok := c.store.(*storage.SessionStore); ok && c.ownsSession {
			err = ss.Close()
		}
	})
	return err
}

func (c *Client) startAutoRefresh() {
	if !c.cfg.Refresh.AutoRefresh || c.cookieMode || !c.state.IsAuthenticated() {
		return
	}
	c.engine.StartAutoRefresh()
}

func (c *Client) handleSessionExpired(err *oauth.AuthError) {
	c.state.SetSessionExpired(err)
	// Reuse already reported through handleTokenReuse.
	if err == nil || err.Code != oauth.ErrTokenReuseDetected {
		c.reportAuthError(err)
	}
}

func (c *Client) handleTokenReuse() {
	err := oauth.NewAuthError(oauth.ErrTokenReuseDetected, "Security breach detected. Please log in again.")
	c.state.SetError(err)
	c.reportAuthError(err)
}

func (c *Client) reportAuthError(err *oauth.AuthError) {
	if c.onAuthError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Client", fmt.Errorf("panic: %v", r), "OnAuthError hook panicked")
		}
	}()
	c.onAuthError(err)
}
