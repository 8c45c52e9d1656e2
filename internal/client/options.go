package client

import (
	"net/http"

	"authhub/internal/refresh"
	"authhub/internal/storage"
	"authhub/pkg/oauth"
)

// DefaultUserAgent is sent to the identity service unless WithUserAgent
// overrides it.
const DefaultUserAgent = "authhub/dev"

// Option configures a Client.
type Option func(*options)

type options struct {
	clock       refresh.Clock
	httpClient  *http.Client
	store       storage.CredentialStore
	userAgent   string
	sessionID   string
	watch       bool
	onAuthError func(*oauth.AuthError)
}

// WithClock replaces the system clock. Tests pass a mock clock to drive the
// refresh timer.
func WithClock(clock refresh.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithHTTPClient sets the client used for identity calls. In cookie mode its
// Jar is replaced with the store's jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithStore uses store instead of building one from the configured mode.
func WithStore(store storage.CredentialStore) Option {
	return func(o *options) { o.store = store }
}

// WithUserAgent sets the User-Agent of identity calls.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithSessionID names the session store's directory, letting several
// processes share one session.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// WithoutWatch disables watching the durable store for external changes.
func WithoutWatch() Option {
	return func(o *options) { o.watch = false }
}

// WithOnAuthError registers a hook called when the session expires or token
// reuse is detected.
func WithOnAuthError(fn func(*oauth.AuthError)) Option {
	return func(o *options) { o.onAuthError = fn }
}
