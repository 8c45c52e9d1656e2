package storage

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"authhub/pkg/oauth"
)

// CookieStore is the credential store for cookie mode, where the identity
// service keeps the bearer token in an HttpOnly cookie.
//
// The cookies live in the store's jar and are sent by any http.Client that
// uses it. The store itself keeps only the expiry, so GetTokens returns a
// record with an empty AccessToken.
type CookieStore struct {
	mu        sync.RWMutex
	baseURL   *url.URL
	jar       *cookiejar.Jar
	expiresAt time.Time
	signedIn  bool
	now       func() time.Time
}

// NewCookieStore creates a cookie store scoped to baseURL.
func NewCookieStore(baseURL string, now func() time.Time) (*CookieStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	jar, err := newJar()
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &CookieStore{baseURL: u, jar: jar, now: now}, nil
}

func newJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// IsCookieMode always returns true.
func (c *CookieStore) IsCookieMode() bool {
	return true
}

// Jar returns a jar that always forwards to the store's current cookies.
func (c *CookieStore) Jar() http.CookieJar {
	return &jarRef{store: c}
}

// GetTokens returns a placeholder record carrying only the expiry, or nil when
// the session is absent or expired.
func (c *CookieStore) GetTokens() (*oauth.TokenRecord, error) {
	c.mu.RLock()
	signedIn, expiresAt := c.signedIn, c.expiresAt
	c.mu.RUnlock()

	if !signedIn {
		return nil, nil
	}
	if !expiresAt.IsZero() && !c.now().Before(expiresAt) {
		return nil, c.ClearTokens()
	}
	return &oauth.TokenRecord{
		AccessToken: "",
		TokenType:   oauth.DefaultTokenType,
		ExpiresAt:   expiresAt,
	}, nil
}

// SetTokens records the session's expiry. Token values in rec are ignored; the
// real credentials arrive as cookies.
func (c *CookieStore) SetTokens(rec *oauth.TokenRecord) error {
	if rec == nil {
		return c.ClearTokens()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signedIn = true
	c.expiresAt = rec.ExpiresAt
	return nil
}

// ClearTokens forgets the session and discards all cookies.
func (c *CookieStore) ClearTokens() error {
	jar, err := newJar()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signedIn = false
	c.expiresAt = time.Time{}
	c.jar = jar
	return nil
}

// HasSessionCookie reports whether the jar holds any cookie for the base URL.
func (c *CookieStore) HasSessionCookie() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.jar.Cookies(c.baseURL)) > 0
}

// jarRef forwards to the store's current jar so clients built before a
// logout stop sending the old cookies.
type jarRef struct {
	store *CookieStore
}

func (j *jarRef) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.store.mu.RLock()
	jar := j.store.jar
	j.store.mu.RUnlock()
	jar.SetCookies(u, cookies)
}

func (j *jarRef) Cookies(u *url.URL) []*http.Cookie {
	j.store.mu.RLock()
	jar := j.store.jar
	j.store.mu.RUnlock()
	return jar.Cookies(u)
}
