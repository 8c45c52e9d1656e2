package storage

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"authhub/pkg/oauth"
)

// CredentialStore persists a single TokenRecord.
//
// Writes replace the whole record; no implementation patches individual
// fields. GetTokens returns a nil record (and nil error) when no usable
// credential exists, and may discard data it judges unusable.
type CredentialStore interface {
	GetTokens() (*oauth.TokenRecord, error)
	SetTokens(rec *oauth.TokenRecord) error
	ClearTokens() error
}

// CookieModer is implemented by stores whose bearer token lives in a
// server-managed cookie rather than in the record.
type CookieModer interface {
	IsCookieMode() bool
}

// IsCookieMode reports whether s delegates the bearer token to cookies.
func IsCookieMode(s CredentialStore) bool {
	cm, ok := s.(CookieModer)
	return ok && cm.IsCookieMode()
}

// Mode selects a CredentialStore variant.
type Mode string

const (
	ModeDurable Mode = "durable"
	ModeSession Mode = "session"
	ModeMemory  Mode = "memory"
	ModeCookie  Mode = "cookie"
)

// ParseMode converts a configured storage mode name. "file" and "local" are
// accepted as aliases for durable.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "durable", "file", "local":
		return ModeDurable, nil
	case "session":
		return ModeSession, nil
	case "memory":
		return ModeMemory, nil
	case "cookie":
		return ModeCookie, nil
	default:
		return "", fmt.Errorf("unknown storage mode %q", s)
	}
}

// Options configures the store built by New. Fields that do not apply to the
// selected mode are ignored.
type Options struct {
	// Dir is the durable store's directory. Defaults to ~/.config/authhub/tokens.
	Dir string

	// SessionID names the session store's directory. Defaults to a random uuid.
	SessionID string

	// BaseURL scopes the cookie store's jar.
	BaseURL string

	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// New builds the CredentialStore for mode.
func New(mode Mode, opts Options) (CredentialStore, error) {
	switch mode {
	case ModeDurable, "":
		return NewFileStore(FileStoreConfig{Dir: opts.Dir, Now: opts.Now})
	case ModeSession:
		return NewSessionStore(SessionStoreConfig{SessionID: opts.SessionID, Now: opts.Now})
	case ModeMemory:
		return NewMemoryStore(), nil
	case ModeCookie:
		return NewCookieStore(opts.BaseURL, opts.Now)
	default:
		return nil, fmt.Errorf("unknown storage mode %q", mode)
	}
}

// CookieJar returns the jar of a cookie-mode store, or nil for other stores.
func CookieJar(s CredentialStore) http.CookieJar {
	if cs, ok := s.(*CookieStore); ok {
		return cs.Jar()
	}
	return nil
}
