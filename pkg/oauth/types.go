package oauth

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenType is assumed when the identity service omits token_type.
const DefaultTokenType = "Bearer"

// TokenRecord is the credential set persisted by a credential store.
//
// ExpiresAt is absolute. On the wire and on disk it is encoded as epoch
// milliseconds under "expires_at". A record without a RefreshToken is usable
// until it expires but cannot be renewed.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string
}

type tokenRecordJSON struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
}

// MarshalJSON encodes ExpiresAt as epoch milliseconds.
func (r TokenRecord) MarshalJSON() ([]byte, error) {
	var ms int64
	if !r.ExpiresAt.IsZero() {
		ms = r.ExpiresAt.UnixMilli()
	}
	return json.Marshal(tokenRecordJSON{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    ms,
		TokenType:    r.TokenType,
	})
}

// UnmarshalJSON decodes the epoch-millisecond form written by MarshalJSON.
func (r *TokenRecord) UnmarshalJSON(data []byte) error {
	var raw tokenRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.AccessToken = raw.AccessToken
	r.RefreshToken = raw.RefreshToken
	r.TokenType = raw.TokenType
	r.ExpiresAt = time.Time{}
	if raw.ExpiresAt > 0 {
		r.ExpiresAt = time.UnixMilli(raw.ExpiresAt)
	}
	return nil
}

// Clone returns a copy of r, or nil when r is nil.
func (r *TokenRecord) Clone() *TokenRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// HasRefreshToken reports whether the record can be renewed silently.
func (r *TokenRecord) HasRefreshToken() bool {
	return r != nil && r.RefreshToken != ""
}

// ToOAuth2Token converts the record for use with golang.org/x/oauth2.
func (r *TokenRecord) ToOAuth2Token() *oauth2.Token {
	tokenType := r.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    tokenType,
		RefreshToken: r.RefreshToken,
		Expiry:       r.ExpiresAt,
	}
}

// TokenResponse is the success body of the refresh and token endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Record converts the response into a TokenRecord issued at now.
// When the response carries no expires_in, the access token's exp claim is used
// if it is a JWT.
func (tr *TokenResponse) Record(now time.Time) *TokenRecord {
	rec := &TokenRecord{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if rec.TokenType == "" {
		rec.TokenType = DefaultTokenType
	}
	switch {
	case tr.ExpiresIn > 0:
		rec.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		if exp, ok := JWTExpiration(tr.AccessToken); ok {
			rec.ExpiresAt = exp
		}
	}
	return rec
}

// User is the identity returned by the identity service's current-user endpoint.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Name          string         `json:"name,omitempty"`
	AvatarURL     string         `json:"avatarUrl,omitempty"`
	EmailVerified bool           `json:"emailVerified"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep-enough copy of u for publishing in state snapshots.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Metadata != nil {
		c.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// DisplayName returns the name if set, otherwise the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
