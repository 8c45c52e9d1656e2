package storage

import (
	"time"

	"authhub/pkg/oauth"
)

// IsTokenExpired reports whether rec expires within thresholdSeconds of now,
// i.e. now + threshold >= ExpiresAt. A nil record is expired; a record without
// an expiry never is.
func IsTokenExpired(rec *oauth.TokenRecord, thresholdSeconds int, now time.Time) bool {
	if rec == nil {
		return true
	}
	if rec.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(time.Duration(thresholdSeconds) * time.Second).Before(rec.ExpiresAt)
}

// ExpiresIn returns the time left before rec expires, never negative.
func ExpiresIn(rec *oauth.TokenRecord, now time.Time) time.Duration {
	if rec == nil || rec.ExpiresAt.IsZero() {
		return 0
	}
	d := rec.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// NewTokenRecord builds a record that expires expiresInSeconds after now.
func NewTokenRecord(accessToken, refreshToken string, expiresInSeconds int64, tokenType string, now time.Time) *oauth.TokenRecord {
	if tokenType == "" {
		tokenType = oauth.DefaultTokenType
	}
	return &oauth.TokenRecord{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(time.Duration(expiresInSeconds) * time.Second),
		TokenType:    tokenType,
	}
}

// unusable reports whether a stored record can be discarded on read: it is
// past expiry and cannot be renewed.
func unusable(rec *oauth.TokenRecord, now time.Time) bool {
	return !rec.HasRefreshToken() && IsTokenExpired(rec, 0, now)
}
