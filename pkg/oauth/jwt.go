package oauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeJWTClaims returns the claims of token without verifying its signature.
// It is for display and scheduling only; the identity service remains the
// authority on validity.
func DecodeJWTClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// JWTExpiration returns the exp claim of token, if it is a JWT carrying one.
func JWTExpiration(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims, err := DecodeJWTClaims(token)
	if err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsJWTExpired reports whether token's exp claim lies within threshold of now.
// Tokens that are not JWTs or carry no exp claim are reported as expired.
func IsJWTExpired(token string, threshold time.Duration, now time.Time) bool {
	exp, ok := JWTExpiration(token)
	if !ok {
		return true
	}
	return !now.Add(threshold).Before(exp)
}

// JWTSubject returns the sub and email claims, when present.
func JWTSubject(token string) (subject, email string) {
	claims, err := DecodeJWTClaims(token)
	if err != nil {
		return "", ""
	}
	subject, _ = claims.GetSubject()
	if e, ok := claims["email"].(string); ok {
		email = e
	}
	return subject, email
}
