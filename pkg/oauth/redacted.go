package oauth

import (
	"crypto/sha256"
	"encoding/hex"
)

const redacted = "[REDACTED]"

// RedactedToken wraps a credential so that formatting or serializing it never
// reveals the value.
//
//	tok := oauth.NewRedactedToken(rec.RefreshToken)
//	logging.Debug("Refresh", "presenting %s", tok) // presenting [REDACTED]
type RedactedToken struct {
	value string
}

// NewRedactedToken creates a new RedactedToken wrapping the given value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the actual token value. Never log the result.
func (t RedactedToken) Value() string {
	return t.value
}

func (t RedactedToken) String() string {
	return redacted
}

func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{" + redacted + "}"
}

// IsEmpty returns true if the token value is empty.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// Fingerprint returns the first 8 hex characters of SHA-256(value). It lets
// audit records correlate a rotated credential without exposing it.
func (t RedactedToken) Fingerprint() string {
	if t.value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(t.value))
	return hex.EncodeToString(sum[:4])
}

func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
