package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code verifier.
	// 32 bytes encode to a 43 character verifier, the RFC 7636 minimum.
	pkceVerifierBytes = 32

	// DefaultStateLength is the length of a CSRF state value when none is requested.
	DefaultStateLength = 32

	// MinVerifierLength and MaxVerifierLength bound a code verifier (RFC 7636 section 4.1).
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// MethodS256 is the only code challenge method authhub issues.
	MethodS256 = "S256"
)

// ErrCryptoUnavailable is returned when no secure random source can be read.
// A login flow must not proceed when this error is seen.
var ErrCryptoUnavailable = errors.New("secure random source unavailable")

// randReader is the entropy source. Tests replace it to simulate a broken RNG.
var randReader io.Reader = rand.Reader

// PKCEProof is a code verifier and its derived S256 challenge.
type PKCEProof struct {
	CodeVerifier  string `json:"code_verifier"`
	CodeChallenge string `json:"code_challenge"`
	Method        string `json:"code_challenge_method"`
}

// GeneratePKCE generates a new verifier and its S256 challenge.
func GeneratePKCE() (*PKCEProof, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}

	return &PKCEProof{
		CodeVerifier:  verifier,
		CodeChallenge: ChallengeFrom(verifier),
		Method:        MethodS256,
	}, nil
}

// GenerateVerifier returns a base64url-encoded (unpadded) code verifier built
// from 32 bytes of secure randomness.
func GenerateVerifier() (string, error) {
	buf, err := randomBytes(pkceVerifierBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ChallengeFrom computes the S256 code challenge for verifier.
func ChallengeFrom(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState returns a CSRF state value of exactly length characters from
// the base64url alphabet. A length of zero or less selects DefaultStateLength.
func GenerateState(length int) (string, error) {
	if length <= 0 {
		length = DefaultStateLength
	}

	// Every 3 bytes encode to 4 characters; draw enough and trim.
	buf, err := randomBytes((length*3)/4 + 3)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}

// ValidateVerifier reports whether v is a well-formed code verifier.
func ValidateVerifier(v string) error {
	if len(v) < MinVerifierLength || len(v) > MaxVerifierLength {
		return &ValidationError{
			Field:  "code_verifier",
			Reason: fmt.Sprintf("length must be between %d and %d characters, got %d", MinVerifierLength, MaxVerifierLength, len(v)),
		}
	}
	for i := 0; i < len(v); i++ {
		if !isUnreserved(v[i]) {
			return &ValidationError{
				Field:  "code_verifier",
				Reason: fmt.Sprintf("invalid character %q at position %d", v[i], i),
			}
		}
	}
	return nil
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(randReader, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	return buf, nil
}
