package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() error = %v", err)
	}

	if len(pkce.CodeVerifier) < MinVerifierLength {
		t.Errorf("CodeVerifier length = %d, want >= %d", len(pkce.CodeVerifier), MinVerifierLength)
	}

	if pkce.Method != "S256" {
		t.Errorf("Method = %q, want %q", pkce.Method, "S256")
	}

	// Server-side recomputation must match.
	hash := sha256.Sum256([]byte(pkce.CodeVerifier))
	expectedChallenge := base64.RawURLEncoding.EncodeToString(hash[:])
	if pkce.CodeChallenge != expectedChallenge {
		t.Errorf("CodeChallenge = %q, want %q", pkce.CodeChallenge, expectedChallenge)
	}

	stdlibChallenge := oauth2.S256ChallengeFromVerifier(pkce.CodeVerifier)
	if pkce.CodeChallenge != stdlibChallenge {
		t.Errorf("CodeChallenge = %q, want oauth2 result %q", pkce.CodeChallenge, stdlibChallenge)
	}

	if err := ValidateVerifier(pkce.CodeVerifier); err != nil {
		t.Errorf("generated verifier failed validation: %v", err)
	}
}

func TestChallengeFrom_Deterministic(t *testing.T) {
	// RFC 7636 appendix B test vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	assert.Equal(t, want, ChallengeFrom(verifier))
	assert.Equal(t, ChallengeFrom(verifier), ChallengeFrom(verifier))
}

func TestGeneratePKCE_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pkce, err := GeneratePKCE()
		require.NoError(t, err)
		if seen[pkce.CodeVerifier] {
			t.Fatalf("verifier repeated after %d generations", i)
		}
		seen[pkce.CodeVerifier] = true
	}
}

func TestGenerateState(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{"default", 0, DefaultStateLength},
		{"negative", -5, DefaultStateLength},
		{"short", 8, 8},
		{"odd", 43, 43},
		{"long", 128, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := GenerateState(tt.length)
			require.NoError(t, err)
			assert.Len(t, state, tt.want)
			assert.NotContains(t, state, "=")
		})
	}
}

func TestGenerateState_IndependentOfVerifier(t *testing.T) {
	pkce, err := GeneratePKCE()
	require.NoError(t, err)
	state, err := GenerateState(len(pkce.CodeVerifier))
	require.NoError(t, err)

	assert.NotEqual(t, pkce.CodeVerifier, state)
	assert.NotEqual(t, pkce.CodeChallenge, state)
}

func TestCryptoUnavailable(t *testing.T) {
	orig := randReader
	randReader = failingReader{}
	defer func() { randReader = orig }()

	_, err := GeneratePKCE()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCryptoUnavailable))

	_, err = GenerateState(32)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCryptoUnavailable))
}

func TestValidateVerifier(t *testing.T) {
	tests := []struct {
		name     string
		verifier string
		wantErr  bool
	}{
		{"minimum length", strings.Repeat("a", 43), false},
		{"maximum length", strings.Repeat("Z", 128), false},
		{"unreserved symbols", strings.Repeat("-._~", 11), false},
		{"too short", strings.Repeat("a", 42), true},
		{"too long", strings.Repeat("a", 129), true},
		{"padding", strings.Repeat("a", 42) + "=", true},
		{"space", strings.Repeat("a", 42) + " ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVerifier(tt.verifier)
			if tt.wantErr {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, "code_verifier", ve.Field)
				return
			}
			assert.NoError(t, err)
		})
	}
}
