package oauth

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestRedactedToken_Formatting(t *testing.T) {
	token := NewRedactedToken("super-secret-token-12345")

	if token.Value() != "super-secret-token-12345" {
		t.Errorf("Expected actual token, got %s", token.Value())
	}

	for _, got := range []string{
		token.String(),
		fmt.Sprintf("%s", token),
		fmt.Sprintf("%v", token),
	} {
		if got != "[REDACTED]" {
			t.Errorf("expected [REDACTED], got %q", got)
		}
	}

	if token.GoString() != "oauth.RedactedToken{[REDACTED]}" {
		t.Errorf("unexpected GoString %q", token.GoString())
	}
}

func TestRedactedToken_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Token RedactedToken `json:"token"`
	}{NewRedactedToken("secret")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"token":"[REDACTED]"}` {
		t.Errorf("unexpected JSON %s", data)
	}
}

func TestRedactedToken_Fingerprint(t *testing.T) {
	a := NewRedactedToken("rt-1")
	b := NewRedactedToken("rt-2")

	if len(a.Fingerprint()) != 8 {
		t.Errorf("expected 8 hex chars, got %q", a.Fingerprint())
	}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("distinct tokens should have distinct fingerprints")
	}
	if NewRedactedToken("").Fingerprint() != "" {
		t.Error("empty token should have empty fingerprint")
	}
	if !NewRedactedToken("").IsEmpty() {
		t.Error("expected IsEmpty")
	}
}
