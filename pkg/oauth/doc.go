// Package oauth holds the OAuth types shared by every authhub component.
//
// # Core Components
//
//   - PKCE: verifier, S256 challenge and CSRF state generation (RFC 7636)
//   - TokenRecord: the credential set persisted by credential stores
//   - TokenResponse: the identity service's token endpoint response
//   - AuthError: the error taxonomy with retry classification
//   - JWT helpers: unverified claim decoding for display and scheduling
//   - RedactedToken: a wrapper that keeps credentials out of logs
//
// # Usage
//
//	proof, err := oauth.GeneratePKCE()
//	if errors.Is(err, oauth.ErrCryptoUnavailable) {
//		// abort the login, never fall back to a weaker source
//	}
//	state, err := oauth.GenerateState(32)
package oauth
