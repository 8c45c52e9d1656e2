package cmd

import "fmt"

// AuthRequiredError means the command needs a session and none exists.
type AuthRequiredError struct {
	BaseURL string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf(`Not logged in to %s

To authenticate, run:
  authhub auth login`, e.BaseURL)
}

// AuthExpiredError means the session could not be renewed.
type AuthExpiredError struct {
	BaseURL string
	Reason  error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf(`Session expired for %s: %v

To re-authenticate, run:
  authhub auth login`, e.BaseURL, e.Reason)
}

func (e *AuthExpiredError) Unwrap() error {
	return e.Reason
}

// AuthFailedError means a login or refresh attempt failed.
type AuthFailedError struct {
	BaseURL string
	Reason  error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf(`Authentication failed for %s: %v

To retry, run:
  authhub auth login`, e.BaseURL, e.Reason)
}

func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}
