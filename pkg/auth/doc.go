// Package auth holds the authentication status types shared between the
// client facade and the command-line output.
package auth
