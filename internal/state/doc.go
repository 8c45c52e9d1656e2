// Package state tracks the authentication state of one client instance.
//
// A Store holds a single AuthState snapshot that is replaced as a whole on
// every transition. Observers either subscribe to the snapshot channel, which
// replays the current snapshot on subscription, or listen to one of the six
// lifecycle events:
//
//	EventSignedIn        a login or callback completed
//	EventSignedOut       the user logged out
//	EventTokenRefreshed  the refresh engine renewed the access token
//	EventUserUpdated     the profile was re-fetched
//	EventSessionExpired  the credential can no longer be renewed
//	EventLoading         Initialize started or finished
//
// Listeners run synchronously on the goroutine that caused the transition. A
// listener that panics is recovered and logged; the remaining listeners are
// still called.
package state
