package state

import (
	"time"

	"authhub/pkg/oauth"
)

// Phase is the coarse lifecycle position derived from a snapshot.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseUnauthenticated
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Event names one of the lifecycle notifications a Store emits.
type Event int

const (
	EventSignedIn Event = iota
	EventSignedOut
	EventTokenRefreshed
	EventUserUpdated
	EventSessionExpired
	EventLoading

	eventCount
)

// Events lists every event in declaration order.
func Events() []Event {
	events := make([]Event, 0, eventCount)
	for e := Event(0); e < eventCount; e++ {
		events = append(events, e)
	}
	return events
}

func (e Event) String() string {
	switch e {
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	case EventUserUpdated:
		return "USER_UPDATED"
	case EventSessionExpired:
		return "SESSION_EXPIRED"
	case EventLoading:
		return "LOADING"
	default:
		return "UNKNOWN"
	}
}

func (e Event) valid() bool {
	return e >= 0 && e < eventCount
}

// AuthState is an immutable snapshot of the authentication state.
type AuthState struct {
	IsAuthenticated bool
	IsLoading       bool
	User            *oauth.User
	AccessToken     string
	ExpiresAt       time.Time
	Error           *oauth.AuthError
}

// Phase reports where the snapshot sits in the lifecycle.
func (s AuthState) Phase() Phase {
	switch {
	case s.IsLoading:
		return PhaseLoading
	case s.IsAuthenticated:
		return PhaseAuthenticated
	default:
		return PhaseUnauthenticated
	}
}

func (s AuthState) clone() AuthState {
	s.User = s.User.Clone()
	return s
}

// Payload is delivered to event listeners. Which fields are set depends on
// Event:
//
//	SIGNED_IN        User, AccessToken
//	SIGNED_OUT       Reason (may be empty)
//	TOKEN_REFRESHED  AccessToken, ExpiresAt
//	USER_UPDATED     User
//	SESSION_EXPIRED  Error
//	LOADING          IsLoading
type Payload struct {
	Event       Event
	User        *oauth.User
	AccessToken string
	ExpiresAt   time.Time
	Reason      string
	Error       *oauth.AuthError
	IsLoading   bool
}
