package state

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"authhub/internal/storage"
	"authhub/pkg/logging"
	"authhub/pkg/oauth"
)

// UserFetcher loads the profile for an access token. In cookie mode the token
// is empty and the fetcher relies on the ambient session cookie.
type UserFetcher func(ctx context.Context, accessToken string) (*oauth.User, error)

// Config wires a Store to the credential it reports on.
type Config struct {
	Store storage.CredentialStore

	// FetchUser is optional. Without it a stored, unexpired credential alone
	// counts as authenticated.
	FetchUser UserFetcher

	// Now defaults to time.Now.
	Now func() time.Time
}

// Store owns the current AuthState and its listeners.
type Store struct {
	cfg Config
	now func() time.Time

	mu       sync.RWMutex
	snapshot AuthState
	version  uint64

	listenerMu     sync.Mutex
	nextID         uint64
	stateListeners map[uint64]*stateListener
	eventListeners map[Event]map[uint64]func(Payload)
}

// NewStore returns a Store in the loading phase.
func NewStore(cfg Config) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		cfg:            cfg,
		now:            now,
		snapshot:       AuthState{IsLoading: true},
		version:        1,
		stateListeners: make(map[uint64]*stateListener),
		eventListeners: make(map[Event]map[uint64]func(Payload), eventCount),
	}
	for _, e := range Events() {
		s.eventListeners[e] = make(map[uint64]func(Payload))
	}
	return s
}

// State returns a copy of the current snapshot.
func (s *Store) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.clone()
}

// Phase returns the lifecycle phase of the current snapshot.
func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Phase()
}

// IsAuthenticated reports whether the current snapshot is authenticated.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.IsAuthenticated
}

// User returns a copy of the current user, or nil.
func (s *Store) User() *oauth.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.User.Clone()
}

// Subscribe registers fn for every snapshot change and calls it once with the
// current snapshot before returning. A listener never receives a snapshot
// older than one it has already seen.
func (s *Store) Subscribe(fn func(AuthState)) (unsubscribe func()) {
	l := &stateListener{fn: fn}

	s.mu.RLock()
	current, version := s.snapshot.clone(), s.version
	s.listenerMu.Lock()
	s.nextID++
	id := s.nextID
	s.stateListeners[id] = l
	s.listenerMu.Unlock()
	s.mu.RUnlock()

	s.deliver(l, current, version)

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.stateListeners, id)
	}
}

// On registers fn for one event. Nothing is replayed.
func (s *Store) On(event Event, fn func(Payload)) (unsubscribe func()) {
	if !event.valid() {
		logging.Warn("State", "Ignoring listener for unknown event %d", int(event))
		return func() {}
	}

	s.listenerMu.Lock()
	s.nextID++
	id := s.nextID
	s.eventListeners[event][id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.eventListeners[event], id)
	}
}

// ClearListeners removes every snapshot and event listener.
func (s *Store) ClearListeners() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.stateListeners = make(map[uint64]*stateListener)
	for _, e := range Events() {
		s.eventListeners[e] = make(map[uint64]func(Payload))
	}
}

// Initialize derives the snapshot from the credential store. The snapshot is
// in the loading phase meanwhile. LOADING is emitted with true on entry and
// false on return, whatever the outcome.
func (s *Store) Initialize(ctx context.Context) {
	s.replace(AuthState{IsLoading: true})
	s.emit(Payload{Event: EventLoading, IsLoading: true})
	defer s.emit(Payload{Event: EventLoading, IsLoading: false})

	rec, err := s.cfg.Store.GetTokens()
	if err != nil {
		logging.Warn("State", "Failed to read stored tokens: %v", err)
	}
	if rec == nil || storage.IsTokenExpired(rec, 0, s.now()) {
		s.replace(AuthState{})
		return
	}

	var user *oauth.User
	if s.cfg.FetchUser != nil {
		user = s.fetchUser(ctx, rec.AccessToken)
		if user == nil {
			s.replace(AuthState{})
			return
		}
	}

	s.replace(AuthState{
		IsAuthenticated: true,
		User:            user,
		AccessToken:     rec.AccessToken,
		ExpiresAt:       rec.ExpiresAt,
	})
}

func (s *Store) fetchUser(ctx context.Context, accessToken string) (user *oauth.User) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("State", fmt.Errorf("panic in user fetcher: %v", r), "Treating session as signed out")
			user = nil
		}
	}()

	u, err := s.cfg.FetchUser(ctx, accessToken)
	if err != nil {
		logging.Debug("State", "User fetch during initialize failed: %v", err)
		return nil
	}
	return u
}

// SetSignedIn moves to authenticated with user and rec.
func (s *Store) SetSignedIn(user *oauth.User, rec *oauth.TokenRecord) {
	next := AuthState{IsAuthenticated: true, User: user.Clone()}
	if rec != nil {
		next.AccessToken = rec.AccessToken
		next.ExpiresAt = rec.ExpiresAt
	}
	s.replace(next)
	s.emit(Payload{Event: EventSignedIn, User: user.Clone(), AccessToken: next.AccessToken})
}

// SetSignedOut moves to unauthenticated. reason may be empty.
func (s *Store) SetSignedOut(reason string) {
	s.replace(AuthState{})
	s.emit(Payload{Event: EventSignedOut, Reason: reason})
}

// SetTokenRefreshed updates the token attributes and keeps everything else,
// including the authentication flag.
func (s *Store) SetTokenRefreshed(rec *oauth.TokenRecord) {
	if rec == nil {
		return
	}
	s.update(func(st *AuthState) {
		st.AccessToken = rec.AccessToken
		st.ExpiresAt = rec.ExpiresAt
	})
	s.emit(Payload{Event: EventTokenRefreshed, AccessToken: rec.AccessToken, ExpiresAt: rec.ExpiresAt})
}

// SetUser replaces the user without changing the authentication flag.
func (s *Store) SetUser(user *oauth.User) {
	s.update(func(st *AuthState) {
		st.User = user.Clone()
	})
	s.emit(Payload{Event: EventUserUpdated, User: user.Clone()})
}

// SetSessionExpired moves to unauthenticated and records err.
func (s *Store) SetSessionExpired(err *oauth.AuthError) {
	s.replace(AuthState{Error: err})
	s.emit(Payload{Event: EventSessionExpired, Error: err})
}

// SetError records err on the snapshot without a lifecycle event.
func (s *Store) SetError(err *oauth.AuthError) {
	s.update(func(st *AuthState) {
		st.Error = err
	})
}

func (s *Store) update(mutate func(*AuthState)) {
	s.mu.Lock()
	next := s.snapshot.clone()
	next.IsLoading = false
	mutate(&next)
	s.snapshot = next
	s.version++
	version := s.version
	s.mu.Unlock()

	s.notify(next, version)
}

func (s *Store) replace(next AuthState) {
	s.mu.Lock()
	s.snapshot = next
	s.version++
	version := s.version
	s.mu.Unlock()

	s.notify(next, version)
}

func (s *Store) notify(snapshot AuthState, version uint64) {
	s.listenerMu.Lock()
	listeners := make([]*stateListener, 0, len(s.stateListeners))
	for _, id := range sortedIDs(s.stateListeners) {
		listeners = append(listeners, s.stateListeners[id])
	}
	s.listenerMu.Unlock()

	for _, l := range listeners {
		s.deliver(l, snapshot.clone(), version)
	}
}

// stateListener serializes the snapshots handed to fn and remembers the
// newest version it was given.
type stateListener struct {
	fn func(AuthState)

	mu      sync.Mutex
	seen    uint64
	busy    bool
	pending []AuthState
}

// deliver hands st to the listener unless it has already been given a newer
// snapshot. Calls to fn never overlap. A snapshot arriving while fn runs,
// including one caused by fn itself, is queued and delivered after it returns.
func (s *Store) deliver(l *stateListener, st AuthState, version uint64) {
	l.mu.Lock()
	if version <= l.seen {
		l.mu.Unlock()
		return
	}
	l.seen = version
	if l.busy {
		l.pending = append(l.pending, st)
		l.mu.Unlock()
		return
	}
	l.busy = true

	for {
		l.mu.Unlock()
		s.callState(l.fn, st)
		l.mu.Lock()

		if len(l.pending) == 0 {
			l.busy = false
			l.mu.Unlock()
			return
		}
		st = l.pending[0]
		l.pending = l.pending[1:]
	}
}

func (s *Store) emit(p Payload) {
	s.listenerMu.Lock()
	set := s.eventListeners[p.Event]
	listeners := make([]func(Payload), 0, len(set))
	for _, id := range sortedIDs(set) {
		listeners = append(listeners, set[id])
	}
	s.listenerMu.Unlock()

	logging.Debug("State", "Emitting %s to %d listeners", p.Event, len(listeners))
	for _, fn := range listeners {
		s.callEvent(fn, p)
	}
}

func (s *Store) callState(fn func(AuthState), st AuthState) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("State", fmt.Errorf("panic in state listener: %v", r), "State listener panicked")
		}
	}()
	fn(st)
}

func (s *Store) callEvent(fn func(Payload), p Payload) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("State", fmt.Errorf("panic in %s listener: %v", p.Event, r), "Event listener panicked")
		}
	}()
	fn(p)
}

// sortedIDs returns listener ids in registration order.
func sortedIDs[T any](set map[uint64]T) []uint64 {
	return slices.Sorted(maps.Keys(set))
}
