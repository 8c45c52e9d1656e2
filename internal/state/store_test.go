package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authhub/internal/storage"
	"authhub/pkg/oauth"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, fetch UserFetcher) (*Store, *storage.MemoryStore) {
	t.Helper()
	creds := storage.NewMemoryStore()
	return NewStore(Config{Store: creds, FetchUser: fetch, Now: func() time.Time { return now }}), creds
}

func testUser() *oauth.User {
	return &oauth.User{ID: "u-1", Email: "ada@example.com", Name: "Ada"}
}

func testRecord() *oauth.TokenRecord {
	return &oauth.TokenRecord{AccessToken: "at-1", RefreshToken: "rt-1", TokenType: "Bearer", ExpiresAt: now.Add(15 * time.Minute)}
}

type recorder struct {
	payloads []Payload
}

func (r *recorder) listen(s *Store) {
	for _, e := range Events() {
		s.On(e, func(p Payload) { r.payloads = append(r.payloads, p) })
	}
}

func (r *recorder) events() []Event {
	out := make([]Event, 0, len(r.payloads))
	for _, p := range r.payloads {
		out = append(out, p.Event)
	}
	return out
}

func TestPhaseAndEventNames(t *testing.T) {
	assert.Equal(t, "loading", PhaseLoading.String())
	assert.Equal(t, "unauthenticated", PhaseUnauthenticated.String())
	assert.Equal(t, "authenticated", PhaseAuthenticated.String())

	names := make([]string, 0, 6)
	for _, e := range Events() {
		names = append(names, e.String())
	}
	assert.Equal(t, []string{"SIGNED_IN", "SIGNED_OUT", "TOKEN_REFRESHED", "USER_UPDATED", "SESSION_EXPIRED", "LOADING"}, names)
}

func TestNewStore_StartsLoading(t *testing.T) {
	s, _ := newTestStore(t, nil)
	assert.Equal(t, PhaseLoading, s.Phase())
	assert.True(t, s.State().IsLoading)
	assert.False(t, s.IsAuthenticated())
}

func TestSubscribe_ReplaysCurrentSnapshot(t *testing.T) {
	s, _ := newTestStore(t, nil)
	s.SetSignedIn(testUser(), testRecord())

	var got []AuthState
	unsubscribe := s.Subscribe(func(st AuthState) { got = append(got, st) })
	defer unsubscribe()

	require.Len(t, got, 1, "subscriber must receive the current snapshot immediately")
	assert.True(t, got[0].IsAuthenticated)
	assert.Equal(t, "ada@example.com", got[0].User.Email)
	assert.Equal(t, "at-1", got[0].AccessToken)

	s.SetSignedOut("logout")
	require.Len(t, got, 2)
	assert.False(t, got[1].IsAuthenticated)
}

func TestSubscribe_NeverSeesOlderSnapshot(t *testing.T) {
	s, _ := newTestStore(t, nil)
	s.SetSignedIn(testUser(), &oauth.TokenRecord{AccessToken: "at-0000", ExpiresAt: now.Add(time.Hour)})

	const updates = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= updates; i++ {
			s.SetTokenRefreshed(&oauth.TokenRecord{AccessToken: fmt.Sprintf("at-%04d", i), ExpiresAt: now.Add(time.Hour)})
		}
	}()

	seen := make([][]string, 20)
	for i := range seen {
		s.Subscribe(func(st AuthState) { seen[i] = append(seen[i], st.AccessToken) })
	}
	wg.Wait()

	last := fmt.Sprintf("at-%04d", updates)
	for i, tokens := range seen {
		require.NotEmpty(t, tokens, "subscriber %d", i)
		assert.True(t, slices.IsSorted(tokens), "subscriber %d saw %v", i, tokens)
		assert.Equal(t, len(tokens), len(slices.Compact(slices.Clone(tokens))), "subscriber %d saw a snapshot twice", i)
		assert.Equal(t, last, tokens[len(tokens)-1], "subscriber %d", i)
	}
}

func TestDeliver_DropsStaleSnapshot(t *testing.T) {
	s, _ := newTestStore(t, nil)

	var got []string
	l := &stateListener{fn: func(st AuthState) { got = append(got, st.AccessToken) }}

	s.deliver(l, AuthState{AccessToken: "newer"}, 3)
	s.deliver(l, AuthState{AccessToken: "older"}, 2)
	s.deliver(l, AuthState{AccessToken: "newer"}, 3)
	s.deliver(l, AuthState{AccessToken: "newest"}, 4)

	assert.Equal(t, []string{"newer", "newest"}, got)
}

func TestSubscribe_TransitionFromListenerIsQueued(t *testing.T) {
	s, _ := newTestStore(t, nil)

	var got []bool
	s.Subscribe(func(st AuthState) {
		got = append(got, st.IsAuthenticated)
		if st.IsAuthenticated {
			s.SetSignedOut("listener")
		}
	})

	s.SetSignedIn(testUser(), testRecord())

	assert.Equal(t, []bool{false, true, false}, got)
	assert.False(t, s.IsAuthenticated())
}

func TestInitialize_ReentersLoading(t *testing.T) {
	s, creds := newTestStore(t, nil)
	require.NoError(t, creds.SetTokens(testRecord()))
	s.Initialize(context.Background())
	s.SetSignedOut("logout")

	var loading []bool
	var phases []Phase
	s.Subscribe(func(st AuthState) {
		loading = append(loading, st.IsLoading)
		phases = append(phases, st.Phase())
	})

	s.Initialize(context.Background())

	assert.Equal(t, []bool{false, true, false}, loading)
	assert.Equal(t, []Phase{PhaseUnauthenticated, PhaseLoading, PhaseAuthenticated}, phases)
}

func TestTransitions(t *testing.T) {
	s, _ := newTestStore(t, nil)
	rec := &recorder{}
	rec.listen(s)

	s.SetSignedIn(testUser(), testRecord())
	assert.Equal(t, PhaseAuthenticated, s.Phase())

	refreshed := &oauth.TokenRecord{AccessToken: "at-2", ExpiresAt: now.Add(30 * time.Minute)}
	s.SetTokenRefreshed(refreshed)
	st := s.State()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "at-2", st.AccessToken)
	assert.Equal(t, "Ada", st.User.Name, "refresh keeps the user")

	s.SetUser(&oauth.User{ID: "u-1", Name: "Ada L."})
	assert.Equal(t, "Ada L.", s.User().Name)
	assert.True(t, s.IsAuthenticated())

	expiredErr := oauth.NewAuthError(oauth.ErrSessionExpired, "gone")
	s.SetSessionExpired(expiredErr)
	st = s.State()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Equal(t, expiredErr, st.Error)

	s.SetSignedOut("")

	assert.Equal(t, []Event{EventSignedIn, EventTokenRefreshed, EventUserUpdated, EventSessionExpired, EventSignedOut}, rec.events())
	assert.Equal(t, "at-1", rec.payloads[0].AccessToken)
	assert.Equal(t, "u-1", rec.payloads[0].User.ID)
	assert.Equal(t, refreshed.ExpiresAt, rec.payloads[1].ExpiresAt)
	assert.Equal(t, "Ada L.", rec.payloads[2].User.Name)
	assert.Equal(t, expiredErr, rec.payloads[3].Error)
	assert.Empty(t, rec.payloads[4].Reason)
}

func TestSetTokenRefreshed_DoesNotAuthenticate(t *testing.T) {
	s, _ := newTestStore(t, nil)
	s.SetSignedOut("")

	s.SetTokenRefreshed(testRecord())

	st := s.State()
	assert.False(t, st.IsAuthenticated)
	assert.Equal(t, "at-1", st.AccessToken)
}

func TestSetError_NotifiesSnapshotOnly(t *testing.T) {
	s, _ := newTestStore(t, nil)
	s.SetSignedIn(testUser(), testRecord())
	rec := &recorder{}
	rec.listen(s)

	var snapshots int
	s.Subscribe(func(AuthState) { snapshots++ })

	s.SetError(oauth.NewAuthError(oauth.ErrTokenReuseDetected, "breach"))

	assert.Equal(t, 2, snapshots)
	assert.Empty(t, rec.payloads)
	assert.Equal(t, oauth.ErrTokenReuseDetected, s.State().Error.Code)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name     string
		record   *oauth.TokenRecord
		fetch    UserFetcher
		wantAuth bool
		wantUser bool
	}{
		{
			name:     "no credential",
			wantAuth: false,
		},
		{
			name:     "valid credential without fetcher",
			record:   testRecord(),
			wantAuth: true,
		},
		{
			name:   "valid credential and user",
			record: testRecord(),
			fetch: func(_ context.Context, token string) (*oauth.User, error) {
				if token != "at-1" {
					return nil, errors.New("wrong token")
				}
				return testUser(), nil
			},
			wantAuth: true,
			wantUser: true,
		},
		{
			name:   "fetcher error means signed out",
			record: testRecord(),
			fetch: func(context.Context, string) (*oauth.User, error) {
				return nil, oauth.NewAuthError(oauth.ErrTokenInvalid, "rejected")
			},
		},
		{
			name:   "fetcher panic means signed out",
			record: testRecord(),
			fetch: func(context.Context, string) (*oauth.User, error) {
				panic("network stack exploded")
			},
		},
		{
			name:   "expired credential",
			record: &oauth.TokenRecord{AccessToken: "old", ExpiresAt: now.Add(-time.Second)},
			fetch: func(context.Context, string) (*oauth.User, error) {
				t.Fatal("fetcher must not be called for an expired credential")
				return nil, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, creds := newTestStore(t, tt.fetch)
			if tt.record != nil {
				require.NoError(t, creds.SetTokens(tt.record))
			}
			rec := &recorder{}
			rec.listen(s)

			s.Initialize(context.Background())

			st := s.State()
			assert.False(t, st.IsLoading)
			assert.Equal(t, tt.wantAuth, st.IsAuthenticated)
			assert.Equal(t, tt.wantUser, st.User != nil)

			require.Equal(t, []Event{EventLoading, EventLoading}, rec.events())
			assert.True(t, rec.payloads[0].IsLoading)
			assert.False(t, rec.payloads[1].IsLoading)
		})
	}
}

func TestInitialize_CookieModeAuthenticatesThroughFetcher(t *testing.T) {
	s, creds := newTestStore(t, func(_ context.Context, token string) (*oauth.User, error) {
		assert.Empty(t, token, "cookie mode has no bearer token")
		return testUser(), nil
	})
	require.NoError(t, creds.SetTokens(&oauth.TokenRecord{TokenType: "Bearer", ExpiresAt: now.Add(time.Hour)}))

	s.Initialize(context.Background())

	assert.True(t, s.IsAuthenticated())
	assert.Empty(t, s.State().AccessToken)
}

func TestListenerPanicIsIsolated(t *testing.T) {
	s, _ := newTestStore(t, nil)

	var calls []string
	s.Subscribe(func(AuthState) { panic("first") })
	s.Subscribe(func(AuthState) { calls = append(calls, "state") })
	s.On(EventSignedIn, func(Payload) { panic("second") })
	s.On(EventSignedIn, func(Payload) { calls = append(calls, "event") })

	assert.NotPanics(t, func() { s.SetSignedIn(testUser(), testRecord()) })
	assert.Equal(t, []string{"state", "state", "event"}, calls)
}

func TestUnsubscribeDuringNotification(t *testing.T) {
	s, _ := newTestStore(t, nil)

	var calls int
	var unsubscribe func()
	unsubscribe = s.On(EventSignedOut, func(Payload) {
		calls++
		unsubscribe()
	})

	assert.NotPanics(t, func() {
		s.SetSignedOut("a")
		s.SetSignedOut("b")
	})
	assert.Equal(t, 1, calls)
}

func TestClearListeners(t *testing.T) {
	s, _ := newTestStore(t, nil)

	var calls int
	s.Subscribe(func(AuthState) { calls++ })
	s.On(EventSignedIn, func(Payload) { calls++ })
	s.ClearListeners()

	s.SetSignedIn(testUser(), testRecord())
	assert.Equal(t, 1, calls, "only the replay before clearing")
}

func TestStateReturnsCopies(t *testing.T) {
	s, _ := newTestStore(t, nil)
	user := testUser()
	s.SetSignedIn(user, testRecord())

	user.Name = "changed by caller"
	got := s.State()
	got.User.Email = "changed by reader"

	st := s.State()
	assert.Equal(t, "Ada", st.User.Name)
	assert.Equal(t, "ada@example.com", st.User.Email)
}

func TestOn_UnknownEventIsIgnored(t *testing.T) {
	s, _ := newTestStore(t, nil)
	unsubscribe := s.On(Event(42), func(Payload) { t.Fatal("must not be called") })
	assert.NotPanics(t, unsubscribe)
}
