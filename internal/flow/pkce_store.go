package flow

import (
	"sync"
	"time"

	"authhub/pkg/logging"
)

// PKCETTL bounds how long a started login can be completed.
const PKCETTL = 10 * time.Minute

const sweepInterval = time.Minute

// PendingLogin is the secret half of a started login, kept until the callback
// arrives.
type PendingLogin struct {
	CodeVerifier string
	State        string
	RedirectURI  string
	RedirectTo   string
	CreatedAt    time.Time
}

// PKCEStore holds at most one pending login. A read always clears it.
type PKCEStore struct {
	mu      sync.Mutex
	pending *PendingLogin
	swept   bool // the pending login was dropped by the sweep after expiring
	ttl     time.Duration
	now     func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewPKCEStore creates a store with the given TTL (PKCETTL when zero) and
// starts its background sweep. now defaults to time.Now.
func NewPKCEStore(ttl time.Duration, now func() time.Time) *PKCEStore {
	if ttl <= 0 {
		ttl = PKCETTL
	}
	if now == nil {
		now = time.Now
	}

	ps := &PKCEStore{
		ttl:         ttl,
		now:         now,
		stopCleanup: make(chan struct{}),
	}
	go ps.cleanupLoop()
	return ps
}

// Save replaces any pending login. CreatedAt is set to the current time.
func (ps *PKCEStore) Save(login PendingLogin) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.pending != nil {
		logging.Debug("Flow", "Replacing pending login started at %s", ps.pending.CreatedAt.Format(time.RFC3339))
	}
	login.CreatedAt = ps.now()
	ps.pending = &login
	ps.swept = false
}

// Consume returns and clears the pending login. expired is true when a login
// was pending but is older than the TTL, whether or not the sweep already
// dropped it; nil is returned then.
func (ps *PKCEStore) Consume() (login *PendingLogin, expired bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	login, swept := ps.pending, ps.swept
	ps.pending = nil
	ps.swept = false
	if login == nil {
		return nil, swept
	}
	if ps.now().Sub(login.CreatedAt) > ps.ttl {
		logging.Warn("Flow", "Pending login expired: age=%v", ps.now().Sub(login.CreatedAt))
		return nil, true
	}
	return login, false
}

// HasPending reports whether an unexpired login is waiting for its callback.
func (ps *PKCEStore) HasPending() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.pending != nil && ps.now().Sub(ps.pending.CreatedAt) <= ps.ttl
}

// Clear drops any pending login.
func (ps *PKCEStore) Clear() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pending = nil
	ps.swept = false
}

// Stop ends the background sweep. It is safe to call more than once.
func (ps *PKCEStore) Stop() {
	ps.stopOnce.Do(func() {
		close(ps.stopCleanup)
	})
}

func (ps *PKCEStore) cleanupLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ps.sweep()
		case <-ps.stopCleanup:
			return
		}
	}
}

func (ps *PKCEStore) sweep() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.pending != nil && ps.now().Sub(ps.pending.CreatedAt) > ps.ttl {
		ps.pending = nil
		ps.swept = true
		logging.Debug("Flow", "Swept expired pending login")
	}
}
