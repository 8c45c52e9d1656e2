package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"authhub/internal/storage"
	"authhub/pkg/logging"
	"authhub/pkg/oauth"
)

const (
	// DefaultThresholdSeconds is how long before expiry a token is renewed.
	DefaultThresholdSeconds = 60

	// MinThresholdSeconds is the floor applied to a configured threshold.
	MinThresholdSeconds = 10

	// MaxRefreshRetries is the number of retries after the first attempt.
	MaxRefreshRetries = 2

	// RetryBackoff is multiplied by the retry number to get the wait before it.
	RetryBackoff = time.Second

	// MinRefreshDelay is the shortest delay the proactive timer is armed with.
	MinRefreshDelay = time.Second

	// DefaultMaxRefreshInterval caps a single proactive timer. A long-lived
	// token is re-checked at this interval instead of sleeping until expiry.
	DefaultMaxRefreshInterval = time.Hour

	// reuseMessage is reported when the identity service flags a replayed
	// refresh token.
	reuseMessage = "Security breach detected. Please log in again."

	flightKey = "refresh"
)

// Refresher performs the network exchange of a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth.TokenResponse, error)
}

// Result is the outcome of a refresh. Exactly one of Success or Error is set.
type Result struct {
	Success      bool
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Error        *oauth.AuthError
}

// Config wires the engine to its collaborators.
type Config struct {
	Store     storage.CredentialStore
	Refresher Refresher

	// Clock defaults to the system clock.
	Clock Clock

	// ThresholdSeconds defaults to DefaultThresholdSeconds when zero and is
	// raised to MinThresholdSeconds when below it.
	ThresholdSeconds int

	// MaxRefreshInterval defaults to DefaultMaxRefreshInterval when zero.
	// A negative value removes the cap.
	MaxRefreshInterval time.Duration

	OnTokenRefresh       func(rec *oauth.TokenRecord)
	OnSessionExpired     func(err *oauth.AuthError)
	OnTokenReuseDetected func()
}

// Engine keeps one credential fresh. It coalesces concurrent refreshes into a
// single network exchange, retries transient failures with linear backoff,
// wipes credentials on refresh-token reuse and schedules proactive renewals.
type Engine struct {
	cfg         Config
	clock       Clock
	threshold   time.Duration
	maxInterval time.Duration

	group singleflight.Group

	// ctx outlives individual callers; a refresh already dispatched keeps
	// running if the caller goes away. Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	timerMu     sync.Mutex
	stopTimer   func() bool
	gen         uint64
	autoRefresh bool
	closed      bool
}

// NewEngine validates cfg and returns an engine with no timer armed.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("refresh engine requires a credential store")
	}
	if cfg.Refresher == nil {
		return nil, fmt.Errorf("refresh engine requires a refresher")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	maxInterval := cfg.MaxRefreshInterval
	switch {
	case maxInterval == 0:
		maxInterval = DefaultMaxRefreshInterval
	case maxInterval < 0:
		maxInterval = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg,
		clock:       clock,
		threshold:   time.Duration(EffectiveThreshold(cfg.ThresholdSeconds)) * time.Second,
		maxInterval: maxInterval,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// EffectiveThreshold applies the default and the floor to a configured threshold.
func EffectiveThreshold(seconds int) int {
	if seconds == 0 {
		return DefaultThresholdSeconds
	}
	if seconds < MinThresholdSeconds {
		return MinThresholdSeconds
	}
	return seconds
}

// Threshold returns the effective refresh threshold.
func (e *Engine) Threshold() time.Duration {
	return e.threshold
}

// GetValidToken returns a usable access token, refreshing first when the
// stored one is expired or within the threshold of expiry. It reports false
// when there is no credential or renewal failed; it never returns an error.
func (e *Engine) GetValidToken(ctx context.Context) (string, bool) {
	rec, err := e.cfg.Store.GetTokens()
	if err != nil {
		logging.Warn("Refresh", "Failed to read stored tokens: %v", err)
		return "", false
	}
	if rec == nil {
		return "", false
	}

	if !storage.IsTokenExpired(rec, int(e.threshold/time.Second), e.clock.Now()) {
		return rec.AccessToken, true
	}

	res := e.Refresh(ctx)
	if !res.Success {
		return "", false
	}
	return res.AccessToken, true
}

// Refresh renews the stored credential. Concurrent callers share a single
// exchange and receive the same Result. A caller whose ctx ends first gets a
// NETWORK_ERROR result while the shared exchange continues and is applied.
func (e *Engine) Refresh(ctx context.Context) Result {
	ch := e.group.DoChan(flightKey, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("Refresh", fmt.Errorf("panic during refresh: %v", r), "Refresh aborted")
				v = failure(oauth.NewAuthError(oauth.ErrUnknown, fmt.Sprintf("refresh panicked: %v", r)))
			}
		}()
		return e.doRefresh(e.ctx), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Result)
	case <-ctx.Done():
		return failure(oauth.NewAuthError(oauth.ErrNetwork, "refresh abandoned by caller").WithCause(ctx.Err()))
	}
}

func (e *Engine) doRefresh(ctx context.Context) Result {
	rec, err := e.cfg.Store.GetTokens()
	if err != nil {
		logging.Warn("Refresh", "Failed to read stored tokens: %v", err)
	}
	if !rec.HasRefreshToken() {
		authErr := oauth.NewAuthError(oauth.ErrSessionExpired, "No refresh token available")
		e.handleSessionExpired(authErr)
		return failure(authErr)
	}

	presented := oauth.NewRedactedToken(rec.RefreshToken)
	var lastErr *oauth.AuthError

	for attempt := 0; attempt <= MaxRefreshRetries; attempt++ {
		if attempt > 0 {
			delay := RetryBackoff * time.Duration(attempt)
			logging.Debug("Refresh", "Retrying refresh in %s (attempt %d of %d)", delay, attempt+1, MaxRefreshRetries+1)
			if err := e.clock.Sleep(ctx, delay); err != nil {
				lastErr = oauth.NewAuthError(oauth.ErrNetwork, "refresh cancelled during backoff").WithCause(err)
				break
			}
		}

		logging.Debug("Refresh", "Presenting refresh token %s (fingerprint %s)", presented, presented.Fingerprint())
		tr, err := e.cfg.Refresher.Refresh(ctx, rec.RefreshToken)
		if err == nil {
			return e.applySuccess(rec, tr)
		}

		authErr, ok := oauth.AsAuthError(err)
		if !ok {
			authErr = oauth.NewAuthError(oauth.ErrNetwork, "token refresh failed").WithCause(err)
		}
		lastErr = authErr

		if authErr.Code == oauth.ErrTokenReuseDetected {
			return e.handleReuse(authErr, presented)
		}
		if !authErr.Retryable() {
			logging.Warn("Refresh", "Refresh rejected with non-retryable %s", authErr.Code)
			e.handleSessionExpired(authErr)
			return failure(authErr)
		}
		logging.Info("Refresh", "Refresh attempt %d failed with %s", attempt+1, authErr.Code)
	}

	expired := oauth.NewAuthError(oauth.ErrSessionExpired,
		fmt.Sprintf("token refresh failed after %d attempts", MaxRefreshRetries+1)).WithCause(lastErr)
	if lastErr != nil {
		expired.StatusCode = lastErr.StatusCode
	}
	e.handleSessionExpired(expired)
	return failure(expired)
}

func (e *Engine) applySuccess(prev *oauth.TokenRecord, tr *oauth.TokenResponse) Result {
	rec := tr.Record(e.clock.Now())
	if rec.RefreshToken == "" {
		// No rotation: the presented token stays valid.
		rec.RefreshToken = prev.RefreshToken
	}

	if err := e.cfg.Store.SetTokens(rec); err != nil {
		logging.Error("Refresh", err, "Failed to persist refreshed tokens")
	}

	logging.Info("Refresh", "Token refreshed, expires at %s", rec.ExpiresAt.Format(time.RFC3339))
	if tr.RefreshToken != "" {
		logging.Audit("refresh_token_rotated",
			"previous", oauth.NewRedactedToken(prev.RefreshToken).Fingerprint(),
			"current", oauth.NewRedactedToken(rec.RefreshToken).Fingerprint(),
		)
	}

	if e.cfg.OnTokenRefresh != nil {
		e.cfg.OnTokenRefresh(rec.Clone())
	}

	e.timerMu.Lock()
	rearm := e.autoRefresh && !e.closed
	e.timerMu.Unlock()
	if rearm {
		e.schedule(rec)
	}

	return Result{
		Success:      true,
		AccessToken:  rec.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    rec.ExpiresAt,
	}
}

func (e *Engine) handleReuse(cause *oauth.AuthError, presented oauth.RedactedToken) Result {
	logging.Audit("token_reuse_detected",
		"fingerprint", presented.Fingerprint(),
		"status", cause.StatusCode,
	)

	if err := e.cfg.Store.ClearTokens(); err != nil {
		logging.Error("Refresh", err, "Failed to clear credentials after reuse detection")
	}
	e.StopAutoRefresh()

	if e.cfg.OnTokenReuseDetected != nil {
		e.cfg.OnTokenReuseDetected()
	}

	securityErr := oauth.NewAuthError(oauth.ErrTokenReuseDetected, reuseMessage).
		WithStatus(cause.StatusCode).
		WithCause(cause)
	e.handleSessionExpired(securityErr)
	return failure(securityErr)
}

func (e *Engine) handleSessionExpired(err *oauth.AuthError) {
	e.StopAutoRefresh()
	if e.cfg.OnSessionExpired != nil {
		e.cfg.OnSessionExpired(err)
	}
}

func failure(err *oauth.AuthError) Result {
	return Result{Error: err}
}
