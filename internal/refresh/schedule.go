package refresh

import (
	"context"
	"time"

	"authhub/internal/storage"
	"authhub/pkg/logging"
	"authhub/pkg/oauth"
)

// StartAutoRefresh arms the proactive timer from the stored credential. Any
// previously armed timer is disarmed first. Without a stored credential no
// timer is armed.
func (e *Engine) StartAutoRefresh() {
	e.timerMu.Lock()
	if e.closed {
		e.timerMu.Unlock()
		return
	}
	e.disarmLocked()
	e.autoRefresh = true
	e.timerMu.Unlock()

	rec, err := e.cfg.Store.GetTokens()
	if err != nil {
		logging.Warn("Refresh", "Failed to read stored tokens: %v", err)
		return
	}
	if rec == nil {
		logging.Debug("Refresh", "No stored credential, auto-refresh idle")
		return
	}
	e.schedule(rec)
}

// StopAutoRefresh disarms the proactive timer. It is idempotent and does not
// cancel a refresh that is already in flight.
func (e *Engine) StopAutoRefresh() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	e.autoRefresh = false
	e.disarmLocked()
}

// IsAutoRefreshing reports whether the proactive timer is armed.
func (e *Engine) IsAutoRefreshing() bool {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	return e.stopTimer != nil
}

// Close disarms the timer, cancels any in-flight exchange and makes later
// StartAutoRefresh calls no-ops.
func (e *Engine) Close() {
	e.timerMu.Lock()
	e.closed = true
	e.autoRefresh = false
	e.disarmLocked()
	e.timerMu.Unlock()
	e.cancel()
}

// NextRefreshDelay returns how long the proactive timer waits for rec:
// max(timeUntilExpiry - threshold, MinRefreshDelay), capped at the maximum
// refresh interval when one is set.
func (e *Engine) NextRefreshDelay(rec *oauth.TokenRecord) time.Duration {
	delay := storage.ExpiresIn(rec, e.clock.Now()) - e.threshold
	if delay < MinRefreshDelay {
		delay = MinRefreshDelay
	}
	if e.maxInterval > 0 && delay > e.maxInterval {
		delay = e.maxInterval
	}
	return delay
}

func (e *Engine) schedule(rec *oauth.TokenRecord) {
	if rec.ExpiresAt.IsZero() {
		logging.Debug("Refresh", "Stored credential has no expiry, auto-refresh idle")
		return
	}

	delay := e.NextRefreshDelay(rec)

	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if !e.autoRefresh || e.closed {
		return
	}
	e.disarmLocked()

	e.gen++
	gen := e.gen
	e.stopTimer = e.clock.AfterFunc(delay, func() {
		e.timerMu.Lock()
		// A newer schedule or a stop replaced this timer.
		current := e.gen == gen && e.stopTimer != nil
		if current {
			e.stopTimer = nil
		}
		e.timerMu.Unlock()
		if current {
			e.onTimer()
		}
	})

	logging.Debug("Refresh", "Next refresh in %s", delay)
}

func (e *Engine) disarmLocked() {
	if e.stopTimer != nil {
		e.stopTimer()
		e.stopTimer = nil
	}
}

func (e *Engine) onTimer() {
	rec, err := e.cfg.Store.GetTokens()
	if err != nil {
		logging.Warn("Refresh", "Failed to read stored tokens: %v", err)
	}

	// The cap fired the timer before the threshold window: re-check later.
	if rec != nil && !storage.IsTokenExpired(rec, int(e.threshold/time.Second), e.clock.Now()) {
		logging.Debug("Refresh", "Token still fresh, re-arming without refresh")
		e.schedule(rec)
		return
	}

	res := e.Refresh(context.Background())
	if !res.Success {
		logging.Warn("Refresh", "Scheduled refresh failed: %s", res.Error.Code)
	}
}
