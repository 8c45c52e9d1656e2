package client

import (
	"context"

	"authhub/internal/storage"
	"authhub/pkg/logging"
)

// startWatch follows the durable token file so logins, refreshes and logouts
// made by other processes reach this client's state.
func (c *Client) startWatch() {
	fs, ok := c.store.(*storage.FileStore)
	if !ok || !c.watch {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.watcher != nil {
		return
	}

	w, err := fs.Watch(c.syncFromStore)
	if err != nil {
		logging.Warn("Client", "Not watching %s for external changes: %v", fs.Path(), err)
		return
	}
	c.watcher = w
}

// syncFromStore reconciles the state with the stored record after an external
// change. Writes made by this client leave the record and state in agreement
// and are ignored.
func (c *Client) syncFromStore() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	rec, err := c.store.GetTokens()
	if err != nil {
		logging.Warn("Client", "Failed to read tokens after external change: %v", err)
		return
	}
	st := c.state.State()

	switch {
	case rec == nil && st.IsAuthenticated:
		logging.Info("Client", "Session ended by another process")
		c.engine.StopAutoRefresh()
		c.state.SetSignedOut(SignedOutExternal)

	case rec != nil && st.IsAuthenticated && rec.AccessToken != st.AccessToken:
		logging.Debug("Client", "Access token replaced by another process")
		c.state.SetTokenRefreshed(rec)
		c.startAutoRefresh()

	case rec != nil && !st.IsAuthenticated && !st.IsLoading:
		logging.Info("Client", "Session started by another process")
		c.state.Initialize(context.Background())
		c.startAutoRefresh()
	}
}
