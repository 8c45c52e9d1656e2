// Package client wires the credential store, refresh engine, auth state store
// and login flow into one object an application holds for its lifetime.
//
// # Lifecycle
//
//	c, err := client.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	c.Initialize(ctx)             // restore the stored session, arm auto-refresh
//	req, _ := c.Login(ctx, opts)  // send the user to req.URL
//	res, err := c.HandleCallback(ctx, params)
//
// After a successful callback the engine keeps the access token fresh on its
// own and reports every refresh, reuse detection or terminal failure to the
// state store, so listeners registered with Subscribe or On observe the whole
// session.
//
// # Cookie mode
//
// With storage mode "cookie" the bearer token lives in the HTTP client's cookie
// jar. GetAccessToken returns nothing, proactive refresh is not armed, and
// requests made through HTTPClient carry the cookie instead of an
// Authorization header.
//
// # Other processes
//
// With the durable store the client watches the token file and re-syncs its
// state when another process logs in, refreshes or logs out.
package client
