package client

import (
	"context"

	"golang.org/x/oauth2"

	"authhub/pkg/oauth"
)

// TokenSource returns an oauth2.TokenSource backed by the refresh engine. Each
// Token call returns the current access token, renewing it when it is inside
// the refresh threshold. The returned tokens carry no refresh token; renewal
// stays with the engine.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, c: c}
}

type tokenSource struct {
	ctx context.Context
	c   *Client
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	if ts.c.cookieMode {
		return nil, ErrCookieMode
	}

	access, ok := ts.c.engine.GetValidToken(ts.ctx)
	if !ok {
		return nil, oauth.NewAuthError(oauth.ErrSessionExpired, "no valid access token, log in again")
	}

	rec, err := ts.c.store.GetTokens()
	if err != nil || rec == nil || rec.AccessToken != access {
		return &oauth2.Token{AccessToken: access, TokenType: oauth.DefaultTokenType}, nil
	}
	tok := rec.ToOAuth2Token()
	tok.RefreshToken = ""
	return tok, nil
}
