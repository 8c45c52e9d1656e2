package flow

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authhub/pkg/oauth"
)

var testRedirect = RedirectConfig{
	BaseURL:     "https://auth.example.com/",
	App:         "notes",
	RedirectURI: "http://127.0.0.1:3000/oauth/callback",
}

func TestBuildAuthURL(t *testing.T) {
	proof := &oauth.PKCEProof{CodeVerifier: "v", CodeChallenge: "challenge", Method: oauth.MethodS256}

	tests := []struct {
		name      string
		cfg       RedirectConfig
		opts      LoginOptions
		wantPath  string
		wantQuery map[string]string
		absent    []string
	}{
		{
			name:     "login",
			cfg:      testRedirect,
			wantPath: "/auth/login",
			wantQuery: map[string]string{
				"app":                   "notes",
				"redirect_uri":          "http://127.0.0.1:3000/oauth/callback",
				"response_type":         "code",
				"state":                 "st",
				"code_challenge":        "challenge",
				"code_challenge_method": "S256",
			},
			absent: []string{"storage_mode", "email"},
		},
		{
			name: "register with prefill and cookie mode",
			cfg: RedirectConfig{
				BaseURL:     "https://auth.example.com",
				App:         "notes",
				RedirectURI: "http://127.0.0.1:3000/oauth/callback",
				CookieMode:  true,
			},
			opts:     LoginOptions{Register: true, Email: "ada@example.com", Name: "Ada"},
			wantPath: "/auth/register",
			wantQuery: map[string]string{
				"storage_mode": "cookie",
				"email":        "ada@example.com",
				"name":         "Ada",
			},
		},
		{
			name:     "overrides and extra params",
			cfg:      testRedirect,
			opts:     LoginOptions{RedirectURI: "http://127.0.0.1:9999/cb", Params: map[string]string{"prompt": "login"}},
			wantPath: "/auth/login",
			wantQuery: map[string]string{
				"redirect_uri": "http://127.0.0.1:9999/cb",
				"prompt":       "login",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := BuildAuthURL(tt.cfg, proof, "st", tt.opts)
			require.NoError(t, err)

			u, err := url.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, "auth.example.com", u.Host)
			assert.Equal(t, tt.wantPath, u.Path)
			for k, v := range tt.wantQuery {
				assert.Equal(t, v, u.Query().Get(k), "query %s", k)
			}
			for _, k := range tt.absent {
				assert.False(t, u.Query().Has(k), "query %s must be absent", k)
			}
		})
	}
}

func TestBuildAuthURL_Errors(t *testing.T) {
	_, err := BuildAuthURL(testRedirect, nil, "st", LoginOptions{})
	assert.Error(t, err)

	proof := &oauth.PKCEProof{CodeChallenge: "c", Method: oauth.MethodS256}
	_, err = BuildAuthURL(RedirectConfig{BaseURL: "not a url"}, proof, "st", LoginOptions{})
	assert.Error(t, err)
}

func TestLogoutURL(t *testing.T) {
	raw, err := LogoutURL(testRedirect, "https://notes.example.com/", true)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/logout", u.Path)
	assert.Equal(t, "notes", u.Query().Get("app"))
	assert.Equal(t, "https://notes.example.com/", u.Query().Get("redirect_uri"))
	assert.Equal(t, "true", u.Query().Get("global"))

	raw, err = LogoutURL(testRedirect, "", false)
	require.NoError(t, err)
	u, _ = url.Parse(raw)
	assert.False(t, u.Query().Has("global"))
	assert.False(t, u.Query().Has("redirect_uri"))
}
