package oauth

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTenant(t *testing.T) {
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/token", WithTenant(DefaultTokenEndpointTemplate, "contoso"))
	assert.Equal(t, "https://login.microsoftonline.com/common/oauth2/token", WithTenant(DefaultTokenEndpointTemplate, ""))
	assert.Equal(t, "https://host/t1/authorize", WithTenant("https://host/<tenant id>/authorize", "t1"))
}

func TestAuthorizeURL(t *testing.T) {
	t.Run("builds code request with optional fields", func(t *testing.T) {
		pkce := GeneratePKCE()
		raw, err := AuthorizeURL(AuthorizeRequest{
			Tenant:      "contoso",
			ClientID:    "client-1",
			RedirectURI: "http://localhost/callback",
			Resource:    "https://graph.microsoft.com",
			Prompt:      "login",
			LoginHint:   "jane@contoso.com",
			State:       "st",
			PKCE:        pkce,
		})
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "/contoso/oauth2/authorize", u.Path)

		q := u.Query()
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "client-1", q.Get("client_id"))
		assert.Equal(t, "http://localhost/callback", q.Get("redirect_uri"))
		assert.True(t, strings.HasPrefix(q.Get("nonce"), "adtoken-"))
		assert.Equal(t, "login", q.Get("prompt"))
		assert.Equal(t, "jane@contoso.com", q.Get("login_hint"))
		assert.Equal(t, "st", q.Get("state"))
		assert.Equal(t, pkce.CodeChallenge, q.Get("code_challenge"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.Empty(t, q.Get("scope"))
	})

	t.Run("omits nonce without redirect", func(t *testing.T) {
		raw, err := AuthorizeURL(AuthorizeRequest{ClientID: "client-1"})
		require.NoError(t, err)
		assert.NotContains(t, raw, "nonce=")
		assert.Contains(t, raw, "/common/oauth2/authorize")
	})

	t.Run("requires client id", func(t *testing.T) {
		_, err := AuthorizeURL(AuthorizeRequest{})
		assert.Error(t, err)
	})
}

func TestLogoutURL(t *testing.T) {
	assert.Equal(t, "https://login.microsoftonline.com/common/oauth2/logout", LogoutURL("", ""))
	assert.Equal(t,
		"https://login.microsoftonline.com/t1/oauth2/logout?post_logout_redirect_uri=http%3A%2F%2Flocalhost",
		LogoutURL("t1", "http://localhost"))
}

func TestGeneratePKCE_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		pkce := GeneratePKCE()
		assert.False(t, seen[pkce.CodeVerifier], "duplicate verifier")
		seen[pkce.CodeVerifier] = true
		assert.GreaterOrEqual(t, len(pkce.CodeVerifier), 43)
	}
}
