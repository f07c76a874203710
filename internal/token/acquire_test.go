package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"adtoken/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWithCode_BootstrapThenFanOut(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL(), "A", "B", "C"), nil)
	ctx := context.Background()

	creds, err := tc.AcquireWithCode(ctx, "the-code")
	require.NoError(t, err)
	assert.Len(t, creds, 3)

	assert.Equal(t, 1, endpoint.countGrant("authorization_code"))
	assert.Equal(t, 2, endpoint.countGrant("refresh_token"))

	var refreshed []string
	for _, req := range endpoint.Requests() {
		switch req.GrantType {
		case "authorization_code":
			assert.Equal(t, "A", req.Resource)
			assert.Equal(t, "the-code", req.Code)
			assert.Equal(t, "http://localhost/callback", req.RedirectURI)
		case "refresh_token":
			assert.True(t, req.BootstrapDone, "refresh grant issued before bootstrap completed")
			assert.Empty(t, req.Code)
			assert.Empty(t, req.RedirectURI)
			assert.Equal(t, "rt-1", req.RefreshToken)
			assert.Equal(t, "app", req.ClientID)
			refreshed = append(refreshed, req.Resource)
		}
	}
	assert.ElementsMatch(t, []string{"B", "C"}, refreshed)

	for _, resource := range []string{"A", "B", "C"} {
		token, err := tc.AssureToken(ctx, resource)
		require.NoError(t, err)
		assert.Equal(t, creds[resource].AccessToken, token)
	}
	assert.Len(t, endpoint.Requests(), 3, "cached tokens must not trigger new grants")
}

func TestAcquireWithCode_SingleDefaultResource(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL()), nil)

	creds, err := tc.AcquireWithCode(context.Background(), "code")
	require.NoError(t, err)

	require.Contains(t, creds, oauth.DefaultResource)
	requests := endpoint.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "authorization_code", requests[0].GrantType)
	assert.Equal(t, oauth.DefaultResource, requests[0].Resource)
}

func TestAcquireWithCode_FanOutFailureIsAllOrNothing(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	endpoint.failFor("B")
	tc := newTestContext(t, testConfig(endpoint.URL(), "A", "B", "C"), nil)
	ctx := context.Background()

	creds, err := tc.AcquireWithCode(ctx, "the-code")
	require.Error(t, err)
	assert.Nil(t, creds)

	var fanOutErr *FanOutError
	require.ErrorAs(t, err, &fanOutErr)
	assert.Equal(t, "B", fanOutErr.Resource)
	assert.True(t, oauth.IsGrantError(err))

	// every fan-out task was awaited
	assert.Equal(t, 2, endpoint.countGrant("refresh_token"))

	cached := tc.Credentials()
	assert.Contains(t, cached, "A")
	assert.Contains(t, cached, "C")
	assert.NotContains(t, cached, "B")

	before := len(endpoint.Requests())
	token, err := tc.AssureToken(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, cached["A"].AccessToken, token)
	assert.Len(t, endpoint.Requests(), before)
}

func TestAcquireWithCode_BootstrapFailureSkipsFanOut(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	endpoint.failFor("A")
	tc := newTestContext(t, testConfig(endpoint.URL(), "A", "B"), nil)

	_, err := tc.AcquireWithCode(context.Background(), "the-code")
	require.Error(t, err)

	var bootstrapErr *BootstrapError
	require.ErrorAs(t, err, &bootstrapErr)
	assert.Equal(t, "A", bootstrapErr.Resource)
	assert.Equal(t, 0, endpoint.countGrant("refresh_token"))
	assert.Empty(t, tc.Credentials())
}

func TestAcquireWithCode_BootstrapWithoutRefreshToken(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	endpoint.omitRefreshOn("authorization_code")
	tc := newTestContext(t, testConfig(endpoint.URL(), "A", "B"), nil)

	_, err := tc.AcquireWithCode(context.Background(), "code")
	require.Error(t, err)
	assert.ErrorIs(t, err, oauth.ErrMissingCredential)
	assert.Equal(t, 0, endpoint.countGrant("refresh_token"))
}

func TestAcquireWithCode_TimeoutKeepsBootstrapCredential(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	client := oauth.NewGrantClient(oauth.WithTimeout(100 * time.Millisecond))
	tc := newTestContext(t, testConfig(endpoint.URL(), "A", "B"), nil, WithGrantClient(client))

	var release func()
	defer func() {
		if release != nil {
			release()
		}
	}()
	holdFanOut := func(*oauth.Credential, []string) {
		release = endpoint.hold()
	}

	_, err := tc.AcquireWithCode(context.Background(), "code", OnBootstrap(holdFanOut))
	require.Error(t, err)
	assert.ErrorIs(t, err, oauth.ErrTimeout)

	var fanOutErr *FanOutError
	require.ErrorAs(t, err, &fanOutErr)
	assert.Equal(t, "B", fanOutErr.Resource)

	_, ok := tc.AccessToken("A")
	assert.True(t, ok, "bootstrap credential stays cached")
	_, ok = tc.AccessToken("B")
	assert.False(t, ok)
}

func TestAcquireWithCode_Options(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL(), "configured"), nil)

	var remaining []string
	_, err := tc.AcquireWithCode(context.Background(), "code",
		WithResources("X", "Y"),
		WithCodeVerifier("verifier-123"),
		OnBootstrap(func(_ *oauth.Credential, r []string) { remaining = r }),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Y"}, remaining)

	for _, req := range endpoint.Requests() {
		switch req.GrantType {
		case "authorization_code":
			assert.Equal(t, "X", req.Resource)
			assert.Equal(t, "verifier-123", req.CodeVerifier)
		case "refresh_token":
			assert.Equal(t, "Y", req.Resource)
			assert.Empty(t, req.CodeVerifier)
		}
	}
}

func TestAcquireWithCode_EmptyCode(t *testing.T) {
	tc := newTestContext(t, testConfig("https://login.example.com/token"), nil)
	_, err := tc.AcquireWithCode(context.Background(), "")
	assert.True(t, errors.Is(err, ErrNoCode))
}
