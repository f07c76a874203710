package token

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"adtoken/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// transitionRecorder collects state changes reported by a LoginAttempt.
type transitionRecorder struct {
	mu          sync.Mutex
	transitions [][2]LoginState
}

func (r *transitionRecorder) hook(from, to LoginState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, [2]LoginState{from, to})
}

func (r *transitionRecorder) get() [][2]LoginState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]LoginState(nil), r.transitions...)
}

func TestLoginState_String(t *testing.T) {
	assert.Equal(t, "Idle", LoginIdle.String())
	assert.Equal(t, "FanningOut", LoginFanningOut.String())
	assert.Equal(t, "LoginState(42)", LoginState(42).String())
	assert.True(t, LoginCompleted.IsTerminal())
	assert.True(t, LoginFailed.IsTerminal())
	assert.False(t, LoginExchanging.IsTerminal())
}

func TestLoginAttempt_HappyPath(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL(), "A", "B"), nil)
	rec := &transitionRecorder{}

	attempt, err := NewLoginAttempt(tc, WithTransitionHook(rec.hook))
	require.NoError(t, err)
	assert.Equal(t, LoginIdle, attempt.State())

	handled, err := attempt.HandleNavigation(context.Background(),
		"http://localhost/callback?code=the-code&state="+url.QueryEscape(attempt.OAuthState())+"#_=_")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, LoginCompleted, attempt.State())

	assert.Equal(t, [][2]LoginState{
		{LoginIdle, LoginCodeReceived},
		{LoginCodeReceived, LoginExchanging},
		{LoginExchanging, LoginFanningOut},
		{LoginFanningOut, LoginCompleted},
	}, rec.get())

	creds, err := attempt.Result()
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	select {
	case <-attempt.Done():
	default:
		t.Fatal("Done must be closed after completion")
	}

	requests := endpoint.Requests()
	require.NotEmpty(t, requests)
	assert.Equal(t, "the-code", requests[0].Code)
}

func TestLoginAttempt_IgnoresCodeWhileRunning(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL(), "A"), nil)
	attempt, err := NewLoginAttempt(tc)
	require.NoError(t, err)

	release := endpoint.hold()
	defer release()

	result := make(chan error, 1)
	go func() {
		_, err := attempt.HandleCode(context.Background(), "first")
		result <- err
	}()

	require.Eventually(t, func() bool { return attempt.State() == LoginExchanging }, time.Second, 5*time.Millisecond)

	handled, err := attempt.HandleCode(context.Background(), "second")
	assert.NoError(t, err)
	assert.False(t, handled)

	handled, err = attempt.HandleNavigation(context.Background(), "http://localhost/callback?code=third")
	assert.NoError(t, err)
	assert.False(t, handled)

	release()
	require.NoError(t, <-result)
	assert.Equal(t, LoginCompleted, attempt.State())

	requests := endpoint.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "first", requests[0].Code)

	handled, err = attempt.HandleCode(context.Background(), "late")
	assert.NoError(t, err)
	assert.False(t, handled, "terminal attempts ignore codes until reset")
}

func TestLoginAttempt_FailureAndReset(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	endpoint.failFor("A")
	tc := newTestContext(t, testConfig(endpoint.URL(), "A", "B"), nil)
	rec := &transitionRecorder{}

	attempt, err := NewLoginAttempt(tc, WithTransitionHook(rec.hook))
	require.NoError(t, err)
	firstState := attempt.OAuthState()

	handled, err := attempt.HandleCode(context.Background(), "bad-code")
	assert.True(t, handled)
	require.Error(t, err)
	assert.True(t, oauth.IsGrantError(err))
	assert.Equal(t, LoginFailed, attempt.State())
	assert.NotContains(t, rec.get(), [2]LoginState{LoginExchanging, LoginFanningOut})

	_, resultErr := attempt.Result()
	assert.Equal(t, err, resultErr)

	require.NoError(t, attempt.Reset())
	assert.Equal(t, LoginIdle, attempt.State())
	assert.NotEqual(t, firstState, attempt.OAuthState())
	creds, resultErr := attempt.Result()
	assert.Nil(t, creds)
	assert.NoError(t, resultErr)
}

func TestLoginAttempt_ResetWhileRunning(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL(), "A"), nil)
	attempt, err := NewLoginAttempt(tc)
	require.NoError(t, err)

	release := endpoint.hold()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = attempt.HandleCode(context.Background(), "code")
	}()

	require.Eventually(t, func() bool { return attempt.State() == LoginExchanging }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, attempt.Reset(), ErrLoginInProgress)

	release()
	<-done
	assert.NoError(t, attempt.Reset())
}

func TestLoginAttempt_AuthorizationErrorRedirect(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL()), nil)
	attempt, err := NewLoginAttempt(tc)
	require.NoError(t, err)

	handled, err := attempt.HandleNavigation(context.Background(),
		"http://localhost/callback?error=access_denied&error_description=cancelled")
	assert.True(t, handled)

	var authErr *oauth.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "access_denied", authErr.Code)
	assert.Equal(t, LoginFailed, attempt.State())
	assert.Empty(t, endpoint.Requests())
}

func TestLoginAttempt_StateMismatch(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL()), nil)
	attempt, err := NewLoginAttempt(tc)
	require.NoError(t, err)

	handled, err := attempt.HandleNavigation(context.Background(), "http://localhost/callback?code=c&state=forged")
	assert.True(t, handled)
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Equal(t, LoginFailed, attempt.State())
	assert.Empty(t, endpoint.Requests())
}

func TestLoginAttempt_NavigationWithoutCode(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL()), nil)
	attempt, err := NewLoginAttempt(tc)
	require.NoError(t, err)

	handled, err := attempt.HandleNavigation(context.Background(), "https://login.microsoftonline.com/common/oauth2/authorize?client_id=app")
	assert.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, LoginIdle, attempt.State())
	assert.Empty(t, attempt.CodeVerifier())
}

func TestLoginAttempt_PKCE(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	tc := newTestContext(t, testConfig(endpoint.URL(), "A", "B"), nil)
	attempt, err := NewLoginAttempt(tc, WithPKCE())
	require.NoError(t, err)

	authURL, err := attempt.AuthorizeURL()
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/contoso/oauth2/authorize", u.Path)
	assert.Equal(t, "app", q.Get("client_id"))
	assert.Equal(t, "A", q.Get("resource"))
	assert.Equal(t, attempt.OAuthState(), q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	challenge := q.Get("code_challenge")
	require.NotEmpty(t, challenge)
	assert.Equal(t, challenge, oauth2.S256ChallengeFromVerifier(attempt.CodeVerifier()))

	_, err = attempt.HandleCode(context.Background(), "code")
	require.NoError(t, err)

	for _, req := range endpoint.Requests() {
		if req.GrantType == "authorization_code" {
			require.NotEmpty(t, req.CodeVerifier)
			assert.Equal(t, challenge, oauth2.S256ChallengeFromVerifier(req.CodeVerifier))
		} else {
			assert.Empty(t, req.CodeVerifier)
		}
	}
}
