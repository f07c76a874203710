package token

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"adtoken/pkg/logging"
	"adtoken/pkg/oauth"
)

// LoginState is the phase of one interactive login attempt.
type LoginState int

const (
	LoginIdle LoginState = iota
	LoginCodeReceived
	LoginExchanging
	LoginFanningOut
	LoginCompleted
	LoginFailed
)

// String returns the state name.
func (s LoginState) String() string {
	switch s {
	case LoginIdle:
		return "Idle"
	case LoginCodeReceived:
		return "CodeReceived"
	case LoginExchanging:
		return "Exchanging"
	case LoginFanningOut:
		return "FanningOut"
	case LoginCompleted:
		return "Completed"
	case LoginFailed:
		return "Failed"
	default:
		return fmt.Sprintf("LoginState(%d)", int(s))
	}
}

// IsTerminal reports whether the attempt has finished.
func (s LoginState) IsTerminal() bool {
	return s == LoginCompleted || s == LoginFailed
}

// LoginOption configures a LoginAttempt.
type LoginOption func(*LoginAttempt)

// WithPKCE forces PKCE on regardless of the context configuration.
func WithPKCE() LoginOption {
	return func(a *LoginAttempt) {
		a.usePKCE = true
	}
}

// WithTransitionHook registers fn to be called after every state change.
// It is called without internal locks held.
func WithTransitionHook(fn func(from, to LoginState)) LoginOption {
	return func(a *LoginAttempt) {
		a.onTransition = fn
	}
}

// LoginAttempt drives one interactive login for a Context. The first code
// delivered to an idle attempt starts the acquisition; codes delivered
// while it runs are ignored. A terminal attempt can be Reset for a retry.
type LoginAttempt struct {
	tc           *Context
	usePKCE      bool
	onTransition func(from, to LoginState)

	mu         sync.Mutex
	state      LoginState
	oauthState string
	pkce       *oauth.PKCEChallenge
	result     map[string]*oauth.Credential
	err        error
	done       chan struct{}
}

// NewLoginAttempt creates an idle attempt for tc.
func NewLoginAttempt(tc *Context, opts ...LoginOption) (*LoginAttempt, error) {
	a := &LoginAttempt{
		tc:      tc,
		usePKCE: tc.cfg.PKCE,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.prepare(); err != nil {
		return nil, err
	}
	return a, nil
}

// prepare issues a fresh state and PKCE verifier. Callers hold mu or own a.
func (a *LoginAttempt) prepare() error {
	state, err := oauth.GenerateState()
	if err != nil {
		return err
	}
	a.state = LoginIdle
	a.oauthState = state
	a.pkce = nil
	if a.usePKCE {
		a.pkce = oauth.GeneratePKCE()
	}
	a.result = nil
	a.err = nil
	a.done = make(chan struct{})
	return nil
}

// AuthorizeURL returns the URL the user must visit to log in.
func (a *LoginAttempt) AuthorizeURL() (string, error) {
	a.mu.Lock()
	state, pkce := a.oauthState, a.pkce
	a.mu.Unlock()

	cfg := a.tc.cfg
	resources := cfg.ResourceList()
	return oauth.AuthorizeURL(oauth.AuthorizeRequest{
		AuthorityHost: cfg.AuthorityHostURL(),
		Tenant:        cfg.TenantOrDefault(),
		ClientID:      cfg.ClientID,
		RedirectURI:   cfg.RedirectURI,
		Resource:      resources[0],
		Scope:         cfg.Scope,
		Prompt:        cfg.Prompt,
		LoginHint:     cfg.LoginHint,
		Policy:        cfg.Policy,
		State:         state,
		PKCE:          pkce,
	})
}

// OAuthState returns the state parameter issued for this attempt.
func (a *LoginAttempt) OAuthState() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.oauthState
}

// CodeVerifier returns the PKCE verifier of this attempt, or "" without PKCE.
func (a *LoginAttempt) CodeVerifier() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pkce == nil {
		return ""
	}
	return a.pkce.CodeVerifier
}

// State returns the current phase.
func (a *LoginAttempt) State() LoginState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done is closed when the attempt reaches Completed or Failed.
func (a *LoginAttempt) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Result returns the acquired credentials, or the error of a failed attempt.
// Both are nil before the attempt is terminal.
func (a *LoginAttempt) Result() (map[string]*oauth.Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.err
}

// HandleNavigation inspects a URL the login UI navigated to. It reports
// whether the URL was consumed, i.e. carried a code or an authorization
// error that this attempt acted upon.
func (a *LoginAttempt) HandleNavigation(ctx context.Context, navURL string) (bool, error) {
	if authErr := oauth.ExtractAuthorizationError(navURL); authErr != nil {
		if !a.fail(authErr) {
			return false, nil
		}
		return true, authErr
	}

	code, ok := oauth.ExtractCode(navURL)
	if !ok {
		return false, nil
	}

	if returned := stateParam(navURL); returned != "" && returned != a.OAuthState() {
		logging.Warn("LoginAttempt", "Discarding redirect with unexpected state for %s", a.tc.cfg.ClientID)
		if !a.fail(ErrStateMismatch) {
			return false, nil
		}
		return true, ErrStateMismatch
	}

	logging.Debug("LoginAttempt", "Code detected in navigation to %s", redactQuery(navURL))
	return a.HandleCode(ctx, code)
}

// HandleCode starts the acquisition with code if the attempt is idle and
// blocks until it finishes. It reports false, and does nothing, when the
// attempt is already running or finished.
func (a *LoginAttempt) HandleCode(ctx context.Context, code string) (bool, error) {
	a.mu.Lock()
	if a.state != LoginIdle {
		state := a.state
		a.mu.Unlock()
		logging.Debug("LoginAttempt", "Ignoring code for %s while %s", a.tc.cfg.ClientID, state)
		return false, nil
	}
	verifier := ""
	if a.pkce != nil {
		verifier = a.pkce.CodeVerifier
	}
	a.state = LoginCodeReceived
	a.mu.Unlock()
	a.notify(LoginIdle, LoginCodeReceived)

	a.transition(LoginExchanging)

	opts := []AcquireOption{
		OnBootstrap(func(*oauth.Credential, []string) {
			a.transition(LoginFanningOut)
		}),
	}
	if verifier != "" {
		opts = append(opts, WithCodeVerifier(verifier))
	}

	creds, err := a.tc.AcquireWithCode(ctx, code, opts...)
	a.finish(creds, err)
	return true, err
}

// Reset returns a terminal attempt to Idle with a new state and verifier.
func (a *LoginAttempt) Reset() error {
	a.mu.Lock()
	if !a.state.IsTerminal() && a.state != LoginIdle {
		a.mu.Unlock()
		return ErrLoginInProgress
	}
	from := a.state
	err := a.prepare()
	a.mu.Unlock()
	if err != nil {
		return err
	}
	if from != LoginIdle {
		a.notify(from, LoginIdle)
	}
	return nil
}

func (a *LoginAttempt) transition(to LoginState) {
	a.mu.Lock()
	from := a.state
	a.state = to
	a.mu.Unlock()
	a.notify(from, to)
}

// fail moves an idle attempt straight to Failed. It reports false when the
// attempt was not idle.
func (a *LoginAttempt) fail(err error) bool {
	a.mu.Lock()
	if a.state != LoginIdle {
		a.mu.Unlock()
		return false
	}
	a.state = LoginFailed
	a.err = err
	close(a.done)
	a.mu.Unlock()

	logging.Warn("LoginAttempt", "Login for %s failed: %v", a.tc.cfg.ClientID, err)
	a.notify(LoginIdle, LoginFailed)
	return true
}

func (a *LoginAttempt) finish(creds map[string]*oauth.Credential, err error) {
	to := LoginCompleted
	if err != nil {
		to = LoginFailed
	}

	a.mu.Lock()
	from := a.state
	a.state = to
	a.result = creds
	a.err = err
	close(a.done)
	a.mu.Unlock()

	if err != nil {
		logging.Warn("LoginAttempt", "Login for %s failed: %v", a.tc.cfg.ClientID, err)
	} else {
		logging.Info("LoginAttempt", "Login for %s completed with %d credentials", a.tc.cfg.ClientID, len(creds))
	}
	a.notify(from, to)
}

func (a *LoginAttempt) notify(from, to LoginState) {
	if a.onTransition != nil {
		a.onTransition(from, to)
	}
}

func stateParam(navURL string) string {
	u, err := url.Parse(navURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("state")
}

// redactQuery drops the query and fragment, which carry the code.
func redactQuery(navURL string) string {
	u, err := url.Parse(navURL)
	if err != nil {
		return "<unparseable>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
