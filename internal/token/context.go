package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"adtoken/internal/config"
	"adtoken/internal/store"
	"adtoken/pkg/logging"
	"adtoken/pkg/oauth"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const subsystem = "TokenContext"

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithGrantClient sets the client used for token endpoint exchanges.
func WithGrantClient(client *oauth.GrantClient) ContextOption {
	return func(c *Context) {
		c.client = client
	}
}

// WithClock sets the time source for freshness decisions.
func WithClock(now func() time.Time) ContextOption {
	return func(c *Context) {
		c.now = now
	}
}

// WithStoreOptions passes options to the context's CredentialStore.
func WithStoreOptions(opts ...store.Option) ContextOption {
	return func(c *Context) {
		c.storeOpts = append(c.storeOpts, opts...)
	}
}

// Context is the token façade of one application.
type Context struct {
	cfg       config.Context
	client    *oauth.GrantClient
	store     *store.CredentialStore
	storeOpts []store.Option
	now       func() time.Time

	refreshGroup singleflight.Group
}

// NewContext validates cfg and creates a context whose durable tier is
// backend. Most callers go through Registry.Create instead.
func NewContext(cfg config.Context, backend store.Backend, opts ...ContextOption) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Context{
		cfg: cfg.Clone(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = oauth.NewGrantClient(oauth.WithLogger(logging.Logger()))
	}
	c.store = store.New(cfg.ClientID, backend, c.storeOpts...)
	return c, nil
}

// ClientID returns the immutable client_id of this context.
func (c *Context) ClientID() string {
	return c.cfg.ClientID
}

// Config returns a copy of the context configuration.
func (c *Context) Config() config.Context {
	return c.cfg.Clone()
}

// AssureToken returns a usable access token for resource. A fresh cached
// credential is returned without any network call; a stale or missing one
// is refreshed.
func (c *Context) AssureToken(ctx context.Context, resource string) (string, error) {
	resource = resourceOrDefault(resource)

	cred := c.cached(ctx, resource)
	if oauth.IsFresh(cred, c.now()) {
		return cred.AccessToken, nil
	}

	if cred == nil {
		logging.Debug(subsystem, "No cached credential for %s/%s, refreshing", c.cfg.ClientID, resource)
	} else {
		logging.Debug(subsystem, "Credential for %s/%s expires at %s, refreshing",
			c.cfg.ClientID, resource, cred.ExpiresAt().Format(time.RFC3339))
	}
	return c.RefreshToken(ctx, resource)
}

// RefreshToken obtains a new access token for resource with the cached
// refresh token. Concurrent calls for the same resource share one grant.
// The shared grant is detached from the caller that started it and bounded
// by the grant client timeout, so a cancelled caller only abandons its own
// wait. Without a cached refresh token it fails with oauth.ErrMissingCredential.
func (c *Context) RefreshToken(ctx context.Context, resource string) (string, error) {
	resource = resourceOrDefault(resource)

	ch := c.refreshGroup.DoChan(resource, func() (interface{}, error) {
		grantCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.client.Timeout())
		defer cancel()

		cred := c.cached(grantCtx, resource)
		if cred == nil || cred.RefreshToken == "" {
			return nil, fmt.Errorf("refreshing %s/%s: %w", c.cfg.ClientID, resource, oauth.ErrMissingCredential)
		}

		refreshed, err := c.GrantAccessToken(grantCtx, oauth.GrantRefreshToken, oauth.Params{
			"refresh_token": cred.RefreshToken,
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"resource":      resource,
		})
		if err != nil {
			return nil, err
		}
		return refreshed.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			logging.Debug(subsystem, "Joined in-flight refresh for %s/%s", c.cfg.ClientID, resource)
		}
		return res.Val.(string), nil
	}
}

// GrantAccessToken performs one grant and, on success, stores the credential
// under params["resource"] before returning it. The resource defaults to
// "common" and password grants get the context's client_id when none is
// given. A missing required parameter fails with oauth.ErrMissingCredential
// before any request. Errors from the exchange are returned unchanged and
// nothing is stored.
func (c *Context) GrantAccessToken(ctx context.Context, grantType oauth.GrantType, params oauth.Params) (*oauth.Credential, error) {
	p := params.Clone()
	if p["resource"] == "" {
		p["resource"] = oauth.DefaultResource
	}
	if grantType == oauth.GrantPassword && p["client_id"] == "" {
		p["client_id"] = c.cfg.ClientID
	}
	for _, key := range grantType.RequiredParams() {
		if p[key] == "" {
			return nil, fmt.Errorf("%s grant without %s: %w", grantType, key, oauth.ErrMissingCredential)
		}
	}
	resource := p["resource"]

	cred, err := c.client.Grant(ctx, c.cfg.TokenEndpointURL(), grantType, p)
	if err != nil {
		logging.Debug(subsystem, "%s grant for %s/%s failed: %v", grantType, c.cfg.ClientID, resource, err)
		return nil, err
	}

	// Providers may omit refresh_token on refresh; the old one stays valid.
	if grantType == oauth.GrantRefreshToken && cred.RefreshToken == "" {
		cred.RefreshToken = p["refresh_token"]
	}

	cred.Resource = resource
	c.store.Put(ctx, resource, cred)
	logging.Info(subsystem, "Stored %s credential for %s/%s (expires %s)",
		grantType, c.cfg.ClientID, resource, cred.ExpiresAt().Format(time.RFC3339))

	return cred, nil
}

// PasswordGrant obtains a credential with the resource owner password grant.
func (c *Context) PasswordGrant(ctx context.Context, username, password, resource string) (*oauth.Credential, error) {
	return c.GrantAccessToken(ctx, oauth.GrantPassword, oauth.Params{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"username":      username,
		"password":      password,
		"resource":      resource,
	})
}

// SaveCredentials stores a resource→credential map in both tiers.
func (c *Context) SaveCredentials(ctx context.Context, creds map[string]*oauth.Credential) error {
	return c.store.SaveAll(ctx, creds)
}

// Credentials returns a snapshot of the cached credentials keyed by resource.
func (c *Context) Credentials() map[string]*oauth.Credential {
	return c.store.Snapshot()
}

// AccessToken returns the in-memory access token for resource, fresh or not,
// without any I/O.
func (c *Context) AccessToken(resource string) (string, bool) {
	cred, ok := c.store.Peek(resourceOrDefault(resource))
	if !ok {
		return "", false
	}
	return cred.AccessToken, true
}

// LoadCredentials pulls every durable credential of this context into memory.
func (c *Context) LoadCredentials(ctx context.Context) (int, error) {
	return c.store.Load(ctx)
}

// Logout forgets every credential of this context and returns the provider
// end-session URL for the configured tenant.
func (c *Context) Logout(ctx context.Context) (string, error) {
	logoutURL := oauth.LogoutURL(c.cfg.TenantOrDefault(), c.cfg.RedirectURI)
	if err := c.store.RemoveAll(ctx); err != nil {
		return logoutURL, err
	}
	logging.Info(subsystem, "Removed all credentials for %s", c.cfg.ClientID)
	return logoutURL, nil
}

// Flush waits for background durable writes and reports their failures.
func (c *Context) Flush() error {
	return c.store.Flush()
}

// TokenSource adapts the context to golang.org/x/oauth2 for one resource.
func (c *Context) TokenSource(ctx context.Context, resource string) oauth2.TokenSource {
	return &contextTokenSource{ctx: ctx, tc: c, resource: resourceOrDefault(resource)}
}

// HTTPClient returns an HTTP client that authorizes every request with a
// token for resource.
func (c *Context) HTTPClient(ctx context.Context, resource string) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource(ctx, resource))
}

// cached reads the credential for resource. Durable read failures are logged
// and treated as a miss; the memory tier stays authoritative.
func (c *Context) cached(ctx context.Context, resource string) *oauth.Credential {
	cred, err := c.store.Get(ctx, resource)
	if err != nil {
		var persistErr *oauth.PersistenceError
		if errors.As(err, &persistErr) {
			logging.Warn(subsystem, "Ignoring unreadable credential %s: %v", persistErr.Key, persistErr.Err)
		} else {
			logging.Warn(subsystem, "Ignoring unreadable credential for %s: %v", resource, err)
		}
		return nil
	}
	return cred
}

type contextTokenSource struct {
	ctx      context.Context
	tc       *Context
	resource string
}

// Token implements oauth2.TokenSource.
func (s *contextTokenSource) Token() (*oauth2.Token, error) {
	accessToken, err := s.tc.AssureToken(s.ctx, s.resource)
	if err != nil {
		return nil, err
	}
	cred, ok := s.tc.store.Peek(s.resource)
	if !ok || cred.AccessToken != accessToken {
		return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
	}
	return cred.ToOAuth2Token(), nil
}

func resourceOrDefault(resource string) string {
	if resource == "" {
		return oauth.DefaultResource
	}
	return resource
}
