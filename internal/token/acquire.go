package token

import (
	"context"
	"fmt"

	"adtoken/pkg/logging"
	"adtoken/pkg/oauth"

	"golang.org/x/sync/errgroup"
)

// acquireOptions holds the optional inputs of AcquireWithCode.
type acquireOptions struct {
	codeVerifier string
	resources    []string
	onBootstrap  func(cred *oauth.Credential, remaining []string)
}

// AcquireOption configures AcquireWithCode.
type AcquireOption func(*acquireOptions)

// WithCodeVerifier sends a PKCE code_verifier with the code exchange.
func WithCodeVerifier(verifier string) AcquireOption {
	return func(o *acquireOptions) {
		o.codeVerifier = verifier
	}
}

// WithResources overrides the configured resource list.
func WithResources(resources ...string) AcquireOption {
	return func(o *acquireOptions) {
		o.resources = resources
	}
}

// OnBootstrap registers a callback run after the code exchange succeeded
// and before any refresh-token grant is issued.
func OnBootstrap(fn func(cred *oauth.Credential, remaining []string)) AcquireOption {
	return func(o *acquireOptions) {
		o.onBootstrap = fn
	}
}

// AcquireWithCode turns one authorization code into credentials for every
// configured resource.
//
// The code is redeemed exactly once, for the first resource. Its refresh
// token is then used for concurrent refresh_token grants for the remaining
// resources, without code or redirect_uri. All grants are awaited; if any
// fails the first error is returned as a *FanOutError and no credential set
// is reported, although the credentials already obtained stay cached.
func (c *Context) AcquireWithCode(ctx context.Context, code string, opts ...AcquireOption) (map[string]*oauth.Credential, error) {
	if code == "" {
		return nil, ErrNoCode
	}

	o := &acquireOptions{}
	for _, opt := range opts {
		opt(o)
	}
	resources := o.resources
	if len(resources) == 0 {
		resources = c.cfg.ResourceList()
	}

	params := oauth.Params{
		"code":          code,
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"redirect_uri":  c.cfg.RedirectURI,
		"code_verifier": o.codeVerifier,
		"resource":      resources[0],
	}

	logging.Info(subsystem, "Redeeming authorization code %s for %s/%s",
		logging.TruncateSecret(code), c.cfg.ClientID, resources[0])

	bootstrap, err := c.GrantAccessToken(ctx, oauth.GrantAuthorizationCode, params)
	if err != nil {
		return nil, &BootstrapError{Resource: resources[0], Err: err}
	}

	remaining := resources[1:]
	if o.onBootstrap != nil {
		o.onBootstrap(bootstrap, remaining)
	}
	if len(remaining) == 0 {
		return c.Credentials(), nil
	}
	if bootstrap.RefreshToken == "" {
		return nil, &BootstrapError{
			Resource: resources[0],
			Err:      fmt.Errorf("no refresh_token to reach %d more resources: %w", len(remaining), oauth.ErrMissingCredential),
		}
	}

	refreshParams := params.Without("code", "redirect_uri", "code_verifier")
	refreshParams["refresh_token"] = bootstrap.RefreshToken

	logging.Debug(subsystem, "Fanning out refresh grants for %s to %d resources", c.cfg.ClientID, len(remaining))

	// No derived context: one failed grant must not cancel the others.
	var g errgroup.Group
	for _, resource := range remaining {
		resource := resource
		p := refreshParams.Clone()
		p["resource"] = resource
		g.Go(func() error {
			if _, err := c.GrantAccessToken(ctx, oauth.GrantRefreshToken, p); err != nil {
				return &FanOutError{Resource: resource, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.Warn(subsystem, "Multi-resource acquisition for %s failed: %v", c.cfg.ClientID, err)
		return nil, err
	}

	logging.Info(subsystem, "Acquired credentials for %s across %d resources", c.cfg.ClientID, len(resources))
	return c.Credentials(), nil
}
