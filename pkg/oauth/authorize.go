package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultTenant is the multi-tenant authority segment.
	DefaultTenant = "common"

	// DefaultAuthorityHost is the authorization endpoint template.
	// {tenant} is replaced with the configured tenant.
	DefaultAuthorityHost = "https://login.microsoftonline.com/{tenant}/oauth2/authorize"

	// DefaultTokenEndpointTemplate is the token endpoint template.
	DefaultTokenEndpointTemplate = "https://login.microsoftonline.com/{tenant}/oauth2/token"

	// defaultLogoutTemplate is the end-session endpoint template.
	defaultLogoutTemplate = "https://login.microsoftonline.com/{tenant}/oauth2/logout"

	// noncePrefix marks nonces generated by this package.
	noncePrefix = "adtoken-"
)

// WithTenant substitutes the tenant into an endpoint template. Both the
// {tenant} and legacy <tenant id> placeholders are recognised.
func WithTenant(template, tenant string) string {
	if tenant == "" {
		tenant = DefaultTenant
	}
	out := strings.ReplaceAll(template, "{tenant}", tenant)
	return strings.ReplaceAll(out, "<tenant id>", tenant)
}

// AuthorizeRequest describes the interactive login URL to build.
type AuthorizeRequest struct {
	AuthorityHost string
	Tenant        string
	ClientID      string
	RedirectURI   string
	Resource      string
	Scope         string
	Prompt        string
	LoginHint     string
	Policy        string
	State         string

	// Nonce is generated when empty.
	Nonce string

	// PKCE adds code_challenge parameters when set.
	PKCE *PKCEChallenge
}

// AuthorizeURL builds the authorization endpoint URL for response_type=code.
func AuthorizeURL(req AuthorizeRequest) (string, error) {
	if req.ClientID == "" {
		return "", fmt.Errorf("client_id is required")
	}

	host := req.AuthorityHost
	if host == "" {
		host = DefaultAuthorityHost
	}

	authURL, err := url.Parse(WithTenant(host, req.Tenant))
	if err != nil {
		return "", fmt.Errorf("invalid authority host: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", req.ClientID)

	if req.RedirectURI != "" {
		query.Set("redirect_uri", req.RedirectURI)
		nonce := req.Nonce
		if nonce == "" {
			nonce = noncePrefix + uuid.NewString()
		}
		query.Set("nonce", nonce)
	}

	optional := map[string]string{
		"resource":   req.Resource,
		"scope":      req.Scope,
		"prompt":     req.Prompt,
		"login_hint": req.LoginHint,
		"p":          req.Policy,
		"state":      req.State,
	}
	for key, value := range optional {
		if value != "" {
			query.Set(key, value)
		}
	}

	if req.PKCE != nil {
		query.Set("code_challenge", req.PKCE.CodeChallenge)
		query.Set("code_challenge_method", req.PKCE.CodeChallengeMethod)
	}

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

// LogoutURL builds the end-session URL for a tenant. postLogoutRedirect may be empty.
func LogoutURL(tenant, postLogoutRedirect string) string {
	logoutURL := WithTenant(defaultLogoutTemplate, tenant)
	if postLogoutRedirect == "" {
		return logoutURL
	}
	return logoutURL + "?" + url.Values{"post_logout_redirect_uri": {postLogoutRedirect}}.Encode()
}
