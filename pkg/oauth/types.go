package oauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DefaultResource is used when no resource is configured or supplied.
const DefaultResource = "common"

// GrantType selects the OAuth2 grant used for a token endpoint request.
// It determines which parameters are mandatory in the request body.
type GrantType int

const (
	// GrantAuthorizationCode exchanges a single-use authorization code.
	GrantAuthorizationCode GrantType = iota

	// GrantRefreshToken exchanges a refresh token for a new access token.
	GrantRefreshToken

	// GrantPassword is the resource owner password credentials grant.
	GrantPassword
)

// String returns the wire value of the grant type.
func (g GrantType) String() string {
	switch g {
	case GrantAuthorizationCode:
		return "authorization_code"
	case GrantRefreshToken:
		return "refresh_token"
	case GrantPassword:
		return "password"
	default:
		return "unknown"
	}
}

// ParseGrantType converts a wire value back into a GrantType.
func ParseGrantType(s string) (GrantType, error) {
	switch s {
	case "authorization_code":
		return GrantAuthorizationCode, nil
	case "refresh_token":
		return GrantRefreshToken, nil
	case "password":
		return GrantPassword, nil
	default:
		return 0, fmt.Errorf("unsupported grant type %q", s)
	}
}

// RequiredParams lists the body fields a grant request cannot be sent without,
// in addition to grant_type itself.
func (g GrantType) RequiredParams() []string {
	switch g {
	case GrantAuthorizationCode:
		return []string{"code", "client_id", "resource"}
	case GrantRefreshToken:
		return []string{"refresh_token", "client_id", "resource"}
	case GrantPassword:
		return []string{"client_id", "username", "password", "resource"}
	default:
		return nil
	}
}

// Params holds the form fields of a grant request. Empty values are treated
// as absent and are never serialized.
type Params map[string]string

// Clone returns an independent copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Without returns a copy of p with the given keys removed.
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Encode serializes the request body: grant_type first, then every non-empty
// parameter except grant_type, percent-encoded, in key order.
func (p Params) Encode(grantType GrantType) string {
	keys := make([]string, 0, len(p))
	for k, v := range p {
		if k == "grant_type" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("grant_type=")
	sb.WriteString(url.QueryEscape(grantType.String()))
	for _, k := range keys {
		sb.WriteByte('&')
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p[k]))
	}
	return sb.String()
}

// Credential is a cached token for one resource (audience).
type Credential struct {
	// Resource is the audience this credential is valid for.
	Resource string `json:"resource"`

	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// RefreshToken is absent for password-grant-only contexts.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresOn is the absolute expiry in epoch seconds.
	ExpiresOn EpochSeconds `json:"expires_on"`

	// ExpiresIn is the lifetime in seconds reported by the provider.
	ExpiresIn EpochSeconds `json:"expires_in,omitempty"`

	// NotBefore is the epoch second the token becomes valid, when reported.
	NotBefore EpochSeconds `json:"not_before,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// Scope is the granted scope string.
	Scope string `json:"scope,omitempty"`

	// IDToken is the OIDC ID token, when requested.
	IDToken string `json:"id_token,omitempty"`
}

// ExpiresAt returns ExpiresOn as a time.Time.
func (c *Credential) ExpiresAt() time.Time {
	if c == nil || c.ExpiresOn == 0 {
		return time.Time{}
	}
	return time.Unix(int64(c.ExpiresOn), 0)
}

// normalize fills derived fields after decoding a token response.
func (c *Credential) normalize(resource string, now time.Time) {
	if c.Resource == "" {
		c.Resource = resource
	}
	if c.ExpiresOn == 0 && c.ExpiresIn > 0 {
		c.ExpiresOn = EpochSeconds(now.Unix()) + c.ExpiresIn
	}
	if c.TokenType == "" {
		c.TokenType = "Bearer"
	}
}

// ToOAuth2Token converts the credential for use with golang.org/x/oauth2.
func (c *Credential) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    c.TokenType,
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt(),
	}

	extra := map[string]interface{}{"resource": c.Resource}
	if c.IDToken != "" {
		extra["id_token"] = c.IDToken
	}

	return token.WithExtra(extra)
}

// IDTokenClaims holds the identity claims extracted from JWT ID tokens.
// This is used to display who a credential belongs to without validating
// the token signature.
type IDTokenClaims struct {
	Subject  string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	UPN      string `json:"upn"`
	TenantID string `json:"tid"`
}

// DisplayName returns the most human-friendly identity available.
func (c *IDTokenClaims) DisplayName() string {
	switch {
	case c == nil:
		return ""
	case c.UPN != "":
		return c.UPN
	case c.Email != "":
		return c.Email
	case c.Name != "":
		return c.Name
	default:
		return c.Subject
	}
}

// ParseIDTokenClaims decodes the claims of an ID token without verifying it.
// Never use the result for authorization decisions.
func ParseIDTokenClaims(idToken string) (*IDTokenClaims, error) {
	if idToken == "" {
		return nil, fmt.Errorf("empty id_token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode id_token: %w", err)
	}

	str := func(key string) string {
		if v, ok := claims[key].(string); ok {
			return v
		}
		return ""
	}

	return &IDTokenClaims{
		Subject:  str("sub"),
		Email:    str("email"),
		Name:     str("name"),
		UPN:      str("upn"),
		TenantID: str("tid"),
	}, nil
}

// EpochSeconds is an integer second count that also decodes from a JSON
// string, as some providers quote expires_on and expires_in.
type EpochSeconds int64

// UnmarshalJSON accepts 3600, "3600" and null.
func (e *EpochSeconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*e = 0
			return nil
		}
		data = []byte(s)
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid epoch seconds %q: %w", string(data), err)
	}
	*e = EpochSeconds(n)
	return nil
}
