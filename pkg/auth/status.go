package auth

import (
	"time"

	"adtoken/pkg/oauth"
)

// ContextStatus describes the cached credentials of one application.
type ContextStatus struct {
	ClientID    string             `json:"clientId"`
	Tenant      string             `json:"tenant"`
	Credentials []CredentialStatus `json:"credentials"`
}

// CredentialStatus describes the cached credential for one resource.
type CredentialStatus struct {
	// Resource is the audience of the credential
	Resource string `json:"resource"`

	// Cached is false for a configured resource without a credential
	Cached bool `json:"cached"`

	// ExpiresAt is absent when the provider reported no expiry
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// Fresh reports whether the token is usable without a refresh
	Fresh bool `json:"fresh"`

	HasRefreshToken bool `json:"hasRefreshToken"`

	// Identity and TenantID come from the unverified id_token, when present
	Identity string `json:"identity,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
}

// NewCredentialStatus summarizes cred as of now. A nil cred yields an
// uncached entry for resource.
func NewCredentialStatus(resource string, cred *oauth.Credential, now time.Time) CredentialStatus {
	status := CredentialStatus{Resource: resource}
	if cred == nil {
		return status
	}

	status.Cached = true
	if expiry := cred.ExpiresAt(); !expiry.IsZero() {
		expiry = expiry.UTC()
		status.ExpiresAt = &expiry
	}
	status.Fresh = oauth.IsFresh(cred, now)
	status.HasRefreshToken = cred.RefreshToken != ""

	if cred.IDToken != "" {
		if claims, err := oauth.ParseIDTokenClaims(cred.IDToken); err == nil {
			status.Identity = claims.DisplayName()
			status.TenantID = claims.TenantID
		}
	}
	return status
}
