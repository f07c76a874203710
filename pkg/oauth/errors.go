package oauth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout is returned when a grant request exceeds its time budget.
	// The request is abandoned; no retry is attempted.
	ErrTimeout = errors.New("token request timed out")

	// ErrMissingCredential is returned when a refresh is requested for a
	// resource with no cached credential and no refresh token.
	ErrMissingCredential = errors.New("no credential available")
)

// GrantError is returned when the token endpoint answered without a usable
// access_token, e.g. invalid_grant. It is a negative protocol outcome rather
// than a transport failure.
type GrantError struct {
	// Resource is the audience the grant was requested for.
	Resource string

	// GrantType is the grant that was attempted.
	GrantType GrantType

	// StatusCode is the HTTP status of the token endpoint response.
	StatusCode int

	// Code is the OAuth error code ("error" field), if any.
	Code string

	// Description is the "error_description" field, if any.
	Description string

	// Response is the full parsed response body.
	Response map[string]interface{}

	// Raw is the response body as received.
	Raw string
}

// Error implements the error interface.
func (e *GrantError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s grant for resource %q failed", e.GrantType, e.Resource)
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Code)
	}
	if e.Description != "" {
		// AAD descriptions are multi-line with trace ids; keep the first line
		desc, _, _ := strings.Cut(e.Description, "\r\n")
		sb.WriteString(": ")
		sb.WriteString(desc)
	}
	return sb.String()
}

// IsInvalidGrant reports whether the provider rejected the code or refresh token.
func (e *GrantError) IsInvalidGrant() bool {
	return e != nil && e.Code == "invalid_grant"
}

// PersistenceError reports a durable-store read or write failure. It never
// invalidates the in-memory credential.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("credential store %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsGrantError reports whether err is, or wraps, a *GrantError.
func IsGrantError(err error) bool {
	var grantErr *GrantError
	return errors.As(err, &grantErr)
}

// IsPersistenceError reports whether err is, or wraps, a *PersistenceError.
func IsPersistenceError(err error) bool {
	var persistErr *PersistenceError
	return errors.As(err, &persistErr)
}
