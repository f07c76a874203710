package token

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCode is returned when an acquisition is started without a code.
	ErrNoCode = errors.New("authorization code is empty")

	// ErrStateMismatch is returned when a redirect carries a state parameter
	// that this login attempt did not issue.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrLoginInProgress is returned when resetting an attempt that has not
	// reached a terminal state.
	ErrLoginInProgress = errors.New("login attempt still in progress")
)

// FanOutError identifies the resource whose refresh-token grant failed
// during a multi-resource acquisition.
type FanOutError struct {
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *FanOutError) Error() string {
	return fmt.Sprintf("acquiring token for resource %q: %v", e.Resource, e.Err)
}

// Unwrap returns the grant error.
func (e *FanOutError) Unwrap() error {
	return e.Err
}

// BootstrapError reports a failed authorization_code exchange. No fan-out
// is attempted after it.
type BootstrapError struct {
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *BootstrapError) Error() string {
	return fmt.Sprintf("redeeming authorization code for resource %q: %v", e.Resource, e.Err)
}

// Unwrap returns the grant error.
func (e *BootstrapError) Unwrap() error {
	return e.Err
}
