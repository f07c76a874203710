package oauth

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// codePattern matches the code parameter of a redirect URL, including any
// trailing fragment the provider appended.
var codePattern = regexp.MustCompile(`[?&]code=([^&]+)`)

// ExtractCode finds an authorization code in a navigation URL. The code=
// prefix and trailing provider artifacts such as a #fragment or _=_ are
// stripped. It reports false when the URL carries no code.
func ExtractCode(navURL string) (string, bool) {
	m := codePattern.FindStringSubmatch(navURL)
	if m == nil {
		return "", false
	}

	code := m[1]
	if i := strings.IndexByte(code, '#'); i >= 0 {
		code = code[:i]
	}
	code = strings.TrimSuffix(code, "_=_")

	if unescaped, err := url.QueryUnescape(code); err == nil {
		code = unescaped
	}
	if code == "" {
		return "", false
	}
	return code, true
}

// AuthorizationError is an error redirect from the authorization endpoint,
// e.g. access_denied after the user cancels the consent screen.
type AuthorizationError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization failed: %s", e.Code)
	}
	return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
}

// ExtractAuthorizationError returns the error carried by a redirect URL, or nil.
func ExtractAuthorizationError(navURL string) *AuthorizationError {
	u, err := url.Parse(navURL)
	if err != nil {
		return nil
	}
	query := u.Query()
	if query.Get("error") == "" && u.Fragment != "" {
		if fragment, err := url.ParseQuery(u.Fragment); err == nil {
			query = fragment
		}
	}
	if query.Get("error") == "" {
		return nil
	}
	return &AuthorizationError{
		Code:        query.Get("error"),
		Description: query.Get("error_description"),
	}
}
