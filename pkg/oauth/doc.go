// Package oauth provides the wire-level OAuth2 pieces of adtoken: the token
// grant client, the credential type, the freshness policy and helpers for
// the interactive login step.
//
// # Core Components
//
//   - GrantClient: one token endpoint exchange per call (authorization_code,
//     refresh_token or password) with a 15 second budget
//   - Credential: a token for one resource, with an absolute expires_on
//   - IsFresh: the 60 second freshness margin applied before a cached token
//     is handed out
//   - AuthorizeURL / LogoutURL: interactive login and logout endpoints
//   - ExtractCode: pulls the authorization code out of a redirect URL
//
// The package holds no token state. Caching and refresh orchestration live
// in internal/store and internal/token.
//
// # Usage
//
//	client := oauth.NewGrantClient()
//	cred, err := client.Grant(ctx, endpoint, oauth.GrantRefreshToken, oauth.Params{
//	    "refresh_token": refreshToken,
//	    "client_id":     clientID,
//	    "resource":      "https://graph.microsoft.com",
//	})
//	if errors.Is(err, oauth.ErrTimeout) {
//	    // retry policy is up to the caller
//	}
package oauth
