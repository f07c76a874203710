// Package capture receives the provider redirect at the end of an
// interactive login and hands the navigation URL to a handler, typically
// token.LoginAttempt.HandleNavigation.
//
// A CallbackServer listens on the host and port of the configured
// redirect_uri (localhost only), renders a small success or error page to
// the browser once the handler finished, and reports the outcome through
// Wait. OpenBrowser launches the system browser on the authorize URL.
package capture
