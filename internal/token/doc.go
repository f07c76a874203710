// Package token implements per-application token contexts.
//
// A Context owns the configuration of one client_id and a two-tier
// CredentialStore. It hands out cached access tokens while they have at
// least oauth.FreshnessMargin of validity left and transparently refreshes
// them otherwise. Every credential enters the store through
// GrantAccessToken, so the cache and the token endpoint never disagree.
//
// Contexts live in an explicitly owned Registry keyed by client_id. There is
// no process-wide registry: callers construct one and pass it to whatever
// needs to resolve contexts.
//
// # Multi-resource acquisition
//
// Authorization codes are single use. AcquireWithCode therefore redeems the
// code exactly once, for the first configured resource, and reuses the
// resulting refresh token to obtain the remaining resources concurrently:
//
//	code ──authorization_code──▶ r0 ──refresh_token──┬──▶ r1
//	                                                 ├──▶ r2
//	                                                 └──▶ rn
//
// The result is all-or-nothing: if any fan-out grant fails the acquisition
// fails, although credentials that were obtained stay cached.
//
// # Login attempts
//
// LoginAttempt wraps one interactive login as a small state machine
// (Idle, CodeReceived, Exchanging, FanningOut, Completed, Failed). Codes that
// arrive while an attempt is already running are ignored.
package token
