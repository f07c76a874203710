// Package logging provides the structured logging facade used across adtoken.
//
// It wraps Go's log/slog with a subsystem-tagged API so every component logs
// the same way:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//
//	logging.Info("TokenContext", "Refreshing token for resource=%s", resource)
//	logging.Debug("GrantClient", "POST %s grant_type=%s", endpoint, grantType)
//	logging.Warn("CredentialStore", "Durable write failed for key=%s", key)
//	logging.Error("Login", err, "Acquisition failed")
//
// Secrets (access tokens, refresh tokens, authorization codes, passwords)
// must never be passed to these functions verbatim. Use TruncateSecret when a
// correlation handle is needed.
package logging
