package cmd

import (
	"fmt"
	"time"

	"adtoken/internal/app"
	"adtoken/internal/token"

	"github.com/jedib0t/go-pretty/v6/text"
)

// runInContext bootstraps the application, resolves the context selected
// by the global flags and overrides, and runs fn with it. Pending durable
// writes are flushed before returning.
func runInContext(g *globalOptions, overrides app.ContextOverrides, fn func(*app.Application, *token.Context) error) (err error) {
	a, err := app.NewApplication(app.NewConfig(g.debug, g.quiet, g.configPath))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to persist credentials: %w", closeErr)
		}
	}()

	if overrides.ClientID == "" {
		overrides.ClientID = g.clientID
	}
	tc, err := a.Context(overrides)
	if err != nil {
		return err
	}
	return fn(a, tc)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiry formats an expiry as "in X" or "expired X ago" relative to now.
func formatExpiry(expiresAt, now time.Time) string {
	remaining := expiresAt.Sub(now)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}
