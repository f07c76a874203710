package cmd

import (
	"fmt"
	"sort"
	"time"

	"adtoken/internal/app"
	"adtoken/internal/token"
	"adtoken/pkg/auth"
	pkgstrings "adtoken/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// newStatusCmd shows the cached credentials of a context.
func newStatusCmd(g *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cached credentials",
		Long: `Show the cached credentials of an application, one row per resource.

Configured resources without a cached credential are listed as well.
Nothing is refreshed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ValidateOutputFormat(output); err != nil {
				return err
			}
			return runInContext(g, app.ContextOverrides{}, func(_ *app.Application, tc *token.Context) error {
				if _, err := tc.LoadCredentials(cmd.Context()); err != nil {
					return fmt.Errorf("failed to load credentials: %w", err)
				}
				now := time.Now()
				status := collectStatus(tc, now)

				format := OutputFormat(output)
				if format != OutputFormatTable {
					return writeStructured(cmd.OutOrStdout(), format, status)
				}
				renderStatus(cmd, status, now)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", string(OutputFormatTable), "output format: table, json, yaml")
	return cmd
}

// collectStatus lists configured resources first, in order, then any other
// cached resource sorted by name.
func collectStatus(tc *token.Context, now time.Time) auth.ContextStatus {
	cfg := tc.Config()
	creds := tc.Credentials()

	order := cfg.ResourceList()
	seen := make(map[string]bool, len(order))
	for _, r := range order {
		seen[r] = true
	}
	var extra []string
	for r := range creds {
		if !seen[r] {
			extra = append(extra, r)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	status := auth.ContextStatus{
		ClientID:    cfg.ClientID,
		Tenant:      cfg.TenantOrDefault(),
		Credentials: make([]auth.CredentialStatus, 0, len(order)),
	}
	for _, resource := range order {
		status.Credentials = append(status.Credentials, auth.NewCredentialStatus(resource, creds[resource], now))
	}
	return status
}

func renderStatus(cmd *cobra.Command, status auth.ContextStatus, now time.Time) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (tenant %s)\n", text.FgHiBlue.Sprint("Application:"), status.ClientID, status.Tenant)

	t := newTable(out)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("RESOURCE"),
		text.FgHiCyan.Sprint("STATUS"),
		text.FgHiCyan.Sprint("EXPIRES"),
		text.FgHiCyan.Sprint("REFRESH"),
		text.FgHiCyan.Sprint("IDENTITY"),
	})

	for _, row := range status.Credentials {
		resource := pkgstrings.TruncateMiddle(row.Resource, pkgstrings.DefaultColumnMaxLen)
		if !row.Cached {
			t.AppendRow(table.Row{resource, text.FgRed.Sprint("Not logged in"), "-", "-", "-"})
			continue
		}

		state := text.FgGreen.Sprint("Fresh")
		if !row.Fresh {
			state = text.FgYellow.Sprint("Stale")
		}
		expires := "unknown"
		if row.ExpiresAt != nil {
			expires = formatExpiry(*row.ExpiresAt, now)
		}
		refresh := text.FgGreen.Sprint("Available")
		if !row.HasRefreshToken {
			refresh = text.FgYellow.Sprint("None")
		}
		identity := "-"
		if row.Identity != "" {
			identity = pkgstrings.TruncateMiddle(row.Identity, pkgstrings.DefaultColumnMaxLen)
		}
		t.AppendRow(table.Row{resource, state, expires, refresh, identity})
	}
	t.Render()
}
