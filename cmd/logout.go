package cmd

import (
	"fmt"

	"adtoken/internal/app"
	"adtoken/internal/capture"
	"adtoken/internal/token"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// newLogoutCmd forgets the cached credentials of a context.
func newLogoutCmd(g *globalOptions) *cobra.Command {
	var openBrowser bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget cached credentials",
		Long: `Remove every cached credential of the application from memory and
durable storage, and print the provider sign-out URL.

The browser session at the identity provider is only ended by visiting
that URL; use --open to do so right away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInContext(g, app.ContextOverrides{}, func(_ *app.Application, tc *token.Context) error {
				logoutURL, err := tc.Logout(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to remove credentials of %s: %w", tc.ClientID(), err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s Removed cached credentials of %s\n", text.FgGreen.Sprint("✓"), tc.ClientID())
				fmt.Fprintf(cmd.OutOrStdout(), "Sign out of the browser session at:\n  %s\n", logoutURL)

				if openBrowser {
					return capture.OpenBrowser(logoutURL)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&openBrowser, "open", false, "open the sign-out URL in the browser")
	return cmd
}
