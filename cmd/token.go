package cmd

import (
	"fmt"

	"adtoken/internal/app"
	"adtoken/internal/token"

	"github.com/spf13/cobra"
)

type tokenOptions struct {
	resource string
	header   bool
}

// newTokenCmd prints a fresh access token, refreshing it when needed.
func newTokenCmd(g *globalOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a fresh access token",
		Long: `Print an access token for a resource.

A cached token is returned as long as it is valid for at least another
minute. Otherwise it is refreshed with the cached refresh token. When no
credential is cached the command exits with code 2; run 'adtoken login'.

Examples:
  adtoken token                                   # First configured resource
  adtoken token --resource https://graph.microsoft.com
  curl -H "$(adtoken token --header)" https://graph.microsoft.com/v1.0/me`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInContext(g, app.ContextOverrides{}, func(_ *app.Application, tc *token.Context) error {
				resource := opts.resource
				if resource == "" {
					resource = tc.Config().ResourceList()[0]
				}

				accessToken, err := tc.AssureToken(cmd.Context(), resource)
				if err != nil {
					return err
				}

				if opts.header {
					fmt.Fprintf(cmd.OutOrStdout(), "Authorization: Bearer %s\n", accessToken)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), accessToken)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.resource, "resource", "r", "", "resource to get a token for (default: first configured resource)")
	cmd.Flags().BoolVar(&opts.header, "header", false, "print as an HTTP Authorization header")
	return cmd
}

// newRefreshCmd forces a refresh_token grant regardless of freshness.
func newRefreshCmd(g *globalOptions) *cobra.Command {
	var resources []string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh",
		Long: `Force a refresh of the cached tokens using their refresh tokens.

Without --resource every configured resource is refreshed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInContext(g, app.ContextOverrides{}, func(_ *app.Application, tc *token.Context) error {
				targets := resources
				if len(targets) == 0 {
					targets = tc.Config().ResourceList()
				}

				for _, resource := range targets {
					if _, err := tc.RefreshToken(cmd.Context(), resource); err != nil {
						return fmt.Errorf("failed to refresh %s: %w", resource, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s\n", resource)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&resources, "resource", "r", nil, "resource to refresh (repeatable)")
	return cmd
}
