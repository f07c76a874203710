package cmd

import (
	"fmt"

	"adtoken/internal/app"
	"adtoken/internal/token"

	"github.com/spf13/cobra"
)

// newAuthorizeURLCmd prints the authorization request URL for a context.
func newAuthorizeURLCmd(g *globalOptions) *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "authorize-url",
		Short: "Print the authorization URL",
		Long: `Print the authorization URL for the application without logging in.

Redeem the resulting code with 'adtoken login --code'. With --pkce the code
verifier is printed to stderr; pass it along with --code-verifier.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInContext(g, opts.overrides(), func(_ *app.Application, tc *token.Context) error {
				var loginOpts []token.LoginOption
				if opts.pkce {
					loginOpts = append(loginOpts, token.WithPKCE())
				}
				attempt, err := token.NewLoginAttempt(tc, loginOpts...)
				if err != nil {
					return err
				}
				authURL, err := attempt.AuthorizeURL()
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), authURL)
				if verifier := attempt.CodeVerifier(); verifier != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "code_verifier: %s\n", verifier)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "tenant id or domain")
	cmd.Flags().StringVar(&opts.redirectURI, "redirect-uri", "", "redirect URI registered for the application")
	cmd.Flags().StringSliceVarP(&opts.resources, "resource", "r", nil, "resource for the authorization request")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "prompt behaviour, e.g. login, consent, select_account")
	cmd.Flags().StringVar(&opts.loginHint, "login-hint", "", "pre-fill the sign-in name")
	cmd.Flags().BoolVar(&opts.pkce, "pkce", false, "add a PKCE challenge")
	return cmd
}
