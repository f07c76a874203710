package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"adtoken/internal/app"
	"adtoken/internal/capture"
	"adtoken/internal/token"
	"adtoken/pkg/logging"
	"adtoken/pkg/oauth"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type loginOptions struct {
	tenant       string
	redirectURI  string
	resources    []string
	prompt       string
	loginHint    string
	pkce         bool
	noBrowser    bool
	code         string
	codeVerifier string
	timeout      time.Duration
}

func (o *loginOptions) overrides() app.ContextOverrides {
	return app.ContextOverrides{
		Tenant:      o.tenant,
		RedirectURI: o.redirectURI,
		Resources:   o.resources,
		Prompt:      o.prompt,
		LoginHint:   o.loginHint,
		PKCE:        o.pkce,
	}
}

// newLoginCmd runs the interactive authorization code login.
func newLoginCmd(g *globalOptions) *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in interactively and acquire tokens for all resources",
		Long: `Log in through the browser and acquire tokens for every configured resource.

When the redirect URI points to localhost, a temporary local server receives
the redirect and the browser is opened automatically. Otherwise, or with
--no-browser, the authorization URL is printed and the redirected URL (or
just the code) has to be pasted back.

The authorization code is redeemed once for the first resource; tokens for
the remaining resources are obtained concurrently with its refresh token.

Examples:
  adtoken login
  adtoken login --resource https://graph.microsoft.com --resource https://management.azure.com
  adtoken login --no-browser
  adtoken login --code <code>          # Redeem a code obtained elsewhere`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "tenant id or domain (default from config, then \"common\")")
	cmd.Flags().StringVar(&opts.redirectURI, "redirect-uri", "", "redirect URI registered for the application")
	cmd.Flags().StringSliceVarP(&opts.resources, "resource", "r", nil, "resource to acquire a token for (repeatable)")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "prompt behaviour, e.g. login, consent, select_account")
	cmd.Flags().StringVar(&opts.loginHint, "login-hint", "", "pre-fill the sign-in name")
	cmd.Flags().BoolVar(&opts.pkce, "pkce", false, "use PKCE for the authorization request")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	cmd.Flags().StringVar(&opts.code, "code", "", "redeem this authorization code instead of logging in")
	cmd.Flags().StringVar(&opts.codeVerifier, "code-verifier", "", "PKCE code verifier for --code")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", capture.CallbackTimeout, "how long to wait for the login to complete")
	return cmd
}

func runLogin(cmd *cobra.Command, g *globalOptions, opts *loginOptions) error {
	return runInContext(g, opts.overrides(), func(a *app.Application, tc *token.Context) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
		defer cancel()

		if opts.code != "" {
			var acquireOpts []token.AcquireOption
			if opts.codeVerifier != "" {
				acquireOpts = append(acquireOpts, token.WithCodeVerifier(opts.codeVerifier))
			}
			creds, err := tc.AcquireWithCode(ctx, opts.code, acquireOpts...)
			if err != nil {
				return err
			}
			printLoginResult(cmd.OutOrStdout(), tc.ClientID(), creds)
			return nil
		}

		if tc.Config().RedirectURI == "" {
			return errors.New("login requires a redirect_uri: set it in the config file or pass --redirect-uri")
		}

		if !opts.noBrowser {
			creds, err := browserLogin(ctx, cmd, a, tc, opts, g.quiet)
			if !errors.Is(err, errNotCapturable) {
				if err != nil {
					return err
				}
				printLoginResult(cmd.OutOrStdout(), tc.ClientID(), creds)
				return nil
			}
		}

		creds, err := manualLogin(ctx, cmd, tc, opts)
		if err != nil {
			return err
		}
		printLoginResult(cmd.OutOrStdout(), tc.ClientID(), creds)
		return nil
	})
}

var errNotCapturable = errors.New("redirect cannot be captured locally")

// browserLogin captures the redirect with a local server.
func browserLogin(ctx context.Context, cmd *cobra.Command, a *app.Application, tc *token.Context, opts *loginOptions, quiet bool) (map[string]*oauth.Credential, error) {
	var current atomic.Pointer[token.LoginAttempt]
	server, err := capture.NewCallbackServer(tc.ClientID(), tc.Config().RedirectURI,
		func(ctx context.Context, navURL string) (bool, error) {
			attempt := current.Load()
			if attempt == nil {
				return false, nil
			}
			return attempt.HandleNavigation(ctx, navURL)
		})
	if err != nil {
		logging.Debug("Login", "Falling back to manual login: %v", err)
		return nil, errNotCapturable
	}

	redirectURI, err := server.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer server.Stop()

	// A random port changes the redirect URI the code is bound to
	if redirectURI != tc.Config().RedirectURI {
		overrides := opts.overrides()
		overrides.ClientID = tc.ClientID()
		overrides.RedirectURI = redirectURI
		if tc, err = a.Context(overrides); err != nil {
			return nil, err
		}
	}

	var s *spinner.Spinner
	if !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " Waiting for browser login..."
	}

	attempt, err := token.NewLoginAttempt(tc, loginAttemptOptions(opts, s)...)
	if err != nil {
		return nil, err
	}
	current.Store(attempt)

	authURL, err := attempt.AuthorizeURL()
	if err != nil {
		return nil, err
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Opening browser for login. If it does not open, visit:\n\n  %s\n\n", authURL)
	if err := capture.OpenBrowser(authURL); err != nil {
		fmt.Fprintf(out, "%s %v\n", text.FgYellow.Sprint("Could not open browser:"), err)
	}

	if s != nil {
		s.Start()
		defer s.Stop()
	}

	if err := server.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out waiting for the login redirect: %w", err)
		}
		return nil, err
	}
	return attempt.Result()
}

// manualLogin prints the authorization URL and reads the redirect back.
func manualLogin(ctx context.Context, cmd *cobra.Command, tc *token.Context, opts *loginOptions) (map[string]*oauth.Credential, error) {
	attempt, err := token.NewLoginAttempt(tc, loginAttemptOptions(opts, nil)...)
	if err != nil {
		return nil, err
	}
	authURL, err := attempt.AuthorizeURL()
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Visit the following URL to log in:\n\n  %s\n\n", authURL)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Paste the redirected URL or the code: ",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.ErrOrStderr(),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline instance: %w", err)
	}
	line, err := rl.Readline()
	rl.Close()
	if err != nil {
		return nil, promptError(err)
	}

	input := strings.TrimSpace(line)
	var handled bool
	if strings.Contains(input, "://") {
		handled, err = attempt.HandleNavigation(ctx, input)
	} else {
		handled, err = attempt.HandleCode(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	if !handled {
		return nil, token.ErrNoCode
	}
	return attempt.Result()
}

// loginAttemptOptions wires PKCE and spinner progress into the attempt.
func loginAttemptOptions(opts *loginOptions, s *spinner.Spinner) []token.LoginOption {
	var out []token.LoginOption
	if opts.pkce {
		out = append(out, token.WithPKCE())
	}
	out = append(out, token.WithTransitionHook(func(from, to token.LoginState) {
		logging.Debug("Login", "Login state %s -> %s", from, to)
		if s == nil {
			return
		}
		var suffix string
		switch to {
		case token.LoginExchanging:
			suffix = " Redeeming authorization code..."
		case token.LoginFanningOut:
			suffix = " Acquiring tokens for the remaining resources..."
		default:
			return
		}
		s.Lock()
		s.Suffix = suffix
		s.Unlock()
	}))
	return out
}

func printLoginResult(w io.Writer, clientID string, creds map[string]*oauth.Credential) {
	resources := make([]string, 0, len(creds))
	for r := range creds {
		resources = append(resources, r)
	}
	sort.Strings(resources)

	fmt.Fprintf(w, "%s Logged in to %s\n", text.FgGreen.Sprint("✓"), clientID)
	for _, r := range resources {
		fmt.Fprintf(w, "  %s (expires %s)\n", r, creds[r].ExpiresAt().Format("2006-01-02 15:04:05"))
	}
}
