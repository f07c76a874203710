package cmd

import (
	"errors"
	"os"

	"adtoken/internal/token"
	"adtoken/pkg/oauth"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates no usable credential is cached and a login is needed.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates a grant or the login flow failed.
	ExitCodeAuthFailed = 3
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	clientID   string
	debug      bool
	quiet      bool
}

// rootCmd represents the base command for the adtoken application.
var rootCmd = newRootCmd()

// newRootCmd builds the full command tree. Tests build their own tree so
// flag values do not leak between runs.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "adtoken",
		Short: "Acquire and cache Azure AD access tokens",
		Long: `adtoken obtains OAuth2 access tokens from Azure Active Directory for
one or more resources, caches them per application and refreshes them
transparently.

A single interactive login yields tokens for every resource configured for
the application: the authorization code is redeemed once and its refresh
token is used to reach the remaining resources.`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.config/adtoken/config.yaml)")
	root.PersistentFlags().StringVar(&opts.clientID, "client-id", "", "application (client) id; defaults to the first configured context")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress log output")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newLoginCmd(opts))
	root.AddCommand(newPasswordCmd(opts))
	root.AddCommand(newTokenCmd(opts))
	root.AddCommand(newRefreshCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newLogoutCmd(opts))
	root.AddCommand(newAuthorizeURLCmd(opts))
	root.AddCommand(newContextsCmd(opts))

	return root
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "adtoken version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var bootstrapErr *token.BootstrapError
	var fanOutErr *token.FanOutError
	var authErr *oauth.AuthorizationError
	if errors.As(err, &bootstrapErr) || errors.As(err, &fanOutErr) || errors.As(err, &authErr) ||
		errors.Is(err, token.ErrStateMismatch) {
		return ExitCodeAuthFailed
	}

	// A rejected refresh token means the user has to log in again
	var grantErr *oauth.GrantError
	if errors.As(err, &grantErr) {
		if grantErr.IsInvalidGrant() {
			return ExitCodeAuthRequired
		}
		return ExitCodeAuthFailed
	}
	if errors.Is(err, oauth.ErrTimeout) {
		return ExitCodeAuthFailed
	}

	if errors.Is(err, oauth.ErrMissingCredential) {
		return ExitCodeAuthRequired
	}

	return ExitCodeError
}
