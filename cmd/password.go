package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"adtoken/internal/app"
	"adtoken/internal/token"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

type passwordOptions struct {
	username      string
	passwordStdin bool
	resources     []string
}

// newPasswordCmd acquires credentials with the resource owner password grant.
func newPasswordCmd(g *globalOptions) *cobra.Command {
	opts := &passwordOptions{}

	cmd := &cobra.Command{
		Use:   "password",
		Short: "Log in with username and password",
		Long: `Acquire tokens with the resource owner password credentials grant.

The password is prompted for without echo, or read from the first line of
standard input with --password-stdin. One grant is issued per resource.

Examples:
  adtoken password --username user@contoso.com
  echo "$PASS" | adtoken password --username user@contoso.com --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInContext(g, app.ContextOverrides{}, func(_ *app.Application, tc *token.Context) error {
				username, password, err := readPasswordCredentials(cmd.InOrStdin(), opts)
				if err != nil {
					return err
				}

				resources := opts.resources
				if len(resources) == 0 {
					resources = tc.Config().ResourceList()
				}

				for _, resource := range resources {
					cred, err := tc.PasswordGrant(cmd.Context(), username, password, resource)
					if err != nil {
						return fmt.Errorf("password grant for %s failed: %w", resource, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Stored token for %s (expires %s)\n",
						resource, cred.ExpiresAt().Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "user principal name")
	cmd.Flags().BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().StringSliceVarP(&opts.resources, "resource", "r", nil, "resource to get a token for (repeatable; default: all configured)")
	return cmd
}

// readPasswordCredentials resolves the username and password from flags,
// stdin or an interactive prompt.
func readPasswordCredentials(stdin io.Reader, opts *passwordOptions) (string, string, error) {
	if opts.passwordStdin {
		if opts.username == "" {
			return "", "", errors.New("--password-stdin requires --username")
		}
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", "", fmt.Errorf("failed to read password from stdin: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", "", errors.New("empty password on stdin")
		}
		return opts.username, password, nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Stdin:           io.NopCloser(stdin),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	username := opts.username
	if username == "" {
		rl.SetPrompt("Username: ")
		line, err := rl.Readline()
		if err != nil {
			return "", "", promptError(err)
		}
		username = strings.TrimSpace(line)
		if username == "" {
			return "", "", errors.New("username is required")
		}
	}

	password, err := rl.ReadPassword("Password: ")
	if err != nil {
		return "", "", promptError(err)
	}
	if len(password) == 0 {
		return "", "", errors.New("password is required")
	}
	return username, string(password), nil
}

func promptError(err error) error {
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return errors.New("aborted")
	}
	return err
}
