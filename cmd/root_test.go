package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"adtoken/internal/token"
	"adtoken/pkg/oauth"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestSetVersion(t *testing.T) {
	original := GetVersion()
	defer SetVersion(original)

	SetVersion("1.2.3-test")
	if rootCmd.Version != "1.2.3-test" {
		t.Errorf("Expected version to be 1.2.3-test, got %s", rootCmd.Version)
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "adtoken" {
		t.Errorf("Expected Use to be 'adtoken', got %s", rootCmd.Use)
	}
	if rootCmd.Short == "" || rootCmd.Long == "" {
		t.Error("Expected Short and Long descriptions to be set")
	}
	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "adtoken version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	if err := testCmd.Execute(); err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}

	if buf.String() != "adtoken version 1.0.0\n" {
		t.Errorf("Unexpected version output %q", buf.String())
	}
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}

	for _, expected := range []string{"version", "login", "password", "token", "refresh", "status", "logout", "authorize-url", "contexts"} {
		if !found[expected] {
			t.Errorf("Expected subcommand %s to be registered", expected)
		}
	}
}

func TestPersistentFlags(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"config", "client-id", "debug", "quiet"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), ExitCodeError},
		{"missing credential", fmt.Errorf("token: %w", oauth.ErrMissingCredential), ExitCodeAuthRequired},
		{"invalid grant", &oauth.GrantError{StatusCode: 400, Code: "invalid_grant"}, ExitCodeAuthRequired},
		{"other grant error", &oauth.GrantError{StatusCode: 401, Code: "invalid_client"}, ExitCodeAuthFailed},
		{"timeout", oauth.ErrTimeout, ExitCodeAuthFailed},
		{"bootstrap", &token.BootstrapError{Resource: "A", Err: oauth.ErrMissingCredential}, ExitCodeAuthFailed},
		{"fan-out", &token.FanOutError{Resource: "B", Err: errors.New("x")}, ExitCodeAuthFailed},
		{"authorization error", &oauth.AuthorizationError{Code: "access_denied"}, ExitCodeAuthFailed},
		{"state mismatch", token.ErrStateMismatch, ExitCodeAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}
