package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adtoken/internal/config"
	"adtoken/internal/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const twoContexts = `
storage:
  backend: memory
contexts:
  - client_id: app-1
    tenant: contoso
    redirect_uri: http://localhost:8400/callback
    resources: https://graph.microsoft.com
  - client_id: app-2
    resources: [https://a, https://b]
`

func TestNewApplication_RegistersContexts(t *testing.T) {
	a, err := NewApplication(&Config{ConfigPath: writeConfig(t, twoContexts), Quiet: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"app-1", "app-2"}, a.Registry().List())
	_, ok := a.backend.(*store.MemoryBackend)
	assert.True(t, ok, "memory storage should select the memory backend")
}

func TestNewApplication_MissingConfigUsesFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	a, err := NewApplication(&Config{ConfigPath: path, Quiet: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 0, a.Registry().Len())
	fb, ok := a.backend.(*store.FileBackend)
	require.True(t, ok)
	assert.Contains(t, fb.BaseURL(), "credentials")
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
contexts:
  - tenant: contoso
`)
	_, err := NewApplication(&Config{ConfigPath: path, Quiet: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestNewApplication_InvalidLogLevel(t *testing.T) {
	path := writeConfig(t, "logLevel: loud\nstorage:\n  backend: memory\n")
	_, err := NewApplication(&Config{ConfigPath: path, Quiet: true})
	require.Error(t, err)
}

func TestApplication_Context(t *testing.T) {
	a, err := NewApplication(&Config{ConfigPath: writeConfig(t, twoContexts), Quiet: true})
	require.NoError(t, err)
	defer a.Close()

	t.Run("default is first context", func(t *testing.T) {
		tc, err := a.Context(ContextOverrides{})
		require.NoError(t, err)
		assert.Equal(t, "app-1", tc.ClientID())
	})

	t.Run("configured context without overrides is reused", func(t *testing.T) {
		registered, ok := a.Registry().Get("app-2")
		require.True(t, ok)

		tc, err := a.Context(ContextOverrides{ClientID: "app-2"})
		require.NoError(t, err)
		assert.Same(t, registered, tc)
	})

	t.Run("overrides re-register the context", func(t *testing.T) {
		tc, err := a.Context(ContextOverrides{ClientID: "app-1", Tenant: "fabrikam", Resources: []string{"https://x"}})
		require.NoError(t, err)
		assert.Equal(t, "fabrikam", tc.Config().Tenant)
		assert.Equal(t, []string{"https://x"}, tc.Config().ResourceList())
	})

	t.Run("unknown client id is created ad hoc", func(t *testing.T) {
		tc, err := a.Context(ContextOverrides{ClientID: "adhoc"})
		require.NoError(t, err)
		assert.Equal(t, "adhoc", tc.ClientID())
		assert.Contains(t, a.Registry().List(), "adhoc")
	})
}

func TestApplication_ContextWithoutConfiguration(t *testing.T) {
	a, err := NewApplication(&Config{ConfigPath: writeConfig(t, "storage:\n  backend: memory\n"), Quiet: true})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Context(ContextOverrides{})
	require.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	base, _ := applyOverrides(contextFixture(), ContextOverrides{})
	assert.Equal(t, contextFixture(), base)

	_, changed := applyOverrides(contextFixture(), ContextOverrides{Tenant: "contoso"})
	assert.False(t, changed, "same value is not a change")

	out, changed := applyOverrides(contextFixture(), ContextOverrides{PKCE: true, LoginHint: "user@contoso.com"})
	assert.True(t, changed)
	assert.True(t, out.PKCE)
	assert.Equal(t, "user@contoso.com", out.LoginHint)
}

func contextFixture() config.Context {
	return config.Context{
		ClientID:  "app-1",
		Tenant:    "contoso",
		Resources: config.Resources{"https://graph.microsoft.com"},
	}
}
