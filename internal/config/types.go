package config

import (
	"fmt"
	"strings"

	"adtoken/pkg/oauth"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for adtoken.
type Config struct {
	LogLevel string        `yaml:"logLevel,omitempty"`
	Storage  StorageConfig `yaml:"storage"`
	Contexts []Context     `yaml:"contexts,omitempty"`
}

// StorageBackend names a durable credential backend.
type StorageBackend string

const (
	// StorageMemory keeps credentials for the lifetime of the process only.
	StorageMemory StorageBackend = "memory"
	// StorageFile persists credentials through an afs URL (file://, mem://, ...).
	StorageFile StorageBackend = "file"
	// StorageValkey persists credentials in a valkey or redis server.
	StorageValkey StorageBackend = "valkey"
)

// StorageConfig selects and configures the durable credential backend.
type StorageConfig struct {
	Backend       StorageBackend `yaml:"backend,omitempty"`
	URL           string         `yaml:"url,omitempty"`           // Base URL for the file backend
	ValkeyAddress string         `yaml:"valkeyAddress,omitempty"` // host:port for the valkey backend
	ValkeyPrefix  string         `yaml:"valkeyPrefix,omitempty"`  // Key prefix in the valkey keyspace
}

// Context is the configuration of one application. ClientID is the
// registry key and does not change once a token context is created.
type Context struct {
	ClientID      string    `yaml:"client_id" json:"client_id"`
	ClientSecret  string    `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	Tenant        string    `yaml:"tenant,omitempty" json:"tenant,omitempty"`
	RedirectURI   string    `yaml:"redirect_uri,omitempty" json:"redirect_uri,omitempty"`
	TokenEndpoint string    `yaml:"token_endpoint,omitempty" json:"token_endpoint,omitempty"`
	AuthorityHost string    `yaml:"authority_host,omitempty" json:"authority_host,omitempty"`
	Resources     Resources `yaml:"resources,omitempty" json:"resources,omitempty"`
	Scope         string    `yaml:"scope,omitempty" json:"scope,omitempty"`
	Prompt        string    `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Policy        string    `yaml:"policy,omitempty" json:"policy,omitempty"`
	LoginHint     string    `yaml:"login_hint,omitempty" json:"login_hint,omitempty"`
	PKCE          bool      `yaml:"pkce,omitempty" json:"pkce,omitempty"`
}

// Resources is an ordered list of resource identifiers. In YAML it may be
// written as a single string or as a sequence.
type Resources []string

// UnmarshalYAML accepts both `resources: x` and `resources: [x, y]`.
func (r *Resources) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.ShortTag() == "!!null" {
			*r = nil
			return nil
		}
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		if single == "" {
			*r = nil
			return nil
		}
		*r = Resources{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	default:
		return fmt.Errorf("line %d: resources must be a string or a list of strings", value.Line)
	}
}

// ResourceList returns the resources to acquire tokens for, in order.
// An empty configuration yields the default resource.
func (c Context) ResourceList() []string {
	if len(c.Resources) == 0 {
		return []string{oauth.DefaultResource}
	}
	out := make([]string, len(c.Resources))
	copy(out, c.Resources)
	return out
}

// TenantOrDefault returns the configured tenant or "common".
func (c Context) TenantOrDefault() string {
	if strings.TrimSpace(c.Tenant) == "" {
		return oauth.DefaultTenant
	}
	return c.Tenant
}

// TokenEndpointURL returns the token endpoint with the tenant substituted.
func (c Context) TokenEndpointURL() string {
	endpoint := c.TokenEndpoint
	if endpoint == "" {
		endpoint = oauth.DefaultTokenEndpointTemplate
	}
	return oauth.WithTenant(endpoint, c.TenantOrDefault())
}

// AuthorityHostURL returns the authorization endpoint with the tenant substituted.
func (c Context) AuthorityHostURL() string {
	host := c.AuthorityHost
	if host == "" {
		host = oauth.DefaultAuthorityHost
	}
	return oauth.WithTenant(host, c.TenantOrDefault())
}

// Clone returns a deep copy of c.
func (c Context) Clone() Context {
	out := c
	if c.Resources != nil {
		out.Resources = make(Resources, len(c.Resources))
		copy(out.Resources, c.Resources)
	}
	return out
}

// FindContext returns the context with the given client_id. An empty
// clientID selects the first configured context.
func (c Config) FindContext(clientID string) (Context, bool) {
	for _, ctx := range c.Contexts {
		if clientID == "" || ctx.ClientID == clientID {
			return ctx.Clone(), true
		}
	}
	return Context{}, false
}
