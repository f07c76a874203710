package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a single application context.
func (c Context) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return NewConfigError("client_id", c.ClientID, "is required")
	}
	// Durable keys are "{client_id}.{resource}" and resources contain dots,
	// so a dotted client_id would share a key prefix with another context.
	if strings.Contains(c.ClientID, ".") {
		return NewConfigError("client_id", c.ClientID, "must not contain '.'")
	}

	if c.TokenEndpoint != "" {
		if err := validateHTTPURL("token_endpoint", c.TokenEndpointURL()); err != nil {
			return err
		}
	}
	if c.AuthorityHost != "" {
		if err := validateHTTPURL("authority_host", c.AuthorityHostURL()); err != nil {
			return err
		}
	}
	if c.RedirectURI != "" {
		u, err := url.Parse(c.RedirectURI)
		if err != nil || u.Scheme == "" {
			return NewConfigError("redirect_uri", c.RedirectURI, "must be an absolute URI")
		}
	}

	for i, resource := range c.Resources {
		if strings.TrimSpace(resource) == "" {
			return NewConfigError(fmt.Sprintf("resources[%d]", i), resource, "must not be empty")
		}
	}
	return nil
}

// Validate checks the whole configuration file.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "", StorageMemory, StorageFile:
	case StorageValkey:
		if c.Storage.ValkeyAddress == "" {
			return NewConfigError("storage.valkeyAddress", "", "is required for the valkey backend")
		}
	default:
		return NewConfigError("storage.backend", c.Storage.Backend, "must be one of memory, file, valkey")
	}

	seen := make(map[string]bool, len(c.Contexts))
	for i, ctx := range c.Contexts {
		if err := ctx.Validate(); err != nil {
			return fmt.Errorf("contexts[%d]: %w", i, err)
		}
		if seen[ctx.ClientID] {
			return NewConfigError(fmt.Sprintf("contexts[%d].client_id", i), ctx.ClientID, "duplicates an earlier context")
		}
		seen[ctx.ClientID] = true
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return NewConfigError(field, raw, "is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewConfigError(field, raw, "must use http or https")
	}
	if u.Host == "" {
		return NewConfigError(field, raw, "must include a host")
	}
	return nil
}
