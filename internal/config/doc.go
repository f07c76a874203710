// Package config provides configuration for adtoken.
//
// Configuration is loaded from a single YAML file. The default location is
// ~/.config/adtoken/config.yaml; commands accept --config to point elsewhere.
// A missing file is not an error: the defaults are returned and contexts can
// still be supplied through command flags.
//
// # Contexts
//
// Each entry under contexts describes one registered application, identified
// by its client_id:
//
//	contexts:
//	  - client_id: 8d8d5a4e-0000-0000-0000-000000000000
//	    tenant: contoso.onmicrosoft.com
//	    redirect_uri: http://localhost:8400/callback
//	    resources:
//	      - https://graph.microsoft.com
//	      - https://management.azure.com
//
// resources may also be a single string. An empty list means the default
// resource "common".
//
// # Storage
//
// The storage section selects where credentials survive restarts:
//
//	storage:
//	  backend: file          # memory | file | valkey
//	  url: file:///home/me/.config/adtoken/credentials
//	  valkeyAddress: localhost:6379
//
// Validation failures are reported as *ConfigError values naming the field.
package config
