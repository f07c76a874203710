// Package auth provides the credential status types reported by
// `adtoken status`.
//
// The JSON and YAML output of the status command is built from these types
// and is meant to be consumed by scripts, so field names are stable.
package auth
