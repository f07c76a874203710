package config

import (
	"errors"
	"fmt"
)

// ConfigError reports a missing or invalid configuration field. It is
// returned before any token context is registered.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ce *ConfigError) Error() string {
	if ce.Field == "" {
		return "invalid configuration: " + ce.Message
	}
	return fmt.Sprintf("invalid configuration: field '%s': %s", ce.Field, ce.Message)
}

// NewConfigError creates a ConfigError for field.
func NewConfigError(field string, value interface{}, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}
