package errors

import (
	"errors"
	"fmt"
)

// Lifecycle errors surfaced by the monitoring engine. These are the only
// errors that escape Start; everything that happens inside a dispatch pass
// is recorded in the event history instead of propagating.
var (
	// ErrAlreadyRunning is returned when Start is called on a running monitor.
	ErrAlreadyRunning = errors.New("monitoring is already running")

	// ErrInsecureConnection is returned when the configured vault connection
	// still has certificate validation disabled. Monitoring refuses to run
	// over an unauthenticated channel.
	ErrInsecureConnection = errors.New("vault connection has certificate validation disabled")

	// ErrNoAccountMappings is returned when Start finds no account mappings
	// to subscribe for.
	ErrNoAccountMappings = errors.New("no account mappings configured")
)

// UserError represents an error that should be shown to the operator with
// helpful context.
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Details != "" {
		msg += "\n  Details: " + e.Details
	}
	if e.Suggestion != "" {
		msg += "\n  💡 Try: " + e.Suggestion
	}
	return msg
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

// PluginError enhances plugin-specific errors with context.
func PluginError(plugin string, operation string, err error) error {
	return UserError{
		Message: fmt.Sprintf("%s plugin error during %s", plugin, operation),
		Err:     err,
	}
}
