package core

import (
	"errors"
	"fmt"
)

// ErrEmptyPool indicates a pool was constructed with no workers.
var ErrEmptyPool = errors.New("worker pool is empty")

// ConfigurationError is fatal and only returned during startup.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

// NewConfigurationError builds a ConfigurationError for field.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// SinkWriteError wraps a failure to append an outcome line. It is logged
// at the boundary and never reaches the caller of a request.
type SinkWriteError struct {
	Err error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("writing outcome line: %v", e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }
