package deployment

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Workspace document errors
	ErrEmptyDocument = errors.New("workspace document is empty")
	ErrInvalidYAML   = errors.New("invalid YAML syntax")
	ErrMissingKey    = errors.New("required key missing")

	// Command construction errors
	ErrUnquotable = errors.New("value cannot be shell-quoted")
)

// ConfigurationError reports a missing or invalid piece of configuration.
// Fatal at startup; no environment exists yet.
type ConfigurationError struct {
	Key     string // e.g. "components[1].path"
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("configuration: %s: %s", e.Key, e.Message)
	}
	return fmt.Sprintf("configuration: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(key, message string, err error) *ConfigurationError {
	return &ConfigurationError{Key: key, Message: message, Err: err}
}

// UnknownMethodError is returned for an unrecognized execution method selector.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown execution method %q (expected one of %v)", e.Method, Methods())
}

// ProvisioningError reports that the environment could not be created.
// ContainerID is set when a handle was obtained before the failure.
type ProvisioningError struct {
	Image       string
	Name        string
	ContainerID string
	Err         error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision environment %s from image %s: %v", e.Name, e.Image, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// StagingError reports that a component's files could not be placed in the environment.
type StagingError struct {
	Source  string
	Dest    string
	Message string
	Err     error
}

func (e *StagingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s into %s: %s: %v", e.Source, e.Dest, e.Message, e.Err)
	}
	return fmt.Sprintf("stage %s into %s: %s", e.Source, e.Dest, e.Message)
}

func (e *StagingError) Unwrap() error {
	return e.Err
}

// ExecutionError reports that a component did not run successfully.
// ExitCode is -1 when the invocation errored before producing a status.
type ExecutionError struct {
	Component string
	ExitCode  int
	Output    string
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("component %s failed: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("component %s failed with exit code %d", e.Component, e.ExitCode)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
