package errors

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by search, installation and activation. Wrap them with
// StageError or fmt.Errorf("...: %w", kind) so callers can match with errors.Is.
var (
	ErrNotFound                = errors.New("plugin not found")
	ErrClone                   = errors.New("clone failed")
	ErrCheckout                = errors.New("checkout failed")
	ErrNoInstaller             = errors.New("no suitable installer")
	ErrDependencyInstall       = errors.New("dependency installation failed")
	ErrSmokeTest               = errors.New("plugin test failed")
	ErrRateLimitExceeded       = errors.New("remote API call budget exhausted")
	ErrControlPlaneUnavailable = errors.New("control plane unavailable")
	ErrAlreadyInstalled        = errors.New("plugin already installed")
	ErrNotInstalled            = errors.New("plugin not installed")
	ErrSourceNotFound          = errors.New("source not found")
	ErrInvalidSource           = errors.New("failed to add source")
	ErrConfigMismatch          = errors.New("reckless configuration does not match lightningd")
)

// ParseError represents a settings parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StageError reports an installation that could not reach Stage.
type StageError struct {
	Plugin string
	Stage  string
	Kind   error
	Err    error
}

// NewStageError constructs a StageError. kind should be one of the Err* values.
func NewStageError(plugin, stage string, kind, err error) error {
	return &StageError{Plugin: plugin, Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	msg := "installation failed"
	if e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Plugin != "" {
		return fmt.Sprintf("install %s failed at %s: %s", e.Plugin, e.Stage, msg)
	}
	return fmt.Sprintf("install failed at %s: %s", e.Stage, msg)
}

// Unwrap exposes both the failure kind and the root cause.
func (e *StageError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// ControlPlaneError is a refusal returned by the running daemon.
type ControlPlaneError struct {
	Code    int
	Message string
}

func (e *ControlPlaneError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("control plane error %d: %s", e.Code, e.Message)
}

// IsFatal reports whether err must stop the whole process rather than the
// current operation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}
