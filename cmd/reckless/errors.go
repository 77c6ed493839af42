package main

import (
	"errors"
	"fmt"

	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

func newCommandError(operation, context string, cause error, suggestion string) error {
	return &commandError{operation: operation, context: context, cause: cause, suggestion: suggestion}
}

type commandError struct {
	operation  string
	context    string
	cause      error
	suggestion string
}

func (e *commandError) Error() string {
	if e.suggestion == "" {
		return fmt.Sprintf("Failed to %s: %s\n\nError: %v", e.operation, e.context, e.cause)
	}
	return fmt.Sprintf("Failed to %s: %s\n\nError: %v\n\nSuggestion: %s", e.operation, e.context, e.cause, e.suggestion)
}

func (e *commandError) Unwrap() error {
	return e.cause
}

// suggestionFor picks advice for the failure kinds users can act on.
func suggestionFor(err error) string {
	switch {
	case errors.Is(err, recklesserrors.ErrRateLimitExceeded):
		return "The remote API call budget is spent. Add a local clone with 'reckless source add <dir>' or raise api_call_limit."
	case errors.Is(err, recklesserrors.ErrNotFound):
		return "Check the name, or add the repository holding it with 'reckless source add'."
	case errors.Is(err, recklesserrors.ErrAlreadyInstalled):
		return "Run 'reckless uninstall' first to reinstall."
	case errors.Is(err, recklesserrors.ErrNotInstalled):
		return "Install it first with 'reckless install'."
	case errors.Is(err, recklesserrors.ErrCheckout):
		return "Check that the requested commit or tag exists in the source repository."
	case errors.Is(err, recklesserrors.ErrNoInstaller):
		return "Install the interpreter and package manager the plugin needs, then retry."
	case errors.Is(err, recklesserrors.ErrDependencyInstall), errors.Is(err, recklesserrors.ErrSmokeTest):
		return "Re-run with --verbose to see the installer output."
	case errors.Is(err, recklesserrors.ErrConfigMismatch):
		return "Pass the config lightningd uses with --conf."
	case errors.Is(err, recklesserrors.ErrInvalidSource):
		return "Sources must be existing directories or repository URLs."
	default:
		return ""
	}
}

// batch collects per-target failures; a fatal failure ends the batch.
type batch struct {
	operation string
	failed    []string
}

// record reports whether processing may continue.
func (b *batch) record(target string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	wrapped := newCommandError(b.operation, target, err, suggestionFor(err))
	if recklesserrors.IsFatal(err) {
		return false, wrapped
	}
	b.failed = append(b.failed, target)
	return true, wrapped
}

func (b *batch) err() error {
	if len(b.failed) == 0 {
		return nil
	}
	return fmt.Errorf("%s failed for %d target(s): %v", b.operation, len(b.failed), b.failed)
}
