package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for different categories
var (
	// ErrOracle - the language-model call failed (transport or response envelope)
	ErrOracle = errors.New("oracle error")

	// ErrInvalidModelOutput - the model returned malformed structured output
	ErrInvalidModelOutput = errors.New("invalid model output")

	// ErrCommit - a confirmed side effect (row creation, event creation) failed
	ErrCommit = errors.New("commit error")

	// ErrConflict - conflicting state, e.g. a pending confirmation already exists
	ErrConflict = errors.New("conflict")

	// ErrDuplicateEvent - duplicate webhook delivery detected, ignore silently
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrNotFound - resource not found
	ErrNotFound = errors.New("not found")

	// ErrConfiguration - missing credentials or required configuration
	ErrConfiguration = errors.New("configuration error")

	// ErrTransient - transient error, safe to retry manually
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapAs wraps an error with context and tags it with a category
// sentinel. Both the category and the original error stay in the
// chain, so errors.Is matches either.
func WrapAs(category, err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", message, category, err)
}

// IsCategory checks if error belongs to a specific category.
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// Oracle wraps a message as an oracle error.
func Oracle(message string) error {
	return fmt.Errorf("%s: %w", message, ErrOracle)
}

// InvalidModelOutput wraps a message as invalid model output.
func InvalidModelOutput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidModelOutput)
}

// Commit wraps a message as a commit error.
func Commit(message string) error {
	return fmt.Errorf("%s: %w", message, ErrCommit)
}

// Conflict wraps a message as a conflict.
func Conflict(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConflict)
}

// DuplicateEvent wraps a message as a duplicate delivery.
func DuplicateEvent(message string) error {
	return fmt.Errorf("%s: %w", message, ErrDuplicateEvent)
}

// NotFound wraps a message as not found.
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// Configuration wraps a message as a configuration error.
func Configuration(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConfiguration)
}

// Transient wraps a message as transient.
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// Internal wraps a message as internal.
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}
