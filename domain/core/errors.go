package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized error definitions
var (
	// Per-file errors, recoverable at batch level
	ErrMalformedInput  = errors.New("malformed input")
	ErrMissingColumns  = fmt.Errorf("%w: missing required columns", ErrMalformedInput)
	ErrNoBackgroundRow = errors.New("no background row found")

	// Run-level errors
	ErrConfiguration = errors.New("configuration error")
	ErrControlEmpty  = fmt.Errorf("%w: control group has no rows", ErrConfiguration)

	// Warnings carried as errors so they can be reported uniformly
	ErrEmptyGroup = errors.New("group has no rows")
)

// Error constructors with context
func NewMissingColumnsError(sourceFile string, missing []string) error {
	return fmt.Errorf("%w in %s: %s", ErrMissingColumns, sourceFile, strings.Join(missing, ", "))
}

func NewMalformedInputError(sourceFile string, reason string) error {
	return fmt.Errorf("%w in %s: %s", ErrMalformedInput, sourceFile, reason)
}

func NewControlEmptyError(controlLabel string) error {
	return fmt.Errorf("%w: %q", ErrControlEmpty, controlLabel)
}

func NewConfigurationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, reason)
}

func NewEmptyGroupError(group string) error {
	return fmt.Errorf("%w: %q", ErrEmptyGroup, group)
}

// Error checking helpers
func IsMalformedInputError(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsRecoverable reports whether err only affects a single file of a batch.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrMalformedInput) ||
		errors.Is(err, ErrNoBackgroundRow) ||
		errors.Is(err, ErrEmptyGroup)
}
