// Package apperrors defines the error taxonomy shared by the pipeline packages.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a task state change is not allowed.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrActiveTask is returned when an owner already has a pending or
	// running task of the same type.
	ErrActiveTask = errors.New("task of this type already active")
)

// InvalidInputError reports empty or malformed input to chunking or embedding.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}

// InsufficientInputError is a precondition failure checked before a task is created.
type InsufficientInputError struct {
	What string
	Need int
	Have int
}

func (e *InsufficientInputError) Error() string {
	return fmt.Sprintf("insufficient input: %s requires at least %d, got %d", e.What, e.Need, e.Have)
}

// RejectedDocumentError marks a document that failed the research-paper gate
// or had no extractable text.
type RejectedDocumentError struct {
	Reason string
}

func (e *RejectedDocumentError) Error() string {
	return "document rejected: " + e.Reason
}

// ParseError means an LLM response could not be reduced to the expected shape.
type ParseError struct {
	TaskType string
	Field    string
	Err      error
}

func (e *ParseError) Error() string {
	target := e.TaskType
	if e.Field != "" {
		target += "/" + e.Field
	}
	if e.Err == nil {
		return "failed to parse " + target + " response"
	}
	return fmt.Sprintf("failed to parse %s response: %v", target, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewInvalidInput is a shorthand used by leaf packages.
func NewInvalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// IsInvalidInput reports whether err wraps an InvalidInputError.
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}

// IsInsufficientInput reports whether err wraps an InsufficientInputError.
func IsInsufficientInput(err error) bool {
	var target *InsufficientInputError
	return errors.As(err, &target)
}

// IsRejected reports whether err wraps a RejectedDocumentError.
func IsRejected(err error) bool {
	var target *RejectedDocumentError
	return errors.As(err, &target)
}
