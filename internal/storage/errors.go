// ABOUTME: Typed storage errors: not found, validation and conflict.
// ABOUTME: The MCP layer classifies these into its JSON error envelope.
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any *NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")
	// ErrConflict matches any *ConflictError via errors.Is.
	ErrConflict = errors.New("conflict")
	// ErrValidation matches any *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// NotFoundError reports a missing row, or one not owned by the caller.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ValidationError reports malformed input. It is always raised before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a state race, such as a second open session.
// SessionID names the existing session when relevant.
type ConflictError struct {
	Message   string
	SessionID int64
}

func (e *ConflictError) Error() string {
	if e.SessionID != 0 {
		return fmt.Sprintf("%s (session %d)", e.Message, e.SessionID)
	}
	return e.Message
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
