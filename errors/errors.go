// Package errors provides standardized error handling for the dispatch core.
// It defines a small classification taxonomy (transient, invalid, fatal),
// sentinel errors for the common failure conditions, and helpers for
// consistent wrapping so callers can branch on error class instead of
// string matching.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Class represents the classification of an error for handling purposes.
type Class int

const (
	// ClassTransient marks temporary errors that may be retried.
	ClassTransient Class = iota
	// ClassInvalid marks errors caused by invalid input; retrying is pointless.
	ClassInvalid
	// ClassFatal marks unrecoverable errors that should stop the operation.
	ClassFatal
)

// String returns the string representation of the error class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassInvalid:
		return "invalid"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinel errors for the common failure conditions across the core.
var (
	// Connection and streaming errors.
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnectionLost   = errors.New("connection lost")
	ErrNotConnected     = errors.New("not connected")
	ErrChunkTooLarge    = errors.New("audio chunk exceeds maximum size")

	// Pool and session capacity errors.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrSessionLimit  = errors.New("session limit reached")
	ErrSessionGone   = errors.New("session not found or expired")

	// Work order validation errors.
	ErrInvalidOrderID  = errors.New("order id must be a non-empty string")
	ErrDuplicateOrder  = errors.New("order id already exists")
	ErrInvalidPriority = errors.New("invalid order priority")
	ErrInvalidStatus   = errors.New("illegal status transition")
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvalidLocation = errors.New("coordinates out of range")

	// Notification errors.
	ErrDeliveryFailed  = errors.New("notification delivery failed")
	ErrUnknownAlert    = errors.New("unknown alert id")
	ErrChannelNotReady = errors.New("delivery channel not initialized")
)

// ClassifiedError wraps an error with its class and the component/operation
// that produced it.
type ClassifiedError struct {
	Class     Class
	Err       error
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Wrap creates a standardized error with context following the pattern
// "component.operation: action failed: %w".
func Wrap(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, operation, action, err)
}

func wrapClassified(class Class, err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Err:       Wrap(err, component, operation, action),
		Component: component,
		Operation: operation,
	}
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, operation, action string) error {
	return wrapClassified(ClassTransient, err, component, operation, action)
}

// WrapInvalid wraps an error as invalid with context.
func WrapInvalid(err error, component, operation, action string) error {
	return wrapClassified(ClassInvalid, err, component, operation, action)
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, operation, action string) error {
	return wrapClassified(ClassFatal, err, component, operation, action)
}

// IsTransient reports whether an error is transient and may be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassTransient
	}

	if errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Fall back to message inspection for errors from external libraries.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection refused", "temporary", "unavailable"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsInvalid reports whether an error is caused by invalid input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassInvalid
	}

	return errors.Is(err, ErrInvalidOrderID) ||
		errors.Is(err, ErrDuplicateOrder) ||
		errors.Is(err, ErrInvalidPriority) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidLocation) ||
		errors.Is(err, ErrChunkTooLarge)
}

// IsFatal reports whether an error is unrecoverable for the current caller.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassFatal
	}

	// Capacity errors are fatal to the immediate caller: the component does
	// not retry them internally, the caller must back off and retry.
	return errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrSessionLimit)
}

// Classify returns the class of an error. Unknown errors default to
// transient so that retry wrappers err on the side of retrying.
func Classify(err error) Class {
	switch {
	case IsInvalid(err):
		return ClassInvalid
	case IsFatal(err):
		return ClassFatal
	default:
		return ClassTransient
	}
}

// Is, As and New re-export the standard library so callers need only one
// errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }
