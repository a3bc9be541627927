// Package apperr defines the error taxonomy shared by every service layer.
// Business-rule rejections carry short, user-facing messages; persistence
// failures are a distinct, retryable category.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping
type Kind string

const (
	KindValidation        Kind = "validation"
	KindOutOfStock        Kind = "out_of_stock"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_state_transition"
	KindConflict          Kind = "conflict"
	KindPersistence       Kind = "persistence"
)

// Error is the taxonomy's concrete error type
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or "" for errors outside the taxonomy
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is lets errors.Is match two taxonomy errors by kind
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Validationf builds a validation error with a formatted message
func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// OutOfStock reports that name cannot be reserved at the requested quantity
func OutOfStock(name string) error {
	return &Error{Kind: KindOutOfStock, Message: fmt.Sprintf("%s is out of stock", name)}
}

// NotFound reports a missing entity
func NotFound(entity string, id interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// InvalidTransition reports an illegal state machine move
func InvalidTransition(entity, from, to string) error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
	}
}

// Conflictf reports a business-rule conflict, e.g. a table that already has
// an open session
func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Persistence wraps a storage failure as retryable
func Persistence(err error) error {
	return &Error{Kind: KindPersistence, Message: "storage operation failed", Err: err}
}
