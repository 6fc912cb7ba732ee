// ABOUTME: Typed store errors: user not found, internal, connection, validation
// ABOUTME: The HTTP layer maps these kinds to status codes; the store never does

package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a store failure.
type ErrorKind int

// Store error kinds
const (
	KindInternal ErrorKind = iota
	KindUserNotFound
	KindConnection
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindUserNotFound:
		return "user_not_found"
	case KindConnection:
		return "connection"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is returned by every StateStore implementation.
type Error struct {
	Kind    ErrorKind
	UserID  string
	Message string
	Err     error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrUserNotFound = &Error{Kind: KindUserNotFound}
	ErrInternal     = &Error{Kind: KindInternal}
	ErrConnection   = &Error{Kind: KindConnection}
	ErrValidation   = &Error{Kind: KindValidation}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindUserNotFound:
		return "user not found: " + e.UserID
	case KindValidation:
		return fmt.Sprintf("validation error: %v", e.Err)
	case KindConnection:
		if e.Err != nil {
			return fmt.Sprintf("connection error: %s: %v", e.Message, e.Err)
		}
		return "connection error: " + e.Message
	default:
		if e.Err != nil {
			return fmt.Sprintf("storage error: %s: %v", e.Message, e.Err)
		}
		return "storage error: " + e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.UserID == "" && t.Message == "" && t.Err == nil
}

// NewInternal wraps err as an internal storage failure.
func NewInternal(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// NewConnection wraps err as a backend connectivity failure.
func NewConnection(message string, err error) error {
	return &Error{Kind: KindConnection, Message: message, Err: err}
}

// NotFound reports that userID has no stored state.
func NotFound(userID string) error {
	return &Error{Kind: KindUserNotFound, UserID: userID}
}

// Validation wraps a snapshot validation failure.
func Validation(err error) error {
	return &Error{Kind: KindValidation, Err: err}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
