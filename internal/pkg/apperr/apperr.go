package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide whether to retry,
// compensate, or surface it.
type Kind string

const (
	KindValidation  Kind = "validation"  // malformed input (bad window, bad query)
	KindNotFound    Kind = "not_found"   // unknown instance / entity
	KindUpstream    Kind = "upstream"    // external API transport or status failure
	KindPersistence Kind = "persistence" // local transaction failure, incl. uniqueness conflicts
)

// ErrLockNotAcquired signals that another worker holds the sweep lock.
// It is an expected no-op condition, never escalated.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Error carries a kind plus the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without an underlying cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an underlying error. Returns nil if err is nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func IsValidation(err error) bool  { return IsKind(err, KindValidation) }
func IsNotFound(err error) bool    { return IsKind(err, KindNotFound) }
func IsUpstream(err error) bool    { return IsKind(err, KindUpstream) }
func IsPersistence(err error) bool { return IsKind(err, KindPersistence) }
