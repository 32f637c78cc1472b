// Package cmn provides common low-level types shared across the
// data-structures manager: error kinds and the configuration/mode guards
// that gate which primitives a backing cache may serve.
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind discriminates the user-visible error categories a caller may need to
// branch on. String-based so callers outside this module can compare without
// importing unexported sentinel values.
type Kind string

const (
	KindNotInitialized Kind = "not_initialized"
	KindInterrupted    Kind = "interrupted"
	KindModeMismatch   Kind = "mode_mismatch"
	KindTypeMismatch   Kind = "type_mismatch"
	KindQueueConflict  Kind = "queue_conflict"
	KindBusyLatch      Kind = "busy_latch"
	KindRemoved        Kind = "removed"
	KindQueueRemoved   Kind = "queue_removed"
	KindCacheFailure   Kind = "cache_failure"
)

// Error is the concrete error type returned by every manager and proxy
// operation. Kind lets callers do `if cmn.KindOf(err) == cmn.KindRemoved`
// instead of string matching or type assertions per kind.
type Error struct {
	Kind    Kind
	Name    string // primitive name, when applicable ("" otherwise)
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Name, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause returns the wrapped failure of a CacheFailure, which lets
// errors.Cause walk through to the original cache error. Other kinds wrap
// nothing, so for them this returns nil.
func (e *Error) Cause() error { return e.cause }

// KindOf reports the Kind of err, or "" if err is not (or does not wrap) an
// *Error produced by this module.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newErr(kind Kind, name, msg string) *Error {
	return &Error{Kind: kind, Name: name, Message: msg}
}

func NotInitialized() error {
	return newErr(KindNotInitialized, "", "data-structures manager has not completed initialization")
}

func Interrupted(name string) error {
	return newErr(KindInterrupted, name, "interrupted while waiting for manager initialization")
}

func ModeMismatch(name, reason string) error {
	return newErr(KindModeMismatch, name, reason)
}

func TypeMismatch(name string, want, got string) error {
	return newErr(KindTypeMismatch, name, fmt.Sprintf("expected kind %q, found %q", want, got))
}

func QueueConflict(name string) error {
	return newErr(KindQueueConflict, name, "existing queue has different capacity or collocation flag")
}

func BusyLatch(name string) error {
	return newErr(KindBusyLatch, name, "latch count is still non-zero")
}

func Removed(name string) error {
	return newErr(KindRemoved, name, "data-structure has been removed")
}

func QueueRemoved(name string) error {
	return newErr(KindQueueRemoved, name, "queue has been removed")
}

// CacheFailure wraps an underlying cache/transaction failure, preserving it
// for errors.Cause while giving the caller a stable Kind to match on.
func CacheFailure(name string, cause error) error {
	e := newErr(KindCacheFailure, name, cause.Error())
	e.cause = errors.Wrap(cause, "cache operation failed")
	return e
}
