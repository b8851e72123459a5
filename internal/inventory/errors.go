package inventory

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors for callers: NotFound and InvalidState are
// not retryable, Conflict may be retried after reloading state (version
// conflicts only), Insufficient is an expected business outcome.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindInsufficient Kind = "insufficient"
)

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

func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func InvalidStatef(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Insufficientf(format string, args ...interface{}) error {
	return &Error{Kind: KindInsufficient, Msg: fmt.Sprintf(format, args...)}
}

// ErrVersionConflict marks an optimistic-concurrency failure on a level row.
// Callers may reload and retry; duplicate-batch conflicts must not be
// retried with unchanged input.
var ErrVersionConflict = &Error{Kind: KindConflict, Msg: "inventory level version conflict"}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}

func IsInvalidState(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindInvalidState
}

func IsConflict(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConflict
}

func IsInsufficient(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindInsufficient
}
