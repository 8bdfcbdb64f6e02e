package fault

import (
	"errors"
	"fmt"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
)

// Kind classifies a business failure.
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindLocked       Kind = "LOCKED"
	KindNotFound     Kind = "NOT_FOUND"
	KindOwnership    Kind = "OWNERSHIP"
	KindAborted      Kind = "ABORTED"
	KindUnauthorized Kind = "UNAUTHORIZED"
)

// Error is a failure phrased in terms of the violated business rule.
type Error struct {
	Kind    Kind
	Message string
	Asset   *asset.Ref
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindAborted {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Locked(format string, args ...interface{}) *Error {
	return &Error{Kind: KindLocked, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Ownership reports an asset that cannot move as declared.
func Ownership(ref asset.Ref, format string, args ...interface{}) *Error {
	r := ref
	return &Error{Kind: KindOwnership, Message: fmt.Sprintf(format, args...), Asset: &r}
}

// Aborted wraps a failure raised inside the atomic phase of a settlement.
func Aborted(err error) *Error {
	return &Error{Kind: KindAborted, Message: "trade was not executed", Err: err}
}

// Unauthorized reports a caller whose identity could not be verified.
func Unauthorized(err error) *Error {
	return &Error{Kind: KindUnauthorized, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, or "" when err is not a business failure.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err is a business failure of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
