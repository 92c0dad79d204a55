package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindInvalidSignature  Kind = "invalid_signature"
	KindGateway           Kind = "gateway_error"
	KindValidation        Kind = "validation_error"
	KindInternal          Kind = "internal_error"
)

// Sentinels for errors.Is checks against a kind.
var (
	NotFound          = &Error{Kind: KindNotFound}
	Forbidden         = &Error{Kind: KindForbidden}
	InvalidTransition = &Error{Kind: KindInvalidTransition}
	Conflict          = &Error{Kind: KindConflict}
	InvalidSignature  = &Error{Kind: KindInvalidSignature}
	GatewayError      = &Error{Kind: KindGateway}
	ValidationError   = &Error{Kind: KindValidation}
	Internal          = &Error{Kind: KindInternal}
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperror.Conflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return newf(KindNotFound, string(KindNotFound), format, args...)
}

func Forbiddenf(format string, args ...any) *Error {
	return newf(KindForbidden, string(KindForbidden), format, args...)
}

func InvalidTransitionf(format string, args ...any) *Error {
	return newf(KindInvalidTransition, string(KindInvalidTransition), format, args...)
}

// InvalidStatef reports an operation attempted while an entity is in the wrong status.
// It shares the InvalidTransition kind but carries its own code.
func InvalidStatef(format string, args ...any) *Error {
	return newf(KindInvalidTransition, "invalid_state", format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newf(KindConflict, string(KindConflict), format, args...)
}

func Validationf(format string, args ...any) *Error {
	return newf(KindValidation, string(KindValidation), format, args...)
}

func NewInvalidSignature() *Error {
	return &Error{Kind: KindInvalidSignature, Code: string(KindInvalidSignature), Message: "invalid webhook signature"}
}

func Gateway(err error, message string) *Error {
	return &Error{Kind: KindGateway, Code: string(KindGateway), Message: message, Err: err}
}

func Wrap(err error, message string) *Error {
	return &Error{Kind: KindInternal, Code: string(KindInternal), Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
