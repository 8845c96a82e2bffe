package types

import "errors"

// ErrorKind is the closed error taxonomy of the coordinator. Every error
// a handler returns maps onto one of these; none is fatal to the process.
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindNotFound
	KindPermissionDenied
	KindInvalidInput
	KindConflict
	KindUpstreamUnavailable
)

// UI surfaces for client::error notices.
const (
	ErrorContextBanner = "banner"
	ErrorContextChat   = "chat"
	ErrorContextAlert  = "alert"
)

type Error struct {
	Kind    ErrorKind
	Context string // where the client UI should surface it
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func NewError(kind ErrorKind, context, message string) *Error {
	return &Error{Kind: kind, Context: context, Message: message}
}

func ErrNotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Context: ErrorContextAlert, Message: message}
}

func ErrPermissionDenied(message string) *Error {
	return &Error{Kind: KindPermissionDenied, Context: ErrorContextAlert, Message: message}
}

func ErrInvalidInput(context, message string) *Error {
	return &Error{Kind: KindInvalidInput, Context: context, Message: message}
}

func ErrConflict(message string) *Error {
	return &Error{Kind: KindConflict, Context: ErrorContextBanner, Message: message}
}

func ErrUpstream(message string, cause error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Context: ErrorContextAlert, Message: message, cause: cause}
}

// KindOf classifies any error; errors that do not carry a kind are
// KindUnexpected.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// AsError returns the typed error within err, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
