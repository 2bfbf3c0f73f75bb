package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Kind categorizes a pipeline failure so callers can react to it without
// inspecting message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindMalformedDocument
	KindFillError
	KindSessionNotFound
	KindEmailNotConfigured
	KindEmailSendFailure
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindMalformedDocument:
		return "MALFORMED_DOCUMENT"
	case KindFillError:
		return "FILL_ERROR"
	case KindSessionNotFound:
		return "SESSION_NOT_FOUND"
	case KindEmailNotConfigured:
		return "EMAIL_NOT_CONFIGURED"
	case KindEmailSendFailure:
		return "EMAIL_SEND_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// UserActionable reports whether the person making the request can fix the
// problem themselves (bad upload, expired link, missing mail settings).
func (k Kind) UserActionable() bool {
	switch k {
	case KindInvalidInput, KindMalformedDocument, KindSessionNotFound, KindEmailNotConfigured:
		return true
	default:
		return false
	}
}

// Error is the typed error returned by every pipeline stage.
type Error struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Sentinels for errors.Is comparisons. Only the kind is compared.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrMalformedDocument  = &Error{Kind: KindMalformedDocument}
	ErrFillError          = &Error{Kind: KindFillError}
	ErrSessionNotFound    = &Error{Kind: KindSessionNotFound}
	ErrEmailNotConfigured = &Error{Kind: KindEmailNotConfigured}
	ErrEmailSendFailure   = &Error{Kind: KindEmailSendFailure}
)

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Context != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Kind, msg, e.Context)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Detail returns the human-readable text without the kind prefix.
func (e *Error) Detail() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// New creates an Error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Newf creates an Error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches a kind and message to an underlying error
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithContext adds context to an existing Error
func (e *Error) WithContext(context string) *Error {
	e.Context = context
	return e
}

// KindOf extracts the kind of err, KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As is a convenience wrapper around the standard library errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}
