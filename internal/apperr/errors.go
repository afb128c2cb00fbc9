// Package apperr defines the error taxonomy shared by every layer of the
// service. Each error carries a Kind (which decides the HTTP status) and a
// machine-readable Reason that is returned to clients.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindClientInput
	KindAuthentication
	// KindAuthorization is a route-level policy denial.
	KindAuthorization
	// KindForbidden is an operation-level denial (e.g. admin-only mutations).
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is the structured error type. Message is safe to show to clients;
// Cause is for server-side logs only.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same kind and reason, so package-level
// sentinels work with errors.Is even after Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Reason: e.Reason, Message: e.Message, Cause: cause}
}

// HTTPStatus maps the error kind to a transport status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindClientInput:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the message that may be sent to a client. Internal and
// upstream errors never expose their message.
func (e *Error) Public() string {
	switch e.Kind {
	case KindInternal, KindUpstream:
		return "internal server error"
	default:
		return e.Message
	}
}

func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

func ClientInput(reason, message string) *Error {
	return New(KindClientInput, reason, message)
}

func Authentication(reason, message string) *Error {
	return New(KindAuthentication, reason, message)
}

func Authorization(reason, message string) *Error {
	return New(KindAuthorization, reason, message)
}

func Forbidden(reason, message string) *Error {
	return New(KindForbidden, reason, message)
}

func NotFound(reason, message string) *Error {
	return New(KindNotFound, reason, message)
}

func Conflict(reason, message string) *Error {
	return New(KindConflict, reason, message)
}

func Upstream(reason, message string) *Error {
	return New(KindUpstream, reason, message)
}

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Reason: "internal", Message: "internal error", Cause: cause}
}

// From converts any error into an *Error, treating unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	return From(err).Kind
}

// Body is the JSON error payload written to clients.
func (e *Error) Body() map[string]string {
	return map[string]string{"error": e.Public(), "reason": e.Reason}
}
