// Package apperr holds the gateway error taxonomy. Every error that ends up
// in a client response is an *Error carrying its HTTP status and a short,
// client-safe message.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for response mapping.
type Kind string

const (
	KindUnauthorized    Kind = "Unauthorized"
	KindForbidden       Kind = "Forbidden"
	KindTooManyRequests Kind = "Too Many Requests"
	KindBadGateway      Kind = "Bad Gateway"
	KindConfiguration   Kind = "Configuration Error"
	KindNotFound        Kind = "Not Found"
	KindBadRequest      Kind = "Bad Request"
	KindInternal        Kind = "Internal Server Error"
)

// Error is a classified gateway error.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Details are merged into the JSON response body.
	Details map[string]any
	// Err is the underlying cause. It is never written to clients.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail returns a copy of e with key set in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

// Forbidden names the roles that would have been accepted.
func Forbidden(msg string, requiredRoles []string) *Error {
	roles := make([]string, len(requiredRoles))
	copy(roles, requiredRoles)
	return &Error{
		Kind:    KindForbidden,
		Status:  http.StatusForbidden,
		Message: msg,
		Details: map[string]any{"requiredRoles": roles},
	}
}

// TooManyRequests carries the retry hint in seconds.
func TooManyRequests(msg string, retryAfterSeconds int) *Error {
	return &Error{
		Kind:    KindTooManyRequests,
		Status:  http.StatusTooManyRequests,
		Message: msg,
		Details: map[string]any{"retryAfter": retryAfterSeconds},
	}
}

func BadGateway(msg string, cause error) *Error {
	return &Error{Kind: KindBadGateway, Status: http.StatusBadGateway, Message: msg, Err: cause}
}

func Configuration(msg string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Status: http.StatusInternalServerError, Message: msg, Err: cause}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: msg}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "Erreur interne du serveur", Err: cause}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err classifies as k.
func IsKind(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}

// From classifies err, falling back to Internal for unclassified errors.
func From(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}
	return Internal(err)
}
