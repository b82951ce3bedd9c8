package proxy

import (
	"context"
	"errors"
	"net"
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindUnreachable ErrorKind = "unreachable"
	KindCanceled    ErrorKind = "canceled"
)

// ProxyError is a failed forward to Service. Err is for logs only.
type ProxyError struct {
	Kind    ErrorKind
	Service string
	Err     error
}

func (e *ProxyError) Error() string {
	return "proxy " + e.Service + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *ProxyError) Unwrap() error { return e.Err }

// classify maps a transport error to a kind. ctxErr is the request context's
// error, which tells a client disconnect apart from the proxy timeout.
func classify(service string, err, ctxErr error) *ProxyError {
	kind := KindUnreachable
	var nerr net.Error
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(ctxErr, context.Canceled):
		kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &nerr) && nerr.Timeout():
		kind = KindTimeout
	}
	return &ProxyError{Kind: kind, Service: service, Err: err}
}
