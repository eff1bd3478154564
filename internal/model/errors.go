package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// ErrorKind classifies provider failures into the gateway's error taxonomy.
type ErrorKind int

const (
	// KindStatus is an upstream non-2xx response.
	KindStatus ErrorKind = iota
	// KindConnection is a transport-level failure before any response.
	KindConnection
	// KindTimeout is a deadline exceeded talking to the provider.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "api_connection"
	case KindTimeout:
		return "api_timeout"
	default:
		return "api_status"
	}
}

// APIError is the only error type model clients surface.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	cause      error
}

func (e *APIError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("model %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("model %s error: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.cause }

// Retryable reports whether the failure is overload-class: callers may retry.
func (e *APIError) Retryable() bool {
	if e.Kind == KindConnection || e.Kind == KindTimeout {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == 529
}

// HTTPStatus maps the taxonomy onto the gateway's response codes.
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindConnection:
		return http.StatusBadGateway
	default:
		if e.StatusCode == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	}
}

// StatusError builds a KindStatus error from an upstream response.
func StatusError(code int, message string) *APIError {
	return &APIError{Kind: KindStatus, StatusCode: code, Message: message}
}

// WrapError maps an arbitrary provider error into the taxonomy. Anything not
// recognizably a connection or timeout failure becomes APIStatus 500.
func WrapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: KindTimeout, Message: err.Error(), cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Kind: KindTimeout, Message: err.Error(), cause: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &APIError{Kind: KindConnection, Message: err.Error(), cause: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &APIError{Kind: KindConnection, Message: err.Error(), cause: err}
	}

	return &APIError{Kind: KindStatus, StatusCode: http.StatusInternalServerError, Message: err.Error(), cause: err}
}
