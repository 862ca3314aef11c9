// Package client holds the HTTP clients for the two external systems of
// record: the Shopify Admin GraphQL API (upstream source of truth for orders)
// and the Airtable REST API (downstream tabular mirror). Both translate
// transport and protocol failures into a shared typed error so callers branch
// on error type, never on transport details.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorType classifies a client failure.
type ErrorType string

const (
	ErrBadRequest         ErrorType = "BAD_REQUEST"
	ErrUnauthorized       ErrorType = "UNAUTHORIZED"
	ErrPaymentRequired    ErrorType = "PAYMENT_REQUIRED"
	ErrForbidden          ErrorType = "FORBIDDEN"
	ErrNotFound           ErrorType = "NOT_FOUND"
	ErrEntityTooLarge     ErrorType = "REQUEST_ENTITY_TOO_LARGE"
	ErrInvalidRequest     ErrorType = "INVALID_REQUEST"
	ErrRateLimitExceeded  ErrorType = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer     ErrorType = "INTERNAL_SERVER_ERROR"
	ErrBadGateway         ErrorType = "BAD_GATEWAY"
	ErrServiceUnavailable ErrorType = "SERVICE_UNAVAILABLE"
	ErrTimeout            ErrorType = "TIMEOUT"
	ErrNetwork            ErrorType = "NETWORK_ERROR"
	ErrGraphQL            ErrorType = "GRAPHQL_ERROR"
	ErrUnknown            ErrorType = "UNKNOWN_ERROR"
)

// Error is the typed failure envelope returned by both clients. Message is
// for operators and logs; UserMessage is safe to surface to end users.
type Error struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	UserMessage string    `json:"user_message"`
	Status      int       `json:"status"`
	Err         error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether the failure is a 429 from the remote service.
func (e *Error) IsRateLimited() bool {
	return e.Type == ErrRateLimitExceeded
}

type statusMapping struct {
	errType     ErrorType
	message     string
	userMessage string
}

// transportError classifies failures where no HTTP response was received.
func transportError(err error, service string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Type:        ErrTimeout,
			Message:     "request timeout",
			UserMessage: "Request timed out. Please try again.",
			Err:         err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{
			Type:        ErrTimeout,
			Message:     "request timeout",
			UserMessage: "Request timed out. Please try again.",
			Err:         err,
		}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{
			Type:        ErrNetwork,
			Message:     "network connection error",
			UserMessage: fmt.Sprintf("Unable to connect to %s. Please check your internet connection.", service),
			Err:         err,
		}
	}
	return &Error{
		Type:        ErrUnknown,
		Message:     err.Error(),
		UserMessage: "An unexpected error occurred. Please try again.",
		Err:         err,
	}
}

// statusError maps an HTTP status to the shared taxonomy using the given
// per-service table, falling back to UNKNOWN_ERROR.
func statusError(status int, table map[int]statusMapping, body string) *Error {
	if m, ok := table[status]; ok {
		return &Error{
			Type:        m.errType,
			Message:     m.message,
			UserMessage: m.userMessage,
			Status:      status,
			Err:         fmt.Errorf("http %d: %s", status, body),
		}
	}
	return &Error{
		Type:        ErrUnknown,
		Message:     fmt.Sprintf("unexpected HTTP status %d", status),
		UserMessage: "An unexpected error occurred. Please try again.",
		Status:      status,
		Err:         fmt.Errorf("http %d: %s", status, body),
	}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
