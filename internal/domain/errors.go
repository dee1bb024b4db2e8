package domain

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of a gateway error.
type ErrorType string

const (
	// ErrorTypeUpstream indicates the upstream did not answer (transport failure).
	ErrorTypeUpstream ErrorType = "upstream_unreachable"

	// ErrorTypeReasoning indicates the reasoning service could not be reached
	// after the retry budget was spent.
	ErrorTypeReasoning ErrorType = "reasoning_unavailable"

	// ErrorTypeHealingFailed indicates a healing sequence terminated without
	// producing a usable mapping.
	ErrorTypeHealingFailed ErrorType = "healing_failed"

	// ErrorTypeInvalidRequest indicates a malformed inbound request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
)

// GatewayError is the canonical error produced by the proxy and healing
// engine, translated to an HTTP response at the edge.
type GatewayError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// HTTPStatusCode returns the HTTP status code for this error class.
func (e *GatewayError) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrUpstream creates an upstream transport failure error.
func ErrUpstream(message string, err error) *GatewayError {
	return &GatewayError{Type: ErrorTypeUpstream, Message: message, Err: err}
}

// ErrReasoning creates a reasoning-service failure error.
func ErrReasoning(message string, err error) *GatewayError {
	return &GatewayError{Type: ErrorTypeReasoning, Message: message, Err: err}
}

// ErrHealingFailed creates a healing failure error.
func ErrHealingFailed(message string, err error) *GatewayError {
	return &GatewayError{Type: ErrorTypeHealingFailed, Message: message, Err: err}
}

// ErrInvalidRequest creates a malformed-request error.
func ErrInvalidRequest(message string, err error) *GatewayError {
	return &GatewayError{Type: ErrorTypeInvalidRequest, Message: message, Err: err}
}
