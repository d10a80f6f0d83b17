// Package rpc is the typed request/response channel between the panel and
// the paramset backend. A Transport moves JSON envelopes; Client wraps it
// with one method per remote call; Dispatcher serves calls on the backend.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Request is a single remote call.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error codes
const (
	CodeNotFound       = "not_found"
	CodeInvalidRequest = "invalid_request"
	CodeValidation     = "validation_error"
	CodeNoSession      = "no_session"
	CodeUnknownMethod  = "unknown_method"
	CodeInternal       = "internal_error"
	CodeTransport      = "transport_error"
)

// Error is a failure reported by the remote side.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *Error by code, so errors.Is(err, ErrNotFound) works
// on errors decoded from the wire.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	// ErrNotFound matches remote not_found errors
	ErrNotFound = &Error{Code: CodeNotFound}

	// ErrNoSession matches remote no_session errors
	ErrNoSession = &Error{Code: CodeNoSession}

	// ErrUnknownMethod matches remote unknown_method errors
	ErrUnknownMethod = &Error{Code: CodeUnknownMethod}

	// ErrClosed is returned by transports after Close
	ErrClosed = errors.New("transport closed")
)

// Errorf builds a remote error with the given code.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Transport performs one call and waits for its response. Implementations
// decode the result into result (which may be nil).
type Transport interface {
	Call(ctx context.Context, method string, params, result any) error
	Close() error
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	return b, nil
}

func decodeResult(resp *Response, result any) error {
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
