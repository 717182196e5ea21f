// Package transport defines the wire protocol of the data layer: a
// single request envelope dispatched over path to the generated
// resource APIs and the optimistic manager.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Request is one client call.
type Request struct {
	// Type is query, mutation or subscription.
	Type string `json:"type"`
	// Path addresses the target, e.g. ["message", "get"].
	Path []string `json:"path"`
	// Input carries the operation arguments.
	Input map[string]any `json:"input,omitempty"`
	// Select is the selection set, array or object form.
	Select json.RawMessage `json:"select,omitempty"`
}

// Error codes carried on the wire.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeValidation   = "VALIDATION"
	CodeNotFound     = "NOT_FOUND"
	CodeTypeMismatch = "TYPE_MISMATCH"
	CodeInternal     = "INTERNAL"
)

// Error is the wire error shape.
type Error struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func badRequest(format string, args ...any) *Error {
	return &Error{Code: CodeBadRequest, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func validation(err error) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusUnprocessableEntity, Message: err.Error()}
}

func notFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func typeMismatch(reqType, op string) *Error {
	return &Error{
		Code:    CodeTypeMismatch,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("operation %q cannot be called as a %s", op, reqType),
	}
}

func internal(err error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: err.Error()}
}

// Response is the success envelope.
type Response struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}
