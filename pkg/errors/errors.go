// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling for the retrieval pipeline.
// Every failure that crosses a package boundary is an *Error carrying a Code,
// so callers can tell provider outages from bad input without string matching.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeEmbeddingProvider indicates the embedding provider call failed
	// or returned a non-success status.
	CodeEmbeddingProvider ErrorCode = "EMBEDDING_PROVIDER_ERROR"

	// CodeRetrieval indicates the owner's store could not be built or queried.
	CodeRetrieval ErrorCode = "RETRIEVAL_ERROR"

	// CodeGeneration indicates the generation provider failed.
	CodeGeneration ErrorCode = "GENERATION_ERROR"

	// CodeCorpus indicates the document corpus could not be read or written.
	CodeCorpus ErrorCode = "CORPUS_ERROR"
)

// Error is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int // HTTP status used by the API layer
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Attributes  map[string]string      `json:"attributes,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		StatusCode  int                    `json:"status_code"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Err:         cause,
		Context:     e.Context,
		Attributes:  e.Attributes,
		Recoverable: e.Recoverable,
		StatusCode:  e.StatusCode,
	})
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Context:     make(map[string]interface{}),
		Attributes:  make(map[string]string),
		Recoverable: defaultRecoverable(code),
		StatusCode:  codeToStatusCode(code),
	}
}

// Newf creates a new Error without a cause, formatting the message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *Error) WithAttribute(key, value string) *Error {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// WithStatusCode overrides the HTTP status derived from the code.
func (e *Error) WithStatusCode(status int) *Error {
	e.StatusCode = status
	return e
}

// As returns the outermost *Error in err's chain, or wraps err as an
// internal error when the chain holds none.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *Error) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// Provider failures are transient from the caller's point of view.
func defaultRecoverable(code ErrorCode) bool {
	switch code {
	case CodeEmbeddingProvider, CodeGeneration, CodeTimeout:
		return true
	default:
		return false
	}
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeEmbeddingProvider, CodeGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
