// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the noterag CLI.
package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/jllopis/noterag/pkg/errors"
)

// CLIError wraps a typed error with a hint for the operator.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(e *errors.Error, hint string) *CLIError {
	return &CLIError{Err: e, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

func (e *CLIError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// PrintError prints the error to stderr.
func (e *CLIError) PrintError(asJSON bool) {
	e.write(os.Stderr, asJSON)
}

func (e *CLIError) write(w io.Writer, asJSON bool) {
	if e.Err == nil {
		fmt.Fprintln(w, "Error: unknown error")
		return
	}
	detail := e.Err.Message
	if e.Err.Err != nil {
		detail += ": " + e.Err.Err.Error()
	}
	if asJSON {
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]any{
				"code":        e.Err.Code,
				"message":     detail,
				"hint":        e.Hint,
				"recoverable": e.Err.Recoverable,
			},
		})
		fmt.Fprintln(w, string(payload))
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.Err.Code), detail)
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// AsCLIError returns err as a CLIError, deriving the hint from its code
// when err is not one already.
func AsCLIError(err error) *CLIError {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr
	}
	typed := errors.As(err)
	return NewCLIError(typed, hintFor(typed))
}

func hintFor(e *errors.Error) string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case errors.CodeEmbeddingProvider:
		return "check embedder.provider and embedder.base_url, and that the provider is running"
	case errors.CodeGeneration:
		return "check llm.provider and llm.base_url, and that the model is available"
	case errors.CodeCorpus:
		return "check corpus.driver and corpus.path"
	case errors.CodeRetrieval:
		return "the owner's vector store could not be built; see the cause above"
	case errors.CodeTimeout:
		return "the operation ran out of time; retry or raise the provider timeout"
	case errors.CodeNotFound:
		return "check the identifier with 'noterag docs list <owner>'"
	case errors.CodeInvalidInput:
		return "run 'noterag help' for usage information"
	default:
		return ""
	}
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	e := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithContext("reason", reason)
	return NewCLIError(e, "run 'noterag help' for usage information")
}

// NewUsageError reports a malformed subcommand invocation.
func NewUsageError(usage string) *CLIError {
	e := errors.New(errors.CodeInvalidInput, "usage: "+usage, nil)
	return NewCLIError(e, "")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	e := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(e, hint)
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeTimeout:
		return "Timeout"
	case errors.CodeEmbeddingProvider:
		return "Embedding Provider"
	case errors.CodeRetrieval:
		return "Retrieval"
	case errors.CodeGeneration:
		return "Generation"
	case errors.CodeCorpus:
		return "Corpus"
	default:
		return string(code)
	}
}
