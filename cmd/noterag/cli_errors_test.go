// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jllopis/noterag/pkg/errors"
)

func TestCLIErrorText(t *testing.T) {
	cause := errors.New(errors.CodeEmbeddingProvider, "embedding provider returned status 503", nil)
	err := AsCLIError(errors.New(errors.CodeRetrieval, "build vector store", cause))

	var out bytes.Buffer
	err.write(&out, false)
	got := out.String()
	if !strings.HasPrefix(got, "Error [Retrieval]: build vector store: ") {
		t.Fatalf("unexpected first line %q", got)
	}
	if !strings.Contains(got, "Hint: the owner's vector store could not be built") {
		t.Fatalf("expected retrieval hint, got %q", got)
	}
}

func TestCLIErrorJSON(t *testing.T) {
	err := NewConfigError(fmt.Errorf("yaml: line 3"), "config.yaml")

	var out bytes.Buffer
	err.write(&out, true)
	var payload struct {
		Error struct {
			Code        string `json:"code"`
			Message     string `json:"message"`
			Hint        string `json:"hint"`
			Recoverable bool   `json:"recoverable"`
		} `json:"error"`
	}
	if jsonErr := json.Unmarshal(out.Bytes(), &payload); jsonErr != nil {
		t.Fatalf("output is not JSON: %v (%q)", jsonErr, out.String())
	}
	if payload.Error.Code != string(errors.CodeInvalidInput) {
		t.Errorf("code = %q", payload.Error.Code)
	}
	if payload.Error.Message != "configuration error: yaml: line 3" {
		t.Errorf("message = %q", payload.Error.Message)
	}
	if payload.Error.Hint != "check config.yaml for syntax errors" {
		t.Errorf("hint = %q", payload.Error.Hint)
	}
}

func TestAsCLIError(t *testing.T) {
	usage := NewUsageError("noterag ask <owner> <query...>")
	wrapped := fmt.Errorf("dispatch: %w", usage)
	if got := AsCLIError(wrapped); got != usage {
		t.Fatal("expected the wrapped CLIError to be returned as is")
	}

	plain := AsCLIError(stderrors.New("boom"))
	if plain.Err.Code != errors.CodeInternal || plain.Hint != "" {
		t.Fatalf("unexpected conversion %+v", plain.Err)
	}
	if !stderrors.Is(plain, plain.Err) {
		t.Fatal("CLIError should unwrap to its typed error")
	}
}

func TestFormatErrorCode(t *testing.T) {
	if got := FormatErrorCode(errors.CodeGeneration); got != "Generation" {
		t.Errorf("got %q", got)
	}
	if got := FormatErrorCode("CUSTOM"); got != "CUSTOM" {
		t.Errorf("got %q", got)
	}
}
