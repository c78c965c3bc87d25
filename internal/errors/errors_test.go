package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeCapacity, "pool full")
	err := fmt.Errorf("spawn: %w", New(CodeCapacity, "maximum number of agents reached", WithMetadata("limit", "max_agents")))

	if !stdErrors.Is(err, sentinel) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if stdErrors.Is(err, New(CodeValidation, "")) {
		t.Fatalf("unexpected match against a different code")
	}
	if CodeOf(err) != CodeCapacity {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if MetadataOf(err, "limit") != "max_agents" {
		t.Fatalf("unexpected metadata: %q", MetadataOf(err, "limit"))
	}
}

func TestErrorAttributes(t *testing.T) {
	tests := []struct {
		code      Code
		retryable bool
		alert     bool
	}{
		{CodeValidation, false, false},
		{CodeCapacity, true, false},
		{CodeExternalCommand, true, true},
		{CodeOptimization, true, true},
	}
	for _, tt := range tests {
		err := New(tt.code, "")
		if err.Retryable() != tt.retryable {
			t.Fatalf("%s: retryable = %v, want %v", tt.code, err.Retryable(), tt.retryable)
		}
		if ShouldAlert(err) != tt.alert {
			t.Fatalf("%s: alert = %v, want %v", tt.code, ShouldAlert(err), tt.alert)
		}
	}

	override := New(CodeCapacity, "", WithRetryable(false))
	if override.Retryable() {
		t.Fatalf("expected retryable override to win")
	}
}

func TestErrorMessageIncludesMetadataAndCause(t *testing.T) {
	cause := stdErrors.New("exit status 1")
	err := Wrap(CodeExternalCommand, cause, "devpod stop failed", WithMetadata("workspace", "ws-1"))

	msg := err.Error()
	for _, want := range []string{"EXTERNAL_COMMAND_FAILED", "devpod stop failed", "workspace=ws-1", "exit status 1"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if New(CodeUnknown, "").Message() != "unknown error" {
		t.Fatalf("expected default message from registry")
	}
}
