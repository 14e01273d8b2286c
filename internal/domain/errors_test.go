package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestToolError_IsMatchesKind(t *testing.T) {
	err := NewToolError(KindNotFound, "tool %q not found", "fs.x")
	wrapped := fmt.Errorf("invoke: %w", err)

	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("expected wrapped error to match ErrNotFound")
	}
	if errors.Is(wrapped, ErrInvalidArguments) {
		t.Error("did not expect match on ErrInvalidArguments")
	}
}

func TestAsToolError(t *testing.T) {
	if AsToolError(nil, KindExecutionFailed) != nil {
		t.Error("nil error should stay nil")
	}

	te := AsToolError(errors.New("boom"), KindExecutionFailed)
	if te.Kind != KindExecutionFailed || te.Message != "boom" {
		t.Errorf("unexpected wrap: %+v", te)
	}

	orig := NewToolError(KindInvalidArguments, "missing path")
	if got := AsToolError(fmt.Errorf("x: %w", orig), KindExecutionFailed); got != orig {
		t.Errorf("expected original ToolError back, got %+v", got)
	}
}

func TestInvocationResult_Value(t *testing.T) {
	ok := InvocationResult{Payload: map[string]any{"a": 1}}
	if !ok.OK() {
		t.Error("expected OK")
	}
	failed := InvocationResult{Err: NewToolError(KindNotFound, "x")}
	v, isMap := failed.Value().(map[string]any)
	if !isMap || v["error"] == nil {
		t.Errorf("expected error object, got %#v", failed.Value())
	}
}
