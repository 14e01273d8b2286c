package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies tool-layer failures.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NotFound"
	KindInvalidArguments   ErrorKind = "InvalidArguments"
	KindExecutionFailed    ErrorKind = "ExecutionFailed"
	KindProviderNotFound   ErrorKind = "ProviderNotFound"
	KindNoCapabilities     ErrorKind = "NoCapabilities"
	KindPlannerUnavailable ErrorKind = "PlannerUnavailable"
	KindDuplicateProvider  ErrorKind = "DuplicateProvider"
	KindToolCollision      ErrorKind = "ToolCollision"
)

// Sentinels for errors.Is; a *ToolError matches the sentinel of its kind.
var (
	ErrNotFound           = &ToolError{Kind: KindNotFound}
	ErrInvalidArguments   = &ToolError{Kind: KindInvalidArguments}
	ErrExecutionFailed    = &ToolError{Kind: KindExecutionFailed}
	ErrProviderNotFound   = &ToolError{Kind: KindProviderNotFound}
	ErrNoCapabilities     = &ToolError{Kind: KindNoCapabilities}
	ErrPlannerUnavailable = &ToolError{Kind: KindPlannerUnavailable}
	ErrDuplicateProvider  = &ToolError{Kind: KindDuplicateProvider}
	ErrToolCollision      = &ToolError{Kind: KindToolCollision}
)

// ToolError is the single failure shape produced by the tool layer.
type ToolError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ToolError) Is(target error) bool {
	var t *ToolError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewToolError builds a ToolError with a formatted message.
func NewToolError(kind ErrorKind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsToolError returns err as a *ToolError, wrapping foreign errors with
// the fallback kind.
func AsToolError(err error, fallback ErrorKind) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Kind: fallback, Message: err.Error()}
}
