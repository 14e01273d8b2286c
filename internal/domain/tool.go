package domain

import (
	"context"
	"encoding/json"
)

// ToolDescriptor describes one tool offered by a capability provider.
// Parameters holds the JSON Schema of the argument object verbatim.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Capability is the discovery half of the provider contract. ListTools must
// return the same set for the provider's lifetime; an unconfigured provider
// returns an empty slice.
type Capability interface {
	ListTools() []ToolDescriptor
}

// Executor is a provider whose execution honors ctx and may suspend on I/O.
type Executor interface {
	Capability
	Execute(ctx context.Context, tool string, args map[string]any) (any, error)
}

// BlockingExecutor is a provider whose execution blocks the calling
// goroutine and cannot be cancelled. The bridge runs it off the request path.
type BlockingExecutor interface {
	Capability
	ExecuteBlocking(tool string, args map[string]any) (any, error)
}

// Shutdowner is implemented by providers holding resources that must be
// released at process teardown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
