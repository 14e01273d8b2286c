// Package channel exposes the orchestrator over HTTP, Telegram and an
// interactive terminal.
package channel

import (
	"context"

	"toolhost/internal/domain"
)

// Handler answers one request. *agent.Orchestrator implements it.
type Handler interface {
	Handle(ctx context.Context, req domain.Request) domain.Response
}

// Catalogue is the read-only view of registered providers and tools.
type Catalogue interface {
	Names() []string
	AllTools(ctx context.Context) map[string][]domain.ToolDescriptor
}

// Channel is a long-running surface started by the serve command.
type Channel interface {
	Name() string
	// Start blocks until ctx is cancelled or the channel fails.
	Start(ctx context.Context) error
}
