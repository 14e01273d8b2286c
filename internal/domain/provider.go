package domain

import "context"

// Planner is a pluggable decision function, typically backed by a language
// model. Decide returns free text that callers must parse leniently.
type Planner interface {
	Decide(ctx context.Context, prompt string) (string, error)
	Name() string
}
