package domain

import "context"

// ToolCall is a selected invocation: which provider, which tool, what args.
type ToolCall struct {
	Provider string         `json:"server_name"`
	Tool     string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

// InvocationResult carries either a payload or an error, never both.
type InvocationResult struct {
	Payload any
	Err     *ToolError
}

// OK reports whether the invocation succeeded.
func (r InvocationResult) OK() bool { return r.Err == nil }

// Value returns the payload, or an error object for failed invocations,
// in the shape recorded in execution traces.
func (r InvocationResult) Value() any {
	if r.Err != nil {
		return map[string]any{"error": r.Err}
	}
	return r.Payload
}

// TraceEntry records one executed tool call.
type TraceEntry struct {
	Provider string         `json:"provider"`
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args"`
	Result   any            `json:"result"`
}

type Request struct {
	UserQuery string `json:"user_query"`
	SessionID string `json:"session_id"`
}

type Response struct {
	FinalAnswer       string       `json:"final_answer"`
	ToolCallsExecuted []TraceEntry `json:"tool_calls_executed"`
}

type requestIDKey struct{}

// WithRequestID attaches a request ID to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID attached to ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
