// Package llm defines the narrow LlmClient contract the runtime consumes.
// No concrete provider wire protocol is implemented here — that remains an
// explicit Non-goal; see DESIGN.md for why the prior codebase's
// anthropic-sdk-go/openai-go dependencies were dropped rather than wired
// in. Suspension for the engine abstraction in runtime/engine happens
// precisely at the Invoke call below.
package llm

import "context"

// Message is a single turn in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", "assistant", "tool".
	Role string
	Content string
	// Name optionally identifies which tool produced a "tool" role message.
	Name string
}

// ToolDefinition describes a callable tool as presented to the model,
// independent of runtime/tool.ToolProvider's execution contract.
type ToolDefinition struct {
	Name string
	Description string
	// ParamsSchema is a JSON-Schema-shaped document describing the tool's
	// expected arguments, synthesized by runtime/schema.
	ParamsSchema map[string]any
}

// Request is everything an Invoke call needs to produce a completion.
type Request struct {
	Model string
	Messages []Message
	Tools []ToolDefinition
	Temperature float64
	MaxTokens int
	// CacheBoundary, when non-empty, hints the provider where a prompt-cache
	// checkpoint should be inserted (supplemental feature; see
	// SPEC_FULL.md "Cache policy"). Providers that don't support prompt
	// caching ignore it.
	CacheBoundary string
}

// ToolCall is a single tool invocation request emitted by the model.
type ToolCall struct {
	ID string
	Name string
	Args map[string]any
}

// Response is a completed (non-streaming) LLM call result.
type Response struct {
	Content string
	ToolCalls []ToolCall
	TokensUsed int
	// StopReason is one of "stop", "tool_calls", "length".
	StopReason string
}

// Chunk is one piece of a streamed response. Exactly one of the payload
// fields is meaningfully set, discriminated by Kind.
type Chunk struct {
	// Kind is one of "content", "tool_call", "done".
	Kind string
	Content string
	ToolCall *ToolCall
	TokensUsed int
}

// Client is the capability the runtime consumes to talk to a language
// model. Implementations live outside this package; runtime/llm/testllm
// provides a scripted fake for tests, and runtime/llm/ratelimit wraps any
// Client with a token-bucket limiter.
type Client interface {
	// Invoke performs a single blocking completion call. This is one of the
	// interpreter's four suspension points.
	Invoke(ctx context.Context, req Request) (Response, error)
	// Stream performs a streaming completion call, delivering Chunks to ch
	// until the call completes or ctx is canceled. ch is closed when Stream
	// returns.
	Stream(ctx context.Context, req Request, ch chan<- Chunk) error
}
