// Package tool defines the narrow ToolProvider contract the runtime
// consumes. Execution sandboxing, process isolation, and MCP
// wire transport are explicit Non-goals; the interface only describes the
// call/response shape, same as the prior codebase's own separation between the
// tool contract and the feature-level tool implementations.
package tool

import "context"

// Handle identifies a single declared tool as resolved from the compiled
// workflow's ToolSpec, independent of how it's actually implemented.
type Handle struct {
	Name string
	// Kind mirrors workflow.ToolSpec.Kind: "builtin" or "source".
	Kind string
	Source string
}

// Call is a single invocation request: a tool name and its arguments,
// already evaluated to concrete values by runtime/flow.
type Call struct {
	Handle Handle
	CallID string
	Args map[string]any
}

// Result is what a tool invocation returns.
type Result struct {
	Value any
	// Err is set when the tool raised a recoverable error, which the flow
	// reports back to the model as a tool message; a non-recoverable error is
	// returned directly from Provider.Call.
	Err error
}

// Provider is the capability the runtime consumes to execute declared
// tools. This is one of the interpreter's four suspension points.
type Provider interface {
	// Resolve looks up a declared tool by name, returning its Handle.
	Resolve(ctx context.Context, name string) (Handle, error)
	// Call executes a resolved tool with the given arguments.
	Call(ctx context.Context, call Call) (Result, error)
}
