// Package engine defines the durable-execution abstractions runtime/flow
// programs against, so a compiled workflow.FlowProgram can run on an
// in-memory engine (runtime/engine/inmem, for tests and the CLI) or a
// durable one (runtime/engine/temporal) without the interpreter itself
// changing. Grounded on the prior codebase's runtime/agent/engine package, trimmed
// to the operations a flow interpreter actually needs: activity execution
// (an agent/tool/LLM call becomes an Activity) and async fan-out (a
// ParallelBlock branch becomes a Future).
package engine

import (
	"context"
	"time"

	"github.com/streetrace-ai/streetrace/runtime/telemetry"
)

// Engine abstracts workflow registration and execution so backends
// (Temporal, in-memory) can be swapped without touching runtime/flow.
type Engine interface {
	// RegisterFlow registers a flow definition with the engine. Must be
	// called before StartFlow.
	RegisterFlow(ctx context.Context, def FlowDefinition) error
	// RegisterActivity registers an activity handler invoked from flows.
	RegisterActivity(ctx context.Context, def ActivityDefinition) error
	// StartFlow begins a flow execution and returns a handle to it.
	StartFlow(ctx context.Context, req FlowStartRequest) (FlowHandle, error)
}

// FlowDefinition binds a flow handler to a logical name and task queue.
type FlowDefinition struct {
	Name string
	TaskQueue string
	Handler FlowFunc
}

// FlowFunc is the engine entry point for a single compiled flow execution.
// It must be deterministic: the same input and the same sequence of
// activity results must produce the same execution sequence, since a
// durable engine may replay it.
type FlowFunc func(ctx FlowContext, input any) (any, error)

// FlowContext exposes engine operations to a running flow. Implementations
// wrap engine-specific contexts (Temporal workflow.Context, an in-memory
// context) behind one API.
type FlowContext interface {
	Context() context.Context
	FlowID() string
	RunID() string

	// ExecuteActivity schedules an activity and blocks for its result.
	ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error
	// ExecuteActivityAsync schedules an activity without blocking, for
	// ParallelBlock fan-out.
	ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

	Logger() telemetry.Logger
	Metrics() telemetry.Metrics
	Tracer() telemetry.Tracer

	// Now returns the current time in a replay-safe manner.
	Now() time.Time
}

// Future is a pending activity result, used to join ParallelBlock branches.
type Future interface {
	Get(ctx context.Context, result any) error
	IsReady() bool
}

// ActivityDefinition registers an activity handler with the engine.
type ActivityDefinition struct {
	Name string
	Handler ActivityFunc
	Options ActivityOptions
}

// ActivityFunc handles a single activity invocation. Unlike a FlowFunc, an
// activity may perform real side effects (LLM calls, tool calls, session
// I/O).
type ActivityFunc func(ctx context.Context, input any) (any, error)

// ActivityOptions configures retry/timeout behavior for an activity,
// typically sourced from a compiled workflow.RetryPolicy/TimeoutPolicy.
type ActivityOptions struct {
	RetryPolicy RetryPolicy
	Timeout time.Duration
}

// FlowStartRequest describes how to launch a flow execution.
type FlowStartRequest struct {
	ID string
	Flow string
	TaskQueue string
	Input any
	RetryPolicy RetryPolicy
}

// ActivityRequest describes a single activity invocation from within a flow.
type ActivityRequest struct {
	Name string
	Input any
	RetryPolicy RetryPolicy
	Timeout time.Duration
}

// FlowHandle lets a caller interact with a running flow execution.
type FlowHandle interface {
	Wait(ctx context.Context, result any) error
	Cancel(ctx context.Context) error
}

// RetryPolicy is shared retry configuration for flows and activities.
// Zero-valued fields mean the engine's own defaults apply.
type RetryPolicy struct {
	MaxAttempts int
	InitialInterval time.Duration
	BackoffCoefficient float64
}
