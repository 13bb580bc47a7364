package flow

import (
	"context"

	"github.com/streetrace-ai/streetrace/runtime/engine"
)

// Durable execution wires an Interpreter into an engine.Engine so a caller
// gets a engine.FlowHandle (Wait/Cancel) around a run instead of a bare
// Run() call. Suspension stays coarse: the whole interpretation runs inside
// one Activity rather than one Activity per LlmClient/ToolProvider/
// SessionStore call. Making every suspension point in runAgent its own
// replay-safe Activity would require the interpreter's internals (the
// errgroup-joined ParallelBlock branches, the agent handle cache) to become
// deterministic-replay-safe the way Temporal workflow code must be — the
// teacher's planner loop was built as activities from the start, so it
// never had to retrofit that; a compiled flow's fine-grained durability is
// left as an open item (see DESIGN.md).
const (
	durableFlowName = "streetrace.interpret"
	durableActivityName = "streetrace.interpret.run"
)

// RegisterDurable registers this Interpreter's Run method as a single
// engine flow/activity pair on eng, under taskQueue.
func (in *Interpreter) RegisterDurable(ctx context.Context, eng engine.Engine, taskQueue string) error {
	if err := eng.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: durableActivityName,
		Handler: func(actx context.Context, input any) (any, error) {
			text, _ := input.(string)
			return in.Run(actx, text)
		},
	}); err != nil {
		return err
	}
	return eng.RegisterFlow(ctx, engine.FlowDefinition{
		Name: durableFlowName,
		TaskQueue: taskQueue,
		Handler: func(fctx engine.FlowContext, input any) (any, error) {
			var result any
			err := fctx.ExecuteActivity(fctx.Context(), engine.ActivityRequest{
				Name: durableActivityName,
				Input: input,
			}, &result)
			return result, err
		},
	})
}

// StartDurable launches a durable run of input through eng and returns a
// handle the caller can Wait on. RegisterDurable must have been called on
// eng first.
func (in *Interpreter) StartDurable(ctx context.Context, eng engine.Engine, runID, taskQueue, input string) (engine.FlowHandle, error) {
	return eng.StartFlow(ctx, engine.FlowStartRequest{
		ID: runID,
		Flow: durableFlowName,
		TaskQueue: taskQueue,
		Input: input,
	})
}
