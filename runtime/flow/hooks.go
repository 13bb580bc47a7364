package flow

import "context"

// Hooks gives a caller before/after extension points around a run's
// lifecycle: flow start, the final output, and every tool call. Each On*
// hook runs before the guarded step and can abort the run by returning a
// non-nil error; each After* hook is informational and returns nothing,
// since the step it follows has already happened.
//
// The zero value is every hook being a no-op, so a caller that doesn't
// need interception pays nothing for this.
type Hooks struct {
	OnStart    func(ctx context.Context, runID, flowName, input string) error
	AfterStart func(ctx context.Context, runID, flowName, input string)

	OnOutput    func(ctx context.Context, runID string, result any) error
	AfterOutput func(ctx context.Context, runID string, result any, err error)

	OnToolCall    func(ctx context.Context, runID, toolName, callID string, args map[string]any) error
	AfterToolCall func(ctx context.Context, runID, toolName, callID string, result any, err error)
}

func (h Hooks) onStart(ctx context.Context, runID, flowName, input string) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx, runID, flowName, input)
}

func (h Hooks) afterStart(ctx context.Context, runID, flowName, input string) {
	if h.AfterStart != nil {
		h.AfterStart(ctx, runID, flowName, input)
	}
}

func (h Hooks) onOutput(ctx context.Context, runID string, result any) error {
	if h.OnOutput == nil {
		return nil
	}
	return h.OnOutput(ctx, runID, result)
}

func (h Hooks) afterOutput(ctx context.Context, runID string, result any, err error) {
	if h.AfterOutput != nil {
		h.AfterOutput(ctx, runID, result, err)
	}
}

func (h Hooks) onToolCall(ctx context.Context, runID, toolName, callID string, args map[string]any) error {
	if h.OnToolCall == nil {
		return nil
	}
	return h.OnToolCall(ctx, runID, toolName, callID, args)
}

func (h Hooks) afterToolCall(ctx context.Context, runID, toolName, callID string, result any, err error) {
	if h.AfterToolCall != nil {
		h.AfterToolCall(ctx, runID, toolName, callID, result, err)
	}
}
