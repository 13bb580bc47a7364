package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/runtime/llm"
	"github.com/streetrace-ai/streetrace/runtime/llm/testllm"
	"github.com/streetrace-ai/streetrace/store/memory"
)

func TestHooksFireAroundFlowStartAndOutput(t *testing.T) {
	wf := compile(t, "flow main:\n return 7\n")
	var started, afterStarted, output, afterOutput []any
	in := New(wf, Options{Hooks: Hooks{
		OnStart: func(_ context.Context, runID, flowName, input string) error {
			started = append(started, flowName)
			return nil
		},
		AfterStart: func(_ context.Context, runID, flowName, input string) {
			afterStarted = append(afterStarted, flowName)
		},
		OnOutput: func(_ context.Context, runID string, result any) error {
			output = append(output, result)
			return nil
		},
		AfterOutput: func(_ context.Context, runID string, result any, err error) {
			afterOutput = append(afterOutput, result)
		},
	}})

	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, int64(7), result)
	require.Equal(t, []any{"main"}, started)
	require.Equal(t, []any{"main"}, afterStarted)
	require.Equal(t, []any{int64(7)}, output)
	require.Equal(t, []any{int64(7)}, afterOutput)
}

func TestOnStartHookAbortsRun(t *testing.T) {
	wf := compile(t, "flow main:\n return 1\n")
	sentinel := errors.New("blocked")
	in := New(wf, Options{Hooks: Hooks{
		OnStart: func(context.Context, string, string, string) error {
			return sentinel
		},
	}})

	_, err := in.Run(context.Background(), "")
	require.ErrorIs(t, err, sentinel)
}

func TestOnToolCallHookAbortsToolInvocation(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nprompt greet:\n \"\"\"You are helpful.\"\"\"\ntool search: builtin \"web_search\"\nagent researcher:\n model: gpt\n tools: [search]\n instruction: greet\nflow main:\n $c = run agent researcher\n return $c\n"
	wf := compile(t, src)
	sentinel := errors.New("no tools allowed")
	client := testllm.New(testllm.Script{Response: llm.Response{
		Content: "",
		StopReason: "tool_calls",
		ToolCalls: []llm.ToolCall{{ID: "1", Name: "search", Args: map[string]any{"q": "go"}}},
	}})
	in := New(wf, Options{
		LLM: client,
		Tools: newStubRegistry(),
		Sessions: memory.New(),
		Hooks: Hooks{
			OnToolCall: func(context.Context, string, string, string, map[string]any) error {
				return sentinel
			},
		},
	})

	_, err := in.Run(context.Background(), "hi")
	require.ErrorIs(t, err, sentinel)
}
