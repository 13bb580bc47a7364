package flow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/compiler/codegen"
	"github.com/streetrace-ai/streetrace/compiler/workflow"
	"github.com/streetrace-ai/streetrace/lang/parser"
	"github.com/streetrace-ai/streetrace/lang/sema"
	"github.com/streetrace-ai/streetrace/runtime/events"
	"github.com/streetrace-ai/streetrace/runtime/llm"
	"github.com/streetrace-ai/streetrace/runtime/llm/testllm"
	"github.com/streetrace-ai/streetrace/runtime/tool"
	"github.com/streetrace-ai/streetrace/store/memory"
)

// stubRegistry is a minimal tool.Provider that always resolves and answers
// with a fixed string, for tests exercising the agent tool-call loop without
// depending on runtime/tool/registry's own behavior.
type stubRegistry struct{}

func newStubRegistry() *stubRegistry { return &stubRegistry{} }

func (*stubRegistry) Resolve(_ context.Context, name string) (tool.Handle, error) {
	return tool.Handle{Name: name, Kind: "builtin"}, nil
}

func (*stubRegistry) Call(_ context.Context, _ tool.Call) (tool.Result, error) {
	return tool.Result{Value: "web-search-result"}, nil
}

func compile(t *testing.T, src string) *workflow.Workflow {
	t.Helper()
	f, pdiags := parser.Parse("t.sr", []byte(src))
	require.False(t, pdiags.HasErrors(), "parse errors: %v", pdiags.Diags)
	res, sdiags := sema.Analyze("t.sr", f)
	require.False(t, sdiags.HasErrors(), "sema errors: %v", sdiags.Diags)
	return codegen.Generate("t.sr", f, res)
}

type recorder struct {
	mu sync.Mutex
	events []events.Event
}

func (r *recorder) HandleEvent(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) typeCounts() map[events.Type]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[events.Type]int{}
	for _, e := range r.events {
		out[e.Type()]++
	}
	return out
}

func TestRunFlowReturnsLiteralValue(t *testing.T) {
	wf := compile(t, "flow main:\n return 42\n")
	in := New(wf, Options{})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, int64(42), result)
}

func TestRunFlowIfElseBranches(t *testing.T) {
	wf := compile(t, "flow main:\n  $x = 1\n  if $x == 1:\n    return \"one\"\n  else:\n    return \"other\"\n")
	in := New(wf, Options{})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "one", result)
}

func TestRunFlowBoundedLoopStopsAtMax(t *testing.T) {
	src := "flow main:\n  $n = 0\n  loop max 3 do\n    $n = $n + 1\n  end\n  return $n\n"
	wf := compile(t, src)
	in := New(wf, Options{})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, int64(3), result)
}

func TestRunFlowUnboundedLoopEmitsLoopExhaustedEvent(t *testing.T) {
	src := "flow main:\n  $n = 0\n  loop do\n    $n = $n + 1\n  end\n  return $n\n"
	wf := compile(t, src)
	bus := events.NewBus()
	rec := &recorder{}
	bus.Register(rec)
	in := New(wf, Options{Bus: bus})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, int64(100), result, "unbounded loop must stop at the implementation-defined ceiling")
	require.Equal(t, 1, rec.typeCounts()[events.LoopExhausted])
}

func TestRunFlowLoopReturnStopsEarly(t *testing.T) {
	src := "flow main:\n  $n = 0\n  loop max 10 do\n    $n = $n + 1\n    if $n == 3:\n      return $n\n  end\n  return -1\n"
	wf := compile(t, src)
	in := New(wf, Options{})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, int64(3), result)
}

func TestRunFlowForLoopAccumulates(t *testing.T) {
	src := "flow main:\n  $total = 0\n  for $item in [1, 2, 3]:\n    $total = $total + $item\n  return $total\n"
	wf := compile(t, src)
	in := New(wf, Options{})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, int64(6), result)
}

func TestRunFlowFilterKeepsElementsMatchingImplicitProperty(t *testing.T) {
	src := "flow main:\n $items = [{age: 10}, {age: 20}, {age: 30}]\n $adults = filter $items where .age >= 18\n return $adults\n"
	wf := compile(t, src)
	in := New(wf, Options{})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	list, ok := result.([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	require.Equal(t, int64(20), list[0].(map[string]any)["age"])
	require.Equal(t, int64(30), list[1].(map[string]any)["age"])
}

func TestRunFlowFilterImplicitPropertyDoesNotLeakIntoVars(t *testing.T) {
	src := "flow main:\n $items = [{age: 10}, {age: 20}]\n $kept = filter $items where .age > 15\n return $items\n"
	wf := compile(t, src)
	in := New(wf, Options{})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	list := result.([]any)
	require.Len(t, list, 2, "filtering must not mutate its source list")
}

func agentWorkflow(t *testing.T, extra string) *workflow.Workflow {
	src := "model gpt: openai/gpt-4o\nprompt greet:\n \"\"\"You are helpful.\"\"\"\nagent researcher:\n model: gpt\n instruction: greet\n" + extra +
		"flow main:\n $c = run agent researcher\n return $c\n"
	return compile(t, src)
}

func TestRunAgentReturnsModelText(t *testing.T) {
	wf := agentWorkflow(t, "")
	client := testllm.New(testllm.Script{Response: llm.Response{Content: "hello there", StopReason: "stop"}})
	in := New(wf, Options{LLM: client, Sessions: memory.New()})
	result, err := in.Run(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "hello there", result)
	require.Len(t, client.Requests, 1)
}

func TestRunAgentSchemaValidationRetriesThenSucceeds(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nprompt greet:\n \"\"\"You are helpful.\"\"\"\nschema Finding:\n title: string\nagent researcher:\n model: gpt\n instruction: greet\n produces: Finding\nflow main:\n $c = run agent researcher\n return $c\n"
	wf := compile(t, src)
	client := testllm.New(
		testllm.Script{Response: llm.Response{Content: "not json", StopReason: "stop"}},
		testllm.Script{Response: llm.Response{Content: `{"title": "fixed"}`, StopReason: "stop"}},
	)
	bus := events.NewBus()
	rec := &recorder{}
	bus.Register(rec)
	in := New(wf, Options{LLM: client, Sessions: memory.New(), Bus: bus})
	result, err := in.Run(context.Background(), "hi")
	require.NoError(t, err)
	m := result.(map[string]any)
	require.Equal(t, "fixed", m["title"])
	require.Equal(t, 2, len(client.Requests))
	require.Equal(t, 2, rec.typeCounts()[events.SchemaValidation], "the failed first attempt and the successful retry each publish")
}

func TestRunAgentSchemaValidationFallsBackAfterSecondFailure(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nprompt greet:\n \"\"\"You are helpful.\"\"\"\nschema Finding:\n title: string\nagent researcher:\n model: gpt\n instruction: greet\n produces: Finding\nflow main:\n $c = run agent researcher\n return $c\n"
	wf := compile(t, src)
	client := testllm.New(
		testllm.Script{Response: llm.Response{Content: "not json", StopReason: "stop"}},
		testllm.Script{Response: llm.Response{Content: "still not json", StopReason: "stop"}},
	)
	in := New(wf, Options{LLM: client, Sessions: memory.New()})
	result, err := in.Run(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, map[string]any{}, result)
}

func TestRunAgentToolCallLoopInvokesToolAndReinvokesModel(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nprompt greet:\n \"\"\"You are helpful.\"\"\"\ntool search: builtin \"web_search\"\nagent researcher:\n model: gpt\n tools: [search]\n instruction: greet\nflow main:\n $c = run agent researcher\n return $c\n"
	wf := compile(t, src)
	client := testllm.New(
		testllm.Script{Response: llm.Response{
			Content: "",
			StopReason: "tool_calls",
			ToolCalls: []llm.ToolCall{{ID: "1", Name: "search", Args: map[string]any{"q": "go"}}},
		}},
		testllm.Script{Response: llm.Response{Content: "found it", StopReason: "stop"}},
	)
	reg := newStubRegistry()
	in := New(wf, Options{LLM: client, Tools: reg, Sessions: memory.New()})
	result, err := in.Run(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "found it", result)
	require.Equal(t, 2, len(client.Requests))
	require.Contains(t, client.Requests[1].Messages[len(client.Requests[1].Messages)-1].Content, "web-search-result")
}

func TestRunFlowParallelBranchesDoNotLeakVarsToEachOther(t *testing.T) {
	src := "flow main:\n  $shared = 1\n  parallel:\n    step:\n      $shared = 2\n    step:\n      $shared = 3\n  return $shared\n"
	wf := compile(t, src)
	in := New(wf, Options{})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	// Both branches write $shared; whichever merges last wins, but the
	// result must be one of the two branch values, never the pre-branch 1.
	require.Contains(t, []int64{2, 3}, result)
}

func TestRunFlowMatchDispatchesToMatchingCase(t *testing.T) {
	src := "flow main:\n  $x = 2\n  match $x:\n    when 1:\n      return \"one\"\n    when 2:\n      return \"two\"\n    else:\n      return \"other\"\n"
	wf := compile(t, src)
	in := New(wf, Options{})
	result, err := in.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "two", result)
}
