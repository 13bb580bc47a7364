package sema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/lang/parser"
)

func analyzeSrc(t *testing.T, src string) (*Result, bool) {
	t.Helper()
	f, pdiags := parser.Parse("t.sr", []byte(src))
	require.False(t, pdiags.HasErrors(), "parse errors: %v", pdiags.Diags)
	res, diags := Analyze("t.sr", f)
	return res, diags.HasErrors()
}

func TestEntryPointPrefersFlowMain(t *testing.T) {
	src := "flow main:\n return 1\nflow default:\n return 2\n"
	res, hasErr := analyzeSrc(t, src)
	require.False(t, hasErr)
	require.Equal(t, EntryFlow, res.Entry.Kind)
	require.Equal(t, "main", res.Entry.Name)
}

func TestEntryPointFallsBackToFlowDefault(t *testing.T) {
	src := "flow default:\n return 1\n"
	res, hasErr := analyzeSrc(t, src)
	require.False(t, hasErr)
	require.Equal(t, EntryFlow, res.Entry.Kind)
	require.Equal(t, "default", res.Entry.Name)
}

func TestEntryPointFallsBackToAgentMain(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nprompt p:\n \"\"\"hi\"\"\"\nagent main:\n model: gpt\n instruction: p\n"
	res, hasErr := analyzeSrc(t, src)
	require.False(t, hasErr)
	require.Equal(t, EntryAgent, res.Entry.Kind)
	require.Equal(t, "main", res.Entry.Name)
}

func TestEntryPointSingleAgentFallback(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nprompt p:\n \"\"\"hi\"\"\"\nagent solo:\n model: gpt\n instruction: p\n"
	res, hasErr := analyzeSrc(t, src)
	require.False(t, hasErr)
	require.Equal(t, EntryAgent, res.Entry.Kind)
	require.Equal(t, "solo", res.Entry.Name)
}

func TestEntryPointNoneWhenAmbiguous(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nprompt p:\n \"\"\"hi\"\"\"\nagent alice:\n model: gpt\n instruction: p\nagent bob:\n model: gpt\n instruction: p\n"
	res, hasErr := analyzeSrc(t, src)
	require.True(t, hasErr)
	require.Equal(t, EntryNone, res.Entry.Kind)
}

func TestDuplicateDeclarationIsAnError(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nmodel gpt: anthropic/claude\n"
	_, hasErr := analyzeSrc(t, src)
	require.True(t, hasErr)
}

func TestRepeatedPromptDeclarationsMerge(t *testing.T) {
	src := "prompt greet:\n \"\"\"Hello\"\"\"\nprompt greet:\n \"\"\" world\"\"\"\nflow main:\n return 1\n"
	res, hasErr := analyzeSrc(t, src)
	require.False(t, hasErr)
	p, ok := res.Prompts["greet"]
	require.True(t, ok)
	require.Contains(t, p.Body, "Hello")
	require.Contains(t, p.Body, "world")
}

func TestUnresolvedVariableIsAnError(t *testing.T) {
	src := "flow main:\n return $nonexistent\n"
	_, hasErr := analyzeSrc(t, src)
	require.True(t, hasErr)
}

func TestForLoopVariableScopedToBody(t *testing.T) {
	src := "flow main:\n  for $item in [1, 2]:\n    $x = $item\n  return $item\n"
	_, hasErr := analyzeSrc(t, src)
	require.True(t, hasErr, "$item must not escape the for-loop body")
}

func TestLoopBodyVariablesScopedLikeOtherBlocks(t *testing.T) {
	src := "flow main:\n  loop max 2 do\n    $x = 1\n  end\n  return $x\n"
	_, hasErr := analyzeSrc(t, src)
	require.True(t, hasErr, "$x assigned only inside a loop block must not be visible after it")
}

func TestFilterImplicitPropertyResolvesOnlyInPredicate(t *testing.T) {
	src := "flow main:\n $items = [1, 2, 3]\n $evens = filter $items where .value > 1\n return $evens\n"
	_, hasErr := analyzeSrc(t, src)
	require.False(t, hasErr)
}

func TestImplicitPropertyOutsideFilterIsUnresolved(t *testing.T) {
	src := "flow main:\n return .value\n"
	_, hasErr := analyzeSrc(t, src)
	require.True(t, hasErr, ".value is only meaningful inside a filter predicate")
}

func TestEscalationConditionMustUseComparisonOperator(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nagent a:\n model: gpt\n instruction: \"\"\"hi\"\"\"\n on 1 + 1 escalate log: \"oops\"\n"
	_, hasErr := analyzeSrc(t, src)
	require.True(t, hasErr, "arithmetic is not a valid escalation predicate")
}

func TestEscalationConditionWithComparisonOperatorIsValid(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nagent a:\n model: gpt\n instruction: \"\"\"hi\"\"\"\n on 1 == 1 escalate log: \"oops\"\n"
	_, hasErr := analyzeSrc(t, src)
	require.False(t, hasErr)
}
