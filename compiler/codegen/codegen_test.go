package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/lang/parser"
	"github.com/streetrace-ai/streetrace/lang/sema"
	"github.com/streetrace-ai/streetrace/compiler/workflow"
)

func compileSrc(t *testing.T, src string) *workflow.Workflow {
	t.Helper()
	f, pdiags := parser.Parse("t.sr", []byte(src))
	require.False(t, pdiags.HasErrors(), "parse errors: %v", pdiags.Diags)
	res, sdiags := sema.Analyze("t.sr", f)
	require.False(t, sdiags.HasErrors(), "sema errors: %v", sdiags.Diags)
	return Generate("t.sr", f, res)
}

func TestGenerateEntryPointCarriesThrough(t *testing.T) {
	wf := compileSrc(t, "flow main:\n return 1\n")
	require.Equal(t, workflow.EntryFlow, wf.Entry.Kind)
	require.Equal(t, "main", wf.Entry.Name)
}

func TestGenerateLowersLoopStmtToLoopBlock(t *testing.T) {
	wf := compileSrc(t, "flow main:\n  loop max 3 do\n    $x = 1\n  end\n")
	instrs := wf.Flows["main"].Instructions
	require.Len(t, instrs, 1)
	loop := instrs[0].(workflow.LoopBlock)
	require.Equal(t, 3, loop.Max)
	require.Len(t, loop.Body, 1)
	require.IsType(t, workflow.Assignment{}, loop.Body[0])
}

func TestGenerateUnboundedLoopHasZeroMax(t *testing.T) {
	wf := compileSrc(t, "flow main:\n  loop do\n    $x = 1\n  end\n")
	loop := wf.Flows["main"].Instructions[0].(workflow.LoopBlock)
	require.Equal(t, 0, loop.Max)
}

func TestGenerateRunInstructionCarriesEscalateHandler(t *testing.T) {
	src := "model gpt: openai/gpt-4o\nprompt p:\n \"\"\"hi\"\"\"\nagent a:\n model: gpt\n instruction: p\nflow main:\n $c = run agent a, on escalate return $input_prompt\n return $c\n"
	wf := compileSrc(t, src)
	run := wf.Flows["main"].Instructions[0].(workflow.RunInstruction)
	require.Equal(t, "a", run.Agent)
	require.False(t, run.IsFlow)
	require.Equal(t, "c", run.Result)
	require.NotNil(t, run.OnEscalate)
	require.Equal(t, "return", run.OnEscalate.Kind)
}

func TestGenerateIsDeterministicAcrossRuns(t *testing.T) {
	src := "model a: openai/gpt-4o\nmodel b: anthropic/claude v1\nschema S:\n x: string\nflow main:\n return 1\n"
	wf1 := compileSrc(t, src)
	wf2 := compileSrc(t, src)
	require.Equal(t, wf1.Models, wf2.Models)
	require.Equal(t, wf1.Schemas, wf2.Schemas)
}

func TestGenerateRecordsSourceMapForEveryInstruction(t *testing.T) {
	wf := compileSrc(t, "flow main:\n $x = 1\n $y = 2\n return $y\n")
	instrs := wf.Flows["main"].Instructions
	require.Len(t, instrs, 3)
	require.Len(t, wf.SourceMap.Spans, 3)
	for id := 0; id < 3; id++ {
		_, ok := wf.SourceMap.Lookup(id)
		require.True(t, ok, "expected source map entry for id %d", id)
	}
}

func TestGenerateListSchemaFieldLowersToListType(t *testing.T) {
	wf := compileSrc(t, "schema Report:\n tags: [string]\nflow main:\n return 1\n")
	s := wf.Schemas["Report"]
	require.Len(t, s.Fields, 1)
	require.Equal(t, "list", s.Fields[0].Type.Kind)
	require.NotNil(t, s.Fields[0].Type.Elem)
	require.Equal(t, "string", s.Fields[0].Type.Elem.Kind)
}
