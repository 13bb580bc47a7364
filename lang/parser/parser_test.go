package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/lang/ast"
)

func mustParse(t *testing.T, src string) *ast.File {
	t.Helper()
	f, diags := Parse("t.sr", []byte(src))
	require.False(t, diags.HasErrors(), "unexpected parse errors: %v", diags.Diags)
	return f
}

func TestParseModelShortForm(t *testing.T) {
	f := mustParse(t, "model gpt: openai/gpt-4o v1\n")
	require.Len(t, f.Decls, 1)
	m := f.Decls[0].(*ast.ModelDecl)
	require.Equal(t, "gpt", m.Name)
	require.Equal(t, "openai/gpt-4o", m.Provider)
	require.Equal(t, "v1", m.Version)
}

func TestParseModelLongFormWithParams(t *testing.T) {
	src := "model gpt:\n  openai/gpt-4o v1\n  with:\n    temperature: 0.2\n"
	f := mustParse(t, src)
	m := f.Decls[0].(*ast.ModelDecl)
	require.Equal(t, "openai/gpt-4o", m.Provider)
	require.Len(t, m.Params, 1)
	require.Equal(t, "temperature", m.Params[0].Name)
	lit := m.Params[0].Value.(*ast.FloatLit)
	require.InDelta(t, 0.2, lit.Value, 0.0001)
}

func TestParseSchemaDeclWithListAndOptionalFields(t *testing.T) {
	src := "schema Finding:\n title: string\n tags: [string]\n notes: string?\n"
	f := mustParse(t, src)
	s := f.Decls[0].(*ast.SchemaDecl)
	require.Equal(t, "Finding", s.Name)
	require.Len(t, s.Fields, 3)
	require.Equal(t, "title", s.Fields[0].Name)
	require.IsType(t, &ast.BaseType{}, s.Fields[0].Type)
	require.IsType(t, &ast.ListType{}, s.Fields[1].Type)
	require.True(t, s.Fields[2].Optional)
}

func TestParseToolBuiltinShortForm(t *testing.T) {
	f := mustParse(t, `tool search: builtin "web_search"` + "\n")
	tl := f.Decls[0].(*ast.ToolDecl)
	require.Equal(t, "builtin", tl.Kind)
	require.Equal(t, "web_search", tl.Source)
}

func TestParseToolLocalPathShortForm(t *testing.T) {
	f := mustParse(t, "tool runner: ./tools/run.py\n")
	tl := f.Decls[0].(*ast.ToolDecl)
	require.Equal(t, "source", tl.Kind)
	require.Equal(t, "./tools/run.py", tl.Source)
}

func TestParsePromptDeclWithEscalation(t *testing.T) {
	src := "prompt greet:\n \"\"\"Say hi\"\"\"\n escalate if contains \"help\"\n"
	f := mustParse(t, src)
	p := f.Decls[0].(*ast.PromptDecl)
	require.Equal(t, "Say hi", p.Body)
	require.NotNil(t, p.Escalate)
	require.Equal(t, "contains", p.Escalate.Op)
	require.Equal(t, "help", p.Escalate.Value)
}

func TestParsePolicyRetryWithBackoff(t *testing.T) {
	src := "policy p1:\n  retry:\n    3 times\n    backoff: exponential 2 seconds\n"
	f := mustParse(t, src)
	p := f.Decls[0].(*ast.PolicyDecl)
	require.Equal(t, "retry", p.Kind)
	require.Equal(t, 3, p.Retry.MaxAttempts)
	require.Equal(t, "exponential", p.Retry.Backoff.Strategy)
	require.Equal(t, 2, p.Retry.Backoff.Base.Value)
	require.Equal(t, "seconds", p.Retry.Backoff.Base.Unit)
}

func TestParsePolicyCacheContextualKeyword(t *testing.T) {
	src := "policy greet_cache:\n  cache:\n    after_system\n"
	f := mustParse(t, src)
	p := f.Decls[0].(*ast.PolicyDecl)
	require.Equal(t, "cache", p.Kind)
	require.Equal(t, "after_system", p.Cache.Trigger)
}

func TestParseAgentDeclFull(t *testing.T) {
	src := "agent researcher:\n model: gpt\n tools: [search, fetch]\n instruction: greet\n produces: Finding\n on $result ~ \"ESCALATE\" escalate to human: \"check this\"\n"
	f := mustParse(t, src)
	a := f.Decls[0].(*ast.AgentDecl)
	require.Equal(t, "gpt", a.Model)
	require.Equal(t, []string{"search", "fetch"}, a.Tools)
	require.Equal(t, "greet", a.Instruction)
	require.IsType(t, &ast.RefType{}, a.Produces)
	require.Len(t, a.Escalation, 1)
	require.IsType(t, &ast.EscalateHuman{}, a.Escalation[0].Action)
}

func TestParseFlowRunWithEscalateHandler(t *testing.T) {
	src := "flow main:\n $c = run agent peer1 with $c, on escalate return $c\n return $c\n"
	f := mustParse(t, src)
	fl := f.Decls[0].(*ast.FlowDecl)
	require.Len(t, fl.Body, 2)
	run := fl.Body[0].(*ast.RunStmt)
	require.Equal(t, "c", run.Result)
	require.Equal(t, "peer1", run.Agent)
	require.NotNil(t, run.OnEscalate)
	require.Equal(t, "return", run.OnEscalate.Kind)
}

func TestParseLoopWithMax(t *testing.T) {
	src := "flow main:\n  loop max 3 do\n    $x = 1\n  end\n"
	f := mustParse(t, src)
	fl := f.Decls[0].(*ast.FlowDecl)
	loop := fl.Body[0].(*ast.LoopStmt)
	require.Equal(t, 3, loop.Max)
	require.Len(t, loop.Body, 1)
}

func TestParseLoopUnbounded(t *testing.T) {
	src := "flow main:\n  loop do\n    $x = 1\n  end\n"
	f := mustParse(t, src)
	fl := f.Decls[0].(*ast.FlowDecl)
	loop := fl.Body[0].(*ast.LoopStmt)
	require.Equal(t, 0, loop.Max)
}

func TestParseIfElseIfElse(t *testing.T) {
	src := "flow main:\n  if $x == 1:\n    return 1\n  else if $x == 2:\n    return 2\n  else:\n    return 3\n"
	f := mustParse(t, src)
	fl := f.Decls[0].(*ast.FlowDecl)
	ifs := fl.Body[0].(*ast.IfStmt)
	require.Len(t, ifs.Else, 1)
	require.IsType(t, &ast.IfStmt{}, ifs.Else[0])
}

func TestParseParallelWithSteps(t *testing.T) {
	src := "flow main:\n  parallel:\n    step:\n      $a = 1\n    step:\n      $b = 2\n"
	f := mustParse(t, src)
	fl := f.Decls[0].(*ast.FlowDecl)
	par := fl.Body[0].(*ast.ParallelStmt)
	require.Len(t, par.Branches, 2)
}

func TestParseMatchWithElse(t *testing.T) {
	src := "flow main:\n  match $x:\n    when 1:\n      return \"one\"\n    else:\n      return \"other\"\n"
	f := mustParse(t, src)
	fl := f.Decls[0].(*ast.FlowDecl)
	m := fl.Body[0].(*ast.MatchStmt)
	require.Len(t, m.Cases, 1)
	require.Len(t, m.Else, 1)
}

func TestParseForStmt(t *testing.T) {
	src := "flow main:\n  for $item in $list:\n    push $item to $out\n"
	f := mustParse(t, src)
	fl := f.Decls[0].(*ast.FlowDecl)
	fs := fl.Body[0].(*ast.ForStmt)
	require.Equal(t, "item", fs.Var)
	require.Len(t, fs.Body, 1)
}

func TestParseFailureBlock(t *testing.T) {
	src := "flow main:\n  call llm greet\n  failure:\n    escalate log: \"oops\"\n"
	f := mustParse(t, src)
	fl := f.Decls[0].(*ast.FlowDecl)
	require.IsType(t, &ast.CallStmt{}, fl.Body[0])
	fb := fl.Body[1].(*ast.FailureStmt)
	require.Len(t, fb.Body, 1)
}

func TestParseExpressionPrecedence(t *testing.T) {
	f := mustParse(t, "flow main:\n $x = 1 + 2 * 3\n")
	fl := f.Decls[0].(*ast.FlowDecl)
	assign := fl.Body[0].(*ast.AssignStmt)
	bin := assign.Value.(*ast.BinaryExpr)
	require.Equal(t, "+", bin.Op)
	require.IsType(t, &ast.IntLit{}, bin.Left)
	mul := bin.Right.(*ast.BinaryExpr)
	require.Equal(t, "*", mul.Op)
}

func TestParseMissingColonReportsError(t *testing.T) {
	_, diags := Parse("t.sr", []byte("flow main\n $x = 1\n"))
	require.True(t, diags.HasErrors())
}

func TestParseFilterWithImplicitProperty(t *testing.T) {
	f := mustParse(t, "flow main:\n $evens = filter $items where .age >= 18\n")
	fl := f.Decls[0].(*ast.FlowDecl)
	assign := fl.Body[0].(*ast.AssignStmt)
	filter := assign.Value.(*ast.FilterExpr)
	require.IsType(t, &ast.VarRef{}, filter.Source)
	pred := filter.Predicate.(*ast.BinaryExpr)
	require.Equal(t, ">=", pred.Op)
	prop := pred.Left.(*ast.ImplicitProperty)
	require.Equal(t, "age", prop.Property)
}

func TestParseFilterWithImplicitPropertyChain(t *testing.T) {
	f := mustParse(t, "flow main:\n $matches = filter $items where .owner.name == \"x\"\n")
	fl := f.Decls[0].(*ast.FlowDecl)
	assign := fl.Body[0].(*ast.AssignStmt)
	filter := assign.Value.(*ast.FilterExpr)
	pred := filter.Predicate.(*ast.BinaryExpr)
	access := pred.Left.(*ast.PropertyAccess)
	require.Equal(t, "name", access.Property)
	require.IsType(t, &ast.ImplicitProperty{}, access.Base)
}
