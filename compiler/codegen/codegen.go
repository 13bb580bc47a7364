// Package codegen lowers a semantically validated AST into the
// compiler/workflow data model. Lowering is deterministic:
// wherever a Go map would otherwise iterate in an unspecified order, this
// package first collects and sorts its keys, the same discipline the
// teacher's codegen/ir.Design documents for its own generator-facing IR.
package codegen

import (
	"sort"

	"github.com/streetrace-ai/streetrace/lang/ast"
	"github.com/streetrace-ai/streetrace/lang/sema"
	"github.com/streetrace-ai/streetrace/lang/token"
	"github.com/streetrace-ai/streetrace/compiler/workflow"
)

// generator holds the per-file state needed while lowering.
type generator struct {
	res *sema.Result
	sm *workflow.SourceMap
	// cacheTriggers maps a prompt name to the cache-policy trigger that
	// targets it: a cache policy named "<prompt>_cache" binds its trigger to
	// the prompt "<prompt>".
	cacheTriggers map[string]string
}

// Generate lowers file (already validated by lang/sema, with res as its
// analysis result) into a compiled Workflow.
func Generate(file string, f *ast.File, res *sema.Result) *workflow.Workflow {
	g := &generator{
		res: res,
		sm: workflow.NewSourceMap(file),
		cacheTriggers: map[string]string{},
	}
	g.indexCachePolicies()

	wf := &workflow.Workflow{
		Models: map[string]workflow.ModelSpec{},
		Schemas: map[string]workflow.SchemaSpec{},
		Tools: map[string]workflow.ToolSpec{},
		Prompts: map[string]workflow.PromptSpec{},
		Policies: map[string]workflow.PolicySpec{},
		Agents: map[string]workflow.AgentSpec{},
		Flows: map[string]workflow.FlowProgram{},
		SourceMap: g.sm,
	}

	for _, name := range sortedKeys(res.Models) {
		wf.Models[name] = g.lowerModel(res.Models[name])
	}
	for _, name := range sortedKeys(res.Schemas) {
		wf.Schemas[name] = g.lowerSchema(res.Schemas[name])
	}
	for _, name := range sortedKeys(res.Tools) {
		wf.Tools[name] = g.lowerTool(res.Tools[name])
	}
	for _, name := range sortedKeys(res.Prompts) {
		wf.Prompts[name] = g.lowerPrompt(res.Prompts[name])
	}
	for _, name := range sortedKeys(res.Policies) {
		wf.Policies[name] = g.lowerPolicy(res.Policies[name])
	}
	for _, name := range sortedKeys(res.Agents) {
		wf.Agents[name] = g.lowerAgent(res.Agents[name])
	}
	for _, name := range sortedKeys(res.Flows) {
		wf.Flows[name] = g.lowerFlow(res.Flows[name])
	}

	wf.Entry = workflow.EntryPoint{Kind: workflow.EntryKind(res.Entry.Kind), Name: res.Entry.Name}
	return wf
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// indexCachePolicies implements the "<prompt>_cache" policy-name convention
// for the supplemental cache-policy feature.
func (g *generator) indexCachePolicies() {
	for name, pol := range g.res.Policies {
		if pol.Kind != "cache" || pol.Cache == nil {
			continue
		}
		const suffix = "_cache"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			prompt := name[:len(name)-len(suffix)]
			g.cacheTriggers[prompt] = pol.Cache.Trigger
		}
	}
}

func (g *generator) lowerModel(d *ast.ModelDecl) workflow.ModelSpec {
	params := map[string]workflow.Value{}
	for _, p := range d.Params {
		params[p.Name] = g.lowerValue(p.Value)
	}
	return workflow.ModelSpec{Name: d.Name, Provider: d.Provider, Version: d.Version, Params: params}
}

func (g *generator) lowerSchema(d *ast.SchemaDecl) workflow.SchemaSpec {
	spec := workflow.SchemaSpec{Name: d.Name}
	for _, f := range d.Fields {
		spec.Fields = append(spec.Fields, workflow.FieldSpec{
			Name: f.Name,
			Type: g.lowerSchemaType(f.Type),
			Optional: f.Optional,
		})
	}
	return spec
}

func (g *generator) lowerSchemaType(t ast.SchemaType) workflow.FieldType {
	switch v := t.(type) {
	case *ast.BaseType:
		return workflow.FieldType{Kind: v.Name}
	case *ast.ListType:
		elem := g.lowerSchemaType(v.Elem)
		return workflow.FieldType{Kind: "list", Elem: &elem}
	case *ast.RefType:
		return workflow.FieldType{Kind: "ref", Ref: v.Name}
	default:
		return workflow.FieldType{Kind: "any"}
	}
}

func (g *generator) lowerSchemaTypePtr(t ast.SchemaType) *workflow.FieldType {
	if t == nil {
		return nil
	}
	ft := g.lowerSchemaType(t)
	return &ft
}

func (g *generator) lowerTool(d *ast.ToolDecl) workflow.ToolSpec {
	params := map[string]workflow.Value{}
	for _, p := range d.Params {
		params[p.Name] = g.lowerValue(p.Value)
	}
	return workflow.ToolSpec{
		Name: d.Name,
		Kind: d.Kind,
		Source: d.Source,
		Description: d.Description,
		Params: params,
		Produces: g.lowerSchemaTypePtr(d.Produces),
	}
}

func (g *generator) lowerPrompt(d *ast.PromptDecl) workflow.PromptSpec {
	spec := workflow.PromptSpec{
		Name: d.Name,
		Body: d.Body,
		CacheBoundary: g.cacheTriggers[d.Name],
	}
	if d.Escalate != nil {
		spec.Escalation = &workflow.PromptEscalation{Op: d.Escalate.Op, Value: d.Escalate.Value}
	}
	return spec
}

func (g *generator) lowerPolicy(d *ast.PolicyDecl) workflow.PolicySpec {
	spec := workflow.PolicySpec{Name: d.Name, Kind: d.Kind}
	if d.Retry != nil {
		spec.Retry = &workflow.RetryPolicy{
			MaxAttempts: d.Retry.MaxAttempts,
			Backoff: workflow.BackoffSpec{
				Strategy: d.Retry.Backoff.Strategy,
				Base: lowerDuration(d.Retry.Backoff.Base),
			},
		}
	}
	if d.Timeout != nil {
		spec.Timeout = &workflow.TimeoutPolicy{Duration: lowerDuration(d.Timeout.Duration)}
	}
	if d.Cache != nil {
		spec.Cache = &workflow.CachePolicy{Trigger: d.Cache.Trigger}
	}
	return spec
}

func lowerDuration(d ast.DurationLit) workflow.Duration {
	return workflow.Duration{Value: d.Value, Unit: d.Unit}
}

func (g *generator) lowerAgent(d *ast.AgentDecl) workflow.AgentSpec {
	spec := workflow.AgentSpec{
		Name: d.Name,
		Model: d.Model,
		Tools: append([]string(nil), d.Tools...),
		Policies: append([]string(nil), d.Policies...),
		Produces: g.lowerSchemaTypePtr(d.Produces),
	}
	if _, ok := g.res.Prompts[d.Instruction]; ok {
		spec.Instruction = d.Instruction
	} else {
		spec.Instruction = d.Instruction
		spec.InstructionIsInline = true
	}
	for _, clause := range d.Escalation {
		spec.Escalation = append(spec.Escalation, g.lowerEscalationRule(clause))
	}
	return spec
}

func (g *generator) lowerEscalationRule(c ast.EscalationClause) workflow.EscalationRule {
	return workflow.EscalationRule{
		Condition: g.lowerCondition(c.Condition),
		Action: g.lowerEscalationAction(c.Action),
	}
}

func (g *generator) lowerCondition(e ast.Expr) workflow.Condition {
	switch v := e.(type) {
	case *ast.BinaryExpr:
		switch v.Op {
		case "and", "or":
			l := g.lowerCondition(v.Left)
			r := g.lowerCondition(v.Right)
			return workflow.Condition{Op: v.Op, Left: &l, Right: &r}
		default:
			return workflow.Condition{Op: v.Op, LeftValue: g.lowerValue(v.Left), RightValue: g.lowerValue(v.Right)}
		}
	case *ast.UnaryExpr:
		if v.Op == "not" {
			inner := g.lowerCondition(v.Operand)
			return workflow.Condition{Op: "not", Left: &inner}
		}
	}
	// Unreachable for a sema-validated tree; fall back to an always-false
	// leaf rather than panicking on malformed input from a partial parse.
	return workflow.Condition{Op: "==", LeftValue: workflow.Literal{V: true}, RightValue: workflow.Literal{V: false}}
}

func (g *generator) lowerEscalationAction(a ast.EscalationAction) workflow.EscalationAction {
	switch v := a.(type) {
	case *ast.EscalateHuman:
		return workflow.EscalationAction{Kind: "human", Message: v.Message}
	case *ast.LogAction:
		return workflow.EscalationAction{Kind: "log", Message: v.Message}
	case *ast.NotifyAction:
		return workflow.EscalationAction{Kind: "notify", Target: v.Target, Message: v.Message}
	default:
		return workflow.EscalationAction{Kind: "log"}
	}
}

func (g *generator) lowerFlow(d *ast.FlowDecl) workflow.FlowProgram {
	return workflow.FlowProgram{Name: d.Name, Instructions: g.lowerStmts(d.Body)}
}

func (g *generator) lowerStmts(stmts []ast.Stmt) []workflow.Instruction {
	out := make([]workflow.Instruction, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, g.lowerStmt(s))
	}
	return out
}

func (g *generator) record(span token.Span) token.Span {
	g.sm.Record(span)
	return span
}

func (g *generator) lowerStmt(s ast.Stmt) workflow.Instruction {
	switch v := s.(type) {
	case *ast.AssignStmt:
		return workflow.Assignment{Target: v.Target, Value: g.lowerValue(v.Value), Span: g.record(v.Span)}
	case *ast.PropertyAssignStmt:
		return workflow.PropertyAssignment{Target: v.Target, Property: v.Property, Value: g.lowerValue(v.Value), Span: g.record(v.Span)}
	case *ast.RunStmt:
		ri := workflow.RunInstruction{Agent: v.Agent, IsFlow: v.IsFlow, Result: v.Result, Span: g.record(v.Span)}
		if v.With != nil {
			ri.With = g.lowerValue(v.With)
		}
		if v.OnEscalate != nil {
			h := &workflow.RunEscalateHandler{Kind: v.OnEscalate.Kind}
			if v.OnEscalate.Value != nil {
				h.Value = g.lowerValue(v.OnEscalate.Value)
			}
			ri.OnEscalate = h
		}
		return ri
	case *ast.CallStmt:
		ci := workflow.CallInstruction{Prompt: v.Prompt, Result: v.Result, Span: g.record(v.Span)}
		if v.With != nil {
			ci.With = g.lowerValue(v.With)
		}
		return ci
	case *ast.ReturnStmt:
		var val workflow.Value
		if v.Value != nil {
			val = g.lowerValue(v.Value)
		}
		return workflow.ReturnInstruction{Value: val, Span: g.record(v.Span)}
	case *ast.PushStmt:
		return workflow.PushInstruction{Value: g.lowerValue(v.Value), Target: v.Target, Span: g.record(v.Span)}
	case *ast.ForStmt:
		return workflow.ForLoop{Var: v.Var, Iter: g.lowerValue(v.Iter), Body: g.lowerStmts(v.Body), Span: g.record(v.Span)}
	case *ast.LoopStmt:
		return workflow.LoopBlock{Max: v.Max, Body: g.lowerStmts(v.Body), Span: g.record(v.Span)}
	case *ast.ParallelStmt:
		branches := make([][]workflow.Instruction, 0, len(v.Branches))
		for _, b := range v.Branches {
			branches = append(branches, g.lowerStmts(b))
		}
		return workflow.ParallelBlock{Branches: branches, Span: g.record(v.Span)}
	case *ast.MatchStmt:
		mb := workflow.MatchBlock{Subject: g.lowerValue(v.Subject), Span: g.record(v.Span)}
		for _, c := range v.Cases {
			mb.Cases = append(mb.Cases, workflow.MatchCase{Cond: g.lowerValue(c.Cond), Body: g.lowerStmts(c.Body)})
		}
		if v.Else != nil {
			mb.Else = g.lowerStmts(v.Else)
		}
		return mb
	case *ast.IfStmt:
		ib := workflow.IfBlock{Cond: g.lowerValue(v.Cond), Then: g.lowerStmts(v.Then), Span: g.record(v.Span)}
		if v.Else != nil {
			ib.Else = g.lowerStmts(v.Else)
		}
		return ib
	case *ast.FailureStmt:
		return workflow.FailureBlock{Body: g.lowerStmts(v.Body), Span: g.record(v.Span)}
	case *ast.EscalateStmt:
		return workflow.EscalateInstruction{Action: g.lowerEscalationAction(v.Action), Span: g.record(v.Span)}
	case *ast.ExprStmt:
		return workflow.ExprInstruction{Value: g.lowerValue(v.Value), Span: g.record(v.Span)}
	default:
		return workflow.ExprInstruction{Value: workflow.Literal{V: nil}, Span: g.record(token.Span{})}
	}
}

func (g *generator) lowerArgs(params []ast.Param) map[string]workflow.Value {
	args := make(map[string]workflow.Value, len(params))
	for _, p := range params {
		args[p.Name] = g.lowerValue(p.Value)
	}
	return args
}

func (g *generator) lowerValue(e ast.Expr) workflow.Value {
	switch v := e.(type) {
	case *ast.IntLit:
		return workflow.Literal{V: v.Value}
	case *ast.FloatLit:
		return workflow.Literal{V: v.Value}
	case *ast.StringLit:
		return workflow.Literal{V: v.Value}
	case *ast.TripleStringLit:
		return workflow.Literal{V: v.Value}
	case *ast.BoolLit:
		return workflow.Literal{V: v.Value}
	case *ast.NullLit:
		return workflow.Literal{V: nil}
	case *ast.VarRef:
		return workflow.VarRefValue{Name: v.Name}
	case *ast.Ident:
		return workflow.VarRefValue{Name: v.Name}
	case *ast.PropertyAccess:
		return workflow.PropertyValue{Base: g.lowerValue(v.Base), Property: v.Property}
	case *ast.IndexAccess:
		return workflow.IndexValue{Base: g.lowerValue(v.Base), Index: g.lowerValue(v.Index)}
	case *ast.ListLit:
		elems := make([]workflow.Value, 0, len(v.Elems))
		for _, el := range v.Elems {
			elems = append(elems, g.lowerValue(el))
		}
		return workflow.ListValue{Elems: elems}
	case *ast.MapLit:
		mv := workflow.MapValue{Entries: map[string]workflow.Value{}}
		for _, entry := range v.Entries {
			mv.Entries[entry.Key] = g.lowerValue(entry.Value)
			mv.Order = append(mv.Order, entry.Key)
		}
		return mv
	case *ast.BinaryExpr:
		return workflow.BinaryValue{Op: v.Op, Left: g.lowerValue(v.Left), Right: g.lowerValue(v.Right)}
	case *ast.UnaryExpr:
		return workflow.UnaryValue{Op: v.Op, Operand: g.lowerValue(v.Operand)}
	case *ast.CallExpr:
		callee := ""
		if id, ok := v.Callee.(*ast.Ident); ok {
			callee = id.Name
		}
		return workflow.CallValue{Callee: callee, Args: g.lowerArgs(v.Args)}
	case *ast.FilterExpr:
		return workflow.FilterValue{Source: g.lowerValue(v.Source), Predicate: g.lowerValue(v.Predicate)}
	case *ast.ImplicitProperty:
		return workflow.ImplicitPropertyValue{Property: v.Property}
	default:
		return workflow.Literal{V: nil}
	}
}
