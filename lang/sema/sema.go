// Package sema implements a two-pass semantic analyzer: it builds
// per-kind symbol tables, resolves every name reference against them,
// merges repeated prompt declarations, and selects the program's entry
// point. Diagnostics accumulate in a diag.Batch using the same
// batching discipline the lexer and parser use, rather than failing fast
// on the first problem.
package sema

import (
	"sort"

	"github.com/streetrace-ai/streetrace/lang/ast"
	"github.com/streetrace-ai/streetrace/lang/diag"
	"github.com/streetrace-ai/streetrace/lang/token"
)

// EntryKind distinguishes how the program's entry point was selected.
type EntryKind int

const (
	// EntryNone means no entry point could be determined; always paired
	// with an ENoEntryPoint diagnostic.
	EntryNone EntryKind = iota
	EntryFlow
	EntryAgent
)

// EntryPoint names the declaration execution begins from.
type EntryPoint struct {
	Kind EntryKind
	Name string
}

// Result is the output of a successful (or partially successful) analysis
// pass: every declaration the file defines, keyed by name, plus the chosen
// entry point.
type Result struct {
	Models map[string]*ast.ModelDecl
	Schemas map[string]*ast.SchemaDecl
	Tools map[string]*ast.ToolDecl
	Prompts map[string]*ast.PromptDecl
	Policies map[string]*ast.PolicyDecl
	Agents map[string]*ast.AgentDecl
	Flows map[string]*ast.FlowDecl
	Imports map[string]*ast.ImportDecl
	Entry EntryPoint
}

type analyzer struct {
	diags *diag.Batch
	res *Result
}

// Analyze runs the semantic analyzer over a parsed file and returns the
// resolved Result together with every diagnostic raised. Callers should
// check diags.HasErrors() before handing the Result to the code generator.
func Analyze(file string, f *ast.File) (*Result, *diag.Batch) {
	a := &analyzer{
		diags: diag.NewBatch(file),
		res: &Result{
			Models: map[string]*ast.ModelDecl{},
			Schemas: map[string]*ast.SchemaDecl{},
			Tools: map[string]*ast.ToolDecl{},
			Prompts: map[string]*ast.PromptDecl{},
			Policies: map[string]*ast.PolicyDecl{},
			Agents: map[string]*ast.AgentDecl{},
			Flows: map[string]*ast.FlowDecl{},
			Imports: map[string]*ast.ImportDecl{},
		},
	}
	a.collect(f)
	a.resolve(f)
	a.selectEntryPoint()
	return a.res, a.diags
}

// collect performs the first pass: populate the per-kind symbol tables and
// flag duplicate definitions. Prompt declarations are the one kind that may
// legally repeat — a forward declaration followed by its body, or several
// bodies meant to be concatenated — so they are merged rather than rejected.
func (a *analyzer) collect(f *ast.File) {
	for _, d := range f.Decls {
		switch decl := d.(type) {
		case *ast.ImportDecl:
			a.declare(a.res.Imports, decl.Name, decl, decl.Span)
		case *ast.ModelDecl:
			a.declare(a.res.Models, decl.Name, decl, decl.Span)
		case *ast.SchemaDecl:
			a.declare(a.res.Schemas, decl.Name, decl, decl.Span)
		case *ast.ToolDecl:
			a.declare(a.res.Tools, decl.Name, decl, decl.Span)
		case *ast.PolicyDecl:
			a.declare(a.res.Policies, decl.Name, decl, decl.Span)
		case *ast.AgentDecl:
			a.declare(a.res.Agents, decl.Name, decl, decl.Span)
		case *ast.FlowDecl:
			a.declare(a.res.Flows, decl.Name, decl, decl.Span)
		case *ast.PromptDecl:
			a.mergePrompt(decl)
		}
	}
}

func (a *analyzer) declare(table any, name string, decl ast.Decl, span token.Span) {
	switch t := table.(type) {
	case map[string]*ast.ImportDecl:
		if _, ok := t[name]; ok {
			a.dupError(name, span)
			return
		}
		t[name] = decl.(*ast.ImportDecl)
	case map[string]*ast.ModelDecl:
		if _, ok := t[name]; ok {
			a.dupError(name, span)
			return
		}
		t[name] = decl.(*ast.ModelDecl)
	case map[string]*ast.SchemaDecl:
		if _, ok := t[name]; ok {
			a.dupError(name, span)
			return
		}
		t[name] = decl.(*ast.SchemaDecl)
	case map[string]*ast.ToolDecl:
		if _, ok := t[name]; ok {
			a.dupError(name, span)
			return
		}
		t[name] = decl.(*ast.ToolDecl)
	case map[string]*ast.PolicyDecl:
		if _, ok := t[name]; ok {
			a.dupError(name, span)
			return
		}
		t[name] = decl.(*ast.PolicyDecl)
	case map[string]*ast.AgentDecl:
		if _, ok := t[name]; ok {
			a.dupError(name, span)
			return
		}
		t[name] = decl.(*ast.AgentDecl)
	case map[string]*ast.FlowDecl:
		if _, ok := t[name]; ok {
			a.dupError(name, span)
			return
		}
		t[name] = decl.(*ast.FlowDecl)
	}
}

func (a *analyzer) dupError(name string, span token.Span) {
	a.diags.Errorf(diag.EDuplicateDefinition, span, "%q is already defined", name)
}

func (a *analyzer) mergePrompt(decl *ast.PromptDecl) {
	existing, ok := a.res.Prompts[decl.Name]
	if !ok {
		a.res.Prompts[decl.Name] = decl
		return
	}
	if decl.Body == "" {
		// A second forward declaration with no body; this is a duplicate in
		// all but the most degenerate case, but we tolerate it silently —
		// repeated forward declarations are harmless.
		return
	}
	if existing.Body == "" {
		existing.Body = decl.Body
		existing.Span = token.Span{Start: existing.Span.Start, End: decl.Span.End}
		return
	}
	existing.Body = existing.Body + "\n" + decl.Body
	existing.Merges = append(existing.Merges, decl.Body)
	existing.Span = token.Span{Start: existing.Span.Start, End: decl.Span.End}
	if existing.Escalate == nil {
		existing.Escalate = decl.Escalate
	}
}

// resolve is the second pass: every cross-reference (model/tool/prompt/
// policy names inside agents, schema references, flow variable scoping) is
// checked against the tables collect built.
func (a *analyzer) resolve(f *ast.File) {
	for _, name := range sortedKeys(a.res.Schemas) {
		a.resolveSchema(a.res.Schemas[name])
	}
	for _, name := range sortedKeys(a.res.Agents) {
		a.resolveAgent(a.res.Agents[name])
	}
	for _, name := range sortedKeys(a.res.Flows) {
		a.resolveFlow(a.res.Flows[name])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *analyzer) resolveSchema(s *ast.SchemaDecl) {
	for _, field := range s.Fields {
		a.resolveSchemaType(field.Type)
	}
}

func (a *analyzer) resolveSchemaType(t ast.SchemaType) {
	switch v := t.(type) {
	case *ast.ListType:
		a.resolveSchemaType(v.Elem)
	case *ast.RefType:
		if _, ok := a.res.Schemas[v.Name]; !ok {
			a.diags.Errorf(diag.EUnresolvedName, v.Span, "unresolved schema reference %q", v.Name)
		}
	}
}

func (a *analyzer) resolveAgent(ag *ast.AgentDecl) {
	if ag.Model != "" {
		if _, ok := a.res.Models[ag.Model]; !ok {
			a.diags.Errorf(diag.EUnresolvedName, ag.Span, "agent %q references undefined model %q", ag.Name, ag.Model)
		}
	}
	for _, tool := range ag.Tools {
		if _, ok := a.res.Tools[tool]; !ok {
			a.diags.Errorf(diag.EUnresolvedName, ag.Span, "agent %q references undefined tool %q", ag.Name, tool)
		}
	}
	for _, pol := range ag.Policies {
		if _, ok := a.res.Policies[pol]; !ok {
			a.diags.Errorf(diag.EUnresolvedName, ag.Span, "agent %q references undefined policy %q", ag.Name, pol)
		}
	}
	if ag.Instruction != "" {
		if _, ok := a.res.Prompts[ag.Instruction]; !ok {
			// Not necessarily an error: the parser stores inline triple-string
			// instructions in the same field, distinguishable by not being a
			// valid identifier form is impractical here, so we only warn if it
			// looks like a bare name and isn't whitespace/punctuation bearing.
			if isPlainName(ag.Instruction) {
				a.diags.Warnf(diag.EUnresolvedName, ag.Span, "agent %q references undefined prompt %q", ag.Name, ag.Instruction)
			}
		}
	}
	if ag.Produces != nil {
		a.resolveSchemaType(ag.Produces)
	}
	for _, clause := range ag.Escalation {
		a.checkEscalation(clause)
	}
}

func isPlainName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

// checkEscalation validates that an escalation clause's condition uses one
// of the operators the runtime's escalation engine understands. A condition
// built from unsupported operators (plain arithmetic, for instance) can
// never usefully escalate.
func (a *analyzer) checkEscalation(clause ast.EscalationClause) {
	if !isEscalationPredicate(clause.Condition) {
		a.diags.Errorf(diag.EBadEscalation, clause.Span,
			"escalation condition must be a comparison using '~', '==', '!=', or 'contains'")
	}
}

func isEscalationPredicate(e ast.Expr) bool {
	switch v := e.(type) {
	case *ast.BinaryExpr:
		switch v.Op {
		case "~", "==", "!=", "contains", "and", "or":
			return true
		}
		return false
	case *ast.UnaryExpr:
		if v.Op == "not" {
			return isEscalationPredicate(v.Operand)
		}
		return false
	default:
		return false
	}
}

// checkRunEscalateHandler validates "Escalation validation"
// rule: `on escalate return <expr>` requires the containing run statement to
// name an agent (not a flow); `abort` and `continue` impose no such
// restriction.
func (a *analyzer) checkRunEscalateHandler(v *ast.RunStmt) {
	if v.OnEscalate.Kind == "return" && v.IsFlow {
		a.diags.Errorf(diag.EBadEscalation, v.OnEscalate.Span,
			"'on escalate return' requires the run statement to invoke an agent, not a flow")
	}
}

// flowScope tracks which variables are bound along the current statement
// path, so VarRef resolution can distinguish a genuine typo from a variable
// assigned later in a sibling branch.
type flowScope struct {
	vars map[string]bool
	parent *flowScope
	// inFilter marks a predicate scope created for a FilterExpr, so
	// ImplicitProperty resolution can reject a stray `.field` anywhere else.
	inFilter bool
}

func newFlowScope(parent *flowScope) *flowScope {
	return &flowScope{vars: map[string]bool{}, parent: parent}
}

func (s *flowScope) bind(name string) {
	s.vars[name] = true
}

func (s *flowScope) has(name string) bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.vars[name] {
			return true
		}
	}
	return false
}

func (s *flowScope) inFilterPredicate() bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.inFilter {
			return true
		}
	}
	return false
}

func (a *analyzer) resolveFlow(fl *ast.FlowDecl) {
	scope := newFlowScope(nil)
	// The runtime seeds $input_prompt with the run's input.
	scope.bind("input_prompt")
	a.resolveStmts(fl.Body, scope)
}

func (a *analyzer) resolveStmts(stmts []ast.Stmt, scope *flowScope) {
	for _, s := range stmts {
		a.resolveStmt(s, scope)
	}
}

func (a *analyzer) resolveStmt(s ast.Stmt, scope *flowScope) {
	switch v := s.(type) {
	case *ast.AssignStmt:
		a.resolveExpr(v.Value, scope)
		scope.bind(v.Target)
	case *ast.PropertyAssignStmt:
		a.resolveExpr(v.Value, scope)
		if !scope.has(v.Target) {
			a.diags.Errorf(diag.EUnresolvedName, v.Span, "unresolved variable $%s", v.Target)
		}
	case *ast.RunStmt:
		if v.IsFlow {
			if _, ok := a.res.Flows[v.Agent]; !ok {
				a.diags.Errorf(diag.EUnresolvedName, v.Span, "unresolved flow %q", v.Agent)
			}
		} else if _, ok := a.res.Agents[v.Agent]; !ok {
			a.diags.Errorf(diag.EUnresolvedName, v.Span, "unresolved agent %q", v.Agent)
		}
		if v.With != nil {
			a.resolveExpr(v.With, scope)
		}
		if v.OnEscalate != nil {
			a.checkRunEscalateHandler(v)
			if v.OnEscalate.Value != nil {
				a.resolveExpr(v.OnEscalate.Value, scope)
			}
		}
		if v.Result != "" {
			scope.bind(v.Result)
		}
	case *ast.CallStmt:
		if _, ok := a.res.Prompts[v.Prompt]; !ok {
			a.diags.Errorf(diag.EUnresolvedName, v.Span, "unresolved prompt %q", v.Prompt)
		}
		if v.With != nil {
			a.resolveExpr(v.With, scope)
		}
		if v.Result != "" {
			scope.bind(v.Result)
		}
	case *ast.ReturnStmt:
		if v.Value != nil {
			a.resolveExpr(v.Value, scope)
		}
	case *ast.PushStmt:
		a.resolveExpr(v.Value, scope)
		if !scope.has(v.Target) {
			a.diags.Errorf(diag.EUnresolvedName, v.Span, "unresolved variable $%s", v.Target)
		}
	case *ast.ForStmt:
		a.resolveExpr(v.Iter, scope)
		child := newFlowScope(scope)
		child.bind(v.Var)
		a.resolveStmts(v.Body, child)
	case *ast.LoopStmt:
		child := newFlowScope(scope)
		a.resolveStmts(v.Body, child)
	case *ast.ParallelStmt:
		for _, branch := range v.Branches {
			child := newFlowScope(scope)
			a.resolveStmts(branch, child)
		}
	case *ast.MatchStmt:
		a.resolveExpr(v.Subject, scope)
		for _, c := range v.Cases {
			a.resolveExpr(c.Cond, scope)
			child := newFlowScope(scope)
			a.resolveStmts(c.Body, child)
		}
		if v.Else != nil {
			child := newFlowScope(scope)
			a.resolveStmts(v.Else, child)
		}
	case *ast.IfStmt:
		a.resolveExpr(v.Cond, scope)
		child := newFlowScope(scope)
		a.resolveStmts(v.Then, child)
		if v.Else != nil {
			elseChild := newFlowScope(scope)
			a.resolveStmts(v.Else, elseChild)
		}
	case *ast.FailureStmt:
		child := newFlowScope(scope)
		a.resolveStmts(v.Body, child)
	case *ast.EscalateStmt:
		// no-op: action targets are free-form strings, not resolved names.
	case *ast.ExprStmt:
		a.resolveExpr(v.Value, scope)
	}
}

func (a *analyzer) resolveExpr(e ast.Expr, scope *flowScope) {
	switch v := e.(type) {
	case *ast.VarRef:
		if !scope.has(v.Name) {
			a.diags.Errorf(diag.EUnresolvedName, v.Span, "unresolved variable $%s", v.Name)
		}
	case *ast.ImplicitProperty:
		if !scope.inFilterPredicate() {
			a.diags.Errorf(diag.EUnresolvedName, v.Span, "%q is only valid inside a filter predicate", "."+v.Property)
		}
	case *ast.PropertyAccess:
		a.resolveExpr(v.Base, scope)
	case *ast.IndexAccess:
		a.resolveExpr(v.Base, scope)
		a.resolveExpr(v.Index, scope)
	case *ast.ListLit:
		for _, el := range v.Elems {
			a.resolveExpr(el, scope)
		}
	case *ast.MapLit:
		for _, entry := range v.Entries {
			a.resolveExpr(entry.Value, scope)
		}
	case *ast.BinaryExpr:
		a.resolveExpr(v.Left, scope)
		a.resolveExpr(v.Right, scope)
	case *ast.UnaryExpr:
		a.resolveExpr(v.Operand, scope)
	case *ast.CallExpr:
		a.resolveExpr(v.Callee, scope)
		for _, arg := range v.Args {
			a.resolveExpr(arg.Value, scope)
		}
	case *ast.FilterExpr:
		a.resolveExpr(v.Source, scope)
		child := newFlowScope(scope)
		child.inFilter = true
		a.resolveExpr(v.Predicate, child)
	}
}

// selectEntryPoint applies entry-point rule in order: a flow
// named "main", then "default", then an agent named "main" or "default",
// then — only if the file declares exactly one agent and no flow at all —
// that single agent as a fallback. Anything else is ENoEntryPoint.
func (a *analyzer) selectEntryPoint() {
	if _, ok := a.res.Flows["main"]; ok {
		a.res.Entry = EntryPoint{Kind: EntryFlow, Name: "main"}
		return
	}
	if _, ok := a.res.Flows["default"]; ok {
		a.res.Entry = EntryPoint{Kind: EntryFlow, Name: "default"}
		return
	}
	if _, ok := a.res.Agents["main"]; ok {
		a.res.Entry = EntryPoint{Kind: EntryAgent, Name: "main"}
		return
	}
	if _, ok := a.res.Agents["default"]; ok {
		a.res.Entry = EntryPoint{Kind: EntryAgent, Name: "default"}
		return
	}
	if len(a.res.Flows) == 0 && len(a.res.Agents) == 1 {
		for name := range a.res.Agents {
			a.res.Entry = EntryPoint{Kind: EntryAgent, Name: name}
			return
		}
	}
	a.res.Entry = EntryPoint{Kind: EntryNone}
	a.diags.Errorf(diag.ENoEntryPoint, token.Span{}, "no entry point: declare a flow named 'main', or exactly one agent")
}
