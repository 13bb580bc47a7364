package ast

import "github.com/streetrace-ai/streetrace/lang/token"

// Stmt is the closed sum type of flow-body statements.
type Stmt interface {
	stmtNode()
	Spanner
}

// AssignStmt is `$x = <expr>`.
type AssignStmt struct {
	Target string
	Value Expr
	Span token.Span
}

func (*AssignStmt) stmtNode() {}
func (s *AssignStmt) SourceSpan() token.Span { return s.Span }

// PropertyAssignStmt is `$x.field = <expr>`.
type PropertyAssignStmt struct {
	Target string
	Property string
	Value Expr
	Span token.Span
}

func (*PropertyAssignStmt) stmtNode() {}
func (s *PropertyAssignStmt) SourceSpan() token.Span { return s.Span }

// RunStmt is `run agent|flow NAME [with <expr>] [, on escalate <handler>]
// [-> $result]`: invoke a declared agent (is_flow=false) or a declared flow
// recursively (is_flow=true).
type RunStmt struct {
	Agent string
	IsFlow bool
	With Expr // the `with <expr>` input, or nil to default to $input_prompt
	OnEscalate *RunEscalateHandler
	Result string // assigned variable name, or "" if discarded
	Span token.Span
}

func (*RunStmt) stmtNode() {}
func (s *RunStmt) SourceSpan() token.Span { return s.Span }

// RunEscalateHandler is the `on escalate <action>` clause attached to a
// RunStmt, naming what happens when the invoked agent's
// EscalationSpec fires.
type RunEscalateHandler struct {
	// Kind is one of "return", "continue", "abort".
	Kind string
	Value Expr // set only when Kind == "return"
	Span token.Span
}

// CallStmt is `call llm PROMPT [with <expr>] [-> $result]`: a direct LLM
// call against a named prompt, bypassing the agent pipeline (no tools, no
// escalation check, no schema validation loop beyond the prompt's own).
type CallStmt struct {
	Prompt string
	With Expr
	Result string
	Span token.Span
}

func (*CallStmt) stmtNode() {}
func (s *CallStmt) SourceSpan() token.Span { return s.Span }

// ReturnStmt is `return <expr>`: ends the enclosing flow with a value.
type ReturnStmt struct {
	Value Expr
	Span token.Span
}

func (*ReturnStmt) stmtNode() {}
func (s *ReturnStmt) SourceSpan() token.Span { return s.Span }

// PushStmt is `push <expr> to $list`: appends a value to a list variable.
type PushStmt struct {
	Value Expr
	Target string
	Span token.Span
}

func (*PushStmt) stmtNode() {}
func (s *PushStmt) SourceSpan() token.Span { return s.Span }

// ForStmt is `for $item in <expr>: ...`: iterates a list expression.
type ForStmt struct {
	Var string
	Iter Expr
	Body []Stmt
	Span token.Span
}

func (*ForStmt) stmtNode() {}
func (s *ForStmt) SourceSpan() token.Span { return s.Span }

// LoopStmt is `loop [max N] do ... end`: bounded iteration.
// Max == 0 means the unbounded form, which the interpreter still bounds at
// an implementation-defined ceiling and flags with a warning event when that
// ceiling is hit.
type LoopStmt struct {
	Max int
	Body []Stmt
	Span token.Span
}

func (*LoopStmt) stmtNode() {}
func (s *LoopStmt) SourceSpan() token.Span { return s.Span }

// ParallelStmt is `parallel: ...`: runs each child block concurrently and
// joins before continuing.
type ParallelStmt struct {
	Branches [][]Stmt
	Span token.Span
}

func (*ParallelStmt) stmtNode() {}
func (s *ParallelStmt) SourceSpan() token.Span { return s.Span }

// MatchStmt is `match <expr>: when ... else ...`.
type MatchStmt struct {
	Subject Expr
	Cases []MatchCase
	Else []Stmt
	Span token.Span
}

func (*MatchStmt) stmtNode() {}
func (s *MatchStmt) SourceSpan() token.Span { return s.Span }

// MatchCase is one `when <expr>: ...` arm of a MatchStmt.
type MatchCase struct {
	Cond Expr
	Body []Stmt
	Span token.Span
}

// IfStmt is `if <expr>: ... else: ...`.
type IfStmt struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
	Span token.Span
}

func (*IfStmt) stmtNode() {}
func (s *IfStmt) SourceSpan() token.Span { return s.Span }

// FailureStmt is `failure: ...`: a block that catches ToolError/LlmError
// raised by statements in the enclosing scope.
type FailureStmt struct {
	Body []Stmt
	Span token.Span
}

func (*FailureStmt) stmtNode() {}
func (s *FailureStmt) SourceSpan() token.Span { return s.Span }

// EscalateStmt is a bare `escalate ...` statement used directly in a flow
// body (as opposed to an AgentDecl's attached EscalationClause).
type EscalateStmt struct {
	Action EscalationAction
	Span token.Span
}

func (*EscalateStmt) stmtNode() {}
func (s *EscalateStmt) SourceSpan() token.Span { return s.Span }

// ExprStmt wraps a bare expression evaluated for effect, e.g. a tool call
// used for its side effects with no assignment.
type ExprStmt struct {
	Value Expr
	Span token.Span
}

func (*ExprStmt) stmtNode() {}
func (s *ExprStmt) SourceSpan() token.Span { return s.Span }
