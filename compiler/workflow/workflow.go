// Package workflow defines the compiled, source-independent representation
// that lang/sema's validated AST lowers into. Everything here is plain
// data: no behavior, no references back to the AST, so the runtime
// packages can consume it without ever importing lang/*.
package workflow

import "github.com/streetrace-ai/streetrace/lang/token"

// Workflow is the fully compiled program: every declaration folded into its
// runtime-facing shape, plus the SourceMap needed to translate runtime
// errors back to source spans.
type Workflow struct {
	Models map[string]ModelSpec
	Schemas map[string]SchemaSpec
	Tools map[string]ToolSpec
	Prompts map[string]PromptSpec
	Policies map[string]PolicySpec
	Agents map[string]AgentSpec
	Flows map[string]FlowProgram
	Entry EntryPoint

	SourceMap *SourceMap
}

// EntryKind mirrors lang/sema.EntryKind without importing lang/sema.
type EntryKind int

const (
	EntryNone EntryKind = iota
	EntryFlow
	EntryAgent
)

// EntryPoint names the declaration the runtime begins execution from.
type EntryPoint struct {
	Kind EntryKind
	Name string
}

// ModelSpec is a compiled `model` declaration.
type ModelSpec struct {
	Name string
	Provider string
	Version string
	Params map[string]Value
}

// SchemaSpec is a compiled `schema` declaration: a flat field list with
// type sketches resolved to FieldType values.
type SchemaSpec struct {
	Name string
	Fields []FieldSpec
}

// FieldSpec is one field of a SchemaSpec.
type FieldSpec struct {
	Name string
	Type FieldType
	Optional bool
}

// FieldType is the compiled counterpart of lang/ast.SchemaType.
type FieldType struct {
	// Kind is one of "string", "int", "float", "bool", "any", "list", "ref".
	Kind string
	Elem *FieldType // set when Kind == "list"
	Ref string // set when Kind == "ref"
}

// ToolSpec is a compiled `tool` declaration.
type ToolSpec struct {
	Name string
	// Kind is one of "builtin", "source".
	Kind string
	Source string
	Description string
	Params map[string]Value
	Produces *FieldType
}

// PromptSpec is a compiled, fully merged `prompt` declaration.
type PromptSpec struct {
	Name string
	Body string
	// CacheBoundary is a supplemental, additive field (see SPEC_FULL.md
	// "Cache policy"): set when a `policy cache` declaration names this
	// prompt's boundary trigger. Empty means no cache checkpoint.
	CacheBoundary string
	// Escalation is set when the source prompt carries `escalate if <op>
	// "<value>"`. Nil means the prompt never
	// triggers escalation.
	Escalation *PromptEscalation
}

// PromptEscalation is the compiled form of ast.EscalationSpec.
type PromptEscalation struct {
	// Op is one of "~", "==", "!=", "contains".
	Op string
	Value string
}

// PolicySpec is a compiled `policy` declaration.
type PolicySpec struct {
	Name string
	// Kind is one of "retry", "timeout", "cache".
	Kind string
	Retry *RetryPolicy
	Timeout *TimeoutPolicy
	Cache *CachePolicy
}

// RetryPolicy is the compiled form of a `policy retry` body.
type RetryPolicy struct {
	MaxAttempts int
	Backoff BackoffSpec
}

// BackoffSpec describes the retry delay schedule.
type BackoffSpec struct {
	// Strategy is one of "exponential", "linear", "fixed".
	Strategy string
	Base Duration
}

// TimeoutPolicy is the compiled form of a `policy timeout` body.
type TimeoutPolicy struct {
	Duration Duration
}

// CachePolicy is the compiled form of a `policy cache` body.
type CachePolicy struct {
	// Trigger is one of "after_system", "after_tools".
	Trigger string
}

// Duration is a compiled literal duration, keeping the value and unit as
// written in the source.
type Duration struct {
	Value int
	Unit string // "seconds", "minutes", "hours"
}

// AgentSpec is a compiled `agent` declaration.
type AgentSpec struct {
	Name string
	Model string
	Tools []string
	Instruction string // resolved prompt name, or inline body text
	InstructionIsInline bool
	Produces *FieldType
	Escalation []EscalationRule
	Policies []string
}

// EscalationRule is a compiled escalation clause.
type EscalationRule struct {
	Condition Condition
	Action EscalationAction
}

// Condition is the compiled form of an escalation predicate.
type Condition struct {
	// Op is one of "~", "==", "!=", "contains", "and", "or", "not".
	Op string
	Left *Condition
	Right *Condition
	// LeftValue and RightValue are set on leaf "~"/"=="/"!="/"contains" conditions: the raw
	// left/right value expressions, compiled to runtime-evaluable form by
	// runtime/flow at execution time (kept here as opaque Value trees).
	LeftValue Value
	RightValue Value
}

// EscalationAction is the compiled form of ast.EscalationAction.
type EscalationAction struct {
	// Kind is one of "human", "log", "notify".
	Kind string
	Target string
	Message string
}

// FlowProgram is a compiled `flow` body: an instruction sequence in which
// control-flow instructions carry their nested bodies (Then/Else/Body/
// Branches), walked recursively by the interpreter.
type FlowProgram struct {
	Name string
	Instructions []Instruction
}

// Instruction is the closed sum type of compiled flow opcodes.
type Instruction interface {
	instructionNode()
}

// Assignment compiles ast.AssignStmt.
type Assignment struct {
	Target string
	Value Value
	Span token.Span
}

func (Assignment) instructionNode() {}

// PropertyAssignment compiles ast.PropertyAssignStmt.
type PropertyAssignment struct {
	Target string
	Property string
	Value Value
	Span token.Span
}

func (PropertyAssignment) instructionNode() {}

// RunInstruction compiles ast.RunStmt.
type RunInstruction struct {
	Agent string
	IsFlow bool
	With Value // nil defaults to $input_prompt
	OnEscalate *RunEscalateHandler
	Result string
	Span token.Span
}

func (RunInstruction) instructionNode() {}

// RunEscalateHandler is the compiled form of ast.RunEscalateHandler.
type RunEscalateHandler struct {
	// Kind is one of "return", "continue", "abort".
	Kind string
	Value Value // set only when Kind == "return"
}

// CallInstruction compiles ast.CallStmt: a direct LLM call against a named
// prompt.
type CallInstruction struct {
	Prompt string
	With Value
	Result string
	Span token.Span
}

func (CallInstruction) instructionNode() {}

// ReturnInstruction compiles ast.ReturnStmt.
type ReturnInstruction struct {
	Value Value
	Span token.Span
}

func (ReturnInstruction) instructionNode() {}

// PushInstruction compiles ast.PushStmt.
type PushInstruction struct {
	Value Value
	Target string
	Span token.Span
}

func (PushInstruction) instructionNode() {}

// ForLoop compiles ast.ForStmt.
type ForLoop struct {
	Var string
	Iter Value
	Body []Instruction
	Span token.Span
}

func (ForLoop) instructionNode() {}

// LoopBlock compiles ast.LoopStmt: bounded iteration independent of any
// collection. Max == 0 means the unbounded form; the
// runtime interpreter applies an implementation-defined ceiling in that
// case rather than looping forever.
type LoopBlock struct {
	Max int
	Body []Instruction
	Span token.Span
}

func (LoopBlock) instructionNode() {}

// ParallelBlock compiles ast.ParallelStmt.
type ParallelBlock struct {
	Branches [][]Instruction
	Span token.Span
}

func (ParallelBlock) instructionNode() {}

// MatchBlock compiles ast.MatchStmt.
type MatchBlock struct {
	Subject Value
	Cases []MatchCase
	Else []Instruction
	Span token.Span
}

func (MatchBlock) instructionNode() {}

// MatchCase is one compiled `when` arm.
type MatchCase struct {
	Cond Value
	Body []Instruction
}

// IfBlock compiles ast.IfStmt.
type IfBlock struct {
	Cond Value
	Then []Instruction
	Else []Instruction
	Span token.Span
}

func (IfBlock) instructionNode() {}

// FailureBlock compiles ast.FailureStmt.
type FailureBlock struct {
	Body []Instruction
	Span token.Span
}

func (FailureBlock) instructionNode() {}

// EscalateInstruction compiles a bare ast.EscalateStmt used inline in a
// flow body.
type EscalateInstruction struct {
	Action EscalationAction
	Span token.Span
}

func (EscalateInstruction) instructionNode() {}

// ExprInstruction compiles ast.ExprStmt: an expression evaluated for effect.
type ExprInstruction struct {
	Value Value
	Span token.Span
}

func (ExprInstruction) instructionNode() {}

// SourceMap associates every compiled Instruction/declaration span with its
// origin in the source file, by storing the original token.Span alongside
// a monotonically increasing instruction ID. Runtime errors report the ID;
// the CLI resolves it back to "file:line:col" via this map.
type SourceMap struct {
	File string
	Spans map[int]token.Span
	next int
}

// NewSourceMap creates an empty SourceMap for the named file.
func NewSourceMap(file string) *SourceMap {
	return &SourceMap{File: file, Spans: map[int]token.Span{}}
}

// Record assigns the next instruction ID to span and returns it.
func (m *SourceMap) Record(span token.Span) int {
	id := m.next
	m.Spans[id] = span
	m.next++
	return id
}

// Lookup returns the span recorded for id, if any.
func (m *SourceMap) Lookup(id int) (token.Span, bool) {
	s, ok := m.Spans[id]
	return s, ok
}
