// Package ast defines the abstract syntax tree produced by lang/parser.
// Every node carries a Span so diagnostics and the code generator's
// SourceMap can point back at the originating source text.
package ast

import "github.com/streetrace-ai/streetrace/lang/token"

// File is the root node of a single parsed source file: an ordered sequence
// of top-level declarations.
type File struct {
	// Name is the file's logical module name, derived from its path.
	Name string
	// Decls holds every top-level declaration in source order.
	Decls []Decl
	Span token.Span
}

// Decl is the closed sum type of top-level declarations.
type Decl interface {
	declNode()
	Spanner
}

// Spanner is implemented by every AST node; it exposes the node's source span.
type Spanner interface {
	SourceSpan() token.Span
}

// ImportDecl is an `import X from "path"` declaration.
type ImportDecl struct {
	// Name is the bound identifier the import is referenced by.
	Name string
	// Path is the imported module's source path string.
	Path string
	Span token.Span
}

func (*ImportDecl) declNode() {}
func (d *ImportDecl) SourceSpan() token.Span { return d.Span }

// ModelDecl declares a named LLM model binding, in either short form
// (`model gpt: openai/gpt-4o`) or long form (`model gpt:` block).
type ModelDecl struct {
	// Name is the declared model identifier.
	Name string
	// Provider is the provider/model-id pair, e.g. "openai/gpt-4o".
	Provider string
	// Version is an optional API version pin, e.g. "v1".
	Version string
	// Params holds long-form `with` parameters (temperature, max_tokens, ...).
	Params []Param
	Span token.Span
}

func (*ModelDecl) declNode() {}
func (d *ModelDecl) SourceSpan() token.Span { return d.Span }

// SchemaDecl declares a named output/input shape used for validation.
type SchemaDecl struct {
	Name string
	Fields []SchemaField
	Span token.Span
}

func (*SchemaDecl) declNode() {}
func (d *SchemaDecl) SourceSpan() token.Span { return d.Span }

// SchemaField is a single field of a SchemaDecl.
type SchemaField struct {
	Name string
	Type SchemaType
	Optional bool
	Span token.Span
}

// SchemaType is the closed sum type of field type sketches: base types,
// lists, and references to other declared schemas.
type SchemaType interface {
	schemaTypeNode()
	Spanner
}

// BaseType is one of the scalar type names: string, int, float, bool, any.
type BaseType struct {
	Name string
	Span token.Span
}

func (*BaseType) schemaTypeNode() {}
func (t *BaseType) SourceSpan() token.Span { return t.Span }

// ListType is `[T]`, a homogeneous list of some element type.
type ListType struct {
	Elem SchemaType
	Span token.Span
}

func (*ListType) schemaTypeNode() {}
func (t *ListType) SourceSpan() token.Span { return t.Span }

// RefType refers to another named SchemaDecl by name.
type RefType struct {
	Name string
	Span token.Span
}

func (*RefType) schemaTypeNode() {}
func (t *RefType) SourceSpan() token.Span { return t.Span }

// ToolDecl declares a callable tool, either builtin, a local script/MCP
// source, or a fully inline definition with its own schema.
type ToolDecl struct {
	Name string
	// Kind is one of "builtin", "source" (local/pip/mcp URI), or "inline".
	Kind string
	// Source is the builtin name or URI, depending on Kind.
	Source string
	Description string
	Params []Param
	Produces SchemaType
	Span token.Span
}

func (*ToolDecl) declNode() {}
func (d *ToolDecl) SourceSpan() token.Span { return d.Span }

// PromptDecl declares a named, possibly forward-declared, prompt body that
// later `prompt NAME:` blocks merge into.
type PromptDecl struct {
	Name string
	Body string // raw, possibly merged, triple-string text
	Merges []string
	Escalate *EscalationSpec
	Span token.Span
}

func (*PromptDecl) declNode() {}
func (d *PromptDecl) SourceSpan() token.Span { return d.Span }

// EscalationSpec is a prompt-attached `escalate if <op> "<value>"` clause
//, checked against an agent's final output text after each
// call using this prompt as its instruction.
type EscalationSpec struct {
	// Op is one of "~", "==", "!=", "contains".
	Op string
	Value string
	Span token.Span
}

// PolicyDecl declares a reusable retry/timeout/cache policy block.
type PolicyDecl struct {
	Name string
	// Kind is one of "retry", "timeout", "cache".
	Kind string
	Retry *RetryPolicy
	Timeout *TimeoutPolicy
	Cache *CachePolicy
	Span token.Span
}

func (*PolicyDecl) declNode() {}
func (d *PolicyDecl) SourceSpan() token.Span { return d.Span }

// RetryPolicy is the body of a `policy retry` declaration.
type RetryPolicy struct {
	MaxAttempts int
	Backoff BackoffSpec
	Span token.Span
}

// BackoffSpec describes the delay schedule between retry attempts.
type BackoffSpec struct {
	// Strategy is one of "exponential", "linear", "fixed".
	Strategy string
	Base DurationLit
	Span token.Span
}

// TimeoutPolicy is the body of a `policy timeout` declaration.
type TimeoutPolicy struct {
	Duration DurationLit
	Span token.Span
}

// CachePolicy is the body of a `policy cache` declaration (supplemental
// feature: see SPEC_FULL.md). Trigger names where in the prompt a cache
// boundary is inserted.
type CachePolicy struct {
	// Trigger is one of "after_system", "after_tools".
	Trigger string
	Span token.Span
}

// DurationLit is a literal like `30 seconds` or `5 minutes`.
type DurationLit struct {
	Value int
	// Unit is one of "seconds", "minutes", "hours".
	Unit string
	Span token.Span
}

// AgentDecl declares a named agent: its model, tools, instruction prompt,
// output schema, and escalation rules.
type AgentDecl struct {
	Name string
	Model string
	Tools []string
	Instruction string // prompt name, or inline triple-string
	Produces SchemaType
	Escalation []EscalationClause
	Policies []string
	Span token.Span
}

func (*AgentDecl) declNode() {}
func (d *AgentDecl) SourceSpan() token.Span { return d.Span }

// EscalationClause is one `on <expr> escalate ...` rule attached to an agent.
type EscalationClause struct {
	Condition Expr
	Action EscalationAction
	Span token.Span
}

// EscalationAction is the closed sum type for what an escalation clause does:
// escalate to a human, log, or notify.
type EscalationAction interface {
	escalationActionNode()
	Spanner
}

// EscalateHuman hands control to a human operator.
type EscalateHuman struct {
	Message string
	Span token.Span
}

func (*EscalateHuman) escalationActionNode() {}
func (a *EscalateHuman) SourceSpan() token.Span { return a.Span }

// LogAction writes a structured log line.
type LogAction struct {
	Message string
	Span token.Span
}

func (*LogAction) escalationActionNode() {}
func (a *LogAction) SourceSpan() token.Span { return a.Span }

// NotifyAction sends an out-of-band notification.
type NotifyAction struct {
	Target string
	Message string
	Span token.Span
}

func (*NotifyAction) escalationActionNode() {}
func (a *NotifyAction) SourceSpan() token.Span { return a.Span }

// FlowDecl declares a named flow: an ordered list of statements forming the
// workflow's executable body.
type FlowDecl struct {
	Name string
	Body []Stmt
	Span token.Span
}

func (*FlowDecl) declNode() {}
func (d *FlowDecl) SourceSpan() token.Span { return d.Span }

// Param is a single `name: value` or `name=value` parameter pair used in
// long-form model/tool `with` blocks and in call-site argument lists.
type Param struct {
	Name string
	Value Expr
	Span token.Span
}
