package ast

import "github.com/streetrace-ai/streetrace/lang/token"

// Expr is the closed sum type of value-producing expressions.
type Expr interface {
	exprNode()
	Spanner
}

// Ident is a bare identifier reference (declaration name, not a variable).
type Ident struct {
	Name string
	Span token.Span
}

func (*Ident) exprNode() {}
func (e *Ident) SourceSpan() token.Span { return e.Span }

// VarRef is a `$name` variable reference.
type VarRef struct {
	Name string
	Span token.Span
}

func (*VarRef) exprNode() {}
func (e *VarRef) SourceSpan() token.Span { return e.Span }

// PropertyAccess is `<expr>.field`, e.g. `$result.summary`.
type PropertyAccess struct {
	Base Expr
	Property string
	Span token.Span
}

func (*PropertyAccess) exprNode() {}
func (e *PropertyAccess) SourceSpan() token.Span { return e.Span }

// ImplicitProperty is a leading `.field` reference inside a filter
// predicate, e.g. `.age` in `filter $people where .age > 18`. It binds to
// whatever element a FilterExpr is currently testing rather than naming a
// flow variable, so it is only valid inside that predicate.
type ImplicitProperty struct {
	Property string
	Span token.Span
}

func (*ImplicitProperty) exprNode() {}
func (e *ImplicitProperty) SourceSpan() token.Span { return e.Span }

// IndexAccess is `<expr>[<expr>]`, list/map indexing.
type IndexAccess struct {
	Base Expr
	Index Expr
	Span token.Span
}

func (*IndexAccess) exprNode() {}
func (e *IndexAccess) SourceSpan() token.Span { return e.Span }

// IntLit is an integer literal.
type IntLit struct {
	Value int64
	Span token.Span
}

func (*IntLit) exprNode() {}
func (e *IntLit) SourceSpan() token.Span { return e.Span }

// FloatLit is a floating-point literal.
type FloatLit struct {
	Value float64
	Span token.Span
}

func (*FloatLit) exprNode() {}
func (e *FloatLit) SourceSpan() token.Span { return e.Span }

// StringLit is a single- or double-quoted string literal.
type StringLit struct {
	Value string
	Span token.Span
}

func (*StringLit) exprNode() {}
func (e *StringLit) SourceSpan() token.Span { return e.Span }

// TripleStringLit is a triple-quoted multi-line string, used for prompt and
// instruction bodies.
type TripleStringLit struct {
	Value string
	Span token.Span
}

func (*TripleStringLit) exprNode() {}
func (e *TripleStringLit) SourceSpan() token.Span { return e.Span }

// BoolLit is `true` or `false`.
type BoolLit struct {
	Value bool
	Span token.Span
}

func (*BoolLit) exprNode() {}
func (e *BoolLit) SourceSpan() token.Span { return e.Span }

// NullLit is the `null` literal.
type NullLit struct {
	Span token.Span
}

func (*NullLit) exprNode() {}
func (e *NullLit) SourceSpan() token.Span { return e.Span }

// ListLit is a `[a, b, c]` literal.
type ListLit struct {
	Elems []Expr
	Span token.Span
}

func (*ListLit) exprNode() {}
func (e *ListLit) SourceSpan() token.Span { return e.Span }

// MapLit is a `{k: v, ...}` literal.
type MapLit struct {
	Entries []MapEntry
	Span token.Span
}

func (*MapLit) exprNode() {}
func (e *MapLit) SourceSpan() token.Span { return e.Span }

// MapEntry is one `key: value` pair of a MapLit.
type MapEntry struct {
	Key string
	Value Expr
	Span token.Span
}

// BinaryExpr is a two-operand expression: comparison, `contains`, or
// arithmetic.
type BinaryExpr struct {
	// Op is one of "==", "!=", "<", ">", "<=", ">=", "contains", "~",
	// "and", "or", "+", "-", "*", "/".
	Op string
	Left Expr
	Right Expr
	Span token.Span
}

func (*BinaryExpr) exprNode() {}
func (e *BinaryExpr) SourceSpan() token.Span { return e.Span }

// UnaryExpr is a single-operand expression: `not <expr>` or `-<expr>`.
type UnaryExpr struct {
	Op string
	Operand Expr
	Span token.Span
}

func (*UnaryExpr) exprNode() {}
func (e *UnaryExpr) SourceSpan() token.Span { return e.Span }

// CallExpr is a tool/function-style call used within an expression context,
// e.g. inside a `filter ... where <expr>` clause.
type CallExpr struct {
	Callee Expr
	Args []Param
	Span token.Span
}

func (*CallExpr) exprNode() {}
func (e *CallExpr) SourceSpan() token.Span { return e.Span }

// FilterExpr is `filter <expr> where <expr>`: a predicate filter over a list
// expression, with the per-element predicate referring to the element via a
// leading `.field` (ImplicitProperty) rather than a named variable.
type FilterExpr struct {
	Source Expr
	Predicate Expr
	Span token.Span
}

func (*FilterExpr) exprNode() {}
func (e *FilterExpr) SourceSpan() token.Span { return e.Span }
