package workflow

// Value is the compiled counterpart of lang/ast.Expr: an expression tree
// the runtime evaluates against a flow's variable bindings. It is decoupled
// from lang/ast so runtime/flow never imports the compiler front end.
type Value interface {
	valueNode()
}

// Literal wraps a constant scalar: string, int64, float64, bool, or nil.
type Literal struct {
	V any
}

func (Literal) valueNode() {}

// VarRefValue reads a flow variable by name.
type VarRefValue struct {
	Name string
}

func (VarRefValue) valueNode() {}

// ImplicitPropertyValue reads a field off the element a FilterValue is
// currently testing, compiled from a `.field` reference in the source
// predicate.
type ImplicitPropertyValue struct {
	Property string
}

func (ImplicitPropertyValue) valueNode() {}

// PropertyValue reads a field off the result of evaluating Base.
type PropertyValue struct {
	Base Value
	Property string
}

func (PropertyValue) valueNode() {}

// IndexValue reads an element or key off the result of evaluating Base.
type IndexValue struct {
	Base Value
	Index Value
}

func (IndexValue) valueNode() {}

// ListValue is a compiled list literal.
type ListValue struct {
	Elems []Value
}

func (ListValue) valueNode() {}

// MapValue is a compiled map literal.
type MapValue struct {
	Entries map[string]Value
	// Order preserves declaration order for deterministic re-serialization
	// (e.g. when a map value is logged or hashed for a cache key).
	Order []string
}

func (MapValue) valueNode() {}

// BinaryValue is a compiled two-operand expression.
type BinaryValue struct {
	Op string
	Left Value
	Right Value
}

func (BinaryValue) valueNode() {}

// UnaryValue is a compiled single-operand expression.
type UnaryValue struct {
	Op string
	Operand Value
}

func (UnaryValue) valueNode() {}

// CallValue is a compiled inline call expression (used in filter predicates
// and similar expression contexts, as distinct from a top-level
// RunInstruction/CallInstruction).
type CallValue struct {
	Callee string
	Args map[string]Value
}

func (CallValue) valueNode() {}

// FilterValue is a compiled `filter ... where ...` expression.
type FilterValue struct {
	Source Value
	Predicate Value
}

func (FilterValue) valueNode() {}
