// Package token defines the lexical tokens produced by lang/lexer and
// consumed by lang/parser.
package token

// Kind identifies the lexical category of a Token.
type Kind int

// Token kinds. Keywords are represented as their own Kind rather than as
// Ident + a lookup table, since the grammar treats reserved words as
// reserved rather than contextual identifiers.
const (
	Illegal Kind = iota
	EOF
	NEWLINE
	INDENT
	DEDENT

	// Literals and names.
	IDENT // plain identifier
	VARIABLE // $name (the $ is fused into the token, never a separate punctuator)
	DOTTED // a.b.c
	INT // 123
	FLOAT // 1.5
	STRING // 'x' or "x"
	TRIPLE // """x""" or '''x'''
	VERSION // v1, v1.2
	PROVIDER_MODEL // anthropic/claude-sonnet
	LOCAL_PATH // ./foo, /foo
	PIP_URI // pip:pkg
	MCP_URI // mcp://host

	// Punctuation.
	COLON // :
	COMMA // ,
	DOT // .
	DOLLAR // bare $ (only before fusion; should not normally escape the lexer)
	LPAREN // (
	RPAREN // )
	LBRACK // [
	RBRACK // ]
	LBRACE // {
	RBRACE // }
	ASSIGN // =
	ARROW // ->
	QUESTION // ?
	TILDE // ~
	EQ // ==
	NEQ // !=
	LT // <
	GT // >
	LE // <=
	GE // >=
	PLUS // +
	MINUS // -
	STAR // *
	SLASH // /

	keywordBeg
	MODEL
	SCHEMA
	TOOL
	AGENT
	FLOW
	PROMPT
	POLICY
	RETRY
	TIMEOUT
	IMPORT
	FROM
	ON
	AFTER
	DO
	END
	IF
	FOR
	IN
	PARALLEL
	MATCH
	WHEN
	ELSE
	RETURN
	PUSH
	TO
	RUN
	CALL
	LLM
	BLOCK
	MASK
	WARN
	WITH
	AUTH
	BEARER
	BASIC
	BUILTIN
	MCP
	USING
	EXPECTING
	INHERIT
	TIMES
	BACKOFF
	EXPONENTIAL
	LINEAR
	FIXED
	SECONDS
	MINUTES
	HOURS
	TRIGGER
	STRATEGY
	PRESERVE
	LAST
	MESSAGES
	RESULTS
	ESCALATE
	HUMAN
	LOG
	NOTIFY
	CONTINUE
	ABORT
	STEP
	FAILURE
	INITIAL
	CONTAINS
	TRUE
	FALSE
	NULL
	STREETRACE
	DESCRIPTION
	TOOLS
	INSTRUCTION
	PRODUCES
	FILTER
	WHERE
	AND
	OR
	NOT
	keywordEnd
)

// keywords maps every reserved word in the runtime to its Kind. Identifiers
// that aren't in this table lex as IDENT.
var keywords = map[string]Kind{
	"model": MODEL,
	"schema": SCHEMA,
	"tool": TOOL,
	"agent": AGENT,
	"flow": FLOW,
	"prompt": PROMPT,
	"policy": POLICY,
	"retry": RETRY,
	"timeout": TIMEOUT,
	"import": IMPORT,
	"from": FROM,
	"on": ON,
	"after": AFTER,
	"do": DO,
	"end": END,
	"if": IF,
	"for": FOR,
	"in": IN,
	"parallel": PARALLEL,
	"match": MATCH,
	"when": WHEN,
	"else": ELSE,
	"return": RETURN,
	"push": PUSH,
	"to": TO,
	"run": RUN,
	"call": CALL,
	"llm": LLM,
	"block": BLOCK,
	"mask": MASK,
	"warn": WARN,
	"with": WITH,
	"auth": AUTH,
	"bearer": BEARER,
	"basic": BASIC,
	"builtin": BUILTIN,
	"mcp": MCP,
	"using": USING,
	"expecting": EXPECTING,
	"inherit": INHERIT,
	"times": TIMES,
	"backoff": BACKOFF,
	"exponential": EXPONENTIAL,
	"linear": LINEAR,
	"fixed": FIXED,
	"seconds": SECONDS,
	"minutes": MINUTES,
	"hours": HOURS,
	"trigger": TRIGGER,
	"strategy": STRATEGY,
	"preserve": PRESERVE,
	"last": LAST,
	"messages": MESSAGES,
	"results": RESULTS,
	"escalate": ESCALATE,
	"human": HUMAN,
	"log": LOG,
	"notify": NOTIFY,
	"continue": CONTINUE,
	"abort": ABORT,
	"step": STEP,
	"failure": FAILURE,
	"initial": INITIAL,
	"contains": CONTAINS,
	"true": TRUE,
	"false": FALSE,
	"null": NULL,
	"streetrace": STREETRACE,
	"description": DESCRIPTION,
	"tools": TOOLS,
	"instruction": INSTRUCTION,
	"produces": PRODUCES,
	"filter": FILTER,
	"where": WHERE,
	"and": AND,
	"or": OR,
	"not": NOT,
}

// Lookup returns the Kind for word if it is a reserved keyword, else IDENT.
func Lookup(word string) Kind {
	if k, ok := keywords[word]; ok {
		return k
	}
	return IDENT
}

// IsKeyword reports whether k is one of the reserved words.
func IsKeyword(k Kind) bool {
	return k > keywordBeg && k < keywordEnd
}

// Position is a single point in a source file, 1-based line/column.
type Position struct {
	File string
	Line int
	Column int
	Offset int // byte offset into the source
}

// Span covers a half-open range of source text, from Start (inclusive) to
// End (exclusive). It is attached to every Token and, after lowering, to
// every AST node.
type Span struct {
	Start Position
	End Position
}

// Token is a single lexical unit produced by the lexer.
type Token struct {
	Kind Kind
	Text string // literal source text (for STRING/TRIPLE this excludes delimiters)
	Span Span
}

var names = map[Kind]string{
	Illegal: "ILLEGAL", EOF: "EOF", NEWLINE: "NEWLINE", INDENT: "INDENT", DEDENT: "DEDENT",
	IDENT: "IDENT", VARIABLE: "VARIABLE", DOTTED: "DOTTED_NAME", INT: "INT", FLOAT: "FLOAT",
	STRING: "STRING", TRIPLE: "TRIPLE_STRING", VERSION: "VERSION", PROVIDER_MODEL: "PROVIDER_MODEL",
	LOCAL_PATH: "LOCAL_PATH", PIP_URI: "PIP_URI", MCP_URI: "MCP_URI",
	COLON: "':'", COMMA: "','", DOT: "'.'", DOLLAR: "'$'", LPAREN: "'('", RPAREN: "')'",
	LBRACK: "'['", RBRACK: "']'", LBRACE: "'{'", RBRACE: "'}'", ASSIGN: "'='", ARROW: "'->'",
	QUESTION: "'?'", TILDE: "'~'", EQ: "'=='", NEQ: "'!='", LT: "'<'", GT: "'>'", LE: "'<='",
	GE: "'>='", PLUS: "'+'", MINUS: "'-'", STAR: "'*'", SLASH: "'/'",
}

// String renders a human-readable name for diagnostics, e.g. "','" or "IDENT".
func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	for word, kind := range keywords {
		if kind == k {
			return "'" + word + "'"
		}
	}
	return "UNKNOWN"
}
