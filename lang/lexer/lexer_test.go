package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/lang/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.Kind)
	}
	return out
}

func TestTokenizeSimpleAssignment(t *testing.T) {
	toks, diags := Tokenize("t.sr", []byte("$x = 1\n"))
	require.False(t, diags.HasErrors())
	require.Equal(t, []token.Kind{
		token.VARIABLE, token.ASSIGN, token.INT, token.NEWLINE, token.EOF,
	}, kinds(toks))
	require.Equal(t, "x", toks[0].Text)
	require.Equal(t, "1", toks[2].Text)
}

func TestTokenizeIndentDedent(t *testing.T) {
	src := "flow main:\n $x = 1\n $y = 2\nflow other:\n $z = 3\n"
	toks, diags := Tokenize("t.sr", []byte(src))
	require.False(t, diags.HasErrors())
	k := kinds(toks)
	require.Contains(t, k, token.INDENT)
	require.Contains(t, k, token.DEDENT)
	// Exactly one INDENT/DEDENT pair per flow body, both balanced overall.
	var depth, maxDepth int
	for _, kind := range k {
		switch kind {
		case token.INDENT:
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case token.DEDENT:
			depth--
		}
	}
	require.Equal(t, 0, depth)
	require.Equal(t, 1, maxDepth)
}

func TestTokenizeNestedIndentation(t *testing.T) {
	src := "flow main:\n  if $x:\n    $y = 1\n  $z = 2\n"
	toks, diags := Tokenize("t.sr", []byte(src))
	require.False(t, diags.HasErrors())
	var depth, maxDepth int
	for _, tt := range toks {
		switch tt.Kind {
		case token.INDENT:
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case token.DEDENT:
			depth--
		}
	}
	require.Equal(t, 0, depth)
	require.Equal(t, 2, maxDepth)
}

func TestTokenizeTabsRejected(t *testing.T) {
	_, diags := Tokenize("t.sr", []byte("flow main:\n\t$x = 1\n"))
	require.True(t, diags.HasErrors())
}

func TestTokenizeTripleQuotedString(t *testing.T) {
	src := "prompt greet:\n \"\"\"Hello ${name}\n multi-line\"\"\"\n"
	toks, diags := Tokenize("t.sr", []byte(src))
	require.False(t, diags.HasErrors())
	var found bool
	for _, tt := range toks {
		if tt.Kind == token.TRIPLE {
			found = true
			require.Contains(t, tt.Text, "Hello ${name}")
			require.Contains(t, tt.Text, "multi-line")
		}
	}
	require.True(t, found, "expected a TRIPLE token")
}

func TestTokenizeVariableFusion(t *testing.T) {
	toks, diags := Tokenize("t.sr", []byte("$input_prompt\n"))
	require.False(t, diags.HasErrors())
	require.Equal(t, token.VARIABLE, toks[0].Kind)
	require.Equal(t, "input_prompt", toks[0].Text)
}

func TestTokenizeProviderModelAndVersion(t *testing.T) {
	toks, diags := Tokenize("t.sr", []byte("model gpt: openai/gpt-4o v1\n"))
	require.False(t, diags.HasErrors())
	var gotProvider, gotVersion bool
	for _, tt := range toks {
		if tt.Kind == token.PROVIDER_MODEL {
			gotProvider = true
			require.Equal(t, "openai/gpt-4o", tt.Text)
		}
		if tt.Kind == token.VERSION {
			gotVersion = true
			require.Equal(t, "v1", tt.Text)
		}
	}
	require.True(t, gotProvider)
	require.True(t, gotVersion)
}

func TestTokenizeKeywordsAndIdentsDistinguished(t *testing.T) {
	toks, diags := Tokenize("t.sr", []byte("agent loop\n"))
	require.False(t, diags.HasErrors())
	require.Equal(t, token.AGENT, toks[0].Kind)
	// "loop" is not a reserved word; it must lex as a plain identifier.
	require.Equal(t, token.IDENT, toks[1].Kind)
	require.Equal(t, "loop", toks[1].Text)
}

func TestTokenizeComparisonOperators(t *testing.T) {
	toks, diags := Tokenize("t.sr", []byte("== != <= >= < > ~ = ->\n"))
	require.False(t, diags.HasErrors())
	require.Equal(t, []token.Kind{
		token.EQ, token.NEQ, token.LE, token.GE, token.LT, token.GT,
		token.TILDE, token.ASSIGN, token.ARROW, token.NEWLINE, token.EOF,
	}, kinds(toks))
}

func TestTokenizeBlankLinesInsideBracketsElideNewlines(t *testing.T) {
	src := "$x = [\n 1,\n 2,\n]\n"
	toks, diags := Tokenize("t.sr", []byte(src))
	require.False(t, diags.HasErrors())
	k := kinds(toks)
	// Newlines inside [...] must not appear as NEWLINE tokens.
	count := 0
	for _, kind := range k {
		if kind == token.NEWLINE {
			count++
		}
	}
	require.Equal(t, 1, count, "only the trailing top-level newline should survive")
}
