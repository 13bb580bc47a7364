package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupKeyword(t *testing.T) {
	require.Equal(t, AGENT, Lookup("agent"))
	require.Equal(t, FLOW, Lookup("flow"))
	require.Equal(t, ESCALATE, Lookup("escalate"))
}

func TestLookupNonKeywordIsIdent(t *testing.T) {
	require.Equal(t, IDENT, Lookup("loop"))
	require.Equal(t, IDENT, Lookup("max"))
	require.Equal(t, IDENT, Lookup("cache"))
	require.Equal(t, IDENT, Lookup("whatever"))
}

func TestIsKeyword(t *testing.T) {
	require.True(t, IsKeyword(AGENT))
	require.True(t, IsKeyword(NOT))
	require.False(t, IsKeyword(IDENT))
	require.False(t, IsKeyword(EOF))
	require.False(t, IsKeyword(COLON))
}

func TestKindStringKnownPunctuation(t *testing.T) {
	require.Equal(t, "':'", COLON.String())
	require.Equal(t, "IDENT", IDENT.String())
}

func TestKindStringFallsBackToKeywordTable(t *testing.T) {
	require.Equal(t, "'agent'", AGENT.String())
	require.Equal(t, "'escalate'", ESCALATE.String())
}
