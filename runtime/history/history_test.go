package history

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/runtime/llm"
)

func msg(role, content string) llm.Message {
	return llm.Message{Role: role, Content: content}
}

func longHistory(n int) []llm.Message {
	out := []llm.Message{msg("system", "you are a helpful agent")}
	for i := 0; i < n; i++ {
		out = append(out, msg("user", strings.Repeat("x", 200)))
		out = append(out, msg("assistant", strings.Repeat("y", 200)))
	}
	return out
}

func TestEstimateTokensUsesFourCharsPerToken(t *testing.T) {
	require.Equal(t, 25, EstimateTokens([]llm.Message{msg("user", strings.Repeat("a", 100))}))
}

func TestCompactNoopWhenUnderBudget(t *testing.T) {
	messages := longHistory(1)
	policy := DefaultPolicy()
	out, rep, err := Compact(context.Background(), messages, 10_000, &policy, nil, nil)
	require.NoError(t, err)
	require.False(t, rep.Applied)
	require.Equal(t, messages, out)
}

func TestCompactReturnsErrContextOverflowWithNoPolicy(t *testing.T) {
	messages := longHistory(20)
	_, _, err := Compact(context.Background(), messages, 10, nil, nil, nil)
	require.ErrorIs(t, err, ErrContextOverflow)
}

func TestCompactTruncateKeepsHeadAndShrinksUntilUnderBudget(t *testing.T) {
	messages := longHistory(20)
	policy := Policy{Strategy: StrategyTruncate, MinKeepExchanges: 4}
	out, rep, err := Compact(context.Background(), messages, 300, &policy, nil, nil)
	require.NoError(t, err)
	require.True(t, rep.Applied)
	require.Equal(t, messages[0], out[0], "head system message must always survive")
	require.LessOrEqual(t, EstimateTokens(out), EstimateTokens(messages))
	require.Less(t, len(out), len(messages))
}

func TestCompactTruncateNeverDropsBelowOneExchange(t *testing.T) {
	messages := longHistory(50)
	policy := Policy{Strategy: StrategyTruncate, MinKeepExchanges: 1}
	out, _, err := Compact(context.Background(), messages, 1, &policy, nil, nil)
	require.NoError(t, err)
	// head + at least one exchange (2 messages) must remain even though the
	// budget can never actually be satisfied.
	require.GreaterOrEqual(t, len(out), 3)
}

type stubSummarizer struct {
	summary string
}

func (s *stubSummarizer) Summarize(_ context.Context, _ []llm.Message, preserve map[string]string) (llm.Message, error) {
	return msg("system", s.summary+FormatPreserved(preserve, []string{"goal"})), nil
}

func TestCompactSummarizeReplacesMiddleWithSummary(t *testing.T) {
	messages := longHistory(20)
	policy := Policy{Strategy: StrategySummarize, MinKeepExchanges: 2}
	summarizer := &stubSummarizer{summary: "SUMMARY"}
	out, rep, err := Compact(context.Background(), messages, 300, &policy, summarizer, map[string]string{"goal": "ship it"})
	require.NoError(t, err)
	require.True(t, rep.Applied)
	require.Equal(t, messages[0], out[0])
	require.Contains(t, out[1].Content, "SUMMARY")
	require.Contains(t, out[1].Content, "goal = ship it")
	require.Equal(t, messages[len(messages)-4:], out[len(out)-4:], "preserved tail exchanges must survive verbatim")
}

func TestCompactSummarizeFallsBackToTruncateWithoutSummarizer(t *testing.T) {
	messages := longHistory(20)
	policy := Policy{Strategy: StrategySummarize, MinKeepExchanges: 2}
	out, rep, err := Compact(context.Background(), messages, 300, &policy, nil, nil)
	require.NoError(t, err)
	require.True(t, rep.Applied)
	require.Equal(t, messages[0], out[0])
}

func TestFormatPreservedOnlyIncludesNamedKeys(t *testing.T) {
	preserve := map[string]string{"goal": "ship it", "other": "ignored"}
	out := FormatPreserved(preserve, []string{"goal"})
	require.Contains(t, out, "goal = ship it")
	require.NotContains(t, out, "other")
}

func TestFormatPreservedEmptyWhenNoPreserveValues(t *testing.T) {
	require.Equal(t, "", FormatPreserved(nil, []string{"goal"}))
}
