// Package history implements conversation-history compaction: after each
// agent call, estimate the token footprint of the accumulated conversation
// and, if it exceeds budget, either truncate or summarize it. Grounded on
// the prior codebase's runtime/agent/compact package shape (a
// Strategy-keyed compactor invoked between turns), adapted to operate over
// llm.Message slices instead of the prior codebase's provider-SDK message
// types.
package history

import (
	"context"
	"errors"
	"strings"

	"github.com/streetrace-ai/streetrace/runtime/llm"
)

// Strategy selects how compaction reduces history once it exceeds budget.
type Strategy string

const (
	StrategyTruncate Strategy = "truncate"
	StrategySummarize Strategy = "summarize"
)

// ErrContextOverflow is returned when history exceeds its budget and no
// compaction Policy is configured.
var ErrContextOverflow = errors.New("history: context overflow with no compaction policy")

// Policy configures compaction for a single agent.
type Policy struct {
	Strategy Strategy
	// Preserve lists variable names (e.g. "$goal") whose values must survive
	// a summarize pass verbatim, appended to the synthesized summary text.
	Preserve []string
	// MinKeepExchanges is how many of the most recent request/response pairs
	// truncate (and summarize's tail) start from; truncate drops further
	// pairs, down to a single one, while the history still exceeds the budget.
	MinKeepExchanges int
}

// DefaultPolicy matches the prior codebase's own compaction defaults: truncate,
// keeping the last 4 exchanges.
func DefaultPolicy() Policy {
	return Policy{Strategy: StrategyTruncate, MinKeepExchanges: 4}
}

// Summarizer produces a summary message for the middle region of history
// being dropped during a "summarize" compaction. Implementations typically
// wrap an llm.Client with a fixed summarization prompt.
type Summarizer interface {
	Summarize(ctx context.Context, messages []llm.Message, preserve map[string]string) (llm.Message, error)
}

// Compaction reports what a compaction pass did, for the HistoryCompaction
// event.
type Compaction struct {
	Applied bool
	BeforeCount int
	AfterCount int
	BeforeTokens int
	AfterTokens int
}

// EstimateTokens implements a 4-chars-per-token heuristic used in place of
// a model-specific tokenizer.
func EstimateTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total / 4
}

// Compact applies policy to messages if their estimated footprint exceeds
// budget (in tokens, already reduced by the caller's safety margin). When no
// policy is given and the budget is exceeded, Compact returns
// ErrContextOverflow.
func Compact(ctx context.Context, messages []llm.Message, budget int, policy *Policy, summarizer Summarizer, preserve map[string]string) ([]llm.Message, Compaction, error) {
	before := EstimateTokens(messages)
	noop := Compaction{BeforeCount: len(messages), AfterCount: len(messages), BeforeTokens: before, AfterTokens: before}
	if before <= budget {
		return messages, noop, nil
	}
	if policy == nil {
		return messages, Compaction{}, ErrContextOverflow
	}
	switch policy.Strategy {
	case StrategySummarize:
		return compactSummarize(ctx, messages, budget, *policy, summarizer, preserve, before)
	default:
		out := compactTruncate(messages, budget, *policy)
		return out, Compaction{Applied: true, BeforeCount: len(messages), AfterCount: len(out), BeforeTokens: before, AfterTokens: EstimateTokens(out)}, nil
	}
}

// compactTruncate keeps the first message (the system message) and the last
// K exchanges, shrinking K until the projected footprint fits budget or the
// floor of one exchange is reached.
func compactTruncate(messages []llm.Message, budget int, policy Policy) []llm.Message {
	if len(messages) == 0 {
		return messages
	}
	head := messages[0:1]
	rest := messages[1:]

	keep := policy.MinKeepExchanges * 2
	if keep <= 0 {
		keep = 8
	}
	if keep > len(rest) {
		keep = len(rest)
	}
	for keep > 2 {
		candidate := append(append([]llm.Message{}, head...), rest[len(rest)-keep:]...)
		if EstimateTokens(candidate) <= budget {
			break
		}
		keep -= 2
	}
	tail := rest[len(rest)-keep:]
	out := make([]llm.Message, 0, len(head)+len(tail))
	out = append(out, head...)
	out = append(out, tail...)
	return out
}

// compactSummarize replaces the middle region of history (everything
// between the leading system message and the preserved tail exchanges)
// with a single summary message produced by summarizer.
func compactSummarize(ctx context.Context, messages []llm.Message, budget int, policy Policy, summarizer Summarizer, preserve map[string]string, before int) ([]llm.Message, Compaction, error) {
	if summarizer == nil || len(messages) < 3 {
		out := compactTruncate(messages, budget, policy)
		return out, Compaction{Applied: true, BeforeCount: len(messages), AfterCount: len(out), BeforeTokens: before, AfterTokens: EstimateTokens(out)}, nil
	}
	keepTail := policy.MinKeepExchanges * 2
	if keepTail <= 0 {
		keepTail = 4
	}
	if keepTail > len(messages)-2 {
		keepTail = len(messages) - 2
	}
	if keepTail < 0 {
		keepTail = 0
	}
	head := messages[0:1]
	middle := messages[1 : len(messages)-keepTail]
	tail := messages[len(messages)-keepTail:]

	summary, err := summarizer.Summarize(ctx, middle, preserve)
	if err != nil {
		return nil, Compaction{}, err
	}
	out := make([]llm.Message, 0, 2+len(tail))
	out = append(out, head...)
	out = append(out, summary)
	out = append(out, tail...)
	return out, Compaction{Applied: true, BeforeCount: len(messages), AfterCount: len(out), BeforeTokens: before, AfterTokens: EstimateTokens(out)}, nil
}

// FormatPreserved renders preserved variable values as a trailer appended
// to a synthesized summary, in the shape "$goal = <value>" per line.
func FormatPreserved(preserve map[string]string, names []string) string {
	if len(preserve) == 0 {
		return ""
	}
	var b strings.Builder
	for _, name := range names {
		v, ok := preserve[name]
		if !ok {
			continue
		}
		b.WriteString(name)
		b.WriteString(" = ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	return b.String()
}
