package escalation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/compiler/workflow"
)

func literalResolver(values map[string]string) Resolver {
	return func(_ context.Context, v workflow.Value) (string, error) {
		lit := v.(workflow.Literal)
		s, _ := lit.V.(string)
		return values[s], nil
	}
}

func TestNormalizeStripsEmphasisAndPunctuation(t *testing.T) {
	require.Equal(t, "ESCALATE", Normalize("**escalate**."))
	require.Equal(t, "NEEDS HELP", Normalize(" needs help! "))
}

func TestEvaluateTildeIgnoresCaseAndFormatting(t *testing.T) {
	cond := workflow.Condition{
		Op: "~",
		LeftValue: workflow.Literal{V: "left"},
		RightValue: workflow.Literal{V: "right"},
	}
	resolve := literalResolver(map[string]string{"left": "*Escalate*", "right": "escalate"})
	ok, err := Evaluate(context.Background(), cond, resolve)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateEqualsIsExact(t *testing.T) {
	cond := workflow.Condition{
		Op: "==",
		LeftValue: workflow.Literal{V: "left"},
		RightValue: workflow.Literal{V: "right"},
	}
	resolve := literalResolver(map[string]string{"left": "Escalate", "right": "escalate"})
	ok, err := Evaluate(context.Background(), cond, resolve)
	require.NoError(t, err)
	require.False(t, ok, "== must not case-fold like ~ does")
}

func TestEvaluateContains(t *testing.T) {
	cond := workflow.Condition{
		Op: "contains",
		LeftValue: workflow.Literal{V: "left"},
		RightValue: workflow.Literal{V: "right"},
	}
	resolve := literalResolver(map[string]string{"left": "please escalate now", "right": "escalate"})
	ok, err := Evaluate(context.Background(), cond, resolve)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateNotNegatesChild(t *testing.T) {
	leaf := &workflow.Condition{
		Op: "==",
		LeftValue: workflow.Literal{V: "left"},
		RightValue: workflow.Literal{V: "right"},
	}
	cond := workflow.Condition{Op: "not", Left: leaf}
	resolve := literalResolver(map[string]string{"left": "a", "right": "b"})
	ok, err := Evaluate(context.Background(), cond, resolve)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateAndShortCircuitsOnFalseLeft(t *testing.T) {
	calls := 0
	resolve := func(_ context.Context, v workflow.Value) (string, error) {
		calls++
		return v.(workflow.Literal).V.(string), nil
	}
	falseLeaf := &workflow.Condition{Op: "==", LeftValue: workflow.Literal{V: "a"}, RightValue: workflow.Literal{V: "b"}}
	rightLeaf := &workflow.Condition{Op: "==", LeftValue: workflow.Literal{V: "c"}, RightValue: workflow.Literal{V: "c"}}
	cond := workflow.Condition{Op: "and", Left: falseLeaf, Right: rightLeaf}
	ok, err := Evaluate(context.Background(), cond, resolve)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, calls, "right branch of 'and' must not be evaluated once left is false")
}

func TestEvaluateOrShortCircuitsOnTrueLeft(t *testing.T) {
	calls := 0
	resolve := func(_ context.Context, v workflow.Value) (string, error) {
		calls++
		return v.(workflow.Literal).V.(string), nil
	}
	trueLeaf := &workflow.Condition{Op: "==", LeftValue: workflow.Literal{V: "a"}, RightValue: workflow.Literal{V: "a"}}
	rightLeaf := &workflow.Condition{Op: "==", LeftValue: workflow.Literal{V: "c"}, RightValue: workflow.Literal{V: "d"}}
	cond := workflow.Condition{Op: "or", Left: trueLeaf, Right: rightLeaf}
	ok, err := Evaluate(context.Background(), cond, resolve)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, calls, "right branch of 'or' must not be evaluated once left is true")
}

func TestEvaluateMissingOperandIsAnError(t *testing.T) {
	cond := workflow.Condition{Op: "not", Left: nil}
	_, err := Evaluate(context.Background(), cond, literalResolver(nil))
	require.Error(t, err)
}

func TestEvaluateUnknownOperatorIsAnError(t *testing.T) {
	cond := workflow.Condition{Op: "bogus"}
	_, err := Evaluate(context.Background(), cond, literalResolver(nil))
	require.Error(t, err)
}
