// Package escalation evaluates a compiled workflow.Condition against an
// agent's final output text, implementing escalation
// operator semantics (`~`, `==`, `!=`, `contains`, composed with `and`/
// `or`/`not`). Grounded on the prior codebase's features/policy/basic package,
// which evaluates a similarly shaped boolean predicate tree against agent
// output to decide handoff-to-human.
package escalation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/streetrace-ai/streetrace/compiler/workflow"
)

// Resolver evaluates a compiled workflow.Value down to a string, used for
// both sides of a leaf Condition. runtime/flow supplies this, since only it
// holds the variable bindings a Condition's operands may reference.
type Resolver func(ctx context.Context, v workflow.Value) (string, error)

var emphasisRe = regexp.MustCompile(`[*_]+`)
var trailingPunctRe = regexp.MustCompile(`[.!?,;:]+$`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize implements the `~` operator's normalization: strip markdown
// emphasis markers, collapse whitespace, uppercase, and strip trailing
// punctuation.
func Normalize(s string) string {
	s = emphasisRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.ToUpper(s)
	s = trailingPunctRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Evaluate recursively evaluates a compiled Condition tree against the
// current runtime state via resolve, implementing the "and"/"or"/"not"
// composition and the four leaf comparison operators.
func Evaluate(ctx context.Context, cond workflow.Condition, resolve Resolver) (bool, error) {
	switch cond.Op {
	case "and":
		left, err := evalChild(ctx, cond.Left, resolve)
		if err != nil || !left {
			return false, err
		}
		return evalChild(ctx, cond.Right, resolve)
	case "or":
		left, err := evalChild(ctx, cond.Left, resolve)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return evalChild(ctx, cond.Right, resolve)
	case "not":
		inner, err := evalChild(ctx, cond.Left, resolve)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case "~", "==", "!=", "contains":
		left, err := resolve(ctx, cond.LeftValue)
		if err != nil {
			return false, fmt.Errorf("escalation: resolve left operand: %w", err)
		}
		right, err := resolve(ctx, cond.RightValue)
		if err != nil {
			return false, fmt.Errorf("escalation: resolve right operand: %w", err)
		}
		return matches(cond.Op, left, right), nil
	default:
		return false, fmt.Errorf("escalation: unknown condition operator %q", cond.Op)
	}
}

func evalChild(ctx context.Context, cond *workflow.Condition, resolve Resolver) (bool, error) {
	if cond == nil {
		return false, fmt.Errorf("escalation: missing operand in condition tree")
	}
	return Evaluate(ctx, *cond, resolve)
}

func matches(op, left, right string) bool {
	switch op {
	case "~":
		return Normalize(left) == Normalize(right)
	case "==":
		return left == right
	case "!=":
		return left != right
	case "contains":
		return strings.Contains(left, right)
	default:
		return false
	}
}
