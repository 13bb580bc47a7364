package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/streetrace-ai/streetrace/compiler/workflow"
	"github.com/streetrace-ai/streetrace/runtime/escalation"
)

// Eval evaluates a compiled workflow.Value against vars. Evaluation is
// strict and left-to-right; boolean operators short-circuit.
func Eval(ctx context.Context, v workflow.Value, vars Vars) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case workflow.Literal:
		return val.V, nil
	case workflow.VarRefValue:
		return vars[val.Name], nil
	case workflow.PropertyValue:
		base, err := Eval(ctx, val.Base, vars)
		if err != nil {
			return nil, err
		}
		return propertyOf(base, val.Property)
	case workflow.IndexValue:
		base, err := Eval(ctx, val.Base, vars)
		if err != nil {
			return nil, err
		}
		idx, err := Eval(ctx, val.Index, vars)
		if err != nil {
			return nil, err
		}
		return indexOf(base, idx)
	case workflow.ListValue:
		out := make([]any, len(val.Elems))
		for i, e := range val.Elems {
			ev, err := Eval(ctx, e, vars)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case workflow.MapValue:
		out := make(map[string]any, len(val.Entries))
		for _, k := range val.Order {
			ev, err := Eval(ctx, val.Entries[k], vars)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	case workflow.BinaryValue:
		return evalBinary(ctx, val, vars)
	case workflow.UnaryValue:
		return evalUnary(ctx, val, vars)
	case workflow.CallValue:
		return evalBuiltinCall(ctx, val, vars)
	case workflow.FilterValue:
		return evalFilter(ctx, val, vars)
	case workflow.ImplicitPropertyValue:
		return propertyOf(ctx.Value(filterElementKey), val.Property)
	default:
		return nil, fmt.Errorf("flow: unsupported value node %T", v)
	}
}

// ResolveString evaluates v and renders it as a string, used for escalation
// condition operands (escalation.Resolver).
func ResolveString(vars Vars) escalation.Resolver {
	return func(ctx context.Context, v workflow.Value) (string, error) {
		val, err := Eval(ctx, v, vars)
		if err != nil {
			return "", err
		}
		return Stringify(val), nil
	}
}

func propertyOf(base any, name string) (any, error) {
	if base == nil {
		return nil, nil
	}
	m, ok := base.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("flow: cannot access property %q of non-map value %T", name, base)
	}
	return m[name], nil
}

func indexOf(base, idx any) (any, error) {
	switch b := base.(type) {
	case []any:
		i, err := toInt(idx)
		if err != nil {
			return nil, fmt.Errorf("flow: list index: %w", err)
		}
		if i < 0 || i >= len(b) {
			return nil, fmt.Errorf("flow: list index %d out of range (len %d)", i, len(b))
		}
		return b[i], nil
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("flow: map index must be a string, got %T", idx)
		}
		return b[key], nil
	default:
		return nil, fmt.Errorf("flow: cannot index into %T", base)
	}
}

func evalBinary(ctx context.Context, v workflow.BinaryValue, vars Vars) (any, error) {
	switch v.Op {
	case "and":
		left, err := Eval(ctx, v.Left, vars)
		if err != nil {
			return nil, err
		}
		if !Truthy(left) {
			return false, nil
		}
		right, err := Eval(ctx, v.Right, vars)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	case "or":
		left, err := Eval(ctx, v.Left, vars)
		if err != nil {
			return nil, err
		}
		if Truthy(left) {
			return true, nil
		}
		right, err := Eval(ctx, v.Right, vars)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	}

	left, err := Eval(ctx, v.Left, vars)
	if err != nil {
		return nil, err
	}
	right, err := Eval(ctx, v.Right, vars)
	if err != nil {
		return nil, err
	}

	switch v.Op {
	case "==":
		return structuralEqual(left, right), nil
	case "!=":
		return !structuralEqual(left, right), nil
	case "~":
		return escalation.Normalize(Stringify(left)) == escalation.Normalize(Stringify(right)), nil
	case "contains":
		return strings.Contains(Stringify(left), Stringify(right)), nil
	case "<", ">", "<=", ">=":
		return compareNumeric(v.Op, left, right)
	case "+", "-", "*", "/":
		return arith(v.Op, left, right)
	default:
		return nil, fmt.Errorf("flow: unsupported binary operator %q", v.Op)
	}
}

func evalUnary(ctx context.Context, v workflow.UnaryValue, vars Vars) (any, error) {
	operand, err := Eval(ctx, v.Operand, vars)
	if err != nil {
		return nil, err
	}
	switch v.Op {
	case "not":
		return !Truthy(operand), nil
	case "-":
		f, err := toFloat(operand)
		if err != nil {
			return nil, fmt.Errorf("flow: unary -: %w", err)
		}
		if isInt(operand) {
			return int64(-f), nil
		}
		return -f, nil
	default:
		return nil, fmt.Errorf("flow: unsupported unary operator %q", v.Op)
	}
}

// evalBuiltinCall evaluates the small set of pure helper functions usable
// inside expressions (filter predicates, match subjects): len, upper,
// lower, trim. Anything else is an unresolved-call error — sema's
// resolveExpr does not check callee names at all, so an unknown name
// surfaces here at runtime instead of compile time.
func evalBuiltinCall(ctx context.Context, v workflow.CallValue, vars Vars) (any, error) {
	args := make([]any, 0, len(v.Args))
	for _, name := range sortedArgNames(v.Args) {
		av, err := Eval(ctx, v.Args[name], vars)
		if err != nil {
			return nil, err
		}
		args = append(args, av)
	}
	switch v.Callee {
	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("flow: len() takes exactly one argument")
		}
		switch val := args[0].(type) {
		case string:
			return int64(len(val)), nil
		case []any:
			return int64(len(val)), nil
		case map[string]any:
			return int64(len(val)), nil
		default:
			return nil, fmt.Errorf("flow: len() of unsupported type %T", args[0])
		}
	case "upper":
		if len(args) != 1 {
			return nil, fmt.Errorf("flow: upper() takes exactly one argument")
		}
		return strings.ToUpper(Stringify(args[0])), nil
	case "lower":
		if len(args) != 1 {
			return nil, fmt.Errorf("flow: lower() takes exactly one argument")
		}
		return strings.ToLower(Stringify(args[0])), nil
	case "trim":
		if len(args) != 1 {
			return nil, fmt.Errorf("flow: trim() takes exactly one argument")
		}
		return strings.TrimSpace(Stringify(args[0])), nil
	default:
		return nil, fmt.Errorf("flow: unresolved call %q", v.Callee)
	}
}

func sortedArgNames(args map[string]workflow.Value) []string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func evalFilter(ctx context.Context, v workflow.FilterValue, vars Vars) (any, error) {
	source, err := Eval(ctx, v.Source, vars)
	if err != nil {
		return nil, err
	}
	list, ok := source.([]any)
	if !ok {
		return nil, fmt.Errorf("flow: filter source must be a list, got %T", source)
	}
	out := make([]any, 0, len(list))
	for _, elem := range list {
		ectx := context.WithValue(ctx, filterElementKey, elem)
		keep, err := Eval(ectx, v.Predicate, vars)
		if err != nil {
			return nil, err
		}
		if Truthy(keep) {
			out = append(out, elem)
		}
	}
	return out, nil
}

// Truthy implements "truthy iff not null/false/0/empty".
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// Stringify renders a value as text, used for `~`/`contains`/MatchBlock
// textual comparison.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func structuralEqual(a, b any) bool {
	af, aIsNum := asNumber(a)
	bf, bIsNum := asNumber(b)
	if aIsNum && bIsNum {
		return af == bf
	}
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}

func asNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}

func isInt(v any) bool {
	switch v.(type) {
	case int64, int:
		return true
	default:
		return false
	}
}

func toInt(v any) (int, error) {
	switch val := v.(type) {
	case int64:
		return int(val), nil
	case int:
		return val, nil
	case float64:
		return int(val), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toFloat(v any) (float64, error) {
	f, ok := asNumber(v)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	return f, nil
}

func compareNumeric(op string, left, right any) (any, error) {
	lf, err := toFloat(left)
	if err != nil {
		return nil, fmt.Errorf("flow: comparison %s: %w", op, err)
	}
	rf, err := toFloat(right)
	if err != nil {
		return nil, fmt.Errorf("flow: comparison %s: %w", op, err)
	}
	switch op {
	case "<":
		return lf < rf, nil
	case ">":
		return lf > rf, nil
	case "<=":
		return lf <= rf, nil
	case ">=":
		return lf >= rf, nil
	default:
		return nil, fmt.Errorf("flow: unsupported comparison %q", op)
	}
}

// arith follows numeric promotion: int op int => int except for "/", which
// always yields a float; any float operand promotes the result to float.
func arith(op string, left, right any) (any, error) {
	lf, lerr := toFloat(left)
	rf, rerr := toFloat(right)
	if lerr != nil || rerr != nil {
		if op == "+" {
			if ls, ok := left.(string); ok {
				return ls + Stringify(right), nil
			}
		}
		return nil, fmt.Errorf("flow: arithmetic %s requires numeric operands, got %T and %T", op, left, right)
	}
	var result float64
	switch op {
	case "+":
		result = lf + rf
	case "-":
		result = lf - rf
	case "*":
		result = lf * rf
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("flow: division by zero")
		}
		result = lf / rf
	}
	if isInt(left) && isInt(right) && op != "/" {
		return int64(result), nil
	}
	return result, nil
}
