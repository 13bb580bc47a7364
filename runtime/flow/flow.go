// Package flow is the workflow runtime's interpreter: it walks a compiled
// workflow.FlowProgram's instructions, evaluates workflow.Value expressions
// against a flow's Vars, dispatches agent/tool calls, and applies
// escalation, schema-validation, and history-compaction semantics around
// each agent invocation. Grounded on the prior codebase's
// runtime/agent orchestration loop — a single-threaded statement walker
// that suspends only at four points: LlmClient.Invoke, ToolProvider.Call,
// SessionStore I/O, and a ParallelBlock join.
package flow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/streetrace-ai/streetrace/compiler/workflow"
	"github.com/streetrace-ai/streetrace/runtime/events"
	"github.com/streetrace-ai/streetrace/runtime/history"
	"github.com/streetrace-ai/streetrace/runtime/llm"
	"github.com/streetrace-ai/streetrace/runtime/schema"
	"github.com/streetrace-ai/streetrace/runtime/session"
	"github.com/streetrace-ai/streetrace/runtime/telemetry"
	"github.com/streetrace-ai/streetrace/runtime/tool"
)

// ctxKey namespaces context values this package stashes for the duration of
// a ParallelBlock's branches, so runAgent can find its collector without
// every call site threading one through explicitly.
type ctxKey int

const (
	parallelCollectorKey ctxKey = iota
	branchIndexKey
	filterElementKey
)

// parallelCollector gathers the schema validations a ParallelBlock's
// branches deferred until after the join, "schema
// validation is per-child with a sequential retry after join".
type parallelCollector struct {
	mu sync.Mutex
	items []*pendingValidation
}

func (c *parallelCollector) add(pv *pendingValidation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, pv)
}

// pendingValidation records everything runAgent needs to finish validating
// one branch's output once all branches have joined.
type pendingValidation struct {
	branchIndex int
	compiled *schema.Compiled
	handle *agentHandle
	text string
	messages []llm.Message
	vars Vars
	resultVar string
}

// Options configures an Interpreter's runtime dependencies — the four
// suspension-point capabilities plus the event bus and optional
// per-agent history policies.
type Options struct {
	LLM llm.Client
	Tools tool.Provider
	Sessions session.Store
	Bus *events.Bus

	// Summarizer backs "summarize" history strategies; nil falls back to
	// truncate even when an agent declares summarize.
	Summarizer history.Summarizer
	// HistoryPolicies maps agent name to its compaction policy. Absent
	// agents get history.DefaultPolicy().
	HistoryPolicies map[string]history.Policy
	// TokenBudget bounds an agent's accumulated conversation footprint
	// before compaction kicks in. Zero uses a
	// conservative default.
	TokenBudget int
	// HandleCacheTTL controls agent handle idle-eviction (cache.go).
	HandleCacheTTL time.Duration

	// Tracer and Metrics receive spans/counters/timers around every
	// LlmCall/ToolCall/AgentCall the interpreter makes. Both default to a
	// no-op implementation so a caller that only cares about the bus
	// (tests, the CLI's testllm path) doesn't have to wire an otel
	// exporter just to run a flow.
	Tracer telemetry.Tracer
	Metrics telemetry.Metrics

	// Hooks registers before/after extension points around flow start,
	// output, and each tool call. Zero value is all no-op.
	Hooks Hooks
}

// Interpreter executes one compiled workflow.Workflow.
type Interpreter struct {
	wf *workflow.Workflow
	llm llm.Client
	tools tool.Provider
	sessions session.Store
	bus *events.Bus

	summarizer history.Summarizer
	historyPolicies map[string]history.Policy
	tokenBudget int

	tracer telemetry.Tracer
	metrics telemetry.Metrics
	hooks Hooks

	cache *agentHandleCache
}

// New constructs an Interpreter for wf.
func New(wf *workflow.Workflow, opts Options) *Interpreter {
	budget := opts.TokenBudget
	if budget <= 0 {
		budget = 100_000
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Interpreter{
		wf: wf,
		llm: opts.LLM,
		tools: opts.Tools,
		sessions: opts.Sessions,
		bus: opts.Bus,
		summarizer: opts.Summarizer,
		historyPolicies: opts.HistoryPolicies,
		tokenBudget: budget,
		tracer: tracer,
		metrics: metrics,
		hooks: opts.Hooks,
		cache: newAgentHandleCache(opts.HandleCacheTTL),
	}
}

// Run dispatches to the workflow's entry point, per the selection rule in
// lang/sema (flow main → flow default → agent main → agent default →
// single-agent fallback). input seeds $input_prompt / the entry agent's
// first input.
func (in *Interpreter) Run(ctx context.Context, input string) (any, error) {
	runID := uuid.NewString()
	switch in.wf.Entry.Kind {
	case workflow.EntryFlow:
		return in.runFlow(ctx, runID, in.wf.Entry.Name, input)
	case workflow.EntryAgent:
		name := in.wf.Entry.Name
		if err := in.hooks.onStart(ctx, runID, name, input); err != nil {
			return nil, fmt.Errorf("flow: onStart hook for %q: %w", name, err)
		}
		in.hooks.afterStart(ctx, runID, name, input)
		result, _, err := in.runAgent(ctx, runID, name, input, Vars{"input_prompt": input}, "")
		if err == nil {
			if herr := in.hooks.onOutput(ctx, runID, result); herr != nil {
				err = fmt.Errorf("flow: onOutput hook for %q: %w", name, herr)
			}
		}
		in.hooks.afterOutput(ctx, runID, result, err)
		return result, err
	default:
		return nil, ErrNoEntryPoint
	}
}

func (in *Interpreter) runFlow(ctx context.Context, runID, flowName, input string) (any, error) {
	prog, ok := in.wf.Flows[flowName]
	if !ok {
		return nil, fmt.Errorf("flow: unknown flow %q", flowName)
	}
	if err := in.hooks.onStart(ctx, runID, flowName, input); err != nil {
		return nil, fmt.Errorf("flow: onStart hook for %q: %w", flowName, err)
	}
	in.publish(ctx, events.NewFlowStartedEvent(runID, flowName))
	in.hooks.afterStart(ctx, runID, flowName, input)
	vars := Vars{"input_prompt": input}
	signal, err := in.execBlock(ctx, runID, prog.Instructions, vars)
	var result any
	if err == nil && signal.kind == ctrlReturn {
		result = signal.value
	}
	if err == nil {
		if herr := in.hooks.onOutput(ctx, runID, result); herr != nil {
			err = fmt.Errorf("flow: onOutput hook for %q: %w", flowName, herr)
		}
	}
	in.publish(ctx, events.NewFlowCompletedEvent(runID, flowName, result, err))
	in.hooks.afterOutput(ctx, runID, result, err)
	return result, err
}

// execBlock runs a statement sequence, stopping early on a return/continue/
// break control signal or an error.
func (in *Interpreter) execBlock(ctx context.Context, runID string, instrs []workflow.Instruction, vars Vars) (ctrl, error) {
	for _, instr := range instrs {
		signal, err := in.execStmt(ctx, runID, instr, vars)
		if err != nil {
			return ctrlNormal, err
		}
		if signal.kind != ctrlNone {
			return signal, nil
		}
	}
	return ctrlNormal, nil
}

func (in *Interpreter) execStmt(ctx context.Context, runID string, instr workflow.Instruction, vars Vars) (ctrl, error) {
	switch v := instr.(type) {
	case workflow.Assignment:
		val, err := Eval(ctx, v.Value, vars)
		if err != nil {
			return ctrlNormal, err
		}
		vars[v.Target] = val
		return ctrlNormal, nil

	case workflow.PropertyAssignment:
		val, err := Eval(ctx, v.Value, vars)
		if err != nil {
			return ctrlNormal, err
		}
		target, ok := vars[v.Target].(map[string]any)
		if !ok {
			return ctrlNormal, fmt.Errorf("flow: cannot set property %q on non-map %q", v.Property, v.Target)
		}
		target[v.Property] = val
		return ctrlNormal, nil

	case workflow.RunInstruction:
		return in.execRun(ctx, runID, v, vars)

	case workflow.CallInstruction:
		return in.execCall(ctx, runID, v, vars)

	case workflow.ReturnInstruction:
		var val any
		if v.Value != nil {
			var err error
			val, err = Eval(ctx, v.Value, vars)
			if err != nil {
				return ctrlNormal, err
			}
		}
		return ctrl{kind: ctrlReturn, value: val}, nil

	case workflow.PushInstruction:
		val, err := Eval(ctx, v.Value, vars)
		if err != nil {
			return ctrlNormal, err
		}
		list, ok := vars[v.Target].([]any)
		if !ok {
			return ctrlNormal, fmt.Errorf("flow: push target %q is not a list", v.Target)
		}
		vars[v.Target] = append(list, val)
		return ctrlNormal, nil

	case workflow.ForLoop:
		return in.execFor(ctx, runID, v, vars)

	case workflow.LoopBlock:
		return in.execLoop(ctx, runID, v, vars)

	case workflow.ParallelBlock:
		return in.execParallel(ctx, runID, v, vars)

	case workflow.MatchBlock:
		return in.execMatch(ctx, runID, v, vars)

	case workflow.IfBlock:
		cond, err := Eval(ctx, v.Cond, vars)
		if err != nil {
			return ctrlNormal, err
		}
		if Truthy(cond) {
			return in.execBlock(ctx, runID, v.Then, vars)
		}
		return in.execBlock(ctx, runID, v.Else, vars)

	case workflow.FailureBlock:
		// FailureBlock only executes when the preceding statement raised a
		// recoverable error; recoverable errors are caught at the call site
		// (execRun/execCall) and recorded in vars["_failure"], not
		// propagated here. A bare FailureBlock with no pending failure is a
		// no-op.
		if _, failed := vars["_failure"]; !failed {
			return ctrlNormal, nil
		}
		delete(vars, "_failure")
		return in.execBlock(ctx, runID, v.Body, vars)

	case workflow.EscalateInstruction:
		in.applyEscalationAction(ctx, runID, v.Action, "")
		return ctrlNormal, nil

	case workflow.ExprInstruction:
		return ctrlNormal, nil

	default:
		return ctrlNormal, fmt.Errorf("flow: unsupported instruction %T", instr)
	}
}

func (in *Interpreter) execFor(ctx context.Context, runID string, v workflow.ForLoop, vars Vars) (ctrl, error) {
	iter, err := Eval(ctx, v.Iter, vars)
	if err != nil {
		return ctrlNormal, err
	}
	list, ok := iter.([]any)
	if !ok {
		return ctrlNormal, fmt.Errorf("flow: for-loop iterable must be a list, got %T", iter)
	}
	for _, elem := range list {
		vars[v.Var] = elem
		signal, err := in.execBlock(ctx, runID, v.Body, vars)
		if err != nil {
			return ctrlNormal, err
		}
		switch signal.kind {
		case ctrlReturn:
			return signal, nil
		case ctrlBreak:
			return ctrlNormal, nil
		case ctrlContinue:
			continue
		}
	}
	return ctrlNormal, nil
}

// unboundedLoopCeiling is the implementation-defined iteration cap applied to
// a `loop do ... end` with no explicit `max`.
const unboundedLoopCeiling = 100

// execLoop implements LoopBlock: runs the body at most v.Max times, or
// unboundedLoopCeiling times for the unbounded form, emitting a
// warning-level LoopExhaustedEvent if the ceiling is reached without the
// body returning, breaking, or escalating out.
func (in *Interpreter) execLoop(ctx context.Context, runID string, v workflow.LoopBlock, vars Vars) (ctrl, error) {
	ceiling := v.Max
	if ceiling <= 0 {
		ceiling = unboundedLoopCeiling
	}
	for i := 0; i < ceiling; i++ {
		signal, err := in.execBlock(ctx, runID, v.Body, vars)
		if err != nil {
			return ctrlNormal, err
		}
		switch signal.kind {
		case ctrlReturn:
			return signal, nil
		case ctrlBreak:
			return ctrlNormal, nil
		case ctrlContinue:
			continue
		}
	}
	if v.Max <= 0 {
		in.publish(ctx, events.NewLoopExhaustedEvent(runID, ceiling))
	}
	return ctrlNormal, nil
}

func (in *Interpreter) execMatch(ctx context.Context, runID string, v workflow.MatchBlock, vars Vars) (ctrl, error) {
	subject, err := Eval(ctx, v.Subject, vars)
	if err != nil {
		return ctrlNormal, err
	}
	rendered := Stringify(subject)
	for _, c := range v.Cases {
		condVal, err := Eval(ctx, c.Cond, vars)
		if err != nil {
			return ctrlNormal, err
		}
		if Stringify(condVal) == rendered {
			return in.execBlock(ctx, runID, c.Body, vars)
		}
	}
	return in.execBlock(ctx, runID, v.Else, vars)
}

// execParallel implements ParallelBlock: every branch gets
// an independent snapshot of vars at block entry, all branches share the
// input derived from the first branch's leading run/call `with` expression
// (branches that name their own `with` still override it), events
// interleave across branches but stay ordered within one, and any schema
// validation a branch's agent call needed is deferred and retried
// sequentially after the join rather than concurrently with the others.
func (in *Interpreter) execParallel(ctx context.Context, runID string, v workflow.ParallelBlock, vars Vars) (ctrl, error) {
	type branchResult struct {
		vars Vars
		err error
	}

	sharedInput := vars["input_prompt"]
	if len(v.Branches) > 0 {
		if w := firstWithValue(v.Branches[0]); w != nil {
			if val, err := Eval(ctx, w, vars); err == nil {
				sharedInput = val
			}
		}
	}

	collector := &parallelCollector{}
	pctx := context.WithValue(ctx, parallelCollectorKey, collector)

	// Snapshot-then-join an errgroup barrier, not a
	// cancel-on-first-error one, since a failing branch must not abort its
	// siblings — only the join step decides how the error surfaces.
	results := make([]branchResult, len(v.Branches))
	var g errgroup.Group
	for i, branch := range v.Branches {
		i, branch := i, branch
		snapshot := vars.Clone()
		snapshot["input_prompt"] = Stringify(sharedInput)
		bctx := context.WithValue(pctx, branchIndexKey, i)
		g.Go(func() error {
			_, err := in.execBlock(bctx, runID, branch, snapshot)
			results[i] = branchResult{vars: snapshot, err: err}
			return nil
		})
	}
	_ = g.Wait()
	var firstErr error

	sort.Slice(collector.items, func(a, b int) bool { return collector.items[a].branchIndex < collector.items[b].branchIndex })
	for _, pv := range collector.items {
		validated, _, err := in.validateWithRetry(ctx, runID, pv.handle, pv.compiled, pv.text, pv.messages)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pv.vars["last_call_result"] = validated
		if pv.resultVar != "" {
			pv.vars[pv.resultVar] = validated
		}
	}

	for _, r := range results {
		vars.Merge(r.vars)
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}
	return ctrlNormal, firstErr
}

// firstWithValue returns the `with` expression of the first run/call
// instruction at the top level of branch, or nil if that instruction has no
// `with` or the branch has no run/call; later run/call instructions are not
// examined.
func firstWithValue(branch []workflow.Instruction) workflow.Value {
	for _, instr := range branch {
		switch v := instr.(type) {
		case workflow.RunInstruction:
			if v.With != nil {
				return v.With
			}
			return nil
		case workflow.CallInstruction:
			if v.With != nil {
				return v.With
			}
			return nil
		}
	}
	return nil
}

// execRun implements RunStmt(agent, is_flow): a flow
// target recurses the interpreter over the named FlowProgram sharing vars;
// an agent target drives the full pipeline (runAgent) and, on escalation,
// applies the attached on-escalate handler.
func (in *Interpreter) execRun(ctx context.Context, runID string, v workflow.RunInstruction, vars Vars) (ctrl, error) {
	input := vars["input_prompt"]
	if v.With != nil {
		val, err := Eval(ctx, v.With, vars)
		if err != nil {
			return ctrlNormal, err
		}
		input = val
	}

	if v.IsFlow {
		prog, ok := in.wf.Flows[v.Agent]
		if !ok {
			return ctrlNormal, fmt.Errorf("flow: unknown flow %q", v.Agent)
		}
		// "sharing vars if a caller-context is supplied, else fresh": a `with`
		// expression is the caller-context signal. Without one the sub-flow
		// gets its own scope seeded only with input_prompt.
		var childVars Vars
		if v.With != nil {
			childVars = vars
			childVars["input_prompt"] = Stringify(input)
		} else {
			childVars = Vars{"input_prompt": Stringify(input)}
		}
		signal, err := in.execBlock(ctx, runID, prog.Instructions, childVars)
		if err != nil {
			return ctrlNormal, err
		}
		var result any
		if signal.kind == ctrlReturn {
			result = signal.value
		}
		if v.Result != "" {
			vars[v.Result] = result
		}
		return ctrlNormal, nil
	}

	result, escalated, err := in.runAgent(ctx, runID, v.Agent, Stringify(input), vars, v.Result)
	if err != nil {
		vars["_failure"] = err.Error()
		return ctrlNormal, nil
	}
	// Escalation fires at pipeline step 3, before step 5's assignment to the
	// statement's result variable: "return <expr>" must see
	// vars exactly as they stood before this RunStmt ran, so S2-class flows
	// that re-assign their own input variable on escalation observe its
	// prior value, not the escalated call's result.
	if escalated && v.OnEscalate != nil {
		switch v.OnEscalate.Kind {
		case "return":
			val, err := Eval(ctx, v.OnEscalate.Value, vars)
			if err != nil {
				return ctrlNormal, err
			}
			return ctrl{kind: ctrlReturn, value: val}, nil
		case "continue":
			return ctrl{kind: ctrlContinue}, nil
		case "abort":
			abortErr := &AbortError{Reason: Stringify(result)}
			in.publish(ctx, events.NewErrorEvent(runID, "abort", abortErr, nil))
			return ctrlNormal, abortErr
		}
	}
	if v.Result != "" {
		vars[v.Result] = result
	}
	return ctrlNormal, nil
}

// execCall implements CallStmt: a direct LLM call
// against a named prompt, bypassing the agent pipeline's tool loop,
// escalation check, schema validation, and history compaction entirely.
func (in *Interpreter) execCall(ctx context.Context, runID string, v workflow.CallInstruction, vars Vars) (ctrl, error) {
	p, ok := in.wf.Prompts[v.Prompt]
	if !ok {
		return ctrlNormal, fmt.Errorf("flow: unknown prompt %q", v.Prompt)
	}
	input := vars["input_prompt"]
	if v.With != nil {
		val, err := Eval(ctx, v.With, vars)
		if err != nil {
			return ctrlNormal, err
		}
		input = val
	}
	body := RenderPrompt(p.Body, vars)
	model := in.defaultModel()
	messages := []llm.Message{
		{Role: "system", Content: body},
		{Role: "user", Content: Stringify(input)},
	}

	in.publish(ctx, events.NewLlmCallStartedEvent(runID, model))
	start := time.Now()
	resp, err := in.llm.Invoke(ctx, llm.Request{Model: model, Messages: messages})
	in.publish(ctx, events.NewLlmCallEndedEvent(runID, model, time.Since(start), resp.TokensUsed, err))
	if err != nil {
		in.publish(ctx, events.NewErrorEvent(runID, "llm", err, nil))
		vars["_failure"] = err.Error()
		return ctrlNormal, nil
	}
	vars["last_call_result"] = resp.Content
	if v.Result != "" {
		vars[v.Result] = resp.Content
	}
	return ctrlNormal, nil
}

// defaultModel picks the model a bare `call llm` statement dispatches to:
// CallStmt's grammar names a prompt, never a model, so this falls back to
// the lexicographically first declared model (deterministic across runs of
// the same compiled workflow).
func (in *Interpreter) defaultModel() string {
	best := ""
	for name := range in.wf.Models {
		if best == "" || name < best {
			best = name
		}
	}
	if best == "" {
		return "default"
	}
	return best
}

func (in *Interpreter) applyEscalationAction(ctx context.Context, runID string, action workflow.EscalationAction, agentName string) {
	switch action.Kind {
	case "human":
		in.publish(ctx, events.NewEscalatedEvent(runID, agentName, action.Message))
	case "log":
		in.publish(ctx, events.NewLoggedEvent(runID, action.Message))
	case "notify":
		in.publish(ctx, events.NewNotifiedEvent(runID, action.Target, action.Message))
	}
}

func (in *Interpreter) publish(ctx context.Context, ev events.Event) {
	if in.bus == nil {
		return
	}
	_ = in.bus.Publish(ctx, ev)
}

// schemaFor resolves the Compiled validator for an AgentSpec's Produces
// field, treating a top-level "list" FieldType as validating each element
// against its Elem's ref schema.
func (in *Interpreter) schemaFor(ft *workflow.FieldType) (*schema.Compiled, error) {
	if ft == nil {
		return nil, nil
	}
	if ft.Kind == "list" && ft.Elem != nil && ft.Elem.Kind == "ref" {
		return schema.Compile(ft.Elem.Ref, true, in.wf.Schemas)
	}
	if ft.Kind == "ref" {
		return schema.Compile(ft.Ref, false, in.wf.Schemas)
	}
	return nil, nil
}
