package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streetrace-ai/streetrace/compiler/workflow"
	"github.com/streetrace-ai/streetrace/runtime/escalation"
	"github.com/streetrace-ai/streetrace/runtime/events"
	"github.com/streetrace-ai/streetrace/runtime/history"
	"github.com/streetrace-ai/streetrace/runtime/llm"
	"github.com/streetrace-ai/streetrace/runtime/schema"
	"github.com/streetrace-ai/streetrace/runtime/tool"
)

// maxToolCallRounds bounds the number of tool-call/re-invoke cycles a single
// agent turn may take, so a model that never stops requesting tools can't
// hang a flow run forever.
const maxToolCallRounds = 8

// runAgent implements agent pipeline for one RunStmt: it
// resolves the AgentDefinition, dispatches to the LlmClient (looping over
// any tool calls the model requests), checks the instruction prompt's
// EscalationSpec against the final text, validates against the agent's
// schema with one retry, and compacts history before returning. The bool
// result reports whether the escalation flag fired.
// runAgent wraps runAgentBody in an "agent.call" span and a count/duration
// metric pair, recording the returned error on the span when present.
func (in *Interpreter) runAgent(ctx context.Context, runID, agentName, input string, vars Vars, resultVar string) (any, bool, error) {
	ctx, span := in.tracer.Start(ctx, "agent.call")
	spanStart := time.Now()
	result, escalated, err := in.runAgentBody(ctx, runID, agentName, input, vars, resultVar)
	if err != nil {
		span.RecordError(err)
	}
	in.metrics.IncCounter("streetrace.agent.call.count", 1, "agent", agentName)
	in.metrics.RecordTimer("streetrace.agent.call.duration", time.Since(spanStart), "agent", agentName)
	span.End()
	return result, escalated, err
}

func (in *Interpreter) runAgentBody(ctx context.Context, runID, agentName, input string, vars Vars, resultVar string) (any, bool, error) {
	spec, ok := in.wf.Agents[agentName]
	if !ok {
		return nil, false, fmt.Errorf("flow: unknown agent %q", agentName)
	}
	handle := in.cache.getOrCreate(agentName, func() *agentHandle {
		return &agentHandle{name: spec.Name, model: spec.Model, tools: spec.Tools, instruction: spec.Instruction}
	})

	turnID := uuid.NewString()
	in.publish(ctx, events.NewAgentCallStartedEvent(runID, agentName, turnID))
	start := time.Now()

	sessionID := runID + ":" + agentName
	sess, err := in.loadOrCreateSession(ctx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("flow: load session for agent %q: %w", agentName, err)
	}
	messages := sess.History
	if len(messages) == 0 {
		messages = append(messages, llm.Message{Role: "system", Content: in.renderInstruction(spec, vars)})
	}
	messages = append(messages, llm.Message{Role: "user", Content: input})

	finalText, newMessages, err := in.invokeWithTools(ctx, runID, handle, messages)
	if err != nil {
		in.publish(ctx, events.NewAgentCallEndedEvent(runID, agentName, turnID, time.Since(start), false, err))
		return nil, false, err
	}

	escalated := false
	if promptSpec, ok := in.wf.Prompts[spec.Instruction]; ok && !spec.InstructionIsInline && promptSpec.Escalation != nil {
		escalated, err = evaluatePromptEscalation(ctx, *promptSpec.Escalation, finalText, vars)
		if err != nil {
			in.publish(ctx, events.NewAgentCallEndedEvent(runID, agentName, turnID, time.Since(start), escalated, err))
			return nil, escalated, err
		}
		if escalated {
			in.publish(ctx, events.NewEscalatedEvent(runID, agentName, finalText))
		}
	}

	var result any = finalText
	if compiled, err := in.schemaFor(spec.Produces); err == nil && compiled != nil {
		if coll, ok := ctx.Value(parallelCollectorKey).(*parallelCollector); ok {
			branchIdx, _ := ctx.Value(branchIndexKey).(int)
			coll.add(&pendingValidation{
				branchIndex: branchIdx,
				compiled: compiled,
				handle: handle,
				text: finalText,
				messages: newMessages,
				vars: vars,
				resultVar: resultVar,
			})
		} else {
			result, newMessages, err = in.validateWithRetry(ctx, runID, handle, compiled, finalText, newMessages)
			if err != nil {
				in.publish(ctx, events.NewAgentCallEndedEvent(runID, agentName, turnID, time.Since(start), escalated, err))
				return nil, escalated, err
			}
		}
	}

	if err := in.compactAndPersist(ctx, sessionID, agentName, spec, newMessages); err != nil {
		in.publish(ctx, events.NewAgentCallEndedEvent(runID, agentName, turnID, time.Since(start), escalated, err))
		return nil, escalated, err
	}

	vars["last_call_result"] = result
	in.publish(ctx, events.NewAgentCallEndedEvent(runID, agentName, turnID, time.Since(start), escalated, nil))
	return result, escalated, nil
}

func (in *Interpreter) loadOrCreateSession(ctx context.Context, sessionID string) (sessionSnapshot, error) {
	if in.sessions == nil {
		return sessionSnapshot{}, nil
	}
	if _, err := in.sessions.Create(ctx, sessionID, time.Now()); err != nil {
		return sessionSnapshot{}, err
	}
	sess, err := in.sessions.Load(ctx, sessionID)
	if err != nil {
		return sessionSnapshot{}, err
	}
	return sessionSnapshot{History: sess.History}, nil
}

// sessionSnapshot avoids importing runtime/session's full Session type into
// every call site that only needs the message history.
type sessionSnapshot struct {
	History []llm.Message
}

// renderInstruction resolves an AgentSpec's instruction to text: either the
// named prompt's (rendered) body, or the inline body stored directly on the
// spec.
func (in *Interpreter) renderInstruction(spec workflow.AgentSpec, vars Vars) string {
	if spec.InstructionIsInline {
		return RenderPrompt(spec.Instruction, vars)
	}
	if p, ok := in.wf.Prompts[spec.Instruction]; ok {
		return RenderPrompt(p.Body, vars)
	}
	return spec.Instruction
}

// invokeWithTools drives the LlmClient.Invoke / ToolProvider.Call loop:
// the model is invoked, and whenever it requests tool calls they are
// executed and their results appended as "tool" messages, until the model
// stops requesting tools or maxToolCallRounds is reached.
func (in *Interpreter) invokeWithTools(ctx context.Context, runID string, handle *agentHandle, messages []llm.Message) (string, []llm.Message, error) {
	toolDefs := in.toolDefinitions(handle.tools)
	var lastText string
	for round := 0; round < maxToolCallRounds; round++ {
		req := llm.Request{Model: handle.model, Messages: messages, Tools: toolDefs}
		in.publish(ctx, events.NewLlmCallStartedEvent(runID, handle.model))
		start := time.Now()
		sctx, span := in.tracer.Start(ctx, "llm.invoke")
		resp, err := in.llm.Invoke(sctx, req)
		duration := time.Since(start)
		in.publish(ctx, events.NewLlmCallEndedEvent(runID, handle.model, duration, resp.TokensUsed, err))
		in.metrics.IncCounter("streetrace.llm.call.count", 1, "model", handle.model)
		in.metrics.RecordTimer("streetrace.llm.call.duration", duration, "model", handle.model)
		in.metrics.RecordGauge("streetrace.llm.call.tokens", float64(resp.TokensUsed), "model", handle.model)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if err != nil {
			return "", messages, fmt.Errorf("flow: agent %q llm invoke: %w", handle.name, err)
		}
		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})
		lastText = resp.Content
		if len(resp.ToolCalls) == 0 || resp.StopReason != "tool_calls" {
			break
		}
		for _, tc := range resp.ToolCalls {
			result, err := in.invokeTool(ctx, runID, tc)
			if err != nil {
				messages = append(messages, llm.Message{Role: "tool", Name: tc.Name, Content: "error: " + err.Error()})
				continue
			}
			messages = append(messages, llm.Message{Role: "tool", Name: tc.Name, Content: Stringify(result)})
		}
	}
	return lastText, messages, nil
}

func (in *Interpreter) toolDefinitions(names []string) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		spec, ok := in.wf.Tools[name]
		if !ok {
			continue
		}
		defs = append(defs, llm.ToolDefinition{Name: spec.Name, Description: spec.Description, ParamsSchema: map[string]any{}})
	}
	return defs
}

func (in *Interpreter) invokeTool(ctx context.Context, runID string, tc llm.ToolCall) (any, error) {
	handle, err := in.tools.Resolve(ctx, tc.Name)
	if err != nil {
		return nil, err
	}
	if err := in.hooks.onToolCall(ctx, runID, tc.Name, tc.ID, tc.Args); err != nil {
		return nil, fmt.Errorf("flow: onToolCall hook for %q: %w", tc.Name, err)
	}
	in.publish(ctx, events.NewToolCallStartedEvent(runID, tc.Name, tc.ID))
	start := time.Now()
	sctx, span := in.tracer.Start(ctx, "tool.call")
	result, err := in.tools.Call(sctx, tool.Call{Handle: handle, CallID: tc.ID, Args: tc.Args})
	duration := time.Since(start)
	in.publish(ctx, events.NewToolCallEndedEvent(runID, tc.Name, tc.ID, duration, err))
	in.metrics.IncCounter("streetrace.tool.call.count", 1, "tool", tc.Name)
	in.metrics.RecordTimer("streetrace.tool.call.duration", duration, "tool", tc.Name)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	if err != nil {
		in.publish(ctx, events.NewErrorEvent(runID, "tool", err, nil))
		in.hooks.afterToolCall(ctx, runID, tc.Name, tc.ID, nil, err)
		return nil, err
	}
	if result.Err != nil {
		in.publish(ctx, events.NewErrorEvent(runID, "tool", result.Err, nil))
		in.hooks.afterToolCall(ctx, runID, tc.Name, tc.ID, nil, result.Err)
		return nil, result.Err
	}
	in.hooks.afterToolCall(ctx, runID, tc.Name, tc.ID, result.Value, nil)
	return result.Value, nil
}

// evaluatePromptEscalation evaluates a PromptEscalation's flat op/value leaf
// against an agent's final output text.
func evaluatePromptEscalation(ctx context.Context, spec workflow.PromptEscalation, finalText string, vars Vars) (bool, error) {
	cond := workflow.Condition{
		Op: spec.Op,
		LeftValue: workflow.Literal{V: finalText},
		RightValue: workflow.Literal{V: spec.Value},
	}
	return escalation.Evaluate(ctx, cond, ResolveString(vars))
}

// validateWithRetry implements schema validation algorithm:
// validate, and on failure append error feedback, re-invoke once, validate
// again, then fall back to an empty result on a second failure.
func (in *Interpreter) validateWithRetry(ctx context.Context, runID string, handle *agentHandle, compiled *schema.Compiled, text string, messages []llm.Message) (any, []llm.Message, error) {
	parsed, err := compiled.Validate(text)
	if err == nil {
		in.publish(ctx, events.NewSchemaValidationEvent(runID, handle.name, 1, true, false, nil))
		return parsed, messages, nil
	}
	in.publish(ctx, events.NewSchemaValidationEvent(runID, handle.name, 1, false, false, err))

	feedback := fmt.Sprintf("Your previous response did not match the expected schema: %s. Reply again with only valid JSON matching the schema.", err)
	messages = append(messages, llm.Message{Role: "user", Content: feedback})
	text2, messages2, invokeErr := in.invokeWithTools(ctx, runID, handle, messages)
	if invokeErr != nil {
		return nil, messages, invokeErr
	}
	parsed2, err2 := compiled.Validate(text2)
	if err2 == nil {
		in.publish(ctx, events.NewSchemaValidationEvent(runID, handle.name, 2, true, false, nil))
		return parsed2, messages2, nil
	}
	in.publish(ctx, events.NewSchemaValidationEvent(runID, handle.name, 2, false, true, err2))
	return compiled.Fallback(), messages2, nil
}

// compactAndPersist applies compaction algorithm to an
// agent's accumulated conversation and persists the (possibly compacted)
// result to the session store.
func (in *Interpreter) compactAndPersist(ctx context.Context, sessionID, agentName string, spec workflow.AgentSpec, messages []llm.Message) error {
	if in.sessions == nil {
		return nil
	}
	policy, ok := in.historyPolicies[agentName]
	if !ok {
		p := history.DefaultPolicy()
		policy = p
	}
	compacted, report, err := history.Compact(ctx, messages, in.tokenBudget, &policy, in.summarizer, nil)
	if err != nil {
		return fmt.Errorf("flow: history compaction for agent %q: %w", agentName, err)
	}
	if report.Applied {
		in.publish(ctx, events.NewHistoryCompactionEvent(runIDFromSession(sessionID), agentName, string(policy.Strategy), report.BeforeCount, report.AfterCount))
	}
	return in.sessions.Replace(ctx, sessionID, compacted)
}

func runIDFromSession(sessionID string) string {
	if i := strings.LastIndex(sessionID, ":"); i >= 0 {
		return sessionID[:i]
	}
	return sessionID
}

var interpPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// RenderPrompt implements textual `${name}` interpolation: a
// triple-quoted prompt body is copied verbatim except for explicit
// `${name}` (or `${name.prop}`) forms, which are substituted from vars.
func RenderPrompt(body string, vars Vars) string {
	return interpPattern.ReplaceAllStringFunc(body, func(m string) string {
		path := interpPattern.FindStringSubmatch(m)[1]
		parts := strings.Split(path, ".")
		var cur any = vars[parts[0]]
		for _, p := range parts[1:] {
			mp, ok := cur.(map[string]any)
			if !ok {
				return ""
			}
			cur = mp[p]
		}
		return Stringify(cur)
	})
}
