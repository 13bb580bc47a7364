package parser

import (
	"strconv"

	"github.com/streetrace-ai/streetrace/lang/ast"
	"github.com/streetrace-ai/streetrace/lang/diag"
	"github.com/streetrace-ai/streetrace/lang/token"
)

// parseFlowStmt parses one statement inside a flow (or nested) body. It is
// passed to parseBlock as the per-line callback.
func (p *Parser) parseFlowStmt() ast.Stmt {
	switch p.cur().Kind {
	case token.VARIABLE:
		return p.parseAssignOrPropertyAssign()
	case token.RUN:
		return p.parseRunStmt()
	case token.CALL:
		return p.parseCallStmt()
	case token.RETURN:
		return p.parseReturnStmt()
	case token.PUSH:
		return p.parsePushStmt()
	case token.FOR:
		return p.parseForStmt()
	case token.PARALLEL:
		return p.parseParallelStmt()
	case token.MATCH:
		return p.parseMatchStmt()
	case token.IF:
		return p.parseIfStmt()
	case token.FAILURE:
		return p.parseFailureStmt()
	case token.ESCALATE:
		return p.parseEscalateStmt()
	case token.IDENT:
		if p.cur().Text == "loop" {
			return p.parseLoopStmt()
		}
		start := p.cur().Span
		e := p.parseExpr()
		return &ast.ExprStmt{Value: e, Span: token.Span{Start: start.Start, End: e.SourceSpan().End}}
	default:
		start := p.cur().Span
		e := p.parseExpr()
		return &ast.ExprStmt{Value: e, Span: token.Span{Start: start.Start, End: e.SourceSpan().End}}
	}
}

// parseLoopStmt parses `loop [max N] do ... end`.
// Neither "loop" nor "max" is a reserved word, so both are recognized contextually by their literal text,
// the same way parsePolicyDecl recognizes "cache".
func (p *Parser) parseLoopStmt() ast.Stmt {
	start := p.advance().Span // 'loop'
	max := 0
	if p.at(token.IDENT) && p.cur().Text == "max" {
		p.advance()
		n := p.expect(token.INT)
		v, _ := strconv.Atoi(n.Text)
		max = v
	}
	p.expect(token.DO)
	p.skipNewlines()
	p.expect(token.INDENT)
	var body []ast.Stmt
	for !p.at(token.DEDENT) && !p.at(token.EOF) {
		s := p.parseFlowStmt()
		if s != nil {
			body = append(body, s)
		}
		p.skipNewlines()
	}
	p.expect(token.DEDENT)
	p.skipNewlines()
	end := p.expect(token.END).Span
	return &ast.LoopStmt{Max: max, Body: body, Span: token.Span{Start: start.Start, End: end.End}}
}

func (p *Parser) parseAssignOrPropertyAssign() ast.Stmt {
	start := p.cur().Span
	name := p.advance().Text // VARIABLE already carries the name without '$'
	if p.at(token.DOT) {
		p.advance()
		prop := p.identOrKeywordText()
		p.expect(token.ASSIGN)
		val := p.parseExpr()
		return &ast.PropertyAssignStmt{Target: name, Property: prop, Value: val, Span: token.Span{Start: start.Start, End: val.SourceSpan().End}}
	}
	p.expect(token.ASSIGN)
	// `$x = run agent ...` / `$x = call llm ...` are the assignment-target
	// surface form of RunStmt/CallStmt, equivalent to the bare statement with
	// an `-> $x` suffix.
	if p.at(token.RUN) {
		r := p.parseRunCore(start.Start)
		r.Result = name
		return r
	}
	if p.at(token.CALL) {
		c := p.parseCallCore(start.Start)
		c.Result = name
		return c
	}
	val := p.parseExpr()
	return &ast.AssignStmt{Target: name, Value: val, Span: token.Span{Start: start.Start, End: val.SourceSpan().End}}
}

// parseRunCore parses `run agent|flow NAME [with <expr>] [, on escalate
// <handler>]`, shared by the bare `run ...` statement and the `$x = run ...`
// assignment form; neither sets Result or the final span end here.
func (p *Parser) parseRunCore(start token.Position) *ast.RunStmt {
	p.advance() // 'run'
	r := &ast.RunStmt{}
	switch p.cur().Kind {
	case token.AGENT:
		p.advance()
	case token.FLOW:
		r.IsFlow = true
		p.advance()
	}
	r.Agent = p.identOrKeywordText()
	if p.at(token.WITH) {
		p.advance()
		r.With = p.parseExpr()
	}
	if p.at(token.COMMA) {
		p.advance()
		r.OnEscalate = p.parseRunEscalateHandler()
	}
	r.Span = token.Span{Start: start, End: p.toks[p.pos-1].Span.End}
	return r
}

func (p *Parser) parseRunStmt() ast.Stmt {
	start := p.cur().Span.Start
	r := p.parseRunCore(start)
	if p.at(token.ARROW) {
		p.advance()
		r.Result = p.expect(token.VARIABLE).Text
		r.Span.End = p.toks[p.pos-1].Span.End
	}
	return r
}

// parseRunEscalateHandler parses `on escalate return <expr> | continue |
// abort`, distinct from the AgentDecl-level `on <expr>
// escalate to ...` clause.
func (p *Parser) parseRunEscalateHandler() *ast.RunEscalateHandler {
	start := p.advance().Span // 'on'
	p.expect(token.ESCALATE)
	h := &ast.RunEscalateHandler{}
	switch p.cur().Kind {
	case token.RETURN:
		p.advance()
		h.Kind = "return"
		h.Value = p.parseExpr()
	case token.CONTINUE:
		p.advance()
		h.Kind = "continue"
	case token.ABORT:
		p.advance()
		h.Kind = "abort"
	default:
		p.errorf(p.cur().Span, diag.EBadEscalation, "expected 'return', 'continue', or 'abort' after 'on escalate', found %s", p.cur().Kind)
		h.Kind = "abort"
	}
	h.Span = token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}
	return h
}

// parseCallCore parses `call llm PROMPT [with <expr>]`.
func (p *Parser) parseCallCore(start token.Position) *ast.CallStmt {
	p.advance() // 'call'
	if p.at(token.LLM) {
		p.advance()
	}
	c := &ast.CallStmt{Prompt: p.identOrKeywordText()}
	if p.at(token.WITH) {
		p.advance()
		c.With = p.parseExpr()
	}
	c.Span = token.Span{Start: start, End: p.toks[p.pos-1].Span.End}
	return c
}

func (p *Parser) parseCallStmt() ast.Stmt {
	start := p.cur().Span.Start
	c := p.parseCallCore(start)
	if p.at(token.ARROW) {
		p.advance()
		c.Result = p.expect(token.VARIABLE).Text
		c.Span.End = p.toks[p.pos-1].Span.End
	}
	return c
}

func (p *Parser) parseReturnStmt() ast.Stmt {
	start := p.advance().Span // 'return'
	if p.at(token.NEWLINE) || p.at(token.DEDENT) || p.at(token.EOF) {
		return &ast.ReturnStmt{Span: start}
	}
	val := p.parseExpr()
	return &ast.ReturnStmt{Value: val, Span: token.Span{Start: start.Start, End: val.SourceSpan().End}}
}

func (p *Parser) parsePushStmt() ast.Stmt {
	start := p.advance().Span // 'push'
	val := p.parseExpr()
	p.expect(token.TO)
	target := p.expect(token.VARIABLE).Text
	return &ast.PushStmt{Value: val, Target: target, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
}

func (p *Parser) parseForStmt() ast.Stmt {
	start := p.advance().Span // 'for'
	v := p.expect(token.VARIABLE).Text
	p.expect(token.IN)
	iter := p.parseExpr()
	body := p.parseBlock(p.parseFlowStmt)
	return &ast.ForStmt{Var: v, Iter: iter, Body: body, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
}

// parseParallelStmt parses:
//
//	parallel:
//	  step:
//	    <stmts>
//	  step:
//	    <stmts>
//
// Each `step:` block is a branch run concurrently; a bare statement
// directly under `parallel:` is a branch of its own.
func (p *Parser) parseParallelStmt() ast.Stmt {
	start := p.advance().Span // 'parallel'
	p.expect(token.COLON)
	p.skipNewlines()
	p.expect(token.INDENT)
	var branches [][]ast.Stmt
	for !p.at(token.DEDENT) && !p.at(token.EOF) {
		if p.at(token.STEP) {
			p.advance()
			branch := p.parseBlock(p.parseFlowStmt)
			branches = append(branches, branch)
		} else {
			// Single bare statement directly under parallel: is its own branch.
			s := p.parseFlowStmt()
			branches = append(branches, []ast.Stmt{s})
		}
		p.skipNewlines()
	}
	end := p.cur().Span
	p.expect(token.DEDENT)
	return &ast.ParallelStmt{Branches: branches, Span: token.Span{Start: start.Start, End: end.End}}
}

func (p *Parser) parseMatchStmt() ast.Stmt {
	start := p.advance().Span // 'match'
	subject := p.parseExpr()
	p.expect(token.COLON)
	p.skipNewlines()
	p.expect(token.INDENT)
	m := &ast.MatchStmt{Subject: subject}
	for p.at(token.WHEN) {
		caseStart := p.advance().Span
		cond := p.parseExpr()
		body := p.parseBlock(p.parseFlowStmt)
		m.Cases = append(m.Cases, ast.MatchCase{Cond: cond, Body: body, Span: token.Span{Start: caseStart.Start, End: p.toks[p.pos-1].Span.End}})
		p.skipNewlines()
	}
	if p.at(token.ELSE) {
		p.advance()
		m.Else = p.parseBlock(p.parseFlowStmt)
		p.skipNewlines()
	}
	end := p.cur().Span
	p.expect(token.DEDENT)
	m.Span = token.Span{Start: start.Start, End: end.End}
	return m
}

func (p *Parser) parseIfStmt() ast.Stmt {
	start := p.advance().Span // 'if'
	cond := p.parseExpr()
	then := p.parseBlock(p.parseFlowStmt)
	s := &ast.IfStmt{Cond: cond, Then: then}
	p.skipNewlines()
	if p.at(token.ELSE) {
		p.advance()
		if p.at(token.IF) {
			elseIf := p.parseIfStmt()
			s.Else = []ast.Stmt{elseIf}
		} else {
			s.Else = p.parseBlock(p.parseFlowStmt)
		}
	}
	s.Span = token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}
	return s
}

func (p *Parser) parseFailureStmt() ast.Stmt {
	start := p.advance().Span // 'failure'
	body := p.parseBlock(p.parseFlowStmt)
	return &ast.FailureStmt{Body: body, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
}

func (p *Parser) parseEscalateStmt() ast.Stmt {
	start := p.advance().Span // 'escalate'
	action := p.parseEscalationAction()
	return &ast.EscalateStmt{Action: action, Span: token.Span{Start: start.Start, End: action.SourceSpan().End}}
}
