// Package parser implements a recursive-descent parser with a single token
// of lookahead and no backtracking: the short and long forms of model/tool
// declarations are told apart by whether a NEWLINE follows the colon.
package parser

import (
	"strconv"

	"github.com/streetrace-ai/streetrace/lang/ast"
	"github.com/streetrace-ai/streetrace/lang/diag"
	"github.com/streetrace-ai/streetrace/lang/lexer"
	"github.com/streetrace-ai/streetrace/lang/token"
)

// Parser turns a token stream into a lang/ast.File.
type Parser struct {
	file string
	toks []token.Token
	pos int
	diags *diag.Batch
}

// Parse lexes and parses a full source file, returning the resulting AST and
// every diagnostic accumulated by the lexer and parser together.
func Parse(file string, src []byte) (*ast.File, *diag.Batch) {
	toks, lexDiags := lexer.Tokenize(file, src)
	p := &Parser{file: file, toks: toks, diags: diag.NewBatch(file)}
	f := p.parseFile()
	for _, d := range lexDiags.Diags {
		p.diags.Add(d)
	}
	return f, p.diags
}

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[p.pos]
}

func (p *Parser) peekN(n int) token.Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) at(k token.Kind) bool {
	return p.cur().Kind == k
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k token.Kind) token.Token {
	if !p.at(k) {
		p.errorf(p.cur().Span, diag.EParseError, "expected %s, found %s", k, p.cur().Kind)
		return p.cur()
	}
	return p.advance()
}

func (p *Parser) errorf(span token.Span, code diag.Code, format string, args ...any) {
	p.diags.Errorf(code, span, format, args...)
}

// skipNewlines consumes zero or more NEWLINE tokens (blank statement
// separators); it never crosses an INDENT/DEDENT boundary.
func (p *Parser) skipNewlines() {
	for p.at(token.NEWLINE) {
		p.advance()
	}
}

// synchronize advances past tokens until the next NEWLINE/DEDENT/EOF, used
// to recover after a parse error so one bad line doesn't cascade.
func (p *Parser) synchronize() {
	for !p.at(token.NEWLINE) && !p.at(token.DEDENT) && !p.at(token.EOF) {
		p.advance()
	}
	p.skipNewlines()
}

func (p *Parser) parseFile() *ast.File {
	start := p.cur().Span
	f := &ast.File{}
	p.skipNewlines()
	for !p.at(token.EOF) {
		d := p.parseDecl()
		if d != nil {
			f.Decls = append(f.Decls, d)
		}
		p.skipNewlines()
	}
	f.Span = token.Span{Start: start.Start, End: p.cur().Span.End}
	return f
}

// parseBlock parses an INDENT ... DEDENT delimited sequence of statements,
// used for every `:` -introduced body in the grammar.
func (p *Parser) parseBlock(parseOne func() ast.Stmt) []ast.Stmt {
	p.expect(token.COLON)
	p.skipNewlines()
	p.expect(token.INDENT)
	var stmts []ast.Stmt
	for !p.at(token.DEDENT) && !p.at(token.EOF) {
		s := parseOne()
		if s != nil {
			stmts = append(stmts, s)
		}
		p.skipNewlines()
	}
	p.expect(token.DEDENT)
	return stmts
}

func (p *Parser) parseDecl() ast.Decl {
	switch p.cur().Kind {
	case token.IMPORT:
		return p.parseImportDecl()
	case token.MODEL:
		return p.parseModelDecl()
	case token.SCHEMA:
		return p.parseSchemaDecl()
	case token.TOOL:
		return p.parseToolDecl()
	case token.PROMPT:
		return p.parsePromptDecl()
	case token.POLICY:
		return p.parsePolicyDecl()
	case token.AGENT:
		return p.parseAgentDecl()
	case token.FLOW:
		return p.parseFlowDecl()
	default:
		p.errorf(p.cur().Span, diag.EParseError, "expected a top-level declaration, found %s", p.cur().Kind)
		p.synchronize()
		return nil
	}
}

func (p *Parser) parseImportDecl() ast.Decl {
	start := p.advance().Span // 'import'
	name := p.expect(token.IDENT).Text
	p.expect(token.FROM)
	pathTok := p.expect(token.STRING)
	end := pathTok.Span
	p.skipNewlines()
	return &ast.ImportDecl{Name: name, Path: pathTok.Text, Span: token.Span{Start: start.Start, End: end.End}}
}

// parseModelDecl handles both:
//
//	model NAME: provider/model vVERSION
//
// and the long form:
//
//	model NAME:
//	  provider/model vVERSION
//	  with:
//	    temperature: 0.2
func (p *Parser) parseModelDecl() ast.Decl {
	start := p.advance().Span // 'model'
	name := p.identOrKeywordText()
	p.expect(token.COLON)

	d := &ast.ModelDecl{Name: name}
	if !p.at(token.NEWLINE) {
		p.parseModelHeader(d)
		d.Span = token.Span{Start: start.Start, End: p.cur().Span.Start}
		p.skipNewlines()
		return d
	}

	p.skipNewlines()
	p.expect(token.INDENT)
	p.parseModelHeader(d)
	p.skipNewlines()
	for p.at(token.WITH) {
		p.advance()
		if p.at(token.COLON) {
			p.advance()
		}
		p.skipNewlines()
		p.expect(token.INDENT)
		for !p.at(token.DEDENT) && !p.at(token.EOF) {
			d.Params = append(d.Params, p.parseParamLine())
			p.skipNewlines()
		}
		p.expect(token.DEDENT)
		p.skipNewlines()
	}
	end := p.cur().Span
	p.expect(token.DEDENT)
	d.Span = token.Span{Start: start.Start, End: end.End}
	return d
}

func (p *Parser) parseModelHeader(d *ast.ModelDecl) {
	if p.at(token.PROVIDER_MODEL) {
		d.Provider = p.advance().Text
	} else {
		p.errorf(p.cur().Span, diag.EParseError, "expected provider/model identifier, found %s", p.cur().Kind)
	}
	if p.at(token.VERSION) {
		d.Version = p.advance().Text
	}
}

func (p *Parser) parseParamLine() ast.Param {
	start := p.cur().Span
	name := p.identOrKeywordText()
	p.expect(token.COLON)
	val := p.parseExpr()
	return ast.Param{Name: name, Value: val, Span: token.Span{Start: start.Start, End: val.SourceSpan().End}}
}

func (p *Parser) parseSchemaDecl() ast.Decl {
	start := p.advance().Span // 'schema'
	name := p.identOrKeywordText()
	p.expect(token.COLON)
	p.skipNewlines()
	p.expect(token.INDENT)
	d := &ast.SchemaDecl{Name: name}
	for !p.at(token.DEDENT) && !p.at(token.EOF) {
		d.Fields = append(d.Fields, p.parseSchemaField())
		p.skipNewlines()
	}
	end := p.cur().Span
	p.expect(token.DEDENT)
	d.Span = token.Span{Start: start.Start, End: end.End}
	return d
}

func (p *Parser) parseSchemaField() ast.SchemaField {
	start := p.cur().Span
	name := p.identOrKeywordText()
	optional := false
	if p.at(token.QUESTION) {
		optional = true
		p.advance()
	}
	p.expect(token.COLON)
	typ := p.parseSchemaType()
	end := typ.SourceSpan().End
	if p.at(token.QUESTION) {
		optional = true
		end = p.advance().Span.End
	}
	return ast.SchemaField{Name: name, Type: typ, Optional: optional, Span: token.Span{Start: start.Start, End: end}}
}

func (p *Parser) parseSchemaType() ast.SchemaType {
	start := p.cur().Span
	if p.at(token.LBRACK) {
		p.advance()
		elem := p.parseSchemaType()
		end := p.expect(token.RBRACK).Span
		return &ast.ListType{Elem: elem, Span: token.Span{Start: start.Start, End: end.End}}
	}
	name := p.identOrKeywordText()
	switch name {
	case "string", "int", "float", "bool", "any":
		return &ast.BaseType{Name: name, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
	default:
		return &ast.RefType{Name: name, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
	}
}

// parseToolDecl handles the short form:
//
//	tool NAME: builtin "name"
//	tool NAME: ./local/path.py
//
// and the long inline form with description/params/produces.
func (p *Parser) parseToolDecl() ast.Decl {
	start := p.advance().Span // 'tool'
	name := p.identOrKeywordText()
	p.expect(token.COLON)

	d := &ast.ToolDecl{Name: name}
	if !p.at(token.NEWLINE) {
		p.parseToolHeader(d)
		d.Span = token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}
		p.skipNewlines()
		return d
	}

	p.skipNewlines()
	p.expect(token.INDENT)
	for !p.at(token.DEDENT) && !p.at(token.EOF) {
		switch p.cur().Kind {
		case token.DESCRIPTION:
			p.advance()
			p.expect(token.COLON)
			d.Description = p.parseStringLike()
		case token.BUILTIN, token.LOCAL_PATH, token.PIP_URI, token.MCP_URI, token.STRING:
			p.parseToolHeader(d)
		case token.PRODUCES:
			p.advance()
			p.expect(token.COLON)
			d.Produces = p.parseSchemaType()
		case token.WITH:
			p.advance()
			p.skipNewlines()
			p.expect(token.INDENT)
			for !p.at(token.DEDENT) && !p.at(token.EOF) {
				d.Params = append(d.Params, p.parseParamLine())
				p.skipNewlines()
			}
			p.expect(token.DEDENT)
		default:
			p.errorf(p.cur().Span, diag.EParseError, "unexpected %s in tool declaration", p.cur().Kind)
			p.synchronize()
		}
		p.skipNewlines()
	}
	end := p.cur().Span
	p.expect(token.DEDENT)
	d.Span = token.Span{Start: start.Start, End: end.End}
	return d
}

func (p *Parser) parseToolHeader(d *ast.ToolDecl) {
	switch p.cur().Kind {
	case token.BUILTIN:
		p.advance()
		d.Kind = "builtin"
		d.Source = p.parseStringLike()
	case token.LOCAL_PATH:
		d.Kind = "source"
		d.Source = p.advance().Text
	case token.PIP_URI:
		d.Kind = "source"
		d.Source = p.advance().Text
	case token.MCP_URI:
		d.Kind = "source"
		d.Source = p.advance().Text
	case token.STRING:
		d.Kind = "source"
		d.Source = p.advance().Text
	default:
		p.errorf(p.cur().Span, diag.EParseError, "expected a tool source, found %s", p.cur().Kind)
	}
}

func (p *Parser) parseStringLike() string {
	if p.at(token.TRIPLE) {
		return p.advance().Text
	}
	return p.expect(token.STRING).Text
}

// parsePromptDecl handles forward declaration (`prompt NAME`) and the body
// form (`prompt NAME: """..."""`); repeated declarations of the same name
// are merged by the semantic analyzer.
func (p *Parser) parsePromptDecl() ast.Decl {
	start := p.advance().Span // 'prompt'
	name := p.identOrKeywordText()
	d := &ast.PromptDecl{Name: name}
	if p.at(token.COLON) {
		p.advance()
		p.skipNewlines()
		if p.at(token.INDENT) {
			p.advance()
			d.Body = p.parseStringLike()
			p.skipNewlines()
			if p.at(token.ESCALATE) {
				d.Escalate = p.parsePromptEscalation()
				p.skipNewlines()
			}
			p.expect(token.DEDENT)
		} else {
			d.Body = p.parseStringLike()
		}
	}
	d.Span = token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}
	p.skipNewlines()
	return d
}

// parsePromptEscalation parses `escalate if <op> "<value>"` attached to a
// prompt body, distinct from the AgentDecl-level `on <expr>
// escalate to ...` clause parsed by parseEscalationClause.
func (p *Parser) parsePromptEscalation() *ast.EscalationSpec {
	start := p.advance().Span // 'escalate'
	p.expect(token.IF)
	var op string
	switch p.cur().Kind {
	case token.TILDE, token.EQ, token.NEQ, token.CONTAINS:
		op = p.advance().Text
	default:
		p.errorf(p.cur().Span, diag.EBadEscalation, "expected '~', '==', '!=', or 'contains' after 'escalate if', found %s", p.cur().Kind)
	}
	value := p.parseStringLike()
	return &ast.EscalationSpec{Op: op, Value: value, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
}

func (p *Parser) parsePolicyDecl() ast.Decl {
	start := p.advance().Span // 'policy'
	name := p.identOrKeywordText()
	p.expect(token.COLON)
	p.skipNewlines()
	p.expect(token.INDENT)
	d := &ast.PolicyDecl{Name: name}
	for !p.at(token.DEDENT) && !p.at(token.EOF) {
		switch p.cur().Kind {
		case token.RETRY:
			p.advance()
			d.Kind = "retry"
			d.Retry = p.parseRetryPolicyBody()
		case token.TIMEOUT:
			p.advance()
			d.Kind = "timeout"
			d.Timeout = p.parseTimeoutPolicyBody()
		case token.IDENT:
			// "cache" is not reserved; recognize it contextually.
			if p.cur().Text == "cache" {
				p.advance()
				d.Kind = "cache"
				d.Cache = p.parseCachePolicyBody()
			} else {
				p.errorf(p.cur().Span, diag.EParseError, "unknown policy kind %q", p.cur().Text)
				p.synchronize()
			}
		default:
			p.errorf(p.cur().Span, diag.EParseError, "unexpected %s in policy declaration", p.cur().Kind)
			p.synchronize()
		}
		p.skipNewlines()
	}
	end := p.cur().Span
	p.expect(token.DEDENT)
	d.Span = token.Span{Start: start.Start, End: end.End}
	return d
}

func (p *Parser) parseRetryPolicyBody() *ast.RetryPolicy {
	start := p.cur().Span
	rp := &ast.RetryPolicy{MaxAttempts: 1}
	if p.at(token.COLON) {
		p.advance()
		p.skipNewlines()
		p.expect(token.INDENT)
		for !p.at(token.DEDENT) && !p.at(token.EOF) {
			switch {
			case p.at(token.INT) && p.peekN(1).Kind == token.TIMES:
				n, _ := strconv.Atoi(p.advance().Text)
				p.advance() // 'times'
				rp.MaxAttempts = n
			case p.at(token.BACKOFF):
				p.advance()
				p.expect(token.COLON)
				rp.Backoff = p.parseBackoffSpec()
			default:
				p.errorf(p.cur().Span, diag.EParseError, "unexpected %s in retry policy", p.cur().Kind)
				p.synchronize()
			}
			p.skipNewlines()
		}
		p.expect(token.DEDENT)
	}
	rp.Span = token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}
	return rp
}

func (p *Parser) parseBackoffSpec() ast.BackoffSpec {
	start := p.cur().Span
	strategy := "fixed"
	switch p.cur().Kind {
	case token.EXPONENTIAL:
		strategy = "exponential"
		p.advance()
	case token.LINEAR:
		strategy = "linear"
		p.advance()
	case token.FIXED:
		strategy = "fixed"
		p.advance()
	}
	base := p.parseDurationLit()
	return ast.BackoffSpec{Strategy: strategy, Base: base, Span: token.Span{Start: start.Start, End: base.Span.End}}
}

func (p *Parser) parseDurationLit() ast.DurationLit {
	start := p.cur().Span
	n, _ := strconv.Atoi(p.expect(token.INT).Text)
	unit := "seconds"
	switch p.cur().Kind {
	case token.SECONDS:
		p.advance()
	case token.MINUTES:
		unit = "minutes"
		p.advance()
	case token.HOURS:
		unit = "hours"
		p.advance()
	}
	return ast.DurationLit{Value: n, Unit: unit, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
}

func (p *Parser) parseTimeoutPolicyBody() *ast.TimeoutPolicy {
	p.expect(token.COLON)
	d := p.parseDurationLit()
	return &ast.TimeoutPolicy{Duration: d, Span: d.Span}
}

func (p *Parser) parseCachePolicyBody() *ast.CachePolicy {
	start := p.cur().Span
	p.expect(token.COLON)
	if p.at(token.NEWLINE) {
		p.skipNewlines()
		p.expect(token.INDENT)
		trigger := p.identOrKeywordText()
		end := p.toks[p.pos-1].Span.End
		p.skipNewlines()
		p.expect(token.DEDENT)
		return &ast.CachePolicy{Trigger: trigger, Span: token.Span{Start: start.Start, End: end}}
	}
	trigger := p.identOrKeywordText()
	return &ast.CachePolicy{Trigger: trigger, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
}

func (p *Parser) parseAgentDecl() ast.Decl {
	start := p.advance().Span // 'agent'
	name := p.identOrKeywordText()
	p.expect(token.COLON)
	p.skipNewlines()
	p.expect(token.INDENT)
	d := &ast.AgentDecl{Name: name}
	for !p.at(token.DEDENT) && !p.at(token.EOF) {
		switch p.cur().Kind {
		case token.MODEL:
			p.advance()
			p.expect(token.COLON)
			d.Model = p.identOrKeywordText()
		case token.TOOLS:
			p.advance()
			p.expect(token.COLON)
			d.Tools = p.parseNameList()
		case token.INSTRUCTION:
			p.advance()
			p.expect(token.COLON)
			if p.at(token.TRIPLE) || p.at(token.STRING) {
				d.Instruction = p.parseStringLike()
			} else {
				d.Instruction = p.identOrKeywordText()
			}
		case token.PRODUCES:
			p.advance()
			p.expect(token.COLON)
			d.Produces = p.parseSchemaType()
		case token.POLICY:
			p.advance()
			p.expect(token.COLON)
			d.Policies = p.parseNameList()
		case token.ON:
			d.Escalation = append(d.Escalation, p.parseEscalationClause())
		default:
			p.errorf(p.cur().Span, diag.EParseError, "unexpected %s in agent declaration", p.cur().Kind)
			p.synchronize()
		}
		p.skipNewlines()
	}
	end := p.cur().Span
	p.expect(token.DEDENT)
	d.Span = token.Span{Start: start.Start, End: end.End}
	return d
}

func (p *Parser) parseNameList() []string {
	var names []string
	if p.at(token.LBRACK) {
		p.advance()
		for !p.at(token.RBRACK) && !p.at(token.EOF) {
			names = append(names, p.identOrKeywordText())
			if p.at(token.COMMA) {
				p.advance()
			}
		}
		p.expect(token.RBRACK)
		return names
	}
	names = append(names, p.identOrKeywordText())
	for p.at(token.COMMA) {
		p.advance()
		names = append(names, p.identOrKeywordText())
	}
	return names
}

// parseEscalationClause parses `on <expr> escalate to human: "msg"` and the
// sibling `log`/`notify` action forms.
func (p *Parser) parseEscalationClause() ast.EscalationClause {
	start := p.advance().Span // 'on'
	cond := p.parseExpr()
	p.expect(token.ESCALATE)
	action := p.parseEscalationAction()
	return ast.EscalationClause{Condition: cond, Action: action, Span: token.Span{Start: start.Start, End: action.SourceSpan().End}}
}

func (p *Parser) parseEscalationAction() ast.EscalationAction {
	start := p.cur().Span
	switch p.cur().Kind {
	case token.TO:
		p.advance()
		p.expect(token.HUMAN)
		msg := ""
		if p.at(token.COLON) {
			p.advance()
			msg = p.parseStringLike()
		}
		return &ast.EscalateHuman{Message: msg, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
	case token.LOG:
		p.advance()
		msg := ""
		if p.at(token.COLON) {
			p.advance()
			msg = p.parseStringLike()
		}
		return &ast.LogAction{Message: msg, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
	case token.NOTIFY:
		p.advance()
		target := p.identOrKeywordText()
		msg := ""
		if p.at(token.COLON) {
			p.advance()
			msg = p.parseStringLike()
		}
		return &ast.NotifyAction{Target: target, Message: msg, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
	default:
		p.errorf(p.cur().Span, diag.EBadEscalation, "expected 'to human', 'log', or 'notify' after 'escalate', found %s", p.cur().Kind)
		p.synchronize()
		return &ast.LogAction{Span: start}
	}
}

func (p *Parser) parseFlowDecl() ast.Decl {
	start := p.advance().Span // 'flow'
	name := p.identOrKeywordText()
	body := p.parseBlock(p.parseFlowStmt)
	return &ast.FlowDecl{Name: name, Body: body, Span: token.Span{Start: start.Start, End: p.toks[p.pos-1].Span.End}}
}

// identOrKeywordText consumes the current token as a name even if it happens
// to be a reserved word used contextually (common in `with` block keys like
// "from"), returning its literal text.
func (p *Parser) identOrKeywordText() string {
	t := p.cur()
	if t.Kind == token.IDENT || token.IsKeyword(t.Kind) {
		p.advance()
		return t.Text
	}
	p.errorf(t.Span, diag.EParseError, "expected a name, found %s", t.Kind)
	return ""
}
