package parser

import (
	"strconv"
	"strings"

	"github.com/streetrace-ai/streetrace/lang/ast"
	"github.com/streetrace-ai/streetrace/lang/diag"
	"github.com/streetrace-ai/streetrace/lang/token"
)

// precedence levels, low to high. "or" binds loosest, unary tightest.
const (
	precNone = iota
	precOr
	precAnd
	precEquality // == != ~ contains
	precComparison // < > <= >=
	precAdditive // + -
	precMultiplicative
	precUnary
)

func binOpPrec(k token.Kind) (int, string) {
	switch k {
	case token.OR:
		return precOr, "or"
	case token.AND:
		return precAnd, "and"
	case token.EQ:
		return precEquality, "=="
	case token.NEQ:
		return precEquality, "!="
	case token.TILDE:
		return precEquality, "~"
	case token.CONTAINS:
		return precEquality, "contains"
	case token.LT:
		return precComparison, "<"
	case token.GT:
		return precComparison, ">"
	case token.LE:
		return precComparison, "<="
	case token.GE:
		return precComparison, ">="
	case token.PLUS:
		return precAdditive, "+"
	case token.MINUS:
		return precAdditive, "-"
	case token.STAR:
		return precMultiplicative, "*"
	case token.SLASH:
		return precMultiplicative, "/"
	default:
		return precNone, ""
	}
}

func (p *Parser) parseExpr() ast.Expr {
	return p.parseBinary(precOr)
}

func (p *Parser) parseBinary(minPrec int) ast.Expr {
	left := p.parseUnary()
	for {
		prec, op := binOpPrec(p.cur().Kind)
		if prec == precNone || prec < minPrec {
			return left
		}
		p.advance()
		// All binary operators here are left-associative, so the recursive
		// call requires strictly higher precedence than the current level.
		right := p.parseBinary(prec + 1)
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right, Span: token.Span{Start: left.SourceSpan().Start, End: right.SourceSpan().End}}
	}
}

func (p *Parser) parseUnary() ast.Expr {
	switch p.cur().Kind {
	case token.NOT:
		start := p.advance().Span
		operand := p.parseUnary()
		return &ast.UnaryExpr{Op: "not", Operand: operand, Span: token.Span{Start: start.Start, End: operand.SourceSpan().End}}
	case token.MINUS:
		start := p.advance().Span
		operand := p.parseUnary()
		return &ast.UnaryExpr{Op: "-", Operand: operand, Span: token.Span{Start: start.Start, End: operand.SourceSpan().End}}
	default:
		return p.parsePostfix(p.parsePrimary())
	}
}

// parsePostfix handles `.field` and `[index]` chains, and the `filter ...
// where ...` suffix form applied to a preceding list expression.
func (p *Parser) parsePostfix(base ast.Expr) ast.Expr {
	for {
		switch p.cur().Kind {
		case token.DOT:
			p.advance()
			prop := p.identOrKeywordText()
			base = &ast.PropertyAccess{Base: base, Property: prop, Span: token.Span{Start: base.SourceSpan().Start, End: p.toks[p.pos-1].Span.End}}
		case token.LBRACK:
			p.advance()
			idx := p.parseExpr()
			end := p.expect(token.RBRACK).Span
			base = &ast.IndexAccess{Base: base, Index: idx, Span: token.Span{Start: base.SourceSpan().Start, End: end.End}}
		default:
			return base
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	start := p.cur().Span
	switch p.cur().Kind {
	case token.INT:
		t := p.advance()
		n, _ := strconv.ParseInt(t.Text, 10, 64)
		return &ast.IntLit{Value: n, Span: t.Span}
	case token.FLOAT:
		t := p.advance()
		f, _ := strconv.ParseFloat(t.Text, 64)
		return &ast.FloatLit{Value: f, Span: t.Span}
	case token.STRING:
		t := p.advance()
		return &ast.StringLit{Value: t.Text, Span: t.Span}
	case token.TRIPLE:
		t := p.advance()
		return &ast.TripleStringLit{Value: t.Text, Span: t.Span}
	case token.TRUE:
		t := p.advance()
		return &ast.BoolLit{Value: true, Span: t.Span}
	case token.FALSE:
		t := p.advance()
		return &ast.BoolLit{Value: false, Span: t.Span}
	case token.NULL:
		t := p.advance()
		return &ast.NullLit{Span: t.Span}
	case token.VARIABLE:
		t := p.advance()
		return &ast.VarRef{Name: t.Text, Span: t.Span}
	case token.LPAREN:
		p.advance()
		e := p.parseExpr()
		p.expect(token.RPAREN)
		return e
	case token.LBRACK:
		return p.parseListLit()
	case token.LBRACE:
		return p.parseMapLit()
	case token.FILTER:
		return p.parseFilterExpr()
	case token.DOT:
		t := p.advance()
		if p.at(token.DOTTED) {
			// `.a.b` lexes as DOT followed by DOTTED "a.b".
			d := p.advance()
			span := token.Span{Start: t.Span.Start, End: d.Span.End}
			parts := strings.Split(d.Text, ".")
			e := ast.Expr(&ast.ImplicitProperty{Property: parts[0], Span: span})
			for _, part := range parts[1:] {
				e = &ast.PropertyAccess{Base: e, Property: part, Span: span}
			}
			return e
		}
		prop := p.identOrKeywordText()
		return &ast.ImplicitProperty{Property: prop, Span: token.Span{Start: t.Span.Start, End: p.toks[p.pos-1].Span.End}}
	case token.IDENT, token.DOTTED:
		t := p.advance()
		id := ast.Expr(&ast.Ident{Name: t.Text, Span: t.Span})
		if p.at(token.LPAREN) {
			return p.parseCallArgs(id, start)
		}
		return id
	default:
		p.errorf(p.cur().Span, diag.EParseError, "unexpected %s in expression", p.cur().Kind)
		t := p.advance()
		return &ast.NullLit{Span: t.Span}
	}
}

func (p *Parser) parseListLit() ast.Expr {
	start := p.advance().Span // '['
	l := &ast.ListLit{}
	for !p.at(token.RBRACK) && !p.at(token.EOF) {
		l.Elems = append(l.Elems, p.parseExpr())
		if p.at(token.COMMA) {
			p.advance()
		}
	}
	end := p.expect(token.RBRACK).Span
	l.Span = token.Span{Start: start.Start, End: end.End}
	return l
}

func (p *Parser) parseMapLit() ast.Expr {
	start := p.advance().Span // '{'
	m := &ast.MapLit{}
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		entryStart := p.cur().Span
		key := p.identOrKeywordText()
		p.expect(token.COLON)
		val := p.parseExpr()
		m.Entries = append(m.Entries, ast.MapEntry{Key: key, Value: val, Span: token.Span{Start: entryStart.Start, End: val.SourceSpan().End}})
		if p.at(token.COMMA) {
			p.advance()
		}
	}
	end := p.expect(token.RBRACE).Span
	m.Span = token.Span{Start: start.Start, End: end.End}
	return m
}

func (p *Parser) parseCallArgs(callee ast.Expr, start token.Span) ast.Expr {
	p.advance() // '('
	var args []ast.Param
	for !p.at(token.RPAREN) && !p.at(token.EOF) {
		argStart := p.cur().Span
		if (p.at(token.IDENT) || token.IsKeyword(p.cur().Kind)) && p.peekN(1).Kind == token.COLON {
			name := p.identOrKeywordText()
			p.advance() // ':'
			val := p.parseExpr()
			args = append(args, ast.Param{Name: name, Value: val, Span: token.Span{Start: argStart.Start, End: val.SourceSpan().End}})
		} else {
			val := p.parseExpr()
			args = append(args, ast.Param{Value: val, Span: val.SourceSpan()})
		}
		if p.at(token.COMMA) {
			p.advance()
		}
	}
	end := p.expect(token.RPAREN).Span
	return &ast.CallExpr{Callee: callee, Args: args, Span: token.Span{Start: start.Start, End: end.End}}
}

// parseFilterExpr parses `filter <expr> where <expr>`; the predicate
// expression may reference the element under test with a leading `.field`
// (ast.ImplicitProperty) instead of naming a flow variable.
func (p *Parser) parseFilterExpr() ast.Expr {
	start := p.advance().Span // 'filter'
	source := p.parseExpr()
	p.expect(token.WHERE)
	pred := p.parseExpr()
	return &ast.FilterExpr{Source: source, Predicate: pred, Span: token.Span{Start: start.Start, End: pred.SourceSpan().End}}
}
