// Package lexer implements an indentation-sensitive tokenizer. It turns a
// UTF-8 source file into a flat token stream with explicit
// INDENT/DEDENT/NEWLINE markers, the way Python's tokenizer does, so the
// recursive-descent parser never has to reason about whitespace.
package lexer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/streetrace-ai/streetrace/lang/diag"
	"github.com/streetrace-ai/streetrace/lang/token"
)

// mode tracks the lexer's two states: normal tokenizing and inside a
// triple-quoted string body.
type mode int

const (
	modeNormal mode = iota
	modeTripleString
)

var (
	reVersion = regexp.MustCompile(`^v[0-9]+(\.[0-9]+)?`)
	reProviderModel = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*/[-\w.]+`)
	reLocalPath = regexp.MustCompile(`^(\./|\.\./|/)[^\s,)\]]*`)
	reMcpURI = regexp.MustCompile(`^mcp://[^\s,)\]]*`)
	rePipURI = regexp.MustCompile(`^pip:[^\s,)\]]*`)
)

// Lexer tokenizes a single source file.
type Lexer struct {
	file string
	src []byte

	offset int // byte offset of the lexer's read cursor
	line int
	column int

	mode mode
	tripleQuote rune // quote character that opened the active triple string

	indents []int // indentation stack, in columns; indents[0] == 0
	atLineStart bool
	bracketDepth int // paren/brack/brace nesting; newlines inside are elided

	diags *diag.Batch
	done bool
}

// New creates a Lexer over src for the named file.
func New(file string, src []byte) *Lexer {
	return &Lexer{
		file: file,
		src: src,
		line: 1,
		column: 1,
		indents: []int{0},
		atLineStart: true,
		diags: diag.NewBatch(file),
	}
}

// Diagnostics returns every lex error accumulated so far.
func (l *Lexer) Diagnostics() *diag.Batch {
	return l.diags
}

// Tokenize runs the lexer to completion and returns the full token stream,
// terminated by a single EOF token. Lex errors are recorded on Diagnostics()
// but do not stop tokenization of the remainder of the file (callers should
// check HasErrors before proceeding to the parser).
func Tokenize(file string, src []byte) ([]token.Token, *diag.Batch) {
	l := New(file, src)
	var toks []token.Token
	for {
		t := l.Next()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			break
		}
	}
	return toks, l.diags
}

func (l *Lexer) pos() token.Position {
	return token.Position{File: l.file, Line: l.line, Column: l.column, Offset: l.offset}
}

func (l *Lexer) peekByte() (byte, bool) {
	if l.offset >= len(l.src) {
		return 0, false
	}
	return l.src[l.offset], true
}

func (l *Lexer) peekRune() (rune, int) {
	if l.offset >= len(l.src) {
		return 0, 0
	}
	r, size := utf8.DecodeRune(l.src[l.offset:])
	return r, size
}

func (l *Lexer) advance() rune {
	r, size := l.peekRune()
	if size == 0 {
		return 0
	}
	l.offset += size
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func (l *Lexer) rest() string {
	return string(l.src[l.offset:])
}

// Next returns the next token in the stream. Once EOF has been returned, it
// is returned on every subsequent call.
func (l *Lexer) Next() token.Token {
	if l.done {
		return l.eofToken()
	}

	if l.mode == modeTripleString {
		return l.lexTripleStringBody()
	}

	if l.atLineStart && l.bracketDepth == 0 {
		if t, ok := l.handleIndentation(); ok {
			return t
		}
	}

	l.skipIntraLineWhitespaceAndComments()

	start := l.pos()
	r, size := l.peekRune()
	if size == 0 {
		return l.eofTokenAt(start)
	}

	switch {
	case r == '\n':
		l.advance()
		if l.bracketDepth > 0 {
			return l.Next()
		}
		l.atLineStart = true
		return token.Token{Kind: token.NEWLINE, Text: "\n", Span: token.Span{Start: start, End: l.pos()}}
	case r == '#':
		l.skipLineComment()
		return l.Next()
	case r == '"' || r == '\'':
		return l.lexString(r, start)
	case r == '$':
		return l.lexVariable(start)
	case unicode.IsDigit(r):
		return l.lexNumber(start)
	case strings.HasPrefix(l.rest(), "mcp://"):
		return l.lexURI(start, token.MCP_URI, reMcpURI)
	case strings.HasPrefix(l.rest(), "pip:"):
		return l.lexURI(start, token.PIP_URI, rePipURI)
	case (r == '.' || r == '/') && reLocalPath.MatchString(l.rest()):
		return l.lexURI(start, token.LOCAL_PATH, reLocalPath)
	case isIdentStart(r):
		return l.lexWordlike(start)
	default:
		return l.lexPunct(start)
	}
}

func (l *Lexer) lexURI(start token.Position, kind token.Kind, re *regexp.Regexp) token.Token {
	m := re.FindString(l.rest())
	l.advanceBytes(len(m))
	return token.Token{Kind: kind, Text: m, Span: token.Span{Start: start, End: l.pos()}}
}

func (l *Lexer) eofToken() token.Token {
	p := l.pos()
	return token.Token{Kind: token.EOF, Span: token.Span{Start: p, End: p}}
}

func (l *Lexer) eofTokenAt(start token.Position) token.Token {
	// Close out any open indentation before signalling EOF, so the parser
	// sees a balanced INDENT/DEDENT stream even for files with no trailing
	// newline.
	if len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		return token.Token{Kind: token.DEDENT, Span: token.Span{Start: start, End: start}}
	}
	l.done = true
	return token.Token{Kind: token.EOF, Span: token.Span{Start: start, End: start}}
}

// handleIndentation consumes leading whitespace on a fresh logical line and
// emits INDENT/DEDENT tokens by comparing against the indentation stack.
// Blank lines and comment-only lines are skipped without affecting the
// stack. Returns ok=false if no INDENT/DEDENT needs emitting and normal
// tokenization should proceed.
func (l *Lexer) handleIndentation() (token.Token, bool) {
	start := l.pos()
	col := 0
	for {
		b, ok := l.peekByte()
		if !ok {
			break
		}
		if b == '\t' {
			l.diags.Errorf(diag.ELexError, token.Span{Start: l.pos(), End: l.pos()},
				"tabs are not allowed for indentation")
			l.advance()
			col++
			continue
		}
		if b != ' ' {
			break
		}
		l.advance()
		col++
	}

	// Blank line or comment-only line: skip without touching the indent stack.
	if b, ok := l.peekByte(); !ok || b == '\n' || b == '#' {
		if ok && b == '\n' {
			l.advance()
			return l.Next(), true
		}
		if ok && b == '#' {
			l.skipLineComment()
			if b2, ok2 := l.peekByte(); ok2 && b2 == '\n' {
				l.advance()
			}
			return l.Next(), true
		}
		l.atLineStart = false
		return token.Token{}, false
	}

	l.atLineStart = false
	top := l.indents[len(l.indents)-1]
	switch {
	case col > top:
		l.indents = append(l.indents, col)
		return token.Token{Kind: token.INDENT, Span: token.Span{Start: start, End: l.pos()}}, true
	case col < top:
		// Pop one level per DEDENT. While outer levels are still deeper than
		// col, rewind to the line start so the next call emits another
		// DEDENT; a partial dedent is a lex error.
		l.indents = l.indents[:len(l.indents)-1]
		if newTop := l.indents[len(l.indents)-1]; newTop > col {
			l.offset, l.line, l.column = start.Offset, start.Line, start.Column
			l.atLineStart = true
		} else if newTop != col {
			l.diags.Errorf(diag.ELexError, token.Span{Start: start, End: l.pos()},
				"unindent does not match any outer indentation level")
		}
		return token.Token{Kind: token.DEDENT, Span: token.Span{Start: start, End: l.pos()}}, true
	default:
		return token.Token{}, false
	}
}

func (l *Lexer) skipIntraLineWhitespaceAndComments() {
	for {
		b, ok := l.peekByte()
		if !ok {
			return
		}
		if b == ' ' || b == '\t' {
			l.advance()
			continue
		}
		if b == '#' {
			l.skipLineComment()
			continue
		}
		return
	}
}

func (l *Lexer) skipLineComment() {
	for {
		b, ok := l.peekByte()
		if !ok || b == '\n' {
			return
		}
		l.advance()
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentCont(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *Lexer) lexVariable(start token.Position) token.Token {
	l.advance() // consume '$'
	var sb strings.Builder
	for {
		r, size := l.peekRune()
		if size == 0 || !isIdentCont(r) {
			break
		}
		sb.WriteRune(r)
		l.advance()
	}
	if sb.Len() == 0 {
		l.diags.Errorf(diag.ELexError, token.Span{Start: start, End: l.pos()}, "'$' must be followed by an identifier")
	}
	return token.Token{Kind: token.VARIABLE, Text: sb.String(), Span: token.Span{Start: start, End: l.pos()}}
}

func (l *Lexer) lexNumber(start token.Position) token.Token {
	var sb strings.Builder
	isFloat := false
	for {
		r, size := l.peekRune()
		if size == 0 {
			break
		}
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
			l.advance()
			continue
		}
		if r == '.' && !isFloat {
			// Only consume '.' as a decimal point if followed by a digit;
			// otherwise it's property access / end of statement.
			if next, nsize := utf8.DecodeRune(l.src[l.offset+size:]); nsize > 0 && unicode.IsDigit(next) {
				isFloat = true
				sb.WriteRune(r)
				l.advance()
				continue
			}
		}
		break
	}
	kind := token.INT
	if isFloat {
		kind = token.FLOAT
	}
	return token.Token{Kind: kind, Text: sb.String(), Span: token.Span{Start: start, End: l.pos()}}
}

// lexWordlike handles identifiers, keywords, VERSION, PROVIDER_MODEL,
// DOTTED_NAME, and URI tokens, all of which begin with a letter/underscore
// or (for paths) '.' or '/'. Longest-match wins among the specialized forms.
func (l *Lexer) lexWordlike(start token.Position) token.Token {
	rest := l.rest()

	if m := reVersion.FindString(rest); m != "" && looksLikeVersionContext(rest, m) {
		l.advanceBytes(len(m))
		return token.Token{Kind: token.VERSION, Text: m, Span: token.Span{Start: start, End: l.pos()}}
	}
	if m := reProviderModel.FindString(rest); m != "" {
		l.advanceBytes(len(m))
		return token.Token{Kind: token.PROVIDER_MODEL, Text: m, Span: token.Span{Start: start, End: l.pos()}}
	}

	var sb strings.Builder
	for {
		r, size := l.peekRune()
		if size == 0 || !isIdentCont(r) {
			break
		}
		sb.WriteRune(r)
		l.advance()
	}
	word := sb.String()

	// DOTTED_NAME: ident(.ident)+ with no intervening whitespace, not
	// followed by '(' (which would make '.' property/method-like instead).
	for {
		if b, ok := l.peekByte(); !ok || b != '.' {
			break
		}
		if next, nsize := utf8.DecodeRune(l.src[l.offset+1:]); nsize == 0 || !isIdentStart(next) {
			break
		}
		sb.WriteByte('.')
		l.advance()
		for {
			r, size := l.peekRune()
			if size == 0 || !isIdentCont(r) {
				break
			}
			sb.WriteRune(r)
			l.advance()
		}
	}
	full := sb.String()
	if strings.Contains(full, ".") {
		return token.Token{Kind: token.DOTTED, Text: full, Span: token.Span{Start: start, End: l.pos()}}
	}

	kind := token.Lookup(word)
	return token.Token{Kind: kind, Text: word, Span: token.Span{Start: start, End: l.pos()}}
}

// looksLikeVersionContext guards against matching "v1" when it's actually
// the start of a longer identifier like "v1beta_client".
func looksLikeVersionContext(rest, match string) bool {
	if len(rest) == len(match) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest[len(match):])
	return !isIdentCont(r)
}

func (l *Lexer) advanceBytes(n int) {
	for i := 0; i < n; {
		_, size := l.peekRune()
		if size == 0 {
			return
		}
		l.advance()
		i += size
	}
}

func (l *Lexer) lexString(quote rune, start token.Position) token.Token {
	rest := l.rest()
	tripleMarker := string(quote) + string(quote) + string(quote)
	if strings.HasPrefix(rest, tripleMarker) {
		l.advanceBytes(3)
		l.mode = modeTripleString
		l.tripleQuote = quote
		return l.lexTripleStringBody()
	}

	l.advance() // opening quote
	var sb strings.Builder
	for {
		r, size := l.peekRune()
		if size == 0 {
			l.diags.Errorf(diag.ELexError, token.Span{Start: start, End: l.pos()}, "unterminated string literal")
			break
		}
		if r == quote {
			l.advance()
			break
		}
		if r == '\\' {
			l.advance()
			esc, esize := l.peekRune()
			if esize == 0 {
				break
			}
			sb.WriteRune(unescape(esc))
			l.advance()
			continue
		}
		if r == '\n' {
			l.diags.Errorf(diag.ELexError, token.Span{Start: start, End: l.pos()}, "unterminated string literal")
			break
		}
		sb.WriteRune(r)
		l.advance()
	}
	return token.Token{Kind: token.STRING, Text: sb.String(), Span: token.Span{Start: start, End: l.pos()}}
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return r
	}
}

func (l *Lexer) lexTripleStringBody() token.Token {
	start := l.pos()
	closer := string(l.tripleQuote) + string(l.tripleQuote) + string(l.tripleQuote)
	var sb strings.Builder
	for {
		if strings.HasPrefix(l.rest(), closer) {
			l.advanceBytes(3)
			l.mode = modeNormal
			return token.Token{Kind: token.TRIPLE, Text: sb.String(), Span: token.Span{Start: start, End: l.pos()}}
		}
		r, size := l.peekRune()
		if size == 0 {
			l.diags.Errorf(diag.ELexError, token.Span{Start: start, End: l.pos()}, "unterminated triple-quoted string")
			l.mode = modeNormal
			return token.Token{Kind: token.TRIPLE, Text: sb.String(), Span: token.Span{Start: start, End: l.pos()}}
		}
		sb.WriteRune(r)
		l.advance()
	}
}

func (l *Lexer) lexPunct(start token.Position) token.Token {
	two := ""
	if l.offset+1 < len(l.src) {
		two = string(l.src[l.offset]) + string(l.src[l.offset+1])
	}
	switch two {
	case "->":
		l.advance()
		l.advance()
		return token.Token{Kind: token.ARROW, Text: "->", Span: token.Span{Start: start, End: l.pos()}}
	case "==":
		l.advance()
		l.advance()
		return token.Token{Kind: token.EQ, Text: "==", Span: token.Span{Start: start, End: l.pos()}}
	case "!=":
		l.advance()
		l.advance()
		return token.Token{Kind: token.NEQ, Text: "!=", Span: token.Span{Start: start, End: l.pos()}}
	case "<=":
		l.advance()
		l.advance()
		return token.Token{Kind: token.LE, Text: "<=", Span: token.Span{Start: start, End: l.pos()}}
	case ">=":
		l.advance()
		l.advance()
		return token.Token{Kind: token.GE, Text: ">=", Span: token.Span{Start: start, End: l.pos()}}
	}

	r := l.advance()
	kind := token.Illegal
	switch r {
	case ':':
		kind = token.COLON
	case ',':
		kind = token.COMMA
	case '.':
		kind = token.DOT
	case '(':
		kind = token.LPAREN
		l.bracketDepth++
	case ')':
		kind = token.RPAREN
		if l.bracketDepth > 0 {
			l.bracketDepth--
		}
	case '[':
		kind = token.LBRACK
		l.bracketDepth++
	case ']':
		kind = token.RBRACK
		if l.bracketDepth > 0 {
			l.bracketDepth--
		}
	case '{':
		kind = token.LBRACE
		l.bracketDepth++
	case '}':
		kind = token.RBRACE
		if l.bracketDepth > 0 {
			l.bracketDepth--
		}
	case '=':
		kind = token.ASSIGN
	case '?':
		kind = token.QUESTION
	case '~':
		kind = token.TILDE
	case '<':
		kind = token.LT
	case '>':
		kind = token.GT
	case '+':
		kind = token.PLUS
	case '-':
		kind = token.MINUS
	case '*':
		kind = token.STAR
	case '/':
		kind = token.SLASH
	default:
		l.diags.Errorf(diag.ELexError, token.Span{Start: start, End: l.pos()}, "unexpected character %q", r)
	}
	return token.Token{Kind: kind, Text: string(r), Span: token.Span{Start: start, End: l.pos()}}
}
