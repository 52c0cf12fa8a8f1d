// Package lexer scans Quill source text into a stream of Tokens.
package lexer

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Lexer consumes a source string and produces tokens on demand. Unlike the
// original design's null-terminated C buffer, Go strings already carry
// their length, so EOF is simply "position == len(source)".
type Lexer struct {
	source string
	start  int
	pos    int
	line   int
	log    logrus.FieldLogger
}

// Option configures a Lexer.
type Option func(*Lexer)

// WithLogger overrides the default logger (a fresh logrus logger at its
// default Info level, which drops the lexer's Debug-level messages),
// generalizing the teacher's variadic trace-bool parameter into an
// injected logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Lexer) { l.log = log }
}

// New returns a Lexer positioned at the start of source.
func New(source string, opts ...Option) *Lexer {
	l := &Lexer{
		source: source,
		line:   1,
		log:    logrus.New().WithField("component", "lexer"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) advance() byte {
	c := l.source[l.pos]
	l.pos++
	return c
}

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) match(expected byte) bool {
	if l.atEnd() || l.source[l.pos] != expected {
		return false
	}
	l.pos++
	return true
}

func (l *Lexer) makeToken(t TokenType) Token {
	return Token{Type: t, Lexeme: l.source[l.start:l.pos], Line: l.line}
}

func (l *Lexer) errorToken(msg string) Token {
	return Token{Type: TokenError, Lexeme: msg, Line: l.line}
}

// skipInsignificant consumes spaces, tabs, carriage returns, and
// line comments (// to end of line). Newlines are not skipped here: they
// are significant tokens in this grammar.
func (l *Lexer) skipInsignificant() {
	for {
		switch l.peek() {
		case ' ', '\t', '\r':
			l.advance()
		case '/':
			if l.peekNext() == '/' {
				for l.peek() != '\n' && !l.atEnd() {
					l.advance()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// NextToken scans and returns the next token, advancing the lexer.
func (l *Lexer) NextToken() Token {
	l.skipInsignificant()
	l.start = l.pos

	if l.atEnd() {
		return l.makeToken(TokenEOF)
	}

	c := l.advance()

	if c == '\n' {
		tok := l.makeToken(TokenNewline)
		tok.Line = l.line
		l.line++
		return tok
	}

	if isAlpha(c) {
		return l.readIdentifier()
	}
	if isDigit(c) {
		return l.readNumber()
	}

	switch c {
	case '(':
		return l.makeToken(TokenLParen)
	case ')':
		return l.makeToken(TokenRParen)
	case '{':
		return l.makeToken(TokenLBrace)
	case '}':
		return l.makeToken(TokenRBrace)
	case '+':
		return l.makeToken(TokenPlus)
	case '-':
		return l.makeToken(TokenMinus)
	case '*':
		return l.makeToken(TokenMultiply)
	case '/':
		return l.makeToken(TokenDivide)
	case '!':
		if l.match('=') {
			return l.makeToken(TokenNeq)
		}
		return l.makeToken(TokenNot)
	case '=':
		if l.match('=') {
			return l.makeToken(TokenEq)
		}
		return l.makeToken(TokenAssign)
	case '<':
		if l.match('=') {
			return l.makeToken(TokenLte)
		}
		return l.makeToken(TokenLt)
	case '>':
		if l.match('=') {
			return l.makeToken(TokenGte)
		}
		return l.makeToken(TokenGt)
	case '"':
		return l.readString()
	}

	l.log.WithFields(logrus.Fields{"line": l.line, "char": string(c)}).Debug("unexpected character")
	return l.errorToken(fmt.Sprintf("unexpected character '%c'", c))
}

func (l *Lexer) readIdentifier() Token {
	for isAlpha(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	lexeme := l.source[l.start:l.pos]
	if kw, ok := keywords[lexeme]; ok {
		return l.makeToken(kw)
	}
	return l.makeToken(TokenIdent)
}

func (l *Lexer) readNumber() Token {
	for isDigit(l.peek()) {
		l.advance()
	}
	return l.makeToken(TokenNumber)
}

// readString scans a double-quoted string literal. Escape sequences are
// not implemented (spec §4.1, §9): a backslash is just an ordinary
// character. Reaching EOF before the closing quote is a lex error rather
// than the infinite loop the original design has — the fix spec.md §9
// point 4 requires.
func (l *Lexer) readString() Token {
	for l.peek() != '"' && !l.atEnd() {
		if l.peek() == '\n' {
			l.line++
		}
		l.advance()
	}
	if l.atEnd() {
		return l.errorToken("unterminated string")
	}
	l.advance() // closing quote
	tok := l.makeToken(TokenString)
	tok.Lexeme = l.source[l.start+1 : l.pos-1]
	return tok
}
