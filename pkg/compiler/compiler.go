// Package compiler implements the single-pass Pratt parser/compiler: it
// walks a token stream from package lexer and emits bytecode directly into
// a chunk.Chunk, with no separate AST stage.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/josharian/intern"
	"github.com/sirupsen/logrus"

	"github.com/rmay/quillvm/pkg/chunk"
	"github.com/rmay/quillvm/pkg/lexer"
	"github.com/rmay/quillvm/pkg/value"
)

// maxLocals bounds the number of local slots one compile unit can hold,
// since OP_GET_LOCAL/OP_SET_LOCAL carry a one-byte slot operand.
const maxLocals = 256

// local tracks one declared name and the scope depth it was declared at.
type local struct {
	name  string
	depth int
}

// Compiler holds all state for one compilation: the token stream, the
// in-progress chunk, the local-variable scope stack, and accumulated
// diagnostics. There is one Compiler per compile unit; nested function
// compilers are not needed since this snapshot never emits a closure.
type Compiler struct {
	lex  *lexer.Lexer
	prev lexer.Token
	curr lexer.Token

	chunk    *chunk.Chunk
	heap     *value.Heap
	interner *value.Interner

	locals     []local
	scopeDepth int

	errs *multierror.Error
	log  logrus.FieldLogger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger overrides the default logger used for diagnostic tracing.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Compiler) { c.log = log }
}

// Compile compiles source into a top-level Function (the implicit script
// function, per the data model — Name is empty). Every object allocated
// during compilation, including the Function itself and every interned
// string constant, is tracked in heap. The returned error is nil, or a
// *multierror.Error aggregating every diagnostic produced; callers that
// only care about pass/fail can treat a non-nil error as COMPILE_ERROR.
func Compile(source string, heap *value.Heap, opts ...Option) (*chunk.Function, error) {
	fn := chunk.NewFunction(heap, "")

	c := &Compiler{
		lex:      lexer.New(source),
		chunk:    fn.Chunk,
		heap:     heap,
		interner: value.NewInterner(heap),
		log:      logrus.New().WithField("component", "compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.advance()
	c.ignoreNewlines()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
		if !c.matchLine() {
			c.consume(lexer.TokenEOF, "expected end of file")
			break
		}
	}
	c.emitOp(chunk.OpExit)

	return fn, c.errs.ErrorOrNil()
}

// --- token stream plumbing ---

// advance shifts curr into prev and reads the next non-error token. Lex
// errors are recorded immediately and skipped over — scanning continues
// past a bad character rather than stopping.
func (c *Compiler) advance() {
	c.prev = c.curr
	for {
		c.curr = c.lex.NextToken()
		if c.curr.Type != lexer.TokenError {
			break
		}
		c.errs = multierror.Append(c.errs, fmt.Errorf("Error: line %d: %s", c.curr.Line, c.curr.Lexeme))
	}
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.curr.Type == t }

func (c *Compiler) match(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

// matchLine consumes one or more consecutive NEWLINE tokens, reporting
// whether it consumed at least one.
func (c *Compiler) matchLine() bool {
	if !c.match(lexer.TokenNewline) {
		return false
	}
	for c.match(lexer.TokenNewline) {
	}
	return true
}

func (c *Compiler) ignoreNewlines() { c.matchLine() }

// consume unconditionally advances, then checks that the token which just
// became prev was of the expected type. On mismatch it reports the error
// and, if the new current token happens to be the expected type, advances
// again to resynchronize — a single retry, not general panic-mode recovery.
func (c *Compiler) consume(expected lexer.TokenType, msg string) {
	c.advance()
	if c.prev.Type != expected {
		c.errorAtPrevious(msg)
		if c.curr.Type == expected {
			c.advance()
		}
	}
}

// --- diagnostics ---

// errorAt records a diagnostic anchored at tok, unless tok is itself an
// error token — the lexer already reported that one in advance(), so
// reporting a second "no rule for this token" message on top of it would
// just be noise.
func (c *Compiler) errorAt(tok lexer.Token, msg string) {
	if tok.Type == lexer.TokenError {
		return
	}
	c.log.WithField("line", tok.Line).Debug(msg)
	c.errs = multierror.Append(c.errs, fmt.Errorf("Error: line %d: %s", tok.Line, msg))
}

func (c *Compiler) errorAtCurrent(msg string)  { c.errorAt(c.curr, msg) }
func (c *Compiler) errorAtPrevious(msg string) { c.errorAt(c.prev, msg) }

// --- bytecode emission ---

func (c *Compiler) emitOp(op chunk.OpCode)      { c.chunk.WriteOp(op) }
func (c *Compiler) emitByte(b byte)             { c.chunk.Write(b) }
func (c *Compiler) emitBytes(op chunk.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitConstant(v value.Value) {
	idx := c.chunk.AddConstant(v)
	c.emitBytes(chunk.OpConstant, idx)
}

// --- expressions ---

func (c *Compiler) expression() { c.parsePrecedence(PrecLowest) }

// parsePrecedence is the Pratt parser's core loop: consume one token and
// dispatch its prefix rule, then keep consuming and dispatching infix
// rules as long as the next token binds more tightly than prec (strictly
// higher precedence), which makes same-level operators left-associative.
func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := ruleFor(c.prev.Type).prefix
	if prefix == nil {
		c.errorAtPrevious(fmt.Sprintf("expected expression, found %s", c.prev.Type))
		return
	}
	prefix(c)

	for prec < ruleFor(c.curr.Type).prec {
		c.advance()
		infix := ruleFor(c.prev.Type).infix
		infix(c)
	}
}

func grouping(c *Compiler) {
	c.expression()
	c.consume(lexer.TokenRParen, "expected ')' after expression")
}

// unaryOp handles the one prefix operator, "!". A newline is permitted
// between the operator and its operand, matching the original grammar's
// leniency around line breaks after an operator token.
func unaryOp(c *Compiler) {
	opType := c.prev.Type
	c.ignoreNewlines()
	c.parsePrecedence(PrecNone)

	switch opType {
	case lexer.TokenNot:
		c.emitOp(chunk.OpNot)
	default:
		c.errorAtPrevious("invalid unary operator")
	}
}

// infixOp handles every binary operator. The right operand is parsed at
// the operator's OWN precedence (not one level higher): left-associativity
// for a chain of same-precedence operators falls out of parsePrecedence's
// outer loop re-dispatching on the next operator, not from biasing the
// recursive call here. A newline right after the operator is permitted
// before its right operand.
func infixOp(c *Compiler) {
	opType := c.prev.Type
	prec := ruleFor(opType).prec
	c.ignoreNewlines()
	c.parsePrecedence(prec)

	switch opType {
	case lexer.TokenPlus:
		c.emitOp(chunk.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpMinus)
	case lexer.TokenMultiply:
		c.emitOp(chunk.OpMultiply)
	case lexer.TokenDivide:
		c.emitOp(chunk.OpDivide)
	case lexer.TokenGt:
		c.emitOp(chunk.OpGt)
	case lexer.TokenLt:
		c.emitOp(chunk.OpLt)
	case lexer.TokenGte:
		c.emitOp(chunk.OpGte)
	case lexer.TokenLte:
		c.emitOp(chunk.OpLte)
	case lexer.TokenEq:
		c.emitOp(chunk.OpEq)
	case lexer.TokenNeq:
		c.emitOp(chunk.OpNeq)
	case lexer.TokenAssign:
		c.assign()
	default:
		c.errorAtPrevious("invalid infix operator")
	}
}

// assign backs the "=" infix rule. There is no OP_ASSIGN in this VM's
// opcode table (see DESIGN.md open question #2): "=" stays registered as
// an infix operator purely so a program that writes one gets a precise
// diagnostic; without the rule the expression would simply end at "=" and
// the statement would fail with "expected end of file". The only binding
// form is "let name = expr".
func (c *Compiler) assign() {
	c.errorAtPrevious("assignment expressions are not supported; use 'let' to bind a name")
}

func literal(c *Compiler) {
	switch c.prev.Type {
	case lexer.TokenTrue:
		c.emitOp(chunk.OpTrue)
	case lexer.TokenFalse:
		c.emitOp(chunk.OpFalse)
	case lexer.TokenNumber:
		n, err := strconv.ParseFloat(c.prev.Lexeme, 64)
		if err != nil {
			c.errorAtPrevious(fmt.Sprintf("invalid number literal %q", c.prev.Lexeme))
			return
		}
		c.emitConstant(value.Number(n))
	default:
		c.errorAtPrevious("expected a literal")
	}
}

// stringLiteral interns the token's already-unquoted lexeme (see
// lexer.readString) and emits it as a constant. intern.String canonicalizes
// the Go string itself before package value's Interner canonicalizes it a
// second time into a single *ObjString per distinct content.
func stringLiteral(c *Compiler) {
	obj := c.interner.Intern(intern.String(c.prev.Lexeme))
	c.emitConstant(value.FromObj(obj))
}

func variable(c *Compiler) { c.namedVariable(c.prev) }

// namedVariable resolves name against the active locals first (innermost
// scope first), falling back to a global lookup by name. This is the
// correct, non-buggy lookup: spec.md §9 calls out the original design's
// local-lookup helper as always reporting "not found", which silently
// forces every read through the global path; this Compiler actually
// scans c.locals back-to-front by lexeme.
func (c *Compiler) namedVariable(name lexer.Token) {
	if slot, ok := c.resolveLocal(name.Lexeme); ok {
		c.emitBytes(chunk.OpGetLocal, byte(slot))
		return
	}
	idx := c.identifierConstant(name.Lexeme)
	c.emitBytes(chunk.OpGetGlobal, idx)
}

func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return i, true
		}
	}
	return 0, false
}

func (c *Compiler) identifierConstant(name string) byte {
	obj := c.interner.Intern(intern.String(name))
	return c.chunk.AddConstant(value.FromObj(obj))
}

// --- declarations and statements ---

func (c *Compiler) declaration() {
	if c.match(lexer.TokenLet) {
		c.letDeclaration()
		return
	}
	c.statement()
}

// letDeclaration compiles "let name = expr". The initializer is compiled
// BEFORE the name is declared, so the name is not in scope while its own
// initializer runs — mirroring the original design's assignStmt ordering.
func (c *Compiler) letDeclaration() {
	c.consume(lexer.TokenIdent, "expect variable name after 'let'")
	name := c.prev
	c.consume(lexer.TokenAssign, "expect '=' after variable name")
	c.expression()
	c.defineVariable(name)
}

func (c *Compiler) defineVariable(name lexer.Token) {
	if c.scopeDepth > 0 {
		c.addLocal(name)
		return
	}
	idx := c.identifierConstant(name.Lexeme)
	c.emitBytes(chunk.OpDefineGlobal, idx)
}

// addLocal appends a new local slot. Unlike the original design's
// addLocal — which assigns into compiler->locals[compiler->localCount++]
// and then mutates the temporary it just copied out, losing the write —
// a slice append has nowhere for that bug to hide.
func (c *Compiler) addLocal(name lexer.Token) {
	if len(c.locals) >= maxLocals {
		c.errorAtPrevious("too many local variables in one scope")
		return
	}
	c.locals = append(c.locals, local{name: name.Lexeme, depth: c.scopeDepth})
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenDebug):
		c.debugStatement()
	case c.match(lexer.TokenLBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) debugStatement() {
	c.expression()
	c.emitOp(chunk.OpDebug)
}

// expressionStatement compiles a bare expression with no trailing POP:
// the value is left on the stack. This matches the stack-residue
// invariant in spec.md §8 — such statements are a deliberate exception to
// "every instruction sequence returns the stack to its depth before it
// ran", not an oversight.
func (c *Compiler) expressionStatement() {
	c.expression()
}

func (c *Compiler) beginScope() { c.scopeDepth++ }

// endScope closes the current block, emitting one OP_POP per local that
// is going out of scope so the runtime stack actually shrinks back down —
// the original design never does this, leaving orphaned values; this
// Compiler's block handling (spec.md §9's suggested scoped-block-exit
// fix) always pops what it declared.
func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		c.emitOp(chunk.OpPop)
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// block compiles the body of a "{ ... }". The declaration loop is a
// do-while in the source grammar — it parses one declaration before ever
// checking for the closing brace, so "{}" is not a valid empty block; it
// fails with "expected expression" the same way the source grammar does.
// Newlines are ignored both between declarations and right before the
// closing brace.
func (c *Compiler) block() {
	c.ignoreNewlines()
	for {
		c.declaration()
		c.ignoreNewlines()
		if c.check(lexer.TokenRBrace) || c.check(lexer.TokenEOF) {
			break
		}
	}
	c.consume(lexer.TokenRBrace, "expect '}' after block")
}
