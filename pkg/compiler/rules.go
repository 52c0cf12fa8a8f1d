package compiler

import "github.com/rmay/quillvm/pkg/lexer"

// parseFn is either a prefix or infix handler, dispatched from the token
// that was just consumed into c.prev.
type parseFn func(c *Compiler)

// rule pairs a token's prefix/infix handlers with the precedence an infix
// occurrence binds at.
type rule struct {
	prefix parseFn
	infix  parseFn
	prec   Precedence
}

// rules is the grammar table parsePrecedence walks. Every comparison
// operator and the bare "=" token share PrecCond: the original design does
// not split "=" into its own (lower) assignment precedence tier, and "="
// is kept here only so it can be rejected with a clear diagnostic rather
// than ending the expression at "=" and leaving the statement to fail with
// "expected end of file" (see (*Compiler).assign).
var rules = map[lexer.TokenType]rule{
	lexer.TokenLParen:   {prefix: grouping},
	lexer.TokenNot:      {prefix: unaryOp},
	lexer.TokenIdent:    {prefix: variable},
	lexer.TokenNumber:   {prefix: literal},
	lexer.TokenTrue:     {prefix: literal},
	lexer.TokenFalse:    {prefix: literal},
	lexer.TokenString:   {prefix: stringLiteral},
	lexer.TokenPlus:     {infix: infixOp, prec: PrecSum},
	lexer.TokenMinus:    {infix: infixOp, prec: PrecSum},
	lexer.TokenMultiply: {infix: infixOp, prec: PrecProduct},
	lexer.TokenDivide:   {infix: infixOp, prec: PrecProduct},
	lexer.TokenGt:       {infix: infixOp, prec: PrecCond},
	lexer.TokenLt:       {infix: infixOp, prec: PrecCond},
	lexer.TokenGte:      {infix: infixOp, prec: PrecCond},
	lexer.TokenLte:      {infix: infixOp, prec: PrecCond},
	lexer.TokenEq:       {infix: infixOp, prec: PrecCond},
	lexer.TokenNeq:      {infix: infixOp, prec: PrecCond},
	lexer.TokenAssign:   {infix: infixOp, prec: PrecCond},
}

func ruleFor(t lexer.TokenType) rule { return rules[t] }
