package parser

import (
	"fmt"
	"strconv"

	"github.com/NicholasBermuda/firedrake/lexer"
	"github.com/NicholasBermuda/firedrake/slate"
	"github.com/NicholasBermuda/firedrake/token"
)

const (
	_ int = iota
	LOWEST
	SUM     // +
	PRODUCT // *
	PREFIX  // -X
	POSTFIX // X'
)

var precedences = map[token.TokenType]int{
	token.ADD:   SUM,
	token.SUB:   SUM,
	token.MUL:   PRODUCT,
	token.PRIME: POSTFIX,
}

// RootName is the binding every script must define; its expression is
// the compilation root.
const RootName = "out"

type (
	prefixParseFn func() slate.TensorBase
	infixParseFn  func(slate.TensorBase) slate.TensorBase
)

// Script is a parsed expression description: the declared spaces,
// coefficients and terminal tensors, the named bindings, and the root
// expression. Reusing a name in the source reuses the node, so sharing
// in the text becomes sharing in the graph; parsing the same source
// twice yields two independent, structurally identical graphs.
type Script struct {
	Spaces       map[string]*slate.FunctionSpace
	Coefficients map[string]*slate.Coefficient
	Tensors      map[string]*slate.Tensor
	Bindings     map[string]slate.TensorBase
	Root         slate.TensorBase
}

type Parser struct {
	l      *lexer.Lexer
	errors []*token.CompileError

	curToken  token.Token
	peekToken token.Token

	script *Script

	prefixParseFns map[token.TokenType]prefixParseFn
	infixParseFns  map[token.TokenType]infixParseFn
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:      l,
		errors: []*token.CompileError{},
	}

	p.prefixParseFns = make(map[token.TokenType]prefixParseFn)
	p.registerPrefix(token.IDENT, p.parseIdentifier)
	p.registerPrefix(token.SUB, p.parsePrefixExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)

	p.infixParseFns = make(map[token.TokenType]infixParseFn)
	p.registerInfix(token.ADD, p.parseInfixExpression)
	p.registerInfix(token.SUB, p.parseInfixExpression)
	p.registerInfix(token.MUL, p.parseInfixExpression)
	p.registerInfix(token.PRIME, p.parseTranspose)

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t token.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t token.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

// Errors returns the accumulated parse errors. Each carries the token
// it was raised at, so callers can prefix the file name and print
// file:line:column diagnostics.
func (p *Parser) Errors() []*token.CompileError {
	return p.errors
}

func (p *Parser) errorf(tok token.Token, format string, args ...interface{}) {
	p.errors = append(p.errors, &token.CompileError{
		Token: tok,
		Msg:   fmt.Sprintf(format, args...),
	})
}

func (p *Parser) peekError(t token.TokenType) {
	p.errorf(p.peekToken, "expected next token to be %s, got %s instead", t, p.peekToken)
}

func (p *Parser) noPrefixParseFnError(tok token.Token) {
	p.errorf(tok, "no prefix parse function for %s found", tok)
}

func (p *Parser) stmtEnded() bool {
	return p.peekTokenIs(token.NEWLINE) || p.peekTokenIs(token.EOF)
}

func (p *Parser) endStatement() {
	if !p.stmtEnded() {
		p.errorf(p.peekToken, "expected end of statement, got %s", p.peekToken)
	}
}

func (p *Parser) skipToNewline() {
	for !p.curTokenIs(token.NEWLINE) && !p.curTokenIs(token.EOF) {
		p.nextToken()
	}
}

// ParseScript consumes the whole input. Errors accumulate in Errors;
// the returned script is only meaningful when that list is empty.
func (p *Parser) ParseScript() *Script {
	p.script = &Script{
		Spaces:       map[string]*slate.FunctionSpace{},
		Coefficients: map[string]*slate.Coefficient{},
		Tensors:      map[string]*slate.Tensor{},
		Bindings:     map[string]slate.TensorBase{},
	}

	for !p.curTokenIs(token.EOF) {
		if p.curTokenIs(token.NEWLINE) {
			p.nextToken()
			continue
		}
		p.parseStatement()
		p.skipToNewline()
		p.nextToken()
	}

	if p.script.Root == nil && len(p.errors) == 0 {
		p.errorf(p.curToken, "script defines no %q binding", RootName)
	}

	return p.script
}

func (p *Parser) parseStatement() {
	switch p.curToken.Type {
	case token.SPACE:
		p.parseSpaceStatement()
	case token.COEFF:
		p.parseCoeffStatement()
	case token.TENSOR:
		p.parseTensorStatement()
	case token.IDENT:
		p.parseBinding()
	default:
		p.errorf(p.curToken, "unexpected %s at statement start", p.curToken)
	}
}

func (p *Parser) known(name string) bool {
	if _, ok := p.script.Spaces[name]; ok {
		return true
	}
	if _, ok := p.script.Coefficients[name]; ok {
		return true
	}
	if _, ok := p.script.Tensors[name]; ok {
		return true
	}
	if _, ok := p.script.Bindings[name]; ok {
		return true
	}
	return false
}

// declarable reports whether the identifier can introduce a new name.
// Spaces, coefficients, tensors and bindings share one namespace, and
// builtin constructor and function names stay out of it.
func (p *Parser) declarable(tok token.Token) bool {
	if IsReservedName(tok.Literal) {
		p.errorf(tok, "name %q is reserved", tok.Literal)
		return false
	}
	if p.known(tok.Literal) {
		p.errorf(tok, "name %q is already declared", tok.Literal)
		return false
	}
	return true
}

// space V = fe(3)
// space RT = fe(3, oriented)
// space W = mixed(V, Q)
func (p *Parser) parseSpaceStatement() {
	if !p.expectPeek(token.IDENT) {
		return
	}
	name := p.curToken
	if !p.declarable(name) {
		return
	}
	if !p.expectPeek(token.ASSIGN) {
		return
	}
	if !p.expectPeek(token.IDENT) {
		return
	}
	ctor := p.curToken

	var fs *slate.FunctionSpace
	switch ctor.Literal {
	case "fe":
		fs = p.parseSimpleSpace(name.Literal)
	case "mixed":
		fs = p.parseMixedSpace()
	default:
		p.errorf(ctor, "unknown space constructor %q", ctor.Literal)
		return
	}
	if fs == nil {
		return
	}

	p.script.Spaces[name.Literal] = fs
	p.endStatement()
}

func (p *Parser) parseSimpleSpace(name string) *slate.FunctionSpace {
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	if !p.expectPeek(token.INT) {
		return nil
	}
	dimToken := p.curToken
	dim, err := strconv.Atoi(dimToken.Literal)
	if err != nil {
		p.errorf(dimToken, "could not parse %q as integer", dimToken.Literal)
		return nil
	}

	oriented := false
	if p.peekTokenIs(token.COMMA) {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		if p.curToken.Literal != "oriented" {
			p.errorf(p.curToken, "unknown space flag %q", p.curToken.Literal)
			return nil
		}
		oriented = true
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}

	var fs *slate.FunctionSpace
	if oriented {
		fs, err = slate.NewOrientedFunctionSpace(name, dim)
	} else {
		fs, err = slate.NewFunctionSpace(name, dim)
	}
	if err != nil {
		p.errorf(dimToken, "%v", err)
		return nil
	}
	return fs
}

func (p *Parser) parseMixedSpace() *slate.FunctionSpace {
	ctor := p.curToken
	if !p.expectPeek(token.LPAREN) {
		return nil
	}

	components := []*slate.FunctionSpace{}
	for {
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		fs, ok := p.script.Spaces[p.curToken.Literal]
		if !ok {
			p.errorf(p.curToken, "unknown space %q", p.curToken.Literal)
			return nil
		}
		components = append(components, fs)
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}

	fs, err := slate.NewMixedFunctionSpace(components...)
	if err != nil {
		p.errorf(ctor, "%v", err)
		return nil
	}
	return fs
}

// coeff f : V
func (p *Parser) parseCoeffStatement() {
	if !p.expectPeek(token.IDENT) {
		return
	}
	name := p.curToken
	if !p.declarable(name) {
		return
	}
	if !p.expectPeek(token.COLON) {
		return
	}
	if !p.expectPeek(token.IDENT) {
		return
	}
	fs, ok := p.script.Spaces[p.curToken.Literal]
	if !ok {
		p.errorf(p.curToken, "unknown space %q", p.curToken.Literal)
		return
	}

	c, err := slate.NewCoefficient(name.Literal, fs)
	if err != nil {
		p.errorf(name, "%v", err)
		return
	}
	p.script.Coefficients[name.Literal] = c
	p.endStatement()
}

// tensor A : matrix(V, V) uses f, g
// tensor b : vector(V)
// tensor s : scalar()
func (p *Parser) parseTensorStatement() {
	if !p.expectPeek(token.IDENT) {
		return
	}
	name := p.curToken
	if !p.declarable(name) {
		return
	}
	if !p.expectPeek(token.COLON) {
		return
	}
	if !p.expectPeek(token.IDENT) {
		return
	}
	kind := p.curToken

	var arity int
	switch kind.Literal {
	case "matrix":
		arity = 2
	case "vector":
		arity = 1
	case "scalar":
		arity = 0
	default:
		p.errorf(kind, "unknown tensor kind %q", kind.Literal)
		return
	}

	if !p.expectPeek(token.LPAREN) {
		return
	}
	args := []*slate.FunctionSpace{}
	for i := 0; i < arity; i++ {
		if i > 0 && !p.expectPeek(token.COMMA) {
			return
		}
		if !p.expectPeek(token.IDENT) {
			return
		}
		fs, ok := p.script.Spaces[p.curToken.Literal]
		if !ok {
			p.errorf(p.curToken, "unknown space %q", p.curToken.Literal)
			return
		}
		args = append(args, fs)
	}
	if !p.expectPeek(token.RPAREN) {
		return
	}

	coeffs := []*slate.Coefficient{}
	if p.peekTokenIs(token.USES) {
		p.nextToken()
		for {
			if !p.expectPeek(token.IDENT) {
				return
			}
			c, ok := p.script.Coefficients[p.curToken.Literal]
			if !ok {
				p.errorf(p.curToken, "unknown coefficient %q", p.curToken.Literal)
				return
			}
			coeffs = append(coeffs, c)
			if !p.peekTokenIs(token.COMMA) {
				break
			}
			p.nextToken()
		}
	}

	form, err := slate.NewForm(args, coeffs...)
	if err != nil {
		p.errorf(kind, "%v", err)
		return
	}
	ten, err := slate.NewTensor(name.Literal, form)
	if err != nil {
		p.errorf(name, "%v", err)
		return
	}
	p.script.Tensors[name.Literal] = ten
	p.endStatement()
}

// S = A + A'
func (p *Parser) parseBinding() {
	name := p.curToken
	if !p.declarable(name) {
		return
	}
	if !p.expectPeek(token.ASSIGN) {
		return
	}
	p.nextToken()

	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return
	}

	p.script.Bindings[name.Literal] = expr
	if name.Literal == RootName {
		p.script.Root = expr
	}
	p.endStatement()
}

func (p *Parser) parseExpression(precedence int) slate.TensorBase {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken)
		return nil
	}
	leftExp := prefix()

	for leftExp != nil && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
	}

	return leftExp
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) parseIdentifier() slate.TensorBase {
	name := p.curToken
	if p.peekTokenIs(token.LPAREN) {
		p.nextToken()
		return p.parseCall(name)
	}
	return p.resolve(name)
}

// resolve looks a name up among bindings and terminal tensors. The
// same name always resolves to the same node instance.
func (p *Parser) resolve(tok token.Token) slate.TensorBase {
	if n, ok := p.script.Bindings[tok.Literal]; ok {
		return n
	}
	if n, ok := p.script.Tensors[tok.Literal]; ok {
		return n
	}
	p.errorf(tok, "unknown name %q", tok.Literal)
	return nil
}

func (p *Parser) parseCall(name token.Token) slate.TensorBase {
	switch name.Literal {
	case "inverse":
		p.nextToken()
		operand := p.parseExpression(LOWEST)
		if operand == nil || !p.expectPeek(token.RPAREN) {
			return nil
		}
		n, err := slate.NewInverse(operand)
		if err != nil {
			p.errorf(name, "%v", err)
			return nil
		}
		return n
	case "action":
		p.nextToken()
		operand := p.parseExpression(LOWEST)
		if operand == nil {
			return nil
		}
		if !p.expectPeek(token.COMMA) {
			return nil
		}
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		c, ok := p.script.Coefficients[p.curToken.Literal]
		if !ok {
			p.errorf(p.curToken, "unknown coefficient %q", p.curToken.Literal)
			return nil
		}
		if !p.expectPeek(token.RPAREN) {
			return nil
		}
		n, err := slate.NewAction(operand, c)
		if err != nil {
			p.errorf(name, "%v", err)
			return nil
		}
		return n
	default:
		p.errorf(name, "unknown function %q", name.Literal)
		return nil
	}
}

func (p *Parser) parsePrefixExpression() slate.TensorBase {
	tok := p.curToken
	p.nextToken()

	operand := p.parseExpression(PREFIX)
	if operand == nil {
		return nil
	}
	n, err := slate.NewNegative(operand)
	if err != nil {
		p.errorf(tok, "%v", err)
		return nil
	}
	return n
}

func (p *Parser) parseInfixExpression(left slate.TensorBase) slate.TensorBase {
	op := p.curToken
	precedence := p.curPrecedence()
	p.nextToken()

	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}

	var n slate.TensorBase
	var err error
	switch op.Type {
	case token.ADD:
		n, err = slate.NewAdd(left, right)
	case token.SUB:
		n, err = slate.NewSub(left, right)
	case token.MUL:
		n, err = slate.NewMul(left, right)
	default:
		p.errorf(op, "unknown operator %s", op)
		return nil
	}
	if err != nil {
		p.errorf(op, "%v", err)
		return nil
	}
	return n
}

func (p *Parser) parseTranspose(left slate.TensorBase) slate.TensorBase {
	n, err := slate.NewTranspose(left)
	if err != nil {
		p.errorf(p.curToken, "%v", err)
		return nil
	}
	return n
}

func (p *Parser) parseGroupedExpression() slate.TensorBase {
	p.nextToken()

	exp := p.parseExpression(LOWEST)

	if !p.expectPeek(token.RPAREN) {
		return nil
	}

	return exp
}

func (p *Parser) registerPrefix(tokenType token.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType token.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}
