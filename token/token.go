package token

import (
	"fmt"
	"strconv"
)

type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF

	literal_beg
	// Identifiers + literals
	IDENT // V, out, inverse, ...
	INT   // 3
	literal_end

	operator_beg
	// Operators and delimiters
	ASSIGN // =
	COLON  // :

	ADD   // +
	SUB   // -
	MUL   // *
	PRIME // '

	LPAREN // (
	RPAREN // )
	COMMA  // ,
	operator_end

	keyword_beg
	SPACE  // space
	COEFF  // coeff
	TENSOR // tensor
	USES   // uses
	keyword_end

	NEWLINE
)

var tokens = [...]string{
	ILLEGAL: "ILLEGAL",

	EOF: "EOF",

	IDENT: "IDENT",
	INT:   "INT",

	ASSIGN: "=",
	COLON:  ":",

	ADD:   "+",
	SUB:   "-",
	MUL:   "*",
	PRIME: "'",

	LPAREN: "(",
	RPAREN: ")",
	COMMA:  ",",

	SPACE:  "space",
	COEFF:  "coeff",
	TENSOR: "tensor",
	USES:   "uses",

	NEWLINE: "\n",
}

var keywords = map[string]TokenType{
	"space":  SPACE,
	"coeff":  COEFF,
	"tensor": TENSOR,
	"uses":   USES,
}

// LookupIdent returns the keyword type of an identifier literal, IDENT
// if it is not a keyword.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// Token carries its source position so parse errors can point at the
// offending line and column.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

func (t Token) IsKeyword() bool {
	return keyword_beg < t.Type && t.Type < keyword_end
}

func (t Token) String() string {
	return t.Type.String()
}

func (tokenType TokenType) String() string {
	s := ""
	if 0 <= tokenType && tokenType < TokenType(len(tokens)) {
		s = tokens[tokenType]
	}

	if s == "" {
		s = "token(" + strconv.Itoa(int(tokenType)) + ")"
	}

	return s
}

// CompileError is a diagnostic anchored to the token it was raised at.
type CompileError struct {
	Token Token
	Msg   string
}

func (ce *CompileError) Error() string {
	return fmt.Sprintf("%d:%d: %s", ce.Token.Line, ce.Token.Column, ce.Msg)
}
