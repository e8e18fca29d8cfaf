package lexer

import "github.com/NicholasBermuda/firedrake/token"

type Lexer struct {
	input        []rune
	position     int  // current position in input (points to current rune)
	readPosition int  // current reading position in input (after current rune)
	curr         rune // current rune under examination
	line         int  // 1-based line of the current rune
	column       int  // 1-based column of the current rune
}

func New(input string) *Lexer {
	l := &Lexer{input: []rune(input), line: 1}
	l.readRune()
	return l
}

func (l *Lexer) NextToken() token.Token {
	l.skipSpace()

	var tok token.Token

	switch l.curr {
	case '=':
		tok = l.newToken(token.ASSIGN)
	case ':':
		tok = l.newToken(token.COLON)
	case '+':
		tok = l.newToken(token.ADD)
	case '-':
		tok = l.newToken(token.SUB)
	case '*':
		tok = l.newToken(token.MUL)
	case '\'':
		tok = l.newToken(token.PRIME)
	case '(':
		tok = l.newToken(token.LPAREN)
	case ')':
		tok = l.newToken(token.RPAREN)
	case ',':
		tok = l.newToken(token.COMMA)
	case '\n':
		tok = l.newToken(token.NEWLINE)
	case 0:
		tok = token.Token{Type: token.EOF, Literal: "", Line: l.line, Column: l.column}
	default:
		if isLetter(l.curr) {
			line, column := l.line, l.column
			literal := l.readIdentifier()
			return token.Token{Type: token.LookupIdent(literal), Literal: literal, Line: line, Column: column}
		} else if isDigit(l.curr) {
			line, column := l.line, l.column
			return token.Token{Type: token.INT, Literal: l.readNumber(), Line: line, Column: column}
		} else {
			tok = l.newToken(token.ILLEGAL)
		}
	}

	l.readRune()
	return tok
}

// skipSpace consumes blanks and # comments but never newlines, which
// terminate statements.
func (l *Lexer) skipSpace() {
	for {
		switch {
		case l.curr == ' ' || l.curr == '\t' || l.curr == '\r':
			l.readRune()
		case l.curr == '#':
			for l.curr != '\n' && l.curr != 0 {
				l.readRune()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readRune() {
	if l.curr == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.curr = 0
	} else {
		l.curr = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.curr) || isDigit(l.curr) {
		l.readRune()
	}
	return string(l.input[position:l.position])
}

func (l *Lexer) readNumber() string {
	position := l.position
	for isDigit(l.curr) {
		l.readRune()
	}
	return string(l.input[position:l.position])
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func (l *Lexer) newToken(tokenType token.TokenType) token.Token {
	return token.Token{Type: tokenType, Literal: string(l.curr), Line: l.line, Column: l.column}
}
