package parser

import (
	"github.com/NicholasBermuda/firedrake/lexer"
	"github.com/NicholasBermuda/firedrake/token"
)

// ParseSource parses a complete script in one call and returns the
// script together with any parse errors.
func ParseSource(src string) (*Script, []*token.CompileError) {
	p := New(lexer.New(src))
	script := p.ParseScript()
	return script, p.Errors()
}
