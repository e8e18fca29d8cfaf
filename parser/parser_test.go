package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicholasBermuda/firedrake/lexer"
	"github.com/NicholasBermuda/firedrake/slate"
)

func checkParserErrors(t *testing.T, p *Parser) {
	errors := p.Errors()
	if len(errors) == 0 {
		return
	}

	t.Errorf("parser has %d errors", len(errors))
	for _, e := range errors {
		t.Errorf("parser error: %q", e)
	}
	t.FailNow()
}

func parseScript(t *testing.T, src string) *Script {
	t.Helper()
	p := New(lexer.New(src))
	script := p.ParseScript()
	checkParserErrors(t, p)
	return script
}

func TestParseSpaces(t *testing.T) {
	script := parseScript(t, `space V = fe(3)
space RT = fe(4, oriented)
space W = mixed(V, RT)
tensor A : matrix(V, V)
out = A
`)

	require.Len(t, script.Spaces, 3)

	v := script.Spaces["V"]
	require.NotNil(t, v)
	assert.Equal(t, 3, v.Dim())
	assert.False(t, v.Oriented())
	assert.False(t, v.Mixed())

	rt := script.Spaces["RT"]
	require.NotNil(t, rt)
	assert.Equal(t, 4, rt.Dim())
	assert.True(t, rt.Oriented())

	w := script.Spaces["W"]
	require.NotNil(t, w)
	assert.True(t, w.Mixed())
	assert.Equal(t, 7, w.Dim())
	require.Len(t, w.Components(), 2)
	assert.Same(t, v, w.Components()[0])
	assert.Same(t, rt, w.Components()[1])
}

func TestParseTensors(t *testing.T) {
	script := parseScript(t, `space V = fe(2)
coeff f : V
coeff g : V
tensor A : matrix(V, V) uses f, g
tensor b : vector(V) uses g
tensor s : scalar()
out = s
`)

	f := script.Coefficients["f"]
	g := script.Coefficients["g"]
	require.NotNil(t, f)
	require.NotNil(t, g)
	assert.Same(t, script.Spaces["V"], f.Space())

	a := script.Tensors["A"]
	require.NotNil(t, a)
	assert.Equal(t, []int{2, 2}, a.Shape())
	assert.Equal(t, []*slate.Coefficient{f, g}, a.Coefficients())

	b := script.Tensors["b"]
	require.NotNil(t, b)
	assert.Equal(t, []int{2}, b.Shape())
	assert.Equal(t, []*slate.Coefficient{g}, b.Coefficients())

	s := script.Tensors["s"]
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Rank())
	assert.Same(t, s, script.Root)
}

func TestParseSharing(t *testing.T) {
	script := parseScript(t, `space V = fe(2)
tensor A : matrix(V, V)
S = A + A'
out = S * S
`)

	root, ok := script.Root.(*slate.Mul)
	require.True(t, ok, "expected *slate.Mul root, got %T", script.Root)

	// Both uses of S are the same node instance.
	ops := root.Operands()
	require.Len(t, ops, 2)
	assert.Same(t, ops[0], ops[1])
	assert.Same(t, script.Bindings["S"], ops[0])

	// Both uses of A inside S share the terminal.
	s := ops[0].(*slate.Add)
	assert.Same(t, script.Tensors["A"], s.Operands()[0])
	tr := s.Operands()[1].(*slate.Transpose)
	assert.Same(t, script.Tensors["A"], tr.Operands()[0])
}

func TestParsePrecedence(t *testing.T) {
	preamble := `space V = fe(2)
tensor A : matrix(V, V)
tensor B : matrix(V, V)
tensor C : matrix(V, V)
tensor b : vector(V)
`

	tests := []struct {
		input    string
		expected string
	}{
		{"out = A + B * C", "(A + (B * C))"},
		{"out = A * B + C", "((A * B) + C)"},
		{"out = A - B - C", "((A - B) - C)"},
		{"out = (A + B) * C", "((A + B) * C)"},
		{"out = -A'", "(-(A).T)"},
		{"out = A''", "((A).T).T"},
		{"out = inverse(A) * b", "((A).inv * b)"},
		{"out = A + B'", "(A + (B).T)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			script := parseScript(t, preamble+tt.input+"\n")
			require.NotNil(t, script.Root)
			assert.Equal(t, tt.expected, script.Root.String())
		})
	}
}

func TestParseAction(t *testing.T) {
	script := parseScript(t, `space V = fe(2)
coeff f : V
tensor A : matrix(V, V)
out = action(A, f)
`)

	act, ok := script.Root.(*slate.Action)
	require.True(t, ok, "expected *slate.Action root, got %T", script.Root)
	assert.Same(t, script.Tensors["A"], act.Operands()[0])
	assert.Same(t, script.Coefficients["f"], act.ActingCoefficient())
}

func TestParseDeterminism(t *testing.T) {
	src := `space V = fe(2)
coeff f : V
tensor A : matrix(V, V) uses f
tensor B : matrix(V, V)
S = A + B
out = S * S - inverse(A)
`

	s1 := parseScript(t, src)
	s2 := parseScript(t, src)

	// Two parses build independent, structurally identical graphs.
	assert.NotSame(t, s1.Root, s2.Root)
	assert.NotSame(t, s1.Tensors["A"], s2.Tensors["A"])
	assert.Equal(t, s1.Root.String(), s2.Root.String())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "unknown name",
			input: "space V = fe(2)\nout = Z\n",
			want:  `unknown name "Z"`,
		},
		{
			name:  "duplicate name",
			input: "space V = fe(2)\nspace V = fe(3)\nout = V\n",
			want:  `name "V" is already declared`,
		},
		{
			name:  "missing root",
			input: "space V = fe(2)\ntensor A : matrix(V, V)\n",
			want:  `script defines no "out" binding`,
		},
		{
			name:  "unknown space constructor",
			input: "space V = grid(3)\n",
			want:  `unknown space constructor "grid"`,
		},
		{
			name:  "unknown tensor kind",
			input: "space V = fe(2)\ntensor A : cube(V)\n",
			want:  `unknown tensor kind "cube"`,
		},
		{
			name:  "unknown space flag",
			input: "space V = fe(2, upside)\n",
			want:  `unknown space flag "upside"`,
		},
		{
			name:  "action on non-coefficient",
			input: "space V = fe(2)\ntensor A : matrix(V, V)\ntensor B : matrix(V, V)\nout = action(A, B)\n",
			want:  `unknown coefficient "B"`,
		},
		{
			name:  "unknown function",
			input: "space V = fe(2)\ntensor A : matrix(V, V)\nout = foo(A)\n",
			want:  `unknown function "foo"`,
		},
		{
			name:  "shape mismatch",
			input: "space V = fe(2)\ntensor A : matrix(V, V)\ntensor b : vector(V)\nout = A + b\n",
			want:  "cannot add tensors",
		},
		{
			name:  "trailing garbage",
			input: "space V = fe(2)\ntensor A : matrix(V, V)\nout = A A\n",
			want:  "expected end of statement",
		},
		{
			name:  "bad statement start",
			input: "= A\n",
			want:  "at statement start",
		},
		{
			name:  "zero dimension",
			input: "space V = fe(0)\nout = V\n",
			want:  "positive dimension",
		},
		{
			name:  "reserved space name",
			input: "space fe = fe(2)\n",
			want:  `name "fe" is reserved`,
		},
		{
			name:  "reserved binding name",
			input: "space V = fe(2)\ntensor A : matrix(V, V)\ninverse = A + A\nout = A\n",
			want:  `name "inverse" is reserved`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(lexer.New(tt.input))
			p.ParseScript()
			require.NotEmpty(t, p.Errors())

			found := false
			for _, e := range p.Errors() {
				if strings.Contains(e.Error(), tt.want) {
					found = true
					break
				}
			}
			assert.True(t, found, "no error contains %q in %v", tt.want, p.Errors())
		})
	}
}

func TestParseErrorPositions(t *testing.T) {
	p := New(lexer.New("space V = fe(2)\nout = Z\n"))
	p.ParseScript()

	require.Len(t, p.Errors(), 1)
	assert.Equal(t, `2:7: unknown name "Z"`, p.Errors()[0].Error())
}

func TestParseErrorRecovery(t *testing.T) {
	p := New(lexer.New("space V = fe(0)\nout = Z\n"))
	p.ParseScript()

	// One error per broken statement.
	require.Len(t, p.Errors(), 2)
	assert.Contains(t, p.Errors()[0].Error(), "positive dimension")
	assert.Contains(t, p.Errors()[1].Error(), `unknown name "Z"`)
}

func TestParseSource(t *testing.T) {
	script, errs := ParseSource(`space V = fe(2)
tensor A : matrix(V, V)
out = A'
`)
	require.Empty(t, errs)
	require.NotNil(t, script.Root)
	assert.Equal(t, "(A).T", script.Root.String())

	_, errs = ParseSource("out = Z\n")
	assert.NotEmpty(t, errs)
}

func TestReservedNames(t *testing.T) {
	for _, name := range ReservedNames() {
		assert.True(t, IsReservedName(name), "expected %q to be reserved", name)
	}
	assert.False(t, IsReservedName("out"))
	assert.False(t, IsReservedName("V"))

	names := ReservedNames()
	names[0] = "mutated"
	assert.True(t, IsReservedName("fe"))
}
