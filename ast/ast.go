// Package ast provides a small C abstract syntax tree used to describe
// generated element kernels. Nodes render themselves to source via
// String, so a complete kernel file is produced by rendering a Root.
package ast

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// The base Node interface
type Node interface {
	String() string
}

// All statement nodes implement this
type Stmt interface {
	Node
	stmtNode()
}

// All expression nodes implement this
type Expr interface {
	Node
	exprNode()
}

// Root is a full compilation unit: a sequence of top-level declarations
// separated by blank lines.
type Root struct {
	Children []Node
}

func (r *Root) String() string {
	var out bytes.Buffer

	for i, c := range r.Children {
		if i > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(c.String())
	}
	out.WriteString("\n")

	return out.String()
}

// Expressions

// Symbol is a C identifier. Rank carries the array extents used when
// the symbol appears in a declaration; as an expression only the name
// is rendered.
type Symbol struct {
	Name string
	Rank []int
}

func (s *Symbol) exprNode()      {}
func (s *Symbol) String() string { return s.Name }

// Declared renders the symbol with its array extents, e.g. "A[3][3]".
func (s *Symbol) Declared() string {
	var out bytes.Buffer

	out.WriteString(s.Name)
	for _, n := range s.Rank {
		out.WriteString("[")
		out.WriteString(strconv.Itoa(n))
		out.WriteString("]")
	}

	return out.String()
}

type IntLit struct {
	Value int64
}

func (il *IntLit) exprNode()      {}
func (il *IntLit) String() string { return strconv.FormatInt(il.Value, 10) }

type FloatLit struct {
	Value float64
}

func (fl *FloatLit) exprNode() {}
func (fl *FloatLit) String() string {
	s := strconv.FormatFloat(fl.Value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

type BinExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

func (be *BinExpr) exprNode() {}
func (be *BinExpr) String() string {
	var out bytes.Buffer

	out.WriteString("(")
	out.WriteString(be.Left.String())
	out.WriteString(" " + be.Op + " ")
	out.WriteString(be.Right.String())
	out.WriteString(")")

	return out.String()
}

type UnExpr struct {
	Op string
	X  Expr
}

func (ue *UnExpr) exprNode() {}
func (ue *UnExpr) String() string {
	var out bytes.Buffer

	out.WriteString("(")
	out.WriteString(ue.Op)
	out.WriteString(ue.X.String())
	out.WriteString(")")

	return out.String()
}

// Index is an array subscript such as A[i][j].
type Index struct {
	Base Expr
	Subs []Expr
}

func (ix *Index) exprNode() {}
func (ix *Index) String() string {
	var out bytes.Buffer

	out.WriteString(ix.Base.String())
	for _, s := range ix.Subs {
		out.WriteString("[")
		out.WriteString(s.String())
		out.WriteString("]")
	}

	return out.String()
}

// FunCall is a call expression. The name may be a plain function or a
// qualified method reference such as "T0.data".
type FunCall struct {
	Name string
	Args []Expr
}

func (fc *FunCall) exprNode() {}
func (fc *FunCall) String() string {
	var out bytes.Buffer

	args := []string{}
	for _, a := range fc.Args {
		args = append(args, a.String())
	}

	out.WriteString(fc.Name)
	out.WriteString("(")
	out.WriteString(strings.Join(args, ", "))
	out.WriteString(")")

	return out.String()
}

// Statements

// Decl declares a variable, with optional qualifiers and initializer:
// "static const double A[3][3] = ...;".
type Decl struct {
	Quals []string
	Type  string
	Sym   *Symbol
	Init  Expr
}

func (d *Decl) stmtNode() {}
func (d *Decl) String() string {
	var out bytes.Buffer

	for _, q := range d.Quals {
		out.WriteString(q)
		out.WriteString(" ")
	}
	out.WriteString(d.Type)
	out.WriteString(" ")
	out.WriteString(d.Sym.Declared())
	if d.Init != nil {
		out.WriteString(" = ")
		out.WriteString(d.Init.String())
	}
	out.WriteString(";")

	return out.String()
}

type Assign struct {
	LHS Expr
	RHS Expr
}

func (a *Assign) stmtNode() {}
func (a *Assign) String() string {
	return a.LHS.String() + " = " + a.RHS.String() + ";"
}

// Incr is an accumulation statement: "lhs += rhs;".
type Incr struct {
	LHS Expr
	RHS Expr
}

func (in *Incr) stmtNode() {}
func (in *Incr) String() string {
	return in.LHS.String() + " += " + in.RHS.String() + ";"
}

// ExprStmt evaluates an expression for its effect, typically a
// subkernel call.
type ExprStmt struct {
	X Expr
}

func (es *ExprStmt) stmtNode()      {}
func (es *ExprStmt) String() string { return es.X.String() + ";" }

// FlatBlock holds raw source emitted verbatim. It is used for
// constructs the node set does not model, such as Eigen template
// expressions.
type FlatBlock struct {
	Code string
}

func (fb *FlatBlock) stmtNode()      {}
func (fb *FlatBlock) exprNode()      {}
func (fb *FlatBlock) String() string { return fb.Code }

// Block is a braced statement list. Children render indented one level.
type Block struct {
	Stmts []Stmt
}

func (b *Block) stmtNode() {}
func (b *Block) String() string {
	var out bytes.Buffer

	out.WriteString("{\n")
	for _, s := range b.Stmts {
		out.WriteString(indent(s.String()))
		out.WriteString("\n")
	}
	out.WriteString("}")

	return out.String()
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		if ln != "" {
			lines[i] = "  " + ln
		}
	}
	return strings.Join(lines, "\n")
}

// For is a counted loop over [Start, End) with unit stride.
type For struct {
	Var   *Symbol
	Start Expr
	End   Expr
	Body  *Block
}

func (f *For) stmtNode() {}
func (f *For) String() string {
	return fmt.Sprintf("for (int %s = %s; %s < %s; %s++) %s",
		f.Var.Name, f.Start.String(), f.Var.Name, f.End.String(), f.Var.Name, f.Body.String())
}

// Param is a formal kernel argument. A type ending in '*' renders
// without a separating space, matching common C style for pointers.
type Param struct {
	Type string
	Sym  *Symbol
}

func (p *Param) String() string {
	if strings.HasSuffix(p.Type, "*") {
		return p.Type + p.Sym.Declared()
	}
	return p.Type + " " + p.Sym.Declared()
}

// FunDecl is a function definition. Pred holds leading predicates such
// as "static" and "inline".
type FunDecl struct {
	Pred []string
	Ret  string
	Name string
	Args []*Param
	Body *Block
}

func (fd *FunDecl) String() string {
	var out bytes.Buffer

	for _, p := range fd.Pred {
		out.WriteString(p)
		out.WriteString(" ")
	}
	out.WriteString(fd.Ret)
	out.WriteString(" ")
	out.WriteString(fd.Name)
	out.WriteString("(")

	args := []string{}
	for _, a := range fd.Args {
		args = append(args, a.String())
	}
	out.WriteString(strings.Join(args, ", "))

	out.WriteString(")\n")
	out.WriteString(fd.Body.String())

	return out.String()
}
