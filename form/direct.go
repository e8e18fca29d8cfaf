package form

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/NicholasBermuda/firedrake/ast"
	"github.com/NicholasBermuda/firedrake/config"
	"github.com/NicholasBermuda/firedrake/errdefs"
	"github.com/NicholasBermuda/firedrake/slate"
)

// Direct is the built-in reference form compiler. It lowers a terminal
// tensor to a single cell kernel that zeroes the output and accumulates
// a value derived from the coefficient data: the product over all
// coefficient components of the sum of their degrees of freedom. The
// lowering is deliberately simple; its purpose is to produce complete,
// well-formed kernels with the same calling convention as an external
// form compiler.
type Direct struct{}

func (d *Direct) CompileForm(tensor *slate.Tensor, prefix string, params *config.Parameters) ([]*ContextKernel, error) {
	if tensor == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "cannot compile a nil tensor")
	}
	if params == nil {
		params = config.Default()
	}
	if params.Mode != "" && params.Mode != "vanilla" {
		return nil, errors.Wrapf(errdefs.ErrCompilation, "unknown lowering mode %q", params.Mode)
	}
	scalar := params.ScalarType
	if scalar == "" {
		scalar = "double"
	}

	extents := tensor.Shape()
	if len(extents) == 0 {
		extents = []int{1}
	}
	oriented := tensor.Oriented()
	coeffs := tensor.Coefficients()

	out := &ast.Symbol{Name: "A", Rank: extents}
	args := []*ast.Param{
		{Type: scalar, Sym: out},
		{Type: "const " + scalar + " *", Sym: &ast.Symbol{Name: "coords"}},
	}
	if oriented {
		args = append(args, &ast.Param{Type: "const int *", Sym: &ast.Symbol{Name: "cell_orientations"}})
	}

	indices := make([]int, 0, len(coeffs))
	for i, c := range coeffs {
		indices = append(indices, i)
		if comps := c.Space().Components(); comps != nil {
			for j := range comps {
				args = append(args, &ast.Param{
					Type: "const " + scalar + " *",
					Sym:  &ast.Symbol{Name: fmt.Sprintf("w_%d_%d", i, j)},
				})
			}
		} else {
			args = append(args, &ast.Param{
				Type: "const " + scalar + " *",
				Sym:  &ast.Symbol{Name: fmt.Sprintf("w_%d", i)},
			})
		}
	}

	stmts := []ast.Stmt{}
	stmts = append(stmts, elementLoop(out, tensor.Rank(), func(lhs ast.Expr) ast.Stmt {
		return &ast.Assign{LHS: lhs, RHS: &ast.FloatLit{Value: 0}}
	}))

	acc := &ast.Symbol{Name: "acc"}
	stmts = append(stmts, &ast.Decl{Type: scalar, Sym: acc, Init: &ast.FloatLit{Value: 1}})
	comp := 0
	for i, c := range coeffs {
		if comps := c.Space().Components(); comps != nil {
			for j, sub := range comps {
				stmts = append(stmts, dofSum(scalar, acc, comp, fmt.Sprintf("w_%d_%d", i, j), sub.Dim())...)
				comp++
			}
		} else {
			stmts = append(stmts, dofSum(scalar, acc, comp, fmt.Sprintf("w_%d", i), c.Space().Dim())...)
			comp++
		}
	}
	if oriented {
		stmts = append(stmts, &ast.FlatBlock{Code: "if (cell_orientations[0] == 1) acc = -acc;"})
	}
	stmts = append(stmts, elementLoop(out, tensor.Rank(), func(lhs ast.Expr) ast.Stmt {
		return &ast.Incr{LHS: lhs, RHS: acc}
	}))

	kernel := &ast.FunDecl{
		Pred: []string{"static", "inline"},
		Ret:  "void",
		Name: prefix + IntegralTypeCell + "_integral_" + DefaultSubdomain,
		Args: args,
		Body: &ast.Block{Stmts: stmts},
	}

	ck := &ContextKernel{
		Tensor:       tensor,
		IntegralType: IntegralTypeCell,
		SubdomainID:  DefaultSubdomain,
		Kernels: []*SplitKernel{{
			AST:          kernel,
			IntegralType: IntegralTypeCell,
			SubdomainID:  DefaultSubdomain,
			Coefficients: indices,
			Oriented:     oriented,
		}},
	}
	return []*ContextKernel{ck}, nil
}

// elementLoop builds the loop nest visiting every entry of the output,
// applying body to the subscripted symbol. Rank 0 degenerates to a
// single statement on A[0].
func elementLoop(out *ast.Symbol, rank int, body func(lhs ast.Expr) ast.Stmt) ast.Stmt {
	switch rank {
	case 0:
		return body(&ast.Index{Base: &ast.Symbol{Name: out.Name}, Subs: []ast.Expr{&ast.IntLit{Value: 0}}})
	case 1:
		i := &ast.Symbol{Name: "i"}
		return &ast.For{
			Var:   i,
			Start: &ast.IntLit{Value: 0},
			End:   &ast.IntLit{Value: int64(out.Rank[0])},
			Body: &ast.Block{Stmts: []ast.Stmt{
				body(&ast.Index{Base: &ast.Symbol{Name: out.Name}, Subs: []ast.Expr{i}}),
			}},
		}
	default:
		i := &ast.Symbol{Name: "i"}
		j := &ast.Symbol{Name: "j"}
		inner := &ast.For{
			Var:   j,
			Start: &ast.IntLit{Value: 0},
			End:   &ast.IntLit{Value: int64(out.Rank[1])},
			Body: &ast.Block{Stmts: []ast.Stmt{
				body(&ast.Index{Base: &ast.Symbol{Name: out.Name}, Subs: []ast.Expr{i, j}}),
			}},
		}
		return &ast.For{
			Var:   i,
			Start: &ast.IntLit{Value: 0},
			End:   &ast.IntLit{Value: int64(out.Rank[0])},
			Body:  &ast.Block{Stmts: []ast.Stmt{inner}},
		}
	}
}

// dofSum emits the statements accumulating one coefficient component
// into acc: a dof sum followed by a multiplicative fold.
func dofSum(scalar string, acc *ast.Symbol, comp int, arg string, dim int) []ast.Stmt {
	s := &ast.Symbol{Name: fmt.Sprintf("s_%d", comp)}
	k := &ast.Symbol{Name: "k"}
	return []ast.Stmt{
		&ast.Decl{Type: scalar, Sym: s, Init: &ast.FloatLit{Value: 0}},
		&ast.For{
			Var:   k,
			Start: &ast.IntLit{Value: 0},
			End:   &ast.IntLit{Value: int64(dim)},
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Incr{LHS: s, RHS: &ast.Index{Base: &ast.Symbol{Name: arg}, Subs: []ast.Expr{k}}},
			}},
		},
		&ast.Assign{LHS: acc, RHS: &ast.BinExpr{Op: "*", Left: acc, Right: s}},
	}
}
