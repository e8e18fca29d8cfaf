package slac

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/NicholasBermuda/firedrake/ast"
	"github.com/NicholasBermuda/firedrake/errdefs"
)

// Transformer rewrites a generated subkernel so its output argument is
// addressed through an Eigen view. The flat output array parameter
// becomes a raw pointer, an Eigen::Map declaration under the original
// name is prepended to the body, and every subscripted store into the
// output becomes an Eigen coefficient access. The input declaration is
// left untouched; Transform builds a new function.
type Transformer struct{}

// Transform returns the Eigen form of fd. The first parameter must be
// the output argument and must carry its extents.
func (tr *Transformer) Transform(fd *ast.FunDecl) (*ast.FunDecl, error) {
	if fd == nil || len(fd.Args) == 0 {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "kernel has no output argument")
	}

	out := fd.Args[0]
	if out.Sym == nil || len(out.Sym.Rank) == 0 {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "output argument carries no extents")
	}
	name := out.Sym.Name
	ptr := name + "_"

	mat, err := eigenMatrixType(out.Type, out.Sym.Rank)
	if err != nil {
		return nil, errors.Wrapf(err, "output argument %s", name)
	}

	args := make([]*ast.Param, len(fd.Args))
	args[0] = &ast.Param{Type: out.Type + " *", Sym: &ast.Symbol{Name: ptr}}
	copy(args[1:], fd.Args[1:])

	stmts := make([]ast.Stmt, 0, len(fd.Body.Stmts)+1)
	stmts = append(stmts, &ast.FlatBlock{
		Code: fmt.Sprintf("Eigen::Map<%s > %s((%s *)%s);", mat, name, out.Type, ptr),
	})
	for _, s := range fd.Body.Stmts {
		stmts = append(stmts, tr.rewriteStmt(s, name))
	}

	return &ast.FunDecl{
		Pred: fd.Pred,
		Ret:  fd.Ret,
		Name: fd.Name,
		Args: args,
		Body: &ast.Block{Stmts: stmts},
	}, nil
}

func (tr *Transformer) rewriteStmt(s ast.Stmt, out string) ast.Stmt {
	switch n := s.(type) {
	case *ast.Decl:
		if n.Init == nil {
			return n
		}
		return &ast.Decl{Quals: n.Quals, Type: n.Type, Sym: n.Sym, Init: tr.rewriteExpr(n.Init, out)}
	case *ast.Assign:
		return &ast.Assign{LHS: tr.rewriteExpr(n.LHS, out), RHS: tr.rewriteExpr(n.RHS, out)}
	case *ast.Incr:
		return &ast.Incr{LHS: tr.rewriteExpr(n.LHS, out), RHS: tr.rewriteExpr(n.RHS, out)}
	case *ast.ExprStmt:
		return &ast.ExprStmt{X: tr.rewriteExpr(n.X, out)}
	case *ast.For:
		return &ast.For{Var: n.Var, Start: n.Start, End: n.End, Body: tr.rewriteBlock(n.Body, out)}
	case *ast.Block:
		return tr.rewriteBlock(n, out)
	default:
		// FlatBlock carries raw text and passes through unchanged.
		return s
	}
}

func (tr *Transformer) rewriteBlock(b *ast.Block, out string) *ast.Block {
	stmts := make([]ast.Stmt, len(b.Stmts))
	for i, s := range b.Stmts {
		stmts[i] = tr.rewriteStmt(s, out)
	}
	return &ast.Block{Stmts: stmts}
}

func (tr *Transformer) rewriteExpr(e ast.Expr, out string) ast.Expr {
	switch n := e.(type) {
	case *ast.Index:
		base := tr.rewriteExpr(n.Base, out)
		subs := make([]ast.Expr, len(n.Subs))
		for i, sub := range n.Subs {
			subs[i] = tr.rewriteExpr(sub, out)
		}
		if sym, ok := base.(*ast.Symbol); ok && sym.Name == out {
			return &ast.FunCall{Name: out, Args: subs}
		}
		return &ast.Index{Base: base, Subs: subs}
	case *ast.BinExpr:
		return &ast.BinExpr{Op: n.Op, Left: tr.rewriteExpr(n.Left, out), Right: tr.rewriteExpr(n.Right, out)}
	case *ast.UnExpr:
		return &ast.UnExpr{Op: n.Op, X: tr.rewriteExpr(n.X, out)}
	case *ast.FunCall:
		args := make([]ast.Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = tr.rewriteExpr(a, out)
		}
		return &ast.FunCall{Name: n.Name, Args: args}
	default:
		return e
	}
}
