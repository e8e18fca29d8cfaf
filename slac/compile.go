package slac

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/NicholasBermuda/firedrake/ast"
	"github.com/NicholasBermuda/firedrake/config"
	"github.com/NicholasBermuda/firedrake/errdefs"
	"github.com/NicholasBermuda/firedrake/slate"
)

// MacroKernelName is the entry point of every generated compilation
// unit.
const MacroKernelName = "compile_slate"

const kernelHeader = "#include <Eigen/Dense>\n\n#define restrict __restrict\n\n"

// Kernel is the result of compiling a slate expression: the rendered
// C++ source of the compilation unit together with the assembly
// requirements the caller must satisfy when invoking it.
type Kernel struct {
	Name   string
	AST    *ast.Root
	Source string

	Oriented        bool
	NeedsCellFacets bool
	NeedsMeshLayers bool
}

// CompileExpression compiles a slate expression into a single macro
// kernel. The generated entry point zeroes one temporary per terminal
// tensor, calls the form compiler's subkernels to assemble them,
// materializes auxiliary temporaries smallest first, and accumulates
// the expression into the output argument.
func CompileExpression(expression slate.TensorBase, params *config.Parameters) (*Kernel, error) {
	b, err := NewKernelBuilder(expression, params)
	if err != nil {
		return nil, err
	}
	if err := b.Finalize(); err != nil {
		return nil, err
	}

	body, err := macroKernelBody(b)
	if err != nil {
		return nil, err
	}
	macro, err := b.ConstructMacroKernel(MacroKernelName, macroKernelArgs(b), body)
	if err != nil {
		return nil, err
	}
	root, err := b.ConstructAST([]ast.Node{macro})
	if err != nil {
		return nil, err
	}

	klog.V(2).Infof("compiled %s into %s", expression, MacroKernelName)

	return &Kernel{
		Name:            MacroKernelName,
		AST:             root,
		Source:          kernelHeader + root.String(),
		Oriented:        b.Oriented,
		NeedsCellFacets: b.NeedsCellFacets,
		NeedsMeshLayers: b.NeedsMeshLayers,
	}, nil
}

// macroKernelArgs lists the entry point parameters: the output array,
// the cell coordinates, the optional orientation, facet and layer
// arguments, and one argument per coefficient component.
func macroKernelArgs(b *KernelBuilder) []*ast.Param {
	scalar := b.params.ScalarType
	args := []*ast.Param{
		{Type: scalar + " *", Sym: &ast.Symbol{Name: "out_"}},
		{Type: "const " + scalar + " *", Sym: &ast.Symbol{Name: "coords"}},
	}
	if b.Oriented {
		args = append(args, &ast.Param{Type: "const int *", Sym: &ast.Symbol{Name: "cell_orientations"}})
	}
	if b.NeedsCellFacets {
		args = append(args, &ast.Param{Type: "const char *", Sym: &ast.Symbol{Name: "cell_facets"}})
	}
	if b.NeedsMeshLayers {
		args = append(args, &ast.Param{Type: "int", Sym: &ast.Symbol{Name: "layer"}})
	}

	m := b.CoefficientMap()
	for _, c := range m.Coefficients() {
		syms, _ := m.Symbols(c)
		for _, s := range syms {
			args = append(args, &ast.Param{Type: "const " + scalar + " *", Sym: &ast.Symbol{Name: s.Name}})
		}
	}
	return args
}

func macroKernelBody(b *KernelBuilder) (ast.Stmt, error) {
	scalar := b.params.ScalarType
	stmts := []ast.Stmt{}

	for _, terminal := range b.temps.Terminals() {
		sym, _ := b.temps.Symbol(terminal)
		typ, err := eigenMatrixType(scalar, matrixExtents(terminal.Shape()))
		if err != nil {
			return nil, errors.Wrapf(err, "temporary %s for %s", sym.Name, terminal.Name())
		}
		stmts = append(stmts,
			&ast.Decl{Type: typ, Sym: &ast.Symbol{Name: sym.Name}},
			&ast.ExprStmt{X: &ast.FunCall{Name: sym.Name + ".setZero"}},
		)
	}

	calls, err := subkernelCalls(b)
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, calls...)

	auxSyms := make(map[slate.TensorBase]*ast.Symbol)
	vecCount := 0
	for i, aux := range b.auxExprs {
		sym := &ast.Symbol{Name: fmt.Sprintf("aux%d", i)}
		typ, err := eigenMatrixType(scalar, matrixExtents(aux.Shape()))
		if err != nil {
			return nil, errors.Wrapf(err, "auxiliary temporary %s", sym.Name)
		}

		if act, ok := aux.(*slate.Action); ok {
			vec := &ast.Symbol{Name: fmt.Sprintf("vec%d", vecCount)}
			vecCount++
			vecStmts, err := actingCoefficientStmts(b, act, vec, scalar)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, vecStmts...)
			stmts = append(stmts,
				&ast.Decl{Type: typ, Sym: sym},
				&ast.FlatBlock{Code: fmt.Sprintf("%s = %s * %s;", sym.Name, renderExpr(act.Operands()[0], b.temps, auxSyms), vec.Name)},
			)
		} else {
			stmts = append(stmts,
				&ast.Decl{Type: typ, Sym: sym},
				&ast.FlatBlock{Code: fmt.Sprintf("%s = %s;", sym.Name, renderOp(aux, b.temps, auxSyms))},
			)
		}
		auxSyms[aux] = sym
	}

	mat, err := eigenMatrixType(scalar, matrixExtents(b.expression.Shape()))
	if err != nil {
		return nil, errors.Wrap(err, "output")
	}
	stmts = append(stmts,
		&ast.FlatBlock{Code: fmt.Sprintf("Eigen::Map<%s > out((%s *)out_);", mat, scalar)},
		&ast.FlatBlock{Code: fmt.Sprintf("out += %s;", renderExpr(b.expression, b.temps, auxSyms))},
	)

	return &ast.Block{Stmts: stmts}, nil
}

// subkernelCalls emits one call per split kernel, assembling each
// terminal's temporary through its .data() pointer. Arguments follow
// the split kernel's declaration: output, coordinates, orientations if
// the kernel is oriented, then the coefficient components the kernel
// asked for.
func subkernelCalls(b *KernelBuilder) ([]ast.Stmt, error) {
	cks, err := b.ContextKernels()
	if err != nil {
		return nil, err
	}

	stmts := []ast.Stmt{}
	for _, ck := range cks {
		sym, ok := b.temps.Symbol(ck.Tensor)
		if !ok {
			return nil, errors.Wrapf(errdefs.ErrCompilation, "form compiler returned kernels for %s, which is not a terminal of %s", ck.Tensor.Name(), b.expression)
		}
		for _, sk := range ck.Kernels {
			callArgs := []ast.Expr{
				&ast.FunCall{Name: sym.Name + ".data"},
				&ast.Symbol{Name: "coords"},
			}
			if sk.Oriented {
				callArgs = append(callArgs, &ast.Symbol{Name: "cell_orientations"})
			}
			coeffs := ck.Tensor.Coefficients()
			for _, ci := range sk.Coefficients {
				if ci < 0 || ci >= len(coeffs) {
					return nil, errors.Wrapf(errdefs.ErrCompilation, "kernel %s references coefficient %d of %s, which has %d", sk.AST.Name, ci, ck.Tensor.Name(), len(coeffs))
				}
				syms, err := b.Coefficient(coeffs[ci])
				if err != nil {
					return nil, err
				}
				for _, s := range syms {
					callArgs = append(callArgs, &ast.Symbol{Name: s.Name})
				}
			}
			stmts = append(stmts, &ast.ExprStmt{X: &ast.FunCall{Name: sk.AST.Name, Args: callArgs}})
		}
	}
	return stmts, nil
}

// actingCoefficientStmts declares the dense vector an action is
// multiplied against and fills it from the coefficient's argument
// arrays. Mixed coefficients are concatenated component-wise with a
// comma initializer.
func actingCoefficientStmts(b *KernelBuilder, act *slate.Action, vec *ast.Symbol, scalar string) ([]ast.Stmt, error) {
	c := act.ActingCoefficient()
	syms, err := b.Coefficient(c)
	if err != nil {
		return nil, err
	}

	typ, err := eigenMatrixType(scalar, []int{c.Space().Dim()})
	if err != nil {
		return nil, errors.Wrapf(err, "acting coefficient %q", c.Name())
	}
	stmts := []ast.Stmt{&ast.Decl{Type: typ, Sym: vec}}

	if comps := c.Space().Components(); comps != nil {
		parts := make([]string, len(syms))
		for j, s := range syms {
			m, err := eigenMatrixType(scalar, []int{comps[j].Dim()})
			if err != nil {
				return nil, errors.Wrapf(err, "component %d of coefficient %q", j, c.Name())
			}
			parts[j] = fmt.Sprintf("Eigen::Map<const %s >(%s)", m, s.Name)
		}
		stmts = append(stmts, &ast.FlatBlock{Code: fmt.Sprintf("%s << %s;", vec.Name, strings.Join(parts, ", "))})
	} else {
		stmts = append(stmts, &ast.FlatBlock{Code: fmt.Sprintf("%s = Eigen::Map<const %s >(%s);", vec.Name, typ, syms[0].Name)})
	}
	return stmts, nil
}

// renderExpr renders a slate node as an Eigen expression. Terminals
// resolve to their temporaries, materialized auxiliaries to their
// symbols, and everything else is rendered structurally.
func renderExpr(n slate.TensorBase, temps *Temporaries, aux map[slate.TensorBase]*ast.Symbol) string {
	if t, ok := n.(*slate.Tensor); ok {
		sym, ok := temps.Symbol(t)
		if !ok {
			panic(fmt.Sprintf("internal: terminal %s has no temporary", t.Name()))
		}
		return sym.Name
	}
	if sym, ok := aux[n]; ok {
		return sym.Name
	}
	return renderOp(n, temps, aux)
}

func renderOp(n slate.TensorBase, temps *Temporaries, aux map[slate.TensorBase]*ast.Symbol) string {
	switch t := n.(type) {
	case *slate.Add:
		ops := t.Operands()
		return fmt.Sprintf("(%s + %s)", renderExpr(ops[0], temps, aux), renderExpr(ops[1], temps, aux))
	case *slate.Sub:
		ops := t.Operands()
		return fmt.Sprintf("(%s - %s)", renderExpr(ops[0], temps, aux), renderExpr(ops[1], temps, aux))
	case *slate.Mul:
		ops := t.Operands()
		return fmt.Sprintf("(%s * %s)", renderExpr(ops[0], temps, aux), renderExpr(ops[1], temps, aux))
	case *slate.Negative:
		return fmt.Sprintf("(-%s)", renderExpr(t.Operands()[0], temps, aux))
	case *slate.Transpose:
		return fmt.Sprintf("(%s).transpose()", renderExpr(t.Operands()[0], temps, aux))
	case *slate.Inverse:
		return fmt.Sprintf("(%s).inverse()", renderExpr(t.Operands()[0], temps, aux))
	case *slate.Action:
		// Actions are always materialized before rendering.
		panic(fmt.Sprintf("internal: action %s was not materialized", t))
	default:
		panic(fmt.Sprintf("internal: unknown tensor node %T", n))
	}
}

// matrixExtents maps a tensor shape onto dense matrix extents; rank 0
// occupies a single slot.
func matrixExtents(shape []int) []int {
	if len(shape) == 0 {
		return []int{1}
	}
	return shape
}

// eigenMatrixType renders the fixed-size Eigen type for the given
// extents. Matrices are row major to match the flat C layout of the
// assembled outputs.
func eigenMatrixType(scalar string, extents []int) (string, error) {
	switch len(extents) {
	case 1:
		return fmt.Sprintf("Eigen::Matrix<%s, %d, 1>", scalar, extents[0]), nil
	case 2:
		return fmt.Sprintf("Eigen::Matrix<%s, %d, %d, Eigen::RowMajor>", scalar, extents[0], extents[1]), nil
	default:
		return "", errors.Wrapf(errdefs.ErrUnsupported, "no dense matrix type for extents %v", extents)
	}
}
