package slac

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/NicholasBermuda/firedrake/ast"
	"github.com/NicholasBermuda/firedrake/config"
	"github.com/NicholasBermuda/firedrake/errdefs"
	"github.com/NicholasBermuda/firedrake/form"
	"github.com/NicholasBermuda/firedrake/slate"
)

// CoefficientMap assigns kernel argument symbols to the coefficients
// of an expression in first-encounter order. A coefficient on a mixed
// space maps to one symbol per component, named w_%d_%d; a coefficient
// on a plain space maps to a single w_%d symbol.
type CoefficientMap struct {
	order []*slate.Coefficient
	syms  map[*slate.Coefficient][]*ast.Symbol
}

func (m *CoefficientMap) put(c *slate.Coefficient, syms []*ast.Symbol) {
	m.order = append(m.order, c)
	m.syms[c] = syms
}

func (m *CoefficientMap) Len() int { return len(m.order) }

// Coefficients returns the coefficients in argument order.
func (m *CoefficientMap) Coefficients() []*slate.Coefficient { return m.order }

func (m *CoefficientMap) Symbols(c *slate.Coefficient) ([]*ast.Symbol, bool) {
	syms, ok := m.syms[c]
	return syms, ok
}

// KernelBuilder gathers everything needed to assemble one slate
// expression into a single macro kernel: the temporaries backing the
// expression's terminal tensors, the auxiliary expressions that must
// be materialized into their own temporaries, the per-terminal
// subkernels produced by the form compiler, and the orientation and
// facet requirements of the final kernel.
//
// A builder is not safe for concurrent use.
type KernelBuilder struct {
	// Oriented reports whether any subkernel needs cell orientations.
	// It is false until Finalize has run.
	Oriented bool
	// NeedsCellFacets and NeedsMeshLayers record assembly requirements
	// flagged by the caller before compilation.
	NeedsCellFacets bool
	NeedsMeshLayers bool

	expression slate.TensorBase
	params     *config.Parameters
	compiler   form.Compiler

	temps    *Temporaries
	auxExprs []slate.TensorOp

	coeffMap *CoefficientMap

	ctxKernels []*form.ContextKernel
	ctxBuilt   bool

	finalized   []*ast.FunDecl
	isFinalized bool
}

// NewKernelBuilder analyzes the expression and prepares a builder for
// it. Terminal temporaries are assigned immediately; auxiliary
// temporaries are reserved for every operation node referenced more
// than once and for every action, which always needs its result
// materialized before it can be combined.
func NewKernelBuilder(expression slate.TensorBase, params *config.Parameters) (*KernelBuilder, error) {
	if expression == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "expression is nil")
	}
	params = config.Default().Merge(params)

	compiler, err := form.Lookup(params.Compiler)
	if err != nil {
		return nil, err
	}

	temps, tensorOps := generateExprData(expression)

	refs := collectReferenceCount([]slate.TensorBase{expression})
	auxExprs := []slate.TensorOp{}
	for _, op := range tensorOps {
		if _, isAction := op.(*slate.Action); refs[op] > 1 || isAction {
			auxExprs = append(auxExprs, op)
		}
	}

	klog.V(2).Infof("kernel builder for %s: %d temporaries, %d auxiliary expressions",
		expression, temps.Len(), len(auxExprs))

	return &KernelBuilder{
		expression: expression,
		params:     params,
		compiler:   compiler,
		temps:      temps,
		auxExprs:   auxExprs,
	}, nil
}

// Expression returns the expression under compilation.
func (b *KernelBuilder) Expression() slate.TensorBase { return b.expression }

// Parameters returns the effective compilation parameters.
func (b *KernelBuilder) Parameters() *config.Parameters { return b.params }

// Temporaries returns the terminal temporary assignment.
func (b *KernelBuilder) Temporaries() *Temporaries { return b.temps }

// AuxiliaryExpressions returns the operation nodes that are
// materialized into their own temporaries, ordered smallest first.
func (b *KernelBuilder) AuxiliaryExpressions() []slate.TensorOp { return b.auxExprs }

// IntegralType returns the integral type of the generated kernel.
// Cell-wise assembly is the only supported kind.
func (b *KernelBuilder) IntegralType() string { return form.IntegralTypeCell }

// RequireCellFacets marks the kernel as needing exterior facet data.
func (b *KernelBuilder) RequireCellFacets() { b.NeedsCellFacets = true }

// RequireMeshLayers marks the kernel as needing the mesh layer count.
func (b *KernelBuilder) RequireMeshLayers() { b.NeedsMeshLayers = true }

// Finalized reports whether Finalize has completed successfully.
func (b *KernelBuilder) Finalized() bool { return b.isFinalized }

// Subkernels returns the finalized subkernel declarations. It is nil
// before Finalize has run.
func (b *KernelBuilder) Subkernels() []*ast.FunDecl { return b.finalized }

// CoefficientMap returns the mapping from the expression's
// coefficients to kernel argument symbols. The map is computed once
// and cached, so repeated calls return the same instance.
func (b *KernelBuilder) CoefficientMap() *CoefficientMap {
	if b.coeffMap != nil {
		return b.coeffMap
	}

	m := &CoefficientMap{syms: make(map[*slate.Coefficient][]*ast.Symbol)}
	for i, c := range b.expression.Coefficients() {
		var syms []*ast.Symbol
		if comps := c.Space().Components(); comps != nil {
			for j := range comps {
				syms = append(syms, &ast.Symbol{Name: fmt.Sprintf("w_%d_%d", i, j)})
			}
		} else {
			syms = []*ast.Symbol{{Name: fmt.Sprintf("w_%d", i)}}
		}
		m.put(c, syms)
	}

	b.coeffMap = m
	return m
}

// Coefficient returns the argument symbols for one coefficient of the
// expression, one symbol per component for mixed coefficients.
func (b *KernelBuilder) Coefficient(c *slate.Coefficient) ([]*ast.Symbol, error) {
	if c == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "coefficient is nil")
	}
	syms, ok := b.CoefficientMap().Symbols(c)
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrNotFound, "coefficient %q does not occur in %s", c.Name(), b.expression)
	}
	return syms, nil
}

// ContextKernels compiles every terminal tensor with the configured
// form compiler, prefixing the kernels of the i-th terminal with
// subkernel%d_. The result is computed once and cached; a failed
// compilation leaves the builder unchanged so the call can be retried
// after fixing the cause.
func (b *KernelBuilder) ContextKernels() ([]*form.ContextKernel, error) {
	if b.ctxBuilt {
		return b.ctxKernels, nil
	}

	cks := []*form.ContextKernel{}
	for i, terminal := range b.temps.Terminals() {
		prefix := fmt.Sprintf("subkernel%d_", i)
		compiled, err := b.compiler.CompileForm(terminal, prefix, b.params)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling terminal %s", terminal.Name())
		}
		cks = append(cks, compiled...)
	}
	klog.V(2).Infof("form compiler %s produced %d context kernels for %d terminals",
		b.params.Compiler, len(cks), b.temps.Len())

	b.ctxKernels = cks
	b.ctxBuilt = true
	return cks, nil
}

// Finalize compiles all terminals, rejects kernels this backend cannot
// assemble, rewrites each subkernel for Eigen output access, and
// records whether any kernel needs cell orientations. It runs at most
// once; the finalized state is committed only after every kernel has
// been transformed, so a failure leaves the builder unfinalized.
func (b *KernelBuilder) Finalize() error {
	if b.isFinalized {
		return errors.Wrap(errdefs.ErrPrecondition, "builder is already finalized")
	}

	cks, err := b.ContextKernels()
	if err != nil {
		return err
	}

	oriented := false
	var tr Transformer
	finalized := []*ast.FunDecl{}
	for _, ck := range cks {
		for _, sk := range ck.Kernels {
			if sk.SubdomainID != form.DefaultSubdomain {
				return errors.Wrapf(errdefs.ErrUnsupported, "subdomain %q: subdomains are not implemented", sk.SubdomainID)
			}
			oriented = oriented || sk.Oriented

			fd, err := tr.Transform(sk.AST)
			if err != nil {
				return errors.Wrapf(err, "transforming subkernel %s", sk.AST.Name)
			}
			finalized = append(finalized, fd)
		}
	}

	b.Oriented = oriented
	b.finalized = finalized
	b.isFinalized = true

	klog.V(2).Infof("finalized %d subkernels for %s (oriented=%v)", len(finalized), b.expression, oriented)
	return nil
}

// ConstructMacroKernel wraps a statement block into the macro kernel
// declaration, a static inline function returning void.
func (b *KernelBuilder) ConstructMacroKernel(name string, args []*ast.Param, body ast.Stmt) (*ast.FunDecl, error) {
	block, ok := body.(*ast.Block)
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "macro kernel body must be a block, got %T", body)
	}
	return &ast.FunDecl{
		Pred: []string{"static", "inline"},
		Ret:  "void",
		Name: name,
		Args: args,
		Body: block,
	}, nil
}

// ConstructAST assembles the compilation unit: the finalized
// subkernels first, then the macro kernels. Each call builds a fresh
// container, so callers may rearrange the result without disturbing
// the builder.
func (b *KernelBuilder) ConstructAST(macroKernels []ast.Node) (*ast.Root, error) {
	if macroKernels == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "macro kernel list is nil")
	}
	if !b.isFinalized {
		return nil, errors.Wrap(errdefs.ErrPrecondition, "builder is not finalized")
	}

	children := make([]ast.Node, 0, len(b.finalized)+len(macroKernels))
	for _, fd := range b.finalized {
		children = append(children, fd)
	}
	children = append(children, macroKernels...)
	return &ast.Root{Children: children}, nil
}
