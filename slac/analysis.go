package slac

import (
	"fmt"
	"sort"

	"github.com/NicholasBermuda/firedrake/ast"
	"github.com/NicholasBermuda/firedrake/slate"
)

// traverse walks the expression DAGs depth first from each root,
// operands left to right, calling visit on every distinct node exactly
// once in first-encounter order. Distinctness is node identity, so
// structurally equal nodes built separately are visited separately.
func traverse(roots []slate.TensorBase, visit func(slate.TensorBase)) {
	seen := make(map[slate.TensorBase]struct{})

	var walk func(n slate.TensorBase)
	walk = func(n slate.TensorBase) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		visit(n)
		for _, op := range n.Operands() {
			walk(op)
		}
	}

	for _, r := range roots {
		walk(r)
	}
}

// collectReferenceCount returns, for every node reachable from the
// roots, the number of parent edges referencing it. A node used as an
// operand in two places, or twice by the same parent, counts twice.
// Roots referenced by nothing are absent from the map.
func collectReferenceCount(roots []slate.TensorBase) map[slate.TensorBase]int {
	counts := make(map[slate.TensorBase]int)
	traverse(roots, func(n slate.TensorBase) {
		for _, op := range n.Operands() {
			counts[op]++
		}
	})
	return counts
}

// countOperands measures the size of an expression as the total number
// of operand edges in its subtree. Shared nodes count once per
// occurrence, so the measure of a node is always strictly larger than
// that of any of its operands.
func countOperands(n slate.TensorBase) int {
	total := 0
	for _, op := range n.Operands() {
		total += 1 + countOperands(op)
	}
	return total
}

// Temporaries maps the terminal tensors of an expression to the
// symbols holding their assembled element matrices. Symbols are named
// T0, T1, ... in first-encounter order, which makes the numbering
// reproducible for structurally identical expressions.
type Temporaries struct {
	order []*slate.Tensor
	syms  map[*slate.Tensor]*ast.Symbol
}

func newTemporaries() *Temporaries {
	return &Temporaries{syms: make(map[*slate.Tensor]*ast.Symbol)}
}

// add returns the symbol for a terminal, assigning the next T%d name
// on first sight.
func (t *Temporaries) add(ten *slate.Tensor) *ast.Symbol {
	if sym, ok := t.syms[ten]; ok {
		return sym
	}
	sym := &ast.Symbol{Name: fmt.Sprintf("T%d", len(t.order))}
	t.order = append(t.order, ten)
	t.syms[ten] = sym
	return sym
}

func (t *Temporaries) Len() int { return len(t.order) }

// Terminals returns the terminal tensors in assignment order.
func (t *Temporaries) Terminals() []*slate.Tensor { return t.order }

func (t *Temporaries) Symbol(ten *slate.Tensor) (*ast.Symbol, bool) {
	sym, ok := t.syms[ten]
	return sym, ok
}

// generateExprData assigns temporaries to the expression's terminals
// and gathers its operation nodes sorted ascending by operand count.
// The sort is stable, so nodes of equal size keep their traversal
// discovery order; since operands are strictly smaller than their
// parents, materializing in this order never references a temporary
// before it is defined.
func generateExprData(expr slate.TensorBase) (*Temporaries, []slate.TensorOp) {
	temps := newTemporaries()
	tensorOps := []slate.TensorOp{}

	traverse([]slate.TensorBase{expr}, func(n slate.TensorBase) {
		switch t := n.(type) {
		case *slate.Tensor:
			temps.add(t)
		case slate.TensorOp:
			tensorOps = append(tensorOps, t)
		}
	})

	counts := make(map[slate.TensorOp]int, len(tensorOps))
	for _, op := range tensorOps {
		counts[op] = countOperands(op)
	}
	sort.SliceStable(tensorOps, func(i, j int) bool {
		return counts[tensorOps[i]] < counts[tensorOps[j]]
	})

	return temps, tensorOps
}
