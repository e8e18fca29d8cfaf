// Package slate provides a symbolic expression language for dense,
// element-local linear algebra. Expressions are immutable DAGs built
// from terminal tensors (backed by multilinear forms) and algebraic
// operations on them. Node identity is pointer identity: reusing a node
// value shares the vertex, while structurally equal but distinct nodes
// remain distinct.
package slate

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

// TensorBase is the interface satisfied by every expression node.
type TensorBase interface {
	// Shape returns the per-axis extents, empty for rank-0 nodes.
	Shape() []int
	Rank() int
	// Operands returns the child nodes in argument order, nil for
	// terminals.
	Operands() []TensorBase
	// Coefficients returns the coefficients the node depends on, in
	// deterministic first-encounter order over the operands.
	Coefficients() []*Coefficient
	String() string

	tensor()
}

// TensorOp marks the non-terminal nodes of an expression.
type TensorOp interface {
	TensorBase
	tensorOp()
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// mergeCoefficients concatenates the operands' coefficients, keeping
// the first occurrence of each.
func mergeCoefficients(operands ...TensorBase) []*Coefficient {
	seen := make(map[*Coefficient]struct{})
	coeffs := []*Coefficient{}
	for _, op := range operands {
		for _, c := range op.Coefficients() {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			coeffs = append(coeffs, c)
		}
	}
	return coeffs
}

func checkOperands(operands ...TensorBase) error {
	for _, op := range operands {
		if op == nil {
			return errors.Wrap(errdefs.ErrInvalidArgument, "tensor operand is nil")
		}
	}
	return nil
}

// Tensor is a terminal node wrapping a multilinear form. Its shape is
// determined by the form's argument spaces: a rank-2 form yields a
// matrix, rank-1 a vector and rank-0 a scalar.
type Tensor struct {
	name   string
	form   *Form
	shape  []int
	coeffs []*Coefficient
}

func NewTensor(name string, form *Form) (*Tensor, error) {
	if form == nil {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "tensor %q has no form", name)
	}
	shape := make([]int, 0, form.Rank())
	for _, a := range form.Arguments() {
		shape = append(shape, a.Dim())
	}

	seen := make(map[*Coefficient]struct{})
	coeffs := []*Coefficient{}
	for _, c := range form.Coefficients() {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		coeffs = append(coeffs, c)
	}

	return &Tensor{name: name, form: form, shape: shape, coeffs: coeffs}, nil
}

func (t *Tensor) tensor() {}

func (t *Tensor) Name() string { return t.name }

func (t *Tensor) Form() *Form { return t.form }

func (t *Tensor) Shape() []int { return t.shape }

func (t *Tensor) Rank() int { return len(t.shape) }

func (t *Tensor) Operands() []TensorBase { return nil }

func (t *Tensor) Coefficients() []*Coefficient { return t.coeffs }

func (t *Tensor) String() string { return t.name }

// Oriented reports whether any argument space of the underlying form
// requires cell orientations.
func (t *Tensor) Oriented() bool {
	for _, a := range t.form.Arguments() {
		if a.Oriented() {
			return true
		}
	}
	return false
}

// Add is the pointwise sum of two equally shaped tensors.
type Add struct {
	operands []TensorBase
	shape    []int
	coeffs   []*Coefficient
}

func NewAdd(a, b TensorBase) (*Add, error) {
	if err := checkOperands(a, b); err != nil {
		return nil, err
	}
	if !sameShape(a.Shape(), b.Shape()) {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "cannot add tensors of shapes %v and %v", a.Shape(), b.Shape())
	}
	return &Add{
		operands: []TensorBase{a, b},
		shape:    a.Shape(),
		coeffs:   mergeCoefficients(a, b),
	}, nil
}

func (n *Add) tensor()   {}
func (n *Add) tensorOp() {}

func (n *Add) Shape() []int { return n.shape }

func (n *Add) Rank() int { return len(n.shape) }

func (n *Add) Operands() []TensorBase { return n.operands }

func (n *Add) Coefficients() []*Coefficient { return n.coeffs }

func (n *Add) String() string {
	return fmt.Sprintf("(%s + %s)", n.operands[0], n.operands[1])
}

// Sub is the pointwise difference of two equally shaped tensors.
type Sub struct {
	operands []TensorBase
	shape    []int
	coeffs   []*Coefficient
}

func NewSub(a, b TensorBase) (*Sub, error) {
	if err := checkOperands(a, b); err != nil {
		return nil, err
	}
	if !sameShape(a.Shape(), b.Shape()) {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "cannot subtract tensors of shapes %v and %v", a.Shape(), b.Shape())
	}
	return &Sub{
		operands: []TensorBase{a, b},
		shape:    a.Shape(),
		coeffs:   mergeCoefficients(a, b),
	}, nil
}

func (n *Sub) tensor()   {}
func (n *Sub) tensorOp() {}

func (n *Sub) Shape() []int { return n.shape }

func (n *Sub) Rank() int { return len(n.shape) }

func (n *Sub) Operands() []TensorBase { return n.operands }

func (n *Sub) Coefficients() []*Coefficient { return n.coeffs }

func (n *Sub) String() string {
	return fmt.Sprintf("(%s - %s)", n.operands[0], n.operands[1])
}

// Mul contracts the last axis of the left operand with the first axis
// of the right operand, i.e. matrix-matrix or matrix-vector product.
type Mul struct {
	operands []TensorBase
	shape    []int
	coeffs   []*Coefficient
}

func NewMul(a, b TensorBase) (*Mul, error) {
	if err := checkOperands(a, b); err != nil {
		return nil, err
	}
	if a.Rank() == 0 || b.Rank() == 0 {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "cannot contract a rank-0 tensor")
	}
	as, bs := a.Shape(), b.Shape()
	if as[len(as)-1] != bs[0] {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "cannot contract shapes %v and %v", as, bs)
	}
	shape := append(append([]int{}, as[:len(as)-1]...), bs[1:]...)
	if len(shape) == 0 {
		return nil, errors.Wrap(errdefs.ErrUnsupported, "full contraction to a scalar")
	}
	return &Mul{
		operands: []TensorBase{a, b},
		shape:    shape,
		coeffs:   mergeCoefficients(a, b),
	}, nil
}

func (n *Mul) tensor()   {}
func (n *Mul) tensorOp() {}

func (n *Mul) Shape() []int { return n.shape }

func (n *Mul) Rank() int { return len(n.shape) }

func (n *Mul) Operands() []TensorBase { return n.operands }

func (n *Mul) Coefficients() []*Coefficient { return n.coeffs }

func (n *Mul) String() string {
	return fmt.Sprintf("(%s * %s)", n.operands[0], n.operands[1])
}

// Negative is the additive inverse of a tensor.
type Negative struct {
	operands []TensorBase
	shape    []int
	coeffs   []*Coefficient
}

func NewNegative(a TensorBase) (*Negative, error) {
	if err := checkOperands(a); err != nil {
		return nil, err
	}
	return &Negative{
		operands: []TensorBase{a},
		shape:    a.Shape(),
		coeffs:   mergeCoefficients(a),
	}, nil
}

func (n *Negative) tensor()   {}
func (n *Negative) tensorOp() {}

func (n *Negative) Shape() []int { return n.shape }

func (n *Negative) Rank() int { return len(n.shape) }

func (n *Negative) Operands() []TensorBase { return n.operands }

func (n *Negative) Coefficients() []*Coefficient { return n.coeffs }

func (n *Negative) String() string {
	return fmt.Sprintf("(-%s)", n.operands[0])
}

// Transpose of a rank-2 tensor.
type Transpose struct {
	operands []TensorBase
	shape    []int
	coeffs   []*Coefficient
}

func NewTranspose(a TensorBase) (*Transpose, error) {
	if err := checkOperands(a); err != nil {
		return nil, err
	}
	if a.Rank() != 2 {
		return nil, errors.Wrapf(errdefs.ErrUnsupported, "transpose of a rank-%d tensor", a.Rank())
	}
	return &Transpose{
		operands: []TensorBase{a},
		shape:    []int{a.Shape()[1], a.Shape()[0]},
		coeffs:   mergeCoefficients(a),
	}, nil
}

func (n *Transpose) tensor()   {}
func (n *Transpose) tensorOp() {}

func (n *Transpose) Shape() []int { return n.shape }

func (n *Transpose) Rank() int { return len(n.shape) }

func (n *Transpose) Operands() []TensorBase { return n.operands }

func (n *Transpose) Coefficients() []*Coefficient { return n.coeffs }

func (n *Transpose) String() string {
	return fmt.Sprintf("(%s).T", n.operands[0])
}

// Inverse of a square rank-2 tensor.
type Inverse struct {
	operands []TensorBase
	shape    []int
	coeffs   []*Coefficient
}

func NewInverse(a TensorBase) (*Inverse, error) {
	if err := checkOperands(a); err != nil {
		return nil, err
	}
	if a.Rank() != 2 {
		return nil, errors.Wrapf(errdefs.ErrUnsupported, "inverse of a rank-%d tensor", a.Rank())
	}
	if a.Shape()[0] != a.Shape()[1] {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "cannot invert non-square tensor of shape %v", a.Shape())
	}
	return &Inverse{
		operands: []TensorBase{a},
		shape:    a.Shape(),
		coeffs:   mergeCoefficients(a),
	}, nil
}

func (n *Inverse) tensor()   {}
func (n *Inverse) tensorOp() {}

func (n *Inverse) Shape() []int { return n.shape }

func (n *Inverse) Rank() int { return len(n.shape) }

func (n *Inverse) Operands() []TensorBase { return n.operands }

func (n *Inverse) Coefficients() []*Coefficient { return n.coeffs }

func (n *Inverse) String() string {
	return fmt.Sprintf("(%s).inv", n.operands[0])
}

// Action applies a rank-2 tensor to already assembled coefficient data,
// producing a rank-1 result. The acting coefficient participates in the
// node's coefficient list after the operand's own coefficients.
type Action struct {
	operands []TensorBase
	coeff    *Coefficient
	shape    []int
	coeffs   []*Coefficient
}

func NewAction(a TensorBase, c *Coefficient) (*Action, error) {
	if err := checkOperands(a); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "action coefficient is nil")
	}
	if a.Rank() != 2 {
		return nil, errors.Wrapf(errdefs.ErrUnsupported, "action of a rank-%d tensor", a.Rank())
	}
	if a.Shape()[1] != c.Space().Dim() {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "cannot act shape %v on coefficient %q of dimension %d",
			a.Shape(), c.Name(), c.Space().Dim())
	}

	coeffs := mergeCoefficients(a)
	present := false
	for _, k := range coeffs {
		if k == c {
			present = true
			break
		}
	}
	if !present {
		coeffs = append(coeffs, c)
	}

	return &Action{
		operands: []TensorBase{a},
		coeff:    c,
		shape:    []int{a.Shape()[0]},
		coeffs:   coeffs,
	}, nil
}

func (n *Action) tensor()   {}
func (n *Action) tensorOp() {}

func (n *Action) Shape() []int { return n.shape }

func (n *Action) Rank() int { return len(n.shape) }

func (n *Action) Operands() []TensorBase { return n.operands }

func (n *Action) Coefficients() []*Coefficient { return n.coeffs }

// ActingCoefficient returns the coefficient the tensor acts on.
func (n *Action) ActingCoefficient() *Coefficient { return n.coeff }

func (n *Action) String() string {
	return fmt.Sprintf("(%s * %s)", n.operands[0], n.coeff.Name())
}
