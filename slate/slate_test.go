package slate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

func testSpace(t *testing.T, name string, dim int) *FunctionSpace {
	t.Helper()
	fs, err := NewFunctionSpace(name, dim)
	require.NoError(t, err)
	return fs
}

func testCoefficient(t *testing.T, name string, fs *FunctionSpace) *Coefficient {
	t.Helper()
	c, err := NewCoefficient(name, fs)
	require.NoError(t, err)
	return c
}

func testTensor(t *testing.T, name string, args []*FunctionSpace, coeffs ...*Coefficient) *Tensor {
	t.Helper()
	f, err := NewForm(args, coeffs...)
	require.NoError(t, err)
	ten, err := NewTensor(name, f)
	require.NoError(t, err)
	return ten
}

func TestFunctionSpace(t *testing.T) {
	v := testSpace(t, "V", 3)
	assert.Equal(t, "V", v.Name())
	assert.Equal(t, 3, v.Dim())
	assert.False(t, v.Mixed())
	assert.False(t, v.Oriented())

	_, err := NewFunctionSpace("bad", 0)
	assert.True(t, errdefs.IsInvalidArgument(err))

	rt, err := NewOrientedFunctionSpace("RT", 4)
	require.NoError(t, err)
	assert.True(t, rt.Oriented())
}

func TestMixedFunctionSpace(t *testing.T) {
	v := testSpace(t, "V", 3)
	q := testSpace(t, "Q", 2)

	w, err := NewMixedFunctionSpace(v, q)
	require.NoError(t, err)
	assert.True(t, w.Mixed())
	assert.Equal(t, 5, w.Dim())
	assert.Equal(t, []*FunctionSpace{v, q}, w.Components())

	_, err = NewMixedFunctionSpace(v)
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = NewMixedFunctionSpace(v, w)
	assert.True(t, errdefs.IsUnsupported(err))

	rt, err := NewOrientedFunctionSpace("RT", 4)
	require.NoError(t, err)
	wo, err := NewMixedFunctionSpace(v, rt)
	require.NoError(t, err)
	assert.True(t, wo.Oriented())
}

func TestTensorShapes(t *testing.T) {
	v := testSpace(t, "V", 3)
	q := testSpace(t, "Q", 2)

	tests := []struct {
		name  string
		args  []*FunctionSpace
		shape []int
		rank  int
	}{
		{"matrix", []*FunctionSpace{v, q}, []int{3, 2}, 2},
		{"vector", []*FunctionSpace{v}, []int{3}, 1},
		{"scalar", nil, []int{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ten := testTensor(t, "A", tt.args)
			assert.Equal(t, tt.rank, ten.Rank())
			assert.Len(t, ten.Shape(), len(tt.shape))
			for i, n := range tt.shape {
				assert.Equal(t, n, ten.Shape()[i])
			}
			assert.Nil(t, ten.Operands())
		})
	}

	_, err := NewForm([]*FunctionSpace{v, q, v})
	assert.True(t, errdefs.IsUnsupported(err))

	_, err = NewTensor("A", nil)
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestShapeAlgebra(t *testing.T) {
	v := testSpace(t, "V", 3)
	q := testSpace(t, "Q", 2)

	a := testTensor(t, "A", []*FunctionSpace{v, v})
	m := testTensor(t, "M", []*FunctionSpace{v, q})
	b := testTensor(t, "b", []*FunctionSpace{v})

	sum, err := NewAdd(a, a)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, sum.Shape())

	_, err = NewAdd(a, b)
	assert.True(t, errdefs.IsInvalidArgument(err))

	diff, err := NewSub(m, m)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, diff.Shape())

	prod, err := NewMul(a, m)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, prod.Shape())

	mv, err := NewMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, mv.Shape())

	_, err = NewMul(m, b)
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = NewMul(b, b)
	assert.True(t, errdefs.IsUnsupported(err))

	neg, err := NewNegative(b)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, neg.Shape())

	tr, err := NewTranspose(m)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, tr.Shape())

	_, err = NewTranspose(b)
	assert.True(t, errdefs.IsUnsupported(err))

	inv, err := NewInverse(a)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, inv.Shape())

	_, err = NewInverse(m)
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestAction(t *testing.T) {
	v := testSpace(t, "V", 3)
	q := testSpace(t, "Q", 2)
	f := testCoefficient(t, "f", v)
	g := testCoefficient(t, "g", q)

	a := testTensor(t, "A", []*FunctionSpace{v, v})
	b := testTensor(t, "b", []*FunctionSpace{v})

	act, err := NewAction(a, f)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, act.Shape())
	assert.Equal(t, f, act.ActingCoefficient())
	assert.Equal(t, []*Coefficient{f}, act.Coefficients())

	_, err = NewAction(a, g)
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = NewAction(b, f)
	assert.True(t, errdefs.IsUnsupported(err))

	_, err = NewAction(a, nil)
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestCoefficientOrdering(t *testing.T) {
	v := testSpace(t, "V", 3)
	f := testCoefficient(t, "f", v)
	g := testCoefficient(t, "g", v)

	// Terminals report their form coefficients once each.
	a := testTensor(t, "A", []*FunctionSpace{v, v}, f, g, f)
	assert.Equal(t, []*Coefficient{f, g}, a.Coefficients())

	// Merging keeps first-encounter order across operands.
	b := testTensor(t, "B", []*FunctionSpace{v, v}, g)
	sum, err := NewAdd(a, b)
	require.NoError(t, err)
	assert.Equal(t, []*Coefficient{f, g}, sum.Coefficients())

	rev, err := NewAdd(b, a)
	require.NoError(t, err)
	assert.Equal(t, []*Coefficient{g, f}, rev.Coefficients())

	// An action appends its acting coefficient after the operand's.
	h := testCoefficient(t, "h", v)
	act, err := NewAction(a, h)
	require.NoError(t, err)
	assert.Equal(t, []*Coefficient{f, g, h}, act.Coefficients())

	// Unless the operand already depends on it.
	act2, err := NewAction(a, g)
	require.NoError(t, err)
	assert.Equal(t, []*Coefficient{f, g}, act2.Coefficients())
}

func TestCoefficientIdentity(t *testing.T) {
	v := testSpace(t, "V", 3)

	// Structurally equal coefficients are still distinct.
	f1 := testCoefficient(t, "f", v)
	f2 := testCoefficient(t, "f", v)

	a := testTensor(t, "A", []*FunctionSpace{v, v}, f1)
	b := testTensor(t, "B", []*FunctionSpace{v, v}, f2)

	sum, err := NewAdd(a, b)
	require.NoError(t, err)
	assert.Equal(t, []*Coefficient{f1, f2}, sum.Coefficients())
}

func TestStrings(t *testing.T) {
	v := testSpace(t, "V", 2)
	f := testCoefficient(t, "f", v)
	a := testTensor(t, "A", []*FunctionSpace{v, v})
	b := testTensor(t, "B", []*FunctionSpace{v, v})

	sum, err := NewAdd(a, b)
	require.NoError(t, err)
	assert.Equal(t, "(A + B)", sum.String())

	neg, err := NewNegative(sum)
	require.NoError(t, err)
	assert.Equal(t, "(-(A + B))", neg.String())

	inv, err := NewInverse(a)
	require.NoError(t, err)
	tr, err := NewTranspose(a)
	require.NoError(t, err)
	assert.Equal(t, "(A).inv", inv.String())
	assert.Equal(t, "(A).T", tr.String())

	act, err := NewAction(a, f)
	require.NoError(t, err)
	assert.Equal(t, "(A * f)", act.String())
}

func TestTensorOriented(t *testing.T) {
	v := testSpace(t, "V", 3)
	rt, err := NewOrientedFunctionSpace("RT", 4)
	require.NoError(t, err)

	plain := testTensor(t, "A", []*FunctionSpace{v, v})
	assert.False(t, plain.Oriented())

	mixed := testTensor(t, "B", []*FunctionSpace{v, rt})
	assert.True(t, mixed.Oriented())
}
