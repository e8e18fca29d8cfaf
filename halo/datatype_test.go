package halo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

func TestDatatypeFor(t *testing.T) {
	tests := []struct {
		kind       ElemKind
		blockSize  int
		bytes      int
		contiguous bool
	}{
		{Float64, 1, 8, false},
		{Float64, 3, 24, true},
		{Float32, 2, 8, true},
		{Int32, 1, 4, false},
		{Int64, 4, 32, true},
	}
	for _, test := range tests {
		dt, err := DatatypeFor(test.kind, test.blockSize)
		require.NoError(t, err)
		assert.Equal(t, test.kind, dt.Kind)
		assert.Equal(t, test.blockSize, dt.BlockSize)
		assert.Equal(t, test.bytes, dt.Bytes)
		assert.Equal(t, test.contiguous, dt.Contiguous)
	}
}

func TestDatatypeForCached(t *testing.T) {
	a, err := DatatypeFor(Float64, 2)
	require.NoError(t, err)
	b, err := DatatypeFor(Float64, 2)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := DatatypeFor(Float64, 5)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestDatatypeForErrors(t *testing.T) {
	_, err := DatatypeFor(Float64, 0)
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = DatatypeFor(ElemKind(99), 1)
	assert.True(t, errdefs.IsUnsupported(err))
}
