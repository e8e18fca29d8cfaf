package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicholasBermuda/firedrake/config"
	"github.com/NicholasBermuda/firedrake/errdefs"
	"github.com/NicholasBermuda/firedrake/slate"
)

type nopCompiler struct{}

func (n *nopCompiler) CompileForm(tensor *slate.Tensor, prefix string, params *config.Parameters) ([]*ContextKernel, error) {
	return nil, nil
}

func TestLookupDirect(t *testing.T) {
	c, err := Lookup("direct")
	require.NoError(t, err)
	assert.IsType(t, &Direct{}, c)
}

func TestLookupMissing(t *testing.T) {
	_, err := Lookup("no-such-compiler")
	assert.True(t, errdefs.IsNotFound(err))
	assert.Contains(t, err.Error(), "direct")
}

func TestRegister(t *testing.T) {
	require.NoError(t, Register("nop-register-test", &nopCompiler{}))

	c, err := Lookup("nop-register-test")
	require.NoError(t, err)
	assert.IsType(t, &nopCompiler{}, c)

	err = Register("nop-register-test", &nopCompiler{})
	assert.True(t, errdefs.IsInvalidArgument(err))

	err = Register("", &nopCompiler{})
	assert.True(t, errdefs.IsInvalidArgument(err))

	err = Register("nil-compiler", nil)
	assert.True(t, errdefs.IsInvalidArgument(err))
}
