// Package form defines the contract between the expression compiler
// and the compilers that lower terminal tensors to element kernels.
// Implementations are registered by name and selected through the
// compilation parameters.
package form

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/NicholasBermuda/firedrake/ast"
	"github.com/NicholasBermuda/firedrake/config"
	"github.com/NicholasBermuda/firedrake/errdefs"
	"github.com/NicholasBermuda/firedrake/slate"
)

const (
	// IntegralTypeCell is the only integral type assembled here: all
	// kernels perform element-wise local algebra.
	IntegralTypeCell = "cell"

	// DefaultSubdomain marks kernels valid on the whole domain.
	DefaultSubdomain = "otherwise"
)

// SplitKernel is a single generated element kernel together with the
// metadata the expression compiler needs to call it.
type SplitKernel struct {
	AST          *ast.FunDecl
	IntegralType string
	SubdomainID  string
	// Coefficients indexes into the terminal tensor's coefficient
	// list, naming which coefficients the kernel takes as arguments.
	Coefficients []int
	// Oriented reports whether the kernel needs cell orientations.
	Oriented bool
}

// ContextKernel groups the kernels produced for one terminal tensor.
type ContextKernel struct {
	Tensor       *slate.Tensor
	IntegralType string
	SubdomainID  string
	Kernels      []*SplitKernel
}

// Compiler lowers a terminal tensor's form into element kernels. The
// prefix namespaces generated kernel names so kernels from different
// terminals can live in one compilation unit.
type Compiler interface {
	CompileForm(tensor *slate.Tensor, prefix string, params *config.Parameters) ([]*ContextKernel, error)
}

var (
	regMu     sync.RWMutex
	compilers = map[string]Compiler{}
)

// Register makes a form compiler available under the given name.
func Register(name string, c Compiler) error {
	if name == "" {
		return errors.Wrap(errdefs.ErrInvalidArgument, "form compiler name is empty")
	}
	if c == nil {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "form compiler %q is nil", name)
	}

	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := compilers[name]; ok {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "form compiler %q already registered", name)
	}
	compilers[name] = c
	return nil
}

// Lookup resolves a registered form compiler by name.
func Lookup(name string) (Compiler, error) {
	regMu.RLock()
	defer regMu.RUnlock()

	if c, ok := compilers[name]; ok {
		return c, nil
	}

	known := make([]string, 0, len(compilers))
	for k := range compilers {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, errors.Wrapf(errdefs.ErrNotFound, "form compiler %q (registered: %s)", name, strings.Join(known, ", "))
}

func init() {
	compilers["direct"] = &Direct{}
}
