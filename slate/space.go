package slate

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

// FunctionSpace describes the element-local layout of a field: how many
// degrees of freedom a single cell carries. A mixed space is an ordered
// sequence of component spaces; its dimension is the sum of theirs.
type FunctionSpace struct {
	name       string
	dim        int
	oriented   bool
	components []*FunctionSpace
}

func NewFunctionSpace(name string, dim int) (*FunctionSpace, error) {
	if dim <= 0 {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "function space %q must have a positive dimension, got %d", name, dim)
	}
	return &FunctionSpace{name: name, dim: dim}, nil
}

// NewOrientedFunctionSpace builds a space whose kernels require cell
// orientation information, e.g. H(div) elements.
func NewOrientedFunctionSpace(name string, dim int) (*FunctionSpace, error) {
	fs, err := NewFunctionSpace(name, dim)
	if err != nil {
		return nil, err
	}
	fs.oriented = true
	return fs, nil
}

func NewMixedFunctionSpace(components ...*FunctionSpace) (*FunctionSpace, error) {
	if len(components) < 2 {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "mixed function space needs at least two components, got %d", len(components))
	}
	dim := 0
	oriented := false
	names := []string{}
	for _, c := range components {
		if c == nil {
			return nil, errors.Wrap(errdefs.ErrInvalidArgument, "mixed function space component is nil")
		}
		if c.Mixed() {
			return nil, errors.Wrapf(errdefs.ErrUnsupported, "nested mixed function space %q", c.Name())
		}
		dim += c.dim
		oriented = oriented || c.oriented
		names = append(names, c.name)
	}
	return &FunctionSpace{
		name:       fmt.Sprintf("(%s)", strings.Join(names, " x ")),
		dim:        dim,
		oriented:   oriented,
		components: components,
	}, nil
}

func (fs *FunctionSpace) Name() string { return fs.name }

// Dim is the number of degrees of freedom per cell.
func (fs *FunctionSpace) Dim() int { return fs.dim }

func (fs *FunctionSpace) Mixed() bool { return fs.components != nil }

// Components returns the component spaces of a mixed space, nil for a
// simple space.
func (fs *FunctionSpace) Components() []*FunctionSpace { return fs.components }

func (fs *FunctionSpace) Oriented() bool { return fs.oriented }

// Coefficient is a known field a form depends on. Coefficients are
// compared by identity: two Coefficient values built from the same
// arguments are still distinct data.
type Coefficient struct {
	name  string
	space *FunctionSpace
}

func NewCoefficient(name string, space *FunctionSpace) (*Coefficient, error) {
	if space == nil {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "coefficient %q has no function space", name)
	}
	return &Coefficient{name: name, space: space}, nil
}

func (c *Coefficient) Name() string { return c.name }

func (c *Coefficient) Space() *FunctionSpace { return c.space }

// Form is the integrand description behind a terminal tensor: its
// argument spaces (test and trial) fix the tensor rank and shape, and
// its coefficients are the fields the element kernel reads.
type Form struct {
	arguments    []*FunctionSpace
	coefficients []*Coefficient
}

func NewForm(arguments []*FunctionSpace, coefficients ...*Coefficient) (*Form, error) {
	if len(arguments) > 2 {
		return nil, errors.Wrapf(errdefs.ErrUnsupported, "rank-%d forms are not supported", len(arguments))
	}
	for i, a := range arguments {
		if a == nil {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "form argument %d is nil", i)
		}
	}
	for i, c := range coefficients {
		if c == nil {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "form coefficient %d is nil", i)
		}
	}
	return &Form{arguments: arguments, coefficients: coefficients}, nil
}

func (f *Form) Rank() int { return len(f.arguments) }

func (f *Form) Arguments() []*FunctionSpace { return f.arguments }

func (f *Form) Coefficients() []*Coefficient { return f.coefficients }
