// Package config holds the compilation parameters threaded through the
// kernel builder and the terminal form compilers. Parameter files are
// written in HCL:
//
//	parameters {
//	  compiler    = "direct"
//	  mode        = "vanilla"
//	  scalar_type = "double"
//	}
//
// Unknown attributes inside the parameters block are preserved in Extra
// so individual form compilers can consume options the core does not
// know about.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

type Parameters struct {
	// Compiler names the registered terminal form compiler.
	Compiler string
	// Mode selects the lowering mode of the form compiler.
	Mode string
	// ScalarType is the C scalar type of generated kernels.
	ScalarType string
	// Extra holds attributes the core does not interpret.
	Extra map[string]string
}

func Default() *Parameters {
	return &Parameters{
		Compiler:   "direct",
		Mode:       "vanilla",
		ScalarType: "double",
		Extra:      map[string]string{},
	}
}

// Merge overlays the non-empty fields of o onto p and returns p.
func (p *Parameters) Merge(o *Parameters) *Parameters {
	if o == nil {
		return p
	}
	if o.Compiler != "" {
		p.Compiler = o.Compiler
	}
	if o.Mode != "" {
		p.Mode = o.Mode
	}
	if o.ScalarType != "" {
		p.ScalarType = o.ScalarType
	}
	if len(o.Extra) > 0 && p.Extra == nil {
		p.Extra = map[string]string{}
	}
	for k, v := range o.Extra {
		p.Extra[k] = v
	}
	return p
}

// Fingerprint renders the parameters as a stable string suitable for
// cache keys. Extra attributes are emitted in sorted order.
func (p *Parameters) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compiler=%s;mode=%s;scalar_type=%s;", p.Compiler, p.Mode, p.ScalarType)

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, p.Extra[k])
	}
	return b.String()
}

type fileRoot struct {
	Parameters *parametersBlock `hcl:"parameters,block"`
}

type parametersBlock struct {
	Compiler   string   `hcl:"compiler,optional"`
	Mode       string   `hcl:"mode,optional"`
	ScalarType string   `hcl:"scalar_type,optional"`
	Remain     hcl.Body `hcl:",remain"`
}

// Parse decodes a parameters file. A file without a parameters block
// yields empty Parameters, which merge as a no-op.
func Parse(filename string, src []byte) (*Parameters, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "parse %s: %s", filename, diags.Error())
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, nil, &root)
	if diags.HasErrors() {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "decode %s: %s", filename, diags.Error())
	}

	p := &Parameters{Extra: map[string]string{}}
	if root.Parameters == nil {
		return p, nil
	}
	p.Compiler = root.Parameters.Compiler
	p.Mode = root.Parameters.Mode
	p.ScalarType = root.Parameters.ScalarType

	attrs, diags := root.Parameters.Remain.JustAttributes()
	if diags.HasErrors() {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "decode %s: %s", filename, diags.Error())
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		val, diags := attrs[name].Expr.Value(nil)
		if diags.HasErrors() {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "evaluate %s in %s: %s", name, filename, diags.Error())
		}
		str, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "attribute %s in %s is not a string: %v", name, filename, err)
		}
		p.Extra[name] = str.AsString()
	}

	return p, nil
}

// Load reads and parses a parameters file from disk.
func Load(path string) (*Parameters, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read parameters file %s", path)
	}
	return Parse(path, src)
}
