package kernel

import (
	"fmt"
	"strings"
)

// Dialect selects how compiler defines are rendered.
type Dialect int

const (
	// OpenCL renders each define with a leading space: " -DNAME=VALUE".
	OpenCL Dialect = iota
	// HIP renders space separated defines: "-DNAME=VALUE -DOTHER".
	HIP
)

type define struct {
	name     string
	value    string
	hasValue bool
}

// BuildParameters is an ordered set of compiler defines. Redefining a name replaces its
// value in place so the rendered string stays stable.
type BuildParameters struct {
	defines []define
}

// NewBuildParameters returns an empty parameter set.
func NewBuildParameters() *BuildParameters {
	return &BuildParameters{}
}

// Define adds NAME=VALUE. Booleans render as 0 or 1.
func (p *BuildParameters) Define(name string, value any) *BuildParameters {
	if b, ok := value.(bool); ok {
		value = 0
		if b {
			value = 1
		}
	}
	return p.set(define{name: name, value: fmt.Sprint(value), hasValue: true})
}

// Flag adds a valueless define.
func (p *BuildParameters) Flag(name string) *BuildParameters {
	return p.set(define{name: name})
}

// FlagIf adds a valueless define when cond holds.
func (p *BuildParameters) FlagIf(cond bool, name string) *BuildParameters {
	if cond {
		p.Flag(name)
	}
	return p
}

func (p *BuildParameters) set(d define) *BuildParameters {
	for i := range p.defines {
		if p.defines[i].name == d.name {
			p.defines[i] = d
			return p
		}
	}
	p.defines = append(p.defines, d)
	return p
}

// Len returns the number of defines.
func (p *BuildParameters) Len() int { return len(p.defines) }

// Generate renders the defines for a compiler dialect.
func (p *BuildParameters) Generate(dialect Dialect) string {
	parts := make([]string, len(p.defines))
	for i, d := range p.defines {
		if d.hasValue {
			parts[i] = "-D" + d.name + "=" + d.value
		} else {
			parts[i] = "-D" + d.name
		}
	}
	if dialect == OpenCL {
		if len(parts) == 0 {
			return ""
		}
		return " " + strings.Join(parts, " ")
	}
	return strings.Join(parts, " ")
}
