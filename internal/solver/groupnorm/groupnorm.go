// Package groupnorm implements the forward group normalization solver.
package groupnorm

import (
	"fmt"
	"slices"

	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/solver"
	"github.com/fxnlabs/kernel-cache/internal/tensor"
)

// Mode selects how weight and bias are applied.
type Mode int

const (
	ElementwiseAffine Mode = iota
	WeightBias
)

// Problem is y = (x - mean) * rstd * weight + bias over NumGroups groups of channels.
// X and Y are {N, C, ...}; Weight and Bias are {C}; Mean and Rstd are {N, NumGroups}.
type Problem struct {
	Mode      Mode
	X         tensor.Descriptor
	Weight    tensor.Descriptor
	Bias      tensor.Descriptor
	Y         tensor.Descriptor
	Mean      tensor.Descriptor
	Rstd      tensor.Descriptor
	NumGroups int
	Epsilon   float32
}

func (p *Problem) IsSameType() bool {
	return p.X.Type() == p.Y.Type()
}

func (p *Problem) IsSameLength() bool {
	return slices.Equal(p.X.Lengths(), p.Y.Lengths())
}

func (p *Problem) IsAllPacked() bool {
	for _, d := range []tensor.Descriptor{p.X, p.Weight, p.Bias, p.Y, p.Mean, p.Rstd} {
		if !d.IsPacked() {
			return false
		}
	}
	return true
}

// IsRightNormDim checks that channels split evenly into groups and that the auxiliary
// tensors have the matching shapes.
func (p *Problem) IsRightNormDim() bool {
	if p.X.Rank() < 2 || p.NumGroups <= 0 {
		return false
	}
	n, c := p.X.Length(0), p.X.Length(1)
	if c%p.NumGroups != 0 {
		return false
	}
	return slices.Equal(p.Weight.Lengths(), []int{c}) &&
		slices.Equal(p.Bias.Lengths(), []int{c}) &&
		slices.Equal(p.Mean.Lengths(), []int{n, p.NumGroups}) &&
		slices.Equal(p.Rstd.Lengths(), []int{n, p.NumGroups})
}

func (p *Problem) Key() string {
	return kernel.NewNetworkConfig("groupnorm_fwd").
		Add("type", p.X.Type()).
		Add("mode", int(p.Mode)).
		Add("groups", p.NumGroups).
		Ints("x", p.X.Lengths()).
		String()
}

// InvokeParams are the live buffers of one forward call.
type InvokeParams struct {
	XDesc                          tensor.Descriptor
	X, Y, Weight, Bias, Mean, Rstd gpu.DevicePtr
	Epsilon                        float32
	NumGroups                      int
	Mode                           Mode
}

const (
	// ForwardID is the debug id of Forward.
	ForwardID = "GROUPNORM_FWD"
	localSize = 256
)

// Forward computes each (batch, group) slice with one work-group of localSize items.
type Forward struct {
	solver.NonTunable
}

func (Forward) ID() string { return ForwardID }

func localMemory(p *Problem) int {
	return localSize * p.X.Type().Size() * 2
}

func (f Forward) IsApplicable(ec *solver.ExecutionContext, raw solver.Problem) bool {
	p, ok := raw.(*Problem)
	if !ok || p == nil {
		return false
	}
	if ec.IsDisabled(f.ID()) {
		return ec.Reject(f, "disabled")
	}
	switch {
	case !p.IsSameType():
		return ec.Reject(f, "mixed data types")
	case !p.IsSameLength():
		return ec.Reject(f, "x and y lengths differ")
	case !p.IsAllPacked():
		return ec.Reject(f, "non-packed tensor")
	case !p.IsRightNormDim():
		return ec.Reject(f, "channels not divisible into groups")
	case localMemory(p) > ec.Target().MaxLocalMemorySize():
		return ec.Reject(f, "local memory")
	}
	return true
}

func (f Forward) GetSolution(_ *solver.ExecutionContext, raw solver.Problem, _ solver.PerformanceConfig) (kernel.Solution, error) {
	p, ok := raw.(*Problem)
	if !ok || p == nil {
		return kernel.Solution{}, fmt.Errorf("unexpected problem %T", raw)
	}
	dt := p.X.Type()
	params := kernel.NewBuildParameters().
		Define("KC_USE_FP16", dt == tensor.Half).
		Define("KC_USE_FP32", dt == tensor.Float).
		Define("KC_USE_FP64", dt == tensor.Double).
		Define("KC_USE_BFP16", dt == tensor.BFloat16).
		Define("LOCAL_SIZE", localSize)

	outer := p.X.Length(0) * p.NumGroups
	info := kernel.KernelInfo{
		ProgramFile: "GroupNorm.cpp",
		KernelName:  "GroupNormFwdContiguous",
		CompOptions: params.Generate(kernel.HIP),
		Geometry:    kernel.Linear(localSize, outer*localSize),
	}

	return kernel.Solution{
		Solver:             f.ID(),
		ConstructionParams: []kernel.KernelInfo{info},
		InvokerFactory: func(kernels []kernel.Kernel) kernel.Invoker {
			k := kernels[0]
			return func(_ kernel.Handle, raw kernel.InvokeParams) error {
				params, err := kernel.CastParams[InvokeParams](raw)
				if err != nil {
					return err
				}
				n, c := params.XDesc.Length(0), params.XDesc.Length(1)
				perChannel := params.XDesc.ElementSize() / n / c
				return k.Invoke(params.X, params.Y, params.Weight, params.Bias, params.Mean, params.Rstd,
					params.Epsilon, uint64(params.NumGroups), uint64(c), uint64(perChannel), params.Mode != ElementwiseAffine)
			}
		},
	}, nil
}
