// Package conv holds convolution problem descriptions and the convolution solvers.
package conv

import (
	"fmt"

	"github.com/fxnlabs/kernel-cache/internal/backend"
	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/tensor"
)

// Direction is the pass a convolution computes.
type Direction int

const (
	Forward Direction = iota
	BackwardData
	BackwardWeights
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "fwd"
	case BackwardData:
		return "bwd"
	case BackwardWeights:
		return "wrw"
	}
	return fmt.Sprintf("dir(%d)", int(d))
}

// Problem is a grouped convolution. Descriptor lengths are logical: In and Out are
// {N, C, D, H, W} (or {N, C, H, W}) and Weights is {K, C/G, Z, Y, X}; the layout tag
// names the memory order. Spatial parameters are in D, H, W order (H, W for 2-D).
type Problem struct {
	Direction Direction
	In        tensor.Descriptor
	Weights   tensor.Descriptor
	Out       tensor.Descriptor
	Groups    int
	Pads      []int
	Strides   []int
	Dilations []int
}

// Is3d reports a volumetric convolution.
func (p *Problem) Is3d() bool {
	return p.In.Rank() == 5 && p.Weights.Rank() == 5 && p.Out.Rank() == 5
}

// IsLayoutNHWC reports channels-last memory order on every operand.
func (p *Problem) IsLayoutNHWC() bool {
	want := "NHWC"
	if p.Is3d() {
		want = "NDHWC"
	}
	return p.In.Layout() == want && p.Weights.Layout() == want && p.Out.Layout() == want
}

// IsSameType reports identical element types on all operands.
func (p *Problem) IsSameType() bool {
	return p.In.Type() == p.Weights.Type() && p.Weights.Type() == p.Out.Type()
}

// Key encodes every parameter of the problem.
func (p *Problem) Key() string {
	return kernel.NewNetworkConfig("conv").
		Add("dir", p.Direction).
		Add("type", p.In.Type()).
		Add("g", p.Groups).
		Ints("in", p.In.Lengths()).Add("in_layout", p.In.Layout()).
		Ints("wei", p.Weights.Lengths()).Add("wei_layout", p.Weights.Layout()).
		Ints("out", p.Out.Lengths()).Add("out_layout", p.Out.Layout()).
		Ints("pad", p.Pads).
		Ints("stride", p.Strides).
		Ints("dilation", p.Dilations).
		String()
}

func param(v []int, i, def int) int {
	if i < len(v) && v[i] > 0 {
		return v[i]
	}
	return def
}

// CKArgs converts a 3-D problem into the grouped layout of the backend library: tensors
// as {G, N, C, D, H, W} with NDHWGC strides.
func CKArgs(p *Problem) backend.ConvArgs {
	g := max(p.Groups, 1)
	in, wei, out := p.In.Lengths(), p.Weights.Lengths(), p.Out.Lengths()
	n := in[0]
	c := in[1] / g
	k := out[1] / g
	di, hi, wi := in[2], in[3], in[4]
	do, ho, wo := out[2], out[3], out[4]
	z, y, x := wei[2], wei[3], wei[4]

	var a backend.ConvArgs
	a.Input = [6]int{g, n, c, di, hi, wi}
	a.Output = [6]int{g, n, k, do, ho, wo}
	a.Weight = [6]int{g, k, c, z, y, x}
	a.InStrides = [6]int{c, di * hi * wi * g * c, 1, hi * wi * g * c, wi * g * c, g * c}
	a.OutStrides = [6]int{k, do * ho * wo * g * k, 1, ho * wo * g * k, wo * g * k, g * k}
	a.WeiStrides = [6]int{c, z * y * x * g * c, 1, y * x * g * c, x * g * c, g * c}

	inSize := [3]int{di, hi, wi}
	outSize := [3]int{do, ho, wo}
	filter := [3]int{z, y, x}
	for d := 0; d < 3; d++ {
		stride := param(p.Strides, d, 1)
		dilation := param(p.Dilations, d, 1)
		pad := 0
		if d < len(p.Pads) {
			pad = p.Pads[d]
		}
		// A single output position makes the stride irrelevant; a unit filter makes the
		// dilation irrelevant.
		if outSize[d] == 1 {
			stride = 1
		}
		if filter[d] == 1 {
			dilation = 1
		}
		a.Strides[d] = stride
		a.Dilation[d] = dilation
		a.LPadding[d] = pad
		a.RPadding[d] = max(0, (outSize[d]-1)*stride+(filter[d]-1)*dilation+1-inSize[d]-pad)
	}
	return a
}

// InvokeParams are the live buffers of one convolution call.
type InvokeParams struct {
	In, Weights, Out gpu.DevicePtr
}
