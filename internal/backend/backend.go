// Package backend models the specialized kernel library the implicit-GEMM solvers
// delegate to: an enumeration of prebuilt instances, each able to say whether it
// supports an exact convolution argument and to run it.
package backend

import (
	"time"

	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/tensor"
)

// ConvArgs is the grouped-convolution argument in the library's layout: tensors as
// {G, N, C, D, H, W} (weights {G, K, C, Z, Y, X}) with matching strides, plus the
// per spatial dimension convolution parameters in D, H, W order.
type ConvArgs struct {
	Input      [6]int
	InStrides  [6]int
	Weight     [6]int
	WeiStrides [6]int
	Output     [6]int
	OutStrides [6]int
	Strides    [3]int
	Dilation   [3]int
	LPadding   [3]int
	RPadding   [3]int
}

// Argument binds device pointers to a ConvArgs. Pointers are zero while probing
// applicability.
type Argument struct {
	In, Wei, Out gpu.DevicePtr
	ConvArgs
}

// Invoker runs an argument and reports the device time it took.
type Invoker interface {
	Run(arg *Argument, profiling bool) (time.Duration, error)
}

// Instance is one prebuilt kernel of the library.
type Instance interface {
	// TypeString uniquely names the instance; tuning results store it.
	TypeString() string
	MakeArgument(in, wei, out gpu.DevicePtr, args ConvArgs) *Argument
	IsSupportedArgument(arg *Argument) bool
	MakeInvoker() Invoker
}

// Library enumerates instances for a data type. Types the library does not cover
// yield no instances.
type Library interface {
	GetInstances(dt tensor.DataType) []Instance
}

// Find returns the instance named id.
func Find(lib Library, dt tensor.DataType, id string) (Instance, bool) {
	for _, inst := range lib.GetInstances(dt) {
		if inst.TypeString() == id {
			return inst, true
		}
	}
	return nil, false
}
