package tensorop

import (
	"context"
	"fmt"

	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/kcerr"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/tensor"
)

const (
	scalarProgram    = "SubTensorOpWithScalarKernel.cl"
	subTensorProgram = "SubTensorOpWithSubTensorKernel.cl"
)

// FlattenDescriptor merges dimensions that are contiguous in memory. Packed tensors
// become one dimension; length-1 dimensions are dropped; a scalar becomes [1].
func FlattenDescriptor(d tensor.Descriptor) (lengths, strides []int) {
	if d.IsPacked() {
		return []int{d.ElementSize()}, []int{1}
	}

	var lens, strs []int
	for i := 0; i < d.Rank(); i++ {
		if d.Length(i) > 1 {
			lens = append(lens, d.Length(i))
			strs = append(strs, d.Stride(i))
		}
	}
	if len(lens) == 0 {
		return []int{1}, []int{1}
	}

	merged := lens[0]
	for i := 1; i < len(lens); i++ {
		// A dimension folds into its outer neighbour when the outer stride spans it exactly.
		if strs[i] != 0 && strs[i-1] == lens[i]*strs[i] {
			merged *= lens[i]
			continue
		}
		lengths = append(lengths, merged)
		strides = append(strides, strs[i-1])
		merged = lens[i]
	}
	lengths = append(lengths, merged)
	strides = append(strides, strs[len(strs)-1])
	return lengths, strides
}

func typeParams(params *kernel.BuildParameters, dt tensor.DataType) *kernel.BuildParameters {
	switch dt {
	case tensor.Half, tensor.Float:
		return params.Define("KC_USE_FP16", dt == tensor.Half).Define("KC_USE_FP32", dt == tensor.Float)
	}
	return params.Define("KC_USE_"+dt.Define(), 1)
}

func checkRank(op string, rank int) error {
	if rank == 0 {
		return kcerr.BadParameter(op, "tensor has no dimensions")
	}
	if rank > tensor.MaxRank {
		return kcerr.Dimension(op, rank)
	}
	return nil
}

// subTensorKernel returns the kernel registered for (name, netcfg) or builds it with
// work lengths sized for lengths.
func subTensorKernel(ctx context.Context, h kernel.Handle, name, netcfg, program string, params *kernel.BuildParameters, lengths []int) (kernel.Kernel, error) {
	if kernels := h.GetKernels(name, netcfg); len(kernels) > 0 {
		return kernels[0], nil
	}

	workers := kernel.WorkerSizes(lengths)
	global := 1
	for i, w := range workers {
		params.Define(fmt.Sprintf("WORK_LENGTH_%d", i), w)
		global *= w
	}
	return h.AddKernel(ctx, name, netcfg, kernel.KernelInfo{
		ProgramFile: program,
		KernelName:  name,
		CompOptions: params.Generate(kernel.HIP),
		Geometry:    kernel.Linear(min(kernel.LocalSize, global), global),
	})
}

func scalarOp(ctx context.Context, h kernel.Handle, op, kind, define string, y tensor.Descriptor, ptr gpu.DevicePtr, alpha float32, offset int, lengths, strides []int) error {
	if ptr == 0 {
		return kcerr.BadParameter(op, "null tensor pointer")
	}
	if err := checkRank(op, len(lengths)); err != nil {
		return err
	}

	dt := y.Type()
	name := fmt.Sprintf("SubTensorOpWithScalar%dd", len(lengths))
	netcfg := kernel.NewNetworkConfig(kind).Add("type", dt).Ints("lens", lengths).String()
	params := kernel.NewBuildParameters().Define("SUBTENSOR_OP_WITH_SCALAR", define)
	k, err := subTensorKernel(ctx, h, name, netcfg, scalarProgram, typeParams(params, dt), lengths)
	if err != nil {
		return err
	}

	args := []any{ptr, dt.Scalar(alpha), int32(offset)}
	args = append(args, ints(strides)...)
	args = append(args, ints(lengths)...)
	return k.Invoke(args...)
}

// SetTensor fills every element of y with alpha. The descriptor is flattened first so
// padded layouts launch with as few dimensions as possible.
func SetTensor(ctx context.Context, h kernel.Handle, y tensor.Descriptor, ptr gpu.DevicePtr, alpha float32, offset int) error {
	if err := checkRank("SetTensor", y.Rank()); err != nil {
		return err
	}
	lengths, strides := FlattenDescriptor(y)
	return scalarOp(ctx, h, "SetTensor", "set", "SUBTENSOR_OP_WITH_SCALAR_SET", y, ptr, alpha, offset, lengths, strides)
}

// ScaleTensor multiplies every element of y by alpha.
func ScaleTensor(ctx context.Context, h kernel.Handle, y tensor.Descriptor, ptr gpu.DevicePtr, alpha float32, offset int) error {
	return scalarOp(ctx, h, "ScaleTensor", "scale", "SUBTENSOR_OP_WITH_SCALAR_MULTIPLY", y, ptr, alpha, offset, y.Lengths(), y.Strides())
}

// CopyTensor copies src into dst. Identical packed descriptors without offsets become
// a plain device copy; everything else runs the strided copy kernel.
func CopyTensor(ctx context.Context, h kernel.Handle, src tensor.Descriptor, srcPtr gpu.DevicePtr, dst tensor.Descriptor, dstPtr gpu.DevicePtr, srcOffset, dstOffset int) error {
	const op = "CopyTensor"
	if srcPtr == 0 || dstPtr == 0 {
		return kcerr.BadParameter(op, "null pointer for tensor")
	}
	if src.ElementSize() != dst.ElementSize() {
		return kcerr.BadParameter(op, "tensor data sizes do not match")
	}
	if src.Type() != dst.Type() {
		return kcerr.BadParameter(op, "tensor types do not match")
	}
	if src.Rank() != dst.Rank() {
		return kcerr.BadParameter(op, "tensor dimension lengths do not match")
	}
	if err := checkRank(op, src.Rank()); err != nil {
		return err
	}

	if srcOffset == 0 && dstOffset == 0 && src.Equal(dst) && src.IsPacked() && dst.IsPacked() {
		return h.Copy(srcPtr, dstPtr, src.ElementSize()*src.Type().Size())
	}

	lengths := src.Lengths()
	name := fmt.Sprintf("SubTensorOpWithSubTensor%dd", len(lengths))
	netcfg := kernel.NewNetworkConfig("copy").Add("type", src.Type()).Ints("lens", lengths).String()
	params := kernel.NewBuildParameters().Define("SUBTENSOR_OP_WITH_SUBTENSOR", "SUBTENSOR_OP_WITH_SUBTENSOR_COPY")
	k, err := subTensorKernel(ctx, h, name, netcfg, subTensorProgram, typeParams(params, src.Type()), lengths)
	if err != nil {
		return err
	}

	args := []any{srcPtr, int32(srcOffset)}
	args = append(args, ints(src.Strides())...)
	args = append(args, ints(lengths)...)
	args = append(args, dstPtr, int32(dstOffset))
	args = append(args, ints(dst.Strides())...)
	return k.Invoke(args...)
}
