package tensorop

import (
	"context"

	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/kcerr"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/metrics"
	"github.com/fxnlabs/kernel-cache/internal/target"
)

// Buffers are the live device pointers and element offsets of one OpTensor call.
type Buffers struct {
	A, B, C                   gpu.DevicePtr
	AOffset, BOffset, COffset int
}

func ints(v []int) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = int32(x)
	}
	return out
}

// Args returns the kernel argument list in the parameter order of pl.Kernel.
func (pl Plan) Args(buf Buffers) []any {
	p := pl.problem
	rank := p.C.Rank()
	blens, clens := p.B.Lengths(), p.C.Lengths()
	as, bs, cs := p.A.Strides(), p.B.Strides(), p.C.Strides()
	dt := p.B.Type()
	alpha0, alpha1, beta := dt.Scalar(p.Alpha0), dt.Scalar(p.Alpha1), dt.Scalar(p.Beta)
	offsets := []any{int64(buf.AOffset), int64(buf.BOffset), int64(buf.COffset)}
	work := int32(pl.Broadcast.WorkPerWG)
	numWG := int32(pl.NumWGOrig)

	var args []any
	push := func(v ...any) { args = append(args, v...) }

	switch pl.Strategy {
	case FwdBias:
		if pl.Packed {
			push(buf.A, buf.B, int32(blens[1]), buf.C, int32(clens[0]), int32(cs[0]), int32(cs[1]), work, alpha0, alpha1, beta)
		} else {
			push(buf.A, int32(as[0]), int32(as[1]), int32(as[2]),
				buf.B, int32(blens[1]), int32(bs[1]),
				buf.C, int32(clens[0]), int32(clens[3]), int32(cs[0]), int32(cs[1]), int32(cs[2]),
				alpha0, alpha1, beta, work)
		}
		push(offsets...)
		push(numWG)

	case Lite:
		push(buf.A, buf.B, buf.C, alpha0, alpha1, beta)
		push(offsets...)

	case LeadingOnes:
		if pl.Packed {
			push(buf.A, buf.B, buf.C)
			push(ints(clens[1:])...)
			push(ints(cs[:rank-2])...)
			push(work, alpha0, alpha1, beta)
		} else {
			push(buf.A)
			push(ints(as[:rank-1])...)
			push(buf.B)
			push(ints(bs[:rank-1])...)
			push(buf.C)
			push(ints(clens[1:])...)
			push(ints(cs[:rank-1])...)
			push(alpha0, alpha1, beta, work)
		}
		push(offsets...)
		push(numWG)

	case Generic:
		if rank == 1 {
			push(buf.A, buf.B, int32(blens[0]), buf.C, int32(clens[0]))
		} else {
			push(buf.A)
			push(ints(as[:rank-1])...)
			push(buf.B)
			push(ints(blens[1:])...)
			push(ints(bs[:rank-1])...)
			push(buf.C)
			push(ints(clens[1:])...)
			push(ints(cs[:rank-1])...)
		}
		push(alpha0, alpha1, beta, pl.Broadcast.Bitmap, work)
		push(offsets...)
		push(numWG)
	}
	return args
}

// Solution wraps the plan in the generic solution form so it goes through the same
// invoker preparation as solver output.
func (pl Plan) Solution() kernel.Solution {
	return kernel.Solution{
		Solver:             "OpTensor/" + pl.Strategy.String(),
		ConstructionParams: []kernel.KernelInfo{pl.KernelInfo()},
		InvokerFactory: func(kernels []kernel.Kernel) kernel.Invoker {
			k := kernels[0]
			return func(_ kernel.Handle, raw kernel.InvokeParams) error {
				buf, err := kernel.CastParams[Buffers](raw)
				if err != nil {
					return err
				}
				return k.Invoke(pl.Args(buf)...)
			}
		},
	}
}

// CacheKey is the identity of the compiled variant selected for p on t.
func CacheKey(t target.Properties, p Problem) (string, error) {
	pl, err := NewPlan(p)
	if err != nil {
		return "", err
	}
	return t.DbID() + "/" + pl.Kernel + "/" + pl.NetworkConfig, nil
}

// OpTensor computes C = op(alpha0*A, alpha1*B) + beta*C on h. All validation happens
// before any kernel is built or launched.
func OpTensor(ctx context.Context, h kernel.Handle, p Problem, buf Buffers) error {
	if buf.A == 0 || buf.B == 0 || buf.C == 0 {
		return kcerr.BadParameter("OpTensor", "null tensor pointer")
	}
	pl, err := NewPlan(p)
	if err != nil {
		return err
	}
	metrics.TensorOpStrategy.WithLabelValues(pl.Strategy.String()).Inc()

	invoke, err := kernel.PrepareInvoker(ctx, h, pl.Kernel, pl.NetworkConfig, pl.Solution())
	if err != nil {
		return err
	}
	return invoke(h, buf)
}
