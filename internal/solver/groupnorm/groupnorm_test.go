package groupnorm

import (
	"context"
	"testing"

	"github.com/fxnlabs/kernel-cache/internal/cache"
	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/handle"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/solver"
	"github.com/fxnlabs/kernel-cache/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProblem(dt tensor.DataType, n, c, groups int, spatial ...int) *Problem {
	x := append([]int{n, c}, spatial...)
	return &Problem{
		X:         tensor.New(dt, x...),
		Y:         tensor.New(dt, x...),
		Weight:    tensor.New(dt, c),
		Bias:      tensor.New(dt, c),
		Mean:      tensor.New(dt, n, groups),
		Rstd:      tensor.New(dt, n, groups),
		NumGroups: groups,
		Epsilon:   1e-5,
	}
}

func newContext(t *testing.T) (*solver.ExecutionContext, *gpu.SimDevice, *handle.Handle) {
	t.Helper()
	dev := gpu.NewSimDevice(nil, gpu.SimConfig{})
	require.NoError(t, dev.Initialize())
	h := handle.New(dev, gpu.NewSimCompiler(t.TempDir()), cache.NewFileCache(cache.Paths{User: t.TempDir()}, nil), nil)
	return &solver.ExecutionContext{Handle: h}, dev, h
}

func TestIsApplicable(t *testing.T) {
	ec, _, _ := newContext(t)
	f := Forward{}

	tests := []struct {
		name   string
		mutate func(*Problem)
		want   bool
	}{
		{"applicable", func(*Problem) {}, true},
		{"mixed types", func(p *Problem) { p.Y = tensor.New(tensor.Half, 2, 8, 4, 4) }, false},
		{"length mismatch", func(p *Problem) { p.Y = tensor.New(tensor.Float, 2, 8, 4, 5) }, false},
		{"strided x", func(p *Problem) {
			x, err := tensor.NewStrided(tensor.Float, []int{2, 8, 4, 4}, []int{256, 32, 8, 1})
			require.NoError(t, err)
			p.X = x
		}, false},
		{"channels not divisible", func(p *Problem) { p.NumGroups = 3 }, false},
		{"wrong mean shape", func(p *Problem) { p.Mean = tensor.New(tensor.Float, 2, 2) }, false},
		{"zero groups", func(p *Problem) { p.NumGroups = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProblem(tensor.Float, 2, 8, 4, 4, 4)
			tt.mutate(p)
			assert.Equal(t, tt.want, f.IsApplicable(ec, p))
		})
	}

	t.Run("double fits local memory", func(t *testing.T) {
		assert.True(t, f.IsApplicable(ec, newProblem(tensor.Double, 1, 4, 2, 16)))
	})

	t.Run("disabled", func(t *testing.T) {
		disabled := *ec
		disabled.Solvers.Overrides = map[string]bool{ForwardID: false}
		assert.False(t, f.IsApplicable(&disabled, newProblem(tensor.Float, 2, 8, 4, 4, 4)))
	})

	assert.False(t, f.IsTunable())
}

func TestGetSolution(t *testing.T) {
	ec, dev, h := newContext(t)
	f := Forward{}
	p := newProblem(tensor.Half, 2, 8, 4, 4, 4)

	sol, err := f.GetSolution(ec, p, nil)
	require.NoError(t, err)
	require.Len(t, sol.ConstructionParams, 1)
	info := sol.ConstructionParams[0]
	assert.Equal(t, "GroupNormFwdContiguous", info.KernelName)
	assert.Equal(t, "-DKC_USE_FP16=1 -DKC_USE_FP32=0 -DKC_USE_FP64=0 -DKC_USE_BFP16=0 -DLOCAL_SIZE=256", info.CompOptions)
	assert.Equal(t, []int{256, 1, 1}, info.Geometry.Local)
	assert.Equal(t, []int{2 * 4 * 256, 1, 1}, info.Geometry.Global)

	invoke, err := kernel.PrepareInvoker(context.Background(), h, f.ID(), p.Key(), sol)
	require.NoError(t, err)
	require.NoError(t, invoke(h, InvokeParams{
		XDesc: p.X, X: 1, Y: 2, Weight: 3, Bias: 4, Mean: 5, Rstd: 6,
		Epsilon: 1e-5, NumGroups: 4, Mode: WeightBias,
	}))

	launches := dev.Launches()
	require.Len(t, launches, 1)
	assert.Equal(t, []any{
		gpu.DevicePtr(1), gpu.DevicePtr(2), gpu.DevicePtr(3), gpu.DevicePtr(4), gpu.DevicePtr(5), gpu.DevicePtr(6),
		float32(1e-5), uint64(4), uint64(8), uint64(16), true,
	}, launches[0].Args)

	_, err = f.GetSolution(ec, nil, nil)
	assert.Error(t, err)
}

func TestProblemKey(t *testing.T) {
	a := newProblem(tensor.Float, 2, 8, 4, 4, 4)
	b := newProblem(tensor.Float, 2, 8, 2, 4, 4)
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), newProblem(tensor.Float, 2, 8, 4, 4, 4).Key())
}
