package handle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fxnlabs/kernel-cache/internal/cache"
	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandle(t *testing.T, paths cache.Paths) (*Handle, *gpu.SimDevice, *gpu.SimCompiler) {
	t.Helper()
	dev := gpu.NewSimDevice(nil, gpu.SimConfig{Arch: "gfx90a", ComputeUnits: 104})
	require.NoError(t, dev.Initialize())
	compiler := gpu.NewSimCompiler(t.TempDir())
	h := New(dev, compiler, cache.NewFileCache(paths, nil), nil, WithProfiling(true))
	return h, dev, compiler
}

func testInfo(options string) kernel.KernelInfo {
	return kernel.KernelInfo{
		ProgramFile: "TensorKernels.cl",
		KernelName:  "Op1dTensorGeneric",
		CompOptions: options,
		Geometry:    kernel.Linear(256, 1024),
	}
}

func TestAddKernel(t *testing.T) {
	ctx := context.Background()

	t.Run("compiles once per program", func(t *testing.T) {
		h, dev, compiler := newTestHandle(t, cache.Paths{User: t.TempDir()})

		k, err := h.AddKernel(ctx, "Op1dTensorGeneric", "cfg-a", testInfo(" -DKC_TYPE=float"))
		require.NoError(t, err)
		_, err = h.AddKernel(ctx, "Op1dTensorGeneric", "cfg-b", testInfo(" -DKC_TYPE=float"))
		require.NoError(t, err)
		assert.Equal(t, 1, compiler.Count())

		assert.Len(t, h.GetKernels("Op1dTensorGeneric", "cfg-a"), 1)
		assert.Empty(t, h.GetKernels("Op1dTensorGeneric", "cfg-c"))

		h.ResetKernelTime()
		require.NoError(t, k.Invoke(gpu.DevicePtr(1), int32(4)))
		assert.Equal(t, 5*time.Microsecond+1024*time.Nanosecond, h.GetKernelTime())

		launches := dev.Launches()
		require.Len(t, launches, 1)
		assert.Equal(t, "Op1dTensorGeneric", launches[0].Kernel)
		assert.Equal(t, []any{gpu.DevicePtr(1), int32(4)}, launches[0].Args)
		assert.Contains(t, string(launches[0].Binary), "options= -DKC_TYPE=float")
	})

	t.Run("binary cache survives handles", func(t *testing.T) {
		paths := cache.Paths{User: t.TempDir()}
		first, _, c1 := newTestHandle(t, paths)
		_, err := first.AddKernel(ctx, "alg", "cfg", testInfo(" -DKC_TYPE=half"))
		require.NoError(t, err)
		assert.Equal(t, 1, c1.Count())

		second, _, c2 := newTestHandle(t, paths)
		_, err = second.AddKernel(ctx, "alg", "cfg", testInfo(" -DKC_TYPE=half"))
		require.NoError(t, err)
		assert.Equal(t, 0, c2.Count(), "second handle loads from the binary cache")
	})

	t.Run("disabled cache recompiles", func(t *testing.T) {
		paths := cache.Paths{User: t.TempDir(), Disabled: true}
		first, _, _ := newTestHandle(t, paths)
		_, err := first.AddKernel(ctx, "alg", "cfg", testInfo(""))
		require.NoError(t, err)

		second, _, c2 := newTestHandle(t, paths)
		_, err = second.AddKernel(ctx, "alg", "cfg", testInfo(""))
		require.NoError(t, err)
		assert.Equal(t, 1, c2.Count())
	})

	t.Run("concurrent builds dedupe", func(t *testing.T) {
		h, _, compiler := newTestHandle(t, cache.Paths{User: t.TempDir()})
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.AddKernel(ctx, "alg", "cfg", testInfo(" -DX=1"))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, compiler.Count(), 8)
		assert.GreaterOrEqual(t, compiler.Count(), 1)
		assert.Len(t, h.GetKernels("alg", "cfg"), 8)
	})

	t.Run("compile failure propagates", func(t *testing.T) {
		h, _, _ := newTestHandle(t, cache.Paths{User: t.TempDir()})
		_, err := h.AddKernel(ctx, "alg", "cfg", kernel.KernelInfo{KernelName: "k"})
		assert.Error(t, err)
	})
}

func TestCopy(t *testing.T) {
	h, dev, _ := newTestHandle(t, cache.Paths{})
	require.NoError(t, h.Copy(1, 2, 64))
	assert.Error(t, h.Copy(0, 2, 64))
	assert.Equal(t, 1, dev.Copies())
	assert.Equal(t, "gfx90a", h.Target().Name())
}
