package backend

import (
	"testing"
	"time"

	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convArgs(c, k int) ConvArgs {
	return ConvArgs{
		Input:    [6]int{1, 2, c, 4, 8, 8},
		Weight:   [6]int{1, k, c, 3, 3, 3},
		Output:   [6]int{1, 2, k, 4, 8, 8},
		Strides:  [3]int{1, 1, 1},
		Dilation: [3]int{1, 1, 1},
		LPadding: [3]int{1, 1, 1},
		RPadding: [3]int{1, 1, 1},
	}
}

func TestSyntheticInstances(t *testing.T) {
	lib := NewSynthetic(nil)

	assert.Len(t, lib.GetInstances(tensor.Float), len(DefaultTiles))
	assert.Len(t, lib.GetInstances(tensor.Half), len(DefaultTiles))
	assert.Empty(t, lib.GetInstances(tensor.Double))
	assert.Empty(t, lib.GetInstances(tensor.BFloat16))

	names := map[string]bool{}
	for _, inst := range lib.GetInstances(tensor.Float) {
		assert.False(t, names[inst.TypeString()], "duplicate %s", inst.TypeString())
		names[inst.TypeString()] = true
	}

	inst, ok := Find(lib, tensor.Float, lib.GetInstances(tensor.Float)[1].TypeString())
	require.True(t, ok)
	assert.Equal(t, lib.GetInstances(tensor.Float)[1], inst)
	_, ok = Find(lib, tensor.Float, "missing")
	assert.False(t, ok)
}

func TestIsSupportedArgument(t *testing.T) {
	lib := NewSynthetic(nil)
	supported := func(args ConvArgs) []bool {
		var out []bool
		for _, inst := range lib.GetInstances(tensor.Float) {
			out = append(out, inst.IsSupportedArgument(inst.MakeArgument(0, 0, 0, args)))
		}
		return out
	}

	// The 3x3x3 padded filter rules out the 1x1 instance; C=16 fits every vector width.
	assert.Equal(t, []bool{true, true, false, true, true}, supported(convArgs(16, 16)))
	// Only the scalar instance handles odd channel counts.
	assert.Equal(t, []bool{false, false, false, false, true}, supported(convArgs(3, 16)))

	oneByOne := convArgs(4, 4)
	oneByOne.Weight = [6]int{1, 4, 4, 1, 1, 1}
	oneByOne.LPadding, oneByOne.RPadding = [3]int{}, [3]int{}
	assert.Equal(t, []bool{false, false, true, true, true}, supported(oneByOne))

	assert.False(t, lib.GetInstances(tensor.Float)[0].IsSupportedArgument(nil))
}

func TestRun(t *testing.T) {
	dev := gpu.NewSimDevice(nil, gpu.SimConfig{})
	require.NoError(t, dev.Initialize())
	lib := NewSynthetic(dev)
	inst := lib.GetInstances(tensor.Float)[4]

	_, err := inst.MakeInvoker().Run(inst.MakeArgument(0, 0, 0, convArgs(16, 16)), true)
	assert.Error(t, err, "null pointers")
	assert.Empty(t, dev.Launches())

	elapsed, err := inst.MakeInvoker().Run(inst.MakeArgument(1, 2, 3, convArgs(16, 16)), true)
	require.NoError(t, err)
	launches := dev.Launches()
	require.Len(t, launches, 1)
	// M = 2*4*8*8 = 512 rows over 64-row tiles, K=16 fits one 32-column tile.
	assert.Equal(t, []int{8 * 64, 1, 1}, launches[0].Global)
	assert.Equal(t, gpu.DefaultCost(launches[0]), elapsed)

	elapsed, err = inst.MakeInvoker().Run(inst.MakeArgument(1, 2, 3, convArgs(16, 16)), false)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), elapsed)
}
