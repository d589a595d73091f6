package backend

import (
	"fmt"
	"time"

	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/tensor"
)

// Tile describes one synthetic instance: a work-group size, the output tile it
// computes and the vector width it needs channels to be a multiple of.
type Tile struct {
	BlockSize       int
	MPerBlock       int
	NPerBlock       int
	KPerBlock       int
	ScalarPerVector int
	// Filter1x1 instances only handle unpadded, undilated 1x1x1 filters.
	Filter1x1 bool
}

func (t Tile) name() string {
	specialization := "Default"
	if t.Filter1x1 {
		specialization = "Filter1x1Stride1Pad0"
	}
	return fmt.Sprintf("DeviceGroupedConvFwdMultipleD_Xdl_CShuffle<%d, %d, %d, %d, %s, %d>",
		t.BlockSize, t.MPerBlock, t.NPerBlock, t.KPerBlock, specialization, t.ScalarPerVector)
}

// DefaultTiles is the instance set served for every supported type.
var DefaultTiles = []Tile{
	{BlockSize: 256, MPerBlock: 256, NPerBlock: 128, KPerBlock: 32, ScalarPerVector: 8},
	{BlockSize: 256, MPerBlock: 128, NPerBlock: 256, KPerBlock: 32, ScalarPerVector: 8},
	{BlockSize: 256, MPerBlock: 128, NPerBlock: 128, KPerBlock: 32, ScalarPerVector: 4, Filter1x1: true},
	{BlockSize: 128, MPerBlock: 128, NPerBlock: 64, KPerBlock: 32, ScalarPerVector: 4},
	{BlockSize: 64, MPerBlock: 64, NPerBlock: 32, KPerBlock: 32, ScalarPerVector: 1},
}

// Synthetic is a deterministic Library. Its instances launch on a gpu.Device so
// timings come from the device cost model.
type Synthetic struct {
	device gpu.Device
	types  map[tensor.DataType][]Instance
}

// NewSynthetic builds a library serving tiles for half, float and int8, the types the
// grouped forward instances exist for. device may be nil, in which case Run only
// computes the launch size.
func NewSynthetic(device gpu.Device, tiles ...Tile) *Synthetic {
	if len(tiles) == 0 {
		tiles = DefaultTiles
	}
	s := &Synthetic{device: device, types: make(map[tensor.DataType][]Instance)}
	for _, dt := range []tensor.DataType{tensor.Half, tensor.Float, tensor.Int8} {
		for _, t := range tiles {
			s.types[dt] = append(s.types[dt], &syntheticInstance{tile: t, dtype: dt, device: device})
		}
	}
	return s
}

// GetInstances returns the instances for dt in a fixed order.
func (s *Synthetic) GetInstances(dt tensor.DataType) []Instance {
	return s.types[dt]
}

type syntheticInstance struct {
	tile   Tile
	dtype  tensor.DataType
	device gpu.Device
}

func (i *syntheticInstance) TypeString() string { return i.tile.name() }

func (i *syntheticInstance) MakeArgument(in, wei, out gpu.DevicePtr, args ConvArgs) *Argument {
	return &Argument{In: in, Wei: wei, Out: out, ConvArgs: args}
}

func (i *syntheticInstance) IsSupportedArgument(arg *Argument) bool {
	if arg == nil {
		return false
	}
	c, k := arg.Input[2], arg.Output[2]
	if c <= 0 || k <= 0 {
		return false
	}
	if c%i.tile.ScalarPerVector != 0 || k%i.tile.ScalarPerVector != 0 {
		return false
	}
	if i.tile.Filter1x1 {
		for d := 0; d < 3; d++ {
			if arg.Weight[3+d] != 1 || arg.Strides[d] != 1 || arg.LPadding[d] != 0 || arg.RPadding[d] != 0 {
				return false
			}
		}
	}
	return true
}

func (i *syntheticInstance) MakeInvoker() Invoker { return i }

// Run launches one work-group per output tile of every group.
func (i *syntheticInstance) Run(arg *Argument, profiling bool) (time.Duration, error) {
	if !i.IsSupportedArgument(arg) {
		return 0, fmt.Errorf("%s: unsupported argument", i.TypeString())
	}
	if arg.In == 0 || arg.Wei == 0 || arg.Out == 0 {
		return 0, fmt.Errorf("%s: null tensor pointer", i.TypeString())
	}

	g, n, k := arg.Output[0], arg.Output[1], arg.Output[2]
	m := n * arg.Output[3] * arg.Output[4] * arg.Output[5]
	blocks := g * ceilDiv(m, i.tile.MPerBlock) * ceilDiv(k, i.tile.NPerBlock)
	global := blocks * i.tile.BlockSize
	if i.device == nil {
		return time.Duration(global) * time.Nanosecond, nil
	}

	elapsed, err := i.device.Launch(gpu.LaunchRequest{
		Kernel: i.TypeString(),
		Local:  []int{i.tile.BlockSize, 1, 1},
		Global: []int{global, 1, 1},
		Args:   []any{arg.In, arg.Wei, arg.Out},
	})
	if err != nil {
		return 0, err
	}
	if !profiling {
		return 0, nil
	}
	return elapsed, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
