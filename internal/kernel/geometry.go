package kernel

import (
	"slices"
)

const (
	// LocalSize is the default work-group size.
	LocalSize = 256
	// MaxNumWG caps the number of work-groups an elementwise kernel is launched with;
	// kernels loop over the remainder.
	MaxNumWG = 4096
	// MaxWorkerSize caps the total work items of sub-tensor kernels.
	MaxWorkerSize = 65536
)

// ClampWG limits a work-group count to MaxNumWG.
func ClampWG(n int) int {
	return min(n, MaxNumWG)
}

// TwoExpCeiling returns the smallest power of two >= n. n must be positive.
func TwoExpCeiling(n int) int {
	i := 1
	for n--; n != 0; n /= 2 {
		i *= 2
	}
	return i
}

// WorkerSizes rounds each dimension up to a power of two, then shrinks the leading
// dimensions until the product fits in MaxWorkerSize.
func WorkerSizes(lengths []int) []int {
	sizes := make([]int, len(lengths))
	total := 1
	for i, l := range lengths {
		sizes[i] = TwoExpCeiling(max(l, 1))
		total *= sizes[i]
	}
	if total <= MaxWorkerSize {
		return sizes
	}
	n := total / MaxWorkerSize
	for i := 0; n > 1 && i < len(sizes); i++ {
		old := sizes[i]
		sizes[i] = (old-1)/n + 1
		n /= old / sizes[i]
	}
	return sizes
}

// Geometry is a launch shape padded to three dimensions.
type Geometry struct {
	Local  []int
	Global []int
}

// Equal compares the padded local and global sizes.
func (g Geometry) Equal(o Geometry) bool {
	return slices.Equal(g.Local, o.Local) && slices.Equal(g.Global, o.Global)
}

// Linear is the common 1-D launch.
func Linear(local, global int) Geometry {
	return Geometry{Local: []int{local, 1, 1}, Global: []int{global, 1, 1}}
}

// WorkGroups returns the number of work-groups per dimension, rounding up.
func (g Geometry) WorkGroups() []int {
	wg := make([]int, len(g.Global))
	for i := range g.Global {
		wg[i] = (g.Global[i] + g.Local[i] - 1) / g.Local[i]
	}
	return wg
}
