// Package kernel defines the launch contract between solvers, planners and the runtime
// handle: build options, kernel identities, launch geometry and invokers.
package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/target"
)

// KernelInfo is everything needed to build one kernel object.
type KernelInfo struct {
	ProgramFile string
	KernelName  string
	CompOptions string
	Geometry    Geometry
}

// Kernel is a compiled, launchable kernel bound to its geometry.
type Kernel interface {
	Name() string
	Geometry() Geometry
	// Invoke launches the kernel with args in the compiled parameter order.
	Invoke(args ...any) error
}

// Handle is the runtime surface kernels are built and launched through.
type Handle interface {
	Target() target.Properties
	// GetKernels returns the kernels previously added under (algorithm, networkConfig).
	GetKernels(algorithm, networkConfig string) []Kernel
	// AddKernel builds (or loads from cache) the program and registers the kernel.
	AddKernel(ctx context.Context, algorithm, networkConfig string, info KernelInfo) (Kernel, error)
	Copy(src, dst gpu.DevicePtr, bytes int) error
	IsProfilingEnabled() bool
	ResetKernelTime()
	AccumKernelTime(d time.Duration)
	GetKernelTime() time.Duration
}

// InvokeParams carries the live device pointers of one call. Each operation defines its
// own concrete params type.
type InvokeParams any

// Invoker performs the launches of a solution.
type Invoker func(h Handle, params InvokeParams) error

// InvokerFactory binds built kernels into an Invoker.
type InvokerFactory func(kernels []Kernel) Invoker

// Solution is what a solver produces for a problem.
type Solution struct {
	Solver             string
	ConstructionParams []KernelInfo
	InvokerFactory     InvokerFactory
	Workspace          int
}

// PrepareInvoker builds the solution's kernels (reusing ones already registered under
// the same identity) and returns a bound invoker.
func PrepareInvoker(ctx context.Context, h Handle, algorithm, networkConfig string, sol Solution) (Invoker, error) {
	if sol.InvokerFactory == nil {
		return nil, fmt.Errorf("solution %s has no invoker factory", sol.Solver)
	}

	// Registered kernels are matched by name and geometry, so a build that failed
	// partway leaves reusable entries and only the missing kernels are added.
	registered := h.GetKernels(algorithm, networkConfig)
	used := make([]bool, len(registered))
	kernels := make([]Kernel, 0, len(sol.ConstructionParams))
	for _, info := range sol.ConstructionParams {
		if i := findKernel(registered, used, info); i >= 0 {
			used[i] = true
			kernels = append(kernels, registered[i])
			continue
		}
		k, err := h.AddKernel(ctx, algorithm, networkConfig, info)
		if err != nil {
			return nil, fmt.Errorf("build %s/%s: %w", info.ProgramFile, info.KernelName, err)
		}
		kernels = append(kernels, k)
	}
	return sol.InvokerFactory(kernels), nil
}

func findKernel(registered []Kernel, used []bool, info KernelInfo) int {
	for i, k := range registered {
		if !used[i] && k.Name() == info.KernelName && k.Geometry().Equal(info.Geometry) {
			return i
		}
	}
	return -1
}

// CastParams asserts the concrete params type of an invoker call.
func CastParams[T any](params InvokeParams) (T, error) {
	p, ok := params.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected invoke params %T, want %T", params, zero)
	}
	return p, nil
}
