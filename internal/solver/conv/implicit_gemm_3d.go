package conv

import (
	"context"
	"fmt"
	"slices"

	"github.com/fxnlabs/kernel-cache/internal/backend"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/solver"
	"go.uber.org/zap"
)

// ImplicitGemm3DGroupFwdID is the debug id of ImplicitGemm3DGroupFwd.
const ImplicitGemm3DGroupFwdID = "CONV_IMPLICIT_GEMM_3D_GROUP_FWD"

// supportedArchs lists the targets the grouped xdlops instances are built for.
var supportedArchs = []string{"gfx908", "gfx90a"}

// PerfConfig selects one backend instance by its type string.
type PerfConfig struct {
	lib backend.Library

	ValidKernels []string
	Index        int
	KernelID     string
}

func toProblem(p solver.Problem) (*Problem, bool) {
	cp, ok := p.(*Problem)
	return cp, ok && cp != nil
}

// HeuristicInit collects every instance supporting p's exact argument and selects
// the first.
func (c *PerfConfig) HeuristicInit(p solver.Problem) {
	c.ValidKernels = nil
	c.Index = 0
	c.KernelID = ""
	cp, ok := toProblem(p)
	if !ok || !cp.Is3d() {
		return
	}

	args := CKArgs(cp)
	for _, inst := range c.lib.GetInstances(cp.In.Type()) {
		if inst.IsSupportedArgument(inst.MakeArgument(0, 0, 0, args)) {
			c.ValidKernels = append(c.ValidKernels, inst.TypeString())
		}
	}
	if len(c.ValidKernels) > 0 {
		c.KernelID = c.ValidKernels[0]
	}
}

func (c *PerfConfig) SetNextValue(p solver.Problem) bool {
	if len(c.ValidKernels) == 0 {
		c.HeuristicInit(p)
		return len(c.ValidKernels) > 0
	}
	if c.Index+1 < len(c.ValidKernels) {
		c.Index++
		c.KernelID = c.ValidKernels[c.Index]
		return true
	}
	// Step past the end so IsValidValue reports exhaustion; KernelID keeps the last pick.
	c.Index = len(c.ValidKernels)
	return false
}

func (c *PerfConfig) IsValidValue() bool {
	return c.Index >= 0 && c.Index < len(c.ValidKernels)
}

// IsValid re-checks KernelID against p.
func (c *PerfConfig) IsValid(p solver.Problem) bool {
	cp, ok := toProblem(p)
	if !ok || !cp.Is3d() || c.KernelID == "" {
		return false
	}
	inst, ok := backend.Find(c.lib, cp.In.Type(), c.KernelID)
	if !ok {
		return false
	}
	return inst.IsSupportedArgument(inst.MakeArgument(0, 0, 0, CKArgs(cp)))
}

func (c *PerfConfig) Equal(other solver.PerformanceConfig) bool {
	o, ok := other.(*PerfConfig)
	return ok && o.KernelID == c.KernelID
}

func (c *PerfConfig) Clone() solver.PerformanceConfig {
	out := *c
	out.ValidKernels = slices.Clone(c.ValidKernels)
	return &out
}

func (c *PerfConfig) String() string { return c.KernelID }

// ImplicitGemm3DGroupFwd runs grouped 3-D forward convolutions through the backend
// library's xdlops instances.
type ImplicitGemm3DGroupFwd struct {
	lib backend.Library
}

// NewImplicitGemm3DGroupFwd creates the solver over lib.
func NewImplicitGemm3DGroupFwd(lib backend.Library) *ImplicitGemm3DGroupFwd {
	return &ImplicitGemm3DGroupFwd{lib: lib}
}

func (s *ImplicitGemm3DGroupFwd) ID() string      { return ImplicitGemm3DGroupFwdID }
func (s *ImplicitGemm3DGroupFwd) IsTunable() bool { return true }

func (s *ImplicitGemm3DGroupFwd) IsApplicable(ec *solver.ExecutionContext, p solver.Problem) bool {
	cp, ok := toProblem(p)
	if !ok {
		return false
	}
	if ec.IsDisabled(s.ID()) {
		return ec.Reject(s, "disabled")
	}
	if ec.Deterministic() {
		return ec.Reject(s, "deterministic mode")
	}
	if !cp.IsSameType() {
		return ec.Reject(s, "mixed data types")
	}
	if cp.Direction != Forward {
		return ec.Reject(s, "not forward", zap.Stringer("direction", cp.Direction))
	}
	if !cp.Is3d() {
		return ec.Reject(s, "not 3-D")
	}
	if !cp.IsLayoutNHWC() {
		return ec.Reject(s, "layout", zap.String("layout", cp.In.Layout()))
	}
	if arch := ec.Target().Name(); !slices.Contains(supportedArchs, arch) {
		return ec.Reject(s, "unsupported arch", zap.String("arch", arch))
	}
	return s.checkBackend(ec, cp)
}

// checkBackend accepts on the first instance supporting the problem.
func (s *ImplicitGemm3DGroupFwd) checkBackend(ec *solver.ExecutionContext, cp *Problem) bool {
	args := CKArgs(cp)
	for _, stride := range args.Strides {
		if stride != 1 {
			return ec.Reject(s, "strided convolution")
		}
	}
	for _, inst := range s.lib.GetInstances(cp.In.Type()) {
		if inst.IsSupportedArgument(inst.MakeArgument(0, 0, 0, args)) {
			return true
		}
	}
	return ec.Reject(s, "no supported backend instance", zap.Stringer("type", cp.In.Type()))
}

func (s *ImplicitGemm3DGroupFwd) newConfig() *PerfConfig {
	return &PerfConfig{lib: s.lib}
}

func (s *ImplicitGemm3DGroupFwd) GetDefaultConfig(_ *solver.ExecutionContext, p solver.Problem) (solver.PerformanceConfig, error) {
	cfg := s.newConfig()
	cfg.HeuristicInit(p)
	return cfg, nil
}

func (s *ImplicitGemm3DGroupFwd) Search(ctx context.Context, ec *solver.ExecutionContext, p solver.Problem, params kernel.InvokeParams) (solver.PerformanceConfig, error) {
	res, err := solver.GenericSearch(ctx, ec, s, p, params)
	if err != nil {
		return nil, err
	}
	return res.Best, nil
}

// ParseConfig restores a stored kernel id, positioned within the candidates of p.
func (s *ImplicitGemm3DGroupFwd) ParseConfig(p solver.Problem, id string) (solver.PerformanceConfig, error) {
	cfg := s.newConfig()
	cfg.HeuristicInit(p)
	i := slices.Index(cfg.ValidKernels, id)
	if i < 0 {
		return nil, fmt.Errorf("kernel %q is not a candidate", id)
	}
	cfg.Index, cfg.KernelID = i, id
	return cfg, nil
}

// GetSolution returns a solution without compiled kernels: the backend instance is
// prebuilt and launched directly.
func (s *ImplicitGemm3DGroupFwd) GetSolution(_ *solver.ExecutionContext, p solver.Problem, cfg solver.PerformanceConfig) (kernel.Solution, error) {
	cp, ok := toProblem(p)
	if !ok {
		return kernel.Solution{}, fmt.Errorf("unexpected problem %T", p)
	}
	pc, ok := cfg.(*PerfConfig)
	if !ok || pc.KernelID == "" {
		return kernel.Solution{}, fmt.Errorf("unexpected performance config %v", cfg)
	}
	inst, ok := backend.Find(s.lib, cp.In.Type(), pc.KernelID)
	if !ok {
		return kernel.Solution{}, fmt.Errorf("backend instance %q not found", pc.KernelID)
	}
	args := CKArgs(cp)

	return kernel.Solution{
		Solver: s.ID() + "/" + pc.KernelID,
		InvokerFactory: func([]kernel.Kernel) kernel.Invoker {
			return func(h kernel.Handle, raw kernel.InvokeParams) error {
				params, err := kernel.CastParams[InvokeParams](raw)
				if err != nil {
					return err
				}
				arg := inst.MakeArgument(params.In, params.Weights, params.Out, args)
				elapsed, err := inst.MakeInvoker().Run(arg, h.IsProfilingEnabled())
				if err != nil {
					return err
				}
				if h.IsProfilingEnabled() {
					h.ResetKernelTime()
					h.AccumKernelTime(elapsed)
				}
				return nil
			}
		},
	}, nil
}
