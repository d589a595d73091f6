package tensorop

import (
	"fmt"

	"github.com/fxnlabs/kernel-cache/internal/kernel"
)

// Program is the kernel source file of all elementwise tensor kernels.
const Program = "TensorKernels.cl"

// Strategy is the execution path chosen for a problem.
type Strategy int

const (
	FwdBias Strategy = iota
	Lite
	LeadingOnes
	Generic
)

func (s Strategy) String() string {
	switch s {
	case FwdBias:
		return "fwd-bias"
	case Lite:
		return "lite"
	case LeadingOnes:
		return "leading-ones"
	case Generic:
		return "generic"
	}
	return "unknown"
}

// Occupancy thresholds for spreading a bias add over the batch dimension: 640
// work-groups of 256 items fill the device.
const (
	fillWorkGroups = 640
	minWorkPerWG   = 256
	leadingLocal   = 64
)

func allPacked(p Problem) bool {
	return p.A.IsPacked() && p.B.IsPacked() && p.C.IsPacked()
}

// Classify picks the strategy in priority order: forward-bias, lite, leading-ones,
// generic.
func Classify(p Problem, bc Broadcast) Strategy {
	rank := p.C.Rank()
	switch {
	case bc.FwdBias(rank):
		return FwdBias
	case allPacked(p) && p.B.ElementSize() == p.C.ElementSize():
		return Lite
	case bc.LeadingOnes(rank):
		return LeadingOnes
	}
	return Generic
}

// Plan is a fully resolved launch: kernel identity, build options, geometry and the
// counts the argument list needs.
type Plan struct {
	Strategy      Strategy
	Kernel        string
	NetworkConfig string
	Options       string
	Geometry      kernel.Geometry
	Broadcast     Broadcast
	// Packed selects the dense variant of the fwd-bias and leading-ones kernels.
	Packed bool
	// NumWGOrig is the work-group count before clamping; kernels loop up to it.
	NumWGOrig int
	// IncrWG is set when a bias add was spread over the batch dimension.
	IncrWG bool

	problem Problem
}

// NewPlan validates p and resolves its launch. It does not touch the device.
func NewPlan(p Problem) (Plan, error) {
	if err := Validate(p); err != nil {
		return Plan{}, err
	}

	blens, clens := p.B.Lengths(), p.C.Lengths()
	rank := len(clens)
	bc := AnalyzeBroadcast(blens, clens)
	pl := Plan{
		Strategy:  Classify(p, bc),
		Broadcast: bc,
		Packed:    allPacked(p),
		problem:   p,
	}

	numWG, work := bc.NumWG, bc.WorkPerWG
	if pl.Strategy == FwdBias && numWG < fillWorkGroups && work > minWorkPerWG && clens[0] > 0 {
		work /= clens[0]
		numWG *= clens[0]
		pl.IncrWG = true
	}
	pl.Broadcast.NumWG, pl.Broadcast.WorkPerWG = numWG, work
	pl.NumWGOrig = numWG
	numWG = kernel.ClampWG(numWG)

	params := baseParams(p)
	netcfg := baseNetworkConfig(p, pl.Strategy)

	switch pl.Strategy {
	case FwdBias:
		pl.Kernel = "OpTensorFwdBias"
		params.Define("INCR_WG", pl.IncrWG)
		if pl.Packed {
			params.Flag("USE_FWD_BIAS")
		} else {
			pl.Kernel = "OpTensorFwdBiasGeneric"
			params.Flag("USE_FWD_BIAS_GENERIC")
		}
		pl.Geometry = kernel.Linear(kernel.LocalSize, max(numWG*kernel.LocalSize, kernel.LocalSize))
		netcfg.Add("incr_wg", pl.IncrWG)

	case Lite:
		total := p.C.ElementSize()
		rdBlock := readBlock(total)
		pl.Kernel = "OpTensorLite"
		readType := p.B.Type().CLType()
		if rdBlock > 1 {
			readType = fmt.Sprintf("%s%d", readType, rdBlock)
		}
		params.Flag("USE_TENSOR_LITE").
			Define("RD_BLCK", rdBlock).
			Define("MAP_RD", total/rdBlock).
			Define("READ_TYPE", readType).
			FlagIf(p.Beta != 0, "BETA")
		pl.Geometry = kernel.Linear(kernel.LocalSize, total/rdBlock)
		netcfg.Add("rd_blck", rdBlock)

	case LeadingOnes:
		pl.Kernel = "OpTensorLeadingOnes"
		params.Define("FIRST_NOT_ONE", bc.LastNotOne)
		if pl.Packed {
			params.Flag("USE_LEADING_ONES")
		} else {
			pl.Kernel = "OpTensorLeadingOnesGeneric"
			params.Flag("USE_LEADING_ONES_GENERIC")
		}
		local := kernel.LocalSize
		if work < leadingLocal {
			local = leadingLocal
		}
		global := numWG * local
		if bc.LastNotOne == rank-1 {
			global = numWG
		}
		pl.Geometry = kernel.Linear(local, max(global, local))
		netcfg.Add("first_not_one", bc.LastNotOne)

	case Generic:
		pl.Kernel = fmt.Sprintf("Op%ddTensorGeneric", rank)
		params.Flag(fmt.Sprintf("USE_%dD_TENSOR_GENERIC", rank))
		pl.Geometry = kernel.Linear(kernel.LocalSize, numWG*kernel.LocalSize)
	}

	netcfg.Ints("global", pl.Geometry.Global).Ints("local", pl.Geometry.Local)
	pl.Options = params.Generate(kernel.OpenCL)
	pl.NetworkConfig = netcfg.String()
	return pl, nil
}

// readBlock is the widest vector read among {4,3,2,1} dividing n.
func readBlock(n int) int {
	for _, w := range []int{4, 3, 2} {
		if n%w == 0 {
			return w
		}
	}
	return 1
}

func baseParams(p Problem) *kernel.BuildParameters {
	params := kernel.NewBuildParameters().
		Define("KC_TYPE", p.B.Type().CLType()).
		Define("MAX_NUM_WG", kernel.MaxNumWG)
	return typeParams(params, p.A.Type()).Define("KC_TENSOR_OP", p.Op)
}

// baseNetworkConfig encodes every input that can change code generation or launch
// shape, lengths and strides of all operands included.
func baseNetworkConfig(p Problem, s Strategy) *kernel.NetworkConfig {
	return kernel.NewNetworkConfig("optensor").
		Add("strategy", s).
		Add("btype", p.B.Type()).
		Add("atype", p.A.Type()).
		Add("op", p.Op).
		Add("max_num_wg", kernel.MaxNumWG).
		Add("beta_zero", p.Beta == 0).
		Add("packed", allPacked(p)).
		Ints("alens", p.A.Lengths()).Ints("astrides", p.A.Strides()).
		Ints("blens", p.B.Lengths()).Ints("bstrides", p.B.Strides()).
		Ints("clens", p.C.Lengths()).Ints("cstrides", p.C.Strides())
}

// KernelInfo is the build request of the plan.
func (pl Plan) KernelInfo() kernel.KernelInfo {
	return kernel.KernelInfo{
		ProgramFile: Program,
		KernelName:  pl.Kernel,
		CompOptions: pl.Options,
		Geometry:    pl.Geometry,
	}
}
