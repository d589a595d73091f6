// Package solver selects and tunes kernel-backed strategies for compute problems.
// Each solver is a stateless applicability predicate plus a solution builder; tunable
// solvers expose an enumerable performance config driven by GenericSearch.
package solver

import (
	"context"
	"fmt"

	"github.com/fxnlabs/kernel-cache/internal/config"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/logger"
	"github.com/fxnlabs/kernel-cache/internal/target"
	"go.uber.org/zap"
)

// ExecutionContext carries what solvers may consult besides the problem itself.
type ExecutionContext struct {
	Handle  kernel.Handle
	Solvers config.Solvers
	Tuning  config.Tuning
	Logger  *zap.Logger
}

// NewExecutionContext binds a handle to the solver and tuning settings.
func NewExecutionContext(h kernel.Handle, cfg *config.Config, log *zap.Logger) *ExecutionContext {
	return &ExecutionContext{
		Handle:  h,
		Solvers: cfg.Solvers,
		Tuning:  cfg.Tuning,
		Logger:  logger.OrNop(log).Named("solver"),
	}
}

// Target is the device identity of the handle.
func (ec *ExecutionContext) Target() target.Properties {
	return ec.Handle.Target()
}

// IsDisabled reports an explicit disable of the solver with debug id id.
func (ec *ExecutionContext) IsDisabled(id string) bool {
	v, ok := ec.Solvers.Overrides[id]
	return ok && !v
}

// IsEnabled reports an explicit enable of the solver with debug id id.
func (ec *ExecutionContext) IsEnabled(id string) bool {
	v, ok := ec.Solvers.Overrides[id]
	return ok && v
}

// Deterministic reports whether solvers with run-to-run variance must step aside.
func (ec *ExecutionContext) Deterministic() bool {
	return ec.Solvers.Deterministic
}

// Reject logs why a solver declined a problem. It always returns false so predicates
// can `return ec.Reject(...)`.
func (ec *ExecutionContext) Reject(s Solver, reason string, fields ...zap.Field) bool {
	if ec.Logger != nil {
		ec.Logger.Debug("solver not applicable",
			append([]zap.Field{zap.String("solver", s.ID()), zap.String("reason", reason)}, fields...)...)
	}
	return false
}

// Problem is anything a solver can be asked about. Key identifies the problem in the
// performance database and in kernel network configs.
type Problem interface {
	Key() string
}

// PerformanceConfig is a point in a solver's tunable space.
type PerformanceConfig interface {
	// HeuristicInit populates the candidate list for p and selects the first one.
	HeuristicInit(p Problem)
	// SetNextValue advances to the next candidate. A config that was never seeded is
	// seeded and reports true. It reports false once the candidates are exhausted.
	SetNextValue(p Problem) bool
	// IsValidValue reports whether the current index is inside the candidate list.
	IsValidValue() bool
	// IsValid re-checks the current selection against p, which may differ from the
	// problem the config was seeded with.
	IsValid(p Problem) bool
	// Equal compares by selected candidate only.
	Equal(other PerformanceConfig) bool
	Clone() PerformanceConfig
	// String is the serialized form stored in the performance database.
	String() string
}

// Solver is the capability every strategy implements.
type Solver interface {
	// ID is the debug id used by overrides and the KCACHE_DEBUG_<ID> environment toggles.
	ID() string
	IsApplicable(ec *ExecutionContext, p Problem) bool
	// IsTunable reports whether GetDefaultConfig, Search and ParseConfig are meaningful.
	IsTunable() bool
	GetDefaultConfig(ec *ExecutionContext, p Problem) (PerformanceConfig, error)
	Search(ctx context.Context, ec *ExecutionContext, p Problem, params kernel.InvokeParams) (PerformanceConfig, error)
	ParseConfig(p Problem, s string) (PerformanceConfig, error)
	// GetSolution builds the kernels and invoker for p. cfg is nil for non-tunable solvers.
	GetSolution(ec *ExecutionContext, p Problem, cfg PerformanceConfig) (kernel.Solution, error)
}

// NonTunable supplies the tuning half of Solver for solvers without a config space.
type NonTunable struct{}

func (NonTunable) IsTunable() bool { return false }

func (NonTunable) GetDefaultConfig(*ExecutionContext, Problem) (PerformanceConfig, error) {
	return nil, nil
}

func (NonTunable) Search(context.Context, *ExecutionContext, Problem, kernel.InvokeParams) (PerformanceConfig, error) {
	return nil, nil
}

func (NonTunable) ParseConfig(Problem, string) (PerformanceConfig, error) {
	return nil, fmt.Errorf("solver has no performance config")
}
