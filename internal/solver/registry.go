package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxnlabs/kernel-cache/internal/kcerr"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/logger"
	"github.com/fxnlabs/kernel-cache/internal/metrics"
	"go.uber.org/zap"
)

// Registry is the ordered solver table. Earlier solvers win when several apply.
type Registry struct {
	solvers []Solver
	perf    *PerfDB
	logger  *zap.Logger
}

// NewRegistry creates a registry over solvers. perf may be nil.
func NewRegistry(perf *PerfDB, log *zap.Logger, solvers ...Solver) *Registry {
	return &Registry{solvers: solvers, perf: perf, logger: logger.OrNop(log).Named("registry")}
}

// Solvers returns the registered solvers in priority order.
func (r *Registry) Solvers() []Solver {
	out := make([]Solver, len(r.solvers))
	copy(out, r.solvers)
	return out
}

// Get returns the solver with debug id id.
func (r *Registry) Get(id string) (Solver, bool) {
	for _, s := range r.solvers {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Applicable returns the solvers accepting p, in priority order.
func (r *Registry) Applicable(ec *ExecutionContext, p Problem) []Solver {
	var out []Solver
	for _, s := range r.solvers {
		ok := s.IsApplicable(ec, p)
		result := "rejected"
		if ok {
			result = "applicable"
			out = append(out, s)
		}
		metrics.SolverApplicability.WithLabelValues(s.ID(), result).Inc()
	}
	return out
}

// Found is the outcome of FindSolution.
type Found struct {
	Solver   Solver
	Config   PerformanceConfig
	Solution kernel.Solution
	// Source is where Config came from: "perfdb", "search", "default" or "" when the
	// solver is not tunable.
	Source string
}

// FindSolution picks the first applicable solver that produces a solution. Tunable
// solvers take their config from the perf db, from a search when tuning is enabled
// (storing the result), or from their default. A solver that fails is skipped.
func (r *Registry) FindSolution(ctx context.Context, ec *ExecutionContext, p Problem, params kernel.InvokeParams) (Found, error) {
	for _, s := range r.Applicable(ec, p) {
		found, err := r.solve(ctx, ec, s, p, params)
		if err != nil {
			r.logger.Debug("solver failed, trying next", zap.String("solver", s.ID()), zap.Error(err))
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Found{}, err
			}
			continue
		}
		return found, nil
	}
	return Found{}, kcerr.NoApplicableSolver(p.Key())
}

func (r *Registry) solve(ctx context.Context, ec *ExecutionContext, s Solver, p Problem, params kernel.InvokeParams) (Found, error) {
	found := Found{Solver: s}
	if s.IsTunable() {
		cfg, source, err := r.config(ctx, ec, s, p, params)
		if err != nil {
			return Found{}, err
		}
		found.Config, found.Source = cfg, source
	}

	sol, err := s.GetSolution(ec, p, found.Config)
	if err != nil {
		return Found{}, fmt.Errorf("%s: %w", s.ID(), err)
	}
	found.Solution = sol
	return found, nil
}

func (r *Registry) config(ctx context.Context, ec *ExecutionContext, s Solver, p Problem, params kernel.InvokeParams) (PerformanceConfig, string, error) {
	if cfg, ok := r.perf.Load(s, p); ok {
		return cfg, "perfdb", nil
	}

	if ec.Tuning.Enabled && params != nil {
		cfg, err := s.Search(ctx, ec, p, params)
		if err != nil {
			return nil, "", err
		}
		if err := r.perf.Update(s, p, cfg); err != nil {
			r.logger.Warn("failed to store tuned config", zap.String("solver", s.ID()), zap.Error(err))
		}
		return cfg, "search", nil
	}

	cfg, err := s.GetDefaultConfig(ec, p)
	if err != nil {
		return nil, "", err
	}
	if cfg == nil || !cfg.IsValidValue() {
		return nil, "", &kcerr.Error{Kind: kcerr.ErrNoSupportedInstance, Op: s.ID(), Detail: p.Key()}
	}
	return cfg, "default", nil
}
