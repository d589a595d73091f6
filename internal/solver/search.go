package solver

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fxnlabs/kernel-cache/internal/kcerr"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Trial is one timed candidate of a search.
type Trial struct {
	Config string
	Time   time.Duration
	Err    error
}

// SearchResult is the outcome of GenericSearch.
type SearchResult struct {
	Best     PerformanceConfig
	BestTime time.Duration
	Trials   []Trial
}

// GenericSearch walks the config space of s from its heuristic seed, timing every
// valid candidate on ec.Handle, and returns the fastest. Ties keep the first-seen
// candidate. The walk ends when SetNextValue reports exhaustion or after
// ec.Tuning.MaxIterations candidates when that is positive.
func GenericSearch(ctx context.Context, ec *ExecutionContext, s Solver, p Problem, params kernel.InvokeParams) (SearchResult, error) {
	cfg, err := s.GetDefaultConfig(ec, p)
	if err != nil {
		return SearchResult{}, err
	}
	if cfg == nil || !cfg.IsValidValue() {
		return SearchResult{}, &kcerr.Error{Kind: kcerr.ErrNoSupportedInstance, Op: s.ID(), Detail: p.Key()}
	}

	repeats := max(ec.Tuning.Repeats, 1)
	var res SearchResult
	bestMs := math.Inf(1)

	for iter := 0; ; iter++ {
		if err := ctx.Err(); err != nil {
			return SearchResult{}, err
		}
		if ec.Tuning.MaxIterations > 0 && iter >= ec.Tuning.MaxIterations {
			ec.Logger.Debug("search iteration cap reached", zap.String("solver", s.ID()), zap.Int("iterations", iter))
			break
		}

		current := cfg.Clone()
		if current.IsValid(p) {
			elapsed, err := timeCandidate(ctx, ec, s, p, current, params, repeats)
			res.Trials = append(res.Trials, Trial{Config: current.String(), Time: elapsed, Err: err})
			metrics.SearchTrials.WithLabelValues(s.ID()).Inc()
			if err != nil {
				ec.Logger.Debug("search trial failed", zap.String("solver", s.ID()), zap.String("config", current.String()), zap.Error(err))
			} else {
				ms := float64(elapsed) / float64(time.Millisecond)
				ec.Logger.Debug("search trial", zap.String("solver", s.ID()), zap.String("config", current.String()), zap.Float64("ms", ms))
				if ms < bestMs {
					bestMs = ms
					res.Best, res.BestTime = current, elapsed
				}
			}
		}

		if !cfg.SetNextValue(p) {
			break
		}
	}

	if res.Best == nil {
		return res, &kcerr.Error{Kind: kcerr.ErrNoSupportedInstance, Op: s.ID(), Detail: "no candidate ran: " + p.Key()}
	}
	metrics.SearchBestTimeMs.WithLabelValues(s.ID()).Set(bestMs)
	ec.Logger.Info("search finished",
		zap.String("solver", s.ID()),
		zap.String("best", res.Best.String()),
		zap.Duration("time", res.BestTime),
		zap.Int("trials", len(res.Trials)))
	return res, nil
}

// timeCandidate returns the median device time over repeats runs of cfg.
func timeCandidate(ctx context.Context, ec *ExecutionContext, s Solver, p Problem, cfg PerformanceConfig, params kernel.InvokeParams, repeats int) (time.Duration, error) {
	sol, err := s.GetSolution(ec, p, cfg)
	if err != nil {
		return 0, err
	}
	h := ec.Handle
	invoke, err := kernel.PrepareInvoker(ctx, h, s.ID(), p.Key()+";"+cfg.String(), sol)
	if err != nil {
		return 0, err
	}

	samples := make([]float64, 0, repeats)
	for i := 0; i < repeats; i++ {
		h.ResetKernelTime()
		start := time.Now()
		if err := invoke(h, params); err != nil {
			return 0, fmt.Errorf("run %s: %w", cfg, err)
		}
		elapsed := time.Since(start)
		if h.IsProfilingEnabled() {
			elapsed = h.GetKernelTime()
		}
		samples = append(samples, float64(elapsed))
	}
	sort.Float64s(samples)
	return time.Duration(stat.Quantile(0.5, stat.Empirical, samples, nil)), nil
}
