package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Binary cache and kernel db lookups, labelled by tier (user, system, file) and result (hit, miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kcache_cache_lookups_total",
		Help: "The total number of binary cache lookups",
	}, []string{"tier", "result"})

	// Result is stored or discarded (caching disabled).
	BinarySaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kcache_binary_saves_total",
		Help: "The total number of compiled binaries handed to the cache",
	}, []string{"result"})

	KernelCompiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kcache_kernel_compiles_total",
		Help: "Total number of program compilations by program file",
	}, []string{"program"})

	KernelCompileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kcache_kernel_compile_duration_ms",
		Help:    "Duration of program compilation in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1ms to ~32s
	})

	SolverApplicability = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kcache_solver_applicability_total",
		Help: "Applicability decisions by solver and result",
	}, []string{"solver", "result"})

	SearchTrials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kcache_search_trials_total",
		Help: "Performance config trials executed by the generic search",
	}, []string{"solver"})

	SearchBestTimeMs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kcache_search_best_time_ms",
		Help: "Best trial time of the last search per solver in milliseconds",
	}, []string{"solver"})

	TensorOpStrategy = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kcache_tensorop_strategy_total",
		Help: "Tensor-op planner strategy selections",
	}, []string{"strategy"})
)
