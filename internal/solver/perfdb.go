package solver

import (
	"github.com/fxnlabs/kernel-cache/internal/kerndb"
	"github.com/fxnlabs/kernel-cache/internal/logger"
	"go.uber.org/zap"
)

// PerfDB persists tuned performance configs, keyed by solver id and problem key, in a
// kernel database opened with kerndb.PerfExt.
type PerfDB struct {
	store  kerndb.Store
	logger *zap.Logger
}

// NewPerfDB wraps store. A nil store makes every lookup miss and every update a no-op.
func NewPerfDB(store kerndb.Store, log *zap.Logger) *PerfDB {
	return &PerfDB{store: store, logger: logger.OrNop(log).Named("perfdb")}
}

func record(s Solver, p Problem) kerndb.KernelConfig {
	return kerndb.KernelConfig{KernelFile: s.ID(), Args: p.Key()}
}

// Load returns the stored config of s for p. Records that no longer parse or are not
// valid for p are ignored.
func (db *PerfDB) Load(s Solver, p Problem) (PerformanceConfig, bool) {
	if db == nil || db.store == nil || !s.IsTunable() {
		return nil, false
	}
	payload, ok, err := db.store.FindRecord(record(s, p))
	if err != nil {
		db.logger.Warn("perf db lookup failed", zap.String("solver", s.ID()), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	cfg, err := s.ParseConfig(p, string(payload))
	if err != nil {
		db.logger.Debug("discarding unparsable perf record", zap.String("solver", s.ID()), zap.Error(err))
		return nil, false
	}
	if !cfg.IsValidValue() || !cfg.IsValid(p) {
		db.logger.Debug("discarding stale perf record", zap.String("solver", s.ID()), zap.String("config", cfg.String()))
		return nil, false
	}
	return cfg, true
}

// Update stores cfg as the tuned config of s for p.
func (db *PerfDB) Update(s Solver, p Problem, cfg PerformanceConfig) error {
	if db == nil || db.store == nil {
		return nil
	}
	rec := record(s, p)
	rec.Payload = []byte(cfg.String())
	return db.store.StoreRecord(rec)
}
