package kerndb

import (
	"time"

	"github.com/fxnlabs/kernel-cache/internal/metrics"
	"go.uber.org/zap"
)

// MultiFileDB joins a read-only system tier and a writable user tier. Either tier may
// be nil, in which case it always misses.
type MultiFileDB struct {
	system Store
	user   Store
}

// NewMultiFileDB combines the two tiers.
func NewMultiFileDB(system, user Store) *MultiFileDB {
	return &MultiFileDB{system: system, user: user}
}

// FindRecord tries the user tier, then the system tier.
func (m *MultiFileDB) FindRecord(cfg KernelConfig) ([]byte, bool, error) {
	if m.user != nil {
		payload, ok, err := m.user.FindRecord(cfg)
		if err != nil {
			return nil, false, err
		}
		if ok {
			metrics.CacheLookups.WithLabelValues("user", "hit").Inc()
			return payload, true, nil
		}
		metrics.CacheLookups.WithLabelValues("user", "miss").Inc()
	}
	if m.system != nil {
		payload, ok, err := m.system.FindRecord(cfg)
		if err != nil {
			return nil, false, err
		}
		if ok {
			metrics.CacheLookups.WithLabelValues("system", "hit").Inc()
			return payload, true, nil
		}
		metrics.CacheLookups.WithLabelValues("system", "miss").Inc()
	}
	return nil, false, nil
}

// StoreRecord writes to the user tier only. Without a user tier the write is dropped.
func (m *MultiFileDB) StoreRecord(cfg KernelConfig) error {
	if m.user == nil {
		return nil
	}
	return m.user.StoreRecord(cfg)
}

// HasUserTier reports whether writes are persisted.
func (m *MultiFileDB) HasUserTier() bool { return m.user != nil }

// HasSystemTier reports whether a system database was found.
func (m *MultiFileDB) HasSystemTier() bool { return m.system != nil }

// Timed logs the duration of each operation on the wrapped store.
type Timed struct {
	Store
	logger *zap.Logger
}

// NewTimed wraps s.
func NewTimed(s Store, logger *zap.Logger) *Timed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timed{Store: s, logger: logger.Named("kerndb")}
}

func (t *Timed) FindRecord(cfg KernelConfig) ([]byte, bool, error) {
	start := time.Now()
	payload, ok, err := t.Store.FindRecord(cfg)
	t.logger.Debug("find record",
		zap.String("file", cfg.KernelFile),
		zap.Bool("found", ok),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return payload, ok, err
}

func (t *Timed) StoreRecord(cfg KernelConfig) error {
	start := time.Now()
	err := t.Store.StoreRecord(cfg)
	t.logger.Debug("store record",
		zap.String("file", cfg.KernelFile),
		zap.Int("bytes", len(cfg.Payload)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return err
}
