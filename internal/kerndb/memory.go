package kerndb

import (
	"bytes"
	"sync"

	"github.com/fxnlabs/kernel-cache/internal/kcerr"
)

// MemDB is an in-memory store. Read-only instances serve databases baked into the binary.
type MemDB struct {
	mu       sync.RWMutex
	records  map[string][]byte
	readOnly bool
}

// NewMemDB creates a store preloaded with records.
func NewMemDB(readOnly bool, records ...KernelConfig) *MemDB {
	m := &MemDB{records: make(map[string][]byte, len(records)), readOnly: readOnly}
	for _, r := range records {
		m.records[r.Key()] = bytes.Clone(r.Payload)
	}
	return m
}

func (m *MemDB) FindRecord(cfg KernelConfig) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.records[cfg.Key()]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (m *MemDB) StoreRecord(cfg KernelConfig) error {
	if m.readOnly {
		return &kcerr.Error{Kind: kcerr.ErrReadOnly, Op: "StoreRecord", Detail: "embedded database"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[cfg.Key()] = bytes.Clone(cfg.Payload)
	return nil
}

// Len returns the number of records.
func (m *MemDB) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
