package kerndb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fxnlabs/kernel-cache/internal/kcerr"
	"go.etcd.io/bbolt"
)

var recordsBucket = []byte("kern_db")

// BoltDB is a single database file. The file is opened for each operation so that
// independent processes can share it; bbolt's file lock serializes writers.
type BoltDB struct {
	path     string
	readOnly bool
	timeout  time.Duration
}

// NewBoltDB returns a store backed by the file at path. The file is created lazily on
// the first write; a missing file reads as an empty database.
func NewBoltDB(path string, readOnly bool) *BoltDB {
	return &BoltDB{path: path, readOnly: readOnly, timeout: 5 * time.Second}
}

// FindRecord looks up cfg.
func (b *BoltDB) FindRecord(cfg KernelConfig) ([]byte, bool, error) {
	if _, err := os.Stat(b.path); errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}

	db, err := bbolt.Open(b.path, 0o644, &bbolt.Options{Timeout: b.timeout, ReadOnly: true})
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", b.path, err)
	}
	defer db.Close()

	var payload []byte
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(cfg.Key())); v != nil {
			// Values are only valid inside the transaction.
			payload = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payload, payload != nil, nil
}

// StoreRecord inserts or replaces cfg.
func (b *BoltDB) StoreRecord(cfg KernelConfig) error {
	if b.readOnly {
		return &kcerr.Error{Kind: kcerr.ErrReadOnly, Op: "StoreRecord", Detail: b.path}
	}

	db, err := bbolt.Open(b.path, 0o644, &bbolt.Options{Timeout: b.timeout})
	if err != nil {
		return fmt.Errorf("open %s: %w", b.path, err)
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(recordsBucket)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(cfg.Key()), cfg.Payload)
	})
}
