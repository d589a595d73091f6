// Package kerndb stores compiled kernels and tuned configurations as records keyed by
// (kernel file, compiler arguments), split into a writable user tier and a read-only
// system tier.
package kerndb

import (
	"fmt"
)

// KernelConfig is both the lookup key and the record. Payload is ignored on lookup.
type KernelConfig struct {
	KernelFile string
	Args       string
	Payload    []byte
}

// Key is the normalized record key. The file name is length-prefixed so no
// (file, args) pair can collide with another by concatenation.
func (c KernelConfig) Key() string {
	return fmt.Sprintf("%d:%s%s", len(c.KernelFile), c.KernelFile, c.Args)
}

// Store is a key/blob record store. A miss is (nil, false, nil), never an error.
type Store interface {
	FindRecord(cfg KernelConfig) ([]byte, bool, error)
	StoreRecord(cfg KernelConfig) error
}
