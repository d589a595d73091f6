package kerndb

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type embeddedRecord struct {
	File    string `yaml:"file"`
	Args    string `yaml:"args"`
	Payload string `yaml:"payload"`
}

// LoadEmbedded parses a yaml document mapping system database file names to record
// lists into read-only stores.
//
//	gfx90a68.db:
//	  - file: CONV_IMPLICIT_GEMM_3D_GROUP_FWD
//	    args: "conv;dir=fwd;..."
//	    payload: "DeviceGroupedConvFwdMultipleD_Xdl_CShuffle<...>"
func LoadEmbedded(data []byte) (Embedded, error) {
	var doc map[string][]embeddedRecord
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse embedded databases: %w", err)
	}

	out := make(Embedded, len(doc))
	for name, records := range doc {
		configs := make([]KernelConfig, 0, len(records))
		for i, r := range records {
			if r.File == "" {
				return nil, fmt.Errorf("%s: record %d has no file", name, i)
			}
			configs = append(configs, KernelConfig{KernelFile: r.File, Args: r.Args, Payload: []byte(r.Payload)})
		}
		out[name] = NewMemDB(true, configs...)
	}
	return out, nil
}
