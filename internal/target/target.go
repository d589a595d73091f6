// Package target describes the device a cache entry or solver decision belongs to.
package target

import (
	"fmt"
	"strings"

	"github.com/fxnlabs/kernel-cache/internal/gpu"
)

// MaxLocalMemorySize is the LDS budget per work-group assumed for every supported target.
const MaxLocalMemorySize = 65536

// Properties identifies a device. It is built once from a live device and never mutated.
type Properties struct {
	name         string
	features     string
	computeUnits int
}

// New builds target properties from an architecture name (e.g. gfx90a), an optional
// feature string (e.g. "sramecc+:xnack-") and the compute unit count.
func New(name, features string, computeUnits int) Properties {
	return Properties{
		name:         strings.TrimSpace(name),
		features:     strings.TrimSpace(features),
		computeUnits: computeUnits,
	}
}

// FromDevice reads the identity of an initialized device.
func FromDevice(info gpu.DeviceInfo) Properties {
	return New(info.Arch, info.Features, info.ComputeUnits)
}

func (p Properties) Name() string      { return p.name }
func (p Properties) Features() string  { return p.features }
func (p Properties) ComputeUnits() int { return p.computeUnits }

// MaxLocalMemorySize returns the per work-group local memory limit in bytes.
func (p Properties) MaxLocalMemorySize() int { return MaxLocalMemorySize }

// DbID is the canonical device id: the architecture name plus features when present.
func (p Properties) DbID() string {
	if p.features == "" {
		return p.name
	}
	return p.name + ":" + p.features
}

// DbBasename names the system database for this device and compute unit count.
// Devices with at most 64 CUs use "<id>_<cu>", larger ones append the count in hex.
func (p Properties) DbBasename() string {
	id := strings.ReplaceAll(p.DbID(), ":", "_")
	if p.computeUnits <= 64 {
		return fmt.Sprintf("%s_%d", id, p.computeUnits)
	}
	return fmt.Sprintf("%s%x", id, p.computeUnits)
}

// Is reports whether the architecture is one of names.
func (p Properties) Is(names ...string) bool {
	for _, n := range names {
		if p.name == n {
			return true
		}
	}
	return false
}

func (p Properties) String() string {
	return fmt.Sprintf("%s(%d CU)", p.DbID(), p.computeUnits)
}
