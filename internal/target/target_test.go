package target

import (
	"testing"

	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/stretchr/testify/assert"
)

func TestProperties(t *testing.T) {
	tests := []struct {
		name     string
		props    Properties
		dbID     string
		basename string
	}{
		{"small device", New("gfx1030", "", 40), "gfx1030", "gfx1030_40"},
		{"64 cu boundary", New("gfx906", "", 64), "gfx906", "gfx906_64"},
		{"large device uses hex", New("gfx90a", "", 104), "gfx90a", "gfx90a68"},
		{"features", New("gfx908", "xnack-", 120), "gfx908:xnack-", "gfx908_xnack-78"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dbID, tt.props.DbID())
			assert.Equal(t, tt.basename, tt.props.DbBasename())
			assert.Equal(t, MaxLocalMemorySize, tt.props.MaxLocalMemorySize())
		})
	}
}

func TestFromDevice(t *testing.T) {
	p := FromDevice(gpu.DeviceInfo{Arch: " gfx942 ", Features: "sramecc+", ComputeUnits: 304})
	assert.Equal(t, "gfx942", p.Name())
	assert.Equal(t, "sramecc+", p.Features())
	assert.Equal(t, 304, p.ComputeUnits())
	assert.True(t, p.Is("gfx90a", "gfx942"))
	assert.False(t, p.Is("gfx908"))
	assert.Equal(t, "gfx942:sramecc+(304 CU)", p.String())
}
