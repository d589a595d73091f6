package gpu

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SimConfig describes the device the simulator pretends to be.
type SimConfig struct {
	Name         string
	Arch         string
	Features     string
	ComputeUnits int
	// Cost returns the simulated elapsed time of a launch. Defaults to DefaultCost.
	Cost func(req LaunchRequest) time.Duration
}

// SimDevice implements Device without hardware. Launches are recorded and timed by a
// deterministic cost model, which is what tests and the tune command rely on.
type SimDevice struct {
	logger      *zap.Logger
	cfg         SimConfig
	initialized bool

	mu       sync.Mutex
	launches []LaunchRequest
	copies   int
}

// NewSimDevice creates a new simulated device instance
func NewSimDevice(logger *zap.Logger, cfg SimConfig) *SimDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Arch == "" {
		cfg.Arch = "gfx90a"
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("Simulated %s (%s)", cfg.Arch, runtime.GOARCH)
	}
	if cfg.ComputeUnits <= 0 {
		cfg.ComputeUnits = 104
	}
	if cfg.Cost == nil {
		cfg.Cost = DefaultCost
	}
	return &SimDevice{logger: logger, cfg: cfg}
}

// DefaultCost charges one nanosecond per global work item plus a fixed launch overhead.
func DefaultCost(req LaunchRequest) time.Duration {
	items := 1
	for _, g := range req.Global {
		if g > 0 {
			items *= g
		}
	}
	return 5*time.Microsecond + time.Duration(items)*time.Nanosecond
}

// Initialize prepares the simulated device for use
func (s *SimDevice) Initialize() error {
	if s.initialized {
		return nil
	}
	s.initialized = true
	s.logger.Info("simulated device initialized", zap.String("arch", s.cfg.Arch), zap.Int("cu", s.cfg.ComputeUnits))
	return nil
}

// Cleanup drops recorded launches
func (s *SimDevice) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.launches = nil
	return nil
}

// IsAvailable checks if the device is available (always true for the simulator)
func (s *SimDevice) IsAvailable() bool {
	return true
}

// Info returns the configured device identity
func (s *SimDevice) Info() DeviceInfo {
	return DeviceInfo{
		Name:          s.cfg.Name,
		Arch:          s.cfg.Arch,
		Features:      s.cfg.Features,
		ComputeUnits:  s.cfg.ComputeUnits,
		TotalMemory:   16 * 1024 * 1024 * 1024,
		DriverVersion: runtime.Version(),
	}
}

// Launch records the request and returns its simulated elapsed time
func (s *SimDevice) Launch(req LaunchRequest) (time.Duration, error) {
	if !s.initialized {
		return 0, fmt.Errorf("simulated device not initialized")
	}
	if req.Kernel == "" {
		return 0, fmt.Errorf("launch without kernel name")
	}
	if len(req.Local) == 0 || len(req.Global) == 0 {
		return 0, fmt.Errorf("launch of %s without geometry", req.Kernel)
	}

	s.mu.Lock()
	s.launches = append(s.launches, req)
	s.mu.Unlock()

	return s.cfg.Cost(req), nil
}

// Copy validates pointers and counts the transfer
func (s *SimDevice) Copy(src, dst DevicePtr, bytes int) error {
	if src == 0 || dst == 0 {
		return fmt.Errorf("copy with null pointer")
	}
	if bytes < 0 {
		return fmt.Errorf("negative copy size %d", bytes)
	}
	s.mu.Lock()
	s.copies++
	s.mu.Unlock()
	return nil
}

// Launches returns a snapshot of the recorded launches
func (s *SimDevice) Launches() []LaunchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LaunchRequest, len(s.launches))
	copy(out, s.launches)
	return out
}

// Copies returns the number of device copies issued
func (s *SimDevice) Copies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copies
}

// SimCompiler writes placeholder objects into a scratch directory.
type SimCompiler struct {
	dir   string
	count atomic.Int64
}

// NewSimCompiler creates a compiler writing to dir (os.TempDir when empty).
func NewSimCompiler(dir string) *SimCompiler {
	if dir == "" {
		dir = os.TempDir()
	}
	return &SimCompiler{dir: dir}
}

// Compile produces an artifact whose content is a pure function of the request
func (c *SimCompiler) Compile(ctx context.Context, req CompileRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Program == "" || req.Kernel == "" {
		return "", fmt.Errorf("compile requires program and kernel names")
	}
	f, err := os.CreateTemp(c.dir, "kcache-build-*.o")
	if err != nil {
		return "", err
	}
	defer f.Close()

	body := fmt.Sprintf("KCOBJ\ntarget=%s\nprogram=%s\nkernel=%s\noptions=%s\n", req.Target, req.Program, req.Kernel, req.Options)
	if _, err := f.WriteString(body); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	c.count.Add(1)
	return f.Name(), nil
}

// Count returns how many programs were compiled
func (c *SimCompiler) Count() int {
	return int(c.count.Load())
}
