// Package handle implements the runtime handle: it turns KernelInfo into launchable
// kernels, memoizing programs in process and persisting them in the binary cache.
package handle

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fxnlabs/kernel-cache/internal/cache"
	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/kernel"
	"github.com/fxnlabs/kernel-cache/internal/metrics"
	"github.com/fxnlabs/kernel-cache/internal/target"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Handle owns the kernel objects and compiled programs of one device.
type Handle struct {
	device   gpu.Device
	compiler gpu.Compiler
	binaries cache.BinaryCache
	target   target.Properties
	logger   *zap.Logger

	mu       sync.RWMutex
	kernels  map[string][]kernel.Kernel
	programs map[string][]byte
	builds   singleflight.Group

	profiling  bool
	timeMu     sync.Mutex
	kernelTime time.Duration
}

// Option configures a Handle.
type Option func(*Handle)

// WithProfiling makes every launch accumulate its elapsed time on the handle.
func WithProfiling(enabled bool) Option {
	return func(h *Handle) { h.profiling = enabled }
}

// WithTarget overrides the target read from the device.
func WithTarget(t target.Properties) Option {
	return func(h *Handle) { h.target = t }
}

// New creates a handle for an initialized device.
func New(device gpu.Device, compiler gpu.Compiler, binaries cache.BinaryCache, logger *zap.Logger, opts ...Option) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handle{
		device:   device,
		compiler: compiler,
		binaries: binaries,
		target:   target.FromDevice(device.Info()),
		logger:   logger.Named("handle"),
		kernels:  make(map[string][]kernel.Kernel),
		programs: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func kernelKey(algorithm, networkConfig string) string {
	return algorithm + "\x00" + networkConfig
}

func programKey(file, options string) string {
	return file + "\x00" + options
}

// Target returns the device identity.
func (h *Handle) Target() target.Properties { return h.target }

// GetKernels returns the kernels registered under (algorithm, networkConfig).
func (h *Handle) GetKernels(algorithm, networkConfig string) []kernel.Kernel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.kernels[kernelKey(algorithm, networkConfig)]
}

// AddKernel loads or compiles the program of info and registers a kernel for it.
func (h *Handle) AddKernel(ctx context.Context, algorithm, networkConfig string, info kernel.KernelInfo) (kernel.Kernel, error) {
	binary, err := h.program(ctx, info)
	if err != nil {
		return nil, err
	}
	k := &launchable{handle: h, info: info, binary: binary}

	h.mu.Lock()
	key := kernelKey(algorithm, networkConfig)
	h.kernels[key] = append(h.kernels[key], k)
	h.mu.Unlock()
	return k, nil
}

// program returns the binary of (file, options): the in-process memo, then the binary
// cache, then the compiler. Concurrent requests for the same program build it once.
func (h *Handle) program(ctx context.Context, info kernel.KernelInfo) ([]byte, error) {
	key := programKey(info.ProgramFile, info.CompOptions)

	h.mu.RLock()
	binary, ok := h.programs[key]
	h.mu.RUnlock()
	if ok {
		return binary, nil
	}

	v, err, _ := h.builds.Do(key, func() (any, error) {
		if binary, ok := h.binaries.LoadBinary(h.target, info.ProgramFile, info.CompOptions); ok {
			h.logger.Debug("program loaded from cache", zap.String("program", info.ProgramFile))
			return binary, nil
		}
		return h.compile(ctx, info)
	})
	if err != nil {
		return nil, err
	}
	binary = v.([]byte)

	h.mu.Lock()
	h.programs[key] = binary
	h.mu.Unlock()
	return binary, nil
}

func (h *Handle) compile(ctx context.Context, info kernel.KernelInfo) ([]byte, error) {
	start := time.Now()
	path, err := h.compiler.Compile(ctx, gpu.CompileRequest{
		Program: info.ProgramFile,
		Kernel:  info.KernelName,
		Options: info.CompOptions,
		Target:  h.target.DbID(),
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", info.ProgramFile, err)
	}
	elapsed := time.Since(start)
	metrics.KernelCompiles.WithLabelValues(info.ProgramFile).Inc()
	metrics.KernelCompileDuration.Observe(float64(elapsed.Milliseconds()))

	// SaveBinary moves or deletes the artifact, so read it first.
	binary, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := h.binaries.SaveBinary(path, h.target, info.ProgramFile, info.CompOptions); err != nil {
		return nil, fmt.Errorf("save %s: %w", info.ProgramFile, err)
	}
	h.logger.Debug("program compiled",
		zap.String("program", info.ProgramFile),
		zap.String("kernel", info.KernelName),
		zap.Duration("elapsed", elapsed))
	return binary, nil
}

// Copy moves bytes between device buffers.
func (h *Handle) Copy(src, dst gpu.DevicePtr, bytes int) error {
	return h.device.Copy(src, dst, bytes)
}

func (h *Handle) IsProfilingEnabled() bool { return h.profiling }

// EnableProfiling toggles launch timing.
func (h *Handle) EnableProfiling(enabled bool) { h.profiling = enabled }

func (h *Handle) ResetKernelTime() {
	h.timeMu.Lock()
	h.kernelTime = 0
	h.timeMu.Unlock()
}

func (h *Handle) AccumKernelTime(d time.Duration) {
	h.timeMu.Lock()
	h.kernelTime += d
	h.timeMu.Unlock()
}

func (h *Handle) GetKernelTime() time.Duration {
	h.timeMu.Lock()
	defer h.timeMu.Unlock()
	return h.kernelTime
}

// Device exposes the underlying device.
func (h *Handle) Device() gpu.Device { return h.device }

// launchable is a kernel bound to its handle and program binary.
type launchable struct {
	handle *Handle
	info   kernel.KernelInfo
	binary []byte
}

func (k *launchable) Name() string              { return k.info.KernelName }
func (k *launchable) Geometry() kernel.Geometry { return k.info.Geometry }

func (k *launchable) Invoke(args ...any) error {
	elapsed, err := k.handle.device.Launch(gpu.LaunchRequest{
		Binary: k.binary,
		Kernel: k.info.KernelName,
		Local:  k.info.Geometry.Local,
		Global: k.info.Geometry.Global,
		Args:   args,
	})
	if err != nil {
		return fmt.Errorf("launch %s: %w", k.info.KernelName, err)
	}
	if k.handle.profiling {
		k.handle.AccumKernelTime(elapsed)
	}
	return nil
}
