package gpu

import (
	"context"
	"time"
)

// DeviceInfo contains information about the GPU device
type DeviceInfo struct {
	Name          string `json:"name"`
	Arch          string `json:"arch"`               // e.g. gfx90a
	Features      string `json:"features,omitempty"` // e.g. xnack-
	ComputeUnits  int    `json:"computeUnits"`
	TotalMemory   int64  `json:"totalMemory"` // in bytes
	DriverVersion string `json:"driverVersion"`
}

// DevicePtr is an opaque device address. Zero is the null pointer.
type DevicePtr uintptr

// LaunchRequest describes one kernel enqueue.
type LaunchRequest struct {
	Binary []byte
	Kernel string
	Local  []int
	Global []int
	Args   []any
}

// Device defines the runtime surface the kernel layer needs from a GPU.
//
// Implementation notes:
// - Launch is synchronous and reports the elapsed device time
// - Automatic fallback to the simulated device is handled by the Manager, not the device
// - Resource cleanup is critical to prevent GPU memory leaks
type Device interface {
	// Launch enqueues a kernel from a loaded binary and waits for completion.
	Launch(req LaunchRequest) (time.Duration, error)

	// Copy moves bytes between two device allocations.
	Copy(src, dst DevicePtr, bytes int) error

	// Info returns information about the device.
	// This information is used for:
	// - Namespacing the binary cache and kernel db
	// - Selecting architecture-specific solvers
	Info() DeviceInfo

	// IsAvailable checks if the device is available for use.
	// This should perform a quick check without heavy initialization.
	IsAvailable() bool

	// Initialize prepares the device for use. Called once before first use.
	Initialize() error

	// Cleanup releases any resources held by the device.
	Cleanup() error
}

// CompileRequest names one program build.
type CompileRequest struct {
	Program string // program source file name
	Kernel  string
	Options string // compiler defines
	Target  string // device db id
}

// Compiler is the opaque toolchain: it builds a program and returns the path of the
// produced artifact. The caller owns the artifact afterwards.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (string, error)
}
