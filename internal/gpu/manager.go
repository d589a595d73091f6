package gpu

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Factory creates a candidate device. It must not perform heavy initialization.
type Factory func(log *zap.Logger) Device

// Manager handles device selection and lifecycle
type Manager struct {
	device Device
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewManager creates a new GPU manager and selects the first available device produced
// by factories, falling back to a simulated device.
func NewManager(logger *zap.Logger, sim SimConfig, factories ...Factory) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		logger: logger.Named("gpu"),
	}

	if err := m.detectAndInitialize(sim, factories); err != nil {
		return nil, err
	}

	return m, nil
}

// detectAndInitialize detects available devices and initializes the best one
func (m *Manager) detectAndInitialize(sim SimConfig, factories []Factory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, factory := range factories {
		dev := factory(m.logger)
		if dev == nil || !dev.IsAvailable() {
			continue
		}
		if err := dev.Initialize(); err != nil {
			m.logger.Warn("device initialization failed", zap.String("device", dev.Info().Name), zap.Error(err))
			// If initialization failed, try cleanup
			_ = dev.Cleanup()
			continue
		}
		m.device = dev
		return nil
	}

	// Fall back to the simulated device
	simDevice := NewSimDevice(m.logger, sim)
	if err := simDevice.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize simulated device: %w", err)
	}
	m.device = simDevice
	return nil
}

// GetDevice returns the current device
func (m *Manager) GetDevice() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// GetDeviceInfo returns device information from the current device
func (m *Manager) GetDeviceInfo() DeviceInfo {
	dev := m.GetDevice()
	if dev == nil {
		return DeviceInfo{Name: "No device available"}
	}
	return dev.Info()
}

// IsGPUAvailable returns true if a real device is active
func (m *Manager) IsGPUAvailable() bool {
	dev := m.GetDevice()
	if dev == nil {
		return false
	}
	_, isSim := dev.(*SimDevice)
	return !isSim
}

// Cleanup releases resources held by the current device
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Cleanup(); err != nil {
			return err
		}
		m.device = nil
	}
	return nil
}

// GetBackendType returns a string describing the current device type
func (m *Manager) GetBackendType() string {
	dev := m.GetDevice()
	if dev == nil {
		return "none"
	}
	if _, isSim := dev.(*SimDevice); isSim {
		return "sim"
	}
	return "gpu"
}
