// Package collector implements the sensor provider: a set of hardware
// collectors behind a registry that refreshes them and serves the latest
// device tree per hardware type.
package collector

import (
	"context"
	"errors"

	"github.com/Guliveer/spectrometer/internal/models"
)

var (
	// ErrNoHardwareAccess is returned by Open when no collector could be
	// opened. The engine keeps running with empty collections.
	ErrNoHardwareAccess = errors.New("no hardware access")

	// ErrStale is returned by ListDevicesByCategory for hardware types whose
	// collector failed during the last refresh.
	ErrStale = errors.New("sensor data stale")

	// ErrNotOpen is returned when the registry is used before Open or after
	// Close.
	ErrNotOpen = errors.New("provider not open")
)

// Collector is the interface that all hardware collectors must implement.
// Each collector reports the devices of one or more hardware types.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string

	// Provides lists the hardware types this collector reports devices for.
	Provides() []models.HardwareType

	// Collect reads the current sensor values. Every returned device must
	// have a Type listed by Provides.
	Collect(ctx context.Context) ([]models.Device, error)

	// IsAvailable checks if this collector can run on the current platform.
	// Collectors that return false will not be registered.
	IsAvailable() bool
}

// Opener is implemented by collectors that hold a handle (a driver library,
// a device file) for the lifetime of the provider.
type Opener interface {
	Open(ctx context.Context) error
	Close() error
}
