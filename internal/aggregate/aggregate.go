// Package aggregate groups the provider's raw device tree into one sensor
// collection per category.
package aggregate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Guliveer/spectrometer/internal/models"
)

// Provider is the part of the sensor provider the aggregator reads from.
type Provider interface {
	// ListDevicesByCategory returns the devices of the given hardware type
	// as of the last refresh.
	ListDevicesByCategory(ctx context.Context, hw models.HardwareType) ([]models.Device, error)
}

// gpuPreference is the vendor probe order. First vendor with a device wins.
var gpuPreference = []models.HardwareType{
	models.HardwareGPUNvidia,
	models.HardwareGPUAmd,
}

// Aggregator turns provider devices into normalized sensor records.
type Aggregator struct {
	provider Provider
	logger   *zap.Logger

	mu  sync.Mutex
	gpu *models.HardwareType
}

// New creates an aggregator reading from provider.
func New(provider Provider, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		provider: provider,
		logger:   logger,
	}
}

// ResolveGPU returns the hardware type GPU sensors are read from: NVIDIA if
// present, then AMD, falling back to Intel. Mixed-vendor systems get the
// first match only. A positive match is cached for the aggregator's lifetime.
// When a preferred vendor cannot be probed that vendor is returned uncached,
// so the GPU category goes stale for the tick instead of switching vendors.
func (a *Aggregator) ResolveGPU(ctx context.Context) models.HardwareType {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.gpu != nil {
		return *a.gpu
	}

	for _, hw := range gpuPreference {
		devices, err := a.provider.ListDevicesByCategory(ctx, hw)
		if err != nil {
			a.logger.Debug("GPU vendor probe failed",
				zap.Stringer("vendor", hw),
				zap.Error(err))
			return hw
		}
		if len(devices) > 0 {
			a.cacheGPU(hw)
			return hw
		}
	}

	resolved := models.HardwareGPUIntel
	if devices, err := a.provider.ListDevicesByCategory(ctx, resolved); err == nil && len(devices) > 0 {
		a.cacheGPU(resolved)
	}
	return resolved
}

// cacheGPU must be called with a.mu held.
func (a *Aggregator) cacheGPU(hw models.HardwareType) {
	a.gpu = &hw
	a.logger.Info("Resolved GPU vendor", zap.Stringer("vendor", hw))
}

// hardwareFor maps a category to the provider hardware type to query.
func (a *Aggregator) hardwareFor(ctx context.Context, category models.Category) models.HardwareType {
	switch category {
	case models.CategoryMotherboard:
		return models.HardwareMotherboard
	case models.CategoryCPU:
		return models.HardwareCPU
	case models.CategoryGPU:
		return a.ResolveGPU(ctx)
	case models.CategoryMemory:
		return models.HardwareMemory
	case models.CategoryStorage:
		return models.HardwareStorage
	case models.CategoryNetwork:
		return models.HardwareNetwork
	case models.CategoryController:
		return models.HardwareController
	default:
		return models.HardwarePSU
	}
}

// CollectByCategory returns fresh records for every sensor of every device in
// the category. User flags are false; the reconciler restores them.
func (a *Aggregator) CollectByCategory(ctx context.Context, category models.Category) (models.Collection, error) {
	hw := a.hardwareFor(ctx, category)
	devices, err := a.provider.ListDevicesByCategory(ctx, hw)
	if err != nil {
		return nil, fmt.Errorf("listing %s devices: %w", hw, err)
	}

	records := make(models.Collection, 0)
	for _, d := range devices {
		records = flatten(records, d, category)
	}
	return records, nil
}

// CollectAll concatenates every category in declaration order. Categories
// that fail are left out and their errors combined.
func (a *Aggregator) CollectAll(ctx context.Context) (models.Collection, error) {
	var errs error
	parts := make([]models.Collection, 0, len(models.Categories))
	for _, c := range models.Categories {
		records, err := a.CollectByCategory(ctx, c)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		parts = append(parts, records)
	}
	return models.Concat(parts...), errs
}

// flatten appends the sensors of d and, depth first, of its sub-devices.
func flatten(dst models.Collection, d models.Device, category models.Category) models.Collection {
	for _, s := range d.Sensors {
		dst = append(dst, models.SensorRecord{
			Identifier: s.Identifier,
			Name:       s.Name,
			Hardware:   d.Name,
			Category:   category,
			Kind:       s.Kind,
			Value:      s.Value,
			Min:        s.Min,
			Max:        s.Max,
		})
	}
	for _, sub := range d.SubDevices {
		dst = flatten(dst, sub, category)
	}
	return dst
}
