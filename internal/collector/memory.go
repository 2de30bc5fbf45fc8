// RAM collector: physical and virtual memory load and usage.
// Uses gopsutil for cross-platform memory metrics.
package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Guliveer/spectrometer/internal/models"
)

const bytesPerGB = 1 << 30

// MemoryCollector collects memory metrics as the device "/ram".
type MemoryCollector struct{}

// NewMemoryCollector creates a new memory collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

// Name returns the collector identifier.
func (c *MemoryCollector) Name() string { return "memory" }

// Provides returns the hardware types this collector reports.
func (c *MemoryCollector) Provides() []models.HardwareType {
	return []models.HardwareType{models.HardwareMemory}
}

// Collect gathers physical memory and, where available, swap usage.
func (c *MemoryCollector) Collect(ctx context.Context) ([]models.Device, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		swap = nil
	}
	return []models.Device{buildMemoryDevice(v, swap)}, nil
}

func buildMemoryDevice(v *mem.VirtualMemoryStat, swap *mem.SwapMemoryStat) models.Device {
	d := models.Device{
		Identifier: "/ram",
		Name:       "Generic Memory",
		Type:       models.HardwareMemory,
		Sensors: []models.RawSensor{
			{Identifier: "/ram/load/0", Name: "Memory", Kind: models.KindLoad, Value: models.Float(v.UsedPercent)},
			{Identifier: "/ram/data/0", Name: "Memory Used", Kind: models.KindData, Value: models.Float(float64(v.Used) / bytesPerGB)},
			{Identifier: "/ram/data/1", Name: "Memory Available", Kind: models.KindData, Value: models.Float(float64(v.Available) / bytesPerGB)},
		},
	}
	if swap != nil && swap.Total > 0 {
		d.Sensors = append(d.Sensors,
			models.RawSensor{Identifier: "/ram/load/1", Name: "Virtual Memory", Kind: models.KindLoad, Value: models.Float(swap.UsedPercent)},
			models.RawSensor{Identifier: "/ram/data/2", Name: "Virtual Memory Used", Kind: models.KindData, Value: models.Float(float64(swap.Used) / bytesPerGB)},
			models.RawSensor{Identifier: "/ram/data/3", Name: "Virtual Memory Available", Kind: models.KindData, Value: models.Float(float64(swap.Free) / bytesPerGB)},
		)
	}
	return d
}

// IsAvailable returns true — memory metrics are available on all platforms.
func (c *MemoryCollector) IsAvailable() bool { return true }
