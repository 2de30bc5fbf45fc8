// CPU collector: total and per-core load, per-core clocks, and package and
// core temperatures. Uses gopsutil for cross-platform CPU metrics.
package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/Guliveer/spectrometer/internal/models"
)

// CPUCollector collects CPU metrics as the device "/cpu/0".
type CPUCollector struct {
	thermal *ThermalReader
	logger  *zap.Logger
}

// NewCPUCollector creates a new CPU collector.
func NewCPUCollector(thermal *ThermalReader, logger *zap.Logger) *CPUCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CPUCollector{thermal: thermal, logger: logger}
}

// Name returns the collector identifier.
func (c *CPUCollector) Name() string { return "cpu" }

// Provides returns the hardware types this collector reports.
func (c *CPUCollector) Provides() []models.HardwareType {
	return []models.HardwareType{models.HardwareCPU}
}

// Collect reads CPU load without blocking: gopsutil compares against the
// previous call, so the first refresh reports load since boot.
func (c *CPUCollector) Collect(ctx context.Context) ([]models.Device, error) {
	overall, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}

	// Per-core usage is non-fatal
	cores, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		c.logger.Debug("Per-core load not available", zap.Error(err))
		cores = nil
	}

	name := "CPU"
	var clocks []float64
	if infos, err := cpu.InfoWithContext(ctx); err == nil {
		for _, info := range infos {
			clocks = append(clocks, info.Mhz)
		}
		if len(infos) > 0 && infos[0].ModelName != "" {
			name = infos[0].ModelName
		}
	}

	var temps []chip
	if c.thermal != nil {
		temps, _ = c.thermal.Of(ctx, chipCPU)
	}

	return []models.Device{buildCPUDevice(name, overall, cores, clocks, temps)}, nil
}

// buildCPUDevice lays out CPU sensors with stable identifiers.
func buildCPUDevice(name string, overall, cores, clocks []float64, temps []chip) models.Device {
	const id = "/cpu/0"
	d := models.Device{Identifier: id, Name: name, Type: models.HardwareCPU}

	if len(overall) > 0 {
		d.Sensors = append(d.Sensors, models.RawSensor{
			Identifier: id + "/load/0",
			Name:       "CPU Total",
			Kind:       models.KindLoad,
			Value:      models.Float(overall[0]),
		})
	}
	for i, v := range cores {
		d.Sensors = append(d.Sensors, models.RawSensor{
			Identifier: fmt.Sprintf("%s/load/%d", id, i+1),
			Name:       fmt.Sprintf("CPU Core #%d", i+1),
			Kind:       models.KindLoad,
			Value:      models.Float(v),
		})
	}
	for i, mhz := range clocks {
		if mhz <= 0 {
			continue
		}
		d.Sensors = append(d.Sensors, models.RawSensor{
			Identifier: fmt.Sprintf("%s/clock/%d", id, i+1),
			Name:       fmt.Sprintf("CPU Core #%d", i+1),
			Kind:       models.KindClock,
			Value:      models.Float(mhz),
		})
	}

	n := 0
	for _, ch := range temps {
		for _, r := range ch.Readings {
			label := readingName(r.Label)
			if label == "Package" {
				label = "CPU Package"
			}
			d.Sensors = append(d.Sensors, models.RawSensor{
				Identifier: fmt.Sprintf("%s/temperature/%d", id, n),
				Name:       label,
				Kind:       models.KindTemperature,
				Value:      models.Float(r.Value),
			})
			n++
		}
	}
	return d
}

// IsAvailable returns true — CPU metrics are available on all platforms.
func (c *CPUCollector) IsAvailable() bool { return true }
