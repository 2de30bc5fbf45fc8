// NVIDIA GPU collector backed by NVML.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"go.uber.org/zap"

	"github.com/Guliveer/spectrometer/internal/models"
)

var (
	ErrNVMLFailure        = errors.New("NVML operation failed")
	ErrNVMLNotInitialized = errors.New("NVML not initialized")
)

const bytesPerMB = 1 << 20

// nvmlController abstracts NVML operations for testing
type nvmlController interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetDevice(index int) (nvml.Device, error)
}

func nvmlError(ret nvml.Return) error {
	return fmt.Errorf("%w: %v", ErrNVMLFailure, nvml.ErrorString(ret))
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	if w.initialized {
		return nil
	}
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nvmlError(ret)
	}
	w.initialized = true
	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	if !w.initialized {
		return nil
	}
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return nvmlError(ret)
	}
	w.initialized = false
	return nil
}

func (w *nvmlWrapper) GetDeviceCount() (int, error) {
	if !w.initialized {
		return 0, ErrNVMLNotInitialized
	}
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, nvmlError(ret)
	}
	return count, nil
}

func (w *nvmlWrapper) GetDevice(index int) (nvml.Device, error) {
	if !w.initialized {
		return nil, ErrNVMLNotInitialized
	}
	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, nvmlError(ret)
	}
	return device, nil
}

// NVIDIACollector reports every NVML device as "/gpu-nvidia/<n>".
type NVIDIACollector struct {
	nvml   nvmlController
	logger *zap.Logger

	mu      sync.Mutex
	devices []nvml.Device
}

// NewNVIDIACollector creates a collector using the system NVML library.
func NewNVIDIACollector(logger *zap.Logger) *NVIDIACollector {
	return newNVIDIACollector(&nvmlWrapper{}, logger)
}

func newNVIDIACollector(ctl nvmlController, logger *zap.Logger) *NVIDIACollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NVIDIACollector{nvml: ctl, logger: logger}
}

// Name returns the collector identifier.
func (c *NVIDIACollector) Name() string { return "gpu-nvidia" }

// Provides returns the hardware types this collector reports.
func (c *NVIDIACollector) Provides() []models.HardwareType {
	return []models.HardwareType{models.HardwareGPUNvidia}
}

// IsAvailable returns true; NVML presence is only known once Open runs.
func (c *NVIDIACollector) IsAvailable() bool { return true }

// Open initializes NVML and resolves device handles.
func (c *NVIDIACollector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.nvml.Initialize(); err != nil {
		return err
	}
	count, err := c.nvml.GetDeviceCount()
	if err != nil {
		_ = c.nvml.Shutdown()
		return err
	}

	c.devices = c.devices[:0]
	for i := 0; i < count; i++ {
		d, err := c.nvml.GetDevice(i)
		if err != nil {
			c.logger.Warn("Failed to get NVIDIA device handle",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		c.devices = append(c.devices, d)
	}
	c.logger.Info("NVML initialized", zap.Int("devices", len(c.devices)))
	return nil
}

// Close shuts NVML down.
func (c *NVIDIACollector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = nil
	return c.nvml.Shutdown()
}

// Collect reads every device. Individual metrics a device does not support
// are left out; only a device without a name fails the collection.
func (c *NVIDIACollector) Collect(ctx context.Context) ([]models.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Device, 0, len(c.devices))
	for i, dev := range c.devices {
		d, err := readNVMLDevice(i, dev)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func readNVMLDevice(i int, dev nvml.Device) (models.Device, error) {
	name, ret := dev.GetName()
	if ret != nvml.SUCCESS {
		return models.Device{}, fmt.Errorf("device %d name: %w", i, nvmlError(ret))
	}

	id := fmt.Sprintf("/gpu-nvidia/%d", i)
	d := models.Device{Identifier: id, Name: name, Type: models.HardwareGPUNvidia}
	add := func(suffix, label string, kind models.SensorKind, v float64) {
		d.Sensors = append(d.Sensors, models.RawSensor{
			Identifier: id + suffix,
			Name:       label,
			Kind:       kind,
			Value:      models.Float(v),
		})
	}

	if temp, ret := dev.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		add("/temperature/0", "GPU Core", models.KindTemperature, float64(temp))
	}
	if util, ret := dev.GetUtilizationRates(); ret == nvml.SUCCESS {
		add("/load/0", "GPU Core", models.KindLoad, float64(util.Gpu))
		add("/load/1", "GPU Memory Controller", models.KindLoad, float64(util.Memory))
	}
	if mhz, ret := dev.GetClockInfo(nvml.CLOCK_GRAPHICS); ret == nvml.SUCCESS {
		add("/clock/0", "GPU Core", models.KindClock, float64(mhz))
	}
	if mhz, ret := dev.GetClockInfo(nvml.CLOCK_MEM); ret == nvml.SUCCESS {
		add("/clock/1", "GPU Memory", models.KindClock, float64(mhz))
	}
	if mw, ret := dev.GetPowerUsage(); ret == nvml.SUCCESS {
		add("/power/0", "GPU Package", models.KindPower, float64(mw)/1000)
	}
	if pct, ret := dev.GetFanSpeed(); ret == nvml.SUCCESS {
		add("/control/0", "GPU Fan", models.KindControl, float64(pct))
	}
	if mem, ret := dev.GetMemoryInfo(); ret == nvml.SUCCESS {
		add("/smalldata/0", "GPU Memory Free", models.KindSmallData, float64(mem.Free)/bytesPerMB)
		add("/smalldata/1", "GPU Memory Used", models.KindSmallData, float64(mem.Used)/bytesPerMB)
		add("/smalldata/2", "GPU Memory Total", models.KindSmallData, float64(mem.Total)/bytesPerMB)
	}
	return d, nil
}
