// Hwmon collector: AMD and Intel GPU temperatures, motherboard super-I/O and
// ACPI thermal zones, and embedded controllers, all read through the shared
// thermal reader.
package collector

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/Guliveer/spectrometer/internal/models"
)

// HwmonCollector reports chips that have no dedicated collector.
type HwmonCollector struct {
	thermal *ThermalReader
	board   func() string
}

// NewHwmonCollector creates a new hwmon collector.
func NewHwmonCollector(thermal *ThermalReader) *HwmonCollector {
	return &HwmonCollector{thermal: thermal, board: boardName}
}

// Name returns the collector identifier.
func (c *HwmonCollector) Name() string { return "hwmon" }

// Provides returns the hardware types this collector reports.
func (c *HwmonCollector) Provides() []models.HardwareType {
	return []models.HardwareType{
		models.HardwareGPUAmd,
		models.HardwareGPUIntel,
		models.HardwareMotherboard,
		models.HardwareController,
	}
}

// Collect groups the current chips into devices.
func (c *HwmonCollector) Collect(ctx context.Context) ([]models.Device, error) {
	chips, err := c.thermal.Chips(ctx)
	if err != nil {
		return nil, err
	}
	return buildHwmonDevices(chips, c.board), nil
}

func buildHwmonDevices(chips []chip, board func() string) []models.Device {
	var out []models.Device
	var superIO []models.Device
	gpuIndex := map[chipClass]int{}

	for _, ch := range chips {
		switch ch.Class {
		case chipGPUAmd, chipGPUIntel:
			hw, prefix := models.HardwareGPUAmd, "gpu-amd"
			if ch.Class == chipGPUIntel {
				hw, prefix = models.HardwareGPUIntel, "gpu-intel"
			}
			n := gpuIndex[ch.Class]
			gpuIndex[ch.Class]++
			id := fmt.Sprintf("/%s/%d", prefix, n)
			out = append(out, chipDevice(id, ch.Friendly, hw, ch, gpuReadingName))
		case chipMotherboard:
			id := chipPath("/lpc", ch)
			superIO = append(superIO, chipDevice(id, ch.Friendly, models.HardwareMotherboard, ch, readingName))
		case chipController:
			id := chipPath("/ec", ch)
			out = append(out, chipDevice(id, ch.Friendly, models.HardwareController, ch, readingName))
		}
	}

	if len(superIO) > 0 {
		out = append(out, models.Device{
			Identifier: "/motherboard",
			Name:       board(),
			Type:       models.HardwareMotherboard,
			SubDevices: superIO,
		})
	}
	return out
}

// chipPath names a chip device, suffixing the instance when a chip occurs
// more than once.
func chipPath(root string, ch chip) string {
	if ch.Instance == 0 {
		return root + "/" + ch.Name
	}
	return fmt.Sprintf("%s/%s%d", root, ch.Name, ch.Instance)
}

func chipDevice(id, name string, hw models.HardwareType, ch chip, label func(string) string) models.Device {
	d := models.Device{Identifier: id, Name: name, Type: hw}
	for i, r := range ch.Readings {
		d.Sensors = append(d.Sensors, models.RawSensor{
			Identifier: fmt.Sprintf("%s/temperature/%d", id, i),
			Name:       label(r.Label),
			Kind:       models.KindTemperature,
			Value:      models.Float(r.Value),
		})
	}
	return d
}

// gpuReadingName maps amdgpu/i915 labels to the names used for NVML GPUs.
func gpuReadingName(label string) string {
	switch label {
	case "edge", "temp", "":
		return "GPU Core"
	case "junction":
		return "GPU Hot Spot"
	case "mem":
		return "GPU Memory"
	}
	return "GPU " + readingName(label)
}

// boardName reads the motherboard vendor and model from DMI.
func boardName() string {
	read := func(f string) string {
		b, err := os.ReadFile("/sys/devices/virtual/dmi/id/" + f)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
	name := strings.TrimSpace(read("board_vendor") + " " + read("board_name"))
	if name == "" {
		return "Motherboard"
	}
	return name
}

// IsAvailable reports whether the platform exposes hwmon chips.
func (c *HwmonCollector) IsAvailable() bool { return runtime.GOOS == "linux" }
