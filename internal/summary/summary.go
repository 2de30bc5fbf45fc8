// Package summary derives the dashboard headline values from a sensor
// collection.
package summary

import (
	"strings"

	"github.com/Guliveer/spectrometer/internal/models"
)

// Unknown is the device name used when a category has no sensors.
const Unknown = "Unknown"

// Summary holds the dashboard values. Nil readings are unavailable.
type Summary struct {
	CPU     CPU     `json:"cpu"`
	GPU     GPU     `json:"gpu"`
	Memory  Memory  `json:"memory"`
	Storage Storage `json:"storage"`
	Network Network `json:"network"`
}

type CPU struct {
	Name         string   `json:"name"`
	Temperature  *float64 `json:"temperature"`
	Load         *float64 `json:"load"`
	Power        *float64 `json:"power"`
	HighestClock *float64 `json:"highest_clock"`
}

type GPU struct {
	Name        string   `json:"name"`
	Temperature *float64 `json:"temperature"`
	Load        *float64 `json:"load"`
	MemoryUsed  *float64 `json:"memory_used"`
	MemoryTotal *float64 `json:"memory_total"`
	Power       *float64 `json:"power"`
}

type Memory struct {
	Load   *float64 `json:"load"`
	UsedGB *float64 `json:"used_gb"`
}

type Storage struct {
	Devices   int      `json:"devices"`
	ReadRate  *float64 `json:"read_rate"`
	WriteRate *float64 `json:"write_rate"`
}

type Network struct {
	Interface string   `json:"interface"`
	Download  *float64 `json:"download"`
	Upload    *float64 `json:"upload"`
}

// virtualInterfaces are name prefixes skipped when picking the interface
// shown on the dashboard, unless nothing else is left.
var virtualInterfaces = []string{"docker", "veth", "br-", "virbr", "vmnet", "vboxnet", "tun", "tap", "wg", "vEthernet", "Bluetooth"}

// Derive computes the summary from the combined collection of all categories.
func Derive(all models.Collection) Summary {
	return Summary{
		CPU:     deriveCPU(firstDevice(all, models.CategoryCPU)),
		GPU:     deriveGPU(firstDevice(all, models.CategoryGPU)),
		Memory:  deriveMemory(firstDevice(all, models.CategoryMemory)),
		Storage: deriveStorage(all.Filter(inCategory(models.CategoryStorage))),
		Network: deriveNetwork(all.Filter(inCategory(models.CategoryNetwork))),
	}
}

func deriveCPU(d models.Collection) CPU {
	cpu := CPU{Name: deviceName(d)}
	temps := d.Filter(ofKind(models.KindTemperature))
	cpu.Temperature = value(first(temps, func(r models.SensorRecord) bool {
		return strings.Contains(r.Name, "Package") || strings.Contains(r.Name, "Core (Tctl/Tdie)")
	}))
	cpu.Load = value(first(d.Filter(ofKind(models.KindLoad)), func(r models.SensorRecord) bool {
		return strings.Contains(r.Name, "Total") || strings.Contains(r.Name, "Package")
	}))
	cpu.Power = value(first(d, ofKind(models.KindPower)))
	cpu.HighestClock = highest(d.Filter(func(r models.SensorRecord) bool {
		return r.Kind == models.KindClock && strings.Contains(r.Name, "Core")
	}))
	return cpu
}

func deriveGPU(d models.Collection) GPU {
	smallData := d.Filter(ofKind(models.KindSmallData))
	return GPU{
		Name:        deviceName(d),
		Temperature: value(first(d, ofKind(models.KindTemperature))),
		Load:        value(first(d, ofKind(models.KindLoad))),
		MemoryUsed: value(first(smallData, func(r models.SensorRecord) bool {
			return strings.Contains(r.Name, "Used") && strings.Contains(r.Name, "GPU")
		})),
		MemoryTotal: value(first(smallData, func(r models.SensorRecord) bool {
			return strings.Contains(r.Name, "Total")
		})),
		Power: value(first(d, ofKind(models.KindPower))),
	}
}

func deriveMemory(d models.Collection) Memory {
	return Memory{
		Load: value(first(d, ofKind(models.KindLoad))),
		UsedGB: value(first(d, func(r models.SensorRecord) bool {
			return r.Kind == models.KindData && strings.Contains(r.Name, "Used") && !strings.Contains(r.Name, "Virtual")
		})),
	}
}

// deriveStorage counts storage devices and sums the transfer rates of all
// volumes that report one.
func deriveStorage(c models.Collection) Storage {
	groups := make(map[string]struct{})
	for _, r := range c {
		groups[r.GroupKey()] = struct{}{}
	}
	throughput := c.Filter(ofKind(models.KindThroughput))
	return Storage{
		Devices: len(groups),
		ReadRate: sum(throughput.Filter(func(r models.SensorRecord) bool {
			return strings.Contains(r.Name, "Read")
		})),
		WriteRate: sum(throughput.Filter(func(r models.SensorRecord) bool {
			return strings.Contains(r.Name, "Write")
		})),
	}
}

// deriveNetwork reports the first interface that is not virtual, falling
// back to the first interface.
func deriveNetwork(c models.Collection) Network {
	if len(c) == 0 {
		return Network{}
	}
	key := c[0].GroupKey()
	for _, r := range c {
		if !isVirtual(r.Hardware) {
			key = r.GroupKey()
			break
		}
	}
	nic := c.Filter(func(r models.SensorRecord) bool { return r.GroupKey() == key })
	speeds := nic.Filter(ofKind(models.KindThroughput))
	return Network{
		Interface: nic[0].Hardware,
		Download: value(first(speeds, func(r models.SensorRecord) bool {
			return strings.Contains(r.Name, "Download Speed")
		})),
		Upload: value(first(speeds, func(r models.SensorRecord) bool {
			return strings.Contains(r.Name, "Upload Speed")
		})),
	}
}

func isVirtual(name string) bool {
	for _, prefix := range virtualInterfaces {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// firstDevice returns the records of the first device in a category.
func firstDevice(all models.Collection, category models.Category) models.Collection {
	c := all.Filter(inCategory(category))
	if len(c) == 0 {
		return c
	}
	key := c[0].GroupKey()
	return c.Filter(func(r models.SensorRecord) bool { return r.GroupKey() == key })
}

func deviceName(d models.Collection) string {
	if len(d) == 0 || d[0].Hardware == "" {
		return Unknown
	}
	return d[0].Hardware
}

func inCategory(c models.Category) func(models.SensorRecord) bool {
	return func(r models.SensorRecord) bool { return r.Category == c }
}

func ofKind(k models.SensorKind) func(models.SensorRecord) bool {
	return func(r models.SensorRecord) bool { return r.Kind == k }
}

func first(c models.Collection, match func(models.SensorRecord) bool) *models.SensorRecord {
	for i := range c {
		if match(c[i]) {
			return &c[i]
		}
	}
	return nil
}

func value(r *models.SensorRecord) *float64 {
	if r == nil || r.Value == nil {
		return nil
	}
	return models.Float(*r.Value)
}

func highest(c models.Collection) *float64 {
	var out *float64
	for _, r := range c {
		if r.Value != nil && (out == nil || *r.Value > *out) {
			out = models.Float(*r.Value)
		}
	}
	return out
}

func sum(c models.Collection) *float64 {
	var out *float64
	for _, r := range c {
		if r.Value == nil {
			continue
		}
		if out == nil {
			out = models.Float(0)
		}
		*out += *r.Value
	}
	return out
}
