// Package models defines the sensor data structures shared by the provider,
// the aggregation engine, and the presentation layers.
package models

import "strings"

// Category is a hardware subsystem grouping as presented to the user.
type Category int

// Categories in declaration order. AllSensors is always assembled in this order.
const (
	CategoryMotherboard Category = iota
	CategoryCPU
	CategoryGPU
	CategoryMemory
	CategoryStorage
	CategoryNetwork
	CategoryController
	CategoryPSU
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryMotherboard,
	CategoryCPU,
	CategoryGPU,
	CategoryMemory,
	CategoryStorage,
	CategoryNetwork,
	CategoryController,
	CategoryPSU,
}

var categoryNames = map[Category]string{
	CategoryMotherboard: "motherboard",
	CategoryCPU:         "cpu",
	CategoryGPU:         "gpu",
	CategoryMemory:      "memory",
	CategoryStorage:     "storage",
	CategoryNetwork:     "network",
	CategoryController:  "controller",
	CategoryPSU:         "psu",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// HardwareType is the provider-level device type. It differs from Category
// only for GPUs, which the provider reports per vendor.
type HardwareType int

const (
	HardwareMotherboard HardwareType = iota
	HardwareCPU
	HardwareGPUNvidia
	HardwareGPUAmd
	HardwareGPUIntel
	HardwareMemory
	HardwareStorage
	HardwareNetwork
	HardwareController
	HardwarePSU
)

var hardwareNames = map[HardwareType]string{
	HardwareMotherboard: "motherboard",
	HardwareCPU:         "cpu",
	HardwareGPUNvidia:   "gpu-nvidia",
	HardwareGPUAmd:      "gpu-amd",
	HardwareGPUIntel:    "gpu-intel",
	HardwareMemory:      "memory",
	HardwareStorage:     "storage",
	HardwareNetwork:     "network",
	HardwareController:  "controller",
	HardwarePSU:         "psu",
}

func (h HardwareType) String() string {
	if name, ok := hardwareNames[h]; ok {
		return name
	}
	return "unknown"
}

// IsGPU reports whether the hardware type is one of the GPU vendors.
func (h HardwareType) IsGPU() bool {
	return h == HardwareGPUNvidia || h == HardwareGPUAmd || h == HardwareGPUIntel
}

// Category maps a hardware type to the category it is presented under.
func (h HardwareType) Category() Category {
	switch h {
	case HardwareMotherboard:
		return CategoryMotherboard
	case HardwareCPU:
		return CategoryCPU
	case HardwareGPUNvidia, HardwareGPUAmd, HardwareGPUIntel:
		return CategoryGPU
	case HardwareMemory:
		return CategoryMemory
	case HardwareStorage:
		return CategoryStorage
	case HardwareNetwork:
		return CategoryNetwork
	case HardwareController:
		return CategoryController
	default:
		return CategoryPSU
	}
}

// SensorKind is the semantic measurement type of a sensor. It governs unit
// formatting downstream.
type SensorKind int

const (
	KindVoltage SensorKind = iota
	KindCurrent
	KindPower
	KindClock
	KindTemperature
	KindLoad
	KindFrequency
	KindFan
	KindFlow
	KindControl
	KindLevel
	KindFactor
	KindData
	KindSmallData
	KindThroughput
	KindTimeSpan
	KindEnergy
	KindNoise
)

var kindNames = map[SensorKind]string{
	KindVoltage:     "voltage",
	KindCurrent:     "current",
	KindPower:       "power",
	KindClock:       "clock",
	KindTemperature: "temperature",
	KindLoad:        "load",
	KindFrequency:   "frequency",
	KindFan:         "fan",
	KindFlow:        "flow",
	KindControl:     "control",
	KindLevel:       "level",
	KindFactor:      "factor",
	KindData:        "data",
	KindSmallData:   "smalldata",
	KindThroughput:  "throughput",
	KindTimeSpan:    "timespan",
	KindEnergy:      "energy",
	KindNoise:       "noise",
}

func (k SensorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k SensorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RawSensor is one sensor as reported by the provider.
type RawSensor struct {
	Identifier string
	Name       string
	Kind       SensorKind
	Value      *float64
	Min        *float64
	Max        *float64
}

// Device is one piece of hardware reported by the provider. Sub-devices
// (e.g. a super-I/O chip on the motherboard) carry their own sensors.
type Device struct {
	Identifier string
	Name       string
	Type       HardwareType
	Sensors    []RawSensor
	SubDevices []Device
}

// SensorRecord is the application-owned view of one sensor reading plus the
// user metadata that must survive every refresh.
type SensorRecord struct {
	Identifier     string     `json:"identifier"`
	Name           string     `json:"name"`
	Hardware       string     `json:"hardware"`
	Category       Category   `json:"category"`
	Kind           SensorKind `json:"kind"`
	Value          *float64   `json:"value"`
	Min            *float64   `json:"min"`
	Max            *float64   `json:"max"`
	IsPinned       bool       `json:"is_pinned"`
	IsGraphEnabled bool       `json:"is_graph_enabled"`
}

// GroupKey distinguishes several pieces of hardware of the same type, e.g.
// "/nvme/0" and "/nvme/1" for two drives whose sensors share names.
func (r SensorRecord) GroupKey() string {
	parts := strings.Split(r.Identifier, "/")
	if len(parts) >= 3 {
		return "/" + parts[1] + "/" + parts[2]
	}
	return "Unknown"
}

// Float returns a pointer to v. Convenience for building readings.
func Float(v float64) *float64 {
	return &v
}
