// Shared hwmon temperature reader and chip classification.
// Uses gopsutil host sensors; several collectors read the same snapshot
// within one refresh.
package collector

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// DefaultThermalTTL is how long one sysfs read is reused.
const DefaultThermalTTL = 500 * time.Millisecond

// minValidTemp is the minimum temperature (°C) considered valid.
const minValidTemp = 0.0

// maxValidTemp is the maximum temperature (°C) considered valid.
// Readings above this are likely sensor errors.
const maxValidTemp = 150.0

// chipClass is the hardware a temperature chip belongs to.
type chipClass int

const (
	chipUnknown chipClass = iota
	chipCPU
	chipGPUNvidia
	chipGPUAmd
	chipGPUIntel
	chipStorage
	chipMotherboard
	chipController
)

// chipClasses maps chip name prefixes to the hardware they describe. More
// specific prefixes come first.
var chipClasses = []struct {
	prefix string
	class  chipClass
	label  string
}{
	{"coretemp", chipCPU, "CPU"},
	{"k10temp", chipCPU, "CPU"},
	{"zenpower", chipCPU, "CPU"},
	{"amdgpu", chipGPUAmd, "AMD Radeon"},
	{"radeon", chipGPUAmd, "AMD Radeon"},
	{"nouveau", chipGPUNvidia, "NVIDIA"},
	{"nvidia", chipGPUNvidia, "NVIDIA"},
	{"intel_gpu", chipGPUIntel, "Intel Graphics"},
	{"i915", chipGPUIntel, "Intel Graphics"},
	{"xe", chipGPUIntel, "Intel Graphics"},
	{"nvme", chipStorage, "NVMe SSD"},
	{"drivetemp", chipStorage, "HDD/SSD"},
	{"thinkpad", chipController, "ThinkPad EC"},
	{"dell_smm", chipController, "Dell SMM"},
	{"asus_ec", chipController, "ASUS EC"},
	{"applesmc", chipController, "Apple SMC"},
	{"it87", chipMotherboard, "ITE IT87xx"},
	{"nct", chipMotherboard, "Nuvoton NCT"},
	{"w83", chipMotherboard, "Winbond W83"},
	{"f71", chipMotherboard, "Fintek F71"},
	{"asus", chipMotherboard, "ASUS WMI"},
	{"pch", chipMotherboard, "PCH"},
	{"acpitz", chipMotherboard, "ACPI Thermal Zone"},
}

// classify returns the class and friendly name of a chip.
func classify(chip string) (chipClass, string) {
	lower := strings.ToLower(chip)
	for _, entry := range chipClasses {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.class, entry.label
		}
	}
	return chipUnknown, chip
}

// chipReading is one valid temperature sensor of one chip instance.
type chipReading struct {
	Label string
	Value float64
}

// chip is one instance of a temperature chip. Two drives of the same model
// show up as two instances of "nvme".
type chip struct {
	Name     string
	Instance int
	Class    chipClass
	Friendly string
	Readings []chipReading
}

// ThermalReader reads host temperature sensors and caches the result for a
// short TTL.
type ThermalReader struct {
	ttl    time.Duration
	logger *zap.Logger
	read   func(ctx context.Context) ([]host.TemperatureStat, error)
	now    func() time.Time

	mu     sync.Mutex
	cached []chip
	at     time.Time
}

// NewThermalReader creates a reader. A non-positive ttl uses
// DefaultThermalTTL.
func NewThermalReader(ttl time.Duration, logger *zap.Logger) *ThermalReader {
	if ttl <= 0 {
		ttl = DefaultThermalTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThermalReader{
		ttl:    ttl,
		logger: logger,
		read:   host.SensorsTemperaturesWithContext,
		now:    time.Now,
	}
}

// Chips returns the current chip readings, reusing a read younger than the
// TTL. Partial results are kept; gopsutil reports unreadable sensors as
// warnings alongside the ones it could read.
func (t *ThermalReader) Chips(ctx context.Context) ([]chip, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.cached != nil && now.Sub(t.at) < t.ttl {
		return t.cached, nil
	}

	stats, err := t.read(ctx)
	if err != nil && len(stats) == 0 {
		t.logger.Debug("Temperature sensors not available via gopsutil",
			zap.Error(err))
		return nil, err
	}

	t.cached = groupChips(stats)
	t.at = now
	return t.cached, nil
}

// Of returns the chips of the given class in instance order.
func (t *ThermalReader) Of(ctx context.Context, class chipClass) ([]chip, error) {
	chips, err := t.Chips(ctx)
	if err != nil {
		return nil, err
	}
	var out []chip
	for _, c := range chips {
		if c.Class == class {
			out = append(out, c)
		}
	}
	return out, nil
}

// splitSensorKey splits a gopsutil sensor key ("nvme_composite",
// "coretemp_package_id_0_input") into chip name and label.
func splitSensorKey(key string) (string, string) {
	key = strings.TrimSuffix(strings.ToLower(key), "_input")
	for _, entry := range chipClasses {
		if strings.Contains(entry.prefix, "_") && strings.HasPrefix(key, entry.prefix) {
			label := strings.TrimPrefix(strings.TrimPrefix(key, entry.prefix), "_")
			if label == "" {
				label = "temp"
			}
			return entry.prefix, label
		}
	}
	name, label, found := strings.Cut(key, "_")
	if !found {
		return name, "temp"
	}
	return name, label
}

// groupChips turns flat gopsutil readings into chip instances in first-seen
// order. gopsutil reports chips in hwmon order; a label repeating within a
// chip name starts the next instance.
func groupChips(stats []host.TemperatureStat) []chip {
	type key struct {
		name     string
		instance int
	}
	var order []key
	byKey := make(map[key]*chip)
	labelsSeen := make(map[key]map[string]bool)
	current := make(map[string]int)

	for _, s := range stats {
		name, label := splitSensorKey(s.SensorKey)
		inst := current[name]
		k := key{name, inst}
		if labelsSeen[k][label] {
			inst++
			current[name] = inst
			k = key{name, inst}
		}
		if labelsSeen[k] == nil {
			labelsSeen[k] = make(map[string]bool)
		}
		labelsSeen[k][label] = true

		c, ok := byKey[k]
		if !ok {
			class, friendly := classify(name)
			c = &chip{Name: name, Instance: inst, Class: class, Friendly: friendly}
			byKey[k] = c
			order = append(order, k)
		}
		if isValidTemperature(s.Temperature) {
			c.Readings = append(c.Readings, chipReading{Label: label, Value: s.Temperature})
		}
	}

	out := make([]chip, 0, len(order))
	for _, k := range order {
		if c := byKey[k]; len(c.Readings) > 0 {
			out = append(out, *c)
		}
	}
	return out
}

// isValidTemperature returns true if the temperature is within a plausible range.
func isValidTemperature(temp float64) bool {
	return temp > minValidTemp && temp <= maxValidTemp
}

// readingName turns a hwmon label into a display name.
func readingName(label string) string {
	switch {
	case label == "" || label == "temp":
		return "Temperature"
	case strings.HasPrefix(label, "package"):
		return "Package"
	case label == "tctl" || label == "tdie":
		return "Core (Tctl/Tdie)"
	case label == "composite":
		return "Composite Temperature"
	}
	words := strings.Fields(strings.ReplaceAll(label, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
