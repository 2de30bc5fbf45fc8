// Network collector: per-interface transferred data and transfer speed.
// Uses gopsutil for cross-platform network metrics.
package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/Guliveer/spectrometer/internal/models"
)

// NetworkCollector collects one device per non-loopback interface that is
// up, as "/nic/<n>". It tracks previous counters to compute speeds.
type NetworkCollector struct {
	logger *zap.Logger
	now    func() time.Time
	speed  func(name string) (float64, bool)

	mu     sync.Mutex
	last   map[string]net.IOCountersStat
	lastAt time.Time
}

// NewNetworkCollector creates a new network collector.
func NewNetworkCollector(logger *zap.Logger) *NetworkCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkCollector{
		logger: logger,
		now:    time.Now,
		speed:  linkSpeed,
	}
}

// Name returns the collector identifier.
func (c *NetworkCollector) Name() string { return "network" }

// Provides returns the hardware types this collector reports.
func (c *NetworkCollector) Provides() []models.HardwareType {
	return []models.HardwareType{models.HardwareNetwork}
}

// Collect gathers per-interface counters. Interfaces with an address come
// first so that the first NIC is the one most likely carrying traffic. The
// first collection reports speeds without a value while establishing a
// baseline.
func (c *NetworkCollector) Collect(ctx context.Context) ([]models.Device, error) {
	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]net.IOCountersStat, len(counters))
	for _, s := range counters {
		byName[s.Name] = s
	}

	candidates := eligibleInterfaces(ifaces)

	c.mu.Lock()
	now := c.now()
	elapsed := now.Sub(c.lastAt)
	prev := c.last
	c.last = byName
	c.lastAt = now
	c.mu.Unlock()

	devices := make([]models.Device, 0, len(candidates))
	for i, name := range candidates {
		cur, ok := byName[name]
		if !ok {
			continue
		}
		var before *net.IOCountersStat
		if p, ok := prev[name]; ok {
			before = &p
		}
		d := buildNICDevice(i, cur, before, elapsed)
		if mbps, ok := c.speed(name); ok {
			var util *float64
			if before != nil && elapsed > 0 {
				bits := (rate(before.BytesRecv, cur.BytesRecv, elapsed) + rate(before.BytesSent, cur.BytesSent, elapsed)) * 8
				util = models.Float(min(100, bits/(mbps*1e6)*100))
			}
			d.Sensors = append(d.Sensors, models.RawSensor{
				Identifier: d.Identifier + "/load/1",
				Name:       "Network Utilization",
				Kind:       models.KindLoad,
				Value:      util,
			})
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// eligibleInterfaces returns the names of interfaces that are up and not
// loopback, those with addresses first, each group sorted by name.
func eligibleInterfaces(ifaces net.InterfaceStatList) []string {
	var withAddr, without []string
	for _, iface := range ifaces {
		up, loopback := false, false
		for _, f := range iface.Flags {
			switch f {
			case "up":
				up = true
			case "loopback":
				loopback = true
			}
		}
		if !up || loopback {
			continue
		}
		if len(iface.Addrs) > 0 {
			withAddr = append(withAddr, iface.Name)
		} else {
			without = append(without, iface.Name)
		}
	}
	sort.Strings(withAddr)
	sort.Strings(without)
	return append(withAddr, without...)
}

func buildNICDevice(i int, cur net.IOCountersStat, before *net.IOCountersStat, elapsed time.Duration) models.Device {
	id := fmt.Sprintf("/nic/%d", i)
	d := models.Device{
		Identifier: id,
		Name:       cur.Name,
		Type:       models.HardwareNetwork,
		Sensors: []models.RawSensor{
			{Identifier: id + "/data/2", Name: "Data Uploaded", Kind: models.KindData, Value: models.Float(float64(cur.BytesSent) / bytesPerGB)},
			{Identifier: id + "/data/3", Name: "Data Downloaded", Kind: models.KindData, Value: models.Float(float64(cur.BytesRecv) / bytesPerGB)},
		},
	}
	var up, down *float64
	if before != nil {
		up = models.Float(rate(before.BytesSent, cur.BytesSent, elapsed))
		down = models.Float(rate(before.BytesRecv, cur.BytesRecv, elapsed))
	}
	d.Sensors = append(d.Sensors,
		models.RawSensor{Identifier: id + "/throughput/7", Name: "Upload Speed", Kind: models.KindThroughput, Value: up},
		models.RawSensor{Identifier: id + "/throughput/8", Name: "Download Speed", Kind: models.KindThroughput, Value: down},
	)
	return d
}

// linkSpeed reads the negotiated link speed in Mbit/s from sysfs. It
// reports false where the kernel does not expose it (wireless, virtual,
// non-Linux).
func linkSpeed(name string) (float64, bool) {
	raw, err := os.ReadFile(filepath.Join("/sys/class/net", name, "speed"))
	if err != nil {
		return 0, false
	}
	mbps, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil || mbps <= 0 {
		return 0, false
	}
	return mbps, true
}

// IsAvailable returns true — network metrics are available on all platforms.
func (c *NetworkCollector) IsAvailable() bool { return true }
