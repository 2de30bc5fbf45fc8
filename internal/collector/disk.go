// Storage collector: per-volume used space and read/write rates, plus drive
// temperatures from the shared thermal reader.
// Uses gopsutil for cross-platform disk metrics.
package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/Guliveer/spectrometer/internal/models"
)

// pseudoFSTypes contains filesystem types that are not local storage.
var pseudoFSTypes = map[string]bool{
	"devfs":         true,
	"autofs":        true,
	"tmpfs":         true,
	"sysfs":         true,
	"proc":          true,
	"devtmpfs":      true,
	"cgroup":        true,
	"cgroup2":       true,
	"overlay":       true,
	"squashfs":      true,
	"fuse.snapfuse": true,
	"nsfs":          true,
	"debugfs":       true,
	"tracefs":       true,
	"efivarfs":      true,
	"ramfs":         true,
	"nfs":           true,
	"nfs4":          true,
	"cifs":          true,
	"smbfs":         true,
	"fuse.sshfs":    true,
	"9p":            true,
}

// isSystemMount returns true for OS-internal mount points that shouldn't be
// shown to users.
func isSystemMount(mount string) bool {
	for _, prefix := range []string{"/System/Volumes/", "/private/var/vm", "/boot/efi", "/snap/"} {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// StorageCollector collects one device per mounted local volume as
// "/storage/<n>" and one per temperature-reporting drive as "/nvme/<n>" or
// "/hdd/<n>".
type StorageCollector struct {
	thermal *ThermalReader
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	last   map[string]disk.IOCountersStat
	lastAt time.Time
}

// NewStorageCollector creates a new storage collector.
func NewStorageCollector(thermal *ThermalReader, logger *zap.Logger) *StorageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageCollector{
		thermal: thermal,
		logger:  logger,
		now:     time.Now,
	}
}

// Name returns the collector identifier.
func (c *StorageCollector) Name() string { return "storage" }

// Provides returns the hardware types this collector reports.
func (c *StorageCollector) Provides() []models.HardwareType {
	return []models.HardwareType{models.HardwareStorage}
}

// volume is one mounted partition worth reporting.
type volume struct {
	device string
	mount  string
	usage  *disk.UsageStat
}

// Collect gathers usage for all local volumes. Inaccessible partitions are
// silently skipped. Rates need two refreshes; the first reports them
// without a value.
func (c *StorageCollector) Collect(ctx context.Context) ([]models.Device, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	var volumes []volume
	seen := make(map[string]bool)
	for _, p := range partitions {
		if pseudoFSTypes[p.Fstype] || isSystemMount(p.Mountpoint) || seen[p.Device] {
			c.logger.Debug("Skipping volume",
				zap.String("mount", p.Mountpoint),
				zap.String("fstype", p.Fstype))
			continue
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		seen[p.Device] = true
		volumes = append(volumes, volume{device: p.Device, mount: p.Mountpoint, usage: usage})
	}

	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		c.logger.Debug("Disk IO counters not available", zap.Error(err))
		counters = nil
	}

	c.mu.Lock()
	now := c.now()
	elapsed := now.Sub(c.lastAt)
	prev := c.last
	c.last = counters
	c.lastAt = now
	c.mu.Unlock()

	devices := make([]models.Device, 0, len(volumes))
	for i, v := range volumes {
		devices = append(devices, buildVolumeDevice(i, v, counters, prev, elapsed))
	}

	if c.thermal != nil {
		drives, _ := c.thermal.Of(ctx, chipStorage)
		devices = append(devices, buildDriveDevices(drives)...)
	}
	return devices, nil
}

func buildVolumeDevice(i int, v volume, cur, prev map[string]disk.IOCountersStat, elapsed time.Duration) models.Device {
	id := fmt.Sprintf("/storage/%d", i)
	d := models.Device{
		Identifier: id,
		Name:       fmt.Sprintf("%s (%s)", v.mount, v.device),
		Type:       models.HardwareStorage,
		Sensors: []models.RawSensor{
			{Identifier: id + "/load/0", Name: "Used Space", Kind: models.KindLoad, Value: models.Float(v.usage.UsedPercent)},
			{Identifier: id + "/data/0", Name: "Used", Kind: models.KindData, Value: models.Float(float64(v.usage.Used) / bytesPerGB)},
			{Identifier: id + "/data/1", Name: "Free", Kind: models.KindData, Value: models.Float(float64(v.usage.Free) / bytesPerGB)},
		},
	}

	key := filepath.Base(v.device)
	now, ok := cur[key]
	if !ok {
		return d
	}
	var read, write *float64
	if before, ok := prev[key]; ok {
		read = models.Float(rate(before.ReadBytes, now.ReadBytes, elapsed))
		write = models.Float(rate(before.WriteBytes, now.WriteBytes, elapsed))
	}
	d.Sensors = append(d.Sensors,
		models.RawSensor{Identifier: id + "/throughput/0", Name: "Read Rate", Kind: models.KindThroughput, Value: read},
		models.RawSensor{Identifier: id + "/throughput/1", Name: "Write Rate", Kind: models.KindThroughput, Value: write},
	)
	return d
}

func buildDriveDevices(drives []chip) []models.Device {
	var out []models.Device
	counters := make(map[string]int)
	for _, ch := range drives {
		prefix := "nvme"
		if ch.Name != "nvme" {
			prefix = "hdd"
		}
		n := counters[prefix]
		counters[prefix]++

		id := fmt.Sprintf("/%s/%d", prefix, n)
		d := models.Device{
			Identifier: id,
			Name:       fmt.Sprintf("%s #%d", ch.Friendly, n+1),
			Type:       models.HardwareStorage,
		}
		for j, r := range ch.Readings {
			d.Sensors = append(d.Sensors, models.RawSensor{
				Identifier: fmt.Sprintf("%s/temperature/%d", id, j),
				Name:       readingName(r.Label),
				Kind:       models.KindTemperature,
				Value:      models.Float(r.Value),
			})
		}
		out = append(out, d)
	}
	return out
}

// rate returns bytes per second between two counter samples. A counter
// that went backwards (device reset, wrap) yields zero.
func rate(before, after uint64, elapsed time.Duration) float64 {
	if after < before || elapsed <= 0 {
		return 0
	}
	return float64(after-before) / elapsed.Seconds()
}

// IsAvailable returns true — disk metrics are available on all platforms.
func (c *StorageCollector) IsAvailable() bool { return true }
