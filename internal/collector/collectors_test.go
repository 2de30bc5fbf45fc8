package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Guliveer/spectrometer/internal/models"
)

func TestSplitSensorKey(t *testing.T) {
	tests := []struct {
		key, chip, label string
	}{
		{"coretemp_package_id_0", "coretemp", "package_id_0"},
		{"coretemp_core_0_input", "coretemp", "core_0"},
		{"nvme_composite", "nvme", "composite"},
		{"acpitz", "acpitz", "temp"},
		{"dell_smm_cpu", "dell_smm", "cpu"},
		{"asus_ec_t_sensor", "asus_ec", "t_sensor"},
		{"k10temp_Tctl", "k10temp", "tctl"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			chip, label := splitSensorKey(tt.key)
			assert.Equal(t, tt.chip, chip)
			assert.Equal(t, tt.label, label)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		chip  string
		class chipClass
	}{
		{"k10temp", chipCPU},
		{"amdgpu", chipGPUAmd},
		{"i915", chipGPUIntel},
		{"nvme", chipStorage},
		{"drivetemp", chipStorage},
		{"nct6798", chipMotherboard},
		{"asus_ec", chipController},
		{"asus", chipMotherboard},
		{"thinkpad", chipController},
		{"iwlwifi_1", chipUnknown},
	}
	for _, tt := range tests {
		class, _ := classify(tt.chip)
		assert.Equal(t, tt.class, class, tt.chip)
	}
}

func TestGroupChips_SplitsRepeatedChipsIntoInstances(t *testing.T) {
	chips := groupChips([]host.TemperatureStat{
		{SensorKey: "nvme_composite", Temperature: 41},
		{SensorKey: "nvme_sensor_1", Temperature: 39},
		{SensorKey: "nvme_composite", Temperature: 45},
		{SensorKey: "coretemp_package_id_0", Temperature: 55},
		{SensorKey: "acpitz", Temperature: 0},
		{SensorKey: "amdgpu_edge", Temperature: 999},
	})

	require.Len(t, chips, 3)
	assert.Equal(t, "nvme", chips[0].Name)
	assert.Equal(t, 0, chips[0].Instance)
	assert.Len(t, chips[0].Readings, 2)
	assert.Equal(t, "nvme", chips[1].Name)
	assert.Equal(t, 1, chips[1].Instance)
	assert.Equal(t, 45.0, chips[1].Readings[0].Value)
	assert.Equal(t, "coretemp", chips[2].Name)
	assert.Equal(t, chipCPU, chips[2].Class)
}

func TestThermalReader_CachesWithinTTL(t *testing.T) {
	reads := 0
	now := time.Unix(1_700_000_000, 0)
	r := NewThermalReader(time.Second, zaptest.NewLogger(t))
	r.now = func() time.Time { return now }
	r.read = func(ctx context.Context) ([]host.TemperatureStat, error) {
		reads++
		return []host.TemperatureStat{{SensorKey: "k10temp_tctl", Temperature: 50}}, nil
	}

	ctx := context.Background()
	_, err := r.Chips(ctx)
	require.NoError(t, err)
	_, err = r.Of(ctx, chipCPU)
	require.NoError(t, err)
	assert.Equal(t, 1, reads)

	now = now.Add(2 * time.Second)
	_, err = r.Chips(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reads)
}

func TestThermalReader_PartialResultsKept(t *testing.T) {
	r := NewThermalReader(0, nil)
	r.read = func(ctx context.Context) ([]host.TemperatureStat, error) {
		return []host.TemperatureStat{{SensorKey: "nvme_composite", Temperature: 40}}, errors.New("warnings")
	}
	chips, err := r.Chips(context.Background())
	require.NoError(t, err)
	assert.Len(t, chips, 1)

	r2 := NewThermalReader(0, nil)
	r2.read = func(ctx context.Context) ([]host.TemperatureStat, error) {
		return nil, errors.New("not implemented")
	}
	_, err = r2.Chips(context.Background())
	assert.Error(t, err)
}

func TestReadingName(t *testing.T) {
	assert.Equal(t, "Package", readingName("package_id_0"))
	assert.Equal(t, "Core (Tctl/Tdie)", readingName("tctl"))
	assert.Equal(t, "Core 0", readingName("core_0"))
	assert.Equal(t, "Temperature", readingName("temp"))
	assert.Equal(t, "GPU Core", gpuReadingName("edge"))
	assert.Equal(t, "GPU Hot Spot", gpuReadingName("junction"))
}

func TestBuildCPUDevice(t *testing.T) {
	d := buildCPUDevice("Ryzen 7 5800X", []float64{12.5}, []float64{10, 15}, []float64{3600, 0}, []chip{{
		Name:     "k10temp",
		Class:    chipCPU,
		Readings: []chipReading{{Label: "tctl", Value: 48}},
	}})

	assert.Equal(t, "/cpu/0", d.Identifier)
	assert.Equal(t, models.HardwareCPU, d.Type)

	ids := make([]string, 0, len(d.Sensors))
	for _, s := range d.Sensors {
		ids = append(ids, s.Identifier)
	}
	assert.Equal(t, []string{
		"/cpu/0/load/0",
		"/cpu/0/load/1",
		"/cpu/0/load/2",
		"/cpu/0/clock/1",
		"/cpu/0/temperature/0",
	}, ids)
	assert.Equal(t, "Core (Tctl/Tdie)", d.Sensors[4].Name)
}

func TestBuildMemoryDevice(t *testing.T) {
	v := &mem.VirtualMemoryStat{Used: 8 << 30, Available: 8 << 30, UsedPercent: 50}
	d := buildMemoryDevice(v, nil)
	require.Len(t, d.Sensors, 3)
	assert.Equal(t, 8.0, *d.Sensors[1].Value)

	d = buildMemoryDevice(v, &mem.SwapMemoryStat{Total: 4 << 30, Used: 1 << 30, Free: 3 << 30, UsedPercent: 25})
	require.Len(t, d.Sensors, 6)
	assert.Equal(t, "/ram/load/1", d.Sensors[3].Identifier)
	assert.Equal(t, 3.0, *d.Sensors[5].Value)
}

func TestBuildVolumeDevice_RatesNeedTwoSamples(t *testing.T) {
	v := volume{device: "/dev/nvme0n1p2", mount: "/", usage: &disk.UsageStat{UsedPercent: 42, Used: 10 << 30, Free: 20 << 30}}

	// The rate sensors exist from the first sample so their identifiers are
	// live before they have a value.
	d := buildVolumeDevice(0, v, map[string]disk.IOCountersStat{"nvme0n1p2": {ReadBytes: 100}}, nil, time.Second)
	require.Len(t, d.Sensors, 5)
	assert.Equal(t, "/storage/0/throughput/0", d.Sensors[3].Identifier)
	assert.Nil(t, d.Sensors[3].Value)
	assert.Nil(t, d.Sensors[4].Value)

	d = buildVolumeDevice(0, v, nil, nil, time.Second)
	assert.Len(t, d.Sensors, 3)

	prev := map[string]disk.IOCountersStat{"nvme0n1p2": {ReadBytes: 1000, WriteBytes: 0}}
	cur := map[string]disk.IOCountersStat{"nvme0n1p2": {ReadBytes: 3000, WriteBytes: 500}}
	d = buildVolumeDevice(0, v, cur, prev, 2*time.Second)
	require.Len(t, d.Sensors, 5)
	assert.Equal(t, "/storage/0/throughput/0", d.Sensors[3].Identifier)
	assert.Equal(t, 1000.0, *d.Sensors[3].Value)
	assert.Equal(t, 250.0, *d.Sensors[4].Value)
}

func TestRate(t *testing.T) {
	assert.Equal(t, 50.0, rate(100, 200, 2*time.Second))
	assert.Zero(t, rate(200, 100, time.Second))
	assert.Zero(t, rate(100, 200, 0))
}

func TestBuildDriveDevices(t *testing.T) {
	devices := buildDriveDevices([]chip{
		{Name: "nvme", Friendly: "NVMe SSD", Readings: []chipReading{{Label: "composite", Value: 40}}},
		{Name: "nvme", Instance: 1, Friendly: "NVMe SSD", Readings: []chipReading{{Label: "composite", Value: 42}}},
		{Name: "drivetemp", Friendly: "HDD/SSD", Readings: []chipReading{{Label: "temp", Value: 35}}},
	})
	require.Len(t, devices, 3)
	assert.Equal(t, "/nvme/0", devices[0].Identifier)
	assert.Equal(t, "/nvme/1", devices[1].Identifier)
	assert.Equal(t, "/hdd/0", devices[2].Identifier)
	assert.Equal(t, "/nvme/1/temperature/0", devices[1].Sensors[0].Identifier)
	assert.Equal(t, "NVMe SSD #2", devices[1].Name)
}

func TestEligibleInterfaces(t *testing.T) {
	names := eligibleInterfaces(gnet.InterfaceStatList{
		{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: gnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
		{Name: "wlan0", Flags: []string{"up"}, Addrs: gnet.InterfaceAddrList{{Addr: "192.168.1.5/24"}}},
		{Name: "docker0", Flags: []string{"up"}},
		{Name: "eth1", Flags: []string{"broadcast"}},
		{Name: "eth0", Flags: []string{"up"}, Addrs: gnet.InterfaceAddrList{{Addr: "10.0.0.2/24"}}},
	})
	assert.Equal(t, []string{"eth0", "wlan0", "docker0"}, names)
}

func TestBuildNICDevice(t *testing.T) {
	cur := gnet.IOCountersStat{Name: "eth0", BytesSent: 4000, BytesRecv: 9000}
	d := buildNICDevice(0, cur, nil, time.Second)
	require.Len(t, d.Sensors, 4)
	assert.Equal(t, "/nic/0/throughput/8", d.Sensors[3].Identifier)
	assert.Nil(t, d.Sensors[2].Value)
	assert.Nil(t, d.Sensors[3].Value)

	d = buildNICDevice(0, cur, &gnet.IOCountersStat{BytesSent: 2000, BytesRecv: 1000}, 2*time.Second)
	require.Len(t, d.Sensors, 4)
	assert.Equal(t, "/nic/0/throughput/7", d.Sensors[2].Identifier)
	assert.Equal(t, 1000.0, *d.Sensors[2].Value)
	assert.Equal(t, "/nic/0/throughput/8", d.Sensors[3].Identifier)
	assert.Equal(t, 4000.0, *d.Sensors[3].Value)
}

func TestBuildHwmonDevices(t *testing.T) {
	devices := buildHwmonDevices([]chip{
		{Name: "amdgpu", Class: chipGPUAmd, Friendly: "AMD Radeon", Readings: []chipReading{{Label: "edge", Value: 50}, {Label: "junction", Value: 60}}},
		{Name: "nct6798", Class: chipMotherboard, Friendly: "Nuvoton NCT", Readings: []chipReading{{Label: "systin", Value: 33}}},
		{Name: "acpitz", Class: chipMotherboard, Friendly: "ACPI Thermal Zone", Readings: []chipReading{{Label: "temp", Value: 28}}},
		{Name: "thinkpad", Class: chipController, Friendly: "ThinkPad EC", Readings: []chipReading{{Label: "cpu", Value: 45}}},
		{Name: "k10temp", Class: chipCPU, Readings: []chipReading{{Label: "tctl", Value: 48}}},
	}, func() string { return "ASUS ROG STRIX X570-E" })

	require.Len(t, devices, 3)

	assert.Equal(t, "/gpu-amd/0", devices[0].Identifier)
	assert.Equal(t, models.HardwareGPUAmd, devices[0].Type)
	assert.Equal(t, "GPU Core", devices[0].Sensors[0].Name)

	assert.Equal(t, "/ec/thinkpad", devices[1].Identifier)
	assert.Equal(t, models.HardwareController, devices[1].Type)

	board := devices[2]
	assert.Equal(t, "/motherboard", board.Identifier)
	assert.Equal(t, "ASUS ROG STRIX X570-E", board.Name)
	assert.Empty(t, board.Sensors)
	require.Len(t, board.SubDevices, 2)
	assert.Equal(t, "/lpc/nct6798/temperature/0", board.SubDevices[0].Sensors[0].Identifier)
	assert.Equal(t, "/lpc/acpitz", board.SubDevices[1].Identifier)
}

type fakeNVML struct {
	devices  []nvml.Device
	initErr  error
	shutdown int
}

func (f *fakeNVML) Initialize() error { return f.initErr }
func (f *fakeNVML) Shutdown() error {
	f.shutdown++
	return nil
}
func (f *fakeNVML) GetDeviceCount() (int, error)             { return len(f.devices), nil }
func (f *fakeNVML) GetDevice(index int) (nvml.Device, error) { return f.devices[index], nil }

type fakeGPU struct {
	nvml.Device
	name      string
	supported bool
}

func (g fakeGPU) ret() nvml.Return {
	if g.supported {
		return nvml.SUCCESS
	}
	return nvml.ERROR_NOT_SUPPORTED
}

func (g fakeGPU) GetName() (string, nvml.Return) { return g.name, nvml.SUCCESS }
func (g fakeGPU) GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return) {
	return 64, g.ret()
}
func (g fakeGPU) GetUtilizationRates() (nvml.Utilization, nvml.Return) {
	return nvml.Utilization{Gpu: 87, Memory: 30}, g.ret()
}
func (g fakeGPU) GetClockInfo(t nvml.ClockType) (uint32, nvml.Return) {
	if t == nvml.CLOCK_MEM {
		return 10501, g.ret()
	}
	return 2520, g.ret()
}
func (g fakeGPU) GetPowerUsage() (uint32, nvml.Return) { return 215500, g.ret() }
func (g fakeGPU) GetFanSpeed() (uint32, nvml.Return)   { return 55, g.ret() }
func (g fakeGPU) GetMemoryInfo() (nvml.Memory, nvml.Return) {
	return nvml.Memory{Total: 16 << 30, Free: 12 << 30, Used: 4 << 30}, g.ret()
}

func TestNVIDIACollector(t *testing.T) {
	ctx := context.Background()
	lib := &fakeNVML{devices: []nvml.Device{
		fakeGPU{name: "NVIDIA GeForce RTX 4080", supported: true},
		fakeGPU{name: "NVIDIA T400"},
	}}
	c := newNVIDIACollector(lib, zaptest.NewLogger(t))
	require.NoError(t, c.Open(ctx))

	devices, err := c.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	full := devices[0]
	assert.Equal(t, "/gpu-nvidia/0", full.Identifier)
	assert.Equal(t, "NVIDIA GeForce RTX 4080", full.Name)
	require.Len(t, full.Sensors, 10)

	byID := make(map[string]float64)
	for _, s := range full.Sensors {
		byID[s.Identifier] = *s.Value
	}
	assert.Equal(t, 64.0, byID["/gpu-nvidia/0/temperature/0"])
	assert.Equal(t, 87.0, byID["/gpu-nvidia/0/load/0"])
	assert.Equal(t, 215.5, byID["/gpu-nvidia/0/power/0"])
	assert.Equal(t, 4096.0, byID["/gpu-nvidia/0/smalldata/1"])

	assert.Equal(t, "/gpu-nvidia/1", devices[1].Identifier)
	assert.Empty(t, devices[1].Sensors)

	require.NoError(t, c.Close())
	assert.Equal(t, 1, lib.shutdown)
}

func TestNVIDIACollector_OpenFails(t *testing.T) {
	lib := &fakeNVML{initErr: ErrNVMLFailure}
	c := newNVIDIACollector(lib, nil)
	assert.ErrorIs(t, c.Open(context.Background()), ErrNVMLFailure)
}
