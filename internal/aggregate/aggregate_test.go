package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Guliveer/spectrometer/internal/collector/collectortest"
	"github.com/Guliveer/spectrometer/internal/models"
)

func fullProvider() *collectortest.Provider {
	p := collectortest.New()
	p.SetDevices(models.HardwareMotherboard, models.Device{
		Identifier: "/motherboard",
		Name:       "X570",
		Type:       models.HardwareMotherboard,
		SubDevices: []models.Device{
			collectortest.Device("/lpc/nct6798d", "Nuvoton NCT6798D", models.HardwareMotherboard,
				collectortest.Sensor("/lpc/nct6798d/temperature/0", "System", models.KindTemperature, 35)),
		},
	})
	p.SetDevices(models.HardwareCPU, collectortest.Device("/cpu/0", "Ryzen 7", models.HardwareCPU,
		collectortest.Sensor("/cpu/0/load/0", "CPU Total", models.KindLoad, 12),
		collectortest.Sensor("/cpu/0/temperature/2", "Core (Tctl/Tdie)", models.KindTemperature, 48),
	))
	p.SetDevices(models.HardwareGPUAmd, collectortest.Device("/gpu-amd/0", "Radeon", models.HardwareGPUAmd,
		collectortest.Sensor("/gpu-amd/0/temperature/0", "GPU Core", models.KindTemperature, 50)))
	p.SetDevices(models.HardwareGPUIntel, collectortest.Device("/gpu-intel/0", "UHD 770", models.HardwareGPUIntel,
		collectortest.Sensor("/gpu-intel/0/temperature/0", "GPU Core", models.KindTemperature, 40)))
	p.SetDevices(models.HardwareMemory, collectortest.Device("/ram", "Generic Memory", models.HardwareMemory,
		collectortest.Sensor("/ram/load/0", "Memory", models.KindLoad, 40)))
	p.SetDevices(models.HardwareStorage,
		collectortest.Device("/nvme/0", "Samsung 980", models.HardwareStorage,
			collectortest.Sensor("/nvme/0/temperature/0", "Temperature", models.KindTemperature, 41)),
		collectortest.Device("/nvme/1", "WD SN850", models.HardwareStorage,
			collectortest.Sensor("/nvme/1/temperature/0", "Temperature", models.KindTemperature, 43)),
	)
	p.SetDevices(models.HardwareNetwork, collectortest.Device("/nic/0", "eth0", models.HardwareNetwork,
		collectortest.Sensor("/nic/0/throughput/8", "Download Speed", models.KindThroughput, 1024)))
	p.SetDevices(models.HardwareController, collectortest.Device("/ec/thinkpad", "ThinkPad EC", models.HardwareController,
		collectortest.Sensor("/ec/thinkpad/temperature/0", "EC", models.KindTemperature, 45)))
	p.SetDevices(models.HardwarePSU, collectortest.Device("/psu/0", "Corsair HX", models.HardwarePSU,
		collectortest.Sensor("/psu/0/power/0", "Total", models.KindPower, 210)))
	return p
}

func TestResolveGPU_Preference(t *testing.T) {
	ctx := context.Background()

	p := fullProvider()
	assert.Equal(t, models.HardwareGPUAmd, New(p, zaptest.NewLogger(t)).ResolveGPU(ctx))

	p.SetDevices(models.HardwareGPUNvidia, collectortest.Device("/gpu-nvidia/0", "RTX 4080", models.HardwareGPUNvidia))
	assert.Equal(t, models.HardwareGPUNvidia, New(p, zaptest.NewLogger(t)).ResolveGPU(ctx))

	empty := collectortest.New()
	assert.Equal(t, models.HardwareGPUIntel, New(empty, zaptest.NewLogger(t)).ResolveGPU(ctx))
}

func TestResolveGPU_CachesPositiveMatch(t *testing.T) {
	ctx := context.Background()
	p := fullProvider()
	a := New(p, zaptest.NewLogger(t))
	require.Equal(t, models.HardwareGPUAmd, a.ResolveGPU(ctx))

	p.SetDevices(models.HardwareGPUNvidia, collectortest.Device("/gpu-nvidia/0", "RTX 4080", models.HardwareGPUNvidia))
	assert.Equal(t, models.HardwareGPUAmd, a.ResolveGPU(ctx))
}

func TestResolveGPU_FailedProbeNotCached(t *testing.T) {
	ctx := context.Background()

	// NVIDIA cannot be probed while AMD is present: the GPU category goes
	// stale instead of switching to AMD for good.
	p := fullProvider()
	p.SetDevices(models.HardwareGPUNvidia, collectortest.Device("/gpu-nvidia/0", "RTX 4080", models.HardwareGPUNvidia,
		collectortest.Sensor("/gpu-nvidia/0/temperature/0", "GPU Core", models.KindTemperature, 55)))
	p.Fail(models.HardwareGPUNvidia, nil)
	a := New(p, zaptest.NewLogger(t))
	assert.Equal(t, models.HardwareGPUNvidia, a.ResolveGPU(ctx))
	_, err := a.CollectByCategory(ctx, models.CategoryGPU)
	assert.ErrorIs(t, err, collectortest.ErrInjected)

	p.Recover(models.HardwareGPUNvidia)
	records, err := a.CollectByCategory(ctx, models.CategoryGPU)
	require.NoError(t, err)
	assert.Equal(t, []string{"/gpu-nvidia/0/temperature/0"}, records.Identifiers())
	assert.Equal(t, models.HardwareGPUNvidia, a.ResolveGPU(ctx))

	// A failed NVIDIA probe that recovers with no devices falls through to AMD.
	bp := collectortest.New()
	bp.Fail(models.HardwareGPUNvidia, nil)
	bp.SetDevices(models.HardwareGPUAmd, collectortest.Device("/gpu-amd/0", "Radeon", models.HardwareGPUAmd))
	b := New(bp, zaptest.NewLogger(t))
	assert.Equal(t, models.HardwareGPUNvidia, b.ResolveGPU(ctx))
	bp.Recover(models.HardwareGPUNvidia)
	assert.Equal(t, models.HardwareGPUAmd, b.ResolveGPU(ctx))

	// An all-empty probe is not cached either.
	empty := collectortest.New()
	c := New(empty, zaptest.NewLogger(t))
	assert.Equal(t, models.HardwareGPUIntel, c.ResolveGPU(ctx))
	empty.SetDevices(models.HardwareGPUNvidia, collectortest.Device("/gpu-nvidia/0", "RTX", models.HardwareGPUNvidia))
	assert.Equal(t, models.HardwareGPUNvidia, c.ResolveGPU(ctx))
}

func TestCollectByCategory_FlattensSubDevices(t *testing.T) {
	a := New(fullProvider(), zaptest.NewLogger(t))
	records, err := a.CollectByCategory(context.Background(), models.CategoryMotherboard)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/lpc/nct6798d/temperature/0", records[0].Identifier)
	assert.Equal(t, "Nuvoton NCT6798D", records[0].Hardware)
	assert.Equal(t, models.CategoryMotherboard, records[0].Category)
}

func TestCollectByCategory_FreshRecordsAreUnflagged(t *testing.T) {
	a := New(fullProvider(), zaptest.NewLogger(t))
	records, err := a.CollectByCategory(context.Background(), models.CategoryCPU)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.False(t, r.IsPinned)
		assert.False(t, r.IsGraphEnabled)
		assert.Equal(t, models.CategoryCPU, r.Category)
		assert.Equal(t, "Ryzen 7", r.Hardware)
	}
}

func TestCollectByCategory_GPUUsesResolvedVendor(t *testing.T) {
	a := New(fullProvider(), zaptest.NewLogger(t))
	records, err := a.CollectByCategory(context.Background(), models.CategoryGPU)
	require.NoError(t, err)
	assert.Equal(t, []string{"/gpu-amd/0/temperature/0"}, records.Identifiers())
}

func TestCollectByCategory_ProviderError(t *testing.T) {
	p := fullProvider()
	p.Fail(models.HardwareStorage, nil)
	a := New(p, zaptest.NewLogger(t))
	_, err := a.CollectByCategory(context.Background(), models.CategoryStorage)
	require.Error(t, err)
	assert.ErrorIs(t, err, collectortest.ErrInjected)
}

func TestCollectAll_CategoryCompleteness(t *testing.T) {
	ctx := context.Background()
	a := New(fullProvider(), zaptest.NewLogger(t))

	all, err := a.CollectAll(ctx)
	require.NoError(t, err)

	var expected models.Collection
	for _, c := range models.Categories {
		part, err := a.CollectByCategory(ctx, c)
		require.NoError(t, err)
		expected = append(expected, part...)
	}
	assert.Equal(t, expected, all)

	assert.Equal(t, []string{
		"/lpc/nct6798d/temperature/0",
		"/cpu/0/load/0",
		"/cpu/0/temperature/2",
		"/gpu-amd/0/temperature/0",
		"/ram/load/0",
		"/nvme/0/temperature/0",
		"/nvme/1/temperature/0",
		"/nic/0/throughput/8",
		"/ec/thinkpad/temperature/0",
		"/psu/0/power/0",
	}, all.Identifiers())
}

func TestCollectAll_SkipsFailedCategories(t *testing.T) {
	p := fullProvider()
	p.Fail(models.HardwareNetwork, nil)
	a := New(p, zaptest.NewLogger(t))

	all, err := a.CollectAll(context.Background())
	require.Error(t, err)
	_, found := all.Find("/nic/0/throughput/8")
	assert.False(t, found)
	_, found = all.Find("/cpu/0/load/0")
	assert.True(t, found)
}
