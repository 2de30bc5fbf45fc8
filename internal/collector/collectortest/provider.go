// Package collectortest provides a scriptable in-memory sensor provider for
// tests of the aggregation engine and the scheduler.
package collectortest

import (
	"context"
	"errors"
	"sync"

	"github.com/Guliveer/spectrometer/internal/models"
)

// ErrInjected is returned by operations a test marked as failing without a
// specific error.
var ErrInjected = errors.New("collectortest: injected failure")

// Provider is a fake SensorProvider. All methods are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	devices map[models.HardwareType][]models.Device
	failing map[models.HardwareType]error

	openErr    error
	refreshErr error

	opened    bool
	closed    int
	refreshes int
	inRefresh int
	overlap   bool

	onRefresh func(tick int)
}

// New returns an empty provider.
func New() *Provider {
	return &Provider{
		devices: make(map[models.HardwareType][]models.Device),
		failing: make(map[models.HardwareType]error),
	}
}

// SetDevices replaces the devices reported for hw.
func (p *Provider) SetDevices(hw models.HardwareType, devices ...models.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices[hw] = devices
}

// Fail makes ListDevicesByCategory(hw) return err until Recover is called.
func (p *Provider) Fail(hw models.HardwareType, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	p.failing[hw] = err
}

// Recover clears a failure set with Fail.
func (p *Provider) Recover(hw models.HardwareType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failing, hw)
}

// FailOpen makes Open return err.
func (p *Provider) FailOpen(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openErr = err
}

// FailRefresh makes Refresh return err. Pass nil to clear.
func (p *Provider) FailRefresh(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshErr = err
}

// OnRefresh registers a hook run at the start of every Refresh with the
// 1-based refresh count. Tests use it to change readings between ticks.
func (p *Provider) OnRefresh(fn func(tick int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRefresh = fn
}

// Open implements the provider contract.
func (p *Provider) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return p.openErr
	}
	p.opened = true
	return nil
}

// Refresh implements the provider contract.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.refreshes++
	p.inRefresh++
	if p.inRefresh > 1 {
		p.overlap = true
	}
	tick := p.refreshes
	hook := p.onRefresh
	err := p.refreshErr
	p.mu.Unlock()

	if hook != nil {
		hook(tick)
	}

	p.mu.Lock()
	p.inRefresh--
	p.mu.Unlock()
	return err
}

// ListDevicesByCategory implements the provider contract.
func (p *Provider) ListDevicesByCategory(ctx context.Context, hw models.HardwareType) ([]models.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failing[hw]; ok {
		return nil, err
	}
	out := make([]models.Device, len(p.devices[hw]))
	copy(out, p.devices[hw])
	return out, nil
}

// Close implements the provider contract.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// Opened reports whether Open succeeded.
func (p *Provider) Opened() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

// Closed returns how many times Close was called.
func (p *Provider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Refreshes returns how many times Refresh was called.
func (p *Provider) Refreshes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshes
}

// Overlapped reports whether two Refresh calls ever ran at the same time.
func (p *Provider) Overlapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlap
}

// Device builds a device with the given sensors.
func Device(id, name string, hw models.HardwareType, sensors ...models.RawSensor) models.Device {
	return models.Device{
		Identifier: id,
		Name:       name,
		Type:       hw,
		Sensors:    sensors,
	}
}

// Sensor builds a raw sensor whose min and max equal its value.
func Sensor(id, name string, kind models.SensorKind, value float64) models.RawSensor {
	return models.RawSensor{
		Identifier: id,
		Name:       name,
		Kind:       kind,
		Value:      models.Float(value),
		Min:        models.Float(value),
		Max:        models.Float(value),
	}
}
