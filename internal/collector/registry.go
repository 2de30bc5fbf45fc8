package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Guliveer/spectrometer/internal/models"
)

// DefaultRefreshTimeout bounds one Refresh when none is configured.
const DefaultRefreshTimeout = 1500 * time.Millisecond

// extremum is the running min/max of one sensor.
type extremum struct {
	min, max float64
}

// Registry manages all registered collectors and orchestrates concurrent
// collection. It implements the sensor provider used by the aggregator.
type Registry struct {
	collectors []Collector
	logger     *zap.Logger
	timeout    time.Duration

	mu      sync.RWMutex
	active  []Collector
	devices map[models.HardwareType][]models.Device
	stale   map[models.HardwareType]error
	extrema map[string]extremum
	open    bool
	closed  bool
}

// NewRegistry creates a new collector registry with the given logger.
// A non-positive timeout uses DefaultRefreshTimeout.
func NewRegistry(logger *zap.Logger, timeout time.Duration) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Registry{
		collectors: make([]Collector, 0),
		logger:     logger,
		timeout:    timeout,
		devices:    make(map[models.HardwareType][]models.Device),
		stale:      make(map[models.HardwareType]error),
		extrema:    make(map[string]extremum),
	}
}

// Register adds a collector if it's available on the current platform.
// Unavailable collectors are logged and skipped.
func (r *Registry) Register(c Collector) {
	if c.IsAvailable() {
		r.collectors = append(r.collectors, c)
		r.logger.Info("Registered collector", zap.String("name", c.Name()))
	} else {
		r.logger.Warn("Collector not available, skipping", zap.String("name", c.Name()))
	}
}

// Collectors returns a copy of all registered collectors.
func (r *Registry) Collectors() []Collector {
	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}

// Open opens every collector that holds a handle. Collectors that fail to
// open are logged and left out. ErrNoHardwareAccess is returned when no
// collector is left.
func (r *Registry) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrNotOpen
	}
	if r.open {
		return nil
	}

	active := make([]Collector, 0, len(r.collectors))
	for _, c := range r.collectors {
		if o, ok := c.(Opener); ok {
			if err := o.Open(ctx); err != nil {
				r.logger.Warn("Collector failed to open, skipping",
					zap.String("name", c.Name()),
					zap.Error(err))
				continue
			}
		}
		active = append(active, c)
	}

	if len(active) == 0 {
		return ErrNoHardwareAccess
	}
	r.active = active
	r.open = true
	return nil
}

// result is one collector's outcome in a refresh.
type result struct {
	collector Collector
	devices   []models.Device
	err       error
}

// Refresh runs all active collectors concurrently under the registry
// timeout. A failed collector marks its hardware types stale until the next
// successful refresh. The returned error combines every collector failure.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	if !r.open || r.closed {
		r.mu.RUnlock()
		return ErrNotOpen
	}
	active := r.active
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make([]result, len(active))
	var wg sync.WaitGroup
	for i, c := range active {
		wg.Add(1)
		go func(i int, col Collector) {
			defer wg.Done()
			devices, err := col.Collect(ctx)
			results[i] = result{collector: col, devices: devices, err: err}
		}(i, c)
	}
	wg.Wait()

	devices := make(map[models.HardwareType][]models.Device)
	stale := make(map[models.HardwareType]error)
	var errs error

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range results {
		name := res.collector.Name()
		if res.err != nil {
			err := fmt.Errorf("collector %s: %w", name, res.err)
			errs = multierr.Append(errs, err)
			for _, hw := range res.collector.Provides() {
				stale[hw] = err
			}
			r.logger.Warn("Collection failed",
				zap.String("collector", name),
				zap.Error(res.err))
			continue
		}
		for _, d := range res.devices {
			r.track(&d)
			devices[d.Type] = append(devices[d.Type], d)
		}
	}

	r.devices = devices
	r.stale = stale
	return errs
}

// track updates the running extrema for every sensor in d and fills in Min
// and Max where the collector left them empty.
func (r *Registry) track(d *models.Device) {
	sensors := make([]models.RawSensor, len(d.Sensors))
	copy(sensors, d.Sensors)
	for i := range sensors {
		s := &sensors[i]
		if s.Value == nil {
			continue
		}
		v := *s.Value
		e, ok := r.extrema[s.Identifier]
		if !ok {
			e = extremum{min: v, max: v}
		}
		if v < e.min {
			e.min = v
		}
		if v > e.max {
			e.max = v
		}
		r.extrema[s.Identifier] = e
		if s.Min == nil {
			s.Min = models.Float(e.min)
		}
		if s.Max == nil {
			s.Max = models.Float(e.max)
		}
	}
	d.Sensors = sensors

	subs := make([]models.Device, len(d.SubDevices))
	copy(subs, d.SubDevices)
	for i := range subs {
		r.track(&subs[i])
	}
	d.SubDevices = subs
}

// ListDevicesByCategory returns the devices of the given hardware type as of
// the last refresh.
func (r *Registry) ListDevicesByCategory(ctx context.Context, hw models.HardwareType) ([]models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.open || r.closed {
		return nil, ErrNotOpen
	}
	if err, ok := r.stale[hw]; ok {
		return nil, fmt.Errorf("%w: %v", ErrStale, err)
	}
	out := make([]models.Device, len(r.devices[hw]))
	copy(out, r.devices[hw])
	return out, nil
}

// Close releases every opened collector. Calling Close more than once is a
// no-op.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs error
	for _, c := range r.active {
		if o, ok := c.(Opener); ok {
			if err := o.Close(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("closing %s: %w", c.Name(), err))
			}
		}
	}
	r.active = nil
	r.devices = make(map[models.HardwareType][]models.Device)
	return errs
}
