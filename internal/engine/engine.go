// Package engine runs the poll cycle: refresh the provider, aggregate raw
// devices per category, reconcile with the previous collections, keep the
// persisted selection in sync, and publish an immutable snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Guliveer/spectrometer/internal/aggregate"
	"github.com/Guliveer/spectrometer/internal/history"
	"github.com/Guliveer/spectrometer/internal/models"
	"github.com/Guliveer/spectrometer/internal/reconcile"
	"github.com/Guliveer/spectrometer/internal/selection"
)

var (
	// ErrUnknownSensor is returned by user actions on an identifier that is
	// not in the current collections.
	ErrUnknownSensor = errors.New("unknown sensor")
	// ErrNoReadings is returned by Cycle when every category failed.
	ErrNoReadings = errors.New("no category could be collected")
)

// Provider is the sensor provider the engine owns for its lifetime.
type Provider interface {
	aggregate.Provider
	Open(ctx context.Context) error
	Refresh(ctx context.Context) error
	Close() error
}

// Recorder persists graph-enabled readings.
type Recorder interface {
	Record(c models.Collection, at time.Time) error
}

// Options carries the optional collaborators.
type Options struct {
	// History receives graph-enabled readings every cycle. Nil disables it.
	History *history.Store
	// Recorder receives graph-enabled readings every cycle. Nil disables it.
	Recorder Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine owns the provider handle and the working collections. All methods
// are safe for concurrent use; cycles and user actions are serialized.
type Engine struct {
	provider Provider
	agg      *aggregate.Aggregator
	store    selection.Store
	history  *history.Store
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	categories map[models.Category]models.Collection
	degraded   bool
	seq        uint64
	duplicates map[string]struct{}

	current   atomic.Pointer[Snapshot]
	subsMu    sync.RWMutex
	subs      map[int]func(*Snapshot)
	nextSub   int
	closeOnce sync.Once
	closeErr  error
}

// New creates an engine reading from provider and persisting the selection
// to store. The provider is not opened until Open is called.
func New(provider Provider, store selection.Store, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		provider:   provider,
		agg:        aggregate.New(provider, logger.Named("aggregate")),
		store:      store,
		history:    opts.History,
		recorder:   opts.Recorder,
		logger:     logger,
		now:        opts.Now,
		categories: make(map[models.Category]models.Collection, len(models.Categories)),
		duplicates: make(map[string]struct{}),
		subs:       make(map[int]func(*Snapshot)),
	}
	e.current.Store(newSnapshot(0, opts.Now(), false, nil))
	return e
}

// Open acquires the provider handle. When it fails the engine keeps running
// in degraded mode: every cycle publishes empty collections. The error is
// logged here and returned for the caller's information only.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	err := e.provider.Open(ctx)
	if err != nil {
		e.degraded = true
		e.logger.Error("Hardware access unavailable, running with empty collections", zap.Error(err))
	} else {
		e.logger.Info("Sensor provider opened")
	}
	snap := e.publish()
	e.mu.Unlock()

	e.notify(snap)
	if err != nil {
		return fmt.Errorf("opening sensor provider: %w", err)
	}
	return nil
}

// Degraded reports whether the provider could not be opened.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// Cycle runs one poll cycle. Categories whose readings could not be
// collected keep their previous records for this tick. The returned error
// combines the per-category failures; the cycle still publishes whatever
// was collected.
func (e *Engine) Cycle(ctx context.Context) error {
	snap, err := e.cycle(ctx)
	if snap != nil {
		e.notify(snap)
	}
	return err
}

func (e *Engine) cycle(ctx context.Context) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.degraded {
		return e.publish(), nil
	}

	start := e.now()
	if err := e.provider.Refresh(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn("Sensor refresh reported errors", zap.Error(err))
	}

	var errs error
	live := e.liveIdentifiers()
	next := make(map[models.Category]models.Collection, len(models.Categories))
	collected := 0
	for _, c := range models.Categories {
		incoming, err := e.agg.CollectByCategory(ctx, c)
		if err != nil {
			e.logger.Warn("Keeping previous readings for category",
				zap.Stringer("category", c),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("collecting %s: %w", c, err))
			next[c] = e.categories[c]
			continue
		}
		collected++
		e.logDuplicates(c, incoming)
		next[c] = reconcile.Merge(e.categories[c], incoming)
	}
	if collected == 0 {
		return nil, multierr.Append(ErrNoReadings, errs)
	}
	e.categories = next

	e.restoreSelection(live)
	all := e.allSensors()
	e.syncSelection(all)

	at := e.now()
	if e.history != nil {
		e.history.Record(all, at)
	}
	if e.recorder != nil {
		if err := e.recorder.Record(all, at); err != nil {
			e.logger.Warn("Failed to record samples", zap.Error(err))
		}
	}

	snap := e.publish()
	e.logger.Debug("Poll cycle completed",
		zap.Uint64("seq", snap.Seq),
		zap.Int("sensors", len(snap.AllSensors)),
		zap.Duration("took", at.Sub(start)))
	return snap, errs
}

// restoreSelection applies the persisted selection to every record that was
// not live in the previous cycle, so late sensors and returning hardware get
// their persisted flags the first time they are seen. Records that stay live
// are left to the user. Must be called with e.mu held.
func (e *Engine) restoreSelection(live map[string]struct{}) {
	all := e.allSensors()
	var fresh []int
	for i := range all {
		if _, ok := live[all[i].Identifier]; !ok {
			fresh = append(fresh, i)
		}
	}
	if len(fresh) == 0 {
		return
	}

	subset := make(models.Collection, len(fresh))
	for j, i := range fresh {
		subset[j] = all[i]
	}
	subset = selection.RestoreSelection(subset,
		e.store.PinnedSensorIdentifiers(),
		e.store.GraphedSensorIdentifiers())

	pinned, graphed := 0, 0
	for j, i := range fresh {
		all[i] = subset[j]
		if subset[j].IsPinned {
			pinned++
		}
		if subset[j].IsGraphEnabled {
			graphed++
		}
	}
	e.categories = byCategory(all)
	if pinned > 0 || graphed > 0 {
		e.logger.Info("Restored sensor selection",
			zap.Int("new_sensors", len(fresh)),
			zap.Int("pinned", pinned),
			zap.Int("graphed", graphed))
	}
}

// liveIdentifiers must be called with e.mu held.
func (e *Engine) liveIdentifiers() map[string]struct{} {
	live := make(map[string]struct{})
	for _, c := range models.Categories {
		for _, r := range e.categories[c] {
			live[r.Identifier] = struct{}{}
		}
	}
	return live
}

// syncSelection must be called with e.mu held.
func (e *Engine) syncSelection(all models.Collection) {
	if _, err := selection.SyncPinnedToStorage(all, e.store); err != nil {
		e.logger.Warn("Failed to persist pinned sensors", zap.Error(err))
	}
	if _, err := selection.SyncGraphedToStorage(all, e.store); err != nil {
		e.logger.Warn("Failed to persist graphed sensors", zap.Error(err))
	}
}

// logDuplicates reports each duplicated identifier once per engine lifetime.
func (e *Engine) logDuplicates(c models.Category, incoming models.Collection) {
	for _, id := range reconcile.Duplicates(incoming) {
		if _, seen := e.duplicates[id]; seen {
			continue
		}
		e.duplicates[id] = struct{}{}
		e.logger.Debug("Dropping duplicate sensor identifier",
			zap.Stringer("category", c),
			zap.String("identifier", id))
	}
}

// SetPinned pins or unpins a live sensor and persists the selection.
func (e *Engine) SetPinned(identifier string, pinned bool) error {
	return e.setFlag(identifier, func(r *models.SensorRecord) { r.IsPinned = pinned })
}

// SetGraphEnabled enables or disables the graph of a live sensor and
// persists the selection.
func (e *Engine) SetGraphEnabled(identifier string, enabled bool) error {
	return e.setFlag(identifier, func(r *models.SensorRecord) { r.IsGraphEnabled = enabled })
}

func (e *Engine) setFlag(identifier string, apply func(*models.SensorRecord)) error {
	e.mu.Lock()
	all := e.allSensors()
	idx := -1
	for i := range all {
		if all[i].Identifier == identifier {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSensor, identifier)
	}

	// allSensors returns a fresh slice, so editing it leaves the working
	// collections and every published snapshot untouched.
	apply(&all[idx])
	e.categories = byCategory(all)
	e.syncSelection(all)
	snap := e.publish()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

// allSensors must be called with e.mu held.
func (e *Engine) allSensors() models.Collection {
	parts := make([]models.Collection, 0, len(models.Categories))
	for _, c := range models.Categories {
		parts = append(parts, e.categories[c])
	}
	return models.Concat(parts...)
}

// publish swaps in a new snapshot. Must be called with e.mu held.
func (e *Engine) publish() *Snapshot {
	e.seq++
	snap := newSnapshot(e.seq, e.now(), e.degraded, e.categories)
	e.current.Store(snap)
	return snap
}

// Snapshot returns the latest published snapshot. It is never nil.
func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

// Subscribe registers fn to be called with every newly published snapshot.
// Callbacks run on the publishing goroutine after the swap. The returned
// function removes the subscription.
func (e *Engine) Subscribe(fn func(*Snapshot)) (unsubscribe func()) {
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subsMu.Unlock()

	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

func (e *Engine) notify(snap *Snapshot) {
	e.subsMu.RLock()
	fns := make([]func(*Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subsMu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// History returns the graph history of a sensor, or nil when it has none or
// history is disabled.
func (e *Engine) History(identifier string) *history.Buffer {
	if e.history == nil {
		return nil
	}
	return e.history.Get(identifier)
}

// Close releases the provider handle. It waits for an in-flight cycle and
// is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.provider.Close(); err != nil {
			e.closeErr = fmt.Errorf("closing sensor provider: %w", err)
		}
		e.logger.Info("Sensor provider closed")
	})
	return e.closeErr
}

// byCategory splits a combined collection back into per-category slices.
func byCategory(all models.Collection) map[models.Category]models.Collection {
	out := make(map[models.Category]models.Collection, len(models.Categories))
	for _, r := range all {
		out[r.Category] = append(out[r.Category], r)
	}
	return out
}
