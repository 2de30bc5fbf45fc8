// Package scheduler drives the poll cycle at the configured cadence. It is
// the only state machine in the engine: Idle → Initializing → Polling →
// Stopped. Cycles never overlap; the timer for the next cycle is armed only
// after the previous one has finished, so a slow cycle skips ticks instead
// of queueing them.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/spectrometer/internal/clock"
)

const (
	// DefaultInterval is used when the interval source reports no rate.
	DefaultInterval = 1750 * time.Millisecond
	// MinInterval is the floor applied to every interval.
	MinInterval = 250 * time.Millisecond
)

var (
	// ErrAlreadyStarted is returned by Start on a scheduler that is running.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrStopped is returned by Start after Stop. A scheduler is not reusable.
	ErrStopped = errors.New("scheduler stopped")
)

// State is the lifecycle state of a Scheduler.
type State int32

const (
	// Idle is the state before Start.
	Idle State = iota
	// Initializing covers opening the engine and the first cycle.
	Initializing
	// Polling means cycles run on the timer.
	Polling
	// Stopped is terminal.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Engine is the poll pipeline the scheduler drives.
type Engine interface {
	Open(ctx context.Context) error
	Cycle(ctx context.Context) error
	Close() error
}

// IntervalSource supplies the polling interval. It is consulted before
// every cycle so changes apply without a restart.
type IntervalSource interface {
	PollingRate() time.Duration
}

// IntervalFunc adapts a function to IntervalSource.
type IntervalFunc func() time.Duration

// PollingRate calls f.
func (f IntervalFunc) PollingRate() time.Duration { return f() }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// Scheduler runs an Engine's poll cycle on a timer.
type Scheduler struct {
	engine   Engine
	interval IntervalSource
	clock    clock.Clock
	logger   *zap.Logger

	state  atomic.Int32
	cycles atomic.Uint64

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a scheduler in the Idle state.
func New(engine Engine, interval IntervalSource, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		engine:   engine,
		interval: interval,
		clock:    clock.Real(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Cycles returns the number of completed poll cycles.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Start opens the engine and begins polling in a background goroutine. The
// first cycle runs immediately. Cancelling ctx has the same effect as Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(Idle), int32(Initializing)) {
		if s.State() == Stopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
	return nil
}

// Done is closed when the poll loop has exited and the engine is closed.
// It is nil before Start.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stop cancels the pending timer, waits for an in-flight cycle to finish,
// and then closes the engine. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	prev := State(s.state.Swap(int32(Stopped)))
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if prev == Stopped {
		if done != nil {
			<-done
		}
		return
	}
	if cancel == nil {
		s.closeEngine()
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer s.closeEngine()
	defer s.state.Store(int32(Stopped))

	// Cycles are not cancelled by Stop; an in-flight cycle finishes before
	// the provider is released.
	cycleCtx := context.WithoutCancel(ctx)

	if err := s.engine.Open(ctx); err != nil {
		s.logger.Info("Polling without hardware access", zap.Error(err))
	}
	s.runCycle(cycleCtx)
	if !s.state.CompareAndSwap(int32(Initializing), int32(Polling)) {
		return
	}
	s.logger.Info("Polling started")

	for {
		interval := s.nextInterval()
		timer := s.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.runCycle(cycleCtx)
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	start := s.clock.Now()
	err := s.engine.Cycle(ctx)
	n := s.cycles.Add(1)
	if err != nil {
		s.logger.Debug("Poll cycle finished with errors",
			zap.Uint64("cycle", n),
			zap.Duration("took", s.clock.Now().Sub(start)),
			zap.Error(err))
	}
}

// nextInterval reads the interval fresh and applies the default and floor.
func (s *Scheduler) nextInterval() time.Duration {
	d := s.interval.PollingRate()
	switch {
	case d <= 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	default:
		return d
	}
}

func (s *Scheduler) closeEngine() {
	s.closeOnce.Do(func() {
		if err := s.engine.Close(); err != nil {
			s.logger.Warn("Failed to close engine", zap.Error(err))
		}
		s.logger.Info("Polling stopped", zap.Uint64("cycles", s.cycles.Load()))
	})
}
