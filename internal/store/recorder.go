// Package store records graph-enabled sensor readings to a local SQLite
// database. Samples are buffered in memory and written in one transaction
// per batch.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Guliveer/spectrometer/internal/models"
)

var (
	ErrInvalidPath    = errors.New("sample database path is empty")
	ErrSchemaMismatch = errors.New("sample database schema mismatch")
	ErrClosed         = errors.New("recorder closed")
)

const defaultDirPerm = 0o750

// Config controls batching.
type Config struct {
	Path          string
	BatchSize     int
	FlushInterval time.Duration
}

// Sample is one stored reading.
type Sample struct {
	Time       time.Time `json:"time"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Value      float64   `json:"value"`
}

// Recorder buffers samples and flushes them when the batch is full, on a
// timer, and on Close.
type Recorder struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    Config

	mu     sync.Mutex
	buffer []Sample
	closed bool

	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

// Open creates or opens the database at cfg.Path.
func Open(cfg Config, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, ErrInvalidPath
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, fmt.Errorf("creating sample database directory: %w", err)
	}

	dsn := cfg.Path + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sample database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Sample recorder initialized",
		zap.String("path", cfg.Path),
		zap.Int("schema_version", SchemaVersion),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("flush_interval", cfg.FlushInterval))

	r := &Recorder{
		db:            db,
		logger:        logger,
		cfg:           cfg,
		buffer:        make([]Sample, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.FlushInterval > 0 {
		r.flushTicker = time.NewTicker(cfg.FlushInterval)
		go r.flusher()
	} else {
		close(r.flushDoneChan)
	}
	return r, nil
}

// Record buffers the value of every graph-enabled record in c.
func (r *Recorder) Record(c models.Collection, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	for _, rec := range c {
		if !rec.IsGraphEnabled || rec.Value == nil {
			continue
		}
		r.buffer = append(r.buffer, Sample{
			Time:       at,
			Identifier: rec.Identifier,
			Name:       rec.Name,
			Kind:       rec.Kind.String(),
			Value:      *rec.Value,
		})
	}

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}
	return nil
}

// pending returns the number of buffered samples.
func (r *Recorder) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Samples returns the stored samples for one sensor since the given time.
func (r *Recorder) Samples(ctx context.Context, identifier string, since time.Time) ([]Sample, error) {
	rows, err := r.db.QueryContext(ctx, selectSamplesSQL, identifier, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var s Sample
		var ms int64
		if err := rows.Scan(&ms, &s.Identifier, &s.Name, &s.Kind, &s.Value); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		s.Time = time.UnixMilli(ms)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close flushes pending samples and closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Warn("Failed to checkpoint WAL", zap.Error(err))
	}
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("closing sample database: %w", err)
	}

	r.logger.Info("Sample recorder closed")
	return flushErr
}

func (r *Recorder) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn("Periodic sample flush failed", zap.Error(err))
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. Must be called with r.mu held.
// On failure the buffer is kept for the next attempt.
func (r *Recorder) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning sample transaction: %w", err)
	}

	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			r.logger.Error("Failed to roll back transaction", zap.Error(rerr))
		}
		return fmt.Errorf("preparing sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range r.buffer {
		if _, err := stmt.Exec(s.Time.UnixMilli(), s.Identifier, s.Name, s.Kind, s.Value); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				r.logger.Error("Failed to roll back transaction", zap.Error(rerr))
			}
			return fmt.Errorf("inserting sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing samples: %w", err)
	}

	r.logger.Debug("Flushed samples to database", zap.Int("samples", len(r.buffer)))
	r.buffer = r.buffer[:0]
	return nil
}
