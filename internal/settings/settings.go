// Package settings provides the persisted user settings document: polling
// rate, pinned and graphed sensor identifiers, and a few presentation
// preferences. The document is JSON on disk; comments and trailing commas
// written by hand are tolerated on read.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
)

const (
	// DefaultPollingRate is the refresh interval in milliseconds.
	DefaultPollingRate = 1750

	// MinPollingRate is the floor applied to any configured rate, in
	// milliseconds.
	MinPollingRate = 250

	fileName = "appSettings.json"
	appDir   = "Spectrometer"
)

// Settings is the on-disk document. Field names match the file format.
type Settings struct {
	StartingTab                  string     `json:"StartingTab"`
	PollingRate                  int        `json:"PollingRate"`
	StartWithWindows             bool       `json:"StartWithWindows"`
	AutomaticallyCheckForUpdates bool       `json:"AutomaticallyCheckForUpdates"`
	LastUpdateDefer              *time.Time `json:"LastUpdateDefer,omitempty"`
	PinnedSensorIdentifiers      []string   `json:"PinnedSensorIdentifiers"`
	GraphedSensorIdentifiers     []string   `json:"GraphedSensorIdentifiers"`
}

// Defaults returns the document written when none exists.
func Defaults() Settings {
	return Settings{
		StartingTab:                  "Dashboard",
		PollingRate:                  DefaultPollingRate,
		StartWithWindows:             false,
		AutomaticallyCheckForUpdates: true,
		PinnedSensorIdentifiers:      []string{},
		GraphedSensorIdentifiers:     []string{},
	}
}

// DefaultPath returns <user config dir>/Spectrometer/appSettings.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(dir, appDir, fileName), nil
}

// Store is the file-backed settings document guarded by a mutex. Every
// setter saves immediately.
type Store struct {
	path   string
	logger *zap.Logger

	mu  sync.RWMutex
	doc Settings
}

// Open loads the settings at path, creating the file with defaults if it
// does not exist. A file that cannot be parsed is moved aside to
// path+".corrupt" and replaced with defaults.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}

	s := &Store{path: path, logger: logger, doc: Defaults()}

	doc, err := readFile(path)
	switch {
	case err == nil:
		s.doc = doc
		return s, nil
	case errors.Is(err, os.ErrNotExist):
		logger.Info("Settings file not found, writing defaults", zap.String("path", path))
	default:
		logger.Warn("Settings file unreadable, replacing with defaults",
			zap.String("path", path),
			zap.Error(err))
		if rerr := os.Rename(path, path+".corrupt"); rerr != nil {
			logger.Warn("Failed to move corrupt settings aside", zap.Error(rerr))
		}
	}

	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// readFile parses the document, filling missing fields with defaults.
func readFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	return parse(data)
}

func parse(data []byte) (Settings, error) {
	doc := Defaults()
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	if doc.PinnedSensorIdentifiers == nil {
		doc.PinnedSensorIdentifiers = []string{}
	}
	if doc.GraphedSensorIdentifiers == nil {
		doc.GraphedSensorIdentifiers = []string{}
	}
	return doc, nil
}

// Get returns a copy of the current document.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := s.doc
	doc.PinnedSensorIdentifiers = clone(s.doc.PinnedSensorIdentifiers)
	doc.GraphedSensorIdentifiers = clone(s.doc.GraphedSensorIdentifiers)
	return doc
}

// PollingRate returns the refresh interval. Non-positive values fall back to
// the default; anything below the floor is raised to it.
func (s *Store) PollingRate() time.Duration {
	s.mu.RLock()
	ms := s.doc.PollingRate
	s.mu.RUnlock()
	return clampRate(ms)
}

func clampRate(ms int) time.Duration {
	if ms <= 0 {
		ms = DefaultPollingRate
	}
	if ms < MinPollingRate {
		ms = MinPollingRate
	}
	return time.Duration(ms) * time.Millisecond
}

// SetPollingRate stores a new rate in milliseconds.
func (s *Store) SetPollingRate(ms int) error {
	return s.update(func(doc *Settings) { doc.PollingRate = ms })
}

// PinnedSensorIdentifiers returns the persisted pinned set.
func (s *Store) PinnedSensorIdentifiers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.doc.PinnedSensorIdentifiers)
}

// SetPinnedSensorIdentifiers replaces the pinned set and saves.
func (s *Store) SetPinnedSensorIdentifiers(ids []string) error {
	return s.update(func(doc *Settings) { doc.PinnedSensorIdentifiers = clone(ids) })
}

// GraphedSensorIdentifiers returns the persisted graph-enabled set.
func (s *Store) GraphedSensorIdentifiers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.doc.GraphedSensorIdentifiers)
}

// SetGraphedSensorIdentifiers replaces the graph-enabled set and saves.
func (s *Store) SetGraphedSensorIdentifiers(ids []string) error {
	return s.update(func(doc *Settings) { doc.GraphedSensorIdentifiers = clone(ids) })
}

// update applies fn and saves. The in-memory document is only changed if the
// save succeeds.
func (s *Store) update(fn func(doc *Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc
	fn(&s.doc)
	if err := s.save(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

// save writes the document atomically: a temp file in the same directory
// is synced and renamed over the target. Must be called with s.mu held for
// writing, or before s is shared.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	temporaryPath := s.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("creating temporary settings file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary settings file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary settings file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary settings file: %w", err)
	}
	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming settings file into place: %w", err)
	}
	return nil
}

func clone(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
