package settings

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the polling rate whenever the settings file changes on disk
// until ctx is cancelled. Selection lists are not reloaded; they are only
// read once at startup. onChange, if not nil, is called after a reload that
// changed the rate.
//
// The parent directory is watched rather than the file, since editors and
// Save itself replace the file by rename.
func (s *Store) Watch(ctx context.Context, onChange func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if doc, changed := s.reloadPollingRate(); changed && onChange != nil {
				onChange(doc)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Settings watcher error", zap.Error(err))
		}
	}
}

// reloadPollingRate re-reads the file and adopts its polling rate.
func (s *Store) reloadPollingRate() (Settings, bool) {
	doc, err := readFile(s.path)
	if err != nil {
		s.logger.Debug("Ignoring unreadable settings change", zap.Error(err))
		return Settings{}, false
	}

	s.mu.Lock()
	changed := s.doc.PollingRate != doc.PollingRate
	s.doc.PollingRate = doc.PollingRate
	s.mu.Unlock()

	if changed {
		s.logger.Info("Polling rate changed",
			zap.Duration("interval", clampRate(doc.PollingRate)))
	}
	return s.Get(), changed
}
