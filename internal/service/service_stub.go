//go:build !windows

// Package service provides a stub implementation for non-Windows platforms.
// On macOS and Linux the engine runs as a foreground process.
package service

import (
	"context"

	"go.uber.org/zap"
)

// Service is a pass-through wrapper for non-Windows platforms.
type Service struct {
	logger *zap.Logger
	runFn  func(ctx context.Context)
}

// New creates a stub service wrapper.
func New(logger *zap.Logger, runFn func(ctx context.Context)) *Service {
	return &Service{
		logger: logger,
		runFn:  runFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes runFn directly with a background context.
func (s *Service) Run() error {
	s.runFn(context.Background())
	return nil
}
