//go:build windows

// Package service provides Windows Service integration.
// When launched by the SCM the sensor engine runs under the service control
// loop. When started from a terminal it runs in the foreground.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

const serviceName = "Spectrometer"

// stopTimeout bounds how long Execute waits for the poll loop to finish.
const stopTimeout = 10 * time.Second

// Service implements the Windows service interface (svc.Handler).
type Service struct {
	logger *zap.Logger
	runFn  func(ctx context.Context)
}

// New creates a new Windows service wrapper. runFn must block until ctx is
// cancelled and the engine has shut down.
func New(logger *zap.Logger, runFn func(ctx context.Context)) *Service {
	return &Service{
		logger: logger,
		runFn:  runFn,
	}
}

// IsWindowsService checks if the process is running as a Windows service.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run starts the Windows service control loop.
func (s *Service) Run() error {
	return svc.Run(serviceName, s)
}

// Execute implements the svc.Handler interface for Windows SCM integration.
func (s *Service) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runFn(ctx)
	}()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case <-done:
			s.logger.Warn("Sensor engine exited without a stop request")
			return false, 1
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				select {
				case <-done:
				case <-time.After(stopTimeout):
					s.logger.Warn("Timed out waiting for the sensor engine to stop")
				}
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}

// Install provides instructions for installing the service.
func Install(exePath string) error {
	return fmt.Errorf("use 'sc create %s binPath= \"%s\"' to install", serviceName, exePath)
}
