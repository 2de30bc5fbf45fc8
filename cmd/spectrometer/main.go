// Package main is the entry point for spectrometer. It loads configuration,
// wires the hardware collectors into the sensor engine, and runs the poll
// scheduler either headless (logging only), with a live console view, or
// once with JSON output. Under the Windows SCM it runs as a service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Guliveer/spectrometer/internal/collector"
	"github.com/Guliveer/spectrometer/internal/config"
	"github.com/Guliveer/spectrometer/internal/console"
	"github.com/Guliveer/spectrometer/internal/engine"
	"github.com/Guliveer/spectrometer/internal/history"
	"github.com/Guliveer/spectrometer/internal/scheduler"
	"github.com/Guliveer/spectrometer/internal/service"
	"github.com/Guliveer/spectrometer/internal/settings"
	"github.com/Guliveer/spectrometer/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

type mode int

const (
	modeHeadless mode = iota
	modeWatch
	modeOnce
	modeSamples
)

type options struct {
	mode        mode
	all         bool
	configPath  string
	writeConfig string
	pollingRate int
	samplesID   string
	since       time.Duration
	cli         config.CLIOverrides
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	var showVersion, watch, once bool

	flagSet := pflag.NewFlagSet("spectrometer", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to YAML configuration file (default: search standard locations)")
	flagSet.BoolVar(&showVersion, "version", false, "show version and exit")
	flagSet.BoolVar(&watch, "watch", false, "render pinned sensors after every poll")
	flagSet.BoolVar(&opts.all, "all", false, "with --watch, render every sensor instead of the pinned ones")
	flagSet.BoolVar(&once, "once", false, "poll once and print the snapshot as JSON")
	flagSet.StringVar(&opts.cli.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&opts.cli.SettingsPath, "settings", "", "path to appSettings.json")
	flagSet.BoolVar(&opts.cli.Record, "record", false, "record graphed sensors to the sample database")
	flagSet.StringVar(&opts.writeConfig, "write-config", "", "write the effective configuration to this path and exit")
	flagSet.IntVar(&opts.pollingRate, "polling-rate", 0, "store a new polling rate in milliseconds in the settings file")
	flagSet.StringVar(&opts.samplesID, "samples", "", "print the samples recorded for a sensor identifier as JSON and exit")
	flagSet.DurationVar(&opts.since, "since", time.Hour, "with --samples, how far back to read")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("spectrometer %s\n", version)
		return nil
	}
	exclusive := 0
	for _, set := range []bool{watch, once, opts.samplesID != ""} {
		if set {
			exclusive++
		}
	}
	if exclusive > 1 {
		return fmt.Errorf("--watch, --once and --samples are mutually exclusive")
	}
	switch {
	case watch:
		opts.mode = modeWatch
	case once:
		opts.mode = modeOnce
	case opts.samplesID != "":
		opts.mode = modeSamples
	}
	if flagSet.Changed("polling-rate") && opts.pollingRate <= 0 {
		return fmt.Errorf("--polling-rate must be positive")
	}

	var cfg *config.Config
	var err error
	if flagSet.Changed("config") {
		cfg, err = config.LoadLayered(opts.cli, embeddedConfig, opts.configPath)
	} else {
		cfg, err = config.LoadLayered(opts.cli, embeddedConfig)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if opts.writeConfig != "" {
		if err := config.WriteConfig(cfg, opts.writeConfig); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Configuration written to %s\n", opts.writeConfig)
		return nil
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	if opts.mode == modeSamples {
		return runSamples(context.Background(), cfg, opts, logger)
	}

	logger.Info("Starting spectrometer", zap.String("version", version))

	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		svc := service.New(logger, func(ctx context.Context) {
			if err := runEngine(ctx, cfg, opts, logger); err != nil {
				logger.Error("Sensor engine failed", zap.Error(err))
			}
		})
		return svc.Run()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()))
		cancel()
	}()

	if err := runEngine(ctx, cfg, opts, logger); err != nil {
		return err
	}
	logger.Info("Spectrometer stopped")
	return nil
}

// runEngine builds the engine and drives it until ctx is cancelled.
func runEngine(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger) error {
	settingsPath := cfg.Settings.Path
	if settingsPath == "" {
		p, err := settings.DefaultPath()
		if err != nil {
			return err
		}
		settingsPath = p
	}
	prefs, err := settings.Open(settingsPath, logger.Named("settings"))
	if err != nil {
		return err
	}
	if opts.pollingRate > 0 {
		if err := prefs.SetPollingRate(opts.pollingRate); err != nil {
			return fmt.Errorf("saving polling rate: %w", err)
		}
		logger.Info("Polling rate updated", zap.Duration("polling_rate", prefs.PollingRate()))
	}

	registry := buildRegistry(cfg, logger)
	hist := history.NewStore(cfg.History.Capacity)

	var recorder engine.Recorder
	if cfg.Recorder.Enabled {
		rec, err := store.Open(store.Config{
			Path:          cfg.Recorder.DBPath,
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval.Duration,
		}, logger.Named("store"))
		if err != nil {
			return fmt.Errorf("opening sample recorder: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn("Failed to close sample recorder", zap.Error(err))
			}
		}()
		recorder = rec
	}

	eng := engine.New(registry, prefs, logger.Named("engine"), engine.Options{
		History:  hist,
		Recorder: recorder,
	})

	if opts.mode == modeOnce {
		return runOnce(ctx, eng)
	}

	if cfg.Settings.Watch {
		go func() {
			if err := prefs.Watch(ctx, nil); err != nil {
				logger.Warn("Settings live reload unavailable", zap.Error(err))
			}
		}()
	}

	if opts.mode == modeWatch {
		presenter := console.New(os.Stdout, console.Options{
			All:     opts.all,
			Clear:   true,
			History: eng.History,
		})
		unsubscribe := eng.Subscribe(func(s *engine.Snapshot) {
			if err := presenter.Show(s); err != nil {
				logger.Debug("Failed to render snapshot", zap.Error(err))
			}
		})
		defer unsubscribe()
	}

	sched := scheduler.New(eng, prefs, logger.Named("scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}
	logger.Info("Engine running",
		zap.String("settings", settingsPath),
		zap.Duration("polling_rate", prefs.PollingRate()),
		zap.Int("collectors", len(registry.Collectors())))

	<-ctx.Done()
	sched.Stop()
	return nil
}

// runOnce performs a single poll and prints the snapshot.
func runOnce(ctx context.Context, eng *engine.Engine) error {
	defer eng.Close()

	// Open failures leave the engine degraded; the snapshot says so.
	_ = eng.Open(ctx)
	if err := eng.Cycle(ctx); err != nil && len(eng.Snapshot().AllSensors) == 0 {
		return err
	}
	return console.WriteJSON(os.Stdout, eng.Snapshot())
}

// runSamples prints what the recorder stored for one sensor.
func runSamples(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger) error {
	rec, err := store.Open(store.Config{
		Path:      cfg.Recorder.DBPath,
		BatchSize: cfg.Recorder.BatchSize,
	}, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("opening sample recorder: %w", err)
	}
	defer rec.Close()

	samples, err := rec.Samples(ctx, opts.samplesID, time.Now().Add(-opts.since))
	if err != nil {
		return err
	}
	return console.WriteSamples(os.Stdout, samples)
}

// buildRegistry registers every collector that is not disabled in config.
func buildRegistry(cfg *config.Config, logger *zap.Logger) *collector.Registry {
	registry := collector.NewRegistry(logger.Named("provider"), cfg.Provider.RefreshTimeout.Duration)
	thermal := collector.NewThermalReader(cfg.Provider.ThermalTTL.Duration, logger.Named("thermal"))

	collectors := []collector.Collector{
		collector.NewCPUCollector(thermal, logger),
		collector.NewMemoryCollector(),
		collector.NewStorageCollector(thermal, logger),
		collector.NewNetworkCollector(logger),
		collector.NewNVIDIACollector(logger),
		collector.NewHwmonCollector(thermal),
	}
	for _, c := range collectors {
		if cfg.IsDisabled(c.Name()) {
			logger.Info("Collector disabled by configuration", zap.String("collector", c.Name()))
			continue
		}
		registry.Register(c)
	}
	return registry
}

// initLogger creates a zap logger based on the configuration.
// Human-readable output goes to stderr so stdout stays free for the console
// view and JSON output; an optional JSON log file receives the same records.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			)
			cores = append(cores, fileCore)
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
