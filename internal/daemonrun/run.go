package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mia/internal/capture"
	"mia/internal/config"
	"mia/internal/controller"
	"mia/internal/daemon"
	"mia/internal/ipc"
	"mia/internal/logging"
	"mia/internal/media"
	"mia/internal/meeting"
	"mia/internal/permission"
	"mia/internal/preflight"
	"mia/internal/sink"
	"mia/internal/statestore"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// ConfigPath is forwarded to the controller processes the worker wakes.
	ConfigPath string
}

// Run starts the mia daemon and blocks until a signal or a shutdown request.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
		FilePath:    logging.DaemonLogPath(cfg),
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logPreflight(signalCtx, logger, cfg)

	store, err := statestore.Open(cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}
	defer store.Close()

	worker, err := NewWorker(signalCtx, cfg, store, logger, opts.ConfigPath)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, worker, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-signalCtx.Done():
	case <-d.ShutdownRequested():
	}
	logger.Info("mia daemon shutting down")
	return nil
}

// NewWorker wires a capture worker to the ffmpeg pipeline, the configured
// sink, the state store and the controller notifier.
func NewWorker(ctx context.Context, cfg *config.Config, store *statestore.Store, logger *slog.Logger, configPath string) (*capture.Worker, error) {
	format := media.Format{SampleRate: cfg.Capture.SampleRate, FrameMillis: cfg.Capture.FrameMillis}
	ff := media.FFmpeg{
		Binary:  cfg.Capture.FFmpegBinary,
		Format:  format,
		Codec:   cfg.Capture.Codec,
		Bitrate: cfg.Capture.Bitrate,
		LogDir:  cfg.Paths.LogDir,
		Logger:  logger,
	}

	target, err := sink.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("configure sink: %w", err)
	}

	var playback media.Playback
	if cfg.Capture.Playback {
		playback = &media.FFmpegPlayback{FFmpeg: ff}
	}

	executable, err := os.Executable()
	if err != nil {
		logging.WarnWithContext(logger, "cannot resolve own executable; controller sync disabled", "executable_unresolved",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the recording badge only updates on status queries"),
		)
	}

	return capture.New(capture.Options{
		Acquirer:    &media.FFmpegAcquirer{FFmpeg: ff, Consent: permission.NewGrants(store)},
		Resolver:    media.NewPulseResolver(cfg.Capture.PactlBinary, cfg.Capture.MicSource),
		Encoder:     &media.FFmpegEncoder{FFmpeg: ff},
		Playback:    playback,
		Bus:         media.NewBus(format, cfg.Capture.MicBufferMS, logger),
		Sink:        target,
		SideChannel: store,
		Notifier:    controller.ExecNotifier{Executable: executable, ConfigPath: configPath, Logger: logger},
		Meetings:    meeting.NewExtractor(cfg.Meeting.Hosts...),
		SinkTimeout: cfg.SinkTimeout(),
		Logger:      logger,
	}), nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	results := preflight.RunAll(checkCtx, cfg)
	failedChecks := preflight.Failed(results)
	names := make([]string, 0, len(failedChecks))
	for _, failed := range failedChecks {
		names = append(names, failed.Name)
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "recordings may fail until this is fixed"),
			logging.String(logging.FieldErrorHint, "run 'mia status' for details"),
		)
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(failedChecks)),
		logging.Any("failed_checks", names),
		logging.String("sink_kind", cfg.Sink.Kind),
		logging.Bool("playback", cfg.Capture.Playback),
	)
}
