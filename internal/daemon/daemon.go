package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"mia/internal/capture"
	"mia/internal/config"
	"mia/internal/logging"
)

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another mia daemon instance is already running")

// Daemon owns the capture worker and the single-instance lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	worker *capture.Worker

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running   atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// Status is the daemon's runtime view.
type Status struct {
	Running   bool
	PID       int
	StartedAt time.Time
	LockPath  string
	Session   capture.Snapshot
}

// New constructs a daemon around worker.
func New(cfg *config.Config, worker *capture.Worker, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || worker == nil {
		return nil, errors.New("daemon requires config and capture worker")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		worker:   worker,
		lockPath: lockPath,
		pidPath:  cfg.PIDPath(),
		lock:     flock.New(lockPath),
		shutdown: make(chan struct{}),
	}, nil
}

// Worker returns the hosted capture worker.
func (d *Daemon) Worker() *capture.Worker {
	return d.worker
}

// Start acquires the lock, writes the pid file and runs the worker loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	if err := writePIDFile(d.pidPath); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := d.worker.Run(runCtx); err != nil {
			logging.ErrorWithContext(d.logger, "capture worker exited", "worker_exit_failed", logging.Error(err))
		}
	}()

	d.cancel = cancel
	d.done = done
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("mia daemon started", logging.String("lock", d.lockPath), logging.Int("pid", os.Getpid()))
	return nil
}

// Stop drains an active recording, stops the worker and releases the lock.
// A drain that outlasts ctx abandons the recording.
func (d *Daemon) Stop(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if err := d.worker.Drain(ctx); err != nil {
		logging.WarnWithContext(d.logger, "recording drain incomplete at shutdown", "drain_incomplete",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the in-progress recording may be lost"),
			logging.String(logging.FieldErrorHint, "run 'mia stop' and wait before stopping the daemon"),
		)
	}
	d.cancel()
	<-d.done

	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.cancel = nil
	d.done = nil
	d.running.Store(false)
	d.logger.Info("mia daemon stopped")
}

// Close stops the daemon, allowing the sink timeout for a final upload.
func (d *Daemon) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SinkTimeout()+5*time.Second)
	defer cancel()
	d.Stop(ctx)
}

// Status reports runtime information.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()
	return Status{
		Running:   d.running.Load(),
		PID:       os.Getpid(),
		StartedAt: startedAt,
		LockPath:  d.lockPath,
		Session:   d.worker.Snapshot(),
	}
}

// RequestShutdown asks the hosting process to exit.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdown) })
}

// ShutdownRequested closes after RequestShutdown.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdown
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
