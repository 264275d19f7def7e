package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"mia/internal/auth"
	"mia/internal/logging"
	"mia/internal/media"
	"mia/internal/meeting"
	"mia/internal/message"
)

// ErrTabUnavailable aborts a start whose tab audio source cannot be resolved.
var ErrTabUnavailable = errors.New("tab audio source unavailable")

// WorkerLink is the controller's connection to the capture worker. The
// controller closes every link it obtains before returning.
type WorkerLink interface {
	io.Closer
	// Deliver sends a one-way directive. It does not wait for the outcome.
	Deliver(ctx context.Context, msg message.WorkerMessage) error
	TestMicrophone(ctx context.Context) (message.TestMicrophoneResult, error)
}

// Launcher reaches the capture worker.
type Launcher interface {
	// EnsureWorker returns a link, starting the worker when none is reachable.
	EnsureWorker(ctx context.Context) (WorkerLink, error)
	// DialWorker returns a link to a running worker without starting one.
	DialWorker(ctx context.Context) (WorkerLink, error)
}

// ConsentGate runs the consent gate. The channel carries the gate's
// completion events and closes once the gate is gone.
type ConsentGate interface {
	Run(ctx context.Context) <-chan message.GateEvent
}

// Indicator is the user-visible recording badge.
type Indicator interface {
	SetRecording(ctx context.Context, recording bool) error
}

// StateStore is the controller's view of the state store.
type StateStore interface {
	CaptureRecording(ctx context.Context) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
}

// Deps wires a Controller.
type Deps struct {
	Launcher    Launcher
	Resolver    media.Resolver
	Gate        ConsentGate
	Auth        auth.Provider
	Indicator   Indicator
	Store       StateStore
	Meetings    *meeting.Extractor
	GateTimeout time.Duration
	Logger      *slog.Logger
}

// Tab identifies the audio source to record and the page it belongs to.
type Tab struct {
	// ID names the tab audio source. Empty selects the default sink monitor.
	ID  string
	URL string
}

// Controller handles one user intent.
type Controller struct {
	deps   Deps
	logger *slog.Logger
}

// New builds a controller.
func New(deps Deps) *Controller {
	if deps.Meetings == nil {
		deps.Meetings = meeting.NewExtractor()
	}
	if deps.GateTimeout <= 0 {
		deps.GateTimeout = 2 * time.Minute
	}
	return &Controller{deps: deps, logger: logging.NewComponentLogger(deps.Logger, "controller")}
}
