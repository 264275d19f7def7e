package daemonctl

import (
	"context"
	"time"

	"mia/internal/controller"
)

// Launcher reaches the capture worker hosted by the daemon.
type Launcher struct {
	SocketPath  string
	Executable  string
	Options     LaunchOptions
	WaitTimeout time.Duration
}

// EnsureWorker implements controller.Launcher.
func (l Launcher) EnsureWorker(ctx context.Context) (controller.WorkerLink, error) {
	timeout := l.WaitTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, _, err := EnsureStarted(ctx, l.SocketPath, l.Executable, l.Options, timeout)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// DialWorker implements controller.Launcher.
func (l Launcher) DialWorker(context.Context) (controller.WorkerLink, error) {
	client, err := Dial(l.SocketPath)
	if err != nil {
		return nil, err
	}
	return client, nil
}
