package controller

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"mia/internal/logging"
	"mia/internal/message"
)

// ExecNotifier wakes a fresh controller process for each controller-channel
// message. Delivery is fire-and-forget: the child runs in its own session
// and is reaped in the background.
type ExecNotifier struct {
	Executable string
	// ConfigPath is forwarded as --config when set.
	ConfigPath string
	Logger     *slog.Logger
}

// Notify implements capture.Notifier.
func (n ExecNotifier) Notify(_ context.Context, msg message.ControllerMessage) {
	args, ok := n.args(msg)
	if !ok {
		logging.WarnWithContext(n.Logger, "no controller command for message", "notify_unsupported",
			logging.String(logging.FieldMessageType, msg.Type()),
		)
		return
	}
	if strings.TrimSpace(n.Executable) == "" {
		return
	}
	proc := exec.Command(n.Executable, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		logging.WarnWithContext(n.Logger, "failed to launch controller sync", "notify_failed",
			logging.Error(err),
			logging.String(logging.FieldMessageType, msg.Type()),
			logging.String(logging.FieldImpact, "the recording indicator may be stale"),
			logging.String(logging.FieldErrorHint, "status queries still read the capture state token"),
		)
		return
	}
	go func() { _ = proc.Wait() }()
}

func (n ExecNotifier) args(msg message.ControllerMessage) ([]string, bool) {
	set, ok := msg.(message.SetRecording)
	if !ok {
		return nil, false
	}
	args := []string{"sync", "--recording=" + strconv.FormatBool(set.Recording)}
	if cfg := strings.TrimSpace(n.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	return args, true
}
