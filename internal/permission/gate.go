package permission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mia/internal/logging"
	"mia/internal/message"
)

const settingsGuidance = "Microphone access is blocked. Run 'mia permission reset' (and check your system sound settings) to allow it again."

const refusalGuidance = "Microphone access was not granted. Recording will continue with tab audio only unless you allow it. Answer again to retry."

// Gate runs one consent round.
type Gate struct {
	record  Record
	surface Surface
	settle  time.Duration
	logger  *slog.Logger
}

// New builds a gate. settle is how long the surface stays up after a grant.
func New(record Record, surface Surface, settle time.Duration, logger *slog.Logger) *Gate {
	return &Gate{
		record:  record,
		surface: surface,
		settle:  settle,
		logger:  logging.NewComponentLogger(logger, "permission"),
	}
}

// Run activates the gate. The returned channel carries at most one
// GateNavigated followed by exactly one GateClosed, then closes.
func (g *Gate) Run(ctx context.Context) <-chan message.GateEvent {
	events := make(chan message.GateEvent, 2)
	go func() {
		defer close(events)
		granted := g.run(ctx, events)
		events <- message.GateClosed{WasGranted: granted}
	}()
	return events
}

// Open runs the gate and returns once it signals completion.
func (g *Gate) Open(ctx context.Context) bool {
	ev, ok := <-g.Run(ctx)
	if !ok {
		return false
	}
	return ev.Granted()
}

func (g *Gate) run(ctx context.Context, events chan<- message.GateEvent) bool {
	status, err := g.record.Status(ctx)
	if err != nil {
		logging.WarnWithContext(g.logger, "permission status unavailable; prompting", "permission_status_failed",
			logging.Error(err),
		)
		status = StatusPrompt
	}
	g.logger.Debug("permission gate opened", logging.String("status", string(status)))

	switch status {
	case StatusGranted:
		events <- message.GateNavigated{WasGranted: true}
		g.settleThenClose(ctx)
		return true
	case StatusDenied:
		g.surface.Show(settingsGuidance)
		if err := g.surface.AwaitClose(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			g.logger.Debug("permission surface close failed", logging.Error(err))
		}
		return false
	}

	for {
		answer, err := g.surface.Request(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logging.WarnWithContext(g.logger, "permission prompt failed", "permission_prompt_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "recording continues without the microphone"),
				)
			}
			return false
		}
		switch answer {
		case AnswerGrant:
			if err := g.record.Grant(ctx); err != nil {
				logging.WarnWithContext(g.logger, "failed to persist microphone grant", "permission_grant_write_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "microphone acquisition will be refused"),
					logging.String(logging.FieldErrorHint, "check state_dir permissions"),
				)
				return false
			}
			g.logger.Info("microphone permission granted")
			g.surface.Show("Microphone access granted.")
			events <- message.GateNavigated{WasGranted: true}
			g.settleThenClose(ctx)
			return true
		case AnswerRefuse:
			g.logger.Info("microphone permission refused")
			g.surface.Show(refusalGuidance)
		default:
			return false
		}
	}
}

func (g *Gate) settleThenClose(ctx context.Context) {
	if g.settle <= 0 {
		return
	}
	timer := time.NewTimer(g.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
