package controller

import (
	"context"
	"fmt"
	"time"

	"mia/internal/logging"
	"mia/internal/message"
	"mia/internal/statestore"
)

// HandleStart checks microphone consent, resolves both stream handles, and
// sends a start directive. A tab resolution failure sends nothing.
func (c *Controller) HandleStart(ctx context.Context, tab Tab) error {
	link, err := c.deps.Launcher.EnsureWorker(ctx)
	if err != nil {
		c.indicate(ctx, false)
		return fmt.Errorf("reach capture worker: %w", err)
	}
	defer c.closeLink(link)

	hasMic, gateClosed := c.microphoneAccess(ctx, link)
	defer waitGate(ctx, gateClosed)

	tabHandle, err := c.deps.Resolver.ResolveTab(ctx, tab.ID)
	if err != nil {
		logging.ErrorWithContext(c.logger, "tab audio source could not be resolved; start aborted", "tab_resolution_failed",
			logging.Error(err),
			logging.String("tab", tab.ID),
			logging.String(logging.FieldErrorHint, "list sources with 'pactl list short sources'"),
		)
		c.indicate(ctx, false)
		return fmt.Errorf("%w: %v", ErrTabUnavailable, err)
	}

	directive := message.StartRecording{
		TabHandle: tabHandle,
		SourceURL: tab.URL,
		MeetingID: c.deps.Meetings.MeetingID(tab.URL),
	}
	if hasMic {
		micHandle, err := c.deps.Resolver.ResolveMicrophone(ctx)
		if err != nil {
			logging.WarnWithContext(c.logger, "microphone could not be resolved; recording tab audio only", "microphone_resolution_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "recording will not include the microphone"),
				logging.String(logging.FieldErrorHint, "check capture.mic_source"),
			)
		} else {
			directive.MicHandle = &micHandle
		}
	}
	if c.deps.Auth != nil {
		if userID, ok := c.deps.Auth.CurrentUser(ctx); ok {
			directive.UserID = userID
		}
	}

	if err := link.Deliver(ctx, directive); err != nil {
		c.indicate(ctx, false)
		return fmt.Errorf("send %s: %w", directive.Type(), err)
	}
	c.logger.Info("start directive sent",
		logging.String("tab_source", tabHandle.Source),
		logging.Bool("microphone", directive.MicHandle != nil),
		logging.String("meeting_id", directive.MeetingID),
	)
	c.indicate(ctx, true)
	return nil
}

// microphoneAccess asks the worker for microphone access and, when access is
// missing, opens the consent gate. A gate that closes or times out without
// consent yields false. The returned channel, when non-nil, closes once the
// gate has closed.
func (c *Controller) microphoneAccess(ctx context.Context, link WorkerLink) (bool, <-chan struct{}) {
	result, err := link.TestMicrophone(ctx)
	if err != nil {
		logging.WarnWithContext(c.logger, "microphone check failed", "microphone_check_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recording may proceed without the microphone"),
		)
	}
	if result.HasAccess || c.deps.Gate == nil {
		return result.HasAccess, nil
	}

	granted, gateClosed := c.openGate(ctx)
	if !granted {
		c.logger.Info("microphone consent not granted; recording tab audio only")
		return false, gateClosed
	}

	result, err = link.TestMicrophone(ctx)
	if err != nil || !result.HasAccess {
		logging.WarnWithContext(c.logger, "microphone still unavailable after consent", "microphone_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recording will not include the microphone"),
			logging.String(logging.FieldErrorHint, "check the input device with 'mia probe'"),
		)
		return false, gateClosed
	}
	return true, gateClosed
}

// openGate waits up to GateTimeout for the gate's first event. A granted gate
// keeps running on ctx through its settle delay; any other outcome cancels it.
func (c *Controller) openGate(ctx context.Context) (bool, <-chan struct{}) {
	gateCtx, cancel := context.WithCancel(ctx)
	events := c.deps.Gate.Run(gateCtx)

	timer := time.NewTimer(c.deps.GateTimeout)
	defer timer.Stop()
	granted := false
	select {
	case ev, ok := <-events:
		granted = ok && ev.Granted()
	case <-timer.C:
		logging.WarnWithContext(c.logger, "consent gate timed out", "consent_gate_timeout",
			logging.Duration("timeout", c.deps.GateTimeout),
			logging.String(logging.FieldImpact, "recording proceeds without the microphone"),
			logging.String(logging.FieldErrorHint, "answer the prompt or run 'mia permission grant'"),
		)
	}
	if !granted {
		cancel()
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		defer cancel()
		for range events {
		}
	}()
	return granted, closed
}

func waitGate(ctx context.Context, closed <-chan struct{}) {
	if closed == nil {
		return
	}
	select {
	case <-closed:
	case <-ctx.Done():
	}
}

func (c *Controller) closeLink(link WorkerLink) {
	if err := link.Close(); err != nil {
		c.logger.Debug("closing worker link failed", logging.Error(err))
	}
}

// HandleStop sends a stop directive and turns the indicator off without
// waiting for finalize.
func (c *Controller) HandleStop(ctx context.Context, tabID string) error {
	c.indicate(ctx, false)
	link, err := c.deps.Launcher.DialWorker(ctx)
	if err != nil {
		c.logger.Debug("capture worker not reachable; nothing to stop", logging.Error(err), logging.String("tab", tabID))
		return nil
	}
	defer c.closeLink(link)
	if err := link.Deliver(ctx, message.StopRecording{}); err != nil {
		return fmt.Errorf("send %s: %w", message.TypeStopRecording, err)
	}
	c.logger.Info("stop directive sent", logging.String("tab", tabID))
	return nil
}

// HandleStateSync republishes the worker's recording flag.
func (c *Controller) HandleStateSync(ctx context.Context, recording bool) error {
	if err := c.deps.Store.SetBool(ctx, statestore.KeyUIRecording, recording); err != nil {
		return fmt.Errorf("publish recording flag: %w", err)
	}
	c.indicate(ctx, recording)
	return nil
}

// IsRecording answers from the worker's side channel alone.
func (c *Controller) IsRecording(ctx context.Context) (bool, error) {
	return c.deps.Store.CaptureRecording(ctx)
}

// HandleMessage dispatches a controller-channel message.
func (c *Controller) HandleMessage(ctx context.Context, msg message.ControllerMessage) error {
	switch m := msg.(type) {
	case message.SetRecording:
		return c.HandleStateSync(ctx, m.Recording)
	default:
		return fmt.Errorf("%w: %T", message.ErrUnknownMessage, msg)
	}
}

func (c *Controller) indicate(ctx context.Context, recording bool) {
	if c.deps.Indicator == nil {
		return
	}
	if err := c.deps.Indicator.SetRecording(ctx, recording); err != nil {
		logging.WarnWithContext(c.logger, "failed to update recording indicator", "indicator_update_failed",
			logging.Error(err),
			logging.Bool("recording", recording),
			logging.String(logging.FieldImpact, "the badge may show a stale state"),
		)
	}
}
