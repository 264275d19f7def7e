package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mia/internal/logging"
	"mia/internal/media"
	"mia/internal/meeting"
	"mia/internal/message"
	"mia/internal/sink"
)

var (
	// ErrAlreadyRecording rejects a start directive while a session is active.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrWorkerStopped is returned when the event loop is not running.
	ErrWorkerStopped = errors.New("capture worker stopped")
)

// SideChannel is the restart-survivable recording token.
type SideChannel interface {
	SetCaptureRecording(ctx context.Context, recording bool) error
}

// Notifier delivers one-way messages to the controller.
type Notifier interface {
	Notify(ctx context.Context, msg message.ControllerMessage)
}

// Options wires a Worker to its collaborators.
type Options struct {
	Acquirer media.Acquirer
	// Resolver mints the throwaway handle used by the microphone check.
	Resolver media.Resolver
	Encoder  media.Encoder
	// Playback is optional; without it tab audio is recorded but not monitored.
	Playback    media.Playback
	Bus         *media.Bus
	Sink        sink.Sink
	SideChannel SideChannel
	Notifier    Notifier
	Meetings    *meeting.Extractor
	SinkTimeout time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

// Worker owns the recording session.
type Worker struct {
	opts   Options
	logger *slog.Logger
	events chan any
	done   chan struct{}

	running atomic.Bool

	// session and published are only touched by the event loop.
	session   Session
	published *bool

	mu         sync.Mutex
	snap       Snapshot
	idle       chan struct{}
	idleClosed bool
}

// New constructs a worker. Call Run to start its event loop.
func New(opts Options) *Worker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Meetings == nil {
		opts.Meetings = meeting.NewExtractor()
	}
	if opts.Sink == nil {
		opts.Sink = sink.Noop{}
	}
	if opts.Bus == nil {
		opts.Bus = media.NewBus(media.DefaultFormat, 500, opts.Logger)
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 2 * time.Minute
	}
	idle := make(chan struct{})
	close(idle)
	return &Worker{
		opts:       opts,
		logger:     logging.NewComponentLogger(opts.Logger, "capture"),
		events:     make(chan any, 64),
		done:       make(chan struct{}),
		session:    Session{State: StateIdle},
		snap:       Snapshot{State: StateIdle},
		idle:       idle,
		idleClosed: true,
	}
}

// Run processes events until ctx is done. A session still active at that
// point is abandoned: its processes are stopped and nothing is uploaded.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("capture worker already running")
	}
	defer close(w.done)

	w.publish(ctx, false)
	for {
		select {
		case <-ctx.Done():
			w.abandon()
			return nil
		case ev := <-w.events:
			w.handle(ctx, ev)
			w.refresh()
		}
	}
}

// Deliver hands a directive to the event loop. Only the admission check is
// synchronous: a start while a session is active returns ErrAlreadyRecording.
// Everything else completes asynchronously.
func (w *Worker) Deliver(ctx context.Context, msg message.WorkerMessage) error {
	if !w.running.Load() {
		return ErrWorkerStopped
	}
	reply := make(chan error, 1)
	select {
	case w.events <- directiveEvent{msg: msg, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrWorkerStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrWorkerStopped
	}
}

// TestMicrophone acquires the microphone with a throwaway handle and
// releases it immediately.
func (w *Worker) TestMicrophone(ctx context.Context) message.TestMicrophoneResult {
	if w.opts.Resolver == nil || w.opts.Acquirer == nil {
		return message.TestMicrophoneResult{}
	}
	h, err := w.opts.Resolver.ResolveMicrophone(ctx)
	if err != nil {
		w.logger.Debug("microphone check: no device", logging.Error(err))
		return message.TestMicrophoneResult{}
	}
	src, err := w.opts.Acquirer.AcquireMicrophone(ctx, h)
	if err != nil {
		w.logger.Debug("microphone check: acquisition failed", logging.Error(err), logging.String("source", h.Source))
		return message.TestMicrophoneResult{}
	}
	if err := src.Stop(); err != nil {
		w.logger.Debug("microphone check: release failed", logging.Error(err))
	}
	return message.TestMicrophoneResult{HasAccess: true}
}

// Snapshot returns the current session view.
func (w *Worker) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

// WaitIdle blocks until the worker has no active session.
func (w *Worker) WaitIdle(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain stops any active session and waits for its artifact to be handed
// to the sink.
func (w *Worker) Drain(ctx context.Context) error {
	if w.Snapshot().State == StateIdle {
		return nil
	}
	if err := w.Deliver(ctx, message.StopRecording{}); err != nil {
		return err
	}
	return w.WaitIdle(ctx)
}

type directiveEvent struct {
	msg   message.WorkerMessage
	reply chan error
}

type acquiredEvent struct {
	sessionID string
	tab       media.Source
	mic       media.Source
	err       error
	micErr    error
}

type fragmentEvent struct {
	sessionID string
	data      []byte
}

type fragmentsClosedEvent struct {
	sessionID string
	err       error
}

type mixEndedEvent struct {
	sessionID string
	err       error
}

type releasedEvent struct {
	sessionID string
}

type uploadedEvent struct {
	sessionID string
	err       error
	bytes     int
}

func (w *Worker) post(ev any) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *Worker) handle(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case directiveEvent:
		err := w.handleDirective(ctx, e.msg)
		w.refresh()
		e.reply <- err
	case acquiredEvent:
		w.handleAcquired(ctx, e)
	case fragmentEvent:
		w.handleFragment(e)
	case fragmentsClosedEvent:
		w.handleFragmentsClosed(ctx, e)
	case mixEndedEvent:
		w.handleMixEnded(ctx, e)
	case releasedEvent:
		w.handleReleased(ctx, e)
	case uploadedEvent:
		w.handleUploaded(ctx, e)
	default:
		w.logger.Error("unexpected worker event", logging.String("event", fmt.Sprintf("%T", ev)))
	}
}

func (w *Worker) sessionLogger() *slog.Logger {
	return w.logger.With(
		logging.String(logging.FieldSessionID, w.session.ID),
		logging.String(logging.FieldState, string(w.session.State)),
	)
}

func (w *Worker) handleDirective(ctx context.Context, msg message.WorkerMessage) error {
	switch m := msg.(type) {
	case message.StartRecording:
		return w.handleStart(ctx, m)
	case message.StopRecording:
		w.handleStop()
		return nil
	case message.TestMicrophone:
		return fmt.Errorf("%s is request/response; call TestMicrophone", m.Type())
	default:
		return fmt.Errorf("%w: %T", message.ErrUnknownMessage, msg)
	}
}

func (w *Worker) handleStart(ctx context.Context, m message.StartRecording) error {
	if w.session.State != StateIdle {
		logging.ErrorWithContext(w.sessionLogger(), "start directive rejected: session already active", "start_rejected",
			logging.String(logging.FieldMessageType, m.Type()),
			logging.String(logging.FieldErrorHint, "stop the active recording first"),
		)
		return ErrAlreadyRecording
	}
	if !m.TabHandle.Valid(media.KindTab) {
		return fmt.Errorf("%w: tab handle %+v", media.ErrInvalidHandle, m.TabHandle)
	}
	var mic *media.Handle
	if m.MicHandle != nil && m.MicHandle.Valid(media.KindMicrophone) {
		h := *m.MicHandle
		mic = &h
	}

	meetingID := m.MeetingID
	if meetingID == "" && m.SourceURL != "" {
		meetingID = w.opts.Meetings.MeetingID(m.SourceURL)
	}

	w.session = Session{
		ID:        uuid.NewString(),
		State:     StateStarting,
		TabHandle: m.TabHandle,
		MicHandle: mic,
		MeetingID: meetingID,
		UserID:    m.UserID,
	}
	w.sessionLogger().Info("recording session starting",
		logging.String("meeting_id", meetingID),
		logging.Bool("microphone_requested", mic != nil),
	)

	go w.acquire(ctx, w.session.ID, m.TabHandle, mic)
	return nil
}

// acquire resolves both sources concurrently. The tab result decides the
// session; a microphone failure only degrades it.
func (w *Worker) acquire(ctx context.Context, sessionID string, tabHandle media.Handle, micHandle *media.Handle) {
	var (
		tab, mic       media.Source
		tabErr, micErr error
		wg             sync.WaitGroup
	)
	wg.Go(func() {
		tab, tabErr = w.opts.Acquirer.AcquireTab(ctx, tabHandle)
	})
	if micHandle != nil {
		wg.Go(func() {
			mic, micErr = w.opts.Acquirer.AcquireMicrophone(ctx, *micHandle)
		})
	}
	wg.Wait()
	w.post(acquiredEvent{sessionID: sessionID, tab: tab, mic: mic, err: tabErr, micErr: micErr})
}

func (w *Worker) handleAcquired(ctx context.Context, ev acquiredEvent) {
	if ev.sessionID != w.session.ID || w.session.State != StateStarting {
		stopSources(ev.tab, ev.mic)
		return
	}
	logger := w.sessionLogger()

	if ev.err != nil {
		stopSources(ev.mic)
		logging.ErrorWithContext(logger, "tab audio acquisition failed; session aborted", "tab_acquisition_failed",
			logging.Error(ev.err),
			logging.String("source", w.session.TabHandle.Source),
			logging.String(logging.FieldErrorHint, "check that the tab source exists (pactl list short sources)"),
		)
		w.fail(ctx)
		return
	}
	if ev.micErr != nil {
		logging.WarnWithContext(logger, "microphone unavailable; recording tab audio only", "microphone_degraded",
			logging.Error(ev.micErr),
			logging.String(logging.FieldImpact, "recording will not include the microphone"),
			logging.String(logging.FieldErrorHint, "run 'mia permission status' and check the input device"),
		)
	}
	w.session.tab = ev.tab
	w.session.mic = ev.mic

	if w.session.stopRequested {
		logger.Info("stop arrived during start; finalizing without encoding")
		w.session.State = StateStopping
		w.release()
		return
	}

	stream, err := w.opts.Encoder.Start(ctx)
	if err != nil {
		logging.ErrorWithContext(logger, "encoder failed to start; session aborted", "encoder_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify capture.ffmpeg_binary and capture.codec"),
		)
		stopSources(w.session.tab, w.session.mic)
		w.fail(ctx)
		return
	}

	var playback io.Writer
	if w.opts.Playback != nil {
		out, err := w.opts.Playback.Open(ctx)
		if err != nil {
			logging.WarnWithContext(logger, "playback output unavailable; tab audio will not be monitored", "playback_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "tab audio is recorded but not audible while recording"),
			)
		} else {
			w.session.playback = out
			playback = out
		}
	}

	w.session.stream = stream
	w.session.mix = w.opts.Bus.Start(ctx, w.session.tab, w.session.mic, playback, stream)

	sessionID := w.session.ID
	go func() {
		for chunk := range stream.Fragments() {
			w.post(fragmentEvent{sessionID: sessionID, data: chunk})
		}
		w.post(fragmentsClosedEvent{sessionID: sessionID, err: stream.Err()})
	}()
	mix := w.session.mix
	go func() {
		<-mix.Done()
		w.post(mixEndedEvent{sessionID: sessionID, err: mix.Err()})
	}()

	w.session.StartedAt = w.opts.Now()
	w.session.State = StateRecording
	w.sessionLogger().Info("recording started",
		logging.Bool("has_microphone", w.session.hasMicrophone()),
		logging.String("meeting_id", w.session.MeetingID),
	)
	w.publish(ctx, true)
}

func (w *Worker) handleStop() {
	switch w.session.State {
	case StateIdle:
		w.logger.Debug("stop directive ignored; no active session")
	case StateStarting, StateAwaitingPermission:
		w.session.stopRequested = true
		w.sessionLogger().Info("stop requested while starting; will finalize once acquisition settles")
	case StateRecording:
		w.beginStop(context.Background(), "stop directive")
	case StateStopping:
		w.sessionLogger().Debug("stop directive ignored; already stopping")
	}
}

// beginStop leaves Recording and asks the encoder to flush. Fragments keep
// arriving until the encoder closes its stream.
func (w *Worker) beginStop(ctx context.Context, reason string) {
	w.session.State = StateStopping
	w.sessionLogger().Info("recording stopping", logging.String("reason", reason))
	w.publish(ctx, false)

	mix, stream, sessionID := w.session.mix, w.session.stream, w.session.ID
	go func() {
		if mix != nil {
			mix.Stop()
		}
		if stream == nil {
			return
		}
		if err := stream.Flush(); err != nil {
			logging.WarnWithContext(w.logger, "encoder flush failed", "encoder_flush_failed",
				logging.Error(err),
				logging.String(logging.FieldSessionID, sessionID),
				logging.String(logging.FieldImpact, "the recording tail may be missing"),
			)
		}
	}()
}

func (w *Worker) handleFragment(ev fragmentEvent) {
	if ev.sessionID != w.session.ID {
		return
	}
	switch w.session.State {
	case StateRecording, StateStopping:
		w.session.appendChunk(ev.data)
	}
}

func (w *Worker) handleFragmentsClosed(ctx context.Context, ev fragmentsClosedEvent) {
	if ev.sessionID != w.session.ID {
		return
	}
	if ev.err != nil {
		logging.WarnWithContext(w.sessionLogger(), "encoder exited with error", "encoder_failed",
			logging.Error(ev.err),
			logging.String(logging.FieldImpact, "recording may be truncated"),
		)
	}
	if w.session.State == StateRecording {
		w.beginStop(ctx, "encoder stream closed")
	}
	if w.session.State == StateStopping {
		w.release()
	}
}

func (w *Worker) handleMixEnded(ctx context.Context, ev mixEndedEvent) {
	if ev.sessionID != w.session.ID || w.session.State != StateRecording || ev.err == nil {
		return
	}
	logging.WarnWithContext(w.sessionLogger(), "tab audio ended unexpectedly; finalizing", "tab_source_ended",
		logging.Error(ev.err),
		logging.String(logging.FieldImpact, "recording stops early"),
	)
	w.beginStop(ctx, "tab source ended")
}

// release stops every source and the playback output off-loop, then posts
// releasedEvent. Sources go first so a stalled read cannot hold the mix.
func (w *Worker) release() {
	s := &w.session
	sessionID, tab, mic, playback, mix := s.ID, s.tab, s.mic, s.playback, s.mix
	go func() {
		stopSources(tab, mic)
		if mix != nil {
			mix.Stop()
		}
		if playback != nil {
			_ = playback.Close()
		}
		if mix != nil {
			if err := mix.Wait(); err != nil {
				w.logger.Debug("mixer exited with error", logging.Error(err), logging.String(logging.FieldSessionID, sessionID))
			}
		}
		w.post(releasedEvent{sessionID: sessionID})
	}()
}

func (w *Worker) handleReleased(ctx context.Context, ev releasedEvent) {
	if ev.sessionID != w.session.ID || w.session.State != StateStopping {
		return
	}
	finalizedAt := w.opts.Now()
	var duration time.Duration
	if !w.session.StartedAt.IsZero() {
		duration = finalizedAt.Sub(w.session.StartedAt)
	}
	artifact := sink.Artifact{
		Data:        w.session.artifact(),
		ContentType: sink.ContentTypeWebM,
		Metadata: sink.Metadata{
			MeetingID:       w.session.MeetingID,
			UserID:          w.session.UserID,
			Timestamp:       finalizedAt.UTC(),
			DurationMillis:  duration.Milliseconds(),
			HasMicrophone:   w.session.hasMicrophone(),
			MeetingPlatform: meeting.Platform(w.session.MeetingID),
		},
	}
	w.sessionLogger().Info("recording finalized",
		logging.Int("bytes", len(artifact.Data)),
		logging.Int("chunks", len(w.session.Chunks)),
		logging.Duration("duration", duration),
		logging.Int64("duration_ms", artifact.Metadata.DurationMillis),
		logging.Bool("has_microphone", artifact.Metadata.HasMicrophone),
	)

	sessionID := w.session.ID
	go func() {
		uploadCtx, cancel := context.WithTimeout(ctx, w.opts.SinkTimeout)
		defer cancel()
		err := w.opts.Sink.Upload(uploadCtx, artifact)
		w.post(uploadedEvent{sessionID: sessionID, err: err, bytes: len(artifact.Data)})
	}()
}

func (w *Worker) handleUploaded(ctx context.Context, ev uploadedEvent) {
	if ev.sessionID != w.session.ID {
		return
	}
	logger := w.sessionLogger()
	if ev.err != nil {
		logging.WarnWithContext(logger, "artifact upload failed", "artifact_upload_failed",
			logging.Error(ev.err),
			logging.Bool("artifact_discarded", true),
			logging.Int("bytes", ev.bytes),
			logging.String(logging.FieldImpact, "the recording is lost; uploads are not retried"),
			logging.String(logging.FieldErrorHint, "check sink configuration and connectivity"),
		)
	} else {
		logger.Info("artifact handed to sink", logging.Int("bytes", ev.bytes))
	}
	w.session.reset()
	w.publish(ctx, false)
}

// fail resets after a hard acquisition or encoder failure. The controller
// raises its indicator before the worker confirms, so the false flag is sent
// even when it matches the last published value.
func (w *Worker) fail(ctx context.Context) {
	w.session.reset()
	w.published = nil
	w.publish(ctx, false)
}

// abandon stops everything without finalizing. Used on shutdown.
func (w *Worker) abandon() {
	s := &w.session
	if s.State == StateIdle {
		return
	}
	logging.WarnWithContext(w.sessionLogger(), "worker stopping with an active session; recording discarded", "session_abandoned",
		logging.Int("bytes", s.bytes),
		logging.String(logging.FieldImpact, "the in-progress recording is lost"),
		logging.String(logging.FieldErrorHint, "stop recordings before stopping the daemon"),
	)
	stopSources(s.tab, s.mic)
	if s.mix != nil {
		s.mix.Stop()
	}
	if s.stream != nil {
		_ = s.stream.Flush()
	}
	if s.playback != nil {
		_ = s.playback.Close()
	}
	s.reset()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.publish(ctx, false)
	w.refresh()
}

// publish mirrors the recording flag into the side channel and tells the
// controller, once per change.
func (w *Worker) publish(ctx context.Context, recording bool) {
	if w.published != nil && *w.published == recording {
		return
	}
	w.published = &recording
	if w.opts.SideChannel != nil {
		if err := w.opts.SideChannel.SetCaptureRecording(ctx, recording); err != nil {
			logging.WarnWithContext(w.logger, "failed to update capture state token", "side_channel_write_failed",
				logging.Error(err),
				logging.Bool("recording", recording),
				logging.String(logging.FieldImpact, "status queries may be stale until the next transition"),
			)
		}
	}
	if w.opts.Notifier != nil {
		w.opts.Notifier.Notify(ctx, message.SetRecording{Recording: recording})
	}
}

func (w *Worker) refresh() {
	snap := w.session.snapshot()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snap = snap
	idle := snap.State == StateIdle
	switch {
	case idle && !w.idleClosed:
		close(w.idle)
		w.idleClosed = true
	case !idle && w.idleClosed:
		w.idle = make(chan struct{})
		w.idleClosed = false
	}
}

func stopSources(sources ...media.Source) {
	for _, src := range sources {
		if src != nil {
			_ = src.Stop()
		}
	}
}
