package capture_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mia/internal/capture"
	"mia/internal/media"
	"mia/internal/message"
	"mia/internal/statestore"
	"mia/internal/testsupport"
)

const meetURL = "https://meet.example/abc-defg-hij"

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []message.ControllerMessage
}

func (n *recordingNotifier) Notify(_ context.Context, msg message.ControllerMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) flags() []bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]bool, 0, len(n.msgs))
	for _, msg := range n.msgs {
		if set, ok := msg.(message.SetRecording); ok {
			out = append(out, set.Recording)
		}
	}
	return out
}

type harness struct {
	worker   *capture.Worker
	acquirer *testsupport.FakeAcquirer
	encoder  *testsupport.FakeEncoder
	playback *testsupport.FakePlayback
	sink     *testsupport.RecordingSink
	store    *statestore.Store
	notifier *recordingNotifier
	cancel   context.CancelFunc
	done     chan error
}

type harnessOption func(*harness)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		acquirer: testsupport.NewFakeAcquirer(2 * time.Millisecond),
		encoder:  &testsupport.FakeEncoder{},
		playback: &testsupport.FakePlayback{},
		sink:     testsupport.NewRecordingSink(),
		store:    testsupport.MustOpenStore(t, cfg),
		notifier: &recordingNotifier{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.worker = capture.New(capture.Options{
		Acquirer:    h.acquirer,
		Resolver:    testsupport.FakeResolver{},
		Encoder:     h.encoder,
		Playback:    h.playback,
		Bus:         media.NewBus(media.DefaultFormat, 200, nil),
		Sink:        h.sink,
		SideChannel: h.store,
		Notifier:    h.notifier,
		SinkTimeout: time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.worker.Run(ctx) }()
	waitFor(t, "initial publish", func() bool { return len(h.notifier.flags()) == 1 })
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func startMessage(withMic bool) message.StartRecording {
	msg := message.StartRecording{
		TabHandle: media.NewHandle(media.KindTab, "tab.monitor"),
		UserID:    "user-1",
		SourceURL: meetURL,
	}
	if withMic {
		mic := media.NewHandle(media.KindMicrophone, "mic.input")
		msg.MicHandle = &mic
	}
	return msg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitState(t *testing.T, state capture.State) {
	t.Helper()
	waitFor(t, string(state), func() bool { return h.worker.Snapshot().State == state })
}

func (h *harness) deliver(t *testing.T, msg message.WorkerMessage) {
	t.Helper()
	if err := h.worker.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("Deliver(%s): %v", msg.Type(), err)
	}
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.worker.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func TestWorkerRecordsMeetingAndUploads(t *testing.T) {
	h := newHarness(t)

	h.deliver(t, startMessage(true))
	h.waitState(t, capture.StateRecording)

	recording, err := h.store.CaptureRecording(context.Background())
	if err != nil {
		t.Fatalf("CaptureRecording: %v", err)
	}
	if !recording {
		t.Fatal("expected side channel token while recording")
	}

	waitFor(t, "fragments", func() bool { return h.worker.Snapshot().Chunks >= 5 })
	h.deliver(t, message.StopRecording{})

	artifact, ok := h.sink.Next(3 * time.Second)
	if !ok {
		t.Fatal("expected artifact upload")
	}
	if !bytes.HasPrefix(artifact.Data, []byte("HDR")) || len(artifact.Data) <= 3 {
		t.Fatalf("artifact should start with the header and carry audio, got %d bytes", len(artifact.Data))
	}
	meta := artifact.Metadata
	if meta.MeetingID != "abc-defg-hij" {
		t.Fatalf("meeting id = %q", meta.MeetingID)
	}
	if meta.MeetingPlatform != "google-meet" {
		t.Fatalf("platform = %q", meta.MeetingPlatform)
	}
	if meta.UserID != "user-1" {
		t.Fatalf("user id = %q", meta.UserID)
	}
	if !meta.HasMicrophone {
		t.Fatal("expected hasMicrophone")
	}
	if meta.DurationMillis <= 0 {
		t.Fatalf("duration = %d, want > 0", meta.DurationMillis)
	}
	if artifact.ContentType != "audio/webm" {
		t.Fatalf("content type = %q", artifact.ContentType)
	}

	h.waitIdle(t)
	recording, err = h.store.CaptureRecording(context.Background())
	if err != nil {
		t.Fatalf("CaptureRecording: %v", err)
	}
	if recording {
		t.Fatal("side channel token should be cleared after stop")
	}
	if got := h.notifier.flags(); len(got) != 3 || got[0] || !got[1] || got[2] {
		t.Fatalf("notifications = %v, want [false true false]", got)
	}
	for _, src := range append(h.acquirer.Tabs(), h.acquirer.Mics()...) {
		if !src.Stopped() {
			t.Fatalf("source %s not released", src.Handle().Source)
		}
	}
	if !h.playback.Closed() {
		t.Fatal("playback output not closed")
	}
	if len(h.playback.Bytes()) == 0 {
		t.Fatal("tab audio was not routed to playback")
	}
}

func TestWorkerRejectsSecondStart(t *testing.T) {
	h := newHarness(t)

	h.deliver(t, startMessage(false))
	h.waitState(t, capture.StateRecording)
	waitFor(t, "fragments", func() bool { return h.worker.Snapshot().Chunks >= 2 })
	before := h.worker.Snapshot()

	err := h.worker.Deliver(context.Background(), startMessage(true))
	if !errors.Is(err, capture.ErrAlreadyRecording) {
		t.Fatalf("second start err = %v, want ErrAlreadyRecording", err)
	}
	after := h.worker.Snapshot()
	if after.SessionID != before.SessionID || after.Chunks < before.Chunks {
		t.Fatalf("session disturbed: before=%+v after=%+v", before, after)
	}
	if h.acquirer.MicCalls() != 0 {
		t.Fatalf("rejected start acquired a microphone")
	}
	if len(h.acquirer.Tabs()) != 1 {
		t.Fatalf("tab acquisitions = %d, want 1", len(h.acquirer.Tabs()))
	}
}

func TestWorkerMicrophoneFailureDegrades(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.acquirer.MicErr = media.ErrPermissionDenied })

	h.deliver(t, startMessage(true))
	h.waitState(t, capture.StateRecording)
	if h.worker.Snapshot().HasMicrophone {
		t.Fatal("snapshot reports a microphone after failed acquisition")
	}
	h.deliver(t, message.StopRecording{})

	artifact, ok := h.sink.Next(3 * time.Second)
	if !ok {
		t.Fatal("expected artifact upload")
	}
	if artifact.Metadata.HasMicrophone {
		t.Fatal("artifact should report hasMicrophone=false")
	}
}

func TestWorkerTabFailureAborts(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.acquirer.TabErr = media.ErrSourceUnavailable })

	h.deliver(t, startMessage(true))
	h.waitIdle(t)
	waitFor(t, "idle after failure", func() bool { return h.worker.Snapshot().State == capture.StateIdle })

	if _, ok := h.sink.Next(50 * time.Millisecond); ok {
		t.Fatal("failed start must not upload")
	}
	for _, mic := range h.acquirer.Mics() {
		if !mic.Stopped() {
			t.Fatal("microphone not released after tab failure")
		}
	}
	// The controller shows the indicator before the worker confirms, so a
	// failed start must correct it even though the flag never turned true.
	if got := h.notifier.flags(); len(got) != 2 || got[0] || got[1] {
		t.Fatalf("notifications = %v, want [false false]", got)
	}
}

func TestWorkerEncoderFailureAborts(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.encoder.StartErr = testsupport.ErrFake })

	h.deliver(t, startMessage(false))
	waitFor(t, "tab acquired", func() bool { return len(h.acquirer.Tabs()) == 1 })
	h.waitIdle(t)
	waitFor(t, "tab released", func() bool { return h.acquirer.Tabs()[0].Stopped() })
	if _, ok := h.sink.Next(50 * time.Millisecond); ok {
		t.Fatal("failed start must not upload")
	}
	waitFor(t, "indicator correction", func() bool { return len(h.notifier.flags()) == 2 })
	if got := h.notifier.flags(); got[1] {
		t.Fatalf("notifications = %v, want a trailing false", got)
	}
}

func TestWorkerStopWithStalledTabFinalizes(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.acquirer.StallTabAfter = 3 })

	h.deliver(t, startMessage(true))
	h.waitState(t, capture.StateRecording)
	waitFor(t, "fragments", func() bool { return h.worker.Snapshot().Chunks >= 4 })
	h.deliver(t, message.StopRecording{})

	artifact, ok := h.sink.Next(3 * time.Second)
	if !ok {
		t.Fatal("expected artifact although the tab source stalled")
	}
	if !bytes.HasPrefix(artifact.Data, []byte("HDR")) {
		t.Fatal("artifact missing header fragment")
	}
	h.waitIdle(t)
	for _, src := range append(h.acquirer.Tabs(), h.acquirer.Mics()...) {
		if !src.Stopped() {
			t.Fatalf("source %s not released", src.Handle().Source)
		}
	}
}

func TestWorkerStopWhileIdleIsNoop(t *testing.T) {
	h := newHarness(t)

	h.deliver(t, message.StopRecording{})
	if _, ok := h.sink.Next(50 * time.Millisecond); ok {
		t.Fatal("stop while idle uploaded something")
	}
	if state := h.worker.Snapshot().State; state != capture.StateIdle {
		t.Fatalf("state = %s", state)
	}
}

func TestWorkerStopDuringStartFinalizesEmpty(t *testing.T) {
	hold := make(chan struct{})
	h := newHarness(t, func(h *harness) { h.acquirer.Hold = hold })

	h.deliver(t, startMessage(true))
	h.waitState(t, capture.StateStarting)
	h.deliver(t, message.StopRecording{})
	close(hold)

	artifact, ok := h.sink.Next(3 * time.Second)
	if !ok {
		t.Fatal("expected an artifact for a session stopped while starting")
	}
	if len(artifact.Data) != 0 {
		t.Fatalf("artifact has %d bytes, want 0", len(artifact.Data))
	}
	if artifact.Metadata.DurationMillis != 0 {
		t.Fatalf("duration = %d, want 0", artifact.Metadata.DurationMillis)
	}
	h.waitIdle(t)
	if len(h.encoder.Streams()) != 0 {
		t.Fatal("encoder started for a session stopped while starting")
	}
	if got := h.notifier.flags(); len(got) != 1 {
		t.Fatalf("notifications = %v, recording flag should never have been raised", got)
	}
	for _, src := range append(h.acquirer.Tabs(), h.acquirer.Mics()...) {
		if !src.Stopped() {
			t.Fatal("source not released")
		}
	}
}

func TestWorkerSinkFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.sink.Err = testsupport.ErrFake })

	h.deliver(t, startMessage(false))
	h.waitState(t, capture.StateRecording)
	h.deliver(t, message.StopRecording{})
	if _, ok := h.sink.Next(3 * time.Second); !ok {
		t.Fatal("expected upload attempt")
	}
	h.waitIdle(t)

	h.deliver(t, startMessage(false))
	h.waitState(t, capture.StateRecording)
}

func TestWorkerTabEndFinalizes(t *testing.T) {
	h := newHarness(t)

	h.deliver(t, startMessage(false))
	h.waitState(t, capture.StateRecording)
	if err := h.acquirer.Tabs()[0].Stop(); err != nil {
		t.Fatalf("stop tab: %v", err)
	}

	artifact, ok := h.sink.Next(3 * time.Second)
	if !ok {
		t.Fatal("expected artifact after the tab source ended")
	}
	if !bytes.HasPrefix(artifact.Data, []byte("HDR")) {
		t.Fatal("artifact missing header fragment")
	}
	h.waitIdle(t)
}

func TestWorkerShutdownAbandonsSession(t *testing.T) {
	h := newHarness(t)

	h.deliver(t, startMessage(true))
	h.waitState(t, capture.StateRecording)
	h.cancel()
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		h.done <- nil
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, ok := h.sink.Next(50 * time.Millisecond); ok {
		t.Fatal("abandoned session was uploaded")
	}
	recording, err := h.store.CaptureRecording(context.Background())
	if err != nil {
		t.Fatalf("CaptureRecording: %v", err)
	}
	if recording {
		t.Fatal("side channel token left set after shutdown")
	}
	if err := h.worker.Deliver(context.Background(), message.StopRecording{}); !errors.Is(err, capture.ErrWorkerStopped) {
		t.Fatalf("Deliver after shutdown = %v, want ErrWorkerStopped", err)
	}
}

func TestWorkerDrainWaitsForUpload(t *testing.T) {
	h := newHarness(t)

	h.deliver(t, startMessage(false))
	h.waitState(t, capture.StateRecording)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.worker.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(h.sink.Artifacts()) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(h.sink.Artifacts()))
	}
}

func TestWorkerTestMicrophone(t *testing.T) {
	h := newHarness(t)
	if got := h.worker.TestMicrophone(context.Background()); !got.HasAccess {
		t.Fatal("expected microphone access")
	}
	mics := h.acquirer.Mics()
	if len(mics) != 1 || !mics[0].Stopped() {
		t.Fatal("test microphone not released")
	}

	denied := newHarness(t, func(h *harness) { h.acquirer.MicErr = media.ErrPermissionDenied })
	if got := denied.worker.TestMicrophone(context.Background()); got.HasAccess {
		t.Fatal("expected no access when acquisition is denied")
	}
}

func TestDeliverBeforeRun(t *testing.T) {
	w := capture.New(capture.Options{})
	if err := w.Deliver(context.Background(), message.StopRecording{}); !errors.Is(err, capture.ErrWorkerStopped) {
		t.Fatalf("Deliver = %v, want ErrWorkerStopped", err)
	}
}

type grantedConsent struct{}

func (grantedConsent) MicrophoneGranted(context.Context) (bool, error) { return true, nil }

func TestWorkerTestMicrophoneWithFFmpeg(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexec cat /dev/zero\n"), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	w := capture.New(capture.Options{
		Acquirer: &media.FFmpegAcquirer{
			FFmpeg:  media.FFmpeg{Binary: stub, Format: media.DefaultFormat},
			Consent: grantedConsent{},
		},
		Resolver: testsupport.FakeResolver{},
	})

	result := make(chan message.TestMicrophoneResult, 1)
	go func() { result <- w.TestMicrophone(context.Background()) }()
	select {
	case got := <-result:
		if !got.HasAccess {
			t.Fatal("expected microphone access through ffmpeg")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("TestMicrophone did not return; the ffmpeg source was not released")
	}
}
