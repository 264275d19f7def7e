package media_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"mia/internal/media"
	"mia/internal/testsupport"
)

func samples(t *testing.T, data []byte) []int16 {
	t.Helper()
	if len(data)%2 != 0 {
		t.Fatalf("odd byte count %d", len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

func TestBusTabOnlyCopiesToPlaybackAndOutput(t *testing.T) {
	format := media.DefaultFormat
	tab := testsupport.NewFakeSource(media.NewHandle(media.KindTab, "tab"), format, 1000, 5, 0)
	var playback, out bytes.Buffer

	bus := media.NewBus(format, 200, nil)
	mix := bus.Start(context.Background(), tab, nil, &playback, &out)
	<-mix.Done()

	if !errors.Is(mix.Err(), media.ErrTabEnded) {
		t.Fatalf("expected ErrTabEnded, got %v", mix.Err())
	}
	if err := mix.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if mix.HasMicrophone() {
		t.Fatal("expected no microphone")
	}
	if out.Len() != 5*format.FrameBytes() {
		t.Fatalf("expected 5 frames of output, got %d bytes", out.Len())
	}
	if !bytes.Equal(playback.Bytes(), out.Bytes()) {
		t.Fatal("tab-only mix should equal the playback stream")
	}
	for _, s := range samples(t, out.Bytes()) {
		if s != 1000 {
			t.Fatalf("unexpected sample %d", s)
		}
	}
}

func TestBusMixesMicrophoneIntoOutputOnly(t *testing.T) {
	format := media.DefaultFormat
	tab := testsupport.NewFakeSource(media.NewHandle(media.KindTab, "tab"), format, 1000, 20, time.Millisecond)
	mic := testsupport.NewFakeSource(media.NewHandle(media.KindMicrophone, "mic"), format, 500, 0, 0)
	var playback, out bytes.Buffer

	bus := media.NewBus(format, 200, nil)
	mix := bus.Start(context.Background(), tab, mic, &playback, &out)
	<-mix.Done()
	_ = mic.Stop()
	if err := mix.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !mix.HasMicrophone() {
		t.Fatal("expected microphone routed")
	}

	for _, s := range samples(t, playback.Bytes()) {
		if s != 1000 {
			t.Fatalf("microphone leaked into playback: sample %d", s)
		}
	}
	mixed := 0
	for _, s := range samples(t, out.Bytes()) {
		switch s {
		case 1500:
			mixed++
		case 1000:
		default:
			t.Fatalf("unexpected mixed sample %d", s)
		}
	}
	if mixed == 0 {
		t.Fatal("expected microphone samples in the mixed output")
	}
}

func TestBusStopEndsCleanly(t *testing.T) {
	format := media.DefaultFormat
	tab := testsupport.NewFakeSource(media.NewHandle(media.KindTab, "tab"), format, 1000, 0, time.Millisecond)
	var out bytes.Buffer

	mix := media.NewBus(format, 100, nil).Start(context.Background(), tab, nil, nil, &out)
	time.Sleep(10 * time.Millisecond)
	mix.Stop()
	if err := mix.Err(); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	written := out.Len()
	time.Sleep(5 * time.Millisecond)
	if out.Len() != written {
		t.Fatal("output written after Stop returned")
	}
	_ = tab.Stop()
	if err := mix.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestBusPlaybackFailureIsNotFatal(t *testing.T) {
	format := media.DefaultFormat
	tab := testsupport.NewFakeSource(media.NewHandle(media.KindTab, "tab"), format, 1000, 3, 0)
	var out bytes.Buffer

	mix := media.NewBus(format, 100, nil).Start(context.Background(), tab, nil, failingWriter{}, &out)
	<-mix.Done()
	if !errors.Is(mix.Err(), media.ErrTabEnded) {
		t.Fatalf("expected tab end, got %v", mix.Err())
	}
	if out.Len() != 3*format.FrameBytes() {
		t.Fatalf("expected recording to continue, got %d bytes", out.Len())
	}
}

func TestBusOutputFailureIsFatal(t *testing.T) {
	format := media.DefaultFormat
	tab := testsupport.NewFakeSource(media.NewHandle(media.KindTab, "tab"), format, 1000, 0, 0)

	mix := media.NewBus(format, 100, nil).Start(context.Background(), tab, nil, nil, failingWriter{})
	<-mix.Done()
	if mix.Err() == nil || errors.Is(mix.Err(), media.ErrTabEnded) {
		t.Fatalf("expected write error, got %v", mix.Err())
	}
	_ = tab.Stop()
	if err := mix.Wait(); err == nil {
		t.Fatal("expected Wait to surface the write error")
	}
}

// stalledSource never delivers audio; Read blocks until Stop.
type stalledSource struct {
	handle  media.Handle
	stopped chan struct{}
}

func newStalledSource() *stalledSource {
	return &stalledSource{handle: media.NewHandle(media.KindTab, "suspended.monitor"), stopped: make(chan struct{})}
}

func (s *stalledSource) Read([]byte) (int, error) {
	<-s.stopped
	return 0, io.EOF
}

func (s *stalledSource) Handle() media.Handle { return s.handle }

func (s *stalledSource) Stop() error {
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
	return nil
}

func TestBusStopDoesNotWaitForStalledTab(t *testing.T) {
	tab := newStalledSource()
	var out bytes.Buffer
	mix := media.NewBus(media.DefaultFormat, 100, nil).Start(context.Background(), tab, nil, nil, &out)

	stopped := make(chan struct{})
	go func() {
		mix.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a stalled tab source")
	}
	if err := mix.Err(); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	_ = tab.Stop()
	waited := make(chan error, 1)
	go func() { waited <- mix.Wait() }()
	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the source was stopped")
	}
}
