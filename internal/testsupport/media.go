package testsupport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"mia/internal/media"
)

// FakeSource emits frames filled with a constant sample value until Stop or
// until Frames frames have been produced (0 = unlimited).
type FakeSource struct {
	handle   media.Handle
	frame    []byte
	pending  []byte
	frames   int
	produced int
	interval time.Duration
	// stallAfter > 0 blocks reads after that many frames until Stop.
	stallAfter int

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// NewFakeSource builds a source for h producing value in every sample.
func NewFakeSource(h media.Handle, format media.Format, value int16, frames int, interval time.Duration) *FakeSource {
	frame := make([]byte, format.FrameBytes())
	for i := 0; i < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], uint16(value))
	}
	return &FakeSource{handle: h, frame: frame, frames: frames, interval: interval, stopCh: make(chan struct{})}
}

func (s *FakeSource) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		if s.Stopped() {
			return 0, io.EOF
		}
		if s.frames > 0 && s.produced >= s.frames {
			return 0, io.EOF
		}
		if s.stallAfter > 0 && s.produced >= s.stallAfter {
			<-s.stopCh
			return 0, io.EOF
		}
		if s.interval > 0 {
			select {
			case <-time.After(s.interval):
			case <-s.stopCh:
				return 0, io.EOF
			}
		}
		s.pending = s.frame
		s.produced++
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *FakeSource) Handle() media.Handle { return s.handle }

// Stop implements media.Source.
func (s *FakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	return nil
}

// Stopped reports whether Stop was called.
func (s *FakeSource) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// FakeAcquirer hands out FakeSources and records what it acquired.
type FakeAcquirer struct {
	Format   media.Format
	Interval time.Duration
	TabErr   error
	MicErr   error
	// Hold, when non-nil, blocks tab acquisition until it is closed.
	Hold chan struct{}
	// StallTabAfter makes tab sources stop delivering audio after that many
	// frames without ending, like a suspended sink.
	StallTabAfter int

	mu      sync.Mutex
	tabs    []*FakeSource
	mics    []*FakeSource
	micCall int
}

// NewFakeAcquirer returns an acquirer producing frames every interval.
func NewFakeAcquirer(interval time.Duration) *FakeAcquirer {
	return &FakeAcquirer{Format: media.DefaultFormat, Interval: interval}
}

// AcquireTab implements media.Acquirer.
func (a *FakeAcquirer) AcquireTab(ctx context.Context, h media.Handle) (media.Source, error) {
	if a.Hold != nil {
		select {
		case <-a.Hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.TabErr != nil {
		return nil, a.TabErr
	}
	src := NewFakeSource(h, a.Format, 1000, 0, a.Interval)
	src.stallAfter = a.StallTabAfter
	a.mu.Lock()
	a.tabs = append(a.tabs, src)
	a.mu.Unlock()
	return src, nil
}

// AcquireMicrophone implements media.Acquirer.
func (a *FakeAcquirer) AcquireMicrophone(_ context.Context, h media.Handle) (media.Source, error) {
	a.mu.Lock()
	a.micCall++
	a.mu.Unlock()
	if a.MicErr != nil {
		return nil, a.MicErr
	}
	src := NewFakeSource(h, a.Format, 500, 0, a.Interval)
	a.mu.Lock()
	a.mics = append(a.mics, src)
	a.mu.Unlock()
	return src, nil
}

// Tabs returns every tab source handed out.
func (a *FakeAcquirer) Tabs() []*FakeSource {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*FakeSource(nil), a.tabs...)
}

// Mics returns every microphone source handed out.
func (a *FakeAcquirer) Mics() []*FakeSource {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*FakeSource(nil), a.mics...)
}

// MicCalls counts microphone acquisition attempts, including failures.
func (a *FakeAcquirer) MicCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.micCall
}

// FakeEncoder emits a header fragment followed by one fragment per write.
type FakeEncoder struct {
	StartErr error
	Header   []byte

	mu      sync.Mutex
	streams []*FakeStream
}

// Start implements media.Encoder.
func (e *FakeEncoder) Start(context.Context) (media.EncodeStream, error) {
	if e.StartErr != nil {
		return nil, e.StartErr
	}
	stream := &FakeStream{fragments: make(chan []byte, 4096)}
	header := e.Header
	if header == nil {
		header = []byte("HDR")
	}
	stream.fragments <- append([]byte(nil), header...)
	e.mu.Lock()
	e.streams = append(e.streams, stream)
	e.mu.Unlock()
	return stream, nil
}

// Streams returns every stream started.
func (e *FakeEncoder) Streams() []*FakeStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakeStream(nil), e.streams...)
}

// FakeStream records everything written to it.
type FakeStream struct {
	mu        sync.Mutex
	closed    bool
	written   int
	fragments chan []byte
}

func (s *FakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.written += len(p)
	s.fragments <- append([]byte(nil), p...)
	return len(p), nil
}

// Flush implements media.EncodeStream.
func (s *FakeStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.fragments)
	}
	return nil
}

func (s *FakeStream) Fragments() <-chan []byte { return s.fragments }
func (s *FakeStream) Err() error               { return nil }

// Flushed reports whether Flush was called.
func (s *FakeStream) Flushed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakePlayback captures playback output.
type FakePlayback struct {
	OpenErr error

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// Open implements media.Playback.
func (p *FakePlayback) Open(context.Context) (io.WriteCloser, error) {
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	return playbackWriter{p}, nil
}

// Bytes returns everything played back so far.
func (p *FakePlayback) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.buf.Bytes()...)
}

// Closed reports whether the playback output was closed.
func (p *FakePlayback) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type playbackWriter struct{ p *FakePlayback }

func (w playbackWriter) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	if w.p.closed {
		return 0, io.ErrClosedPipe
	}
	return w.p.buf.Write(b)
}

func (w playbackWriter) Close() error {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	w.p.closed = true
	return nil
}

// FakeResolver mints handles without touching the sound server.
type FakeResolver struct {
	TabErr error
	MicErr error
}

// ResolveTab implements media.Resolver.
func (r FakeResolver) ResolveTab(_ context.Context, tab string) (media.Handle, error) {
	if r.TabErr != nil {
		return media.Handle{}, r.TabErr
	}
	if tab == "" {
		tab = "default.monitor"
	}
	return media.NewHandle(media.KindTab, tab), nil
}

// ResolveMicrophone implements media.Resolver.
func (r FakeResolver) ResolveMicrophone(context.Context) (media.Handle, error) {
	if r.MicErr != nil {
		return media.Handle{}, r.MicErr
	}
	return media.NewHandle(media.KindMicrophone, "default.input"), nil
}

// ErrFake is a generic injected failure.
var ErrFake = errors.New("injected failure")
