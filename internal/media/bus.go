package media

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"mia/internal/logging"
)

// ErrTabEnded is reported by a mix whose tab source ended without Stop.
var ErrTabEnded = errors.New("tab source ended")

// Bus mixes a tab source and an optional microphone into one PCM stream.
type Bus struct {
	format Format
	micCap int
	logger *slog.Logger
}

// NewBus returns a bus that buffers at most micBufferMillis of microphone audio.
func NewBus(format Format, micBufferMillis int, logger *slog.Logger) *Bus {
	capSamples := format.SampleRate * micBufferMillis / 1000
	if capSamples < format.FrameSamples() {
		capSamples = format.FrameSamples()
	}
	return &Bus{format: format, micCap: capSamples, logger: logging.NewComponentLogger(logger, "mixer")}
}

// Mix is one running mixing graph.
type Mix struct {
	bus     *Bus
	group   *errgroup.Group
	stop    chan struct{}
	stopped sync.Once
	tabDone chan struct{}
	tabErr  error
	fifo    *sampleFIFO
	hasMic  bool
}

// Start routes tab to playback (when non-nil) and to out, and mic (when non-nil)
// to out only. The mix runs until Stop or until the tab source ends.
func (b *Bus) Start(ctx context.Context, tab, mic Source, playback io.Writer, out io.Writer) *Mix {
	group, _ := errgroup.WithContext(ctx)
	m := &Mix{
		bus:     b,
		group:   group,
		stop:    make(chan struct{}),
		tabDone: make(chan struct{}),
		fifo:    newSampleFIFO(b.micCap),
		hasMic:  mic != nil,
	}
	if mic != nil {
		group.Go(func() error {
			m.pumpMicrophone(mic)
			return nil
		})
	}
	frames := make(chan tabFrame)
	group.Go(func() error {
		m.readTab(tab, frames)
		return nil
	})
	group.Go(func() error {
		defer close(m.tabDone)
		m.tabErr = m.runTab(frames, playback, out)
		return m.tabErr
	})
	return m
}

type tabFrame struct {
	data []byte
	err  error
}

// readTab feeds whole frames to the tab loop until the source fails or the
// mix is stopped. A read blocked on a stalled source ends when the source is
// stopped.
func (m *Mix) readTab(tab Source, frames chan<- tabFrame) {
	size := m.bus.format.FrameBytes()
	for {
		frame := make([]byte, size)
		_, err := io.ReadFull(tab, frame)
		select {
		case frames <- tabFrame{data: frame, err: err}:
		case <-m.stop:
			return
		case <-m.tabDone:
			return
		}
		if err != nil {
			return
		}
	}
}

// HasMicrophone reports whether a microphone was routed to the bus.
func (m *Mix) HasMicrophone() bool {
	return m.hasMic
}

// Done closes when the tab loop exits. After that no more output is written.
func (m *Mix) Done() <-chan struct{} {
	return m.tabDone
}

// Err reports why the tab loop exited: nil after Stop, ErrTabEnded or a read
// or write error otherwise. Valid after Done closes.
func (m *Mix) Err() error {
	<-m.tabDone
	return m.tabErr
}

// Stop ends mixing and returns once no more output will be written. It does
// not wait for a pending source read.
func (m *Mix) Stop() {
	m.stopped.Do(func() { close(m.stop) })
	<-m.tabDone
}

// Wait blocks until every goroutine of the mix has exited. Sources must have
// been stopped, otherwise a pending read may block indefinitely.
func (m *Mix) Wait() error {
	err := m.group.Wait()
	if errors.Is(err, ErrTabEnded) {
		return nil
	}
	return err
}

func (m *Mix) stopRequested() bool {
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

func (m *Mix) runTab(frames <-chan tabFrame, playback io.Writer, out io.Writer) error {
	format := m.bus.format
	mixed := make([]byte, format.FrameBytes())
	mic := make([]int16, format.FrameSamples())

	for {
		var next tabFrame
		select {
		case <-m.stop:
			return nil
		case next = <-frames:
		}
		if m.stopRequested() {
			return nil
		}
		if err := next.err; err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrTabEnded
			}
			return fmt.Errorf("read tab audio: %w", err)
		}
		frame := next.data

		if playback != nil {
			if _, err := playback.Write(frame); err != nil {
				logging.WarnWithContext(m.bus.logger, "playback output failed; continuing without live monitoring", "playback_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "tab audio is still recorded but no longer audible"),
					logging.String(logging.FieldErrorHint, "check the default pulse sink"),
				)
				playback = nil
			}
		}

		n := m.fifo.pop(mic)
		mixFrame(mixed, frame, mic[:n])

		if _, err := out.Write(mixed); err != nil {
			return fmt.Errorf("write mixed audio: %w", err)
		}
	}
}

func (m *Mix) pumpMicrophone(mic Source) {
	buf := make([]byte, m.bus.format.FrameBytes())
	samples := make([]int16, len(buf)/bytesPerSample)
	carry := 0
	for {
		n, err := mic.Read(buf[carry:])
		n += carry
		whole := n / bytesPerSample
		for i := 0; i < whole; i++ {
			samples[i] = int16(binary.LittleEndian.Uint16(buf[i*bytesPerSample:]))
		}
		m.fifo.push(samples[:whole])
		carry = n % bytesPerSample
		if carry > 0 {
			buf[0] = buf[n-1]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !m.stopRequested() {
				logging.WarnWithContext(m.bus.logger, "microphone stream failed; mixing tab audio only", "microphone_read_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "remaining recording contains tab audio only"),
				)
			}
			return
		}
	}
}

// mixFrame writes tab+mic into dst with saturation. mic may be shorter than
// the frame; missing samples are treated as silence.
func mixFrame(dst, tab []byte, mic []int16) {
	samples := len(tab) / bytesPerSample
	for i := 0; i < samples; i++ {
		sum := int32(int16(binary.LittleEndian.Uint16(tab[i*bytesPerSample:])))
		if i < len(mic) {
			sum += int32(mic[i])
		}
		binary.LittleEndian.PutUint16(dst[i*bytesPerSample:], uint16(saturate(sum)))
	}
}

func saturate(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}

// sampleFIFO is a bounded queue that drops the oldest samples when full.
type sampleFIFO struct {
	mu      sync.Mutex
	buf     []int16
	limit   int
	dropped int
}

func newSampleFIFO(limit int) *sampleFIFO {
	return &sampleFIFO{limit: limit, buf: make([]int16, 0, limit)}
}

func (f *sampleFIFO) push(samples []int16) {
	if len(samples) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, samples...)
	if over := len(f.buf) - f.limit; over > 0 {
		f.dropped += over
		f.buf = append(f.buf[:0], f.buf[over:]...)
	}
}

func (f *sampleFIFO) pop(dst []int16) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(dst, f.buf)
	f.buf = append(f.buf[:0], f.buf[n:]...)
	return n
}
