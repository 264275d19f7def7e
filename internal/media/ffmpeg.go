package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"mia/internal/logging"
)

var errProcessStopped = errors.New("process stopped")

const (
	defaultAcquireTimeout = 3 * time.Second
	stopGracePeriod       = 2 * time.Second
	fragmentReadSize      = 32 * 1024
)

// FFmpeg holds settings shared by the ffmpeg-backed pipeline stages.
type FFmpeg struct {
	Binary  string
	Format  Format
	Codec   string
	Bitrate string
	// LogDir receives per-run stderr captures when a process fails.
	LogDir string
	Logger *slog.Logger
	// AcquireTimeout bounds how long a source may take to deliver its first byte.
	AcquireTimeout time.Duration
}

func (f FFmpeg) binary() string {
	if b := strings.TrimSpace(f.Binary); b != "" {
		return b
	}
	return "ffmpeg"
}

func (f FFmpeg) pcmArgs() []string {
	return []string{"-f", "s16le", "-ar", strconv.Itoa(f.Format.SampleRate), "-ac", "1"}
}

// CaptureArgs returns the argument list for capturing a pulse source as PCM on stdout.
func (f FFmpeg) CaptureArgs(source string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-f", "pulse", "-fragment_size", strconv.Itoa(f.Format.FrameBytes()), "-i", source}
	args = append(args, f.pcmArgs()...)
	return append(args, "pipe:1")
}

// EncodeArgs returns the argument list for encoding PCM on stdin to WebM on stdout.
func (f FFmpeg) EncodeArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, f.pcmArgs()...)
	args = append(args, "-i", "pipe:0", "-c:a", f.Codec)
	if f.Bitrate != "" {
		args = append(args, "-b:a", f.Bitrate)
	}
	return append(args, "-f", "webm", "-cluster_time_limit", "1000", "-flush_packets", "1", "pipe:1")
}

// PlaybackArgs returns the argument list for playing PCM on stdin through the default pulse sink.
func (f FFmpeg) PlaybackArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, f.pcmArgs()...)
	return append(args, "-i", "pipe:0", "-f", "pulse", "mia-playback")
}

// FFmpegAcquirer captures pulse sources with ffmpeg.
type FFmpegAcquirer struct {
	FFmpeg
	Consent ConsentChecker
}

// AcquireTab implements Acquirer.
func (a *FFmpegAcquirer) AcquireTab(ctx context.Context, h Handle) (Source, error) {
	if !h.Valid(KindTab) {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidHandle, h)
	}
	return a.capture(ctx, h)
}

// AcquireMicrophone implements Acquirer. Capture requires a recorded grant.
func (a *FFmpegAcquirer) AcquireMicrophone(ctx context.Context, h Handle) (Source, error) {
	if !h.Valid(KindMicrophone) {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidHandle, h)
	}
	if a.Consent != nil {
		granted, err := a.Consent.MicrophoneGranted(ctx)
		if err != nil {
			return nil, fmt.Errorf("check microphone consent: %w", err)
		}
		if !granted {
			return nil, ErrPermissionDenied
		}
	}
	return a.capture(ctx, h)
}

func (a *FFmpegAcquirer) capture(ctx context.Context, h Handle) (Source, error) {
	args := a.CaptureArgs(h.Source)
	proc, err := startProcess(a.binary(), args, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, h.Source, err)
	}

	reader := bufio.NewReaderSize(proc.stdout, a.Format.FrameBytes())
	timeout := a.AcquireTimeout
	if timeout <= 0 {
		timeout = defaultAcquireTimeout
	}
	ready := make(chan error, 1)
	go func() {
		_, peekErr := reader.Peek(1)
		ready <- peekErr
	}()

	var readyErr error
	select {
	case readyErr = <-ready:
	case <-time.After(timeout):
		readyErr = errors.New("no audio within acquire timeout")
	case <-ctx.Done():
		readyErr = ctx.Err()
	}
	if readyErr != nil {
		_ = proc.stop()
		a.writeToolLog(a.binary(), args, proc.stderr.String())
		detail := strings.TrimSpace(proc.stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%w: %s: %v (%s)", ErrSourceUnavailable, h.Source, readyErr, detail)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, h.Source, readyErr)
	}

	a.logger().Debug("audio source acquired",
		logging.String("source", h.Source),
		logging.String("kind", string(h.Kind)),
		logging.String("handle_id", h.ID),
	)
	return &processSource{handle: h, reader: reader, proc: proc}, nil
}

func (f FFmpeg) logger() *slog.Logger {
	return logging.NewComponentLogger(f.Logger, "ffmpeg")
}

type processSource struct {
	handle Handle
	reader io.Reader
	proc   *process
}

func (s *processSource) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	if err != nil && s.proc.stopped() {
		err = io.EOF
	}
	return n, err
}

func (s *processSource) Handle() Handle { return s.handle }
func (s *processSource) Stop() error    { return s.proc.stop() }

// FFmpegEncoder encodes mixed PCM to WebM/Opus.
type FFmpegEncoder struct {
	FFmpeg
}

// Start implements Encoder.
func (e *FFmpegEncoder) Start(ctx context.Context) (EncodeStream, error) {
	args := e.EncodeArgs()
	stdin, stdinWriter := io.Pipe()
	proc, err := startProcess(e.binary(), args, stdin)
	if err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}
	stream := &processEncodeStream{
		stdin:     stdinWriter,
		proc:      proc,
		fragments: make(chan []byte, 16),
	}
	go stream.pump(func() { e.writeToolLog(e.binary(), args, proc.stderr.String()) })
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Flush()
		case <-proc.done:
		}
	}()
	return stream, nil
}

type processEncodeStream struct {
	stdin     *io.PipeWriter
	proc      *process
	fragments chan []byte
	flushOnce sync.Once
	err       error
}

func (s *processEncodeStream) Write(p []byte) (int, error) { return s.stdin.Write(p) }
func (s *processEncodeStream) Fragments() <-chan []byte    { return s.fragments }
func (s *processEncodeStream) Err() error                  { return s.err }

func (s *processEncodeStream) Flush() error {
	s.flushOnce.Do(func() { _ = s.stdin.Close() })
	return nil
}

func (s *processEncodeStream) pump(onFailure func()) {
	defer close(s.fragments)
	for {
		buf := make([]byte, fragmentReadSize)
		n, err := s.proc.stdout.Read(buf)
		if n > 0 {
			s.fragments <- buf[:n]
		}
		if err != nil {
			if waitErr := s.proc.wait(); waitErr != nil {
				s.err = fmt.Errorf("encoder exited: %w", waitErr)
				onFailure()
			} else if !errors.Is(err, io.EOF) {
				s.err = fmt.Errorf("read encoder output: %w", err)
			}
			return
		}
	}
}

// FFmpegPlayback plays tab audio through the default pulse sink.
type FFmpegPlayback struct {
	FFmpeg
}

// Open implements Playback.
func (p *FFmpegPlayback) Open(_ context.Context) (io.WriteCloser, error) {
	stdin, stdinWriter := io.Pipe()
	proc, err := startProcess(p.binary(), p.PlaybackArgs(), stdin)
	if err != nil {
		return nil, fmt.Errorf("start playback: %w", err)
	}
	go func() {
		_, _ = io.Copy(io.Discard, proc.stdout)
	}()
	return &playbackWriter{stdin: stdinWriter, proc: proc}, nil
}

type playbackWriter struct {
	stdin *io.PipeWriter
	proc  *process
	once  sync.Once
}

func (w *playbackWriter) Write(p []byte) (int, error) { return w.stdin.Write(p) }

func (w *playbackWriter) Close() error {
	w.once.Do(func() {
		_ = w.stdin.Close()
		select {
		case <-w.proc.done:
		case <-time.After(stopGracePeriod):
			_ = w.proc.stop()
		}
	})
	return nil
}

// process wraps a child whose stdout is delivered through a pipe that yields
// io.EOF after the child exits, so readers never race Wait. stop closes the
// read side, so a child nobody reads from can still be reaped.
type process struct {
	cmd      *exec.Cmd
	stdout   *io.PipeReader
	stderr   *tailBuffer
	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
	stopping bool
	mu       sync.Mutex
}

func startProcess(binary string, args []string, stdin io.Reader) (*process, error) {
	cmd := exec.Command(binary, args...) //nolint:gosec
	stdoutReader, stdoutWriter := io.Pipe()
	p := &process{
		cmd:    cmd,
		stdout: stdoutReader,
		stderr: newTailBuffer(8 * 1024),
		done:   make(chan struct{}),
	}
	cmd.Stdin = stdin
	cmd.Stdout = stdoutWriter
	cmd.Stderr = p.stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if p.stopping {
			err = nil
		}
		p.waitErr = err
		p.mu.Unlock()
		_ = stdoutWriter.CloseWithError(err)
		if closer, ok := stdin.(io.Closer); ok {
			_ = closer.Close()
		}
		close(p.done)
	}()
	return p, nil
}

func (p *process) stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

func (p *process) wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// stop interrupts the child and kills it if it has not exited after a grace period.
func (p *process) stop() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopping = true
		p.mu.Unlock()
		if p.cmd.Process == nil {
			return
		}
		_ = p.cmd.Process.Signal(syscall.SIGINT)
		// Nobody reads stdout once a stop begins; unblock the copy so Wait returns.
		_ = p.stdout.CloseWithError(errProcessStopped)
		select {
		case <-p.done:
		case <-time.After(stopGracePeriod):
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	})
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
