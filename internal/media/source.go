package media

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrPermissionDenied is returned when microphone consent has not been granted.
	ErrPermissionDenied = errors.New("microphone permission not granted")
	// ErrSourceUnavailable is returned when a handle cannot be turned into a live source.
	ErrSourceUnavailable = errors.New("audio source unavailable")
	// ErrInvalidHandle is returned for handles of the wrong kind or with no source.
	ErrInvalidHandle = errors.New("invalid stream handle")
)

// Source is a live PCM stream. Read returns io.EOF after Stop.
type Source interface {
	io.Reader
	Handle() Handle
	// Stop releases the underlying capture. It is safe to call more than once.
	Stop() error
}

// Acquirer turns handles into live sources.
type Acquirer interface {
	AcquireTab(ctx context.Context, h Handle) (Source, error)
	AcquireMicrophone(ctx context.Context, h Handle) (Source, error)
}

// Resolver mints handles for the tab and microphone sources.
type Resolver interface {
	ResolveTab(ctx context.Context, tab string) (Handle, error)
	ResolveMicrophone(ctx context.Context) (Handle, error)
}

// ConsentChecker reports whether microphone capture has been granted.
type ConsentChecker interface {
	MicrophoneGranted(ctx context.Context) (bool, error)
}

// Playback opens the live monitoring output for tab audio.
type Playback interface {
	Open(ctx context.Context) (io.WriteCloser, error)
}

// Encoder starts an encoding run.
type Encoder interface {
	Start(ctx context.Context) (EncodeStream, error)
}

// EncodeStream accepts mixed PCM and emits container fragments in order.
type EncodeStream interface {
	io.Writer
	// Flush signals end of input. Fragments closes once the encoder has
	// written everything it buffered.
	Flush() error
	Fragments() <-chan []byte
	// Err reports the encoder's exit status. Valid after Fragments closes.
	Err() error
}
