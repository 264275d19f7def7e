package statestore

import (
	"context"
	"fmt"
	"strconv"
)

// Well-known keys.
const (
	// KeyCaptureState is the restart-survivable side channel. Only the capture
	// worker writes it; it holds CaptureRecording exactly while a session is
	// recording and is absent otherwise.
	KeyCaptureState = "capture.state"
	// KeyUIRecording is the queryable flag republished by the controller.
	KeyUIRecording = "ui.recording"
	// KeyUIBadge is the user-visible indicator text.
	KeyUIBadge = "ui.badge"
	// KeyMicrophoneGrant records the outcome of the consent gate.
	KeyMicrophoneGrant = "permission.microphone"
)

// CaptureRecording is the side-channel token value while recording.
const CaptureRecording = "recording"

// SetCaptureRecording mirrors the worker's recording state into the side channel.
func (s *Store) SetCaptureRecording(ctx context.Context, recording bool) error {
	if recording {
		return s.Set(ctx, KeyCaptureState, CaptureRecording)
	}
	return s.Delete(ctx, KeyCaptureState)
}

// CaptureRecording reports whether the side channel currently says "recording".
func (s *Store) CaptureRecording(ctx context.Context) (bool, error) {
	entry, ok, err := s.Get(ctx, KeyCaptureState)
	if err != nil {
		return false, err
	}
	return ok && entry.Value == CaptureRecording, nil
}

// SetBool stores a boolean token.
func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	return s.Set(ctx, key, strconv.FormatBool(value))
}

// Bool reads a boolean token. Absent keys read as false.
func (s *Store) Bool(ctx context.Context, key string) (bool, error) {
	entry, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	value, err := strconv.ParseBool(entry.Value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}
