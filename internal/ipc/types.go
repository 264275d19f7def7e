package ipc

import (
	"time"

	"mia/internal/capture"
	"mia/internal/message"
)

// DeliverRequest carries one worker directive.
type DeliverRequest struct {
	Envelope message.Envelope `json:"envelope"`
}

// DeliverResponse reports admission. One-way callers never read it.
type DeliverResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// TestMicrophoneRequest asks the worker to check the microphone.
type TestMicrophoneRequest struct{}

// TestMicrophoneResponse mirrors message.TestMicrophoneResult.
type TestMicrophoneResponse struct {
	HasAccess bool `json:"hasAccess"`
}

// StatusRequest asks for daemon status.
type StatusRequest struct{}

// StatusResponse describes the daemon and its recording session.
type StatusResponse struct {
	Running   bool             `json:"running"`
	PID       int              `json:"pid"`
	StartedAt time.Time        `json:"started_at"`
	LockPath  string           `json:"lock_path"`
	Session   capture.Snapshot `json:"session"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Stopping bool `json:"stopping"`
}
