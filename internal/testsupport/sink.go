package testsupport

import (
	"context"
	"sync"
	"time"

	"mia/internal/sink"
)

// RecordingSink stores every uploaded artifact.
type RecordingSink struct {
	Err error

	mu        sync.Mutex
	artifacts []sink.Artifact
	uploaded  chan sink.Artifact
}

// NewRecordingSink returns an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{uploaded: make(chan sink.Artifact, 16)}
}

// Upload implements sink.Sink.
func (s *RecordingSink) Upload(_ context.Context, artifact sink.Artifact) error {
	s.mu.Lock()
	s.artifacts = append(s.artifacts, artifact)
	s.mu.Unlock()
	s.uploaded <- artifact
	return s.Err
}

// Artifacts returns every upload seen so far.
func (s *RecordingSink) Artifacts() []sink.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sink.Artifact(nil), s.artifacts...)
}

// Next waits for the next upload.
func (s *RecordingSink) Next(timeout time.Duration) (sink.Artifact, bool) {
	select {
	case a := <-s.uploaded:
		return a, true
	case <-time.After(timeout):
		return sink.Artifact{}, false
	}
}
