package capture

import (
	"io"
	"time"

	"mia/internal/media"
)

// State is the recording session state.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingPermission State = "awaiting-permission"
	StateStarting           State = "starting"
	StateRecording          State = "recording"
	StateStopping           State = "stopping"
)

// Session is the worker's only recording session. It is owned by the event
// loop and passed by reference to the handlers that run there.
type Session struct {
	ID        string
	State     State
	TabHandle media.Handle
	MicHandle *media.Handle
	MeetingID string
	UserID    string
	// StartedAt is set once, when encoding begins.
	StartedAt time.Time
	// Chunks are encoder fragments in arrival order.
	Chunks [][]byte
	bytes  int

	// stopRequested records a stop that arrived while Starting.
	stopRequested bool

	tab      media.Source
	mic      media.Source
	playback io.WriteCloser
	stream   media.EncodeStream
	mix      *media.Mix
}

func (s *Session) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.Chunks = append(s.Chunks, chunk)
	s.bytes += len(chunk)
}

// artifact concatenates the buffered fragments.
func (s *Session) artifact() []byte {
	out := make([]byte, 0, s.bytes)
	for _, chunk := range s.Chunks {
		out = append(out, chunk...)
	}
	return out
}

func (s *Session) hasMicrophone() bool {
	return s.mic != nil
}

// reset returns the session to Idle, dropping buffers and source references.
func (s *Session) reset() {
	*s = Session{State: StateIdle}
}

// Snapshot is a read-only view of the session for status reporting.
type Snapshot struct {
	SessionID     string    `json:"sessionId,omitempty"`
	State         State     `json:"state"`
	MeetingID     string    `json:"meetingId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
	Chunks        int       `json:"chunks"`
	Bytes         int       `json:"bytes"`
	HasMicrophone bool      `json:"hasMicrophone"`
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		SessionID:     s.ID,
		State:         s.State,
		MeetingID:     s.MeetingID,
		UserID:        s.UserID,
		StartedAt:     s.StartedAt,
		Chunks:        len(s.Chunks),
		Bytes:         s.bytes,
		HasMicrophone: s.hasMicrophone(),
	}
}
