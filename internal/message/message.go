package message

import (
	"mia/internal/media"
)

// Kind distinguishes fire-and-forget messages from request/response exchanges.
type Kind int

const (
	OneWay Kind = iota
	RequestResponse
)

func (k Kind) String() string {
	if k == RequestResponse {
		return "request-response"
	}
	return "one-way"
}

// Target names the context a message is addressed to.
type Target string

const (
	TargetWorker     Target = "worker"
	TargetController Target = "controller"
	TargetGate       Target = "gate"
)

// Wire tags.
const (
	TypeStartRecording = "start-recording"
	TypeStopRecording  = "stop-recording"
	TypeTestMicrophone = "test-microphone"
	TypeSetRecording   = "set-recording"
	TypeGateClosed     = "gate-closed"
	TypeGateNavigated  = "gate-navigated"
)

// Message is implemented by every variant on every channel.
type Message interface {
	Type() string
	Target() Target
	Kind() Kind
}

// WorkerMessage is a directive or query addressed to the capture worker.
type WorkerMessage interface {
	Message
	workerMessage()
}

// ControllerMessage is a notification addressed to the controller.
type ControllerMessage interface {
	Message
	controllerMessage()
}

// GateEvent is a completion signal emitted by the consent gate.
type GateEvent interface {
	Message
	gateEvent()
	// Granted reports whether consent was obtained by the time of the event.
	Granted() bool
}

// StartRecording asks the worker to begin a session.
type StartRecording struct {
	TabHandle media.Handle  `json:"tabStreamHandle"`
	MicHandle *media.Handle `json:"micStreamHandle,omitempty"`
	UserID    string        `json:"userId,omitempty"`
	MeetingID string        `json:"meetingId,omitempty"`
	// SourceURL is the originating page address; the worker derives MeetingID
	// from it when MeetingID is empty.
	SourceURL string `json:"sourceUrl,omitempty"`
}

func (StartRecording) Type() string   { return TypeStartRecording }
func (StartRecording) Target() Target { return TargetWorker }
func (StartRecording) Kind() Kind     { return OneWay }
func (StartRecording) workerMessage() {}

// StopRecording asks the worker to finalize the active session.
type StopRecording struct{}

func (StopRecording) Type() string   { return TypeStopRecording }
func (StopRecording) Target() Target { return TargetWorker }
func (StopRecording) Kind() Kind     { return OneWay }
func (StopRecording) workerMessage() {}

// TestMicrophone checks microphone access with a throwaway acquisition.
type TestMicrophone struct{}

func (TestMicrophone) Type() string   { return TypeTestMicrophone }
func (TestMicrophone) Target() Target { return TargetWorker }
func (TestMicrophone) Kind() Kind     { return RequestResponse }
func (TestMicrophone) workerMessage() {}

// TestMicrophoneResult is the response to TestMicrophone.
type TestMicrophoneResult struct {
	HasAccess bool `json:"hasAccess"`
}

// SetRecording reports the worker's recording flag to the controller.
type SetRecording struct {
	Recording bool `json:"recording"`
}

func (SetRecording) Type() string       { return TypeSetRecording }
func (SetRecording) Target() Target     { return TargetController }
func (SetRecording) Kind() Kind         { return OneWay }
func (SetRecording) controllerMessage() {}

// GateClosed is emitted when the gate surface goes away, for any reason.
type GateClosed struct {
	WasGranted bool `json:"granted"`
}

func (GateClosed) Type() string    { return TypeGateClosed }
func (GateClosed) Target() Target  { return TargetController }
func (GateClosed) Kind() Kind      { return RequestResponse }
func (GateClosed) gateEvent()      {}
func (e GateClosed) Granted() bool { return e.WasGranted }

// GateNavigated is emitted when the consent request round-trip concludes.
type GateNavigated struct {
	WasGranted bool `json:"granted"`
}

func (GateNavigated) Type() string    { return TypeGateNavigated }
func (GateNavigated) Target() Target  { return TargetController }
func (GateNavigated) Kind() Kind      { return RequestResponse }
func (GateNavigated) gateEvent()      {}
func (e GateNavigated) Granted() bool { return e.WasGranted }
