package message_test

import (
	"encoding/json"
	"errors"
	"testing"

	"mia/internal/media"
	"mia/internal/message"
)

func TestWorkerEnvelopeRoundTrip(t *testing.T) {
	tab := media.NewHandle(media.KindTab, "alsa_output.monitor")
	mic := media.NewHandle(media.KindMicrophone, "alsa_input")
	start := message.StartRecording{TabHandle: tab, MicHandle: &mic, UserID: "u-1", SourceURL: "https://meet.example/abc-defg-hij"}

	env, err := message.Encode(start)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if env.Type != message.TypeStartRecording || env.Target != message.TargetWorker {
		t.Fatalf("unexpected envelope header: %+v", env)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decodedEnv message.Envelope
	if err := json.Unmarshal(raw, &decodedEnv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	msg, err := message.DecodeWorker(decodedEnv)
	if err != nil {
		t.Fatalf("DecodeWorker: %v", err)
	}
	got, ok := msg.(message.StartRecording)
	if !ok {
		t.Fatalf("expected StartRecording, got %T", msg)
	}
	if got.TabHandle != tab || got.MicHandle == nil || *got.MicHandle != mic || got.UserID != "u-1" {
		t.Fatalf("payload lost in transit: %+v", got)
	}
}

func TestDecodeWorkerErrors(t *testing.T) {
	tests := []struct {
		name string
		env  message.Envelope
		want error
	}{
		{name: "unknown tag", env: message.Envelope{Type: "pause-recording"}, want: message.ErrUnknownMessage},
		{name: "controller message", env: message.Envelope{Type: message.TypeSetRecording}, want: message.ErrWrongTarget},
		{name: "misrouted target", env: message.Envelope{Type: message.TypeStopRecording, Target: message.TargetGate}, want: message.ErrWrongTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := message.DecodeWorker(tt.env)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeWorkerRejectsMalformedPayload(t *testing.T) {
	_, err := message.DecodeWorker(message.Envelope{Type: message.TypeStartRecording, Payload: json.RawMessage(`{"tabStreamHandle":7}`)})
	if err == nil {
		t.Fatal("expected payload error")
	}
}

func TestKinds(t *testing.T) {
	cases := []struct {
		msg  message.Message
		want message.Kind
	}{
		{message.StartRecording{}, message.OneWay},
		{message.StopRecording{}, message.OneWay},
		{message.TestMicrophone{}, message.RequestResponse},
		{message.SetRecording{}, message.OneWay},
		{message.GateClosed{}, message.RequestResponse},
		{message.GateNavigated{}, message.RequestResponse},
	}
	for _, c := range cases {
		if c.msg.Kind() != c.want {
			t.Fatalf("%s: kind %v, want %v", c.msg.Type(), c.msg.Kind(), c.want)
		}
	}
}

func TestControllerAndGateDecoding(t *testing.T) {
	env, err := message.Encode(message.SetRecording{Recording: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := message.DecodeController(env)
	if err != nil {
		t.Fatalf("DecodeController: %v", err)
	}
	if set, ok := msg.(message.SetRecording); !ok || !set.Recording {
		t.Fatalf("unexpected controller message: %#v", msg)
	}
	if _, err := message.DecodeController(message.Envelope{Type: message.TypeStopRecording}); !errors.Is(err, message.ErrWrongTarget) {
		t.Fatalf("expected ErrWrongTarget, got %v", err)
	}

	env, err = message.Encode(message.GateNavigated{WasGranted: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ev, err := message.DecodeGate(env)
	if err != nil {
		t.Fatalf("DecodeGate: %v", err)
	}
	if !ev.Granted() {
		t.Fatal("expected granted gate event")
	}
	if _, err := message.DecodeGate(message.Envelope{Type: "gate-exploded"}); !errors.Is(err, message.ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}
