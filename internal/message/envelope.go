package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownMessage is returned when an envelope carries an unrecognized tag.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrWrongTarget is returned when an envelope is decoded for the wrong channel.
	ErrWrongTarget = errors.New("message addressed to a different context")
)

// Envelope is the wire form of any message.
type Envelope struct {
	Type    string          `json:"type"`
	Target  Target          `json:"target"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps msg in an envelope.
func Encode(msg Message) (Envelope, error) {
	if msg == nil {
		return Envelope{}, errors.New("encode: nil message")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return Envelope{Type: msg.Type(), Target: msg.Target(), Payload: payload}, nil
}

// DecodeWorker decodes an envelope addressed to the capture worker.
func DecodeWorker(env Envelope) (WorkerMessage, error) {
	var msg WorkerMessage
	switch env.Type {
	case TypeStartRecording:
		var m StartRecording
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case TypeStopRecording:
		msg = StopRecording{}
	case TypeTestMicrophone:
		msg = TestMicrophone{}
	case TypeSetRecording, TypeGateClosed, TypeGateNavigated:
		return nil, fmt.Errorf("%w: %s is not a worker message", ErrWrongTarget, env.Type)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	if err := checkTarget(env, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeController decodes an envelope addressed to the controller.
func DecodeController(env Envelope) (ControllerMessage, error) {
	switch env.Type {
	case TypeSetRecording:
		var m SetRecording
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		if err := checkTarget(env, m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeStartRecording, TypeStopRecording, TypeTestMicrophone:
		return nil, fmt.Errorf("%w: %s is not a controller message", ErrWrongTarget, env.Type)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

// DecodeGate decodes a consent gate completion event.
func DecodeGate(env Envelope) (GateEvent, error) {
	var ev GateEvent
	switch env.Type {
	case TypeGateClosed:
		var m GateClosed
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		ev = m
	case TypeGateNavigated:
		var m GateNavigated
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		ev = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	if err := checkTarget(env, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func unmarshalPayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}

func checkTarget(env Envelope, msg Message) error {
	if env.Target != "" && env.Target != msg.Target() {
		return fmt.Errorf("%w: %s sent to %s", ErrWrongTarget, env.Type, env.Target)
	}
	return nil
}
