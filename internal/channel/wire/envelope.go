package wire

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Envelope frames every message as {"event": name, "data": payload}.
// Keepalives are the events "ping" and "pong".
type Envelope struct{}

type envelopeFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	envelopePing = "ping"
	envelopePong = "pong"
)

func (Envelope) Name() string { return NameEnvelope }

func (Envelope) EncodeEvent(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, fmt.Errorf("%w: empty event name", ErrMalformedFrame)
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return sonic.ConfigStd.Marshal(envelopeFrame{Event: event, Data: data})
}

func (Envelope) EncodeControl(kind Kind, _ json.RawMessage) ([]byte, error) {
	switch kind {
	case KindPing:
		return sonic.ConfigStd.Marshal(envelopeFrame{Event: envelopePing})
	case KindPong:
		return sonic.ConfigStd.Marshal(envelopeFrame{Event: envelopePong})
	default:
		return nil, fmt.Errorf("%w: envelope %s", ErrUnsupportedKind, kind)
	}
}

func (Envelope) Decode(msg []byte) (Frame, error) {
	var env envelopeFrame
	if err := sonic.ConfigStd.Unmarshal(msg, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch env.Event {
	case "":
		return Frame{}, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	case envelopePing:
		return Frame{Kind: KindPing}, nil
	case envelopePong:
		return Frame{Kind: KindPong}, nil
	}
	return Frame{Kind: KindEvent, Event: env.Event, Payload: env.Data}, nil
}
