package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	ErrMalformedFrame       = errors.New("malformed frame")
	ErrUnsupportedNamespace = errors.New("unsupported namespace")
	ErrUnsupportedKind      = errors.New("frame kind not supported by codec")
	ErrUnknownCodec         = errors.New("unknown codec")
)

// Kind classifies a decoded frame.
type Kind int

const (
	KindEvent Kind = iota
	KindOpen
	KindConnect
	KindConnectError
	KindDisconnect
	KindPing
	KindPong
	KindClose
	KindNoop
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindOpen:
		return "open"
	case KindConnect:
		return "connect"
	case KindConnectError:
		return "connect_error"
	case KindDisconnect:
		return "disconnect"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindClose:
		return "close"
	case KindNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// Frame is one decoded websocket message.
// Event and Payload are set for KindEvent; Payload carries handshake data
// for KindOpen, KindConnect and KindConnectError.
type Frame struct {
	Kind    Kind
	Event   string
	Payload json.RawMessage
}

// Codec encodes and decodes one framing.
type Codec interface {
	Name() string
	EncodeEvent(event string, payload any) ([]byte, error)
	EncodeControl(kind Kind, data json.RawMessage) ([]byte, error)
	Decode(msg []byte) (Frame, error)
}

// Codec names.
const (
	NameEnvelope = "envelope"
	NameSocketIO = "socketio"
)

// Lookup returns the codec registered under name.
func Lookup(name string) (Codec, error) {
	switch name {
	case NameEnvelope, "":
		return Envelope{}, nil
	case NameSocketIO:
		return SocketIO{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}
