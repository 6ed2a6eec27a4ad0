package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
)

// Engine.IO v4 packet types
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioUpgrade = '5'
	eioNoop    = '6'
)

// Socket.IO v5 packet types
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

// SocketIO frames messages as Socket.IO v5 packets over Engine.IO v4.
type SocketIO struct{}

func (SocketIO) Name() string { return NameSocketIO }

func (SocketIO) EncodeEvent(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, fmt.Errorf("%w: empty event name", ErrMalformedFrame)
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	name, err := sonic.ConfigStd.Marshal(event)
	if err != nil {
		return nil, err
	}
	args := []json.RawMessage{name}
	if data != nil {
		args = append(args, data)
	}
	body, err := sonic.ConfigStd.Marshal(args)
	if err != nil {
		return nil, err
	}
	return append([]byte{eioMessage, sioEvent}, body...), nil
}

func (SocketIO) EncodeControl(kind Kind, data json.RawMessage) ([]byte, error) {
	var head []byte
	switch kind {
	case KindOpen:
		head = []byte{eioOpen}
	case KindClose:
		return []byte{eioClose}, nil
	case KindPing:
		return []byte{eioPing}, nil
	case KindPong:
		return []byte{eioPong}, nil
	case KindNoop:
		return []byte{eioNoop}, nil
	case KindConnect:
		head = []byte{eioMessage, sioConnect}
	case KindConnectError:
		head = []byte{eioMessage, sioConnectError}
	case KindDisconnect:
		return []byte{eioMessage, sioDisconnect}, nil
	default:
		return nil, fmt.Errorf("%w: socketio %s", ErrUnsupportedKind, kind)
	}
	return append(head, data...), nil
}

func (SocketIO) Decode(msg []byte) (Frame, error) {
	if len(msg) == 0 {
		return Frame{}, fmt.Errorf("%w: empty packet", ErrMalformedFrame)
	}
	rest := msg[1:]
	switch msg[0] {
	case eioOpen:
		if !json.Valid(rest) {
			return Frame{}, fmt.Errorf("%w: open handshake is not JSON", ErrMalformedFrame)
		}
		return Frame{Kind: KindOpen, Payload: json.RawMessage(rest)}, nil
	case eioClose:
		return Frame{Kind: KindClose}, nil
	case eioPing:
		return Frame{Kind: KindPing}, nil
	case eioPong:
		return Frame{Kind: KindPong}, nil
	case eioUpgrade, eioNoop:
		return Frame{Kind: KindNoop}, nil
	case eioMessage:
		return decodeSocketPacket(rest)
	}
	return Frame{}, fmt.Errorf("%w: unknown engine.io packet type %q", ErrMalformedFrame, msg[0])
}

func decodeSocketPacket(pkt []byte) (Frame, error) {
	if len(pkt) == 0 {
		return Frame{}, fmt.Errorf("%w: empty socket.io packet", ErrMalformedFrame)
	}
	typ, rest := pkt[0], pkt[1:]

	// "/ns," prefix
	if len(rest) > 0 && rest[0] == '/' {
		ns := rest
		if i := bytes.IndexByte(rest, ','); i >= 0 {
			ns, rest = rest[:i], rest[i+1:]
		} else {
			rest = nil
		}
		if string(ns) != "/" {
			return Frame{}, fmt.Errorf("%w: %s", ErrUnsupportedNamespace, ns)
		}
	}

	// ack id
	for len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
		rest = rest[1:]
	}

	switch typ {
	case sioConnect:
		return Frame{Kind: KindConnect, Payload: nonEmpty(rest)}, nil
	case sioDisconnect:
		return Frame{Kind: KindDisconnect}, nil
	case sioConnectError:
		return Frame{Kind: KindConnectError, Payload: nonEmpty(rest)}, nil
	case sioAck:
		return Frame{Kind: KindNoop}, nil
	case sioEvent:
		return decodeEventArgs(rest)
	}
	return Frame{}, fmt.Errorf("%w: unsupported socket.io packet type %q", ErrMalformedFrame, typ)
}

func decodeEventArgs(data []byte) (Frame, error) {
	var args []json.RawMessage
	if err := sonic.ConfigStd.Unmarshal(data, &args); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(args) == 0 {
		return Frame{}, fmt.Errorf("%w: event without name", ErrMalformedFrame)
	}
	var name string
	if err := sonic.ConfigStd.Unmarshal(args[0], &name); err != nil || name == "" {
		return Frame{}, fmt.Errorf("%w: event name must be a string", ErrMalformedFrame)
	}
	frame := Frame{Kind: KindEvent, Event: name}
	if len(args) > 1 {
		frame.Payload = args[1]
	}
	return frame, nil
}

func nonEmpty(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

// SocketIOURL turns a server base URL such as https://host/ into the
// Engine.IO websocket endpoint wss://host/socket.io/?EIO=4&transport=websocket.
// A path other than "/" would name a namespace and is rejected.
func SocketIOURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", base)
	}

	switch strings.TrimSuffix(u.Path, "/") {
	case "", "/socket.io":
		u.Path = "/socket.io/"
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedNamespace, u.Path)
	}

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// WebsocketURL normalises an http(s) or ws(s) base into a ws(s) URL for the
// envelope framing, keeping its path.
func WebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", base)
	}
	return u.String(), nil
}

// DialURL resolves the websocket URL a client using codec should dial.
func DialURL(codec Codec, base string) (string, error) {
	if codec.Name() == NameSocketIO {
		return SocketIOURL(base)
	}
	return WebsocketURL(base)
}
