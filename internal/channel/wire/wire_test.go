package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	codec, err := Lookup(NameSocketIO)
	require.NoError(t, err)
	assert.Equal(t, NameSocketIO, codec.Name())

	codec, err = Lookup("")
	require.NoError(t, err)
	assert.Equal(t, NameEnvelope, codec.Name())

	_, err = Lookup("grpc")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestEnvelopeEvents(t *testing.T) {
	codec := Envelope{}

	msg, err := codec.EncodeEvent("ai-message", map[string]string{"prompt": "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ai-message","data":{"prompt":"hi"}}`, string(msg))

	frame, err := codec.Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, KindEvent, frame.Kind)
	assert.Equal(t, "ai-message", frame.Event)
	assert.JSONEq(t, `{"prompt":"hi"}`, string(frame.Payload))

	msg, err = codec.EncodeEvent("ai-typing", true)
	require.NoError(t, err)
	frame, err = codec.Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`true`), frame.Payload)

	_, err = codec.EncodeEvent("", nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEnvelopeControl(t *testing.T) {
	codec := Envelope{}

	for _, kind := range []Kind{KindPing, KindPong} {
		msg, err := codec.EncodeControl(kind, nil)
		require.NoError(t, err)
		frame, err := codec.Decode(msg)
		require.NoError(t, err)
		assert.Equal(t, kind, frame.Kind)
	}

	_, err := codec.EncodeControl(KindOpen, nil)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestEnvelopeRejectsMalformed(t *testing.T) {
	for _, msg := range []string{``, `[]`, `{"data":1}`, `{"event":""}`, `not json`} {
		_, err := Envelope{}.Decode([]byte(msg))
		assert.ErrorIs(t, err, ErrMalformedFrame, msg)
	}
}

func TestSocketIOEncodeEvent(t *testing.T) {
	codec := SocketIO{}

	msg, err := codec.EncodeEvent("ai-message", map[string]string{"prompt": "hi"})
	require.NoError(t, err)
	assert.Equal(t, `42["ai-message",{"prompt":"hi"}]`, string(msg))

	msg, err = codec.EncodeEvent("ai-message-response", "Hello")
	require.NoError(t, err)
	assert.Equal(t, `42["ai-message-response","Hello"]`, string(msg))

	msg, err = codec.EncodeEvent("ready", nil)
	require.NoError(t, err)
	assert.Equal(t, `42["ready"]`, string(msg))
}

func TestSocketIODecode(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		kind    Kind
		event   string
		payload string
	}{
		{name: "open", msg: `0{"sid":"abc","pingInterval":25000}`, kind: KindOpen, payload: `{"sid":"abc","pingInterval":25000}`},
		{name: "close", msg: `1`, kind: KindClose},
		{name: "ping", msg: `2`, kind: KindPing},
		{name: "probe ping", msg: `2probe`, kind: KindPing},
		{name: "pong", msg: `3`, kind: KindPong},
		{name: "upgrade", msg: `5`, kind: KindNoop},
		{name: "noop", msg: `6`, kind: KindNoop},
		{name: "connect ack", msg: `40{"sid":"xyz"}`, kind: KindConnect, payload: `{"sid":"xyz"}`},
		{name: "bare connect", msg: `40`, kind: KindConnect},
		{name: "default namespace connect", msg: `40/,{"sid":"xyz"}`, kind: KindConnect, payload: `{"sid":"xyz"}`},
		{name: "disconnect", msg: `41`, kind: KindDisconnect},
		{name: "connect error", msg: `44{"message":"denied"}`, kind: KindConnectError, payload: `{"message":"denied"}`},
		{name: "event", msg: `42["ai-typing",true]`, kind: KindEvent, event: "ai-typing", payload: `true`},
		{name: "event with ack id", msg: `4217["ai-message-response","hi"]`, kind: KindEvent, event: "ai-message-response", payload: `"hi"`},
		{name: "event in default namespace", msg: `42/,["ai-typing",false]`, kind: KindEvent, event: "ai-typing", payload: `false`},
		{name: "event without payload", msg: `42["ready"]`, kind: KindEvent, event: "ready"},
		{name: "extra args are ignored", msg: `42["ai-typing",true,"extra"]`, kind: KindEvent, event: "ai-typing", payload: `true`},
		{name: "ack", msg: `431[]`, kind: KindNoop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := SocketIO{}.Decode([]byte(tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, frame.Kind)
			assert.Equal(t, tt.event, frame.Event)
			if tt.payload == "" {
				assert.Empty(t, frame.Payload)
			} else {
				assert.JSONEq(t, tt.payload, string(frame.Payload))
			}
		})
	}
}

func TestSocketIORejects(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		err  error
	}{
		{name: "empty", msg: ``, err: ErrMalformedFrame},
		{name: "unknown engine type", msg: `9`, err: ErrMalformedFrame},
		{name: "empty socket packet", msg: `4`, err: ErrMalformedFrame},
		{name: "open not json", msg: `0sid`, err: ErrMalformedFrame},
		{name: "binary event", msg: `451-["x",{"_placeholder":true,"num":0}]`, err: ErrMalformedFrame},
		{name: "event not array", msg: `42{"x":1}`, err: ErrMalformedFrame},
		{name: "event empty array", msg: `42[]`, err: ErrMalformedFrame},
		{name: "event name not string", msg: `42[1,2]`, err: ErrMalformedFrame},
		{name: "other namespace", msg: `42/admin,["ai-typing",true]`, err: ErrUnsupportedNamespace},
		{name: "namespace connect", msg: `40/chat`, err: ErrUnsupportedNamespace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SocketIO{}.Decode([]byte(tt.msg))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSocketIOControlRoundTrip(t *testing.T) {
	codec := SocketIO{}
	tests := []struct {
		kind Kind
		data json.RawMessage
		want string
	}{
		{kind: KindOpen, data: json.RawMessage(`{"sid":"s"}`), want: `0{"sid":"s"}`},
		{kind: KindClose, want: `1`},
		{kind: KindPing, want: `2`},
		{kind: KindPong, want: `3`},
		{kind: KindNoop, want: `6`},
		{kind: KindConnect, want: `40`},
		{kind: KindConnect, data: json.RawMessage(`{"sid":"s"}`), want: `40{"sid":"s"}`},
		{kind: KindDisconnect, want: `41`},
		{kind: KindConnectError, data: json.RawMessage(`{"message":"no"}`), want: `44{"message":"no"}`},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			msg, err := codec.EncodeControl(tt.kind, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(msg))

			frame, err := codec.Decode(msg)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, frame.Kind)
		})
	}

	_, err := codec.EncodeControl(KindEvent, nil)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestSocketIOURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr error
	}{
		{base: "https://chat.example.com/", want: "wss://chat.example.com/socket.io/?EIO=4&transport=websocket"},
		{base: "http://localhost:8000", want: "ws://localhost:8000/socket.io/?EIO=4&transport=websocket"},
		{base: "ws://localhost:8000/socket.io/", want: "ws://localhost:8000/socket.io/?EIO=4&transport=websocket"},
		{base: "https://chat.example.com/?token=t", want: "wss://chat.example.com/socket.io/?EIO=4&token=t&transport=websocket"},
		{base: "https://chat.example.com/admin", wantErr: ErrUnsupportedNamespace},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := SocketIOURL(tt.base)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SocketIOURL("ftp://chat.example.com/")
	assert.Error(t, err)
	_, err = SocketIOURL("https:///")
	assert.Error(t, err)
}

func TestDialURL(t *testing.T) {
	got, err := DialURL(Envelope{}, "http://localhost:8000/stream")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/stream", got)

	got, err = DialURL(SocketIO{}, "https://chat.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/socket.io/?EIO=4&transport=websocket", got)
}
