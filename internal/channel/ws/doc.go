// Package ws implements channel.Channel over a gorilla/websocket connection.
//
// The client dials once on Connect, performs the framing handshake (for
// Socket.IO: wait for the Engine.IO open packet, send connect, wait for the
// connect ack) and then reads on a single goroutine. Inbound events are
// handed to the registered handler one at a time, in arrival order.
//
// When the connection drops the client marks itself disconnected and, with a
// positive ReconnectInterval, redials on that interval until closed. Dials go
// through a circuit breaker. Emit on a disconnected client fails with
// ErrNotConnected; nothing is buffered or retried.
//
//	client, err := ws.New(ws.Options{URL: "https://chat.example.com/", Codec: wire.SocketIO{}})
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Close()
//	client.On(channel.EventTyping, func(p json.RawMessage) { ... })
//	err = client.Emit(ctx, channel.EventMessage, channel.PromptRequest{Prompt: "hi"})
package ws
