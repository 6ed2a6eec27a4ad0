// Package wire converts channel events and control packets to websocket text
// frames and back.
//
// Two framings are supported:
//
//	envelope   {"event":"ai-message","data":{"prompt":"hi"}}
//	socketio   42["ai-message",{"prompt":"hi"}]   (Socket.IO v5 over Engine.IO v4)
//
// Only the default Socket.IO namespace "/" is accepted. Binary packets and
// acknowledgements are not supported; ack ids on inbound events are ignored.
package wire
