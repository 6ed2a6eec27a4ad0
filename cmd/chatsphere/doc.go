// Package main is the ChatSphere terminal chat client.
//
// It connects to the inference service over websocket (or, with -offline,
// to an in-process echo relay), keeps the conversation list in a session
// manager and redraws the terminal whenever the session changes.
//
// Usage:
//
//	chatsphere [-server URL] [-protocol envelope|socketio] [-timeout 2m] [-offline] [-dev]
//
// Lines typed at the prompt are sent as messages. Commands:
//
//	/new        start a new conversation
//	/list       show the conversation list
//	/select N   switch to conversation N from the list
//	/sidebar    toggle the conversation list
//	/help       show commands
//	/quit       exit
//
// Logs go to stderr so they stay out of the transcript.
package main
