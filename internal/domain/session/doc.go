// Package session implements the conversation session manager behind the
// chat client.
//
// The manager owns an ordered collection of conversations (newest first),
// the active conversation, the pending input line, a presentation-only
// sidebar flag and the remote "composing" indicator. It talks to the
// inference service through one injected channel.Channel.
//
// Request flow:
//  1. Send appends the user's message to the active conversation (creating
//     one if none is active), registers a pending request that captures the
//     conversation id, then emits ai-message {prompt, request_id}.
//  2. A reply is routed by request_id when the service echoes it, otherwise
//     to the oldest pending request, and appended to the captured
//     conversation even if the user has switched away since.
//  3. A request that gets no reply within RequestTimeout, fails to emit, or
//     is answered with ai-error is recorded as a Failure on its conversation.
//
// All mutations are serialized under one mutex; channel callbacks, timers and
// user calls never interleave. The channel is never called with the lock held.
//
// Example Usage:
//
//	mgr := session.NewManager(client, session.DefaultConfig()).WithLogger(logger)
//	mgr.Attach()
//	defer mgr.Close()
//
//	reqID, err := mgr.Send(ctx, "hello")
//	for range mgr.Watch(ctx) {
//		render(mgr.State())
//	}
package session
