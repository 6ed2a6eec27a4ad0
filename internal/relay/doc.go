// Package relay is a development stand-in for the remote inference service.
//
// A Handler accepts websocket sessions in either framing, decodes ai-message
// prompts and hands each one to a Dispatcher, which asks a Responder for the
// reply and emits ai-typing, ai-message-response or ai-error back to the
// client. Prompts on one session are answered in arrival order.
//
// Two responders ship with the package: EchoResponder answers with the prompt
// behind a prefix, HTTPResponder forwards the prompt to an upstream HTTP
// endpoint through a circuit breaker.
package relay
