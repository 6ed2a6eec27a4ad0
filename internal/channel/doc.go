// Package channel defines the real-time message channel the session manager
// talks through, the events exchanged with the inference service, and their
// payload codecs.
//
// Events:
//   - ai-message (out): {"prompt": "...", "request_id": "req_..."}
//   - ai-message-response (in): a bare JSON string, or {"request_id": "...", "text": "..."}
//   - ai-typing (in): true or false
//   - ai-error (in): {"request_id": "...", "error": "..."}
//
// Implementations live in the ws (gorilla websocket client) and memory
// (in-process pair) subpackages.
package channel
