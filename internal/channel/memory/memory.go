// Package memory provides an in-process channel.Channel pair. An event
// emitted on one endpoint is delivered to the other endpoint's handler on
// that endpoint's delivery goroutine, one at a time, in emit order.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/GriffinCanCode/chatsphere/internal/channel"
)

// ErrClosed is returned by Emit once either endpoint is closed.
var ErrClosed = errors.New("memory channel closed")

type delivery struct {
	event   string
	payload json.RawMessage
}

// Endpoint is one side of a Pair.
type Endpoint struct {
	handlers *channel.Handlers
	peer     *Endpoint

	mu     sync.Mutex
	queue  []delivery // Protected by mu
	closed bool       // Protected by mu
	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ channel.Channel = (*Endpoint)(nil)

// NewPair returns two connected endpoints.
func NewPair() (*Endpoint, *Endpoint) {
	a, b := newEndpoint(), newEndpoint()
	a.peer, b.peer = b, a
	return a, b
}

func newEndpoint() *Endpoint {
	e := &Endpoint{
		handlers: channel.NewHandlers(),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	e.wg.Add(1)
	go e.deliver()
	return e
}

// Peer returns the other endpoint.
func (e *Endpoint) Peer() *Endpoint {
	return e.peer
}

// On registers h for event, replacing any previous handler.
func (e *Endpoint) On(event string, h channel.Handler) {
	e.handlers.On(event, h)
}

// Off removes the handler for event.
func (e *Endpoint) Off(event string) {
	e.handlers.Off(event)
}

// Emit queues the event for the peer. It never blocks on the peer's handler.
func (e *Endpoint) Emit(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.isClosed() {
		return ErrClosed
	}
	data, err := channel.Marshal(payload)
	if err != nil {
		return err
	}
	return e.peer.enqueue(delivery{event: event, payload: data})
}

// Close stops delivery on this endpoint. Queued events are discarded.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.queue = nil
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()
	return nil
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Endpoint) enqueue(d delivery) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.queue = append(e.queue, d)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
	return nil
}

func (e *Endpoint) deliver() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case <-e.notify:
		}

		for {
			e.mu.Lock()
			if e.closed || len(e.queue) == 0 {
				e.mu.Unlock()
				break
			}
			d := e.queue[0]
			e.queue = e.queue[1:]
			e.mu.Unlock()

			e.handlers.Dispatch(d.event, d.payload)
		}
	}
}
