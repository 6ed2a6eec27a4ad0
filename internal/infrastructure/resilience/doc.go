/*
Package resilience provides the circuit breaker that guards outbound
connections: websocket dials from the chat client and upstream inference
calls from the relay.

# Usage

	breaker := resilience.New("chat-dial", resilience.DialSettings(logger))

	err := breaker.Call(ctx, func(ctx context.Context) error {
		conn, _, err = dialer.DialContext(ctx, url, nil)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// endpoint is known to be down; wait for the next reconnect tick
	}

	text, err := resilience.Do(ctx, breaker, func(ctx context.Context) (string, error) {
		return upstream.Generate(ctx, prompt)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open

Calls cut short by their own context are not counted as failures.
*/
package resilience
