package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/channel"
	"github.com/GriffinCanCode/chatsphere/internal/channel/wire"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/resilience"
)

var (
	ErrNotConnected = errors.New("channel not connected")
	ErrClosed       = errors.New("channel closed")
	ErrHandshake    = errors.New("handshake failed")
)

var errServerClosed = errors.New("server closed the session")

// Options configures a Client.
type Options struct {
	URL               string
	Codec             wire.Codec
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	ReconnectInterval time.Duration
	Header            http.Header

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Breaker *resilience.Breaker
}

// Client is a websocket channel.Channel.
type Client struct {
	opts     Options
	url      string
	codec    wire.Codec
	dialer   *websocket.Dialer
	handlers *channel.Handlers
	breaker  *resilience.Breaker
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn // Protected by mu
	closed bool            // Protected by mu

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

var _ channel.Channel = (*Client)(nil)

// New creates a client. It does not dial; call Connect.
func New(opts Options) (*Client, error) {
	if opts.Codec == nil {
		opts.Codec = wire.Envelope{}
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.New("chat-dial", resilience.DialSettings(opts.Logger))
	}

	url, err := wire.DialURL(opts.Codec, opts.URL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:     opts,
		url:      url,
		codec:    opts.Codec,
		dialer:   &websocket.Dialer{HandshakeTimeout: opts.DialTimeout, Proxy: http.ProxyFromEnvironment},
		handlers: channel.NewHandlers(),
		breaker:  opts.Breaker,
		logger:   opts.Logger.Named("ws").With(zap.String("url", url), zap.String("framing", opts.Codec.Name())),
		metrics:  opts.Metrics,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// URL returns the websocket endpoint the client dials.
func (c *Client) URL() string {
	return c.url
}

// Connect dials the server and starts the read loop. Calling Connect on a
// connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.conn != nil:
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if err := c.attach(conn); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.loop(conn)
	return nil
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// On registers h for event, replacing any previous handler.
func (c *Client) On(event string, h channel.Handler) {
	c.handlers.On(event, h)
}

// Off removes the handler for event.
func (c *Client) Off(event string) {
	c.handlers.Off(event)
}

// Emit sends one event. It fails with ErrNotConnected while disconnected.
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	msg, err := c.codec.EncodeEvent(event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	if err := c.write(ctx, msg); err != nil {
		return fmt.Errorf("failed to emit %s: %w", event, err)
	}
	c.metrics.RecordWSMessage("out", event)
	return nil
}

// Close sends a close frame, stops the read loop and waits for it.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()

	if conn != nil {
		c.metrics.DecWSConnections()
		c.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		if msg, err := c.codec.EncodeControl(wire.KindDisconnect, nil); err == nil {
			_ = conn.SetWriteDeadline(deadline)
			_ = conn.WriteMessage(websocket.TextMessage, msg)
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		_ = conn.Close()
	}

	c.wg.Wait()
	c.logger.Debug("channel closed")
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	return resilience.Do(ctx, c.breaker, func(ctx context.Context) (*websocket.Conn, error) {
		conn, resp, err := c.dialer.DialContext(ctx, c.url, c.opts.Header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("failed to dial %s: %w (status %d)", c.url, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("failed to dial %s: %w", c.url, err)
		}
		if err := c.handshake(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	})
}

// handshake runs the framing-level opening exchange before the read loop owns conn.
func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	if c.codec.Name() != wire.NameSocketIO {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
		defer func() {
			_ = conn.SetReadDeadline(time.Time{})
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	frame, err := c.readFrame(conn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if frame.Kind != wire.KindOpen {
		return fmt.Errorf("%w: expected open packet, got %s", ErrHandshake, frame.Kind)
	}

	connect, err := c.codec.EncodeControl(wire.KindConnect, nil)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, connect); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	for {
		frame, err := c.readFrame(conn)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		switch frame.Kind {
		case wire.KindConnect:
			c.logger.Debug("socket.io namespace connected", zap.ByteString("ack", frame.Payload))
			return nil
		case wire.KindConnectError:
			return fmt.Errorf("%w: connect refused: %s", ErrHandshake, frame.Payload)
		case wire.KindPing:
			pong, _ := c.codec.EncodeControl(wire.KindPong, nil)
			if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
				return fmt.Errorf("%w: %v", ErrHandshake, err)
			}
		case wire.KindClose, wire.KindDisconnect:
			return fmt.Errorf("%w: server closed during handshake", ErrHandshake)
		}
	}
}

func (c *Client) readFrame(conn *websocket.Conn) (wire.Frame, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return wire.Frame{}, err
	}
	return c.codec.Decode(msg)
}

func (c *Client) attach(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.metrics.IncWSConnections()
	c.logger.Info("channel connected")
	return nil
}

// detach clears conn if it is still the current connection.
func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	if current {
		c.metrics.DecWSConnections()
	}
	_ = conn.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) loop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		err := c.read(conn)
		c.detach(conn)
		if c.isClosed() {
			return
		}
		c.logger.Warn("channel disconnected", zap.Error(err))

		if c.opts.ReconnectInterval <= 0 {
			return
		}
		if conn = c.redial(); conn == nil {
			return
		}
	}
}

func (c *Client) redial() *websocket.Conn {
	ticker := time.NewTicker(c.opts.ReconnectInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-c.ctx.Done():
			return nil
		case <-ticker.C:
		}

		conn, err := c.dial(c.ctx)
		if err != nil {
			c.logger.Debug("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if err := c.attach(conn); err != nil {
			return nil
		}
		c.logger.Info("channel reconnected", zap.Int("attempt", attempt))
		return conn
	}
}

// read consumes frames until the connection fails or the server ends the session.
func (c *Client) read(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		frame, err := c.codec.Decode(msg)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err), zap.Int("size", len(msg)))
			continue
		}

		switch frame.Kind {
		case wire.KindEvent:
			c.metrics.RecordWSMessage("in", frame.Event)
			if !c.handlers.Dispatch(frame.Event, frame.Payload) {
				c.logger.Debug("no handler for event", zap.String("event", frame.Event))
			}
		case wire.KindPing:
			c.metrics.RecordWSMessage("in", frame.Kind.String())
			pong, err := c.codec.EncodeControl(wire.KindPong, nil)
			if err == nil {
				err = c.writeTo(context.Background(), conn, pong)
			}
			if err != nil {
				return err
			}
		case wire.KindClose, wire.KindDisconnect:
			return errServerClosed
		case wire.KindConnectError:
			return fmt.Errorf("%w: %s", errServerClosed, frame.Payload)
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	switch {
	case closed:
		return ErrClosed
	case conn == nil:
		return ErrNotConnected
	}
	return c.writeTo(ctx, conn, msg)
}

func (c *Client) writeTo(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}
