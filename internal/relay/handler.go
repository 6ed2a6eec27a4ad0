package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/channel"
	"github.com/GriffinCanCode/chatsphere/internal/channel/wire"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatsphere/internal/shared/id"
)

// Routes served by Register.
const (
	PathStream   = "/stream"
	PathSocketIO = "/socket.io/"
)

const maxPayload = 1_000_000

var errPeerClosed = errors.New("peer closed the session")

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// PingInterval is how often the relay pings each session
	PingInterval time.Duration
	// PingTimeout is how long a session may stay silent past a ping
	PingTimeout time.Duration
	// HandshakeTimeout bounds the Socket.IO namespace connect
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// QueueSize is the number of prompts buffered per session
	QueueSize int

	CheckOrigin func(r *http.Request) bool
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

// DefaultHandlerOptions returns Engine.IO's default keepalive timings.
func DefaultHandlerOptions() HandlerOptions {
	return HandlerOptions{
		PingInterval:     25 * time.Second,
		PingTimeout:      20 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		QueueSize:        32,
	}
}

// Handler manages relay websocket sessions.
type Handler struct {
	dispatcher *Dispatcher
	opts       HandlerOptions
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	metrics    *monitoring.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandler creates a handler that answers prompts with d.
func NewHandler(d *Dispatcher, opts HandlerOptions) *Handler {
	defaults := DefaultHandlerOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaults.PingTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.CheckOrigin == nil {
		// Allow all origins in dev
		opts.CheckOrigin = func(*http.Request) bool { return true }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		dispatcher: d,
		opts:       opts,
		upgrader:   websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		logger:     opts.Logger.Named("relay"),
		metrics:    opts.Metrics,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register mounts both framings on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET(PathStream, h.Stream)
	r.GET(PathSocketIO, h.SocketIO)
}

// Stream serves the envelope framing.
func (h *Handler) Stream(c *gin.Context) {
	h.serve(c, wire.Envelope{})
}

// SocketIO serves Socket.IO v5 over the Engine.IO v4 websocket transport.
func (h *Handler) SocketIO(c *gin.Context) {
	if eio := c.Query("EIO"); eio != "4" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 5, "message": "Unsupported protocol version"})
		return
	}
	if transport := c.Query("transport"); transport != "websocket" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 0, "message": "Transport unknown"})
		return
	}
	h.serve(c, wire.SocketIO{})
}

// Close ends every open session and waits for them to finish.
func (h *Handler) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Handler) serve(c *gin.Context, codec wire.Codec) {
	select {
	case <-h.ctx.Done():
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()

	s := h.newSession(conn, codec)
	s.run()
}

// session is one connected client. Writes are serialized by writeMu;
// prompts are answered one at a time by the worker.
type session struct {
	h       *Handler
	conn    *websocket.Conn
	codec   wire.Codec
	logger  *zap.Logger
	prompts chan channel.PromptRequest

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
}

func (h *Handler) newSession(conn *websocket.Conn, codec wire.Codec) *session {
	conn.SetReadLimit(maxPayload)
	ctx, cancel := context.WithCancel(h.ctx)
	return &session{
		h:       h,
		conn:    conn,
		codec:   codec,
		logger:  h.logger.With(zap.String("framing", codec.Name()), zap.String("remote", conn.RemoteAddr().String())),
		prompts: make(chan channel.PromptRequest, h.opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *session) run() {
	stop := context.AfterFunc(s.ctx, func() { s.conn.Close() })
	defer stop()
	defer s.conn.Close()
	defer s.cancel()

	if s.codec.Name() == wire.NameSocketIO {
		sid, err := s.handshake()
		if err != nil {
			s.logger.Warn("socket.io handshake failed", zap.Error(err))
			return
		}
		s.logger = s.logger.With(zap.String("sid", sid))
	}

	s.h.metrics.IncWSConnections()
	defer s.h.metrics.DecWSConnections()
	s.logger.Info("session opened")

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		s.work()
	}()
	go func() {
		defer workers.Done()
		s.keepalive()
	}()

	err := s.read()
	close(s.prompts)
	if !errors.Is(err, errPeerClosed) && s.ctx.Err() == nil {
		s.logger.Debug("session read ended", zap.Error(err))
	}
	s.cancel()
	workers.Wait()
	s.logger.Info("session closed")
}

// handshake sends the Engine.IO open packet and acks the namespace connect.
func (s *session) handshake() (string, error) {
	open, err := sonic.ConfigStd.Marshal(map[string]any{
		"sid":          uuid.NewString(),
		"upgrades":     []string{},
		"pingInterval": s.h.opts.PingInterval.Milliseconds(),
		"pingTimeout":  s.h.opts.PingTimeout.Milliseconds(),
		"maxPayload":   maxPayload,
	})
	if err != nil {
		return "", err
	}
	if err := s.writeControl(wire.KindOpen, open); err != nil {
		return "", err
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(s.h.opts.HandshakeTimeout))
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		frame, err := s.codec.Decode(msg)
		if errors.Is(err, wire.ErrUnsupportedNamespace) {
			refusal, _ := sonic.ConfigStd.Marshal(map[string]string{"message": "Invalid namespace"})
			_ = s.writeControl(wire.KindConnectError, refusal)
			return "", err
		}
		if err != nil {
			return "", err
		}

		switch frame.Kind {
		case wire.KindConnect:
			sid := string(id.NewSocketID())
			ack, err := sonic.ConfigStd.Marshal(map[string]string{"sid": sid})
			if err != nil {
				return "", err
			}
			return sid, s.writeControl(wire.KindConnect, ack)
		case wire.KindClose, wire.KindDisconnect:
			return "", errPeerClosed
		}
	}
}

func (s *session) read() error {
	for {
		s.extendDeadline()
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		frame, err := s.codec.Decode(msg)
		if err != nil {
			s.logger.Warn("dropping malformed frame", zap.Error(err), zap.Int("size", len(msg)))
			continue
		}

		switch frame.Kind {
		case wire.KindEvent:
			s.h.metrics.RecordWSMessage("in", frame.Event)
			s.handleEvent(frame)
		case wire.KindPing:
			if err := s.writeControl(wire.KindPong, nil); err != nil {
				return err
			}
		case wire.KindClose, wire.KindDisconnect:
			return errPeerClosed
		}
	}
}

func (s *session) handleEvent(frame wire.Frame) {
	if frame.Event != channel.EventMessage {
		s.logger.Debug("ignoring event", zap.String("event", frame.Event))
		return
	}

	req, err := channel.DecodePrompt(frame.Payload)
	if err != nil {
		s.logger.Warn("dropping malformed prompt", zap.Error(err))
		return
	}

	select {
	case s.prompts <- req:
	default:
		s.logger.Warn("prompt queue full", zap.String("request_id", req.RequestID))
		remote := channel.RemoteError{RequestID: req.RequestID, Message: "relay busy"}
		if err := s.Emit(s.ctx, channel.EventError, remote); err != nil {
			s.logger.Debug("failed to report busy relay", zap.Error(err))
		}
	}
}

func (s *session) work() {
	for req := range s.prompts {
		if s.ctx.Err() != nil {
			continue
		}
		if err := s.h.dispatcher.Handle(s.ctx, s, req); err != nil {
			s.logger.Debug("exchange aborted", zap.String("request_id", req.RequestID), zap.Error(err))
		}
	}
}

func (s *session) keepalive() {
	ticker := time.NewTicker(s.h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeControl(wire.KindPing, nil); err != nil {
				s.logger.Debug("ping failed", zap.Error(err))
				s.cancel()
				return
			}
		}
	}
}

// extendDeadline gives the peer one ping period plus the timeout to speak.
func (s *session) extendDeadline() {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.h.opts.PingInterval + s.h.opts.PingTimeout))
}

// Emit implements Emitter for the dispatcher.
func (s *session) Emit(ctx context.Context, event string, payload any) error {
	msg, err := s.codec.EncodeEvent(event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.write(msg); err != nil {
		return fmt.Errorf("failed to emit %s: %w", event, err)
	}
	s.h.metrics.RecordWSMessage("out", event)
	return nil
}

func (s *session) writeControl(kind wire.Kind, data []byte) error {
	msg, err := s.codec.EncodeControl(kind, data)
	if err != nil {
		return err
	}
	return s.write(msg)
}

func (s *session) write(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.h.opts.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}
