package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/channel"
	"github.com/GriffinCanCode/chatsphere/internal/domain/conversation"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatsphere/internal/shared/id"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("session manager closed")

// Config controls request handling.
type Config struct {
	// RequestTimeout bounds the wait for a reply. Zero disables the deadline.
	RequestTimeout time.Duration
	// DefaultTitle is given to every new conversation.
	DefaultTitle string
}

// DefaultConfig returns the standard session configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 2 * time.Minute,
		DefaultTitle:   "New Chat",
	}
}

// State is a snapshot of the session. It shares no memory with the manager.
type State struct {
	Conversations []conversation.Conversation
	ActiveID      id.ConversationID
	Composing     bool
	Input         string
	SidebarOpen   bool
	// Pending is the number of requests awaiting a reply; ActivePending
	// counts those targeting the active conversation.
	Pending       int
	ActivePending int
}

// Active returns the active conversation from the snapshot.
func (s State) Active() (conversation.Conversation, bool) {
	for _, c := range s.Conversations {
		if c.ID == s.ActiveID {
			return c, true
		}
	}
	return conversation.Conversation{}, false
}

// Manager is the conversation session manager.
type Manager struct {
	mu            sync.Mutex
	conversations []*conversation.Conversation                    // Protected by mu, newest first
	byID          map[id.ConversationID]*conversation.Conversation // Protected by mu
	activeID      id.ConversationID                               // Protected by mu
	composing     bool                                            // Protected by mu
	input         string                                          // Protected by mu
	sidebarOpen   bool                                            // Protected by mu
	pending       *pendingSet                                     // Protected by mu
	closed        bool                                            // Protected by mu

	watchMu  sync.Mutex
	watchers map[chan struct{}]struct{}
	done     chan struct{}

	ch      channel.Channel
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewManager creates a session manager bound to ch. Call Attach to start
// receiving replies.
func NewManager(ch channel.Channel, cfg Config) *Manager {
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = DefaultConfig().DefaultTitle
	}
	if cfg.RequestTimeout < 0 {
		cfg.RequestTimeout = 0
	}
	return &Manager{
		byID:     make(map[id.ConversationID]*conversation.Conversation),
		pending:  newPendingSet(),
		watchers: make(map[chan struct{}]struct{}),
		done:     make(chan struct{}),
		ch:       ch,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
}

// WithLogger sets the manager's logger
func (m *Manager) WithLogger(logger *zap.Logger) *Manager {
	if logger != nil {
		m.logger = logger.Named("session")
	}
	return m
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Attach registers the inbound handlers on the channel, replacing any
// handlers previously registered for those events.
func (m *Manager) Attach() {
	m.ch.On(channel.EventResponse, m.handleResponse)
	m.ch.On(channel.EventTyping, m.handleTyping)
	m.ch.On(channel.EventError, m.handleError)
}

// Detach removes the inbound handlers.
func (m *Manager) Detach() {
	m.ch.Off(channel.EventResponse)
	m.ch.Off(channel.EventTyping)
	m.ch.Off(channel.EventError)
}

// Send appends text to the active conversation, creating one when none is
// active, and emits exactly one prompt for it. Whitespace-only text is a
// no-op that returns an empty id and nil.
func (m *Manager) Send(ctx context.Context, text string) (id.RequestID, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	now := m.now()
	conv := m.byID[m.activeID]
	if conv == nil {
		conv = m.create(now)
	}
	conv.Append(conversation.RoleUser, text, now)

	req := &pendingRequest{
		id:             id.NewRequestID(),
		conversationID: conv.ID,
		prompt:         text,
		sentAt:         now,
	}
	// Registered before the emit so the reply cannot arrive first
	m.pending.add(req)
	if m.cfg.RequestTimeout > 0 {
		reqID := req.id
		req.timer = time.AfterFunc(m.cfg.RequestTimeout, func() { m.expire(reqID) })
	}
	m.input = ""
	pending := m.pending.len()
	m.mu.Unlock()

	m.metrics.RecordChatRequest()
	m.metrics.SetPending(pending)
	m.notify()

	m.logger.Debug("sending prompt",
		zap.String("request_id", req.id.String()),
		zap.String("conversation_id", conv.ID.String()),
		zap.Int("length", len(text)),
	)

	err := m.ch.Emit(ctx, channel.EventMessage, channel.PromptRequest{
		Prompt:    text,
		RequestID: req.id.String(),
	})
	if err != nil {
		m.fail(req.id, m.pending.takeLive, conversation.ReasonSendFailed, err.Error(), monitoring.OutcomeFailed)
		return req.id, fmt.Errorf("failed to send prompt: %w", err)
	}
	return req.id, nil
}

// Submit sends the pending input line.
func (m *Manager) Submit(ctx context.Context) (id.RequestID, error) {
	return m.Send(ctx, m.Input())
}

// SetInput replaces the pending input line.
func (m *Manager) SetInput(text string) {
	m.mu.Lock()
	m.input = text
	m.mu.Unlock()
	m.notify()
}

// Input returns the pending input line.
func (m *Manager) Input() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// NewConversation creates an empty conversation at the front of the list,
// makes it active and closes the sidebar.
func (m *Manager) NewConversation() conversation.Conversation {
	m.mu.Lock()
	conv := m.create(m.now())
	m.sidebarOpen = false
	out := conv.Clone()
	m.mu.Unlock()

	m.notify()
	return out
}

// Select makes convID active and closes the sidebar. Unknown ids are ignored.
func (m *Manager) Select(convID id.ConversationID) bool {
	m.mu.Lock()
	if _, ok := m.byID[convID]; !ok {
		m.mu.Unlock()
		return false
	}
	m.activeID = convID
	m.sidebarOpen = false
	m.mu.Unlock()

	m.notify()
	return true
}

// ToggleSidebar flips the sidebar flag and returns the new value.
func (m *Manager) ToggleSidebar() bool {
	m.mu.Lock()
	m.sidebarOpen = !m.sidebarOpen
	open := m.sidebarOpen
	m.mu.Unlock()

	m.notify()
	return open
}

// OnResponse applies an assistant reply to the conversation captured when
// its request was sent. Replies that match no pending request are dropped.
func (m *Manager) OnResponse(resp channel.Response) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.composing = false

	req, ok := m.pending.resolve(id.RequestID(resp.RequestID))
	if !ok || req.expired {
		m.mu.Unlock()
		m.metrics.SetComposing(false)
		m.metrics.RecordRequestOutcome(monitoring.OutcomeDropped, 0)
		if ok {
			m.logger.Info("dropping reply to timed out request",
				zap.String("request_id", req.id.String()),
				zap.String("conversation_id", req.conversationID.String()),
			)
		} else {
			m.logger.Warn("dropping reply with no pending request", zap.String("request_id", resp.RequestID))
		}
		m.notify()
		return
	}

	now := m.now()
	conv := m.byID[req.conversationID]
	if conv != nil {
		conv.Append(conversation.RoleAssistant, resp.Text, now)
	}
	pending := m.pending.len()
	m.mu.Unlock()

	m.metrics.SetComposing(false)
	m.metrics.SetPending(pending)
	if conv == nil {
		m.metrics.RecordRequestOutcome(monitoring.OutcomeDropped, 0)
		m.logger.Warn("dropping reply for missing conversation",
			zap.String("request_id", req.id.String()),
			zap.String("conversation_id", req.conversationID.String()),
		)
	} else {
		m.metrics.RecordRequestOutcome(monitoring.OutcomeAnswered, now.Sub(req.sentAt))
		m.logger.Debug("reply received",
			zap.String("request_id", req.id.String()),
			zap.String("conversation_id", req.conversationID.String()),
			zap.Duration("latency", now.Sub(req.sentAt)),
		)
	}
	m.notify()
}

// OnTyping sets the composing indicator. The last signal wins.
func (m *Manager) OnTyping(composing bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.composing = composing
	m.mu.Unlock()

	m.metrics.SetComposing(composing)
	m.notify()
}

// OnRemoteError fails the request named by the error, or the oldest one.
func (m *Manager) OnRemoteError(remote channel.RemoteError) {
	m.mu.Lock()
	reqID := id.RequestID(remote.RequestID)
	if reqID == "" {
		if oldest, ok := m.pending.oldest(); ok {
			reqID = oldest.id
		}
	}
	m.mu.Unlock()

	if reqID == "" || !m.fail(reqID, m.pending.takeLive, conversation.ReasonRemote, remote.Message, monitoring.OutcomeFailed) {
		m.logger.Warn("dropping remote error with no pending request",
			zap.String("request_id", remote.RequestID),
			zap.String("error", remote.Message),
		)
	}
}

// State returns a deep copy of the session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	convs := make([]conversation.Conversation, len(m.conversations))
	for i, c := range m.conversations {
		convs[i] = c.Clone()
	}
	return State{
		Conversations: convs,
		ActiveID:      m.activeID,
		Composing:     m.composing,
		Input:         m.input,
		SidebarOpen:   m.sidebarOpen,
		Pending:       m.pending.len(),
		ActivePending: m.pending.countFor(m.activeID),
	}
}

// Conversation returns a copy of one conversation.
func (m *Manager) Conversation(convID id.ConversationID) (conversation.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.byID[convID]
	if !ok {
		return conversation.Conversation{}, false
	}
	return conv.Clone(), true
}

// Active returns a copy of the active conversation.
func (m *Manager) Active() (conversation.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.byID[m.activeID]
	if !ok {
		return conversation.Conversation{}, false
	}
	return conv.Clone(), true
}

// Watch returns a channel that receives a signal after state changes.
// Signals coalesce: a slow reader sees one pending signal, not a backlog.
// The channel is closed when ctx is done or the manager is closed.
func (m *Manager) Watch(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	m.watchMu.Lock()
	select {
	case <-m.done:
		m.watchMu.Unlock()
		close(ch)
		return ch
	default:
	}
	m.watchers[ch] = struct{}{}
	m.watchMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.done:
		}
		m.watchMu.Lock()
		delete(m.watchers, ch)
		m.watchMu.Unlock()
		close(ch)
	}()
	return ch
}

// Close stops request timers, detaches from the channel and closes watchers.
// Outstanding requests are abandoned without recording failures.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	abandoned := m.pending.drain()
	m.composing = false
	m.mu.Unlock()

	m.Detach()
	m.metrics.SetPending(0)
	m.metrics.SetComposing(false)
	if len(abandoned) > 0 {
		m.logger.Info("closing with requests in flight", zap.Int("pending", len(abandoned)))
	}

	m.watchMu.Lock()
	close(m.done)
	m.watchMu.Unlock()
	return nil
}

// create adds an empty conversation at the front and activates it.
// Callers hold m.mu.
func (m *Manager) create(now time.Time) *conversation.Conversation {
	conv := conversation.New(id.NewConversationID(), m.cfg.DefaultTitle, now)
	m.conversations = append([]*conversation.Conversation{conv}, m.conversations...)
	m.byID[conv.ID] = conv
	m.activeID = conv.ID
	m.metrics.IncConversations()
	return conv
}

func (m *Manager) expire(reqID id.RequestID) {
	detail := fmt.Sprintf("no reply within %s", m.cfg.RequestTimeout)
	m.fail(reqID, m.pending.expire, conversation.ReasonTimeout, detail, monitoring.OutcomeTimeout)
}

// fail ends a pending request observably, settling it with settle. It
// reports false when the request had already been resolved or had expired.
func (m *Manager) fail(reqID id.RequestID, settle func(id.RequestID) (*pendingRequest, bool), reason, detail, outcome string) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	req, ok := settle(reqID)
	if !ok {
		m.mu.Unlock()
		return false
	}

	if conv := m.byID[req.conversationID]; conv != nil {
		conv.RecordFailure(conversation.Failure{
			RequestID: req.id,
			Prompt:    req.prompt,
			Reason:    reason,
			Detail:    detail,
			At:        m.now(),
		})
	}
	pending := m.pending.len()
	if pending == 0 {
		m.composing = false
	}
	composing := m.composing
	m.mu.Unlock()

	m.metrics.SetPending(pending)
	m.metrics.SetComposing(composing)
	m.metrics.RecordRequestOutcome(outcome, 0)
	m.logger.Warn("request failed",
		zap.String("request_id", req.id.String()),
		zap.String("conversation_id", req.conversationID.String()),
		zap.String("reason", reason),
		zap.String("detail", detail),
	)
	m.notify()
	return true
}

// notify wakes every watcher without blocking.
func (m *Manager) notify() {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for ch := range m.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (m *Manager) handleResponse(payload json.RawMessage) {
	resp, err := channel.DecodeResponse(payload)
	if err != nil {
		m.logger.Warn("dropping malformed reply", zap.Error(err))
		return
	}
	m.OnResponse(resp)
}

func (m *Manager) handleTyping(payload json.RawMessage) {
	composing, err := channel.DecodeTyping(payload)
	if err != nil {
		m.logger.Warn("dropping malformed typing signal", zap.Error(err))
		return
	}
	m.OnTyping(composing)
}

func (m *Manager) handleError(payload json.RawMessage) {
	remote, err := channel.DecodeError(payload)
	if err != nil {
		m.logger.Warn("dropping malformed remote error", zap.Error(err))
		return
	}
	m.OnRemoteError(remote)
}
