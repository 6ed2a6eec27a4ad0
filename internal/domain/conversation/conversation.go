// Package conversation defines the chat transcript model.
package conversation

import (
	"time"

	"github.com/GriffinCanCode/chatsphere/internal/shared/id"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Failure reasons
const (
	ReasonTimeout    = "timeout"
	ReasonSendFailed = "send_failed"
	ReasonRemote     = "remote_error"
)

// Message is one transcript entry. Messages are never edited after append.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Failure records a request that ended without a reply. AfterMessage is the
// number of messages the conversation held when the failure was recorded.
type Failure struct {
	RequestID    id.RequestID `json:"request_id"`
	Prompt       string       `json:"prompt"`
	Reason       string       `json:"reason"`
	Detail       string       `json:"detail,omitempty"`
	At           time.Time    `json:"at"`
	AfterMessage int          `json:"after_message"`
}

// Conversation is an ordered transcript.
type Conversation struct {
	ID        id.ConversationID `json:"id"`
	Title     string            `json:"title"`
	Messages  []Message         `json:"messages"`
	Failures  []Failure         `json:"failures,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// New creates an empty conversation.
func New(convID id.ConversationID, title string, now time.Time) *Conversation {
	return &Conversation{
		ID:        convID,
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
	}
}

// Append adds a message at the end of the transcript.
func (c *Conversation) Append(role Role, text string, at time.Time) {
	c.Messages = append(c.Messages, Message{Role: role, Text: text, At: at})
}

// RecordFailure adds a failure positioned after the current last message.
func (c *Conversation) RecordFailure(f Failure) {
	f.AfterMessage = len(c.Messages)
	c.Failures = append(c.Failures, f)
}

// Clone returns a deep copy.
func (c *Conversation) Clone() Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	if len(c.Failures) > 0 {
		out.Failures = append([]Failure(nil), c.Failures...)
	}
	return out
}

// Last returns the most recent message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}
