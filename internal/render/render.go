// Package render draws the chat session on a terminal: the conversation
// sidebar, the active transcript with failure notices, and the composing
// indicator. Text from the remote peer is sanitized before display.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/charmbracelet/x/ansi"
	"github.com/fatih/color"

	"github.com/GriffinCanCode/chatsphere/internal/domain/conversation"
	"github.com/GriffinCanCode/chatsphere/internal/domain/session"
	"github.com/GriffinCanCode/chatsphere/internal/shared/id"
)

const (
	sidebarHeader = "Chats"
	emptyPrompt   = "Start chatting"
	typingNotice  = "assistant is typing..."
)

// Renderer writes session snapshots to a terminal.
// Update prints only what changed since the previous call.
type Renderer struct {
	out    io.Writer

	user      *color.Color
	assistant *color.Color
	failure   *color.Color
	muted     *color.Color
	active    *color.Color

	mu        sync.Mutex
	shownID   id.ConversationID
	shownMsgs int
	shownFail int
	composing bool
	sidebar   bool
}

// New creates a renderer. Colors are emitted only when colored is true.
func New(out io.Writer, colored bool) *Renderer {
	r := &Renderer{
		out:       out,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen),
		failure:   color.New(color.FgRed),
		muted:     color.New(color.FgHiBlack),
		active:    color.New(color.FgYellow, color.Bold),
	}
	for _, c := range []*color.Color{r.user, r.assistant, r.failure, r.muted, r.active} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Sanitize makes remote text safe to print. Escape sequences and other
// control characters are removed; everything else, including text that
// looks like markup, is kept as written.
func (r *Renderer) Sanitize(text string) string {
	clean := ansi.Strip(text)
	return strings.Map(func(c rune) rune {
		if c == '\n' || c == '\t' {
			return c
		}
		if unicode.IsControl(c) {
			return -1
		}
		return c
	}, clean)
}

// Sidebar writes the conversation list, newest first, numbered from 1.
func (r *Renderer) Sidebar(state session.State) {
	fmt.Fprintln(r.out, r.muted.Sprint(sidebarHeader))
	if len(state.Conversations) == 0 {
		fmt.Fprintln(r.out, r.muted.Sprint("  (none yet, /new starts one)"))
		return
	}
	for i, conv := range state.Conversations {
		line := fmt.Sprintf("%3d. %s (%d)", i+1, conv.Title, len(conv.Messages))
		if conv.ID == state.ActiveID {
			fmt.Fprintln(r.out, r.active.Sprint("*"+line[1:]))
			continue
		}
		fmt.Fprintln(r.out, line)
	}
}

// Transcript writes the whole active conversation.
func (r *Renderer) Transcript(state session.State) {
	conv, ok := state.Active()
	if !ok || (len(conv.Messages) == 0 && len(conv.Failures) == 0) {
		fmt.Fprintln(r.out, r.muted.Sprint(emptyPrompt))
		return
	}
	r.writeRange(conv, 0, 0)
}

// Screen writes a full view: sidebar when open, transcript and status.
func (r *Renderer) Screen(state session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state.SidebarOpen {
		r.Sidebar(state)
		fmt.Fprintln(r.out)
	}
	r.Transcript(state)
	if state.Composing {
		fmt.Fprintln(r.out, r.muted.Sprint(typingNotice))
	}
	r.remember(state)
}

// Update prints the part of state not yet shown: new messages and failures
// of the active conversation, the full transcript after a switch, the
// sidebar when it opens, and composing transitions.
func (r *Renderer) Update(state session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state.SidebarOpen && !r.sidebar {
		r.Sidebar(state)
	}

	conv, ok := state.Active()
	switch {
	case !ok:
	case conv.ID != r.shownID:
		fmt.Fprintln(r.out, r.muted.Sprintf("-- %s --", conv.Title))
		if len(conv.Messages) == 0 && len(conv.Failures) == 0 {
			fmt.Fprintln(r.out, r.muted.Sprint(emptyPrompt))
		}
		r.writeRange(conv, 0, 0)
	default:
		r.writeRange(conv, r.shownMsgs, r.shownFail)
	}

	if state.Composing && !r.composing {
		fmt.Fprintln(r.out, r.muted.Sprint(typingNotice))
	}
	r.remember(state)
}

func (r *Renderer) remember(state session.State) {
	r.composing = state.Composing
	r.sidebar = state.SidebarOpen
	conv, ok := state.Active()
	if !ok {
		r.shownID, r.shownMsgs, r.shownFail = "", 0, 0
		return
	}
	r.shownID = conv.ID
	r.shownMsgs = len(conv.Messages)
	r.shownFail = len(conv.Failures)
}

// writeRange prints messages from index msgFrom and failures from index
// failFrom, interleaving each failure after the message it followed.
func (r *Renderer) writeRange(conv conversation.Conversation, msgFrom, failFrom int) {
	fail := failFrom
	for i := msgFrom; i <= len(conv.Messages); i++ {
		for fail < len(conv.Failures) && conv.Failures[fail].AfterMessage <= i {
			r.writeFailure(conv.Failures[fail])
			fail++
		}
		if i < len(conv.Messages) {
			r.writeMessage(conv.Messages[i])
		}
	}
	for ; fail < len(conv.Failures); fail++ {
		r.writeFailure(conv.Failures[fail])
	}
}

func (r *Renderer) writeMessage(msg conversation.Message) {
	switch msg.Role {
	case conversation.RoleUser:
		fmt.Fprintf(r.out, "%s %s\n", r.user.Sprint("you:"), msg.Text)
	case conversation.RoleAssistant:
		fmt.Fprintf(r.out, "%s %s\n", r.assistant.Sprint("ai:"), r.Sanitize(msg.Text))
	}
}

func (r *Renderer) writeFailure(f conversation.Failure) {
	var what string
	switch f.Reason {
	case conversation.ReasonTimeout:
		what = "no reply"
	case conversation.ReasonSendFailed:
		what = "not sent"
	case conversation.ReasonRemote:
		what = "failed"
	default:
		what = f.Reason
	}
	line := fmt.Sprintf("! %s: %q", what, truncate(f.Prompt, 40))
	if f.Detail != "" {
		line += " (" + r.Sanitize(f.Detail) + ")"
	}
	fmt.Fprintln(r.out, r.failure.Sprint(line))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
