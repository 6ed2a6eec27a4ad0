package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/domain/session"
	"github.com/GriffinCanCode/chatsphere/internal/render"
)

const helpText = `commands:
  /new        start a new conversation
  /list       show the conversation list
  /select N   switch to conversation N
  /sidebar    toggle the conversation list
  /help       show this help
  /quit       exit
anything else is sent as a message`

// app is the interactive loop around one session manager.
type app struct {
	mgr    *session.Manager
	view   *render.Renderer
	out    io.Writer
	logger *zap.Logger
}

// redraw renders session changes until ctx is done or the manager closes.
func (a *app) redraw(ctx context.Context) {
	for range a.mgr.Watch(ctx) {
		a.view.Update(a.mgr.State())
	}
}

// run reads lines from in until EOF, /quit or ctx is done.
func (a *app) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if a.handle(ctx, line) {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the user asked to quit.
func (a *app) handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		a.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(trimmed, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(a.out, helpText)
	case "/new":
		a.mgr.NewConversation()
	case "/list":
		a.view.Sidebar(a.mgr.State())
	case "/sidebar":
		a.mgr.ToggleSidebar()
	case "/select":
		a.selectConversation(strings.TrimSpace(arg))
	default:
		fmt.Fprintf(a.out, "unknown command %s, /help lists commands\n", cmd)
	}
	return false
}

func (a *app) send(ctx context.Context, text string) {
	a.mgr.SetInput(text)
	reqID, err := a.mgr.Submit(ctx)
	switch {
	case errors.Is(err, session.ErrClosed):
		fmt.Fprintln(a.out, "session closed")
	case err != nil:
		// Recorded as a failure on the conversation and rendered from there
		a.logger.Debug("send failed", zap.String("request_id", reqID.String()), zap.Error(err))
	}
}

func (a *app) selectConversation(arg string) {
	n, err := strconv.Atoi(arg)
	state := a.mgr.State()
	if err != nil || n < 1 || n > len(state.Conversations) {
		fmt.Fprintf(a.out, "no conversation %q, /list shows the numbers\n", arg)
		return
	}
	a.mgr.Select(state.Conversations[n-1].ID)
}
