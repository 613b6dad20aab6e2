package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"ev/internal/history"
	"ev/internal/logger"
	"ev/internal/output"
	"ev/pkg/evtypes"
)

// Prompt is the default prompt of the shell.
const Prompt = "Ev> "

// Session ties the command registry, the history and the line editor
// together. The editor is destroyed and rebuilt after every line, which
// keeps redisplay simple at the cost of rebuilding the editor state.
type Session struct {
	engine     *Engine
	dispatcher *Dispatcher
	history    *history.Store
	printer    *output.Printer
	newWidget  WidgetFactory
	prompt     string

	mu     sync.Mutex
	widget Widget
	closed bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithWidgetFactory replaces the readline editor on stdin/stdout.
func WithWidgetFactory(factory WidgetFactory) SessionOption {
	return func(s *Session) {
		s.newWidget = factory
	}
}

// WithPrinter sets where command output and errors go.
func WithPrinter(printer *output.Printer) SessionOption {
	return func(s *Session) {
		s.printer = printer
	}
}

// WithPrompt overrides the prompt.
func WithPrompt(prompt string) SessionOption {
	return func(s *Session) {
		s.prompt = prompt
	}
}

// NewSession creates a session over a fully assembled command set.
func NewSession(commands CommandSource, hist *history.Store, opts ...SessionOption) *Session {
	s := &Session{
		engine:  NewEngine(commands),
		history: hist,
		prompt:  Prompt,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.printer == nil {
		s.printer = output.NewPrinter()
	}
	if s.newWidget == nil {
		s.newWidget = NewReadlineFactory(os.Stdin, s.printer.Writer())
	}
	s.dispatcher = NewDispatcher(commands, s.printer)
	return s
}

// History returns the session's history store.
func (s *Session) History() *history.Store {
	return s.history
}

// Run reads and handles lines until ctx is cancelled or input ends.
// Cancellation lets the current line finish; a pending read is aborted.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.closeWidget)
	defer stop()

	for ctx.Err() == nil {
		w, err := s.openWidget()
		if err != nil {
			return err
		}
		if w == nil {
			return nil
		}

		line, err := w.Readline()
		s.releaseWidget(w)

		switch {
		case ctx.Err() != nil && err != nil:
			return nil
		case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
			logger.Debug("Input ended", "reason", err)
			return nil
		case err != nil:
			return fmt.Errorf("failed to read line: %w", err)
		}

		s.HandleLine(line)
	}
	return nil
}

// HandleLine processes one submitted line. Lines that are empty or do not
// start with the command marker are ignored. Command lines are recorded in
// history before dispatch, whether or not the command exists or succeeds.
func (s *Session) HandleLine(line string) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, evtypes.CommandMarker) {
		return
	}

	tokens, err := Split(line)
	if err != nil {
		logger.Error("Failed to parse line", "line", line, "error", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	s.history.Record(line)
	_ = s.dispatcher.Run(tokens)
}

// Complete answers a Tab press on line at cursor. Malformed input is
// logged and yields no completion.
func (s *Session) Complete(line string, cursor int) Completion {
	c, err := s.engine.Complete(line, cursor)
	if err != nil {
		logger.Error("Failed to tokenize line for completion", "line", line, "error", err)
		return Completion{Kind: CompletionNone}
	}
	return c
}

func (s *Session) openWidget() (Widget, error) {
	w, err := s.newWidget(WidgetConfig{
		Prompt:   s.prompt,
		History:  s.history.Lines(),
		Complete: s.Complete,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = w.Close()
		return nil, nil
	}
	s.widget = w
	return w, nil
}

func (s *Session) releaseWidget(w Widget) {
	s.mu.Lock()
	if s.widget == w {
		s.widget = nil
	}
	s.mu.Unlock()
	_ = w.Close()
}

func (s *Session) closeWidget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.widget != nil {
		_ = s.widget.Close()
	}
}
