package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ev/internal/history"
	"ev/internal/output"
	"ev/internal/testutils"
	"ev/pkg/evtypes"
)

// scriptedInput hands out one line per widget, then io.EOF.
type scriptedInput struct {
	mu      sync.Mutex
	lines   []string
	configs []WidgetConfig
	reads   int
	closes  int
}

func (s *scriptedInput) factory(cfg WidgetConfig) (Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, cfg)
	return &scriptedWidget{input: s}, nil
}

type scriptedWidget struct {
	input *scriptedInput
}

func (w *scriptedWidget) Readline() (string, error) {
	s := w.input
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (w *scriptedWidget) Close() error {
	w.input.mu.Lock()
	defer w.input.mu.Unlock()
	w.input.closes++
	return nil
}

func newTestSession(t *testing.T, input *scriptedInput, cmds ...evtypes.Command) (*Session, *output.CaptureBuffer) {
	t.Helper()
	printer, buffer := output.NewCapturePrinter()
	s := NewSession(newTestRegistry(t, cmds...), history.New(10),
		WithPrinter(printer),
		WithWidgetFactory(input.factory),
	)
	return s, buffer
}

func TestSession_Run_DispatchesAndRecords(t *testing.T) {
	rooms := testutils.NewMockCommand("rooms")
	input := &scriptedInput{lines: []string{"/rooms", "", "hello there", "/rooms a b"}}
	s, buffer := newTestSession(t, input, rooms)

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 2, rooms.Invoked())
	assert.Equal(t, []string{"/rooms", "/rooms a b"}, s.History().Lines())
	assert.Equal(t, "\na b\n", buffer.String())
	assert.Equal(t, 5, input.reads)
	assert.Equal(t, 5, len(input.configs), "one widget per line")
	assert.Equal(t, input.reads, input.closes, "every widget is closed")
}

func TestSession_Run_SeedsWidgetWithHistory(t *testing.T) {
	input := &scriptedInput{lines: []string{"/rooms", "/help"}}
	s, _ := newTestSession(t, input, testutils.NewMockCommand("rooms"), testutils.NewMockCommand("help"))
	s.History().Record("/history")

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, input.configs, 3)
	assert.Equal(t, Prompt, input.configs[0].Prompt)
	assert.Equal(t, []string{"/history"}, input.configs[0].History)
	assert.Equal(t, []string{"/history", "/rooms"}, input.configs[1].History)
	assert.Equal(t, []string{"/history", "/rooms", "/help"}, input.configs[2].History)
	assert.NotNil(t, input.configs[0].Complete)
}

func TestSession_HandleLine_UnknownCommandIsRecorded(t *testing.T) {
	rooms := testutils.NewMockCommand("rooms")
	s, buffer := newTestSession(t, &scriptedInput{}, rooms)

	s.HandleLine("/bogus")

	assert.Equal(t, []string{"/bogus"}, s.History().Lines())
	assert.Equal(t, "Unknown command 'bogus'\n", buffer.String())
	assert.Equal(t, 0, rooms.Invoked())
}

func TestSession_HandleLine_FailedCommandIsRecorded(t *testing.T) {
	cmd := testutils.NewMockCommand("remove-pusher")
	cmd.InvokeFunc = func(_ []string) (*bytes.Buffer, error) {
		return nil, evtypes.ArgumentError("Not enough arguments")
	}
	s, buffer := newTestSession(t, &scriptedInput{}, cmd)

	s.HandleLine("/remove-pusher")

	assert.Equal(t, []string{"/remove-pusher"}, s.History().Lines())
	assert.Equal(t, "Command failed: Not enough arguments\n", buffer.String())
}

func TestSession_HandleLine_Ignored(t *testing.T) {
	rooms := testutils.NewMockCommand("rooms")
	s, buffer := newTestSession(t, &scriptedInput{}, rooms)

	for _, line := range []string{"", "\n", "   ", "rooms", "hello /rooms", " /rooms", "\t/rooms", `/rooms "unterminated`} {
		s.HandleLine(line)
	}

	assert.Equal(t, 0, s.History().Len())
	assert.Equal(t, 0, rooms.Invoked())
	assert.Empty(t, buffer.String())
}

func TestSession_HandleLine_QuotedArguments(t *testing.T) {
	help := testutils.NewMockCommand("help")
	s, _ := newTestSession(t, &scriptedInput{}, help)

	s.HandleLine(`/help "room details" x`)

	require.Len(t, help.Calls, 1)
	assert.Equal(t, []string{"room details", "x"}, help.Calls[0])
}

func TestSession_Run_QuitStopsReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quits := 0
	quit := testutils.NewMockCommand("quit")
	quit.InvokeFunc = func(_ []string) (*bytes.Buffer, error) {
		quits++
		cancel()
		return &bytes.Buffer{}, nil
	}
	rooms := testutils.NewMockCommand("rooms")
	input := &scriptedInput{lines: []string{"/quit", "/rooms"}}
	s, _ := newTestSession(t, input, quit, rooms)

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, 1, quits)
	assert.Equal(t, 1, input.reads)
	assert.Equal(t, 0, rooms.Invoked())
	assert.Equal(t, []string{"/quit"}, s.History().Lines())
}

func TestSession_Run_InterruptEndsSession(t *testing.T) {
	factory := func(cfg WidgetConfig) (Widget, error) {
		return &errorWidget{err: readline.ErrInterrupt}, nil
	}
	printer, _ := output.NewCapturePrinter()
	s := NewSession(newTestRegistry(t), history.New(10), WithPrinter(printer), WithWidgetFactory(factory))

	assert.NoError(t, s.Run(context.Background()))
}

func TestSession_Run_ReadErrorIsReturned(t *testing.T) {
	boom := errors.New("terminal gone")
	factory := func(cfg WidgetConfig) (Widget, error) {
		return &errorWidget{err: boom}, nil
	}
	printer, _ := output.NewCapturePrinter()
	s := NewSession(newTestRegistry(t), history.New(10), WithPrinter(printer), WithWidgetFactory(factory))

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSession_Run_FactoryError(t *testing.T) {
	boom := errors.New("no tty")
	factory := func(cfg WidgetConfig) (Widget, error) {
		return nil, boom
	}
	printer, _ := output.NewCapturePrinter()
	s := NewSession(newTestRegistry(t), history.New(10), WithPrinter(printer), WithWidgetFactory(factory))

	assert.ErrorIs(t, s.Run(context.Background()), boom)
}

type errorWidget struct {
	err error
}

func (w *errorWidget) Readline() (string, error) { return "", w.err }
func (w *errorWidget) Close() error { return nil }

// blockingWidget blocks in Readline until closed.
type blockingWidget struct {
	started chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func (w *blockingWidget) Readline() (string, error) {
	close(w.started)
	<-w.closed
	return "", readline.ErrInterrupt
}

func (w *blockingWidget) Close() error {
	w.once.Do(func() { close(w.closed) })
	return nil
}

func TestSession_Run_CancelWhileReading(t *testing.T) {
	w := &blockingWidget{started: make(chan struct{}), closed: make(chan struct{})}
	factory := func(cfg WidgetConfig) (Widget, error) {
		return w, nil
	}
	printer, _ := output.NewCapturePrinter()
	s := NewSession(newTestRegistry(t), history.New(10), WithPrinter(printer), WithWidgetFactory(factory))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-w.started
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after cancellation")
	}
}

func TestSession_Run_AlreadyCancelled(t *testing.T) {
	input := &scriptedInput{lines: []string{"/rooms"}}
	s, _ := newTestSession(t, input, testutils.NewMockCommand("rooms"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 0, input.reads)
}

func TestSession_Complete(t *testing.T) {
	roomIDs := &testutils.CompleterSpy{Candidates: []string{"!abc:example.org"}}
	s, _ := newTestSession(t, &scriptedInput{},
		testutils.NewMockCommand("help"),
		testutils.NewMockCommand("room-details", evtypes.Option{Name: "room-id", Completer: roomIDs.Complete}),
	)

	assert.Equal(t, "etails ", s.Complete("/room-d", 7).Insert)
	assert.Equal(t, "abc:example.org ", s.Complete("/room-details !", 15).Insert)
	assert.Equal(t, CompletionNone, s.Complete(`/room-details "!`, 16).Kind)
	assert.Equal(t, CompletionNone, s.Complete("", 0).Kind)
}
